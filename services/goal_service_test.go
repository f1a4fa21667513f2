package services

import (
	"context"
	"errors"
	"testing"

	"studyPathAPI/internal/types/goal"
	"studyPathAPI/tests/helpers"
)

func TestCompleteStepRollupAndChain(t *testing.T) {
	db := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, db)

	ctx := context.Background()
	svc := NewGoalService(db)
	userID := helpers.CreateTestUser(t, db)
	firstGoal := helpers.CreateTestGoal(t, db, "goal chain first", 0)
	secondGoal := helpers.CreateTestGoal(t, db, "goal chain second", 1)
	stepA := helpers.CreateTestGoalStep(t, db, firstGoal, "step a", true)
	stepB := helpers.CreateTestGoalStep(t, db, firstGoal, "step b", true)

	if _, err := db.Exec(ctx, `
		INSERT INTO goal_links (from_goal_id, to_goal_id, condition)
		VALUES ($1, $2, 'ON_COMPLETE')
	`, firstGoal, secondGoal); err != nil {
		t.Fatalf("failed to create goal link: %v", err)
	}

	result, err := svc.CompleteStep(ctx, userID, stepA)
	if err != nil {
		t.Fatalf("complete step a failed: %v", err)
	}
	if result.GoalComplete {
		t.Error("goal completed with one of two required steps")
	}

	result, err = svc.CompleteStep(ctx, userID, stepB)
	if err != nil {
		t.Fatalf("complete step b failed: %v", err)
	}
	if !result.GoalComplete {
		t.Fatal("expected goal to complete after last required step")
	}
	if !result.NextActivated || result.NextGoalID == nil || *result.NextGoalID != secondGoal {
		t.Fatalf("expected next goal %d activated, got %+v", secondGoal, result)
	}

	var status goal.GoalStatus
	err = db.QueryRow(ctx, `
		SELECT status FROM user_goal_progress
		WHERE user_id = $1 AND goal_id = $2
	`, userID, secondGoal).Scan(&status)
	if err != nil {
		t.Fatalf("failed to load next goal progress: %v", err)
	}
	if status != goal.StatusInProgress {
		t.Errorf("expected next goal IN_PROGRESS, got %s", status)
	}
}

func TestInactiveSuccessorGoalStaysDormant(t *testing.T) {
	db := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, db)

	ctx := context.Background()
	svc := NewGoalService(db)
	userID := helpers.CreateTestUser(t, db)
	firstGoal := helpers.CreateTestGoal(t, db, "dormant first", 0)
	secondGoal := helpers.CreateTestGoal(t, db, "dormant second", 1)
	step := helpers.CreateTestGoalStep(t, db, firstGoal, "only step", true)

	if _, err := db.Exec(ctx, "UPDATE goals SET is_active = FALSE WHERE id = $1", secondGoal); err != nil {
		t.Fatalf("failed to deactivate goal: %v", err)
	}
	if _, err := db.Exec(ctx, `
		INSERT INTO goal_links (from_goal_id, to_goal_id, condition)
		VALUES ($1, $2, 'ON_COMPLETE')
	`, firstGoal, secondGoal); err != nil {
		t.Fatalf("failed to create goal link: %v", err)
	}

	result, err := svc.CompleteStep(ctx, userID, step)
	if err != nil {
		t.Fatalf("complete step failed: %v", err)
	}
	if !result.GoalComplete {
		t.Fatal("expected goal to complete")
	}
	if result.NextActivated {
		t.Error("inactive successor goal must not be activated")
	}
}

func TestCompleteStepNotFound(t *testing.T) {
	db := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, db)

	ctx := context.Background()
	svc := NewGoalService(db)
	userID := helpers.CreateTestUser(t, db)

	if _, err := svc.CompleteStep(ctx, userID, 999999999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSnoozeGoalValidation(t *testing.T) {
	db := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, db)

	ctx := context.Background()
	svc := NewGoalService(db)
	userID := helpers.CreateTestUser(t, db)
	goalID := helpers.CreateTestGoal(t, db, "snooze validation", 0)

	if _, _, err := svc.SnoozeGoal(ctx, userID, goalID, 0); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for days=0, got %v", err)
	}
	if _, _, err := svc.SnoozeGoal(ctx, userID, 999999999, 5); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing goal, got %v", err)
	}
}
