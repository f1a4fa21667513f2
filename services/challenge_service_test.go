package services

import (
	"context"
	"testing"

	"studyPathAPI/internal/types/challenge"
	"studyPathAPI/tests/helpers"
)

func TestAssignChallengeIdempotent(t *testing.T) {
	db := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, db)

	ctx := context.Background()
	svc := NewChallengeService(db)
	userID := helpers.CreateTestUser(t, db)
	challengeID := helpers.CreateTestChallenge(t, db, "assign idempotent", 0)

	first, err := svc.assignChallenge(ctx, db, userID, challengeID)
	if err != nil {
		t.Fatalf("first assign failed: %v", err)
	}
	if first.Status != challenge.StatusInProgress {
		t.Errorf("expected IN_PROGRESS, got %s", first.Status)
	}
	if first.StartedAt == nil {
		t.Fatal("expected started_at to be stamped")
	}

	second, err := svc.assignChallenge(ctx, db, userID, challengeID)
	if err != nil {
		t.Fatalf("second assign failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected one progress row, got ids %d and %d", first.ID, second.ID)
	}
	if !second.StartedAt.Equal(*first.StartedAt) {
		t.Errorf("started_at changed on re-assign: %v -> %v", first.StartedAt, second.StartedAt)
	}

	// A completed row must never regress.
	if _, err := db.Exec(ctx, `
		UPDATE user_challenge_progress SET status = 'COMPLETE', completed_at = NOW()
		WHERE user_id = $1 AND challenge_id = $2
	`, userID, challengeID); err != nil {
		t.Fatalf("failed to force complete: %v", err)
	}

	third, err := svc.assignChallenge(ctx, db, userID, challengeID)
	if err != nil {
		t.Fatalf("assign after complete failed: %v", err)
	}
	if third.Status != challenge.StatusComplete {
		t.Errorf("expected COMPLETE to stick, got %s", third.Status)
	}
}

func TestCompleteObjectiveRollup(t *testing.T) {
	db := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, db)

	ctx := context.Background()
	svc := NewChallengeService(db)
	userID := helpers.CreateTestUser(t, db)
	challengeID := helpers.CreateTestChallenge(t, db, "rollup", 0)
	reqA := helpers.CreateTestObjective(t, db, challengeID, "required a", true)
	reqB := helpers.CreateTestObjective(t, db, challengeID, "required b", true)
	opt := helpers.CreateTestObjective(t, db, challengeID, "optional", false)

	result, err := svc.CompleteObjective(ctx, userID, reqA)
	if err != nil {
		t.Fatalf("complete required a failed: %v", err)
	}
	if result.ParentComplete {
		t.Error("challenge completed with one of two required objectives")
	}

	result, err = svc.CompleteObjective(ctx, userID, opt)
	if err != nil {
		t.Fatalf("complete optional failed: %v", err)
	}
	if result.ParentComplete {
		t.Error("optional objective must not complete the challenge")
	}

	result, err = svc.CompleteObjective(ctx, userID, reqB)
	if err != nil {
		t.Fatalf("complete required b failed: %v", err)
	}
	if !result.ParentComplete {
		t.Error("expected challenge to complete after last required objective")
	}

	var status challenge.ChallengeStatus
	err = db.QueryRow(ctx, `
		SELECT status FROM user_challenge_progress
		WHERE user_id = $1 AND challenge_id = $2
	`, userID, challengeID).Scan(&status)
	if err != nil {
		t.Fatalf("failed to load progress: %v", err)
	}
	if status != challenge.StatusComplete {
		t.Errorf("expected COMPLETE progress row, got %s", status)
	}
}

func TestCompleteObjectiveIdempotent(t *testing.T) {
	db := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, db)

	ctx := context.Background()
	svc := NewChallengeService(db)
	userID := helpers.CreateTestUser(t, db)
	challengeID := helpers.CreateTestChallenge(t, db, "objective idempotent", 0)
	objectiveID := helpers.CreateTestObjective(t, db, challengeID, "only", true)

	if _, err := svc.CompleteObjective(ctx, userID, objectiveID); err != nil {
		t.Fatalf("first completion failed: %v", err)
	}

	var firstCompletedAt string
	if err := db.QueryRow(ctx, `
		SELECT completed_at::text FROM user_objective_progress
		WHERE user_id = $1 AND objective_id = $2
	`, userID, objectiveID).Scan(&firstCompletedAt); err != nil {
		t.Fatalf("failed to read completed_at: %v", err)
	}

	if _, err := svc.CompleteObjective(ctx, userID, objectiveID); err != nil {
		t.Fatalf("re-completion errored: %v", err)
	}

	var secondCompletedAt string
	if err := db.QueryRow(ctx, `
		SELECT completed_at::text FROM user_objective_progress
		WHERE user_id = $1 AND objective_id = $2
	`, userID, objectiveID).Scan(&secondCompletedAt); err != nil {
		t.Fatalf("failed to re-read completed_at: %v", err)
	}
	if firstCompletedAt != secondCompletedAt {
		t.Errorf("completed_at re-stamped: %s -> %s", firstCompletedAt, secondCompletedAt)
	}
}

func TestZeroRequiredObjectivesBlocksCompletion(t *testing.T) {
	db := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, db)

	ctx := context.Background()
	svc := NewChallengeService(db)
	userID := helpers.CreateTestUser(t, db)
	challengeID := helpers.CreateTestChallenge(t, db, "zero required", 0)
	opt := helpers.CreateTestObjective(t, db, challengeID, "optional only", false)

	result, err := svc.CompleteObjective(ctx, userID, opt)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if result.ParentComplete {
		t.Error("challenge with zero required objectives must not auto-complete")
	}
}

func TestSuccessorActivation(t *testing.T) {
	db := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, db)

	ctx := context.Background()
	svc := NewChallengeService(db)
	userID := helpers.CreateTestUser(t, db)
	firstID := helpers.CreateTestChallenge(t, db, "chain first", 0)
	secondID := helpers.CreateTestChallenge(t, db, "chain second", 1)
	objectiveID := helpers.CreateTestObjective(t, db, firstID, "finish me", true)

	if _, err := db.Exec(ctx, "UPDATE challenges SET next_challenge_id = $2 WHERE id = $1", firstID, secondID); err != nil {
		t.Fatalf("failed to set next pointer: %v", err)
	}

	result, err := svc.CompleteObjective(ctx, userID, objectiveID)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if !result.ParentComplete {
		t.Fatal("expected challenge to complete")
	}
	if !result.SuccessorActivated || result.SuccessorID == nil || *result.SuccessorID != secondID {
		t.Fatalf("expected successor %d activated, got %+v", secondID, result)
	}

	var status challenge.ChallengeStatus
	err = db.QueryRow(ctx, `
		SELECT status FROM user_challenge_progress
		WHERE user_id = $1 AND challenge_id = $2
	`, userID, secondID).Scan(&status)
	if err != nil {
		t.Fatalf("failed to load successor progress: %v", err)
	}
	if status != challenge.StatusInProgress {
		t.Errorf("expected successor IN_PROGRESS, got %s", status)
	}
}

func TestSuccessorViaLink(t *testing.T) {
	db := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, db)

	ctx := context.Background()
	svc := NewChallengeService(db)
	userID := helpers.CreateTestUser(t, db)
	firstID := helpers.CreateTestChallenge(t, db, "link first", 0)
	secondID := helpers.CreateTestChallenge(t, db, "link second", 1)
	objectiveID := helpers.CreateTestObjective(t, db, firstID, "finish me", true)

	if _, err := db.Exec(ctx, `
		INSERT INTO challenge_links (from_challenge_id, to_challenge_id, condition)
		VALUES ($1, $2, 'ON_COMPLETE')
	`, firstID, secondID); err != nil {
		t.Fatalf("failed to create link: %v", err)
	}

	result, err := svc.CompleteObjective(ctx, userID, objectiveID)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if !result.SuccessorActivated || result.SuccessorID == nil || *result.SuccessorID != secondID {
		t.Fatalf("expected linked successor %d activated, got %+v", secondID, result)
	}
}

func TestAvailableChallengesOrdering(t *testing.T) {
	db := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, db)

	ctx := context.Background()
	svc := NewChallengeService(db)
	userID := helpers.CreateTestUser(t, db)
	later := helpers.CreateTestChallenge(t, db, "ordering later", 500)
	earlier := helpers.CreateTestChallenge(t, db, "ordering earlier", 400)

	available, err := svc.AvailableChallenges(ctx, userID, nil)
	if err != nil {
		t.Fatalf("available failed: %v", err)
	}

	posEarlier, posLater := -1, -1
	for i, c := range available {
		switch c.ID {
		case earlier:
			posEarlier = i
		case later:
			posLater = i
		}
	}
	if posEarlier == -1 || posLater == -1 {
		t.Fatal("seeded challenges missing from availability")
	}
	if posEarlier > posLater {
		t.Error("expected sort_order to drive selection order")
	}
}
