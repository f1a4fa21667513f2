package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"studyPathAPI/internal/types/notification"
	"studyPathAPI/tests/helpers"
)

func TestGenerateForUserDeduplicates(t *testing.T) {
	db := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, db)

	ctx := context.Background()
	challenges := NewChallengeService(db)
	svc := NewNotificationService(db)
	userID := helpers.CreateTestUser(t, db)
	challengeID := helpers.CreateTestChallenge(t, db, "deadline dedup", 0)

	// Due in ~3 days hits exactly one reminder window.
	due := time.Now().UTC().Add(72 * time.Hour)
	if _, err := db.Exec(ctx, "UPDATE challenges SET due_date = $2 WHERE id = $1", challengeID, due); err != nil {
		t.Fatalf("failed to set due date: %v", err)
	}
	if _, err := challenges.assignChallenge(ctx, db, userID, challengeID); err != nil {
		t.Fatalf("failed to assign challenge: %v", err)
	}

	created, err := svc.GenerateForUser(ctx, userID)
	if err != nil {
		t.Fatalf("first generation failed: %v", err)
	}
	// One 3-day deadline reminder plus the welcome nudge.
	if created != 2 {
		t.Errorf("expected 2 notifications on first run, got %d", created)
	}

	var deadlineCount int
	err = db.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = $1 AND dedup_key = $2
	`, userID, notification.DeadlineDedupKey(challengeID, 3)).Scan(&deadlineCount)
	if err != nil {
		t.Fatalf("failed to count deadline notifications: %v", err)
	}
	if deadlineCount != 1 {
		t.Errorf("expected exactly 1 deadline reminder, got %d", deadlineCount)
	}

	created, err = svc.GenerateForUser(ctx, userID)
	if err != nil {
		t.Fatalf("second generation failed: %v", err)
	}
	if created != 0 {
		t.Errorf("expected second run to create nothing, got %d", created)
	}
}

func TestDeadlineReminderForUnassignedChallenge(t *testing.T) {
	db := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, db)

	ctx := context.Background()
	svc := NewNotificationService(db)
	userID := helpers.CreateTestUser(t, db)
	challengeID := helpers.CreateTestChallenge(t, db, "deadline unassigned", 0)

	// Never assigned: the user has no progress row for this challenge,
	// which still counts as incomplete.
	due := time.Now().UTC().Add(72 * time.Hour)
	if _, err := db.Exec(ctx, "UPDATE challenges SET due_date = $2 WHERE id = $1", challengeID, due); err != nil {
		t.Fatalf("failed to set due date: %v", err)
	}

	if _, err := svc.GenerateForUser(ctx, userID); err != nil {
		t.Fatalf("generation failed: %v", err)
	}

	var count int
	err := db.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = $1 AND dedup_key = $2
	`, userID, notification.DeadlineDedupKey(challengeID, 3)).Scan(&count)
	if err != nil {
		t.Fatalf("failed to count reminders: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 reminder for the unassigned challenge, got %d", count)
	}
}

func TestStreakEncouragement(t *testing.T) {
	db := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, db)

	ctx := context.Background()
	svc := NewNotificationService(db)
	userID := helpers.CreateTestUser(t, db)
	challengeID := helpers.CreateTestChallenge(t, db, "streak", 0)
	objA := helpers.CreateTestObjective(t, db, challengeID, "day one", true)
	objB := helpers.CreateTestObjective(t, db, challengeID, "day two", true)

	// Two completions on distinct days inside the trailing week.
	now := time.Now().UTC()
	if _, err := db.Exec(ctx, `
		INSERT INTO user_objective_progress (user_id, objective_id, status, completed_at)
		VALUES ($1, $2, 'COMPLETE', $3), ($1, $4, 'COMPLETE', $5)
	`, userID, objA, now.AddDate(0, 0, -1), objB, now); err != nil {
		t.Fatalf("failed to seed completions: %v", err)
	}

	if err := svc.GenerateStreakEncouragement(ctx, userID); err != nil {
		t.Fatalf("streak generation failed: %v", err)
	}
	// Second invocation the same day must not double up.
	if err := svc.GenerateStreakEncouragement(ctx, userID); err != nil {
		t.Fatalf("repeat streak generation failed: %v", err)
	}

	var count int
	err := db.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = $1 AND type = 'streak'
	`, userID).Scan(&count)
	if err != nil {
		t.Fatalf("failed to count streak notifications: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly 1 streak notification, got %d", count)
	}
}

func TestStreakRequiresTwoActiveDays(t *testing.T) {
	db := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, db)

	ctx := context.Background()
	svc := NewNotificationService(db)
	userID := helpers.CreateTestUser(t, db)
	challengeID := helpers.CreateTestChallenge(t, db, "no streak", 0)
	obj := helpers.CreateTestObjective(t, db, challengeID, "single", true)

	if _, err := db.Exec(ctx, `
		INSERT INTO user_objective_progress (user_id, objective_id, status, completed_at)
		VALUES ($1, $2, 'COMPLETE', $3)
	`, userID, obj, time.Now().UTC()); err != nil {
		t.Fatalf("failed to seed completion: %v", err)
	}

	if err := svc.GenerateStreakEncouragement(ctx, userID); err != nil {
		t.Fatalf("streak generation failed: %v", err)
	}

	var count int
	err := db.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = $1 AND type = 'streak'
	`, userID).Scan(&count)
	if err != nil {
		t.Fatalf("failed to count streak notifications: %v", err)
	}
	if count != 0 {
		t.Errorf("one active day must not trigger a streak, got %d notifications", count)
	}
}

func TestMarkReadAndDismiss(t *testing.T) {
	db := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, db)

	ctx := context.Background()
	svc := NewNotificationService(db)
	userID := helpers.CreateTestUser(t, db)
	otherID := helpers.CreateTestUser(t, db)

	n, err := svc.insertDeduped(ctx, db, &notification.Notification{
		UserID:       userID,
		Type:         notification.TypeNudge,
		Title:        "hello",
		Body:         "world",
		ScheduledFor: time.Now().UTC(),
		DedupKey:     notification.WelcomeNudgeDedupKey(userID),
	})
	if err != nil || n == nil {
		t.Fatalf("failed to seed notification: %v", err)
	}

	// Other users cannot touch it.
	if err := svc.MarkRead(ctx, otherID, n.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign user, got %v", err)
	}

	if err := svc.MarkRead(ctx, userID, n.ID); err != nil {
		t.Fatalf("mark read failed: %v", err)
	}
	// Re-reading is a no-op, not an error.
	if err := svc.MarkRead(ctx, userID, n.ID); err != nil {
		t.Fatalf("repeat mark read errored: %v", err)
	}

	if err := svc.Dismiss(ctx, userID, n.ID); err != nil {
		t.Fatalf("dismiss failed: %v", err)
	}

	list, err := svc.List(ctx, userID, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	for _, item := range list.Notifications {
		if item.ID == n.ID {
			t.Error("read and dismissed notification still listed as active")
		}
	}
	if list.UnreadCount != 0 {
		t.Errorf("expected 0 unread, got %d", list.UnreadCount)
	}
}
