package services

import (
	"context"
	"errors"
	"testing"

	"studyPathAPI/internal/types/admin"
	"studyPathAPI/tests/helpers"
)

func TestCreateChallengeLinkConflicts(t *testing.T) {
	db := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, db)

	ctx := context.Background()
	svc := NewAdminService(db)
	fromID := helpers.CreateTestChallenge(t, db, "link from", 0)
	toID := helpers.CreateTestChallenge(t, db, "link to", 1)
	thirdID := helpers.CreateTestChallenge(t, db, "link third", 2)

	if _, err := svc.CreateChallengeLink(ctx, &admin.CreateLinkRequest{FromID: fromID, ToID: toID}); err != nil {
		t.Fatalf("first link failed: %v", err)
	}

	// One successor per (from, condition).
	_, err := svc.CreateChallengeLink(ctx, &admin.CreateLinkRequest{FromID: fromID, ToID: thirdID})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict on duplicate condition, got %v", err)
	}

	_, err = svc.CreateChallengeLink(ctx, &admin.CreateLinkRequest{FromID: fromID, ToID: fromID})
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState on self link, got %v", err)
	}

	// A link to a missing challenge violates the foreign key.
	_, err = svc.CreateChallengeLink(ctx, &admin.CreateLinkRequest{FromID: thirdID, ToID: 999999999})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on missing target, got %v", err)
	}
}

func TestUpdateChallengePartial(t *testing.T) {
	db := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, db)

	ctx := context.Background()
	svc := NewAdminService(db)
	id := helpers.CreateTestChallenge(t, db, "partial update", 0)

	points := 50
	updated, err := svc.UpdateChallenge(ctx, id, &admin.UpdateChallengeRequest{Points: &points})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Points != 50 {
		t.Errorf("points not updated: %d", updated.Points)
	}
	if updated.Title != "[test] partial update" {
		t.Errorf("untouched field changed: %q", updated.Title)
	}

	// Empty update is a read.
	same, err := svc.UpdateChallenge(ctx, id, &admin.UpdateChallengeRequest{})
	if err != nil {
		t.Fatalf("empty update failed: %v", err)
	}
	if same.Points != 50 {
		t.Errorf("empty update changed points: %d", same.Points)
	}

	_, err = svc.UpdateChallenge(ctx, 999999999, &admin.UpdateChallengeRequest{Points: &points})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing challenge, got %v", err)
	}
}

func TestDeleteChallengeNotFound(t *testing.T) {
	db := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, db)

	ctx := context.Background()
	svc := NewAdminService(db)

	if err := svc.DeleteChallenge(ctx, 999999999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateChallengeValidation(t *testing.T) {
	db := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, db)

	ctx := context.Background()
	svc := NewAdminService(db)

	if _, err := svc.CreateChallenge(ctx, &admin.CreateChallengeRequest{}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for empty title, got %v", err)
	}
}
