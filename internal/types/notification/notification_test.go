package notification

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDedupKeyBuilders(t *testing.T) {
	userID := uuid.MustParse("7f2c68e1-3a4b-4a1e-9a60-111111111111")
	day := time.Date(2025, time.March, 9, 15, 30, 0, 0, time.UTC)

	if got := DeadlineDedupKey(42, 3); got != "deadline:challenge:42:3d" {
		t.Errorf("deadline key = %q", got)
	}
	if got := WelcomeNudgeDedupKey(userID); got != "nudge:inactivity:"+userID.String()+":welcome" {
		t.Errorf("welcome key = %q", got)
	}
	if got := InactivityNudgeDedupKey(userID, day); got != "nudge:inactivity:"+userID.String()+":2025-03-09" {
		t.Errorf("inactivity key = %q", got)
	}
	if got := StreakDedupKey(userID, day); got != "streak:encourage:"+userID.String()+":2025-03-09" {
		t.Errorf("streak key = %q", got)
	}
}

func TestDedupKeyUsesUTCDate(t *testing.T) {
	userID := uuid.New()
	// 23:30 in UTC+2 is 21:30 UTC the same day; 01:30 in UTC+2 is the
	// previous UTC day. The key must follow UTC.
	loc := time.FixedZone("UTC+2", 2*60*60)
	late := time.Date(2025, time.March, 10, 1, 30, 0, 0, loc)

	if got := StreakDedupKey(userID, late); got != "streak:encourage:"+userID.String()+":2025-03-09" {
		t.Errorf("expected UTC date in key, got %q", got)
	}
}

func TestIsActive(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	n := &Notification{ScheduledFor: past}
	if !n.IsActive() {
		t.Error("due, unread, undismissed notification should be active")
	}

	n = &Notification{ScheduledFor: future}
	if n.IsActive() {
		t.Error("notification scheduled in the future should not be active")
	}

	n = &Notification{ScheduledFor: past, ReadAt: &now}
	if n.IsActive() {
		t.Error("read notification should not be active")
	}

	n = &Notification{ScheduledFor: past, DismissedAt: &now}
	if n.IsActive() {
		t.Error("dismissed notification should not be active")
	}
}
