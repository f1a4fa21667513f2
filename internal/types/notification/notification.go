package notification

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	TypeDeadline NotificationType = "deadline"
	TypeNudge    NotificationType = "nudge"
	TypeStreak   NotificationType = "streak"
)

// Notification is an assistive reminder that supports the challenge flow.
// It never replaces Today's Task, only nudges the student toward it.
type Notification struct {
	ID                 int64            `json:"id" db:"id"`
	UserID             uuid.UUID        `json:"user_id" db:"user_id"`
	Type               NotificationType `json:"type" db:"type"`
	Title              string           `json:"title" db:"title"`
	Body               string           `json:"body" db:"body"`
	RelatedGoalID      *int64           `json:"related_goal_id" db:"related_goal_id"`
	RelatedChallengeID *int64           `json:"related_challenge_id" db:"related_challenge_id"`
	ScheduledFor       time.Time        `json:"scheduled_for" db:"scheduled_for"`
	CreatedAt          time.Time        `json:"created_at" db:"created_at"`
	ReadAt             *time.Time       `json:"read_at" db:"read_at"`
	DismissedAt        *time.Time       `json:"dismissed_at" db:"dismissed_at"`
	DedupKey           string           `json:"dedup_key" db:"dedup_key"`
}

func (n *Notification) IsRead() bool      { return n.ReadAt != nil }
func (n *Notification) IsDismissed() bool { return n.DismissedAt != nil }

// IsActive reports whether the notification should currently be shown.
func (n *Notification) IsActive() bool {
	if n.IsRead() || n.IsDismissed() {
		return false
	}
	return !n.ScheduledFor.After(time.Now().UTC())
}

type ListResponse struct {
	Notifications []*Notification `json:"notifications"`
	UnreadCount   int             `json:"unread_count"`
}

type GenerateResponse struct {
	Created int `json:"created"`
}

// Dedup key builders. A key names one logical event instance; the unique
// index on (user_id, dedup_key) makes insertion the atomic dedup check.

func DeadlineDedupKey(challengeID int64, daysBefore int) string {
	return fmt.Sprintf("deadline:challenge:%d:%dd", challengeID, daysBefore)
}

func WelcomeNudgeDedupKey(userID uuid.UUID) string {
	return fmt.Sprintf("nudge:inactivity:%s:welcome", userID)
}

func InactivityNudgeDedupKey(userID uuid.UUID, day time.Time) string {
	return fmt.Sprintf("nudge:inactivity:%s:%s", userID, day.UTC().Format("2006-01-02"))
}

func StreakDedupKey(userID uuid.UUID, day time.Time) string {
	return fmt.Sprintf("streak:encourage:%s:%s", userID, day.UTC().Format("2006-01-02"))
}

// DeviceToken identifies a push target registered by a client app.
type DeviceToken struct {
	Token    string    `json:"token"`
	Platform string    `json:"platform"`
	AddedAt  time.Time `json:"added_at"`
	LastUsed time.Time `json:"last_used"`
}
