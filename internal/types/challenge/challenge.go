package challenge

import (
	"time"

	"github.com/google/uuid"
)

type ChallengeStatus string
type ObjectiveStatus string

const (
	StatusNotStarted ChallengeStatus = "NOT_STARTED"
	StatusInProgress ChallengeStatus = "IN_PROGRESS"
	StatusComplete   ChallengeStatus = "COMPLETE"

	ObjectiveIncomplete ObjectiveStatus = "INCOMPLETE"
	ObjectiveComplete   ObjectiveStatus = "COMPLETE"
)

// ConditionOnComplete is the only link condition currently in use. The
// (from_challenge_id, condition) pair is unique, so at most one successor
// exists per condition.
const ConditionOnComplete = "ON_COMPLETE"

type Challenge struct {
	ID                  int64      `json:"id" db:"id"`
	Title               string     `json:"title" db:"title"`
	Description         *string    `json:"description" db:"description"`
	IsActive            bool       `json:"is_active" db:"is_active"`
	CreatedBy           *uuid.UUID `json:"created_by" db:"created_by"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	GoalID              *int64     `json:"goal_id" db:"goal_id"`
	NextChallengeID     *int64     `json:"next_challenge_id" db:"next_challenge_id"`
	SortOrder           int        `json:"sort_order" db:"sort_order"`
	VisibleToStudents   bool       `json:"visible_to_students" db:"visible_to_students"`
	Points              int        `json:"points" db:"points"`
	Category            *string    `json:"category" db:"category"`
	DueDate             *time.Time `json:"due_date" db:"due_date"`
	StartDate           *time.Time `json:"start_date" db:"start_date"`
	ExpiresAt           *time.Time `json:"expires_at" db:"expires_at"`
	RecurrenceDays      *int       `json:"recurrence_days" db:"recurrence_days"`
	RecurrenceLimit     *int       `json:"recurrence_limit" db:"recurrence_limit"`
	RecurrenceCount     int        `json:"recurrence_count" db:"recurrence_count"`
	OriginalChallengeID *int64     `json:"original_challenge_id" db:"original_challenge_id"`
}

type Objective struct {
	ID          int64   `json:"id" db:"id"`
	ChallengeID int64   `json:"challenge_id" db:"challenge_id"`
	Title       string  `json:"title" db:"title"`
	Description *string `json:"description" db:"description"`
	Points      int     `json:"points" db:"points"`
	SortOrder   int     `json:"sort_order" db:"sort_order"`
	IsRequired  bool    `json:"is_required" db:"is_required"`
}

type ChallengeLink struct {
	ID              int64  `json:"id" db:"id"`
	FromChallengeID int64  `json:"from_challenge_id" db:"from_challenge_id"`
	ToChallengeID   int64  `json:"to_challenge_id" db:"to_challenge_id"`
	Condition       string `json:"condition" db:"condition"`
}

type UserChallengeProgress struct {
	ID          int64           `json:"id" db:"id"`
	UserID      uuid.UUID       `json:"user_id" db:"user_id"`
	ChallengeID int64           `json:"challenge_id" db:"challenge_id"`
	Status      ChallengeStatus `json:"status" db:"status"`
	StartedAt   *time.Time      `json:"started_at" db:"started_at"`
	CompletedAt *time.Time      `json:"completed_at" db:"completed_at"`
}

type UserObjectiveProgress struct {
	ID          int64           `json:"id" db:"id"`
	UserID      uuid.UUID       `json:"user_id" db:"user_id"`
	ObjectiveID int64           `json:"objective_id" db:"objective_id"`
	Status      ObjectiveStatus `json:"status" db:"status"`
	CompletedAt *time.Time      `json:"completed_at" db:"completed_at"`
}

// UserChallengePreferences is the single source of truth for the second slot.
type UserChallengePreferences struct {
	ID                    int64     `json:"id" db:"id"`
	UserID                uuid.UUID `json:"user_id" db:"user_id"`
	SecondSlotEnabled     bool      `json:"second_slot_enabled" db:"second_slot_enabled"`
	SecondSlotChallengeID *int64    `json:"second_slot_challenge_id" db:"second_slot_challenge_id"`
	CreatedAt             time.Time `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time `json:"updated_at" db:"updated_at"`
}

type SnoozedChallenge struct {
	ID           int64     `json:"id" db:"id"`
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	ChallengeID  int64     `json:"challenge_id" db:"challenge_id"`
	SnoozedAt    time.Time `json:"snoozed_at" db:"snoozed_at"`
	SnoozedUntil time.Time `json:"snoozed_until" db:"snoozed_until"`
	Reason       *string   `json:"reason,omitempty" db:"reason"`
}

// ObjectiveWithProgress merges an objective with the caller's progress row
// (INCOMPLETE when no row exists yet).
type ObjectiveWithProgress struct {
	ID          int64           `json:"id"`
	ChallengeID int64           `json:"challenge_id"`
	Title       string          `json:"title"`
	Description *string         `json:"description"`
	Points      int             `json:"points"`
	SortOrder   int             `json:"sort_order"`
	IsRequired  bool            `json:"is_required"`
	Status      ObjectiveStatus `json:"status"`
	CompletedAt *time.Time      `json:"completed_at"`
}

type ActiveChallengeResponse struct {
	ID          int64                   `json:"id"`
	Title       string                  `json:"title"`
	Description *string                 `json:"description"`
	Points      int                     `json:"points"`
	Category    *string                 `json:"category"`
	DueDate     *time.Time              `json:"due_date"`
	Objectives  []ObjectiveWithProgress `json:"objectives"`
	HasNext     bool                    `json:"has_next"`
	Status      ChallengeStatus         `json:"status"`
	StartedAt   *time.Time              `json:"started_at"`
	CompletedAt *time.Time              `json:"completed_at"`
}

// ChainEntry is one hop of the next_challenge_id preview.
type ChainEntry struct {
	ID       int64   `json:"id"`
	Title    string  `json:"title"`
	Points   int     `json:"points"`
	Category *string `json:"category"`
}

type ChallengeSummary struct {
	ID        int64           `json:"id"`
	Title     string          `json:"title"`
	Points    int             `json:"points"`
	SortOrder int             `json:"sort_order"`
	Status    ChallengeStatus `json:"status"`
	IsCurrent bool            `json:"is_current"`
}

type GoalProgressStats struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Percentage int `json:"percentage"`
}

type CompleteObjectiveResult struct {
	ParentComplete     bool   `json:"parent_complete"`
	SuccessorActivated bool   `json:"successor_activated"`
	SuccessorID        *int64 `json:"successor_id"`
}

type SwapRequest struct {
	Slot           int   `json:"slot"`
	NewChallengeID int64 `json:"new_challenge_id"`
}

type SnoozeRequest struct {
	ChallengeID int64 `json:"challenge_id"`
	Days        int   `json:"days"`
}
