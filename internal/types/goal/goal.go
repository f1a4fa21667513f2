package goal

import (
	"time"

	"github.com/google/uuid"
)

type GoalStatus string
type StepStatus string

const (
	StatusNotStarted GoalStatus = "NOT_STARTED"
	StatusInProgress GoalStatus = "IN_PROGRESS"
	StatusComplete   GoalStatus = "COMPLETE"

	StepIncomplete StepStatus = "INCOMPLETE"
	StepComplete   StepStatus = "COMPLETE"
)

const ConditionOnComplete = "ON_COMPLETE"

// Goal is a long-running arc of ordered steps. Goals chain only through
// goal_links; there is no next pointer shortcut like challenges have.
type Goal struct {
	ID              int64      `json:"id" db:"id"`
	Title           string     `json:"title" db:"title"`
	Description     *string    `json:"description" db:"description"`
	IsActive        bool       `json:"is_active" db:"is_active"`
	CreatedBy       *uuid.UUID `json:"created_by" db:"created_by"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	SortOrder       int        `json:"sort_order" db:"sort_order"`
	StartDate       *time.Time `json:"start_date" db:"start_date"`
	ExpiresAt       *time.Time `json:"expires_at" db:"expires_at"`
	RecurrenceDays  *int       `json:"recurrence_days" db:"recurrence_days"`
	RecurrenceLimit *int       `json:"recurrence_limit" db:"recurrence_limit"`
	RecurrenceCount int        `json:"recurrence_count" db:"recurrence_count"`
}

type GoalStep struct {
	ID          int64   `json:"id" db:"id"`
	GoalID      int64   `json:"goal_id" db:"goal_id"`
	Title       string  `json:"title" db:"title"`
	Description *string `json:"description" db:"description"`
	Points      int     `json:"points" db:"points"`
	SortOrder   int     `json:"sort_order" db:"sort_order"`
	IsRequired  bool    `json:"is_required" db:"is_required"`
}

type GoalLink struct {
	ID         int64  `json:"id" db:"id"`
	FromGoalID int64  `json:"from_goal_id" db:"from_goal_id"`
	ToGoalID   int64  `json:"to_goal_id" db:"to_goal_id"`
	Condition  string `json:"condition" db:"condition"`
}

type UserGoalProgress struct {
	ID          int64      `json:"id" db:"id"`
	UserID      uuid.UUID  `json:"user_id" db:"user_id"`
	GoalID      int64      `json:"goal_id" db:"goal_id"`
	Status      GoalStatus `json:"status" db:"status"`
	StartedAt   *time.Time `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
}

type UserGoalStepProgress struct {
	ID          int64      `json:"id" db:"id"`
	UserID      uuid.UUID  `json:"user_id" db:"user_id"`
	StepID      int64      `json:"step_id" db:"step_id"`
	Status      StepStatus `json:"status" db:"status"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
}

type SnoozedGoalTask struct {
	ID           int64     `json:"id" db:"id"`
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	GoalID       int64     `json:"goal_id" db:"goal_id"`
	SnoozedAt    time.Time `json:"snoozed_at" db:"snoozed_at"`
	SnoozedUntil time.Time `json:"snoozed_until" db:"snoozed_until"`
}

type StepWithProgress struct {
	ID          int64      `json:"id"`
	GoalID      int64      `json:"goal_id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Points      int        `json:"points"`
	SortOrder   int        `json:"sort_order"`
	IsRequired  bool       `json:"is_required"`
	Status      StepStatus `json:"status"`
	CompletedAt *time.Time `json:"completed_at"`
}

type ActiveGoalResponse struct {
	ID          int64              `json:"id"`
	Title       string             `json:"title"`
	Description *string            `json:"description"`
	Status      GoalStatus         `json:"status"`
	StartedAt   *time.Time         `json:"started_at"`
	CompletedAt *time.Time         `json:"completed_at"`
	Steps       []StepWithProgress `json:"steps"`
}

type CompleteStepResult struct {
	GoalComplete  bool   `json:"goal_complete"`
	NextGoalID    *int64 `json:"next_goal_id"`
	NextActivated bool   `json:"next_goal_activated"`
}
