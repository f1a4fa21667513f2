package admin

import "time"

// Update structs use pointer fields: nil means leave unchanged, a set
// pointer means write the value. Clearing a nullable column goes through the
// explicit Clear* flags.

type CreateChallengeRequest struct {
	Title             string     `json:"title"`
	Description       *string    `json:"description"`
	GoalID            *int64     `json:"goal_id"`
	NextChallengeID   *int64     `json:"next_challenge_id"`
	SortOrder         int        `json:"sort_order"`
	VisibleToStudents *bool      `json:"visible_to_students"`
	IsActive          *bool      `json:"is_active"`
	Points            int        `json:"points"`
	Category          *string    `json:"category"`
	DueDate           *time.Time `json:"due_date"`
	StartDate         *time.Time `json:"start_date"`
	ExpiresAt         *time.Time `json:"expires_at"`
	RecurrenceDays    *int       `json:"recurrence_days"`
	RecurrenceLimit   *int       `json:"recurrence_limit"`
}

type UpdateChallengeRequest struct {
	Title             *string    `json:"title"`
	Description       *string    `json:"description"`
	GoalID            *int64     `json:"goal_id"`
	NextChallengeID   *int64     `json:"next_challenge_id"`
	ClearNext         bool       `json:"clear_next"`
	SortOrder         *int       `json:"sort_order"`
	VisibleToStudents *bool      `json:"visible_to_students"`
	IsActive          *bool      `json:"is_active"`
	Points            *int       `json:"points"`
	Category          *string    `json:"category"`
	DueDate           *time.Time `json:"due_date"`
	ClearDueDate      bool       `json:"clear_due_date"`
	StartDate         *time.Time `json:"start_date"`
	ExpiresAt         *time.Time `json:"expires_at"`
	RecurrenceDays    *int       `json:"recurrence_days"`
	RecurrenceLimit   *int       `json:"recurrence_limit"`
}

type CreateObjectiveRequest struct {
	ChallengeID int64   `json:"challenge_id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Points      int     `json:"points"`
	SortOrder   int     `json:"sort_order"`
	IsRequired  *bool   `json:"is_required"`
}

type UpdateObjectiveRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Points      *int    `json:"points"`
	SortOrder   *int    `json:"sort_order"`
	IsRequired  *bool   `json:"is_required"`
}

type CreateLinkRequest struct {
	FromID    int64  `json:"from_id"`
	ToID      int64  `json:"to_id"`
	Condition string `json:"condition"`
}

type CreateGoalRequest struct {
	Title           string     `json:"title"`
	Description     *string    `json:"description"`
	IsActive        *bool      `json:"is_active"`
	SortOrder       int        `json:"sort_order"`
	StartDate       *time.Time `json:"start_date"`
	ExpiresAt       *time.Time `json:"expires_at"`
	RecurrenceDays  *int       `json:"recurrence_days"`
	RecurrenceLimit *int       `json:"recurrence_limit"`
}

type UpdateGoalRequest struct {
	Title           *string    `json:"title"`
	Description     *string    `json:"description"`
	IsActive        *bool      `json:"is_active"`
	SortOrder       *int       `json:"sort_order"`
	StartDate       *time.Time `json:"start_date"`
	ExpiresAt       *time.Time `json:"expires_at"`
	RecurrenceDays  *int       `json:"recurrence_days"`
	RecurrenceLimit *int       `json:"recurrence_limit"`
}

type CreateGoalStepRequest struct {
	GoalID      int64   `json:"goal_id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Points      int     `json:"points"`
	SortOrder   int     `json:"sort_order"`
	IsRequired  *bool   `json:"is_required"`
}

type UpdateGoalStepRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Points      *int    `json:"points"`
	SortOrder   *int    `json:"sort_order"`
	IsRequired  *bool   `json:"is_required"`
}
