package student

import (
	"time"

	"studyPathAPI/internal/types/challenge"
)

// GoalRef is the lightweight goal context shown on the today surface.
type GoalRef struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
}

type SlotChallenge struct {
	ID          int64                             `json:"id"`
	Title       string                            `json:"title"`
	Description *string                           `json:"description"`
	Points      int                               `json:"points"`
	Category    *string                           `json:"category"`
	DueDate     *time.Time                        `json:"due_date"`
	Objectives  []challenge.ObjectiveWithProgress `json:"objectives"`
	HasNext     bool                              `json:"has_next"`
}

// TodayResponse is the canonical "Today's Task" payload: one primary slot,
// an optional second slot, and goal-level context.
type TodayResponse struct {
	CurrentGoal        *GoalRef                      `json:"current_goal"`
	PrimaryChallenge   *SlotChallenge                `json:"primary_challenge"`
	SecondaryChallenge *SlotChallenge                `json:"secondary_challenge"`
	ChallengeChain     []challenge.ChainEntry        `json:"challenge_chain"`
	AllChallenges      []challenge.ChallengeSummary  `json:"all_challenges"`
	Progress           challenge.GoalProgressStats   `json:"progress"`
	SecondSlotEnabled  bool                          `json:"second_slot_enabled"`
}

type AddSlotResponse struct {
	SecondSlotChallengeID int64          `json:"second_slot_challenge_id"`
	Challenge             *SlotChallenge `json:"challenge"`
	AlreadyEnabled        bool           `json:"already_enabled"`
}

type SwapResponse struct {
	NewChallengeID int64          `json:"new_challenge_id"`
	Challenge      *SlotChallenge `json:"challenge"`
}

type SnoozeResponse struct {
	SnoozedUntil          time.Time `json:"snoozed_until"`
	NewChallengeActivated bool      `json:"new_challenge_activated"`
	NewChallengeID        *int64    `json:"new_challenge_id"`
}
