package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyPathAPI/internal/types/goal"
)

// GoalService mirrors the challenge state machine for long-running goal arcs:
// steps roll up into goals, goals chain through goal_links only.
type GoalService struct {
	db *pgxpool.Pool
}

func NewGoalService(db *pgxpool.Pool) *GoalService {
	return &GoalService{db: db}
}

const goalColumns = `
	id, title, description, is_active, created_by, created_at, sort_order,
	start_date, expires_at, recurrence_days, recurrence_limit, recurrence_count`

func scanGoal(row pgx.Row) (*goal.Goal, error) {
	g := &goal.Goal{}
	err := row.Scan(
		&g.ID, &g.Title, &g.Description, &g.IsActive, &g.CreatedBy, &g.CreatedAt,
		&g.SortOrder, &g.StartDate, &g.ExpiresAt,
		&g.RecurrenceDays, &g.RecurrenceLimit, &g.RecurrenceCount,
	)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (s *GoalService) getGoal(ctx context.Context, q querier, goalID int64) (*goal.Goal, error) {
	g, err := scanGoal(q.QueryRow(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = $1`, goalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("goal %d: %w", goalID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load goal: %w", err)
	}
	return g, nil
}

// AvailableGoals applies the same eligibility predicate as challenges, minus
// the visibility flag which goals do not carry.
func (s *GoalService) AvailableGoals(ctx context.Context, userID uuid.UUID) ([]*goal.Goal, error) {
	return s.availableGoals(ctx, s.db, userID)
}

func (s *GoalService) availableGoals(ctx context.Context, q querier, userID uuid.UUID) ([]*goal.Goal, error) {
	now := time.Now().UTC()
	rows, err := q.Query(ctx, `
		SELECT `+goalColumns+`
		FROM goals g
		WHERE g.is_active = TRUE
		  AND NOT EXISTS (
			SELECT 1 FROM user_goal_progress p
			WHERE p.goal_id = g.id AND p.user_id = $1 AND p.status = 'COMPLETE')
		  AND NOT EXISTS (
			SELECT 1 FROM snoozed_goal_tasks sn
			WHERE sn.goal_id = g.id AND sn.user_id = $1 AND sn.snoozed_until > $2)
		  AND (g.start_date IS NULL OR g.start_date <= $2)
		  AND (g.expires_at IS NULL OR g.expires_at > $2)
		ORDER BY g.sort_order, g.id
	`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query available goals: %w", err)
	}
	defer rows.Close()

	var out []*goal.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// assignGoal upserts goal progress into IN_PROGRESS with the same
// idempotence guarantees as challenge assignment.
func (s *GoalService) assignGoal(ctx context.Context, q querier, userID uuid.UUID, goalID int64) (*goal.UserGoalProgress, error) {
	p := &goal.UserGoalProgress{}
	err := q.QueryRow(ctx, `
		INSERT INTO user_goal_progress (user_id, goal_id, status, started_at)
		VALUES ($1, $2, 'IN_PROGRESS', $3)
		ON CONFLICT (user_id, goal_id) DO UPDATE SET
			status = CASE WHEN user_goal_progress.status = 'COMPLETE'
				THEN user_goal_progress.status ELSE 'IN_PROGRESS' END,
			started_at = CASE WHEN user_goal_progress.status = 'COMPLETE'
				THEN user_goal_progress.started_at
				ELSE COALESCE(user_goal_progress.started_at, EXCLUDED.started_at) END
		RETURNING id, user_id, goal_id, status, started_at, completed_at
	`, userID, goalID, time.Now().UTC()).Scan(
		&p.ID, &p.UserID, &p.GoalID, &p.Status, &p.StartedAt, &p.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to assign goal %d: %w", goalID, err)
	}
	return p, nil
}

func (s *GoalService) stepsWithProgress(ctx context.Context, q querier, userID uuid.UUID, goalID int64) ([]goal.StepWithProgress, error) {
	rows, err := q.Query(ctx, `
		SELECT st.id, st.goal_id, st.title, st.description, st.points,
		       st.sort_order, st.is_required,
		       COALESCE(p.status, 'INCOMPLETE'), p.completed_at
		FROM goal_steps st
		LEFT JOIN user_goal_step_progress p
			ON p.step_id = st.id AND p.user_id = $1
		WHERE st.goal_id = $2
		ORDER BY st.sort_order, st.id
	`, userID, goalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	out := []goal.StepWithProgress{}
	for rows.Next() {
		var st goal.StepWithProgress
		if err := rows.Scan(&st.ID, &st.GoalID, &st.Title, &st.Description,
			&st.Points, &st.SortOrder, &st.IsRequired, &st.Status, &st.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// GetOrAssignActiveGoal returns the user's IN_PROGRESS goal with its steps,
// auto-assigning the first eligible goal when none is active.
func (s *GoalService) GetOrAssignActiveGoal(ctx context.Context, userID uuid.UUID) (*goal.ActiveGoalResponse, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	p := &goal.UserGoalProgress{}
	err = tx.QueryRow(ctx, `
		SELECT id, user_id, goal_id, status, started_at, completed_at
		FROM user_goal_progress
		WHERE user_id = $1 AND status = 'IN_PROGRESS'
		ORDER BY started_at NULLS LAST, id
		LIMIT 1
	`, userID).Scan(&p.ID, &p.UserID, &p.GoalID, &p.Status, &p.StartedAt, &p.CompletedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		available, aerr := s.availableGoals(ctx, tx, userID)
		if aerr != nil {
			return nil, aerr
		}
		if len(available) == 0 {
			return nil, fmt.Errorf("no active goals available: %w", ErrNotFound)
		}
		p, err = s.assignGoal(ctx, tx, userID, available[0].ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active goal progress: %w", err)
	}

	g, err := s.getGoal(ctx, tx, p.GoalID)
	if err != nil {
		return nil, err
	}

	steps, err := s.stepsWithProgress(ctx, tx, userID, g.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit goal assignment: %w", err)
	}

	return &goal.ActiveGoalResponse{
		ID:          g.ID,
		Title:       g.Title,
		Description: g.Description,
		Status:      p.Status,
		StartedAt:   p.StartedAt,
		CompletedAt: p.CompletedAt,
		Steps:       steps,
	}, nil
}

// allRequiredStepsComplete applies the required-children roll-up rule to goal
// steps. Zero required steps blocks completion, same policy as challenges.
func (s *GoalService) allRequiredStepsComplete(ctx context.Context, q querier, userID uuid.UUID, goalID int64) (bool, error) {
	var required, complete int
	err := q.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE st.is_required),
			COUNT(*) FILTER (WHERE st.is_required AND p.status = 'COMPLETE')
		FROM goal_steps st
		LEFT JOIN user_goal_step_progress p
			ON p.step_id = st.id AND p.user_id = $1
		WHERE st.goal_id = $2
	`, userID, goalID).Scan(&required, &complete)
	if err != nil {
		return false, fmt.Errorf("failed to check required steps: %w", err)
	}
	if required == 0 {
		return false, nil
	}
	return required == complete, nil
}

// CompleteStep marks a step COMPLETE; when the last required step lands, the
// goal completes and the chained successor goal (if any, and active) is
// started. Single transaction end to end.
func (s *GoalService) CompleteStep(ctx context.Context, userID uuid.UUID, stepID int64) (*goal.CompleteStepResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var goalID int64
	err = tx.QueryRow(ctx, "SELECT goal_id FROM goal_steps WHERE id = $1", stepID).Scan(&goalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("goal step %d: %w", stepID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load step: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO user_goal_step_progress (user_id, step_id, status, completed_at)
		VALUES ($1, $2, 'COMPLETE', $3)
		ON CONFLICT (user_id, step_id) DO UPDATE SET
			status = 'COMPLETE',
			completed_at = COALESCE(user_goal_step_progress.completed_at, EXCLUDED.completed_at)
	`, userID, stepID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to complete step %d: %w", stepID, err)
	}

	result := &goal.CompleteStepResult{}

	done, err := s.allRequiredStepsComplete(ctx, tx, userID, goalID)
	if err != nil {
		return nil, err
	}

	if done {
		result.GoalComplete = true
		now := time.Now().UTC()
		_, err = tx.Exec(ctx, `
			INSERT INTO user_goal_progress (user_id, goal_id, status, started_at, completed_at)
			VALUES ($1, $2, 'COMPLETE', $3, $3)
			ON CONFLICT (user_id, goal_id) DO UPDATE SET
				status = 'COMPLETE',
				completed_at = COALESCE(user_goal_progress.completed_at, EXCLUDED.completed_at)
		`, userID, goalID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to complete goal %d: %w", goalID, err)
		}

		nextID, err := s.activateNextGoal(ctx, tx, userID, goalID)
		if err != nil {
			return nil, err
		}
		if nextID != nil {
			result.NextGoalID = nextID
			result.NextActivated = true
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit step completion: %w", err)
	}
	return result, nil
}

// activateNextGoal follows the single ON_COMPLETE goal link. An inactive
// successor is left untouched.
func (s *GoalService) activateNextGoal(ctx context.Context, q querier, userID uuid.UUID, completedGoalID int64) (*int64, error) {
	var nextID int64
	err := q.QueryRow(ctx, `
		SELECT to_goal_id FROM goal_links
		WHERE from_goal_id = $1 AND condition = $2
	`, completedGoalID, goal.ConditionOnComplete).Scan(&nextID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve goal link: %w", err)
	}

	next, err := s.getGoal(ctx, q, nextID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !next.IsActive {
		return nil, nil
	}

	if _, err := s.assignGoal(ctx, q, userID, nextID); err != nil {
		return nil, err
	}
	return &nextID, nil
}

// SnoozeGoal hides a goal until now+days and reverts IN_PROGRESS back to
// NOT_STARTED, then starts the next eligible goal if one exists.
func (s *GoalService) SnoozeGoal(ctx context.Context, userID uuid.UUID, goalID int64, days int) (*goal.UserGoalProgress, time.Time, error) {
	if days < minSnoozeDays || days > maxSnoozeDays {
		return nil, time.Time{}, fmt.Errorf("snooze days must be between %d and %d: %w", minSnoozeDays, maxSnoozeDays, ErrInvalidState)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := s.getGoal(ctx, tx, goalID); err != nil {
		return nil, time.Time{}, err
	}

	now := time.Now().UTC()
	snoozedUntil := now.AddDate(0, 0, days)

	_, err = tx.Exec(ctx, `
		INSERT INTO snoozed_goal_tasks (user_id, goal_id, snoozed_at, snoozed_until)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, goal_id) DO UPDATE SET
			snoozed_at = EXCLUDED.snoozed_at,
			snoozed_until = EXCLUDED.snoozed_until
	`, userID, goalID, now, snoozedUntil)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to upsert goal snooze: %w", err)
	}

	reverted, err := tx.Exec(ctx, `
		UPDATE user_goal_progress
		SET status = 'NOT_STARTED', started_at = NULL
		WHERE user_id = $1 AND goal_id = $2 AND status = 'IN_PROGRESS'
	`, userID, goalID)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to revert goal progress: %w", err)
	}

	var replacement *goal.UserGoalProgress
	if reverted.RowsAffected() > 0 {
		available, err := s.availableGoals(ctx, tx, userID)
		if err != nil {
			return nil, time.Time{}, err
		}
		if len(available) > 0 {
			replacement, err = s.assignGoal(ctx, tx, userID, available[0].ID)
			if err != nil {
				return nil, time.Time{}, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to commit goal snooze: %w", err)
	}
	return replacement, snoozedUntil, nil
}
