package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyPathAPI/internal/types/challenge"
)

// ChallengeService owns the challenge progression state machine: assignment,
// objective completion with required-children roll-up, and chain activation.
type ChallengeService struct {
	db *pgxpool.Pool
}

func NewChallengeService(db *pgxpool.Pool) *ChallengeService {
	return &ChallengeService{db: db}
}

const challengeColumns = `
	id, title, description, is_active, created_by, created_at, goal_id,
	next_challenge_id, sort_order, visible_to_students, points, category,
	due_date, start_date, expires_at, recurrence_days, recurrence_limit,
	recurrence_count, original_challenge_id`

func scanChallenge(row pgx.Row) (*challenge.Challenge, error) {
	c := &challenge.Challenge{}
	err := row.Scan(
		&c.ID, &c.Title, &c.Description, &c.IsActive, &c.CreatedBy, &c.CreatedAt,
		&c.GoalID, &c.NextChallengeID, &c.SortOrder, &c.VisibleToStudents,
		&c.Points, &c.Category, &c.DueDate, &c.StartDate, &c.ExpiresAt,
		&c.RecurrenceDays, &c.RecurrenceLimit, &c.RecurrenceCount, &c.OriginalChallengeID,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetChallenge loads a single challenge by id.
func (s *ChallengeService) GetChallenge(ctx context.Context, challengeID int64) (*challenge.Challenge, error) {
	return s.getChallenge(ctx, s.db, challengeID)
}

func (s *ChallengeService) getChallenge(ctx context.Context, q querier, challengeID int64) (*challenge.Challenge, error) {
	c, err := scanChallenge(q.QueryRow(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE id = $1`, challengeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("challenge %d: %w", challengeID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}
	return c, nil
}

// AvailableChallenges returns challenges currently assignable to the user:
// active, visible, not completed, not snoozed, inside the scheduling window.
// Ordered by (sort_order, id) so the selection is deterministic. An empty
// result is a valid outcome, not an error. Pure read - callers persist any
// assignment themselves.
func (s *ChallengeService) AvailableChallenges(ctx context.Context, userID uuid.UUID, excludeIDs []int64) ([]*challenge.Challenge, error) {
	return s.availableChallenges(ctx, s.db, userID, excludeIDs)
}

func (s *ChallengeService) availableChallenges(ctx context.Context, q querier, userID uuid.UUID, excludeIDs []int64) ([]*challenge.Challenge, error) {
	if excludeIDs == nil {
		excludeIDs = []int64{}
	}
	now := time.Now().UTC()

	query := `
		SELECT ` + challengeColumns + `
		FROM challenges c
		WHERE c.is_active = TRUE
		  AND c.visible_to_students = TRUE
		  AND NOT (c.id = ANY($3))
		  AND NOT EXISTS (
			SELECT 1 FROM user_challenge_progress p
			WHERE p.challenge_id = c.id AND p.user_id = $1 AND p.status = 'COMPLETE')
		  AND NOT EXISTS (
			SELECT 1 FROM snoozed_challenges sn
			WHERE sn.challenge_id = c.id AND sn.user_id = $1 AND sn.snoozed_until > $2)
		  AND (c.start_date IS NULL OR c.start_date <= $2)
		  AND (c.expires_at IS NULL OR c.expires_at > $2)
		ORDER BY c.sort_order, c.id
	`

	rows, err := q.Query(ctx, query, userID, now, excludeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query available challenges: %w", err)
	}
	defer rows.Close()

	var out []*challenge.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// assignChallenge is the idempotent IN_PROGRESS transition. A COMPLETE row is
// never regressed; started_at is stamped once and survives resume cycles.
// The upsert makes concurrent assigns collapse onto one row instead of racing
// a check-then-insert.
func (s *ChallengeService) assignChallenge(ctx context.Context, q querier, userID uuid.UUID, challengeID int64) (*challenge.UserChallengeProgress, error) {
	p := &challenge.UserChallengeProgress{}
	err := q.QueryRow(ctx, `
		INSERT INTO user_challenge_progress (user_id, challenge_id, status, started_at)
		VALUES ($1, $2, 'IN_PROGRESS', $3)
		ON CONFLICT (user_id, challenge_id) DO UPDATE SET
			status = CASE WHEN user_challenge_progress.status = 'COMPLETE'
				THEN user_challenge_progress.status ELSE 'IN_PROGRESS' END,
			started_at = CASE WHEN user_challenge_progress.status = 'COMPLETE'
				THEN user_challenge_progress.started_at
				ELSE COALESCE(user_challenge_progress.started_at, EXCLUDED.started_at) END
		RETURNING id, user_id, challenge_id, status, started_at, completed_at
	`, userID, challengeID, time.Now().UTC()).Scan(
		&p.ID, &p.UserID, &p.ChallengeID, &p.Status, &p.StartedAt, &p.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to assign challenge %d: %w", challengeID, err)
	}
	return p, nil
}

// allRequiredObjectivesComplete reports whether every required objective of
// the challenge has a COMPLETE progress row for the user. A challenge with
// zero required objectives is treated as not completable by this rule; that
// matches the product's current policy and is deliberately not "fixed" here.
func (s *ChallengeService) allRequiredObjectivesComplete(ctx context.Context, q querier, userID uuid.UUID, challengeID int64) (bool, error) {
	var required, complete int
	err := q.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE o.is_required),
			COUNT(*) FILTER (WHERE o.is_required AND p.status = 'COMPLETE')
		FROM objectives o
		LEFT JOIN user_objective_progress p
			ON p.objective_id = o.id AND p.user_id = $1
		WHERE o.challenge_id = $2
	`, userID, challengeID).Scan(&required, &complete)
	if err != nil {
		return false, fmt.Errorf("failed to check required objectives: %w", err)
	}
	if required == 0 {
		return false, nil
	}
	return required == complete, nil
}

// CompleteObjective marks an objective COMPLETE and, when that was the last
// required objective, completes the parent challenge and activates its
// successor. The whole transition is one transaction: either all writes
// commit or none do.
func (s *ChallengeService) CompleteObjective(ctx context.Context, userID uuid.UUID, objectiveID int64) (*challenge.CompleteObjectiveResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var challengeID int64
	err = tx.QueryRow(ctx, "SELECT challenge_id FROM objectives WHERE id = $1", objectiveID).Scan(&challengeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("objective %d: %w", objectiveID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load objective: %w", err)
	}

	// Idempotent: re-completing never errors and never re-stamps the timestamp.
	_, err = tx.Exec(ctx, `
		INSERT INTO user_objective_progress (user_id, objective_id, status, completed_at)
		VALUES ($1, $2, 'COMPLETE', $3)
		ON CONFLICT (user_id, objective_id) DO UPDATE SET
			status = 'COMPLETE',
			completed_at = COALESCE(user_objective_progress.completed_at, EXCLUDED.completed_at)
	`, userID, objectiveID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to complete objective %d: %w", objectiveID, err)
	}

	result := &challenge.CompleteObjectiveResult{}

	done, err := s.allRequiredObjectivesComplete(ctx, tx, userID, challengeID)
	if err != nil {
		return nil, err
	}

	if done {
		result.ParentComplete = true
		now := time.Now().UTC()
		_, err = tx.Exec(ctx, `
			INSERT INTO user_challenge_progress (user_id, challenge_id, status, started_at, completed_at)
			VALUES ($1, $2, 'COMPLETE', $3, $3)
			ON CONFLICT (user_id, challenge_id) DO UPDATE SET
				status = 'COMPLETE',
				completed_at = COALESCE(user_challenge_progress.completed_at, EXCLUDED.completed_at)
		`, userID, challengeID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to complete challenge %d: %w", challengeID, err)
		}

		successorID, err := s.activateSuccessor(ctx, tx, userID, challengeID)
		if err != nil {
			return nil, err
		}
		if successorID != nil {
			result.SuccessorActivated = true
			result.SuccessorID = successorID
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit objective completion: %w", err)
	}
	return result, nil
}

// activateSuccessor resolves the completed challenge's successor and assigns
// it. The next_challenge_id pointer wins; otherwise the single ON_COMPLETE
// link is followed. assignChallenge is idempotent, so an already started or
// completed successor is a harmless no-op.
func (s *ChallengeService) activateSuccessor(ctx context.Context, q querier, userID uuid.UUID, completedID int64) (*int64, error) {
	var nextID *int64
	err := q.QueryRow(ctx, "SELECT next_challenge_id FROM challenges WHERE id = $1", completedID).Scan(&nextID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("challenge %d: %w", completedID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load next pointer: %w", err)
	}

	if nextID == nil {
		var linked int64
		err = q.QueryRow(ctx, `
			SELECT to_challenge_id FROM challenge_links
			WHERE from_challenge_id = $1 AND condition = $2
		`, completedID, challenge.ConditionOnComplete).Scan(&linked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil // end of chain
			}
			return nil, fmt.Errorf("failed to resolve challenge link: %w", err)
		}
		nextID = &linked
	}

	if _, err := s.assignChallenge(ctx, q, userID, *nextID); err != nil {
		return nil, err
	}
	return nextID, nil
}

// CompleteChallenge force-completes a challenge directly (used by the legacy
// student surface) and activates its successor.
func (s *ChallengeService) CompleteChallenge(ctx context.Context, userID uuid.UUID, challengeID int64) (*challenge.CompleteObjectiveResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := s.getChallenge(ctx, tx, challengeID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
		INSERT INTO user_challenge_progress (user_id, challenge_id, status, started_at, completed_at)
		VALUES ($1, $2, 'COMPLETE', $3, $3)
		ON CONFLICT (user_id, challenge_id) DO UPDATE SET
			status = 'COMPLETE',
			completed_at = COALESCE(user_challenge_progress.completed_at, EXCLUDED.completed_at)
	`, userID, challengeID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to complete challenge %d: %w", challengeID, err)
	}

	result := &challenge.CompleteObjectiveResult{ParentComplete: true}
	successorID, err := s.activateSuccessor(ctx, tx, userID, challengeID)
	if err != nil {
		return nil, err
	}
	if successorID != nil {
		result.SuccessorActivated = true
		result.SuccessorID = successorID
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit challenge completion: %w", err)
	}
	return result, nil
}

// GetOrAssignActive returns the user's IN_PROGRESS challenge, assigning the
// first available one when none is active. Returns ErrNotFound when nothing
// is assignable ("nothing to do today" on the legacy surface).
func (s *ChallengeService) GetOrAssignActive(ctx context.Context, userID uuid.UUID) (*challenge.ActiveChallengeResponse, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	c, p, err := s.getOrAssignActive(ctx, tx, userID, nil)
	if err != nil {
		return nil, err
	}

	objectives, err := s.objectivesWithProgress(ctx, tx, userID, c.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit assignment: %w", err)
	}

	return &challenge.ActiveChallengeResponse{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		Points:      c.Points,
		Category:    c.Category,
		DueDate:     c.DueDate,
		Objectives:  objectives,
		HasNext:     c.NextChallengeID != nil,
		Status:      p.Status,
		StartedAt:   p.StartedAt,
		CompletedAt: p.CompletedAt,
	}, nil
}

// getOrAssignActive finds the current IN_PROGRESS row, excluding any pinned
// second-slot challenge, or assigns the first eligible candidate.
func (s *ChallengeService) getOrAssignActive(ctx context.Context, q querier, userID uuid.UUID, excludeIDs []int64) (*challenge.Challenge, *challenge.UserChallengeProgress, error) {
	p := &challenge.UserChallengeProgress{}
	if excludeIDs == nil {
		excludeIDs = []int64{}
	}
	err := q.QueryRow(ctx, `
		SELECT id, user_id, challenge_id, status, started_at, completed_at
		FROM user_challenge_progress
		WHERE user_id = $1 AND status = 'IN_PROGRESS' AND NOT (challenge_id = ANY($2))
		ORDER BY started_at NULLS LAST, id
		LIMIT 1
	`, userID, excludeIDs).Scan(&p.ID, &p.UserID, &p.ChallengeID, &p.Status, &p.StartedAt, &p.CompletedAt)

	switch {
	case err == nil:
		c, err := s.getChallenge(ctx, q, p.ChallengeID)
		if err != nil {
			return nil, nil, err
		}
		return c, p, nil
	case errors.Is(err, pgx.ErrNoRows):
		// fall through to auto-assignment
	default:
		return nil, nil, fmt.Errorf("failed to load active progress: %w", err)
	}

	available, err := s.availableChallenges(ctx, q, userID, excludeIDs)
	if err != nil {
		return nil, nil, err
	}
	if len(available) == 0 {
		return nil, nil, fmt.Errorf("no active challenges available: %w", ErrNotFound)
	}

	first := available[0]
	p, err = s.assignChallenge(ctx, q, userID, first.ID)
	if err != nil {
		return nil, nil, err
	}
	return first, p, nil
}

func (s *ChallengeService) objectivesWithProgress(ctx context.Context, q querier, userID uuid.UUID, challengeID int64) ([]challenge.ObjectiveWithProgress, error) {
	rows, err := q.Query(ctx, `
		SELECT o.id, o.challenge_id, o.title, o.description, o.points,
		       o.sort_order, o.is_required,
		       COALESCE(p.status, 'INCOMPLETE'), p.completed_at
		FROM objectives o
		LEFT JOIN user_objective_progress p
			ON p.objective_id = o.id AND p.user_id = $1
		WHERE o.challenge_id = $2
		ORDER BY o.sort_order, o.id
	`, userID, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query objectives: %w", err)
	}
	defer rows.Close()

	out := []challenge.ObjectiveWithProgress{}
	for rows.Next() {
		var o challenge.ObjectiveWithProgress
		if err := rows.Scan(&o.ID, &o.ChallengeID, &o.Title, &o.Description,
			&o.Points, &o.SortOrder, &o.IsRequired, &o.Status, &o.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan objective: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// PreviewChain walks next_challenge_id pointers up to maxDepth hops. Depth is
// the only safety net: a cyclic pointer configuration is traversed until the
// bound, not detected.
func (s *ChallengeService) PreviewChain(ctx context.Context, challengeID int64, maxDepth int) ([]challenge.ChainEntry, error) {
	if maxDepth <= 0 {
		maxDepth = 5
	}

	chain := []challenge.ChainEntry{}
	current, err := s.getChallenge(ctx, s.db, challengeID)
	if err != nil {
		return nil, err
	}

	for depth := 0; depth < maxDepth && current.NextChallengeID != nil; depth++ {
		next, err := s.getChallenge(ctx, s.db, *current.NextChallengeID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				break // dangling pointer ends the preview
			}
			return nil, err
		}
		chain = append(chain, challenge.ChainEntry{
			ID:       next.ID,
			Title:    next.Title,
			Points:   next.Points,
			Category: next.Category,
		})
		current = next
	}
	return chain, nil
}
