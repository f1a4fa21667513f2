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
	"studyPathAPI/internal/types/student"
)

// Slot identifiers for the multi-slot selector.
const (
	SlotPrimary   = 1
	SlotSecondary = 2
)

const (
	minSnoozeDays = 1
	maxSnoozeDays = 30
)

// TodayService is the canonical multi-slot selector: it maintains 0-2
// concurrently IN_PROGRESS challenges per user (primary plus an optional
// second slot pinned in user_challenge_preferences) and re-runs the
// eligibility filter after every mutation.
type TodayService struct {
	db         *pgxpool.Pool
	challenges *ChallengeService
}

func NewTodayService(db *pgxpool.Pool, challenges *ChallengeService) *TodayService {
	return &TodayService{db: db, challenges: challenges}
}

func (s *TodayService) getOrCreatePrefs(ctx context.Context, q querier, userID uuid.UUID) (*challenge.UserChallengePreferences, error) {
	_, err := q.Exec(ctx, `
		INSERT INTO user_challenge_preferences (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure preferences: %w", err)
	}

	p := &challenge.UserChallengePreferences{}
	err = q.QueryRow(ctx, `
		SELECT id, user_id, second_slot_enabled, second_slot_challenge_id, created_at, updated_at
		FROM user_challenge_preferences WHERE user_id = $1
	`, userID).Scan(&p.ID, &p.UserID, &p.SecondSlotEnabled, &p.SecondSlotChallengeID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	return p, nil
}

func (s *TodayService) slotChallenge(ctx context.Context, q querier, userID uuid.UUID, c *challenge.Challenge) (*student.SlotChallenge, error) {
	objectives, err := s.challenges.objectivesWithProgress(ctx, q, userID, c.ID)
	if err != nil {
		return nil, err
	}
	return &student.SlotChallenge{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		Points:      c.Points,
		Category:    c.Category,
		DueDate:     c.DueDate,
		Objectives:  objectives,
		HasNext:     c.NextChallengeID != nil,
	}, nil
}

// Today builds the student's dashboard payload, auto-assigning the primary
// slot when nothing is in progress.
func (s *TodayService) Today(ctx context.Context, userID uuid.UUID) (*student.TodayResponse, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	prefs, err := s.getOrCreatePrefs(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	resp := &student.TodayResponse{
		ChallengeChain:    []challenge.ChainEntry{},
		AllChallenges:     []challenge.ChallengeSummary{},
		SecondSlotEnabled: prefs.SecondSlotEnabled,
	}

	var exclude []int64
	if prefs.SecondSlotEnabled && prefs.SecondSlotChallengeID != nil {
		exclude = append(exclude, *prefs.SecondSlotChallengeID)
	}

	primary, _, err := s.challenges.getOrAssignActive(ctx, tx, userID, exclude)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Nothing to do today is a valid state, not an error.
			if err := tx.Commit(ctx); err != nil {
				return nil, fmt.Errorf("failed to commit: %w", err)
			}
			return resp, nil
		}
		return nil, err
	}

	resp.PrimaryChallenge, err = s.slotChallenge(ctx, tx, userID, primary)
	if err != nil {
		return nil, err
	}

	if primary.GoalID != nil {
		goalRef, all, stats, err := s.goalContext(ctx, tx, userID, *primary.GoalID, primary.ID)
		if err != nil {
			return nil, err
		}
		resp.CurrentGoal = goalRef
		resp.AllChallenges = all
		resp.Progress = stats
	}

	chain, err := s.previewChainTx(ctx, tx, primary, 5)
	if err != nil {
		return nil, err
	}
	resp.ChallengeChain = chain

	if prefs.SecondSlotEnabled && prefs.SecondSlotChallengeID != nil {
		sec, err := s.refreshSecondSlot(ctx, tx, userID, prefs)
		if err != nil {
			return nil, err
		}
		if sec != nil {
			resp.SecondaryChallenge, err = s.slotChallenge(ctx, tx, userID, sec)
			if err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit today payload: %w", err)
	}
	return resp, nil
}

// refreshSecondSlot returns the challenge pinned to the second slot, replacing
// the pin once its progress reaches COMPLETE (or the challenge is gone) so the
// slot never renders a finished challenge. Returns nil with the pin cleared
// when the pool has no replacement.
func (s *TodayService) refreshSecondSlot(ctx context.Context, q querier, userID uuid.UUID, prefs *challenge.UserChallengePreferences) (*challenge.Challenge, error) {
	pinned := *prefs.SecondSlotChallengeID

	var complete bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_challenge_progress
			WHERE user_id = $1 AND challenge_id = $2 AND status = 'COMPLETE')
	`, userID, pinned).Scan(&complete)
	if err != nil {
		return nil, fmt.Errorf("failed to check second slot progress: %w", err)
	}
	if !complete {
		sec, err := s.challenges.getChallenge(ctx, q, pinned)
		if err == nil {
			return sec, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	occupied, err := s.occupiedIDs(ctx, q, userID, prefs, pinned)
	if err != nil {
		return nil, err
	}
	available, err := s.challenges.availableChallenges(ctx, q, userID, occupied)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if len(available) == 0 {
		_, err = q.Exec(ctx, `
			UPDATE user_challenge_preferences
			SET second_slot_challenge_id = NULL, updated_at = $2
			WHERE user_id = $1
		`, userID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to clear second slot: %w", err)
		}
		prefs.SecondSlotChallengeID = nil
		return nil, nil
	}

	next := available[0]
	if _, err := s.challenges.assignChallenge(ctx, q, userID, next.ID); err != nil {
		return nil, err
	}
	_, err = q.Exec(ctx, `
		UPDATE user_challenge_preferences
		SET second_slot_challenge_id = $2, updated_at = $3
		WHERE user_id = $1
	`, userID, next.ID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to repin second slot: %w", err)
	}
	prefs.SecondSlotChallengeID = &next.ID
	return next, nil
}

func (s *TodayService) previewChainTx(ctx context.Context, q querier, from *challenge.Challenge, maxDepth int) ([]challenge.ChainEntry, error) {
	chain := []challenge.ChainEntry{}
	current := from
	for depth := 0; depth < maxDepth && current.NextChallengeID != nil; depth++ {
		next, err := s.challenges.getChallenge(ctx, q, *current.NextChallengeID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				break
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

func (s *TodayService) goalContext(ctx context.Context, q querier, userID uuid.UUID, goalID, currentChallengeID int64) (*student.GoalRef, []challenge.ChallengeSummary, challenge.GoalProgressStats, error) {
	stats := challenge.GoalProgressStats{}

	ref := &student.GoalRef{}
	err := q.QueryRow(ctx, "SELECT id, title, description FROM goals WHERE id = $1", goalID).
		Scan(&ref.ID, &ref.Title, &ref.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, stats, nil
		}
		return nil, nil, stats, fmt.Errorf("failed to load goal %d: %w", goalID, err)
	}

	rows, err := q.Query(ctx, `
		SELECT c.id, c.title, c.points, c.sort_order, COALESCE(p.status, 'NOT_STARTED')
		FROM challenges c
		LEFT JOIN user_challenge_progress p
			ON p.challenge_id = c.id AND p.user_id = $1
		WHERE c.goal_id = $2
		ORDER BY c.sort_order, c.id
	`, userID, goalID)
	if err != nil {
		return nil, nil, stats, fmt.Errorf("failed to query goal challenges: %w", err)
	}
	defer rows.Close()

	all := []challenge.ChallengeSummary{}
	for rows.Next() {
		var cs challenge.ChallengeSummary
		if err := rows.Scan(&cs.ID, &cs.Title, &cs.Points, &cs.SortOrder, &cs.Status); err != nil {
			return nil, nil, stats, fmt.Errorf("failed to scan goal challenge: %w", err)
		}
		cs.IsCurrent = cs.ID == currentChallengeID
		all = append(all, cs)
		if cs.Status == challenge.StatusComplete {
			stats.Completed++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, stats, err
	}

	stats.Total = len(all)
	if stats.Total > 0 {
		stats.Percentage = stats.Completed * 100 / stats.Total
	}
	return ref, all, stats, nil
}

// AddSecondSlot enables the optional second slot and pins the first eligible
// challenge (excluding the primary) to it. Idempotent: an enabled slot is
// returned unchanged.
func (s *TodayService) AddSecondSlot(ctx context.Context, userID uuid.UUID) (*student.AddSlotResponse, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	prefs, err := s.getOrCreatePrefs(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	if prefs.SecondSlotEnabled {
		resp := &student.AddSlotResponse{AlreadyEnabled: true}
		if prefs.SecondSlotChallengeID != nil {
			sec, err := s.refreshSecondSlot(ctx, tx, userID, prefs)
			if err != nil {
				return nil, err
			}
			if sec != nil {
				resp.SecondSlotChallengeID = sec.ID
				resp.Challenge, err = s.slotChallenge(ctx, tx, userID, sec)
				if err != nil {
					return nil, err
				}
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit: %w", err)
		}
		return resp, nil
	}

	var exclude []int64
	primary, _, err := s.challenges.getOrAssignActive(ctx, tx, userID, nil)
	if err == nil {
		exclude = append(exclude, primary.ID)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	available, err := s.challenges.availableChallenges(ctx, tx, userID, exclude)
	if err != nil {
		return nil, err
	}
	if len(available) == 0 {
		return nil, fmt.Errorf("no available challenges for second slot: %w", ErrNotFound)
	}

	second := available[0]
	if _, err := s.challenges.assignChallenge(ctx, tx, userID, second.ID); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE user_challenge_preferences
		SET second_slot_enabled = TRUE, second_slot_challenge_id = $2, updated_at = $3
		WHERE user_id = $1
	`, userID, second.ID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to persist second slot: %w", err)
	}

	slot, err := s.slotChallenge(ctx, tx, userID, second)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit second slot: %w", err)
	}
	return &student.AddSlotResponse{SecondSlotChallengeID: second.ID, Challenge: slot}, nil
}

// Swap reverts the challenge occupying the given slot to NOT_STARTED
// (clearing started_at) and assigns a replacement. newChallengeID == 0 means
// "pick the first eligible candidate"; an explicit id is re-validated against
// the eligibility filter server-side - client-supplied ids are never trusted.
func (s *TodayService) Swap(ctx context.Context, userID uuid.UUID, slot int, newChallengeID int64) (*student.SwapResponse, error) {
	if slot != SlotPrimary && slot != SlotSecondary {
		return nil, fmt.Errorf("slot must be %d or %d: %w", SlotPrimary, SlotSecondary, ErrInvalidState)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	prefs, err := s.getOrCreatePrefs(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	var occupantID int64
	switch slot {
	case SlotPrimary:
		var exclude []int64
		if prefs.SecondSlotEnabled && prefs.SecondSlotChallengeID != nil {
			exclude = append(exclude, *prefs.SecondSlotChallengeID)
		}
		current, _, err := s.challenges.getOrAssignActive(ctx, tx, userID, exclude)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("no active challenge to swap: %w", ErrNotFound)
			}
			return nil, err
		}
		occupantID = current.ID
	case SlotSecondary:
		if !prefs.SecondSlotEnabled || prefs.SecondSlotChallengeID == nil {
			return nil, fmt.Errorf("second slot not enabled: %w", ErrInvalidState)
		}
		occupantID = *prefs.SecondSlotChallengeID
	}

	// Return the occupant to the pool. Deprioritized, not abandoned.
	_, err = tx.Exec(ctx, `
		UPDATE user_challenge_progress
		SET status = 'NOT_STARTED', started_at = NULL
		WHERE user_id = $1 AND challenge_id = $2 AND status = 'IN_PROGRESS'
	`, userID, occupantID)
	if err != nil {
		return nil, fmt.Errorf("failed to revert slot occupant: %w", err)
	}

	occupied, err := s.occupiedIDs(ctx, tx, userID, prefs, occupantID)
	if err != nil {
		return nil, err
	}
	available, err := s.challenges.availableChallenges(ctx, tx, userID, occupied)
	if err != nil {
		return nil, err
	}
	if len(available) == 0 {
		return nil, fmt.Errorf("no other challenges available to swap with: %w", ErrNotFound)
	}

	var target *challenge.Challenge
	if newChallengeID == 0 {
		target = available[0]
	} else {
		for _, c := range available {
			if c.ID == newChallengeID {
				target = c
				break
			}
		}
		if target == nil {
			return nil, fmt.Errorf("challenge %d is not eligible for assignment: %w", newChallengeID, ErrInvalidState)
		}
	}

	if _, err := s.challenges.assignChallenge(ctx, tx, userID, target.ID); err != nil {
		return nil, err
	}

	if slot == SlotSecondary {
		_, err = tx.Exec(ctx, `
			UPDATE user_challenge_preferences
			SET second_slot_challenge_id = $2, updated_at = $3
			WHERE user_id = $1
		`, userID, target.ID, time.Now().UTC())
		if err != nil {
			return nil, fmt.Errorf("failed to repin second slot: %w", err)
		}
	}

	slotData, err := s.slotChallenge(ctx, tx, userID, target)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit swap: %w", err)
	}
	return &student.SwapResponse{NewChallengeID: target.ID, Challenge: slotData}, nil
}

// occupiedIDs lists challenge ids that must not be selected as a replacement:
// the slot being vacated, the other slot's pin, and anything else currently
// IN_PROGRESS. The eligibility filter alone does not exclude IN_PROGRESS rows.
func (s *TodayService) occupiedIDs(ctx context.Context, q querier, userID uuid.UUID, prefs *challenge.UserChallengePreferences, vacated int64) ([]int64, error) {
	seen := map[int64]bool{vacated: true}
	ids := []int64{vacated}
	if prefs.SecondSlotEnabled && prefs.SecondSlotChallengeID != nil && !seen[*prefs.SecondSlotChallengeID] {
		seen[*prefs.SecondSlotChallengeID] = true
		ids = append(ids, *prefs.SecondSlotChallengeID)
	}

	rows, err := q.Query(ctx, `
		SELECT challenge_id FROM user_challenge_progress
		WHERE user_id = $1 AND status = 'IN_PROGRESS'
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query occupied slots: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan occupied slot: %w", err)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// Snooze hides a challenge until now+days (1-30), reverts its progress to
// NOT_STARTED and auto-assigns a replacement if the pool has one. The snooze
// row is upserted, so repeated snoozes just move the window.
func (s *TodayService) Snooze(ctx context.Context, userID uuid.UUID, challengeID int64, days int) (*student.SnoozeResponse, error) {
	if days < minSnoozeDays || days > maxSnoozeDays {
		return nil, fmt.Errorf("snooze days must be between %d and %d: %w", minSnoozeDays, maxSnoozeDays, ErrInvalidState)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	prefs, err := s.getOrCreatePrefs(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	if challengeID == 0 {
		var exclude []int64
		if prefs.SecondSlotEnabled && prefs.SecondSlotChallengeID != nil {
			exclude = append(exclude, *prefs.SecondSlotChallengeID)
		}
		current, _, err := s.challenges.getOrAssignActive(ctx, tx, userID, exclude)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("no active challenge to snooze: %w", ErrNotFound)
			}
			return nil, err
		}
		challengeID = current.ID
	} else if _, err := s.challenges.getChallenge(ctx, tx, challengeID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	snoozedUntil := now.AddDate(0, 0, days)

	_, err = tx.Exec(ctx, `
		INSERT INTO snoozed_challenges (user_id, challenge_id, snoozed_at, snoozed_until)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, challenge_id) DO UPDATE SET
			snoozed_at = EXCLUDED.snoozed_at,
			snoozed_until = EXCLUDED.snoozed_until
	`, userID, challengeID, now, snoozedUntil)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert snooze: %w", err)
	}

	reverted, err := tx.Exec(ctx, `
		UPDATE user_challenge_progress
		SET status = 'NOT_STARTED', started_at = NULL
		WHERE user_id = $1 AND challenge_id = $2 AND status = 'IN_PROGRESS'
	`, userID, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to revert snoozed progress: %w", err)
	}

	wasSecondSlot := prefs.SecondSlotEnabled && prefs.SecondSlotChallengeID != nil &&
		*prefs.SecondSlotChallengeID == challengeID

	resp := &student.SnoozeResponse{SnoozedUntil: snoozedUntil}

	// Only backfill a slot that was actually vacated; snoozing an idle
	// challenge must not add an IN_PROGRESS row.
	if reverted.RowsAffected() == 0 {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit snooze: %w", err)
		}
		return resp, nil
	}

	// The snoozed challenge is now excluded by the filter itself.
	occupied, err := s.occupiedIDs(ctx, tx, userID, prefs, challengeID)
	if err != nil {
		return nil, err
	}
	available, err := s.challenges.availableChallenges(ctx, tx, userID, occupied)
	if err != nil {
		return nil, err
	}
	if len(available) > 0 {
		replacement := available[0]
		if _, err := s.challenges.assignChallenge(ctx, tx, userID, replacement.ID); err != nil {
			return nil, err
		}
		if wasSecondSlot {
			_, err = tx.Exec(ctx, `
				UPDATE user_challenge_preferences
				SET second_slot_challenge_id = $2, updated_at = $3
				WHERE user_id = $1
			`, userID, replacement.ID, now)
			if err != nil {
				return nil, fmt.Errorf("failed to repin second slot: %w", err)
			}
		}
		resp.NewChallengeActivated = true
		resp.NewChallengeID = &replacement.ID
	} else if wasSecondSlot {
		_, err = tx.Exec(ctx, `
			UPDATE user_challenge_preferences
			SET second_slot_challenge_id = NULL, updated_at = $2
			WHERE user_id = $1
		`, userID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to clear second slot: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit snooze: %w", err)
	}
	return resp, nil
}
