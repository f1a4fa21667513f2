package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyPathAPI/internal/types/notification"
)

// Deadline reminder windows, in days before the due date. A challenge due in
// ~3 days matches the 3-day window when the remaining time rounds to 3.
var deadlineWindows = []int{7, 3, 1}

const (
	// A student is considered inactive after this many days without
	// completing an objective.
	inactivityThresholdDays = 2

	// Streak encouragement needs at least this many distinct activity days
	// in the trailing week.
	streakMinDays = 2
)

var inactivityMessages = []string{
	"Your current challenge is waiting for you. A few minutes today keeps the momentum going.",
	"Small steps count. Knock out one objective today and you're back on track.",
	"It's been a couple of days. Your next objective is shorter than you think.",
}

// NotificationService generates, lists, and updates in-app notifications.
// All generation runs through conditional inserts keyed on (user_id,
// dedup_key), so concurrent generation calls never duplicate a reminder.
type NotificationService struct {
	db         *pgxpool.Pool
	dispatcher *NotificationDispatcher
}

func NewNotificationService(db *pgxpool.Pool) *NotificationService {
	return &NotificationService{db: db}
}

// SetDispatcher wires the async push pipeline. Without it notifications are
// still persisted, just not pushed.
func (s *NotificationService) SetDispatcher(d *NotificationDispatcher) {
	s.dispatcher = d
}

// insertDeduped inserts a notification unless its dedup key already exists
// for the user. Returns the created row, or nil when deduplicated. The
// unique index on (user_id, dedup_key) makes this race-safe without a
// separate existence check.
func (s *NotificationService) insertDeduped(ctx context.Context, q querier, n *notification.Notification) (*notification.Notification, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO notifications
			(user_id, type, title, body, related_goal_id, related_challenge_id,
			 scheduled_for, dedup_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, dedup_key) DO NOTHING
		RETURNING id, created_at
	`, n.UserID, n.Type, n.Title, n.Body, n.RelatedGoalID, n.RelatedChallengeID,
		n.ScheduledFor, n.DedupKey, time.Now().UTC())

	err := row.Scan(&n.ID, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert notification %s: %w", n.DedupKey, err)
	}
	return n, nil
}

// GenerateForUser runs all notification generators for one user in a single
// transaction and returns how many notifications were created. Calling it
// twice in a row creates nothing the second time.
func (s *NotificationService) GenerateForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var created []*notification.Notification

	deadline, err := s.generateDeadlineReminders(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	created = append(created, deadline...)

	nudge, err := s.generateNudge(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	if nudge != nil {
		created = append(created, nudge)
	}

	streak, err := s.generateStreak(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	if streak != nil {
		created = append(created, streak)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit notification generation: %w", err)
	}

	s.enqueuePush(created)
	return len(created), nil
}

// generateDeadlineReminders emits one reminder per (challenge, window) for
// every active, visible, due-dated challenge the user has not completed.
// A challenge with no progress row counts as incomplete.
func (s *NotificationService) generateDeadlineReminders(ctx context.Context, q querier, userID uuid.UUID) ([]*notification.Notification, error) {
	rows, err := q.Query(ctx, `
		SELECT c.id, c.title, c.due_date
		FROM challenges c
		LEFT JOIN user_challenge_progress p ON p.challenge_id = c.id AND p.user_id = $1
		WHERE c.is_active = TRUE
		  AND c.visible_to_students = TRUE
		  AND c.due_date IS NOT NULL
		  AND (p.status IS NULL OR p.status <> 'COMPLETE')
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query due challenges: %w", err)
	}
	defer rows.Close()

	type dueChallenge struct {
		id    int64
		title string
		due   time.Time
	}
	var due []dueChallenge
	for rows.Next() {
		var d dueChallenge
		if err := rows.Scan(&d.id, &d.title, &d.due); err != nil {
			return nil, fmt.Errorf("failed to scan due challenge: %w", err)
		}
		due = append(due, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var created []*notification.Notification
	for _, d := range due {
		daysUntil := d.due.Sub(now).Hours() / 24
		for _, w := range deadlineWindows {
			if math.Abs(daysUntil-float64(w)) >= 0.5 {
				continue
			}
			challengeID := d.id
			body := fmt.Sprintf("\"%s\" is due in %d days. Finish the remaining objectives to stay on schedule.", d.title, w)
			if w == 1 {
				body = fmt.Sprintf("\"%s\" is due tomorrow. Finish the remaining objectives today.", d.title)
			}
			n, err := s.insertDeduped(ctx, q, &notification.Notification{
				UserID:             userID,
				Type:               notification.TypeDeadline,
				Title:              "Deadline approaching",
				Body:               body,
				RelatedChallengeID: &challengeID,
				ScheduledFor:       now,
				DedupKey:           notification.DeadlineDedupKey(d.id, w),
			})
			if err != nil {
				return nil, err
			}
			if n != nil {
				created = append(created, n)
			}
		}
	}
	return created, nil
}

// hasRecentOfType reports whether a notification of the given type was
// already scheduled for the user within the trailing 24 hours. Nudges and
// streak encouragements are capped at one per day.
func (s *NotificationService) hasRecentOfType(ctx context.Context, q querier, userID uuid.UUID, typ notification.NotificationType) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE user_id = $1 AND type = $2 AND scheduled_for > $3)
	`, userID, typ, time.Now().UTC().Add(-24*time.Hour)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check recent %s notifications: %w", typ, err)
	}
	return exists, nil
}

func (s *NotificationService) generateNudge(ctx context.Context, q querier, userID uuid.UUID) (*notification.Notification, error) {
	recent, err := s.hasRecentOfType(ctx, q, userID, notification.TypeNudge)
	if err != nil {
		return nil, err
	}
	if recent {
		return nil, nil
	}

	var lastCompleted *time.Time
	err = q.QueryRow(ctx, `
		SELECT MAX(completed_at) FROM user_objective_progress
		WHERE user_id = $1 AND status = 'COMPLETE'
	`, userID).Scan(&lastCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to load last completion: %w", err)
	}

	now := time.Now().UTC()

	if lastCompleted == nil {
		// Never completed anything: a one-time welcome nudge.
		return s.insertDeduped(ctx, q, &notification.Notification{
			UserID:       userID,
			Type:         notification.TypeNudge,
			Title:        "Ready to start?",
			Body:         "Your first challenge is set up and waiting. Open Today's Task to begin.",
			ScheduledFor: now,
			DedupKey:     notification.WelcomeNudgeDedupKey(userID),
		})
	}

	daysSince := now.Sub(*lastCompleted).Hours() / 24
	if daysSince < inactivityThresholdDays {
		return nil, nil
	}

	return s.insertDeduped(ctx, q, &notification.Notification{
		UserID:       userID,
		Type:         notification.TypeNudge,
		Title:        "Pick up where you left off",
		Body:         inactivityMessages[rand.Intn(len(inactivityMessages))],
		ScheduledFor: now,
		DedupKey:     notification.InactivityNudgeDedupKey(userID, now),
	})
}

func (s *NotificationService) generateStreak(ctx context.Context, q querier, userID uuid.UUID) (*notification.Notification, error) {
	recent, err := s.hasRecentOfType(ctx, q, userID, notification.TypeStreak)
	if err != nil {
		return nil, err
	}
	if recent {
		return nil, nil
	}

	now := time.Now().UTC()

	var activeDays int
	err = q.QueryRow(ctx, `
		SELECT COUNT(DISTINCT date(completed_at))
		FROM user_objective_progress
		WHERE user_id = $1 AND status = 'COMPLETE' AND completed_at > $2
	`, userID, now.AddDate(0, 0, -7)).Scan(&activeDays)
	if err != nil {
		return nil, fmt.Errorf("failed to count active days: %w", err)
	}
	if activeDays < streakMinDays {
		return nil, nil
	}

	body := "Two active days this week. Keep the rhythm going with today's objective."
	if activeDays >= 3 {
		body = fmt.Sprintf("%d active days this week. You're building a real habit.", activeDays)
	}

	return s.insertDeduped(ctx, q, &notification.Notification{
		UserID:       userID,
		Type:         notification.TypeStreak,
		Title:        "Streak going strong",
		Body:         body,
		ScheduledFor: now,
		DedupKey:     notification.StreakDedupKey(userID, now),
	})
}

// GenerateStreakEncouragement runs just the streak generator, used as a
// post-completion hook so praise lands right after the activity.
func (s *NotificationService) GenerateStreakEncouragement(ctx context.Context, userID uuid.UUID) error {
	n, err := s.generateStreak(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if n != nil {
		s.enqueuePush([]*notification.Notification{n})
	}
	return nil
}

const notificationColumns = `
	id, user_id, type, title, body, related_goal_id, related_challenge_id,
	scheduled_for, created_at, read_at, dismissed_at, dedup_key`

func scanNotification(row pgx.Row) (*notification.Notification, error) {
	n := &notification.Notification{}
	err := row.Scan(
		&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body,
		&n.RelatedGoalID, &n.RelatedChallengeID,
		&n.ScheduledFor, &n.CreatedAt, &n.ReadAt, &n.DismissedAt, &n.DedupKey,
	)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// List returns the user's active notifications, newest first, plus the
// unread count. Active means unread, undismissed, and already due.
func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, limit int) (*notification.ListResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	now := time.Now().UTC()

	rows, err := s.db.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = $1
		  AND read_at IS NULL
		  AND dismissed_at IS NULL
		  AND scheduled_for <= $2
		ORDER BY scheduled_for DESC, id DESC
		LIMIT $3
	`, userID, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	resp := &notification.ListResponse{Notifications: []*notification.Notification{}}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		resp.Notifications = append(resp.Notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = $1 AND read_at IS NULL AND dismissed_at IS NULL
		  AND scheduled_for <= $2
	`, userID, now).Scan(&resp.UnreadCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return resp, nil
}

// MarkRead stamps read_at once. Re-reading is a no-op, a foreign id is
// ErrNotFound.
func (s *NotificationService) MarkRead(ctx context.Context, userID uuid.UUID, notificationID int64) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE notifications
		SET read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND user_id = $2
	`, notificationID, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %d: %w", notificationID, ErrNotFound)
	}
	return nil
}

func (s *NotificationService) Dismiss(ctx context.Context, userID uuid.UUID, notificationID int64) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE notifications
		SET dismissed_at = COALESCE(dismissed_at, $3)
		WHERE id = $1 AND user_id = $2
	`, notificationID, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to dismiss notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %d: %w", notificationID, ErrNotFound)
	}
	return nil
}

// RegisterDevice records a push token for the user, refreshing last_used on
// re-registration.
func (s *NotificationService) RegisterDevice(ctx context.Context, userID uuid.UUID, token, platform string) error {
	if token == "" {
		return fmt.Errorf("device token is required: %w", ErrInvalidState)
	}
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		INSERT INTO user_devices (user_id, token, platform, added_at, last_used)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id, token) DO UPDATE SET
			platform = EXCLUDED.platform,
			last_used = EXCLUDED.last_used
	`, userID, token, platform, now)
	if err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	return nil
}

// deviceTokens loads the user's registered push targets.
func (s *NotificationService) deviceTokens(ctx context.Context, userID uuid.UUID) ([]notification.DeviceToken, error) {
	rows, err := s.db.Query(ctx, `
		SELECT token, platform, added_at, last_used
		FROM user_devices WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []notification.DeviceToken
	for rows.Next() {
		var t notification.DeviceToken
		if err := rows.Scan(&t.Token, &t.Platform, &t.AddedAt, &t.LastUsed); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (s *NotificationService) enqueuePush(created []*notification.Notification) {
	if s.dispatcher == nil {
		return
	}
	for _, n := range created {
		s.dispatcher.Enqueue(n)
	}
}
