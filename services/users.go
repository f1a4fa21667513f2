package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so state-machine
// helpers can run inside or outside an enclosing transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserService resolves and syncs users coming in through Clerk.
type UserService struct {
	db *pgxpool.Pool
}

func NewUserService(db *pgxpool.Pool) *UserService {
	return &UserService{db: db}
}

// ResolveClerkID maps the authenticated Clerk subject to the internal user id.
func (s *UserService) ResolveClerkID(ctx context.Context, clerkID string) (uuid.UUID, error) {
	return resolveUserID(ctx, s.db, clerkID)
}

// EnsureUser creates the user row on first sight of a Clerk subject. Called
// from the Clerk webhook; repeated deliveries are no-ops.
func (s *UserService) EnsureUser(ctx context.Context, clerkID, email, displayName string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `
		INSERT INTO users (clerk_id, email, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (clerk_id) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name
		RETURNING id
	`, clerkID, email, displayName).Scan(&userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to ensure user %s: %w", clerkID, err)
	}
	return userID, nil
}

// DeleteByClerkID removes the user and, through cascades, all progress,
// preferences, snoozes, notifications and devices.
func (s *UserService) DeleteByClerkID(ctx context.Context, clerkID string) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM users WHERE clerk_id = $1", clerkID)
	if err != nil {
		return fmt.Errorf("failed to delete user %s: %w", clerkID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", clerkID, ErrNotFound)
	}
	return nil
}

// IsAdmin reports whether the user carries the admin role.
func (s *UserService) IsAdmin(ctx context.Context, clerkID string) (bool, error) {
	var role string
	err := s.db.QueryRow(ctx, "SELECT role FROM users WHERE clerk_id = $1", clerkID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load user role: %w", err)
	}
	return role == "admin", nil
}

// resolveUserID maps an external Clerk subject to the internal user id.
func resolveUserID(ctx context.Context, q querier, clerkID string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := q.QueryRow(ctx, "SELECT id FROM users WHERE clerk_id = $1", clerkID).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("user not found for clerk_id %s: %w", clerkID, ErrNotFound)
		}
		return uuid.Nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	return userID, nil
}
