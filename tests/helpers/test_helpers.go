package helpers

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SetupTestDB connects to the test database, skipping the test when no
// database is configured so the suite stays runnable without infrastructure.
func SetupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL or DATABASE_URL not set, skipping database test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("Failed to ping test database: %v", err)
	}

	return pool
}

// CleanupTestDB removes seeded rows and closes the pool. User deletion
// cascades through progress, preferences, snoozes and notifications;
// challenge deletion cascades through objectives and links.
func CleanupTestDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	if _, err := pool.Exec(ctx, "DELETE FROM users WHERE clerk_id LIKE 'test_%'"); err != nil {
		t.Logf("Warning: failed to cleanup test users: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM challenges WHERE title LIKE '[test]%'"); err != nil {
		t.Logf("Warning: failed to cleanup test challenges: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM goals WHERE title LIKE '[test]%'"); err != nil {
		t.Logf("Warning: failed to cleanup test goals: %v", err)
	}
	pool.Close()
}

// CreateTestUser seeds a user and returns its id.
func CreateTestUser(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()

	clerkID := fmt.Sprintf("test_%d", time.Now().UnixNano())
	var userID uuid.UUID
	err := pool.QueryRow(context.Background(), `
		INSERT INTO users (clerk_id, email, display_name)
		VALUES ($1, $2, 'Test User')
		RETURNING id
	`, clerkID, clerkID+"@example.com").Scan(&userID)
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return userID
}

// CreateTestChallenge seeds an active, visible challenge.
func CreateTestChallenge(t *testing.T, pool *pgxpool.Pool, title string, sortOrder int) int64 {
	t.Helper()

	var id int64
	err := pool.QueryRow(context.Background(), `
		INSERT INTO challenges (title, sort_order, is_active, visible_to_students, points)
		VALUES ($1, $2, TRUE, TRUE, 10)
		RETURNING id
	`, "[test] "+title, sortOrder).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to create test challenge: %v", err)
	}
	return id
}

// CreateTestObjective seeds one objective under a challenge.
func CreateTestObjective(t *testing.T, pool *pgxpool.Pool, challengeID int64, title string, required bool) int64 {
	t.Helper()

	var id int64
	err := pool.QueryRow(context.Background(), `
		INSERT INTO objectives (challenge_id, title, points, sort_order, is_required)
		VALUES ($1, $2, 5, 0, $3)
		RETURNING id
	`, challengeID, title, required).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to create test objective: %v", err)
	}
	return id
}

// CreateTestGoal seeds an active goal.
func CreateTestGoal(t *testing.T, pool *pgxpool.Pool, title string, sortOrder int) int64 {
	t.Helper()

	var id int64
	err := pool.QueryRow(context.Background(), `
		INSERT INTO goals (title, sort_order, is_active)
		VALUES ($1, $2, TRUE)
		RETURNING id
	`, "[test] "+title, sortOrder).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to create test goal: %v", err)
	}
	return id
}

// CreateTestGoalStep seeds one step under a goal.
func CreateTestGoalStep(t *testing.T, pool *pgxpool.Pool, goalID int64, title string, required bool) int64 {
	t.Helper()

	var id int64
	err := pool.QueryRow(context.Background(), `
		INSERT INTO goal_steps (goal_id, title, points, sort_order, is_required)
		VALUES ($1, $2, 5, 0, $3)
		RETURNING id
	`, goalID, title, required).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to create test goal step: %v", err)
	}
	return id
}

// GenerateMockClerkJWT builds a signed test token for handler-level tests.
func GenerateMockClerkJWT(clerkID string) (string, error) {
	secretKey := []byte("test-secret-key-for-testing-only")

	claims := jwt.MapClaims{
		"sub": clerkID,
		"iss": "https://clerk.test",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour * 24).Unix(),
		"azp": "test-app-id",
		"sid": "sess_test123",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}
