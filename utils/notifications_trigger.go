package utils

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// NotificationGenerator is the slice of the notification service the
// triggers need. Keeping it an interface avoids an import cycle between
// handlers and services.
type NotificationGenerator interface {
	GenerateStreakEncouragement(ctx context.Context, userID uuid.UUID) error
	GenerateForUser(ctx context.Context, userID uuid.UUID) (int, error)
}

// StreakAfterCompletion fires the streak check right after an objective
// completes, off the request path. The generator is dedup-keyed, so firing
// on every completion is safe.
func StreakAfterCompletion(notifier NotificationGenerator, userID uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := notifier.GenerateStreakEncouragement(ctx, userID); err != nil {
			log.Printf("Failed to generate streak encouragement for user %s: %v", userID, err)
		}
	}()
}

// RefreshAfterLogin runs the full generator pass when the student opens the
// app, so deadline reminders do not depend on an external scheduler.
func RefreshAfterLogin(notifier NotificationGenerator, userID uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if _, err := notifier.GenerateForUser(ctx, userID); err != nil {
			log.Printf("Failed to refresh notifications for user %s: %v", userID, err)
		}
	}()
}
