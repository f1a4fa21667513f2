package services

import (
	"testing"
	"time"

	"studyPathAPI/internal/types/notification"
)

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	d := NewNotificationDispatcher(nil)
	d.Stop()

	// With the workers gone the buffer fills up; everything past capacity
	// must drop immediately instead of stalling the caller.
	start := time.Now()
	for i := 0; i < 300; i++ {
		d.Enqueue(&notification.Notification{ID: int64(i)})
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("enqueue stalled for %v on a full queue", elapsed)
	}
}
