package services

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"studyPathAPI/internal/types/notification"
)

// PushNotificationProvider abstracts FCM so the dispatcher can run with a
// mock in tests and without credentials in local development.
type PushNotificationProvider interface {
	SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]string) error
}

// NotificationDispatcher pushes freshly generated notifications to the
// user's devices through a small worker pool. The notifications table is the
// source of truth; push delivery is best-effort and never blocks generation.
type NotificationDispatcher struct {
	service      *NotificationService
	pushProvider PushNotificationProvider
	workers      int
	jobQueue     chan *notification.Notification
	stopChan     chan struct{}
	wg           sync.WaitGroup
}

func NewNotificationDispatcher(service *NotificationService) *NotificationDispatcher {
	d := &NotificationDispatcher{
		service:  service,
		workers:  5,
		jobQueue: make(chan *notification.Notification, 100),
		stopChan: make(chan struct{}),
	}
	d.startWorkers()
	return d
}

// SetPushProvider injects the real FCM provider from main.go.
func (d *NotificationDispatcher) SetPushProvider(provider PushNotificationProvider) {
	d.pushProvider = provider
}

func (d *NotificationDispatcher) startWorkers() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

func (d *NotificationDispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case n := <-d.jobQueue:
			d.processJob(n)
		case <-d.stopChan:
			return
		}
	}
}

// Enqueue queues a notification for push delivery. Drops the job with a log
// line when the queue is full, rather than blocking the caller.
func (d *NotificationDispatcher) Enqueue(n *notification.Notification) {
	select {
	case d.jobQueue <- n:
	default:
		log.Printf("Failed to queue notification %d for push: queue full", n.ID)
	}
}

func (d *NotificationDispatcher) processJob(n *notification.Notification) {
	if d.pushProvider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tokens, err := d.service.deviceTokens(ctx, n.UserID)
	if err != nil {
		log.Printf("Failed to load device tokens for user %s: %v", n.UserID, err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	data := map[string]string{
		"notification_id": strconv.FormatInt(n.ID, 10),
		"type":            string(n.Type),
	}
	if n.RelatedChallengeID != nil {
		data["challenge_id"] = strconv.FormatInt(*n.RelatedChallengeID, 10)
	}
	if n.RelatedGoalID != nil {
		data["goal_id"] = strconv.FormatInt(*n.RelatedGoalID, 10)
	}

	if err := d.pushProvider.SendPush(ctx, tokens, n.Title, n.Body, data); err != nil {
		log.Printf("Push failed for user %s: %v", n.UserID, err)
	}
}

// Stop drains the worker pool gracefully.
func (d *NotificationDispatcher) Stop() {
	log.Println("Stopping notification dispatcher...")
	close(d.stopChan)
	d.wg.Wait()
	log.Println("Notification dispatcher stopped")
}

// MockPushProvider logs instead of sending, used in tests and local dev.
type MockPushProvider struct{}

func (m *MockPushProvider) SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]string) error {
	log.Printf("MOCK PUSH: Sending to %d devices: %s - %s", len(tokens), title, body)
	return nil
}
