package notification

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"workshop-emergency-backend/internal/model"
)

// PushSender defines the interface for sending a web push notification.
type PushSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of PushSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool manages a pool of workers delivering stored notifications over
// web push. Jobs carry notification ids.
type WorkerPool struct {
	size    int
	jobs    chan int64
	db      *gorm.DB
	webpush *webpush.Options
	sender  PushSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan int64, size), // Buffered channel
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Notification worker %d started", id)
	for {
		select {
		case notificationID := <-wp.jobs:
			wp.deliver(ctx, notificationID)
		case <-ctx.Done():
			log.Printf("Notification worker %d shutting down", id)
			return
		}
	}
}

// Dispatch sends a job to the worker pool.
func (wp *WorkerPool) Dispatch(notificationID int64) {
	wp.jobs <- notificationID
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan int64 {
	return wp.jobs
}

// pushPayload is the JSON body delivered to the browser.
type pushPayload struct {
	Message  string `json:"message"`
	Category string `json:"category"`
}

// deliver fans a stored notification out to every push subscription of its
// receiver.
func (wp *WorkerPool) deliver(ctx context.Context, notificationID int64) {
	var n model.Notification
	if err := wp.db.WithContext(ctx).First(&n, notificationID).Error; err != nil {
		log.Printf("Error fetching notification %d: %v", notificationID, err)
		return
	}

	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Where("user_id = ?", n.ReceiverUserID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for user %d: %v", n.ReceiverUserID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(pushPayload{Message: n.Message, Category: n.Category})
	if err != nil {
		log.Printf("Error marshalling payload for notification %d: %v", notificationID, err)
		return
	}

	log.Printf("Pushing notification %d to %d subscription(s)", notificationID, len(subscriptions))
	for _, sub := range subscriptions {
		wp.push(ctx, sub, payload)
	}
}

// push sends a single web push notification.
func (wp *WorkerPool) push(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
