package notification

import (
	"context"
	"log"

	"gorm.io/gorm"

	"workshop-emergency-backend/internal/model"
)

// Gateway persists notifications and hands them to the push worker pool.
// It is fire-and-forget by contract: every failure is logged and swallowed,
// because a notification problem must never undo a dispatch transition.
type Gateway struct {
	db   *gorm.DB
	pool *WorkerPool
}

// NewGateway creates a notification gateway. pool may be nil when push
// delivery is not configured; the durable record is still written.
func NewGateway(db *gorm.DB, pool *WorkerPool) *Gateway {
	return &Gateway{db: db, pool: pool}
}

// Notify stores the notification row and queues push delivery to the
// receiver's subscriptions.
func (g *Gateway) Notify(ctx context.Context, senderUserID, receiverUserID int64, message, category string) {
	n := model.Notification{
		SenderUserID:   senderUserID,
		ReceiverUserID: receiverUserID,
		Message:        message,
		Category:       category,
	}
	if err := g.db.WithContext(ctx).Create(&n).Error; err != nil {
		log.Printf("notification: failed to persist message for user %d: %v", receiverUserID, err)
		return
	}

	if g.pool != nil {
		g.pool.Dispatch(n.ID)
	}
}
