package model

import "time"

// Notification is a persisted message to a user. Delivery over push is
// best-effort; the row is the durable record.
type Notification struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	SenderUserID   int64     `gorm:"not null" json:"senderUserId"`
	ReceiverUserID int64     `gorm:"index;not null" json:"receiverUserId"`
	Message        string    `gorm:"size:512;not null" json:"message"`
	Category       string    `gorm:"size:64;not null" json:"category"`
	Read           bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt      time.Time `json:"createdAt"`
}
