package model

import "time"

// PushSubscription holds the information for a browser push subscription,
// keyed by the user it belongs to so notifications can fan out per receiver.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	UserID    int64     `gorm:"index;not null"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}
