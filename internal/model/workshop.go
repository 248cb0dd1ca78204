package model

import "time"

// Workshop represents a repair workshop that can take emergency jobs.
// Latitude/Longitude are nullable: not every workshop has been geocoded.
type Workshop struct {
	ID          int64    `gorm:"primaryKey" json:"id"`
	OwnerUserID int64    `gorm:"index;not null" json:"ownerUserId"`
	Name        string   `gorm:"size:256;not null" json:"name"`
	City        string   `gorm:"size:128" json:"city"`
	Street      string   `gorm:"size:256" json:"street"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Rate        float64  `json:"rate"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
