package model

import "time"

// Customer represents a registered vehicle owner.
type Customer struct {
	ID        int64  `gorm:"primaryKey" json:"id"`
	UserID    int64  `gorm:"uniqueIndex;not null" json:"userId"`
	Name      string `gorm:"size:256;not null" json:"name"`
	Phone     string `gorm:"size:32" json:"phone"`
	CreatedAt time.Time
	UpdatedAt time.Time

	// Associations
	Vehicles []Vehicle `gorm:"foreignKey:CustomerID" json:"-"`
}
