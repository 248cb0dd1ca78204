package model

import "time"

// Vehicle represents a customer's registered vehicle.
type Vehicle struct {
	ID         int64  `gorm:"primaryKey" json:"id"`
	CustomerID int64  `gorm:"index;not null" json:"customerId"`
	Make       string `gorm:"size:64" json:"make"`
	Model      string `gorm:"size:64" json:"model"`
	Plate      string `gorm:"size:32" json:"plate"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
