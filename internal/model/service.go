package model

import "time"

// EmergencyService is a catalog entry for a type of roadside emergency work
// (towing, battery jump, flat tire and so on).
type EmergencyService struct {
	ID          int64  `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Description string `gorm:"size:512" json:"description"`
	Category    string `gorm:"size:64" json:"category"`
	Active      bool   `gorm:"not null;default:true" json:"active"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WorkshopService links a workshop to an emergency service it offers, with
// the workshop's own price for it.
type WorkshopService struct {
	ID         int64   `gorm:"primaryKey" json:"id"`
	WorkshopID int64   `gorm:"index:idx_workshop_service,unique;not null" json:"workshopId"`
	ServiceID  int64   `gorm:"index:idx_workshop_service,unique;not null" json:"serviceId"`
	Price      float64 `gorm:"not null" json:"price"`
	CreatedAt  time.Time

	// Associations
	Workshop Workshop `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
