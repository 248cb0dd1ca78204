package model

import "time"

// BookingStatus is the overall state of an emergency booking.
type BookingStatus string

const (
	BookingRequested BookingStatus = "Requested"
	BookingConfirmed BookingStatus = "Confirmed"
	BookingExhausted BookingStatus = "Exhausted"
	BookingCancelled BookingStatus = "Cancelled"
)

// Terminal reports whether no further candidate activity is permitted.
func (s BookingStatus) Terminal() bool {
	return s == BookingConfirmed || s == BookingExhausted || s == BookingCancelled
}

// EmergencyBooking is one customer request for emergency service. It is
// created together with its offer queue and never deleted; ConfirmedWorkshopID
// is non-nil exactly when Status is Confirmed.
type EmergencyBooking struct {
	ID                  int64         `gorm:"primaryKey" json:"id"`
	CustomerID          int64         `gorm:"index;not null" json:"customerId"`
	VehicleID           int64         `gorm:"not null" json:"vehicleId"`
	ServiceID           int64         `gorm:"not null" json:"serviceId"`
	Notes               string        `gorm:"size:1024" json:"notes"`
	Address             string        `gorm:"size:512;not null" json:"address"`
	Latitude            *float64      `json:"latitude"`
	Longitude           *float64      `json:"longitude"`
	Price               float64       `json:"price"`
	Status              BookingStatus `gorm:"size:16;not null;index" json:"status"`
	ConfirmedWorkshopID *int64        `json:"confirmedWorkshopId"`
	RequestedAt         time.Time     `gorm:"not null" json:"requestedAt"`
	CreatedAt           time.Time     `json:"createdAt"`
	UpdatedAt           time.Time     `json:"-"`

	// Associations
	Offers []BookingOffer `gorm:"foreignKey:BookingID" json:"offers,omitempty"`
}
