package model

import "time"

// OfferStatus is the state of one candidate workshop's offer.
type OfferStatus string

const (
	OfferUnactivated OfferStatus = "Unactivated"
	OfferPending     OfferStatus = "Pending"
	OfferAccepted    OfferStatus = "Accepted"
	OfferRejected    OfferStatus = "Rejected"
	OfferSkipped     OfferStatus = "Skipped"
)

// Terminal reports whether the offer has reached an immutable state.
func (s OfferStatus) Terminal() bool {
	return s == OfferAccepted || s == OfferRejected || s == OfferSkipped
}

// BookingOffer is one ledger entry in a booking's candidate queue: the
// time-boxed assignment of the job to a specific workshop. Offers activate in
// ascending Sequence order and at most one offer per booking is Pending at any
// time. ExpiresAt is only meaningful while the offer is Pending.
type BookingOffer struct {
	ID           int64       `gorm:"primaryKey" json:"id"`
	BookingID    int64       `gorm:"index;not null" json:"bookingId"`
	WorkshopID   int64       `gorm:"index;not null" json:"workshopId"`
	Sequence     int         `gorm:"not null" json:"sequence"`
	Status       OfferStatus `gorm:"size:16;not null;index" json:"status"`
	ExpiresAt    *time.Time  `json:"expiresAt"`
	SentAt       *time.Time  `json:"sentAt"`
	ResponseTime *time.Time  `json:"responseTime"`
	CreatedAt    time.Time   `json:"-"`
	UpdatedAt    time.Time   `json:"-"`
}
