package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"workshop-emergency-backend/internal/model"
)

// Sentinel errors returned by ledger and booking operations. State-conflict
// errors are expected outcomes of races, not system failures.
var (
	ErrInvalidCandidateList = errors.New("candidate list is empty")
	ErrInvalidTransition    = errors.New("offer is not pending")
	ErrCustomerNotFound     = errors.New("customer not found")
)

// Store defines the interface for all database operations the dispatch
// engine performs.
type Store interface {
	// DB exposes the underlying handle for read-only query handlers.
	DB() *gorm.DB

	// Booking operations.
	CreateBookingWithQueue(ctx context.Context, booking *model.EmergencyBooking, workshopIDs []int64, firstExpiresAt time.Time) error
	GetBooking(ctx context.Context, bookingID int64) (*model.EmergencyBooking, error)
	CancelBooking(ctx context.Context, bookingID int64) error

	// Ledger operations. ResolveOffer carries the booking follow-up in the
	// same transaction as the offer's terminal update.
	GetOffer(ctx context.Context, offerID int64) (*model.BookingOffer, error)
	CurrentPending(ctx context.Context, bookingID int64) (*model.BookingOffer, error)
	ResolveOffer(ctx context.Context, offerID int64, status model.OfferStatus, nextExpiresAt time.Time) (*ResolveOutcome, error)
	MarkTerminal(ctx context.Context, offerID int64, status model.OfferStatus) (*model.BookingOffer, error)
	ExtendOffer(ctx context.Context, offerID int64, expiresAt time.Time) (*model.BookingOffer, error)
	ExpiredPending(ctx context.Context, now time.Time) ([]model.BookingOffer, error)

	// Lookups used for notification routing and input validation.
	CustomerUserID(ctx context.Context, customerID int64) (int64, error)
	WorkshopOwnerUserID(ctx context.Context, workshopID int64) (int64, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}
