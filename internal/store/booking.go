package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"workshop-emergency-backend/internal/model"
)

// CreateBookingWithQueue persists the booking and its full candidate queue in
// one transaction: either the booking exists with its first offer Pending, or
// nothing was written at all.
func (s *gormStore) CreateBookingWithQueue(ctx context.Context, booking *model.EmergencyBooking, workshopIDs []int64, firstExpiresAt time.Time) error {
	if len(workshopIDs) == 0 {
		return ErrInvalidCandidateList
	}

	var exists int64
	if err := s.db.WithContext(ctx).Model(&model.Customer{}).
		Where("id = ?", booking.CustomerID).Count(&exists).Error; err != nil {
		return fmt.Errorf("failed to look up customer %d: %w", booking.CustomerID, err)
	}
	if exists == 0 {
		return ErrCustomerNotFound
	}

	booking.Status = model.BookingRequested
	booking.ConfirmedWorkshopID = nil

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(booking).Error; err != nil {
			return fmt.Errorf("failed to create emergency booking: %w", err)
		}
		return createQueue(tx, booking.ID, workshopIDs, firstExpiresAt, time.Now().UTC())
	})
}

// GetBooking returns a booking with its offer queue in sequence order.
func (s *gormStore) GetBooking(ctx context.Context, bookingID int64) (*model.EmergencyBooking, error) {
	var booking model.EmergencyBooking
	err := s.db.WithContext(ctx).
		Preload("Offers", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		First(&booking, bookingID).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// CancelBooking marks a Requested booking as Cancelled.
func (s *gormStore) CancelBooking(ctx context.Context, bookingID int64) error {
	return transitionBooking(s.db.WithContext(ctx), bookingID, model.BookingCancelled, nil)
}

// transitionBooking moves a Requested booking to a terminal status,
// optionally recording the confirmed workshop. Conditional on the current
// status so each booking resolves exactly once.
func transitionBooking(db *gorm.DB, bookingID int64, to model.BookingStatus, workshopID *int64) error {
	updates := map[string]any{"status": to}
	if workshopID != nil {
		updates["confirmed_workshop_id"] = *workshopID
	}

	res := db.Model(&model.EmergencyBooking{}).
		Where("id = ? AND status = ?", bookingID, model.BookingRequested).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to move booking %d to %s: %w", bookingID, to, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// CustomerUserID resolves a customer id to the owning user id.
func (s *gormStore) CustomerUserID(ctx context.Context, customerID int64) (int64, error) {
	var customer model.Customer
	err := s.db.WithContext(ctx).Select("user_id").First(&customer, customerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrCustomerNotFound
	}
	if err != nil {
		return 0, err
	}
	return customer.UserID, nil
}

// WorkshopOwnerUserID resolves a workshop id to its owner's user id.
func (s *gormStore) WorkshopOwnerUserID(ctx context.Context, workshopID int64) (int64, error) {
	var workshop model.Workshop
	if err := s.db.WithContext(ctx).Select("owner_user_id").First(&workshop, workshopID).Error; err != nil {
		return 0, err
	}
	return workshop.OwnerUserID, nil
}
