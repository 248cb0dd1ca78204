package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"workshop-emergency-backend/internal/model"
)

// errQueueExhausted signals inside ResolveOffer that no Unactivated candidate
// remains and the booking must be closed out.
var errQueueExhausted = errors.New("no unactivated candidates remain")

// createQueue inserts one offer row per workshop id, in order. The first row
// is created Pending with the given expiry; the rest stay Unactivated until
// the cascade reaches them.
func createQueue(tx *gorm.DB, bookingID int64, workshopIDs []int64, firstExpiresAt time.Time, now time.Time) error {
	if len(workshopIDs) == 0 {
		return ErrInvalidCandidateList
	}

	offers := make([]model.BookingOffer, len(workshopIDs))
	for i, workshopID := range workshopIDs {
		offers[i] = model.BookingOffer{
			BookingID:  bookingID,
			WorkshopID: workshopID,
			Sequence:   i + 1,
			Status:     model.OfferUnactivated,
		}
		if i == 0 {
			expires := firstExpiresAt
			sent := now
			offers[i].Status = model.OfferPending
			offers[i].ExpiresAt = &expires
			offers[i].SentAt = &sent
		}
	}

	if err := tx.Create(&offers).Error; err != nil {
		return fmt.Errorf("failed to create offer queue for booking %d: %w", bookingID, err)
	}
	return nil
}

// markTerminal applies the conditional Pending to terminal update, stamping
// the response time. The status check is part of the UPDATE itself: of two
// racing writers the first wins and the second observes ErrInvalidTransition.
func markTerminal(db *gorm.DB, offerID int64, status model.OfferStatus, now time.Time) error {
	res := db.Model(&model.BookingOffer{}).
		Where("id = ? AND status = ?", offerID, model.OfferPending).
		Updates(map[string]any{
			"status":        status,
			"response_time": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark offer %d as %s: %w", offerID, status, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// activateNext promotes the lowest-sequence Unactivated offer to Pending with
// a fresh expiry, or reports errQueueExhausted. The promotion is a conditional
// update so two concurrent cascades cannot both activate the same row.
func activateNext(tx *gorm.DB, bookingID int64, expiresAt, now time.Time) (*model.BookingOffer, error) {
	var next model.BookingOffer
	err := tx.
		Where("booking_id = ? AND status = ?", bookingID, model.OfferUnactivated).
		Order("sequence ASC").
		First(&next).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errQueueExhausted
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find next candidate for booking %d: %w", bookingID, err)
	}

	res := tx.Model(&model.BookingOffer{}).
		Where("id = ? AND status = ?", next.ID, model.OfferUnactivated).
		Updates(map[string]any{
			"status":     model.OfferPending,
			"expires_at": expiresAt,
			"sent_at":    now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to activate offer %d: %w", next.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrInvalidTransition
	}

	next.Status = model.OfferPending
	next.ExpiresAt = &expiresAt
	sent := now
	next.SentAt = &sent
	return &next, nil
}

// rejectRemaining marks every non-terminal offer on the booking as Rejected,
// except the given one. Runs once a candidate accepts, so no further
// cascading can occur.
func rejectRemaining(tx *gorm.DB, bookingID, exceptOfferID int64) error {
	err := tx.Model(&model.BookingOffer{}).
		Where("booking_id = ? AND id <> ? AND status IN ?",
			bookingID, exceptOfferID, []model.OfferStatus{model.OfferUnactivated, model.OfferPending}).
		Update("status", model.OfferRejected).Error
	if err != nil {
		return fmt.Errorf("failed to reject remaining offers for booking %d: %w", bookingID, err)
	}
	return nil
}

// GetOffer returns a single offer by id.
func (s *gormStore) GetOffer(ctx context.Context, offerID int64) (*model.BookingOffer, error) {
	var offer model.BookingOffer
	if err := s.db.WithContext(ctx).First(&offer, offerID).Error; err != nil {
		return nil, err
	}
	return &offer, nil
}

// CurrentPending returns the single Pending offer for a booking, or
// ErrInvalidTransition if the booking has none.
func (s *gormStore) CurrentPending(ctx context.Context, bookingID int64) (*model.BookingOffer, error) {
	var offer model.BookingOffer
	err := s.db.WithContext(ctx).
		Where("booking_id = ? AND status = ?", bookingID, model.OfferPending).
		Order("sequence ASC").
		First(&offer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// ResolveOutcome describes what resolving an offer did to its booking.
type ResolveOutcome struct {
	// Offer is the resolved offer after its terminal update.
	Offer *model.BookingOffer
	// Activated is the next candidate's offer when the cascade advanced.
	Activated *model.BookingOffer
	// BookingStatus is the booking's status after the resolution.
	BookingStatus model.BookingStatus
}

// ResolveOffer applies a terminal status to a Pending offer together with the
// booking follow-up it implies, all in one transaction. Accepted confirms the
// booking for the offer's workshop and rejects every other open offer.
// Rejected and Skipped activate the next candidate in sequence or, when none
// remains, mark the booking Exhausted. Either the whole resolution commits or
// the offer stays Pending, so a storage failure mid-resolution can never
// strand a Requested booking without a Pending offer.
func (s *gormStore) ResolveOffer(ctx context.Context, offerID int64, status model.OfferStatus, nextExpiresAt time.Time) (*ResolveOutcome, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("%q is not a terminal offer status", status)
	}

	var out ResolveOutcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		if err := markTerminal(tx, offerID, status, now); err != nil {
			return err
		}

		var offer model.BookingOffer
		if err := tx.First(&offer, offerID).Error; err != nil {
			return fmt.Errorf("failed to reload offer %d: %w", offerID, err)
		}
		out.Offer = &offer

		if status == model.OfferAccepted {
			if err := transitionBooking(tx, offer.BookingID, model.BookingConfirmed, &offer.WorkshopID); err != nil {
				return err
			}
			if err := rejectRemaining(tx, offer.BookingID, offer.ID); err != nil {
				return err
			}
			out.BookingStatus = model.BookingConfirmed
			return nil
		}

		next, err := activateNext(tx, offer.BookingID, nextExpiresAt, now)
		if err == nil {
			out.Activated = next
			out.BookingStatus = model.BookingRequested
			return nil
		}
		if !errors.Is(err, errQueueExhausted) {
			return err
		}

		// Queue ran out: close the booking, unless a concurrent cancel
		// already made it terminal.
		err = transitionBooking(tx, offer.BookingID, model.BookingExhausted, nil)
		if errors.Is(err, ErrInvalidTransition) {
			var booking model.EmergencyBooking
			if err := tx.Select("status").First(&booking, offer.BookingID).Error; err != nil {
				return fmt.Errorf("failed to reload booking %d: %w", offer.BookingID, err)
			}
			out.BookingStatus = booking.Status
			return nil
		}
		if err != nil {
			return err
		}
		out.BookingStatus = model.BookingExhausted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkTerminal transitions a Pending offer to Accepted, Rejected or Skipped
// without touching the rest of the queue. Callers that need the booking
// follow-up use ResolveOffer instead.
func (s *gormStore) MarkTerminal(ctx context.Context, offerID int64, status model.OfferStatus) (*model.BookingOffer, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("%q is not a terminal offer status", status)
	}

	if err := markTerminal(s.db.WithContext(ctx), offerID, status, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.GetOffer(ctx, offerID)
}

// ExtendOffer refreshes the expiry on a Pending offer only.
func (s *gormStore) ExtendOffer(ctx context.Context, offerID int64, expiresAt time.Time) (*model.BookingOffer, error) {
	res := s.db.WithContext(ctx).Model(&model.BookingOffer{}).
		Where("id = ? AND status = ?", offerID, model.OfferPending).
		Update("expires_at", expiresAt)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to extend offer %d: %w", offerID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrInvalidTransition
	}

	return s.GetOffer(ctx, offerID)
}

// ExpiredPending returns every Pending offer whose expiry has passed,
// ordered oldest first. The sweep feeds these into Skip.
func (s *gormStore) ExpiredPending(ctx context.Context, now time.Time) ([]model.BookingOffer, error) {
	var offers []model.BookingOffer
	err := s.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", model.OfferPending, now).
		Order("expires_at ASC").
		Find(&offers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired offers: %w", err)
	}
	return offers, nil
}
