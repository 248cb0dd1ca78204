package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"workshop-emergency-backend/internal/model"
	"workshop-emergency-backend/internal/store"
)

// Errors returned by controller operations. ErrNoPendingRequest is the guard
// against double responses and response/skip races: whoever loses the race
// observes it and treats the request as already handled.
var (
	ErrNoPendingRequest = errors.New("no pending offer for this booking")
	ErrInvalidAction    = errors.New("action must be accept or reject")
)

// Action is a workshop's answer to a pending offer.
type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

// Notification categories, kept stable for client-side filtering.
const (
	CategoryRequest   = "EmergencyRequest"
	CategoryStatus    = "EmergencyStatus"
	CategoryExtension = "EmergencyExtension"
	CategorySkipped   = "EmergencySkipped"
)

// Notifier is the one-way contract with the notification sink. Delivery is
// best-effort: implementations log failures and never report them back, so a
// notification problem can never roll back a state transition.
type Notifier interface {
	Notify(ctx context.Context, senderUserID, receiverUserID int64, message, category string)
}

// Controller is the dispatch state machine. It exclusively owns writes to the
// offer ledger and to the booking's status/confirmed-workshop fields. Each
// offer resolution and its booking follow-up commit together through
// store.ResolveOffer, and the conditional updates inside it make concurrent
// calls on the same offer resolve to one winner.
type Controller struct {
	store        store.Store
	notifier     Notifier
	ttl          time.Duration
	systemUserID int64
}

// NewController creates a dispatch controller. ttl is the fixed duration an
// offer stays Pending before the sweep may skip it.
func NewController(s store.Store, n Notifier, ttl time.Duration, systemUserID int64) *Controller {
	return &Controller{
		store:        s,
		notifier:     n,
		ttl:          ttl,
		systemUserID: systemUserID,
	}
}

// TTL returns the configured offer time limit.
func (c *Controller) TTL() time.Duration {
	return c.ttl
}

// CreateRequest carries the inputs for a new emergency booking. WorkshopIDs
// is the dispatch order; callers may take it from the scorer's ranking or
// supply their own.
type CreateRequest struct {
	CustomerID  int64
	VehicleID   int64
	ServiceID   int64
	Notes       string
	Address     string
	Latitude    *float64
	Longitude   *float64
	Price       float64
	RequestedAt time.Time
	WorkshopIDs []int64
}

// Create persists the booking with its full candidate queue, activates the
// first candidate and notifies both sides. Returns the new booking id.
func (c *Controller) Create(ctx context.Context, req CreateRequest) (int64, error) {
	if len(req.WorkshopIDs) == 0 {
		return 0, store.ErrInvalidCandidateList
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}

	booking := &model.EmergencyBooking{
		CustomerID:  req.CustomerID,
		VehicleID:   req.VehicleID,
		ServiceID:   req.ServiceID,
		Notes:       req.Notes,
		Address:     req.Address,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Price:       req.Price,
		RequestedAt: req.RequestedAt,
	}

	expiresAt := time.Now().UTC().Add(c.ttl)
	if err := c.store.CreateBookingWithQueue(ctx, booking, req.WorkshopIDs, expiresAt); err != nil {
		return 0, err
	}

	customerUserID, err := c.store.CustomerUserID(ctx, req.CustomerID)
	if err != nil {
		// The booking is already committed; routing info is only needed for
		// the advisory notifications.
		log.Printf("dispatch: could not resolve customer %d for booking %d notifications: %v", req.CustomerID, booking.ID, err)
		customerUserID = c.systemUserID
	}

	c.notifyWorkshop(ctx, customerUserID, req.WorkshopIDs[0],
		fmt.Sprintf("Emergency request in your zone. Accept within %d minutes or it moves on.", int(c.ttl.Minutes())),
		CategoryRequest)
	c.notifier.Notify(ctx, c.systemUserID, customerUserID,
		fmt.Sprintf("Request sent. Waiting up to %d minutes for the workshop to respond.", int(c.ttl.Minutes())),
		CategoryStatus)

	return booking.ID, nil
}

// Respond applies a workshop's accept or reject to a pending offer.
//
// Accept confirms the booking for this workshop and rejects every other
// non-terminal offer so no further cascading can occur. Reject closes the
// offer and cascades to the next candidate. Either way the offer must still
// be Pending; a stale or duplicate response gets ErrNoPendingRequest.
func (c *Controller) Respond(ctx context.Context, offerID int64, action Action) (model.BookingStatus, error) {
	if action != ActionAccept && action != ActionReject {
		return "", ErrInvalidAction
	}

	offer, err := c.store.GetOffer(ctx, offerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNoPendingRequest
		}
		return "", err
	}

	// Lazy expiry enforcement: an answer that arrives after the window
	// closed is treated exactly as if the sweep had already skipped it,
	// cascade included.
	if offer.Status == model.OfferPending && offer.ExpiresAt != nil && offer.ExpiresAt.Before(time.Now().UTC()) {
		outcome, serr := c.store.ResolveOffer(ctx, offer.ID, model.OfferSkipped, time.Now().UTC().Add(c.ttl))
		switch {
		case serr == nil:
			c.notifyWorkshop(ctx, c.systemUserID, offer.WorkshopID,
				"Time's up: this emergency request was passed to another workshop.", CategorySkipped)
			c.notifyCascade(ctx, outcome)
		case errors.Is(serr, store.ErrInvalidTransition):
			// Someone else already closed the offer; leave the queue alone.
		default:
			return "", serr
		}
		return "", ErrNoPendingRequest
	}

	status := model.OfferRejected
	if action == ActionAccept {
		status = model.OfferAccepted
	}

	outcome, err := c.store.ResolveOffer(ctx, offerID, status, time.Now().UTC().Add(c.ttl))
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			return "", ErrNoPendingRequest
		}
		return "", err
	}

	workshopUserID, werr := c.store.WorkshopOwnerUserID(ctx, offer.WorkshopID)
	if werr != nil {
		log.Printf("dispatch: could not resolve workshop %d owner: %v", offer.WorkshopID, werr)
		workshopUserID = c.systemUserID
	}

	if action == ActionAccept {
		c.notifyCustomer(ctx, workshopUserID, offer.BookingID,
			"Your emergency request has been accepted by the workshop.", CategoryStatus)
		return model.BookingConfirmed, nil
	}

	c.notifier.Notify(ctx, c.systemUserID, workshopUserID,
		"The response window for this emergency request has closed.", CategorySkipped)
	c.notifyCascade(ctx, outcome)
	return outcome.BookingStatus, nil
}

// SkipResult reports what the cascade did after a skip.
type SkipResult struct {
	Skipped   *model.BookingOffer `json:"skipped"`
	Activated *model.BookingOffer `json:"activated,omitempty"`
	Exhausted bool                `json:"exhausted"`
}

// Skip marks the current pending offer as Skipped and cascades to the next
// candidate. Used by operators and customers who do not want to wait out the
// TTL, and by the expiry sweep once the window lapses.
func (c *Controller) Skip(ctx context.Context, bookingID, actorUserID int64) (*SkipResult, error) {
	pending, err := c.store.CurrentPending(ctx, bookingID)
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			return nil, ErrNoPendingRequest
		}
		return nil, err
	}

	outcome, err := c.store.ResolveOffer(ctx, pending.ID, model.OfferSkipped, time.Now().UTC().Add(c.ttl))
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			return nil, ErrNoPendingRequest
		}
		return nil, err
	}

	c.notifyWorkshop(ctx, actorUserID, outcome.Offer.WorkshopID,
		"Time's up: this emergency request was passed to another workshop.", CategorySkipped)
	c.notifyCascade(ctx, outcome)

	return &SkipResult{
		Skipped:   outcome.Offer,
		Activated: outcome.Activated,
		Exhausted: outcome.BookingStatus == model.BookingExhausted,
	}, nil
}

// Extend refreshes the expiry of the current pending offer and tells the
// workshop it has been granted additional time.
func (c *Controller) Extend(ctx context.Context, bookingID, actorUserID int64) (time.Time, error) {
	pending, err := c.store.CurrentPending(ctx, bookingID)
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			return time.Time{}, ErrNoPendingRequest
		}
		return time.Time{}, err
	}

	newExpiry := time.Now().UTC().Add(c.ttl)
	if _, err := c.store.ExtendOffer(ctx, pending.ID, newExpiry); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			return time.Time{}, ErrNoPendingRequest
		}
		return time.Time{}, err
	}

	c.notifyWorkshop(ctx, actorUserID, pending.WorkshopID,
		fmt.Sprintf("Extra time granted: %d more minutes to accept this emergency request.", int(c.ttl.Minutes())),
		CategoryExtension)

	return newExpiry, nil
}

// Cancel moves a Requested booking to Cancelled and closes any pending offer
// so no further cascade can run.
func (c *Controller) Cancel(ctx context.Context, bookingID, actorUserID int64) error {
	if err := c.store.CancelBooking(ctx, bookingID); err != nil {
		return err
	}

	pending, err := c.store.CurrentPending(ctx, bookingID)
	if err != nil {
		// No pending offer left to withdraw.
		return nil
	}

	if _, err := c.store.MarkTerminal(ctx, pending.ID, model.OfferSkipped); err != nil &&
		!errors.Is(err, store.ErrInvalidTransition) {
		return err
	}
	c.notifyWorkshop(ctx, actorUserID, pending.WorkshopID,
		"The customer cancelled this emergency request.", CategorySkipped)
	return nil
}

// notifyCascade announces how an advance ended: the next workshop's turn, or
// no workshop left for the customer.
func (c *Controller) notifyCascade(ctx context.Context, outcome *store.ResolveOutcome) {
	if outcome.Activated != nil {
		c.notifyWorkshop(ctx, c.systemUserID, outcome.Activated.WorkshopID,
			fmt.Sprintf("New emergency request for your workshop. You have %d minutes to take it.", int(c.ttl.Minutes())),
			CategoryRequest)
		return
	}
	if outcome.BookingStatus == model.BookingExhausted {
		c.notifyCustomer(ctx, c.systemUserID, outcome.Offer.BookingID,
			"No workshop is available for your emergency request. Please submit a new one.", CategoryStatus)
	}
}

// notifyWorkshop routes a message to the owner of the given workshop.
func (c *Controller) notifyWorkshop(ctx context.Context, senderUserID, workshopID int64, message, category string) {
	ownerUserID, err := c.store.WorkshopOwnerUserID(ctx, workshopID)
	if err != nil {
		log.Printf("dispatch: could not resolve workshop %d owner for notification: %v", workshopID, err)
		return
	}
	c.notifier.Notify(ctx, senderUserID, ownerUserID, message, category)
}

// notifyCustomer routes a message to the customer who owns the booking.
func (c *Controller) notifyCustomer(ctx context.Context, senderUserID, bookingID int64, message, category string) {
	booking, err := c.store.GetBooking(ctx, bookingID)
	if err != nil {
		log.Printf("dispatch: could not load booking %d for notification: %v", bookingID, err)
		return
	}
	customerUserID, err := c.store.CustomerUserID(ctx, booking.CustomerID)
	if err != nil {
		log.Printf("dispatch: could not resolve customer %d for notification: %v", booking.CustomerID, err)
		return
	}
	c.notifier.Notify(ctx, senderUserID, customerUserID, message, category)
}
