package dispatch

import (
	"context"
	"errors"
	"log"
	"time"

	"workshop-emergency-backend/config"
	"workshop-emergency-backend/internal/store"
)

// Sweeper periodically skips every booking whose pending offer has outlived
// its expiry, so stalled bookings advance without anyone noticing them by
// hand. Expiry is also enforced lazily on Respond; the sweep is the backstop.
type Sweeper struct {
	cfg   *config.DispatchConfig
	store store.Store
	ctrl  *Controller
}

// NewSweeper creates the expiry sweep service.
func NewSweeper(cfg *config.DispatchConfig, s store.Store, ctrl *Controller) *Sweeper {
	return &Sweeper{cfg: cfg, store: s, ctrl: ctrl}
}

// Run starts the sweep loop. It blocks until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if !s.cfg.SweepEnabled {
		log.Println("Expiry sweep is disabled. Not starting.")
		return
	}
	log.Printf("Starting expiry sweep every %s...", s.cfg.SweepInterval)

	s.SweepOnce(ctx)

	timer := time.NewTimer(s.cfg.SweepInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Expiry sweep shutting down.")
			return
		case <-timer.C:
			s.SweepOnce(ctx)
			timer.Reset(s.cfg.SweepInterval)
		}
	}
}

// SweepOnce skips every currently lapsed pending offer and returns how many
// bookings it advanced. A skip losing a race against a late Respond is a
// normal outcome, logged and counted as not advanced.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	expired, err := s.store.ExpiredPending(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("sweep: failed to list expired offers: %v", err)
		return 0
	}

	advanced := 0
	for _, offer := range expired {
		if _, err := s.ctrl.Skip(ctx, offer.BookingID, s.cfg.SystemUserID); err != nil {
			if errors.Is(err, ErrNoPendingRequest) {
				log.Printf("sweep: booking %d already handled", offer.BookingID)
				continue
			}
			log.Printf("sweep: failed to skip expired offer %d on booking %d: %v", offer.ID, offer.BookingID, err)
			continue
		}
		advanced++
	}

	if advanced > 0 {
		log.Printf("sweep: advanced %d booking(s) past expired offers", advanced)
	}
	return advanced
}
