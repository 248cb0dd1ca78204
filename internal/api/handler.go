package api

import (
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"workshop-emergency-backend/internal/dispatch"
	"workshop-emergency-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	ctrl    *dispatch.Controller
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, ctrl *dispatch.Controller, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:   s,
		ctrl:    ctrl,
		webpush: webpushOptions,
	}
}

// statusForError maps engine errors to HTTP status codes. State conflicts are
// 409: someone else already handled the offer, which the client should treat
// as a normal outcome rather than a failure.
func statusForError(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidCandidateList), errors.Is(err, dispatch.ErrInvalidAction):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrCustomerNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, dispatch.ErrNoPendingRequest), errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
