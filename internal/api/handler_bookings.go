package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"workshop-emergency-backend/internal/dispatch"
	"workshop-emergency-backend/internal/model"
)

type createBookingRequest struct {
	CustomerID  int64      `json:"customerId" binding:"required"`
	VehicleID   int64      `json:"vehicleId" binding:"required"`
	ServiceID   int64      `json:"serviceId" binding:"required"`
	Notes       string     `json:"notes"`
	Address     string     `json:"address" binding:"required"`
	Latitude    *float64   `json:"latitude"`
	Longitude   *float64   `json:"longitude"`
	Price       float64    `json:"price"`
	RequestedAt *time.Time `json:"requestedAt"`
	WorkshopIDs []int64    `json:"workshopIds" binding:"required,min=1"`
}

// CreateBooking handles POST /api/bookings: creates the booking and its
// candidate queue and activates the first workshop.
func (h *Handler) CreateBooking(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	createReq := dispatch.CreateRequest{
		CustomerID:  req.CustomerID,
		VehicleID:   req.VehicleID,
		ServiceID:   req.ServiceID,
		Notes:       req.Notes,
		Address:     req.Address,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Price:       req.Price,
		WorkshopIDs: req.WorkshopIDs,
	}
	if req.RequestedAt != nil {
		createReq.RequestedAt = *req.RequestedAt
	}

	bookingID, err := h.ctrl.Create(c.Request.Context(), createReq)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"bookingId": bookingID})
}

// GetBooking handles GET /api/bookings/{booking_id}: the booking with its
// offer queue in sequence order.
func (h *Handler) GetBooking(c *gin.Context) {
	bookingID, err := strconv.ParseInt(c.Param("booking_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	booking, err := h.store.GetBooking(c.Request.Context(), bookingID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, booking)
}

type respondRequest struct {
	Action string `json:"action" binding:"required"`
}

// RespondOffer handles POST /api/offers/{offer_id}/respond with an accept or
// reject action from the workshop.
func (h *Handler) RespondOffer(c *gin.Context) {
	offerID, err := strconv.ParseInt(c.Param("offer_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offer id"})
		return
	}

	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := h.ctrl.Respond(c.Request.Context(), offerID, dispatch.Action(req.Action))
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"bookingStatus": status})
}

type actorRequest struct {
	UserID int64 `json:"userId"`
}

// SkipBooking handles POST /api/bookings/{booking_id}/skip: explicit manual
// escalation past the current pending workshop.
func (h *Handler) SkipBooking(c *gin.Context) {
	bookingID, err := strconv.ParseInt(c.Param("booking_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.ctrl.Skip(c.Request.Context(), bookingID, req.UserID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// ExtendBooking handles POST /api/bookings/{booking_id}/extend: grants the
// current pending workshop another TTL window.
func (h *Handler) ExtendBooking(c *gin.Context) {
	bookingID, err := strconv.ParseInt(c.Param("booking_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	newExpiry, err := h.ctrl.Extend(c.Request.Context(), bookingID, req.UserID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"expiresAt": newExpiry})
}

// CancelBooking handles POST /api/bookings/{booking_id}/cancel.
func (h *Handler) CancelBooking(c *gin.Context) {
	bookingID, err := strconv.ParseInt(c.Param("booking_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.ctrl.Cancel(c.Request.Context(), bookingID, req.UserID); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": model.BookingCancelled})
}

// ListCustomerBookings handles GET /api/customers/{customer_id}/bookings.
func ListCustomerBookings(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		customerID, err := strconv.ParseInt(c.Param("customer_id"), 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid customer id"})
			return
		}

		var bookings []model.EmergencyBooking
		err = db.
			Preload("Offers", func(db *gorm.DB) *gorm.DB {
				return db.Order("sequence ASC")
			}).
			Where("customer_id = ?", customerID).
			Order("requested_at DESC").
			Find(&bookings).Error
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve bookings"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"bookings": bookings})
	}
}

// workshopOfferRow is the flattened inbox entry for a workshop: the offer
// plus the booking details it needs to decide.
type workshopOfferRow struct {
	OfferID       int64               `json:"offerId"`
	BookingID     int64               `json:"bookingId"`
	Status        model.OfferStatus   `json:"status"`
	ExpiresAt     *time.Time          `json:"expiresAt"`
	BookingStatus model.BookingStatus `json:"bookingStatus"`
	Address       string              `json:"address"`
	Notes         string              `json:"notes"`
	Price         float64             `json:"price"`
	RequestedAt   time.Time           `json:"requestedAt"`
}

// ListWorkshopOffers handles GET /api/workshops/{workshop_id}/offers: the
// Pending and Accepted offers currently relevant to a workshop.
func ListWorkshopOffers(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		workshopID, err := strconv.ParseInt(c.Param("workshop_id"), 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid workshop id"})
			return
		}

		var rows []workshopOfferRow
		err = db.Model(&model.BookingOffer{}).
			Select(`booking_offers.id AS offer_id,
				booking_offers.booking_id AS booking_id,
				booking_offers.status AS status,
				booking_offers.expires_at AS expires_at,
				emergency_bookings.status AS booking_status,
				emergency_bookings.address AS address,
				emergency_bookings.notes AS notes,
				emergency_bookings.price AS price,
				emergency_bookings.requested_at AS requested_at`).
			Joins("JOIN emergency_bookings ON emergency_bookings.id = booking_offers.booking_id").
			Where("booking_offers.workshop_id = ? AND booking_offers.status IN ?",
				workshopID, []model.OfferStatus{model.OfferPending, model.OfferAccepted}).
			Order("emergency_bookings.requested_at DESC").
			Scan(&rows).Error
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve offers"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"offers": rows})
	}
}
