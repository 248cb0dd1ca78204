package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"workshop-emergency-backend/config"
	"workshop-emergency-backend/internal/dispatch"
	"workshop-emergency-backend/internal/mw"
	"workshop-emergency-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(s store.Store, ctrl *dispatch.Controller, cfg *config.ServerConfig, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	db := s.DB()
	handler := NewHandler(s, ctrl, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// Catalog and candidate search. Read-only, cached.
		api.GET("/services", caching, GetServices(db))
		api.GET("/services/:service_id/workshops", caching, SearchWorkshops(db))

		// Dispatch engine operations.
		api.POST("/bookings", handler.CreateBooking)
		api.GET("/bookings/:booking_id", handler.GetBooking)
		api.POST("/bookings/:booking_id/skip", handler.SkipBooking)
		api.POST("/bookings/:booking_id/extend", handler.ExtendBooking)
		api.POST("/bookings/:booking_id/cancel", handler.CancelBooking)
		api.POST("/offers/:offer_id/respond", handler.RespondOffer)

		// Listing views.
		api.GET("/customers/:customer_id/bookings", ListCustomerBookings(db))
		api.GET("/workshops/:workshop_id/offers", ListWorkshopOffers(db))

		// Push subscription management.
		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
