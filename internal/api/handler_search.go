package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"workshop-emergency-backend/internal/model"
	"workshop-emergency-backend/internal/score"
)

// SearchWorkshops handles GET /api/services/{service_id}/workshops: the
// workshops offering the requested emergency service, ranked by locality and
// distance to the customer. The ranking is advisory; the client picks the
// final dispatch order for Create.
func SearchWorkshops(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		serviceID, err := strconv.ParseInt(c.Param("service_id"), 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid service id"})
			return
		}

		loc := score.Location{
			City:   c.Query("city"),
			Street: c.Query("street"),
		}
		if lat, ok := parseFloatQuery(c, "lat"); ok {
			loc.Latitude = &lat
		}
		if lon, ok := parseFloatQuery(c, "lon"); ok {
			loc.Longitude = &lon
		}

		var workshops []score.Workshop
		err = db.Model(&model.WorkshopService{}).
			Select(`workshops.id AS id,
				workshops.name AS name,
				workshops.rate AS rate,
				workshop_services.price AS price,
				workshops.city AS city,
				workshops.street AS street,
				workshops.latitude AS latitude,
				workshops.longitude AS longitude`).
			Joins("JOIN workshops ON workshops.id = workshop_services.workshop_id").
			Where("workshop_services.service_id = ?", serviceID).
			Scan(&workshops).Error
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve workshops"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"workshops": score.Rank(workshops, loc)})
	}
}

func parseFloatQuery(c *gin.Context, key string) (float64, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
