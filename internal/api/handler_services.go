package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"workshop-emergency-backend/internal/model"
)

// GetServices handles GET /api/services: the active emergency service catalog.
func GetServices(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var services []model.EmergencyService
		if err := db.Where("active = ?", true).Order("id ASC").Find(&services).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve services"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"services": services})
	}
}
