package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kick-prediction-api/models"
)

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:  "healthy",
		Message: "API is running correctly",
	})
}
