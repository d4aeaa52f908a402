package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"kick-prediction-api/metrics"
	"kick-prediction-api/models"
	"kick-prediction-api/services"
)

const listCacheTTL = 5 * time.Second

type PredictionHandler struct {
	svc         *services.PredictionService
	store       *services.PredictionStore
	cache       *services.CacheService
	model       *services.ModelService
	metrics     *metrics.Metrics
	defaultRepo string
}

func NewPredictionHandler(svc *services.PredictionService, store *services.PredictionStore, cache *services.CacheService, model *services.ModelService, m *metrics.Metrics, defaultRepo string) *PredictionHandler {
	return &PredictionHandler{svc: svc, store: store, cache: cache, model: model, metrics: m, defaultRepo: defaultRepo}
}

// Predict validates the request body, runs it through the orchestrator and
// maps the outcome to 200/503/500. Validation failures never reach the
// orchestrator and leave no audit row.
func (h *PredictionHandler) Predict(c *gin.Context) {
	var req models.KickPredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	prediction, confidence, err := h.svc.Process(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, services.ErrModelNotLoaded) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Model not loaded. Service unavailable."})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": fmt.Sprintf("Prediction failed: %s", err.Error())})
		return
	}

	c.JSON(http.StatusOK, models.KickPredictionResponse{
		Prediction: prediction,
		Confidence: confidence,
	})
}

func (h *PredictionHandler) GetPrediction(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	rec, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Prediction not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "database query failed"})
		return
	}

	c.JSON(http.StatusOK, rec)
}

func (h *PredictionHandler) ListPredictions(c *gin.Context) {
	p := ParsePagination(c)
	cacheKey := fmt.Sprintf("predictions:list:%d:%d", p.Skip, p.Limit)

	var cached []models.PredictionInput
	if err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil && cached != nil {
		c.JSON(http.StatusOK, cached)
		return
	}

	recs, err := h.store.List(c.Request.Context(), p.Skip, p.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "database query failed"})
		return
	}

	go h.cache.Set(context.Background(), cacheKey, recs, listCacheTTL)

	c.JSON(http.StatusOK, recs)
}

func (h *PredictionHandler) DeletePrediction(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	deleted, err := h.store.DeleteByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "database query failed"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Prediction not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Prediction deleted successfully"})
}

// ReloadModel re-runs the model load. Reloading the currently active repo
// is a no-op in the model service.
func (h *PredictionHandler) ReloadModel(c *gin.Context) {
	repoID := c.DefaultQuery("repo_id", h.defaultRepo)
	if repoID == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "repo_id is required"})
		return
	}

	if err := h.model.Load(c.Request.Context(), repoID); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"detail": fmt.Sprintf("Model load failed: %s", err.Error())})
		return
	}
	h.metrics.ModelLoaded.Set(1)

	c.JSON(http.StatusOK, gin.H{"message": "Model loaded successfully", "repo_id": repoID})
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "Invalid prediction id"})
		return 0, false
	}
	return uint(id), true
}
