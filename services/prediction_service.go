package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"kick-prediction-api/metrics"
	"kick-prediction-api/models"
)

// LiveChannel is the redis pub/sub channel carrying newly persisted
// predictions for websocket subscribers.
const LiveChannel = "kickpredict:live"

// PredictionService orchestrates one inference attempt: run the model,
// measure cost, write the audit row, publish the result. Every request
// leaves exactly one row behind, success or not.
type PredictionService struct {
	model   *ModelService
	store   *PredictionStore
	cache   *CacheService
	stats   *ProcessStats
	metrics *metrics.Metrics
}

func NewPredictionService(model *ModelService, store *PredictionStore, cache *CacheService, stats *ProcessStats, m *metrics.Metrics) *PredictionService {
	return &PredictionService{
		model:   model,
		store:   store,
		cache:   cache,
		stats:   stats,
		metrics: m,
	}
}

// Process returns the class label and confidence for the request. The
// returned error is ErrModelNotLoaded when no classifier is available,
// otherwise the underlying inference error. Audit-write failures are
// logged and counted, never propagated.
func (s *PredictionService) Process(ctx context.Context, req *models.KickPredictionRequest) (float64, float64, error) {
	start := time.Now()

	rec := req.Record()
	rec.StatusCode = http.StatusOK

	defer func() {
		elapsed := time.Since(start)
		latencyMs := float64(elapsed.Microseconds()) / 1000.0
		rec.LatencyMs = &latencyMs
		rec.CPUUsagePercent, rec.MemoryUsageMB = s.stats.Sample()

		s.metrics.PredictionLatency.Observe(elapsed.Seconds())

		if err := s.store.Create(ctx, rec); err != nil {
			s.metrics.AuditWriteFailures.Inc()
			log.Error().Err(err).Int("status", rec.StatusCode).Msg("failed to persist prediction record")
			return
		}
		if rec.StatusCode == http.StatusOK {
			s.publishLive(rec)
		}
	}()

	prediction, confidence, err := s.model.Predict(req.FeatureVector())
	if err != nil {
		s.metrics.PredictionFailures.Inc()
		msg := err.Error()
		rec.ErrorMessage = &msg
		if errors.Is(err, ErrModelNotLoaded) {
			rec.StatusCode = http.StatusServiceUnavailable
		} else {
			rec.StatusCode = http.StatusInternalServerError
		}
		log.Warn().Err(err).Msg("prediction failed")
		return 0, 0, err
	}

	s.metrics.PredictionsTotal.Inc()
	rec.Prediction = &prediction
	rec.Confidence = &confidence

	log.Debug().
		Float64("prediction", prediction).
		Float64("confidence", confidence).
		Msg("prediction served")
	return prediction, confidence, nil
}

// publishLive pushes the persisted record to websocket subscribers. The
// request context may already be done by the time the row is written, so
// the publish gets its own short deadline.
func (s *PredictionService) publishLive(rec *models.PredictionInput) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.cache.Publish(ctx, LiveChannel, rec); err != nil {
		log.Warn().Err(err).Msg("failed to publish prediction to live channel")
	}
}
