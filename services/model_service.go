package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"

	"kick-prediction-api/config"
	"kick-prediction-api/models"
)

// ErrModelNotLoaded is returned by Predict before a successful Load.
var ErrModelNotLoaded = errors.New("model not loaded")

// modelArtifact holds the exported parameters of the binary classifier.
// The artifact is a JSON document published alongside the training run.
type modelArtifact struct {
	ModelType    string    `json:"model_type"`
	Classes      []float64 `json:"classes"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	FeatureOrder []string  `json:"feature_order"`
}

// ModelService owns the loaded classifier. Load writes under the lock,
// Predict takes a read lock, so an admin-triggered reload cannot tear the
// state seen by in-flight predictions.
type ModelService struct {
	cfg    config.ModelConfig
	client *resty.Client

	mu          sync.RWMutex
	model       *modelArtifact
	modelName   string
	initialized bool
}

func NewModelService(cfg config.ModelConfig) *ModelService {
	client := resty.New().
		SetBaseURL(cfg.HubBaseURL).
		SetTimeout(cfg.DownloadTimeout).
		SetRetryCount(2)

	return &ModelService{cfg: cfg, client: client}
}

func (s *ModelService) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

func (s *ModelService) ModelName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modelName
}

// Load fetches the artifact for repoID from the model hub (or the local
// cache) and swaps it in. Reloading the same repo is a no-op. On failure
// the previously loaded model, if any, stays active.
func (s *ModelService) Load(ctx context.Context, repoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized && s.modelName == repoID {
		log.Info().Str("repo_id", repoID).Msg("model already loaded")
		return nil
	}

	path, err := s.fetchArtifact(ctx, repoID)
	if err != nil {
		return fmt.Errorf("unable to load model %s: %w", repoID, err)
	}

	artifact, err := readArtifact(path)
	if err != nil {
		return fmt.Errorf("unable to load model %s: %w", repoID, err)
	}

	s.model = artifact
	s.modelName = repoID
	s.initialized = true

	log.Info().
		Str("repo_id", repoID).
		Str("model_type", artifact.ModelType).
		Int("features", len(artifact.Coefficients)).
		Msg("model loaded")
	return nil
}

// Predict runs inference on the fixed-order feature vector. It returns the
// argmax class label and the maximum class probability.
func (s *ModelService) Predict(features [models.FeatureCount]float64) (float64, float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized || s.model == nil {
		return 0, 0, ErrModelNotLoaded
	}

	z := floats.Dot(s.model.Coefficients, features[:]) + s.model.Intercept
	pPositive := 1.0 / (1.0 + math.Exp(-z))
	if math.IsNaN(pPositive) || math.IsInf(pPositive, 0) {
		return 0, 0, fmt.Errorf("inference produced invalid probability for input %v", features)
	}

	confidence := math.Max(pPositive, 1-pPositive)
	prediction := s.model.Classes[0]
	if pPositive >= 0.5 {
		prediction = s.model.Classes[1]
	}
	return prediction, confidence, nil
}

// fetchArtifact resolves the artifact on disk, downloading it from the hub
// on a cache miss. Callers hold the write lock.
func (s *ModelService) fetchArtifact(ctx context.Context, repoID string) (string, error) {
	cached := filepath.Join(s.cfg.CacheDir, strings.ReplaceAll(repoID, "/", "--"), s.cfg.FileName)
	if _, err := os.Stat(cached); err == nil {
		log.Debug().Str("path", cached).Msg("using cached model artifact")
		return cached, nil
	}

	if err := os.MkdirAll(filepath.Dir(cached), 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	log.Info().Str("repo_id", repoID).Str("hub", s.cfg.HubBaseURL).Msg("downloading model artifact")

	resp, err := s.client.R().
		SetContext(ctx).
		SetOutput(cached).
		Get(fmt.Sprintf("/%s/resolve/main/%s", repoID, s.cfg.FileName))
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	if resp.IsError() {
		os.Remove(cached)
		return "", fmt.Errorf("download failed: hub returned status %d", resp.StatusCode())
	}

	return cached, nil
}

func readArtifact(path string) (*modelArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	var artifact modelArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("parse artifact: %w", err)
	}

	if len(artifact.Coefficients) != models.FeatureCount {
		return nil, fmt.Errorf("artifact has %d coefficients, want %d", len(artifact.Coefficients), models.FeatureCount)
	}
	if len(artifact.Classes) != 2 {
		return nil, fmt.Errorf("artifact has %d classes, want 2", len(artifact.Classes))
	}

	return &artifact, nil
}
