package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"kick-prediction-api/config"
	"kick-prediction-api/metrics"
	"kick-prediction-api/middleware"
	"kick-prediction-api/models"
	"kick-prediction-api/services"
)

const testAPIKey = "test-api-key"

func writeTestArtifact(t *testing.T, cacheDir string) {
	t.Helper()
	dir := filepath.Join(cacheDir, "acme--kick-model")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	artifact := map[string]interface{}{
		"model_type":   "logistic_regression",
		"classes":      []float64{0, 1},
		"coefficients": make([]float64, models.FeatureCount),
		"intercept":    2.0,
	}
	data, err := json.Marshal(artifact)
	if err != nil {
		t.Fatalf("marshal artifact: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "model.json"), data, 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
}

func setupTestAPI(t *testing.T, modelLoaded bool) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.PredictionInput{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	modelCfg := config.ModelConfig{
		RepoID:          "acme/kick-model",
		FileName:        "model.json",
		HubBaseURL:      "http://hub.invalid",
		CacheDir:        t.TempDir(),
		DownloadTimeout: 2 * time.Second,
	}
	model := services.NewModelService(modelCfg)
	if modelLoaded {
		writeTestArtifact(t, modelCfg.CacheDir)
		if err := model.Load(context.Background(), modelCfg.RepoID); err != nil {
			t.Fatalf("model load: %v", err)
		}
	}

	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	store := services.NewPredictionStore(db)
	var cache *services.CacheService // redis disabled in tests
	svc := services.NewPredictionService(model, store, cache, services.NewProcessStats(), m)
	h := NewPredictionHandler(svc, store, cache, model, m, modelCfg.RepoID)

	router := gin.New()
	api := router.Group("/api/v1")
	api.GET("/health", Health)
	authed := api.Group("", middleware.APIKeyAuth(testAPIKey))
	authed.POST("/predict", h.Predict)
	authed.GET("/predictions", h.ListPredictions)
	authed.GET("/predictions/:id", h.GetPrediction)
	authed.DELETE("/predictions/:id", h.DeletePrediction)
	authed.POST("/model/reload", h.ReloadModel)

	return router, db
}

func doJSON(router *gin.Engine, method, path, body string, withKey bool) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if withKey {
		req.Header.Set(middleware.APIKeyHeader, testAPIKey)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const validBody = `{
	"time_norm": 0.5,
	"distance": 30,
	"angle": 45,
	"wind_speed": 5.2,
	"precipitation_probability": 0.3,
	"is_left_footed": 1,
	"game_away": 0,
	"is_endgame": 0,
	"is_start": 0,
	"is_left_side": 1,
	"has_previous_attempts": 0
}`

func TestHealth(t *testing.T) {
	router, _ := setupTestAPI(t, true)

	w := doJSON(router, http.MethodGet, "/api/v1/health", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp models.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
}

func TestEndpointsRequireAPIKey(t *testing.T) {
	router, _ := setupTestAPI(t, true)

	tests := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodPost, "/api/v1/predict", validBody},
		{http.MethodGet, "/api/v1/predictions", ""},
		{http.MethodGet, "/api/v1/predictions/1", ""},
		{http.MethodDelete, "/api/v1/predictions/1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := doJSON(router, tt.method, tt.path, tt.body, false)
			if w.Code != http.StatusForbidden {
				t.Errorf("status = %d, want 403 without key", w.Code)
			}
		})
	}
}

func TestPredictSuccess(t *testing.T) {
	router, db := setupTestAPI(t, true)

	w := doJSON(router, http.MethodPost, "/api/v1/predict", validBody, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}

	var resp models.KickPredictionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Prediction != 1 {
		t.Errorf("prediction = %v, want 1", resp.Prediction)
	}
	wantConfidence := 1 / (1 + math.Exp(-2.0))
	if math.Abs(resp.Confidence-wantConfidence) > 1e-9 {
		t.Errorf("confidence = %v, want %v", resp.Confidence, wantConfidence)
	}

	var recs []models.PredictionInput
	if err := db.Find(&recs).Error; err != nil {
		t.Fatalf("query records: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("persisted %d records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.StatusCode != 200 {
		t.Errorf("status_code = %d, want 200", rec.StatusCode)
	}
	if rec.ErrorMessage != nil {
		t.Errorf("error_message = %v, want nil", *rec.ErrorMessage)
	}
	if rec.TimeNorm != 0.5 || rec.Distance != 30 || rec.Angle != 45 ||
		rec.WindSpeed != 5.2 || rec.PrecipitationProbability != 0.3 ||
		rec.IsLeftFooted != 1 || rec.GameAway != 0 || rec.IsEndgame != 0 ||
		rec.IsStart != 0 || rec.IsLeftSide != 1 || rec.HasPreviousAttempts != 0 {
		t.Error("persisted feature fields do not equal the request fields")
	}
	if rec.Prediction == nil || *rec.Prediction != resp.Prediction {
		t.Errorf("persisted prediction = %v, want %v", rec.Prediction, resp.Prediction)
	}
	if rec.Confidence == nil || *rec.Confidence != resp.Confidence {
		t.Errorf("persisted confidence = %v, want %v", rec.Confidence, resp.Confidence)
	}
}

func TestPredictValidation(t *testing.T) {
	router, db := setupTestAPI(t, true)

	tests := []struct {
		name string
		body string
	}{
		{"non-numeric distance", `{"time_norm":0.5,"distance":"far","angle":45,"wind_speed":5.2,"precipitation_probability":0.3,"is_left_footed":1,"game_away":0,"is_endgame":0,"is_start":0,"is_left_side":1,"has_previous_attempts":0}`},
		{"distance out of range", `{"time_norm":0.5,"distance":100,"angle":45,"wind_speed":5.2,"precipitation_probability":0.3,"is_left_footed":1,"game_away":0,"is_endgame":0,"is_start":0,"is_left_side":1,"has_previous_attempts":0}`},
		{"time_norm below range", `{"time_norm":0.001,"distance":30,"angle":45,"wind_speed":5.2,"precipitation_probability":0.3,"is_left_footed":1,"game_away":0,"is_endgame":0,"is_start":0,"is_left_side":1,"has_previous_attempts":0}`},
		{"flag out of range", `{"time_norm":0.5,"distance":30,"angle":45,"wind_speed":5.2,"precipitation_probability":0.3,"is_left_footed":2,"game_away":0,"is_endgame":0,"is_start":0,"is_left_side":1,"has_previous_attempts":0}`},
		{"missing field", `{"time_norm":0.5,"angle":45,"wind_speed":5.2,"precipitation_probability":0.3,"is_left_footed":1,"game_away":0,"is_endgame":0,"is_start":0,"is_left_side":1,"has_previous_attempts":0}`},
		{"empty body", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, http.MethodPost, "/api/v1/predict", tt.body, true)
			if w.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422", w.Code)
			}
		})
	}

	// Validation failures must not leave audit rows behind
	var count int64
	if err := db.Model(&models.PredictionInput{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("found %d persisted records after validation failures, want 0", count)
	}
}

func TestPredictZeroValuedFieldsAccepted(t *testing.T) {
	router, _ := setupTestAPI(t, true)

	body := `{"time_norm":0.5,"distance":30,"angle":0,"wind_speed":0,"precipitation_probability":0,"is_left_footed":0,"game_away":0,"is_endgame":0,"is_start":0,"is_left_side":0,"has_previous_attempts":0}`
	w := doJSON(router, http.MethodPost, "/api/v1/predict", body, true)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for present zero-valued fields, body: %s", w.Code, w.Body.String())
	}
}

func TestPredictModelUnavailable(t *testing.T) {
	router, db := setupTestAPI(t, false)

	w := doJSON(router, http.MethodPost, "/api/v1/predict", validBody, true)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503, body: %s", w.Code, w.Body.String())
	}

	var recs []models.PredictionInput
	if err := db.Find(&recs).Error; err != nil {
		t.Fatalf("query records: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("persisted %d records, want 1 (failures are audited)", len(recs))
	}
	rec := recs[0]
	if rec.StatusCode != 503 {
		t.Errorf("status_code = %d, want 503", rec.StatusCode)
	}
	if rec.ErrorMessage == nil || *rec.ErrorMessage == "" {
		t.Error("error_message should record the failure reason")
	}
	if rec.Prediction != nil || rec.Confidence != nil {
		t.Error("prediction and confidence must be null on failure")
	}
}

func TestGetPredictionRoundTrip(t *testing.T) {
	router, db := setupTestAPI(t, true)

	w := doJSON(router, http.MethodPost, "/api/v1/predict", validBody, true)
	if w.Code != http.StatusOK {
		t.Fatalf("predict status = %d, want 200", w.Code)
	}
	var posted models.KickPredictionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &posted); err != nil {
		t.Fatalf("decode: %v", err)
	}

	var created models.PredictionInput
	if err := db.Order("id DESC").First(&created).Error; err != nil {
		t.Fatalf("lookup created row: %v", err)
	}

	w = doJSON(router, http.MethodGet, fmt.Sprintf("/api/v1/predictions/%d", created.ID), "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", w.Code)
	}
	var got models.PredictionInput
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("id = %d, want %d", got.ID, created.ID)
	}
	if got.Prediction == nil || *got.Prediction != posted.Prediction {
		t.Errorf("prediction = %v, want %v", got.Prediction, posted.Prediction)
	}
	if got.Confidence == nil || *got.Confidence != posted.Confidence {
		t.Errorf("confidence = %v, want %v", got.Confidence, posted.Confidence)
	}
}

func TestGetPredictionNotFound(t *testing.T) {
	router, _ := setupTestAPI(t, true)

	w := doJSON(router, http.MethodGet, "/api/v1/predictions/9999", "", true)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetPredictionInvalidID(t *testing.T) {
	router, _ := setupTestAPI(t, true)

	w := doJSON(router, http.MethodGet, "/api/v1/predictions/abc", "", true)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestListPredictions(t *testing.T) {
	router, _ := setupTestAPI(t, true)

	for i := 0; i < 3; i++ {
		if w := doJSON(router, http.MethodPost, "/api/v1/predict", validBody, true); w.Code != http.StatusOK {
			t.Fatalf("predict %d status = %d, want 200", i, w.Code)
		}
	}

	w := doJSON(router, http.MethodGet, "/api/v1/predictions", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var recs []models.PredictionInput
	if err := json.Unmarshal(w.Body.Bytes(), &recs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("len = %d, want 3", len(recs))
	}

	w = doJSON(router, http.MethodGet, "/api/v1/predictions?skip=1&limit=1", "", true)
	if err := json.Unmarshal(w.Body.Bytes(), &recs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("paginated len = %d, want 1", len(recs))
	}
	if recs[0].ID != 2 {
		t.Errorf("paginated id = %d, want 2", recs[0].ID)
	}
}

func TestDeletePrediction(t *testing.T) {
	router, db := setupTestAPI(t, true)

	if w := doJSON(router, http.MethodPost, "/api/v1/predict", validBody, true); w.Code != http.StatusOK {
		t.Fatalf("predict status = %d, want 200", w.Code)
	}
	var created models.PredictionInput
	if err := db.First(&created).Error; err != nil {
		t.Fatalf("lookup created row: %v", err)
	}

	path := fmt.Sprintf("/api/v1/predictions/%d", created.ID)

	w := doJSON(router, http.MethodDelete, path, "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", w.Code)
	}

	w = doJSON(router, http.MethodGet, path, "", true)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}

	w = doJSON(router, http.MethodDelete, path, "", true)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestReloadModelIsIdempotent(t *testing.T) {
	router, _ := setupTestAPI(t, true)

	w := doJSON(router, http.MethodPost, "/api/v1/model/reload", "", true)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for reloading the active model, body: %s", w.Code, w.Body.String())
	}
}

func TestReloadModelFailure(t *testing.T) {
	router, _ := setupTestAPI(t, false)

	w := doJSON(router, http.MethodPost, "/api/v1/model/reload?repo_id=acme/missing-model", "", true)
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502 when the hub is unreachable", w.Code)
	}
}
