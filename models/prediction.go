package models

import "time"

// FeatureCount is the dimensionality of the model's input vector.
const FeatureCount = 11

// PredictionInput is one persisted inference attempt, including the full
// feature set, the model output (null when inference failed) and the
// runtime cost sampled for the request.
type PredictionInput struct {
	ID                       uint      `gorm:"column:id;primaryKey" json:"id"`
	TimeNorm                 float64   `gorm:"column:time_norm;not null" json:"time_norm"`
	Distance                 int       `gorm:"column:distance;not null" json:"distance"`
	Angle                    int       `gorm:"column:angle;not null" json:"angle"`
	WindSpeed                float64   `gorm:"column:wind_speed;not null" json:"wind_speed"`
	PrecipitationProbability float64   `gorm:"column:precipitation_probability;not null" json:"precipitation_probability"`
	IsLeftFooted             int       `gorm:"column:is_left_footed;not null" json:"is_left_footed"`
	GameAway                 int       `gorm:"column:game_away;not null" json:"game_away"`
	IsEndgame                int       `gorm:"column:is_endgame;not null" json:"is_endgame"`
	IsStart                  int       `gorm:"column:is_start;not null" json:"is_start"`
	IsLeftSide               int       `gorm:"column:is_left_side;not null" json:"is_left_side"`
	HasPreviousAttempts      int       `gorm:"column:has_previous_attempts;not null" json:"has_previous_attempts"`
	Prediction               *float64  `gorm:"column:prediction" json:"prediction"`
	Confidence               *float64  `gorm:"column:confidence" json:"confidence"`
	LatencyMs                *float64  `gorm:"column:latency_ms" json:"latency_ms"`
	CPUUsagePercent          *float64  `gorm:"column:cpu_usage_percent" json:"cpu_usage_percent"`
	MemoryUsageMB            *float64  `gorm:"column:memory_usage_mb" json:"memory_usage_mb"`
	StatusCode               int       `gorm:"column:status_code;default:200" json:"status_code"`
	ErrorMessage             *string   `gorm:"column:error_message" json:"error_message"`
	CreatedAt                time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (PredictionInput) TableName() string { return "prediction_inputs" }

// KickPredictionRequest carries the features of one place-kick attempt.
// Fields are pointers so a present zero value (angle 0, flags 0) passes
// the required check while an absent field is rejected.
type KickPredictionRequest struct {
	TimeNorm                 *float64 `json:"time_norm" binding:"required,gte=0.01,lte=1"`
	Distance                 *int     `json:"distance" binding:"required,gte=2,lte=65"`
	Angle                    *int     `json:"angle" binding:"required,gte=0,lte=180"`
	WindSpeed                *float64 `json:"wind_speed" binding:"required,gte=0,lte=18.17"`
	PrecipitationProbability *float64 `json:"precipitation_probability" binding:"required,gte=0,lte=1"`
	IsLeftFooted             *int     `json:"is_left_footed" binding:"required,gte=0,lte=1"`
	GameAway                 *int     `json:"game_away" binding:"required,gte=0,lte=1"`
	IsEndgame                *int     `json:"is_endgame" binding:"required,gte=0,lte=1"`
	IsStart                  *int     `json:"is_start" binding:"required,gte=0,lte=1"`
	IsLeftSide               *int     `json:"is_left_side" binding:"required,gte=0,lte=1"`
	HasPreviousAttempts      *int     `json:"has_previous_attempts" binding:"required,gte=0,lte=1"`
}

// FeatureVector returns the features in the fixed column order the model
// was trained with. Unset fields default to 0.
func (r *KickPredictionRequest) FeatureVector() [FeatureCount]float64 {
	return [FeatureCount]float64{
		deref(r.TimeNorm),
		float64(derefInt(r.Distance)),
		float64(derefInt(r.Angle)),
		deref(r.WindSpeed),
		deref(r.PrecipitationProbability),
		float64(derefInt(r.IsLeftFooted)),
		float64(derefInt(r.GameAway)),
		float64(derefInt(r.IsEndgame)),
		float64(derefInt(r.IsStart)),
		float64(derefInt(r.IsLeftSide)),
		float64(derefInt(r.HasPreviousAttempts)),
	}
}

// Record builds the audit row for this request, feature columns only.
func (r *KickPredictionRequest) Record() *PredictionInput {
	return &PredictionInput{
		TimeNorm:                 deref(r.TimeNorm),
		Distance:                 derefInt(r.Distance),
		Angle:                    derefInt(r.Angle),
		WindSpeed:                deref(r.WindSpeed),
		PrecipitationProbability: deref(r.PrecipitationProbability),
		IsLeftFooted:             derefInt(r.IsLeftFooted),
		GameAway:                 derefInt(r.GameAway),
		IsEndgame:                derefInt(r.IsEndgame),
		IsStart:                  derefInt(r.IsStart),
		IsLeftSide:               derefInt(r.IsLeftSide),
		HasPreviousAttempts:      derefInt(r.HasPreviousAttempts),
	}
}

type KickPredictionResponse struct {
	Prediction float64 `json:"prediction"`
	Confidence float64 `json:"confidence"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func derefInt(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
