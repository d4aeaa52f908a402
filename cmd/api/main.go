package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"kick-prediction-api/config"
	"kick-prediction-api/handlers"
	"kick-prediction-api/metrics"
	"kick-prediction-api/middleware"
	"kick-prediction-api/models"
	"kick-prediction-api/services"
)

func main() {
	// .env is optional, real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogger(cfg.App.Debug)
	log.Info().Str("app", cfg.App.Name).Str("version", cfg.App.Version).Msg("starting")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.GetDSN()), &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to get sql db handle")
	}
	if err := sqlDB.Ping(); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	if err := db.AutoMigrate(&models.PredictionInput{}); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database schema")
	}
	log.Info().Msg("database ready")

	// Cache and live feed degrade gracefully when redis is down
	cache, err := services.NewCacheService(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, caching and live feed disabled")
	}
	defer cache.Close()

	m := metrics.New()

	// The API starts degraded (503 on /predict) when the model cannot be
	// fetched; an admin can retry via POST /model/reload.
	modelSvc := services.NewModelService(cfg.Model)
	loadCtx, cancel := context.WithTimeout(context.Background(), cfg.Model.DownloadTimeout+10*time.Second)
	if err := modelSvc.Load(loadCtx, cfg.Model.RepoID); err != nil {
		log.Warn().Err(err).Msg("failed to load model at startup")
	} else {
		m.ModelLoaded.Set(1)
	}
	cancel()

	store := services.NewPredictionStore(db)
	stats := services.NewProcessStats()
	predictionSvc := services.NewPredictionService(modelSvc, store, cache, stats, m)

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(middleware.SetupCORS(cfg.CORS))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group(cfg.App.BasePath)
	api.GET("/health", handlers.Health)
	api.GET("/ws/live", handlers.LivePredictions(cache, cfg.Auth.APIKey))

	h := handlers.NewPredictionHandler(predictionSvc, store, cache, modelSvc, m, cfg.Model.RepoID)
	authed := api.Group("", middleware.APIKeyAuth(cfg.Auth.APIKey))
	authed.POST("/predict", h.Predict)
	authed.GET("/predictions", h.ListPredictions)
	authed.GET("/predictions/:id", h.GetPrediction)
	authed.DELETE("/predictions/:id", h.DeletePrediction)
	authed.POST("/model/reload", h.ReloadModel)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("listening")
	if err := router.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func setupLogger(debug bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}
