package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Model    ModelConfig
	CORS     CORSConfig
}

type AppConfig struct {
	Name     string
	Version  string
	Debug    bool
	BasePath string
}

type ServerConfig struct {
	Port int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	APIKey string
}

type ModelConfig struct {
	RepoID          string
	FileName        string
	HubBaseURL      string
	CacheDir        string
	DownloadTimeout time.Duration
}

type CORSConfig struct {
	AllowedOrigins string
}

func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func LoadConfig() (*Config, error) {
	serverPort, err := getIntEnv("SERVER_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	dbPort, err := getIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	redisPort, err := getIntEnv("REDIS_PORT", 6379)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}

	redisDB, err := getIntEnv("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	downloadTimeout, err := getDurationEnv("MODEL_DOWNLOAD_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid MODEL_DOWNLOAD_TIMEOUT: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:     getEnv("APP_NAME", "Kick Prediction API"),
			Version:  getEnv("APP_VERSION", "0.1.0"),
			Debug:    getBoolEnv("DEBUG", false),
			BasePath: getEnv("API_PREFIX", "/api/v1"),
		},
		Server: ServerConfig{
			Port: serverPort,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "kickpredict"),
			Password: getEnv("DB_PASSWORD", "kickpredict_dev_password"),
			Name:     getEnv("DB_NAME", "kickpredict"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     redisPort,
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			APIKey: getEnv("API_KEY", "default-key-change-me"),
		},
		Model: ModelConfig{
			RepoID:          getEnv("MODEL_REPO_ID", "XavierCoulon/rugby-model"),
			FileName:        getEnv("MODEL_FILENAME", "model.json"),
			HubBaseURL:      getEnv("MODEL_HUB_BASE_URL", "https://huggingface.co"),
			CacheDir:        getEnv("MODEL_CACHE_DIR", ".cache/models"),
			DownloadTimeout: downloadTimeout,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getIntEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func getBoolEnv(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}
