package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/noah-isme/gema-exercise-api/internal/grading"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	BaseURL                string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	NATSSubject            string
	JWTSecret              string
	SecretKey              string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	ExerciseFetchTimeout   time.Duration
	ContentRefresh         time.Duration
	StatsCacheTTL          time.Duration
	LTIInstanceGUID        string
	SubmitRateLimit        int
	SubmitRateWindow       time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// CloudinaryEnabled reports whether attachment storage credentials are present.
func (c Config) CloudinaryEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Exercise API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.base_url", "http://localhost:8080")
	v.SetDefault("nats.subject", "exercises")
	v.SetDefault("cloudinary.folder", "gema/exercises")
	v.SetDefault("exercise.fetch_timeout", "10s")
	v.SetDefault("exercise.content_refresh", "72h")
	v.SetDefault("exercise.stats_cache_ttl", "5m")
	v.SetDefault("submit.rate_limit", 10)
	v.SetDefault("submit.rate_window", "1m")

	durations := map[string]time.Duration{}
	for _, key := range []string{"exercise.fetch_timeout", "exercise.content_refresh", "exercise.stats_cache_ttl", "submit.rate_window"} {
		value, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if value <= 0 {
			return Config{}, fmt.Errorf("%s must be positive", key)
		}
		durations[key] = value
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		BaseURL:                strings.TrimRight(v.GetString("app.base_url"), "/"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		NATSSubject:            v.GetString("nats.subject"),
		JWTSecret:              v.GetString("jwt.secret"),
		SecretKey:              v.GetString("secret_key"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		ExerciseFetchTimeout:   durations["exercise.fetch_timeout"],
		ContentRefresh:         durations["exercise.content_refresh"],
		StatsCacheTTL:          durations["exercise.stats_cache_ttl"],
		LTIInstanceGUID:        v.GetString("lti.instance_guid"),
		SubmitRateLimit:        v.GetInt("submit.rate_limit"),
		SubmitRateWindow:       durations["submit.rate_window"],
	}

	if strings.TrimSpace(cfg.SecretKey) == "" {
		return Config{}, grading.ErrSecretKeyMissing
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}
	if cfg.SubmitRateLimit <= 0 {
		cfg.SubmitRateLimit = 10
	}

	return cfg, nil
}
