package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-exercise-api/internal/grading"
)

func TestLoadRequiresSecretKey(t *testing.T) {
	t.Setenv("GEMA_JWT_SECRET", "jwt")
	t.Setenv("GEMA_SECRET_KEY", " ")

	_, err := Load()
	require.ErrorIs(t, err, grading.ErrSecretKeyMissing)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMA_JWT_SECRET", "jwt")
	t.Setenv("GEMA_SECRET_KEY", "async-secret")
	t.Setenv("GEMA_APP_BASE_URL", "https://plus.example.com/")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://plus.example.com", cfg.BaseURL)
	require.Equal(t, 10*time.Second, cfg.ExerciseFetchTimeout)
	require.Equal(t, 72*time.Hour, cfg.ContentRefresh)
	require.Equal(t, 5*time.Minute, cfg.StatsCacheTTL)
	require.Equal(t, "exercises", cfg.NATSSubject)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.False(t, cfg.CloudinaryEnabled())
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("GEMA_JWT_SECRET", "jwt")
	t.Setenv("GEMA_SECRET_KEY", "async-secret")
	t.Setenv("GEMA_EXERCISE_CONTENT_REFRESH", "three days")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "exercise.content_refresh")
}
