package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/medtriage?sslmode=disable")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 20*time.Minute, cfg.SoftTimeout)
	assert.Equal(t, 60*time.Minute, cfg.GraceWindow)
	assert.Equal(t, []string{"gpt-4o", "gpt-4o-mini", "gpt-3.5-turbo"}, cfg.SummaryModels)
	assert.Equal(t, 10*time.Second, cfg.SummaryTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/medtriage?sslmode=disable")
	t.Setenv("SOFT_TIMEOUT", "5m")
	t.Setenv("GRACE_WINDOW", "15m")
	t.Setenv("SUMMARY_MODELS", "gpt-4o, gpt-4o-mini")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.SoftTimeout)
	assert.Equal(t, 15*time.Minute, cfg.GraceWindow)
	assert.Equal(t, []string{"gpt-4o", "gpt-4o-mini"}, cfg.SummaryModels)
}
