package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config carries everything the server needs from the environment.
type Config struct {
	Addr           string
	DatabaseURL    string
	OpenAIKey      string
	SummaryModels  []string
	SummaryTimeout time.Duration
	SoftTimeout    time.Duration
	GraceWindow    time.Duration
	RateRPS        float64
	RateBurst      int
	LogLevel       string
}

// Load reads configuration from environment variables with sensible
// defaults. Only DATABASE_URL is mandatory; without an OPENAI_API_KEY the
// summarizer degrades to placeholder text.
func Load() (*Config, error) {
	v := viper.New()
	v.SetDefault("addr", ":8080")
	v.SetDefault("summary_models", "gpt-4o,gpt-4o-mini,gpt-3.5-turbo")
	v.SetDefault("summary_timeout", "10s")
	v.SetDefault("soft_timeout", "20m")
	v.SetDefault("grace_window", "60m")
	v.SetDefault("rate_rps", 5.0)
	v.SetDefault("rate_burst", 10)
	v.SetDefault("log_level", "info")
	v.AutomaticEnv()

	cfg := &Config{
		Addr:           v.GetString("addr"),
		DatabaseURL:    v.GetString("database_url"),
		OpenAIKey:      v.GetString("openai_api_key"),
		SummaryTimeout: v.GetDuration("summary_timeout"),
		SoftTimeout:    v.GetDuration("soft_timeout"),
		GraceWindow:    v.GetDuration("grace_window"),
		RateRPS:        v.GetFloat64("rate_rps"),
		RateBurst:      v.GetInt("rate_burst"),
		LogLevel:       v.GetString("log_level"),
	}
	for _, m := range strings.Split(v.GetString("summary_models"), ",") {
		if m = strings.TrimSpace(m); m != "" {
			cfg.SummaryModels = append(cfg.SummaryModels, m)
		}
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL must be set")
	}
	return cfg, nil
}
