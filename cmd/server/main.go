package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"medtriage/internal/auth"
	"medtriage/internal/config"
	"medtriage/internal/core"
	"medtriage/internal/db"
	httpserver "medtriage/internal/http"
	"medtriage/internal/llm"
	"medtriage/internal/logger"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Init("info")
		logger.Error("configuration error", "err", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel)

	dbConn, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "err", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dbConn.PingContext(ctx); err != nil {
		logger.Error("failed to ping database", "err", err)
		os.Exit(1)
	}
	if err := db.Migrate(context.Background(), dbConn); err != nil {
		logger.Error("failed to run migrations", "err", err)
		os.Exit(1)
	}

	repo := db.NewRepository(dbConn)
	summarizer := llm.NewOpenAIClient(cfg.OpenAIKey, cfg.SummaryModels, cfg.SummaryTimeout)
	triage := core.NewService(repo, summarizer, cfg.SoftTimeout, cfg.GraceWindow)

	srv := httpserver.NewServer(triage, auth.NewHeaderAuth(), cfg.RateRPS, cfg.RateBurst)

	logger.Info("listening", "addr", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, srv); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}
