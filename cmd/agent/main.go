package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowlens/flowlens-agent/internal/analysis"
	"github.com/flowlens/flowlens-agent/internal/api"
	"github.com/flowlens/flowlens-agent/internal/composition"
	"github.com/flowlens/flowlens-agent/internal/config"
	"github.com/flowlens/flowlens-agent/internal/features"
	"github.com/flowlens/flowlens-agent/internal/flow"
	"github.com/flowlens/flowlens-agent/internal/logging"
	"github.com/flowlens/flowlens-agent/internal/optimizer"
	"github.com/flowlens/flowlens-agent/internal/store"
	"github.com/flowlens/flowlens-agent/internal/vision"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting flowlens agent", "version", config.Version, "data_dir", cfg.DataDir())

	database, err := store.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := store.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Printf("flowlens agent v%s\n", config.Version)
	fmt.Printf("  API URL:    http://127.0.0.1:%d\n", cfg.Port())
	fmt.Printf("  Auth Token: %s\n", authToken)
	fmt.Println()

	tuning, err := flow.LoadTuning(cfg.TuningFile())
	if err != nil {
		logger.Warn("tuning file rejected, using defaults", "path", cfg.TuningFile(), "error", err)
	}

	var analyzer vision.Analyzer
	if cfg.VisionURL() != "" {
		analyzer = vision.NewHTTPClient(cfg.VisionURL(), cfg.VisionToken(), logger)
		logger.Info("vision refinement enabled", "base_url", cfg.VisionURL())
	}

	extractor := features.NewExtractor(repo, analyzer, features.NewCache(), cfg.Concurrency(),
		logging.WithComponent(logger, "features"))
	detector := flow.NewDetector(tuning, logging.WithComponent(logger, "detector"))
	generator := flow.NewGenerator(logging.WithComponent(logger, "generator"))
	opt := optimizer.New(extractor, detector, generator, logging.WithComponent(logger, "optimizer"))
	scorer := composition.NewScorer(logging.WithComponent(logger, "composition"))
	svc := analysis.NewService(extractor, detector, generator, opt, scorer,
		logging.WithComponent(logger, "analysis"))

	server := api.NewServer(api.ServerConfig{
		Port:       cfg.Port(),
		Analysis:   svc,
		Repository: repo,
		Logger:     logging.WithComponent(logger, "api"),
		StartTime:  startTime,
		Version:    config.Version,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func ensureAuthToken(repo *store.SQLiteRepository) (string, error) {
	ctx := context.Background()
	token, err := repo.GetConfig(ctx, api.AuthTokenConfigKey)
	if err != nil {
		return "", err
	}
	if token != "" {
		return token, nil
	}

	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token = hex.EncodeToString(b)
	if err := repo.SetConfig(ctx, api.AuthTokenConfigKey, token); err != nil {
		return "", err
	}
	return token, nil
}
