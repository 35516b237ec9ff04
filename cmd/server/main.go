package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/abmakes/atoz-engine-go/internal/audio"
	"github.com/abmakes/atoz-engine-go/internal/config"
	"github.com/abmakes/atoz-engine-go/internal/engine"
	"github.com/abmakes/atoz-engine-go/internal/engine/scoring"
	"github.com/abmakes/atoz-engine-go/internal/engine/sequence"
	"github.com/abmakes/atoz-engine-go/internal/questions"
	"github.com/abmakes/atoz-engine-go/internal/server"
	"github.com/abmakes/atoz-engine-go/internal/storage"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sessionID := uuid.NewString()
	logger.Info("starting game engine host",
		zap.String("version", version),
		zap.String("config", *configPath),
		zap.String("session_id", sessionID),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	store, closeStore, err := openStore(cfg.Storage, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer closeStore()

	session, err := engine.NewSession(sessionConfig(cfg.Session), engine.Collaborators{
		Store:     store,
		Audio:     audio.NewLogPlayer(logger),
		Questions: questions.FileProvider{Path: cfg.Session.QuestionsFile},
		Logger:    logger.Named("engine"),
	})
	if err != nil {
		logger.Fatal("failed to build session", zap.Error(err))
	}
	defer session.Destroy()

	feed := server.NewFeed(session, logger.Named("feed"))
	defer feed.Close()

	mux := http.NewServeMux()
	mux.Handle("/ws", feed)
	httpServer := &http.Server{Addr: cfg.Server.WebSocketAddress, Handler: mux}
	go func() {
		logger.Info("event feed listening", zap.String("address", cfg.Server.WebSocketAddress))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("event feed stopped", zap.Error(err))
		}
	}()

	if err := session.Start(); err != nil {
		logger.Fatal("failed to start session", zap.Error(err))
	}

	go runTicker(ctx, session, cfg.Server.TickInterval, logger)

	sig := <-sigChan
	logger.Info("shutting down", zap.String("signal", sig.String()))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("event feed shutdown", zap.Error(err))
	}
}

// runTicker drives the session clock. The engine itself never spawns
// goroutines or reads wall time; everything time-based moves only here.
func runTicker(ctx context.Context, session *engine.Session, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			session.Update(float64(now.Sub(last).Milliseconds()))
			last = now
		}
	}
}

func openStore(cfg config.StorageConfig, logger *zap.Logger) (storage.KV, func(), error) {
	switch cfg.Backend {
	case "sqlite":
		store, err := storage.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("sqlite store opened", zap.String("path", cfg.Path))
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Warn("closing sqlite store", zap.Error(err))
			}
		}, nil
	default:
		logger.Info("using in-memory store")
		return storage.NewMemoryStore(), func() {}, nil
	}
}

// sessionConfig maps the file-level session declaration onto the engine's
// types.
func sessionConfig(cfg config.SessionConfig) engine.SessionConfig {
	teams := make([]scoring.Team, len(cfg.Teams))
	for i, t := range cfg.Teams {
		teams[i] = scoring.Team{
			ID:            t.ID,
			Name:          t.Name,
			Color:         t.Color,
			StartingScore: t.StartingScore,
			StartingLives: t.StartingLives,
			MaxLives:      t.MaxLives,
		}
	}

	mode := sequence.SharedPool
	if cfg.Sequencing.Mode == "perTeam" {
		mode = sequence.PerTeam
	}
	seed := cfg.Sequencing.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return engine.SessionConfig{
		Teams:                teams,
		QuestionTimeMs:       cfg.QuestionTimeMs,
		RequireAllEliminated: cfg.RequireAllEliminated,
		Sequencing: sequence.Config{
			Mode:                mode,
			TruncateForFairness: cfg.Sequencing.TruncateForFairness,
			RandomizeOrder:      cfg.Sequencing.RandomizeOrder,
			Seed:                seed,
		},
		Rules: cfg.Rules,
	}
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
