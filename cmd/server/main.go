// Package main provides the entry point for the volatility regime backend:
// regime classification over daily market snapshots, options strategy
// recommendation and analysis, and historical backtesting behind an HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"github.com/voldesk/regime-backend/internal/api"
	"github.com/voldesk/regime-backend/internal/backtester"
	"github.com/voldesk/regime-backend/internal/data"
	"github.com/voldesk/regime-backend/internal/features"
	"github.com/voldesk/regime-backend/internal/pricing"
	"github.com/voldesk/regime-backend/internal/regime"
	"github.com/voldesk/regime-backend/internal/strategy"
	"github.com/voldesk/regime-backend/pkg/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Parse command line flags
	host := flag.String("host", "", "Server host (overrides config)")
	port := flag.Int("port", 0, "Server port (overrides config)")
	dataDir := flag.String("data", "./data", "Snapshot data directory")
	configFile := flag.String("config", "", "Optional YAML config file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	// Setup logger
	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	logger.Info("Starting volatility regime backend",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("dataDir", *dataDir),
	)

	// Initialize data store
	store, err := data.NewStore(logger, *dataDir)
	if err != nil {
		logger.Fatal("Failed to initialize data store", zap.Error(err))
	}

	// Regime model: file-backed parameters if configured, built-in otherwise.
	model := regime.DefaultModel()
	if cfg.ModelPath != "" {
		model, err = regime.LoadModel(cfg.ModelPath)
		if err != nil {
			logger.Fatal("Failed to load regime model", zap.Error(err))
		}
	}
	logger.Info("Regime model ready", zap.String("version", model.Version))

	// Analytical components
	extractor := features.NewExtractor(logger)
	classifier := regime.NewClassifier(logger, model, cfg.Classifier)
	pricer := pricing.NewPricer(logger)
	catalog := strategy.NewCatalog(logger, cfg.SkewThreshold)
	analyzer := strategy.NewAnalyzer(logger, pricer, catalog, cfg.Analyzer)
	simulator := backtester.NewSimulator(logger, pricer, catalog, cfg.Backtest)

	server := api.NewServer(
		logger,
		&cfg.Server,
		cfg.Classifier.SequenceLength,
		store,
		extractor,
		classifier,
		catalog,
		analyzer,
		simulator,
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("Server error", zap.Error(err))
		}
	}()

	logger.Info("Server started successfully",
		zap.String("http", fmt.Sprintf("http://%s:%d/api/v1", cfg.Server.Host, cfg.Server.Port)),
	)

	<-sigChan
	logger.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}

// loadConfig starts from the documented defaults and overlays an optional
// YAML file. A missing explicit file is an error; no file at all is fine.
func loadConfig(path string) (*types.EngineConfig, error) {
	cfg := types.DefaultEngineConfig()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}

	return logger
}
