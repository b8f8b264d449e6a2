package main

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/hawkeye/internal/config"
	"github.com/eliteGoblin/hawkeye/internal/domain"
	"github.com/eliteGoblin/hawkeye/internal/infra"
	"github.com/eliteGoblin/hawkeye/internal/usecase"
	"github.com/eliteGoblin/hawkeye/internal/validate"
)

// agent holds the collaborators shared by the launcher and the guard.
type agent struct {
	settings config.Settings
	logger   *zap.Logger
	store    *infra.FileStore
	metrics  *infra.PrometheusMetrics

	state      *infra.EncryptedStateStore
	signatures domain.SignatureStore
	journal    domain.SyncJournal
}

func openAgent(dirFlag, settingsFlag string) (*agent, error) {
	dir, err := resolveDataDir(dirFlag)
	if err != nil {
		return nil, err
	}

	settings, settingsErr := config.LoadSettings(resolveSettingsPath(dir, settingsFlag))
	if settings.UserAgent == config.DefaultSettings().UserAgent {
		settings.UserAgent += "/" + Version
	}
	logger := createLogger(settings)
	if settingsErr != nil {
		logger.Warn("settings unusable, using defaults",
			zap.String("status", "fail"),
			zap.Error(settingsErr))
	}

	store := infra.NewFileStore(dir)
	if err := store.Init(); err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	rt := &agent{
		settings:   settings,
		logger:     logger,
		store:      store,
		metrics:    infra.NewPrometheusMetrics(settings.MetricsTextfile),
		signatures: infra.NewMemorySignatureStore(),
		journal:    infra.NopJournal{},
	}

	if settings.PersistState {
		state, err := infra.OpenStateStore(dir)
		if err != nil {
			// Dedup still works for the life of the process
			logger.Warn("failed to open state store, keeping state in memory",
				zap.String("status", "fail"),
				zap.Error(err))
		} else {
			if state.Recovered() {
				logger.Warn("state database could not be opened with its key, started fresh",
					zap.String("status", "fail"),
					zap.String("path", state.Path()))
			}
			rt.state = state
			rt.signatures = state
			rt.journal = state
		}
	}
	return rt, nil
}

func (rt *agent) newSynchronizer() *usecase.SynchronizerImpl {
	fetcher := infra.NewHTTPFetcherWithLimits(rt.settings.FetchTimeout(), rt.settings.GuardFetchTimeout(), rt.settings.UserAgent)
	return usecase.NewSynchronizer(rt.store, fetcher, validate.NewValidator(), rt.journal, rt.metrics, rt.logger)
}

func (rt *agent) newNotifier() *infra.CommandNotifier {
	return infra.NewCommandNotifier(rt.settings.NotifierCommand)
}

// closeState releases the state database and falls back to in-memory state.
func (rt *agent) closeState() {
	if rt.state == nil {
		return
	}
	if err := rt.state.Close(); err != nil {
		rt.logger.Warn("failed to close state store", zap.String("status", "fail"), zap.Error(err))
	}
	rt.state = nil
	rt.signatures = infra.NewMemorySignatureStore()
	rt.journal = infra.NopJournal{}
}

func (rt *agent) Close() {
	rt.closeState()
	_ = rt.logger.Sync()
}

// resolveDataDir defaults to the directory holding the executable.
func resolveDataDir(dir string) (string, error) {
	if dir == "" {
		exe, err := os.Executable()
		if err != nil {
			return "", fmt.Errorf("failed to get executable path: %w", err)
		}
		dir = filepath.Dir(exe)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve data directory: %w", err)
	}
	return abs, nil
}

func resolveSettingsPath(dir, path string) string {
	if path != "" {
		return path
	}
	return filepath.Join(dir, config.SettingsFileName)
}

func createLogger(settings config.Settings) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if settings.LogFile != "" {
		cfg.OutputPaths = []string{settings.LogFile}
	} else {
		cfg.OutputPaths = []string{"stderr"}
	}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if level, err := zap.ParseAtomicLevel(settings.LogLevel); err == nil {
		cfg.Level = level
	}

	logger, err := cfg.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}
