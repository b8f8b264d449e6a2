// Package usecase contains application business logic.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/hawkeye/internal/config"
	"github.com/eliteGoblin/hawkeye/internal/domain"
)

// EnforcerImpl implements domain.Enforcer.
type EnforcerImpl struct {
	store     domain.ArtifactStore
	processes domain.ProcessDirectory
	metrics   domain.MetricsRecorder
	logger    *zap.Logger
}

// NewEnforcer creates a deny-list enforcer.
func NewEnforcer(
	store domain.ArtifactStore,
	processes domain.ProcessDirectory,
	metrics domain.MetricsRecorder,
	logger *zap.Logger,
) *EnforcerImpl {
	return &EnforcerImpl{
		store:     store,
		processes: processes,
		metrics:   metrics,
		logger:    logger,
	}
}

// Enforce runs one pass. The deny-list is re-read from the store on every
// call so an update takes effect on the next pass.
//
// A deny-list that cannot be read or parsed is returned as an error. Failed
// terminations are collected in the result and do not stop the pass.
func (e *EnforcerImpl) Enforce(ctx context.Context) (*domain.EnforcementResult, error) {
	start := time.Now()

	denyList, err := e.readDenyList()
	if err != nil {
		e.logger.Warn("deny-list unavailable",
			zap.String("status", "fail"),
			zap.Error(err))
		return nil, err
	}

	result := &domain.EnforcementResult{
		DenyList:   denyList,
		Targeted:   make([]string, 0),
		Killed:     make([]string, 0),
		Errors:     make([]error, 0),
		ExecutedAt: start,
	}
	if len(denyList) == 0 {
		result.DurationMs = time.Since(start).Milliseconds()
		return result, nil
	}

	running, err := e.processes.ListRunningNames(ctx)
	if err != nil {
		e.logger.Warn("failed to list processes",
			zap.String("status", "fail"),
			zap.Error(err))
		return result, fmt.Errorf("list processes: %w", err)
	}

	for _, name := range denyList {
		if _, ok := running[name]; !ok {
			continue
		}
		result.Targeted = append(result.Targeted, name)

		outcome, err := e.processes.Terminate(ctx, name)
		e.metrics.ObserveTermination(outcome)
		switch outcome {
		case domain.TerminateKilled:
			e.logger.Info("terminated process",
				zap.String("status", "ok"),
				zap.String("process", name))
			result.Killed = append(result.Killed, name)
		case domain.TerminateNotFound:
			e.logger.Debug("process already exited",
				zap.String("status", "ok"),
				zap.String("process", name))
		default:
			if err == nil {
				err = errors.New("termination failed")
			}
			e.logger.Warn("failed to terminate process",
				zap.String("status", "fail"),
				zap.String("process", name),
				zap.Error(err))
			result.Errors = append(result.Errors, fmt.Errorf("%s: %w", name, err))
		}
	}

	result.DurationMs = time.Since(start).Milliseconds()
	return result, nil
}

func (e *EnforcerImpl) readDenyList() ([]string, error) {
	data, err := e.store.Read(domain.KindBlacklist)
	if err != nil {
		return nil, fmt.Errorf("read deny-list: %w", err)
	}
	return config.ParseDenyList(data)
}

// Ensure EnforcerImpl implements domain.Enforcer.
var _ domain.Enforcer = (*EnforcerImpl)(nil)
