package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/hawkeye/internal/domain"
)

// SynchronizerImpl implements domain.Synchronizer. It is the only writer of
// artifacts.
type SynchronizerImpl struct {
	store     domain.ArtifactStore
	fetcher   domain.Fetcher
	validator domain.Validator
	journal   domain.SyncJournal
	metrics   domain.MetricsRecorder
	logger    *zap.Logger

	now    func() time.Time
	passID func() string
}

// NewSynchronizer creates a synchronizer.
func NewSynchronizer(
	store domain.ArtifactStore,
	fetcher domain.Fetcher,
	validator domain.Validator,
	journal domain.SyncJournal,
	metrics domain.MetricsRecorder,
	logger *zap.Logger,
) *SynchronizerImpl {
	return &SynchronizerImpl{
		store:     store,
		fetcher:   fetcher,
		validator: validator,
		journal:   journal,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		passID:    uuid.NewString,
	}
}

// SyncAll runs one synchronization pass over every artifact.
//
// Config goes first and is checked for corruption on both sides of its own
// update; the remaining artifacts then resolve their URLs from the config
// that is committed at that point.
func (s *SynchronizerImpl) SyncAll(ctx context.Context) []domain.SyncResult {
	passID := s.passID()
	logger := s.logger.With(zap.String("pass", passID))
	results := make([]domain.SyncResult, 0, len(domain.AllKinds))

	s.restore(domain.KindConfig, logger)
	results = append(results, s.synchronize(ctx, domain.KindConfig, passID, logger))
	s.restore(domain.KindConfig, logger)

	s.restore(domain.KindBlacklist, logger)
	results = append(results, s.synchronize(ctx, domain.KindBlacklist, passID, logger))

	results = append(results, s.synchronize(ctx, domain.KindGuard, passID, logger))
	return results
}

// Synchronize runs fetch, validate, compare and persist for one artifact.
func (s *SynchronizerImpl) Synchronize(ctx context.Context, kind domain.ArtifactKind) domain.SyncResult {
	passID := s.passID()
	return s.synchronize(ctx, kind, passID, s.logger.With(zap.String("pass", passID)))
}

func (s *SynchronizerImpl) synchronize(ctx context.Context, kind domain.ArtifactKind, passID string, logger *zap.Logger) domain.SyncResult {
	logger = logger.With(zap.String("artifact", string(kind)))
	result := s.run(ctx, kind, logger)
	result.At = s.now()

	s.metrics.ObserveSync(result)
	if err := s.journal.RecordSync(passID, result); err != nil {
		logger.Debug("failed to record sync", zap.Error(err))
	}
	return result
}

func (s *SynchronizerImpl) run(ctx context.Context, kind domain.ArtifactKind, logger *zap.Logger) domain.SyncResult {
	// URLs come from whatever config is committed right now.
	cfg, _ := LoadConfiguration(s.store)
	url := cfg.URLs.For(kind)

	if url == "" {
		if s.store.Exists(kind) {
			logger.Info("URL not set, using cached",
				zap.String("status", "ok"),
				zap.String("outcome", string(domain.OutcomeNoSource)))
		} else {
			logger.Warn("URL not set and no cached copy",
				zap.String("status", "fail"),
				zap.String("outcome", string(domain.OutcomeNoSource)))
		}
		return domain.SyncResult{Kind: kind, Outcome: domain.OutcomeNoSource}
	}
	logger = logger.With(zap.String("url", url))

	fetched, err := s.fetcher.Fetch(ctx, kind, url)
	if err == nil && len(fetched.Body) == 0 {
		err = errors.New("empty body")
	}
	if err != nil {
		return s.fallback(kind, fmt.Errorf("fetch: %w", err), logger)
	}

	if err := s.validator.Check(fetched.Body, kind, fetched.ContentType); err != nil {
		return s.fallback(kind, err, logger)
	}

	current, err := s.store.Read(kind)
	if err == nil && bytes.Equal(current, fetched.Body) {
		logger.Debug("unchanged",
			zap.String("status", "ok"),
			zap.String("outcome", string(domain.OutcomeUnchanged)))
		return domain.SyncResult{Kind: kind, Outcome: domain.OutcomeUnchanged}
	}

	if err := s.store.Replace(kind, fetched.Body); err != nil {
		logger.Error("failed to persist, keeping committed copy",
			zap.String("status", "fail"),
			zap.String("outcome", string(domain.OutcomeWriteFailed)),
			zap.Error(err))
		return domain.SyncResult{Kind: kind, Outcome: domain.OutcomeWriteFailed, Err: err}
	}

	logger.Info("updated",
		zap.String("status", "ok"),
		zap.String("outcome", string(domain.OutcomeUpdated)),
		zap.Int("bytes", len(fetched.Body)))
	return domain.SyncResult{Kind: kind, Changed: true, Outcome: domain.OutcomeUpdated}
}

// fallback keeps the committed copy after a failed fetch or a rejected body.
func (s *SynchronizerImpl) fallback(kind domain.ArtifactKind, cause error, logger *zap.Logger) domain.SyncResult {
	if s.store.Exists(kind) {
		logger.Warn("remote unusable, using cached",
			zap.String("status", "fail"),
			zap.String("outcome", string(domain.OutcomeCached)),
			zap.Error(cause))
		return domain.SyncResult{Kind: kind, Outcome: domain.OutcomeCached, Err: cause}
	}

	logger.Error("remote unusable and no cached copy",
		zap.String("status", "fail"),
		zap.String("outcome", string(domain.OutcomeNoCache)),
		zap.Error(cause))
	return domain.SyncResult{
		Kind:    kind,
		Outcome: domain.OutcomeNoCache,
		Err:     fmt.Errorf("%w: %w", domain.ErrNoCache, cause),
	}
}

// RestoreIfCorrupt promotes the backup when the committed copy is missing,
// unreadable or fails validation, provided the backup itself is usable.
func (s *SynchronizerImpl) RestoreIfCorrupt(kind domain.ArtifactKind) (bool, error) {
	return s.restore(kind, s.logger)
}

func (s *SynchronizerImpl) restore(kind domain.ArtifactKind, logger *zap.Logger) (bool, error) {
	logger = logger.With(zap.String("artifact", string(kind)))

	data, reason := s.store.Read(kind)
	if reason == nil {
		reason = s.validator.Check(data, kind, "")
	}
	if reason == nil {
		return false, nil
	}
	if !s.store.BackupExists(kind) {
		return false, nil
	}

	backup, berr := s.store.ReadBackup(kind)
	if berr == nil {
		berr = s.validator.Check(backup, kind, "")
	}
	if berr != nil {
		logger.Warn("committed copy unusable and backup unusable",
			zap.String("status", "fail"),
			zap.NamedError("committed", reason),
			zap.NamedError("backup", berr))
		return false, fmt.Errorf("backup of %s unusable: %w", kind, berr)
	}

	if err := s.store.PromoteBackup(kind); err != nil {
		logger.Error("failed to restore from backup",
			zap.String("status", "fail"),
			zap.Error(err))
		return false, err
	}

	logger.Warn("restored from backup",
		zap.String("status", "ok"),
		zap.NamedError("reason", reason))
	return true, nil
}

// Ensure SynchronizerImpl implements domain.Synchronizer.
var _ domain.Synchronizer = (*SynchronizerImpl)(nil)
