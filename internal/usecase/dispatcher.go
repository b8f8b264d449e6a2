package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"go.uber.org/zap"

	"github.com/eliteGoblin/hawkeye/internal/domain"
)

// Signature identifies a message by content: hex SHA-256 of the text, a NUL
// separator and the decimal duration.
func Signature(text string, durationSeconds int) string {
	sum := sha256.Sum256([]byte(text + "\x00" + strconv.Itoa(durationSeconds)))
	return hex.EncodeToString(sum[:])
}

// Dispatcher shows the configured message at most once per show episode.
//
// The remembered signature is updated only after a successful display and
// cleared whenever the directive stops requesting one.
type Dispatcher struct {
	notifier   domain.Notifier
	signatures domain.SignatureStore
	metrics    domain.MetricsRecorder
	logger     *zap.Logger
}

// NewDispatcher creates a message dispatcher.
func NewDispatcher(
	notifier domain.Notifier,
	signatures domain.SignatureStore,
	metrics domain.MetricsRecorder,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		notifier:   notifier,
		signatures: signatures,
		metrics:    metrics,
		logger:     logger,
	}
}

// Tick evaluates the message directive of cfg once.
func (d *Dispatcher) Tick(ctx context.Context, cfg domain.Configuration) domain.DispatchOutcome {
	outcome := d.tick(ctx, cfg.Message)
	d.metrics.ObserveMessage(outcome)
	return outcome
}

func (d *Dispatcher) tick(ctx context.Context, msg domain.MessageDirective) domain.DispatchOutcome {
	last, readErr := d.signatures.LastSignature()
	if readErr != nil {
		d.logger.Warn("failed to read last message signature",
			zap.String("status", "fail"),
			zap.Error(readErr))
		last = ""
	}

	if !msg.Requested() {
		// An unreadable store may still hold a signature from this episode
		if last == "" && readErr == nil {
			return domain.DispatchIdle
		}
		if err := d.signatures.SetLastSignature(""); err != nil {
			d.logger.Warn("failed to clear message signature",
				zap.String("status", "fail"),
				zap.Error(err))
		}
		d.logger.Debug("message withdrawn, dedup re-armed", zap.String("status", "ok"))
		return domain.DispatchCleared
	}

	sig := Signature(msg.Text, msg.DurationSeconds)
	if sig == last {
		return domain.DispatchDuplicate
	}

	if err := d.notifier.Display(ctx, msg.Text, msg.DurationSeconds); err != nil {
		d.logger.Warn("failed to display message, will retry",
			zap.String("status", "fail"),
			zap.String("signature", sig),
			zap.Error(err))
		return domain.DispatchDisplayFailed
	}

	if err := d.signatures.SetLastSignature(sig); err != nil {
		d.logger.Warn("failed to remember message signature",
			zap.String("status", "fail"),
			zap.String("signature", sig),
			zap.Error(err))
	}
	d.logger.Info("message shown",
		zap.String("status", "ok"),
		zap.String("signature", sig),
		zap.Int("duration_seconds", msg.DurationSeconds))
	return domain.DispatchShown
}

// Ensure Dispatcher implements domain.MessageDispatcher.
var _ domain.MessageDispatcher = (*Dispatcher)(nil)
