// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"errors"
	"strings"
	"time"
)

// ArtifactKind identifies one of the remotely sourced, locally persisted files.
type ArtifactKind string

const (
	KindConfig    ArtifactKind = "config"
	KindBlacklist ArtifactKind = "blacklist"
	KindGuard     ArtifactKind = "guard"
)

// AllKinds lists artifacts in synchronization order.
// Config goes first so the other URLs come from the freshest document.
var AllKinds = []ArtifactKind{KindConfig, KindBlacklist, KindGuard}

// IsJSON reports whether the artifact is a JSON document.
func (k ArtifactKind) IsJSON() bool {
	return k == KindConfig || k == KindBlacklist
}

var (
	// ErrNoCache means the remote copy was unusable and nothing is persisted locally.
	ErrNoCache = errors.New("no cached copy")
	// ErrRejected means fetched content failed validation.
	ErrRejected = errors.New("content rejected")
)

// URLs holds the remote source for each artifact. Empty means cache only.
type URLs struct {
	Config    string
	Blacklist string
	Guard     string
}

// For returns the remote URL configured for an artifact kind.
func (u URLs) For(kind ArtifactKind) string {
	switch kind {
	case KindConfig:
		return u.Config
	case KindBlacklist:
		return u.Blacklist
	case KindGuard:
		return u.Guard
	}
	return ""
}

// MessageDirective asks the agent to broadcast a message to the local session.
type MessageDirective struct {
	Show            bool
	Text            string
	DurationSeconds int
}

// Requested reports whether the directive asks for a display.
func (m MessageDirective) Requested() bool {
	return m.Show && strings.TrimSpace(m.Text) != ""
}

// Configuration is the effective, defaulted view of config.json.
type Configuration struct {
	IntervalSeconds    int
	MessagePollSeconds int
	URLs               URLs
	Message            MessageDirective
}

// Interval returns the outer tick interval.
func (c Configuration) Interval() time.Duration {
	return clampSeconds(c.IntervalSeconds)
}

// PollInterval returns the sync + message cadence.
func (c Configuration) PollInterval() time.Duration {
	return clampSeconds(c.MessagePollSeconds)
}

func clampSeconds(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return time.Duration(n) * time.Second
}

// FetchResult is a successful remote retrieval.
type FetchResult struct {
	Body        []byte
	ContentType string
}

// SyncOutcome classifies what a synchronization did.
type SyncOutcome string

const (
	OutcomeUpdated     SyncOutcome = "updated"
	OutcomeUnchanged   SyncOutcome = "unchanged"
	OutcomeNoSource    SyncOutcome = "no_source"
	OutcomeCached      SyncOutcome = "cached"
	OutcomeNoCache     SyncOutcome = "no_cache"
	OutcomeWriteFailed SyncOutcome = "write_failed"
)

// Failed reports whether the outcome leaves the artifact unavailable or stale by error.
func (o SyncOutcome) Failed() bool {
	return o == OutcomeNoCache || o == OutcomeWriteFailed
}

// SyncResult captures one artifact synchronization.
type SyncResult struct {
	Kind    ArtifactKind
	Changed bool
	Outcome SyncOutcome
	Err     error
	At      time.Time
}

// TerminateOutcome is the result of a single termination request.
type TerminateOutcome string

const (
	TerminateKilled   TerminateOutcome = "killed"
	TerminateNotFound TerminateOutcome = "not_found"
	TerminateFailed   TerminateOutcome = "failed"
)

// EnforcementResult captures what happened during a single enforcement run.
type EnforcementResult struct {
	DenyList   []string
	Targeted   []string
	Killed     []string
	Errors     []error
	ExecutedAt time.Time
	DurationMs int64
}

// DispatchOutcome describes what the message dispatcher did on a tick.
type DispatchOutcome string

const (
	DispatchShown         DispatchOutcome = "shown"
	DispatchDuplicate     DispatchOutcome = "duplicate"
	DispatchDisplayFailed DispatchOutcome = "display_failed"
	DispatchCleared       DispatchOutcome = "cleared"
	DispatchIdle          DispatchOutcome = "idle"
)
