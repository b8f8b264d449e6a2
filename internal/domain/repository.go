package domain

import (
	"context"
	"time"
)

// ArtifactStore holds the committed copy and backup of every artifact.
// Implementation: one file per artifact in the agent data directory.
type ArtifactStore interface {
	// Path returns the committed path of an artifact.
	Path(kind ArtifactKind) string

	// BackupPath returns the `.bak` path of an artifact.
	BackupPath(kind ArtifactKind) string

	// Read returns the committed bytes.
	Read(kind ArtifactKind) ([]byte, error)

	// ReadBackup returns the backup bytes.
	ReadBackup(kind ArtifactKind) ([]byte, error)

	// Exists checks if a committed copy is present.
	Exists(kind ArtifactKind) bool

	// BackupExists checks if a backup copy is present.
	BackupExists(kind ArtifactKind) bool

	// Replace atomically commits new bytes, keeping the previous copy as backup.
	// On error the committed copy is left untouched.
	Replace(kind ArtifactKind, data []byte) error

	// PromoteBackup moves the backup over the committed path.
	PromoteBackup(kind ArtifactKind) error
}

// Fetcher retrieves a remote artifact with a bounded timeout. The kind
// selects the size and time limits.
type Fetcher interface {
	Fetch(ctx context.Context, kind ArtifactKind, url string) (*FetchResult, error)
}

// Validator decides whether bytes are usable as an artifact of a given kind.
type Validator interface {
	// Check returns nil if usable, or an error wrapping ErrRejected.
	Check(data []byte, kind ArtifactKind, contentType string) error
}

// ProcessDirectory lists and terminates OS processes by name.
// Implementation: uses gopsutil for cross-platform support.
type ProcessDirectory interface {
	// ListRunningNames returns lower-cased names of running processes.
	ListRunningNames(ctx context.Context) (map[string]struct{}, error)

	// Terminate kills every process with the given name.
	Terminate(ctx context.Context, name string) (TerminateOutcome, error)
}

// Notifier shows a message to the local session.
type Notifier interface {
	Display(ctx context.Context, text string, durationSeconds int) error
}

// SignatureStore remembers the signature of the last message shown.
type SignatureStore interface {
	LastSignature() (string, error)
	SetLastSignature(signature string) error
}

// SyncJournal records synchronization outcomes.
type SyncJournal interface {
	RecordSync(passID string, result SyncResult) error
}

// MetricsRecorder receives counters from the control loop.
type MetricsRecorder interface {
	ObserveSync(result SyncResult)
	ObserveTermination(outcome TerminateOutcome)
	ObserveMessage(outcome DispatchOutcome)
	ObserveTick(at time.Time)

	// Flush persists collected metrics, if a destination is configured.
	Flush() error
}

// Synchronizer keeps local artifacts converged with their remote sources.
type Synchronizer interface {
	// Synchronize runs fetch, validate, compare, persist for one artifact.
	Synchronize(ctx context.Context, kind ArtifactKind) SyncResult

	// SyncAll synchronizes every artifact, config first.
	SyncAll(ctx context.Context) []SyncResult

	// RestoreIfCorrupt promotes the backup when the committed copy is unusable.
	RestoreIfCorrupt(kind ArtifactKind) (bool, error)
}

// Enforcer terminates running processes that are on the deny-list.
type Enforcer interface {
	// Enforce runs one enforcement pass.
	Enforce(ctx context.Context) (*EnforcementResult, error)
}

// MessageDispatcher shows the configured message at most once per episode.
type MessageDispatcher interface {
	Tick(ctx context.Context, cfg Configuration) DispatchOutcome
}
