package infra

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/hawkeye/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const (
	stateDBName = "state.db"

	metaLastSignature = "last_signature"
)

// JournalEntry is one recorded synchronization.
type JournalEntry struct {
	PassID     string
	Artifact   domain.ArtifactKind
	Outcome    domain.SyncOutcome
	Changed    bool
	Error      string
	RecordedAt time.Time
}

// EncryptedStateStore implements domain.SignatureStore and domain.SyncJournal
// using a SQLCipher encrypted SQLite database.
type EncryptedStateStore struct {
	db        *sql.DB
	dbPath    string
	recovered bool
}

// NewEncryptedStateStore opens (or creates) the encrypted state database.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStateStore(dataDir string, key []byte) (*EncryptedStateStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, stateDBName)
	keyHex := hex.EncodeToString(key)

	// Open with SQLCipher key as DSN parameter
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	// A wrong key only surfaces on first access
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &EncryptedStateStore{db: db, dbPath: dbPath}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *EncryptedStateStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_journal (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pass_id TEXT NOT NULL,
		artifact TEXT NOT NULL,
		outcome TEXT NOT NULL,
		changed INTEGER NOT NULL,
		error TEXT DEFAULT '',
		recorded_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- domain.SignatureStore implementation ---

// LastSignature returns the remembered signature, or "" when none.
func (s *EncryptedStateStore) LastSignature() (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, metaLastSignature).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetLastSignature remembers signature. An empty signature clears it.
func (s *EncryptedStateStore) SetLastSignature(signature string) error {
	if signature == "" {
		_, err := s.db.Exec(`DELETE FROM meta WHERE key = ?`, metaLastSignature)
		return err
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`,
		metaLastSignature, signature)
	return err
}

// --- domain.SyncJournal implementation ---

// RecordSync appends one synchronization outcome.
func (s *EncryptedStateStore) RecordSync(passID string, result domain.SyncResult) error {
	at := result.At
	if at.IsZero() {
		at = time.Now()
	}
	errText := ""
	if result.Err != nil {
		errText = result.Err.Error()
	}
	changed := 0
	if result.Changed {
		changed = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO sync_journal (pass_id, artifact, outcome, changed, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		passID, string(result.Kind), string(result.Outcome), changed, errText, at.Unix(),
	)
	return err
}

// RecentSyncs returns up to limit journal entries, newest first.
func (s *EncryptedStateStore) RecentSyncs(limit int) ([]JournalEntry, error) {
	rows, err := s.db.Query(`
		SELECT pass_id, artifact, outcome, changed, error, recorded_at
		FROM sync_journal ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var artifact, outcome string
		var changed int
		var recordedAt int64
		if err := rows.Scan(&e.PassID, &artifact, &outcome, &changed, &e.Error, &recordedAt); err != nil {
			return nil, err
		}
		e.Artifact = domain.ArtifactKind(artifact)
		e.Outcome = domain.SyncOutcome(outcome)
		e.Changed = changed != 0
		e.RecordedAt = time.Unix(recordedAt, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Path returns the database file path.
func (s *EncryptedStateStore) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *EncryptedStateStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// OpenStateStore resolves the state key in dataDir and opens the store.
//
// A database that the resolved key cannot open is set aside and replaced
// by an empty one, so a lost or rotated key costs the remembered state but
// never the agent. Recovered reports when that happened.
func OpenStateStore(dataDir string) (*EncryptedStateStore, error) {
	keyring := NewStateKeyring(dataDir)
	key, rotated, err := keyring.Resolve()
	if err != nil {
		return nil, fmt.Errorf("state key: %w", err)
	}

	s, err := NewEncryptedStateStore(dataDir, key)
	if err != nil && isNotADatabase(err) {
		if setAsideErr := keyring.SetAsideDatabase(); setAsideErr != nil {
			return nil, fmt.Errorf("%w (set aside: %v)", err, setAsideErr)
		}
		rotated = true
		s, err = NewEncryptedStateStore(dataDir, key)
	}
	if err != nil {
		return nil, err
	}
	s.recovered = rotated
	return s, nil
}

// Recovered reports whether opening discarded an unreadable database.
func (s *EncryptedStateStore) Recovered() bool {
	return s.recovered
}

// isNotADatabase matches the error SQLCipher returns for a wrong key.
func isNotADatabase(err error) bool {
	var sqlErr sqlcipher.Error
	return errors.As(err, &sqlErr) && sqlErr.Code == sqlcipher.ErrNotADB
}

// Ensure EncryptedStateStore implements both interfaces.
var _ domain.SignatureStore = (*EncryptedStateStore)(nil)
var _ domain.SyncJournal = (*EncryptedStateStore)(nil)
