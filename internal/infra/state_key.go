package infra

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	stateKeyFileName = ".key"
	stateKeySize     = 32 // 256-bit SQLCipher key
)

// stateSidecars are the SQLite files that belong to state.db.
var stateSidecars = []string{"-journal", "-wal", "-shm"}

// errStateKeyInvalid marks a key file that exists but cannot be used.
var errStateKeyInvalid = errors.New("invalid state key")

// StateKeyring owns the SQLCipher key of state.db.
//
// The key and the database are one unit: when the key is lost or no longer
// opens the database, the database is moved aside and both start over.
type StateKeyring struct {
	keyPath string
	dbPath  string
	now     func() time.Time
}

// NewStateKeyring creates the keyring for the state database in dataDir.
func NewStateKeyring(dataDir string) *StateKeyring {
	return &StateKeyring{
		keyPath: filepath.Join(dataDir, stateKeyFileName),
		dbPath:  filepath.Join(dataDir, stateDBName),
		now:     time.Now,
	}
}

// Load reads the stored key.
func (k *StateKeyring) Load() ([]byte, error) {
	encoded, err := os.ReadFile(k.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(encoded)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errStateKeyInvalid, err)
	}
	if len(key) != stateKeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", errStateKeyInvalid, len(key), stateKeySize)
	}
	return key, nil
}

// Resolve returns the key for state.db, minting a new one when the stored
// key is missing or damaged. rotated reports that an existing database was
// set aside because its key was gone.
func (k *StateKeyring) Resolve() (key []byte, rotated bool, err error) {
	key, err = k.Load()
	if err == nil {
		return key, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, errStateKeyInvalid) {
		return nil, false, err
	}

	if _, statErr := os.Stat(k.dbPath); statErr == nil {
		if err := k.SetAsideDatabase(); err != nil {
			return nil, false, err
		}
		rotated = true
	}

	key, err = GenerateStateKey()
	if err != nil {
		return nil, false, err
	}
	if err := k.store(key); err != nil {
		return nil, false, err
	}
	return key, rotated, nil
}

// SetAsideDatabase renames state.db and its sidecars to *.orphaned-<unix>.
// Nothing is deleted so an operator can still recover the old state.
func (k *StateKeyring) SetAsideDatabase() error {
	suffix := fmt.Sprintf(".orphaned-%d", k.now().Unix())
	for _, ext := range append([]string{""}, stateSidecars...) {
		path := k.dbPath + ext
		if err := os.Rename(path, path+suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to set aside %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

// store writes the key atomically with owner-only permissions.
func (k *StateKeyring) store(key []byte) error {
	dir := filepath.Dir(k.keyPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".hawkeye-key-*")
	if err != nil {
		return fmt.Errorf("failed to create temp key file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.WriteString(base64.StdEncoding.EncodeToString(key)); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write key file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close key file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return fmt.Errorf("failed to chmod key file: %w", err)
	}
	if err := os.Rename(tmpPath, k.keyPath); err != nil {
		return fmt.Errorf("failed to commit key file: %w", err)
	}
	success = true
	return nil
}

// GenerateStateKey creates a new random 256-bit key.
func GenerateStateKey() ([]byte, error) {
	key := make([]byte, stateKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	return key, nil
}
