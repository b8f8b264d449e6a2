// Package infra implements infrastructure concerns (store, fetcher, processes, notifier, state).
package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/eliteGoblin/hawkeye/internal/domain"
)

const (
	// BackupSuffix is appended to a committed path to form its backup path.
	BackupSuffix = ".bak"

	tmpPattern    = ".hawkeye-tmp-*"
	bakTmpPattern = ".hawkeye-bak-*"
)

// ArtifactFileName returns the on-disk name of an artifact.
func ArtifactFileName(kind domain.ArtifactKind) string {
	switch kind {
	case domain.KindConfig:
		return "config.json"
	case domain.KindBlacklist:
		return "blacklist.json"
	case domain.KindGuard:
		if runtime.GOOS == "windows" {
			return "guard.exe"
		}
		return "guard"
	}
	return string(kind)
}

// FileStore implements domain.ArtifactStore with one file per artifact.
// Writers use temp file + rename in the same directory, so readers only ever
// see a complete old or a complete new copy.
type FileStore struct {
	dir string

	// rename is swapped in tests to simulate an interrupted commit.
	rename func(oldpath, newpath string) error
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{
		dir:    dir,
		rename: os.Rename,
	}
}

// Dir returns the data directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Init creates the data directory.
func (s *FileStore) Init() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", s.dir, err)
	}
	return nil
}

// Path returns the committed path of an artifact.
func (s *FileStore) Path(kind domain.ArtifactKind) string {
	return filepath.Join(s.dir, ArtifactFileName(kind))
}

// BackupPath returns the backup path of an artifact.
func (s *FileStore) BackupPath(kind domain.ArtifactKind) string {
	return s.Path(kind) + BackupSuffix
}

// Read returns the committed bytes.
func (s *FileStore) Read(kind domain.ArtifactKind) ([]byte, error) {
	return os.ReadFile(s.Path(kind))
}

// ReadBackup returns the backup bytes.
func (s *FileStore) ReadBackup(kind domain.ArtifactKind) ([]byte, error) {
	return os.ReadFile(s.BackupPath(kind))
}

// Exists checks if a committed regular file is present.
func (s *FileStore) Exists(kind domain.ArtifactKind) bool {
	return isRegular(s.Path(kind))
}

// BackupExists checks if a backup regular file is present.
func (s *FileStore) BackupExists(kind domain.ArtifactKind) bool {
	return isRegular(s.BackupPath(kind))
}

// Replace commits data for an artifact.
//
// Order: new bytes to a temp file; current committed bytes to the backup
// (itself via temp + rename); temp renamed over the committed path. The
// committed path is never absent and never partially written. Any failure
// leaves the committed file as it was.
func (s *FileStore) Replace(kind domain.ArtifactKind, data []byte) error {
	if err := s.Init(); err != nil {
		return err
	}

	path := s.Path(kind)
	tmpPath, err := s.writeTemp(tmpPattern, data, fileMode(kind))
	if err != nil {
		return fmt.Errorf("write temp for %s: %w", kind, err)
	}

	// Clean up temp file on any error
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if current, err := os.ReadFile(path); err == nil {
		if err := s.writeBackup(kind, current); err != nil {
			return fmt.Errorf("backup %s: %w", kind, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read current %s: %w", kind, err)
	}

	if err := s.rename(tmpPath, path); err != nil {
		return fmt.Errorf("commit %s: %w", kind, err)
	}

	success = true
	return nil
}

// PromoteBackup moves the backup over the committed path.
func (s *FileStore) PromoteBackup(kind domain.ArtifactKind) error {
	if err := s.rename(s.BackupPath(kind), s.Path(kind)); err != nil {
		return fmt.Errorf("promote backup of %s: %w", kind, err)
	}
	return nil
}

func (s *FileStore) writeBackup(kind domain.ArtifactKind, data []byte) error {
	tmpPath, err := s.writeTemp(bakTmpPattern, data, fileMode(kind))
	if err != nil {
		return err
	}
	if err := s.rename(tmpPath, s.BackupPath(kind)); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// writeTemp writes data to a new temp file in the store directory, synced and
// chmod'ed, and returns its path.
func (s *FileStore) writeTemp(pattern string, data []byte, mode os.FileMode) (string, error) {
	tmpFile, err := os.CreateTemp(s.dir, pattern)
	if err != nil {
		return "", err
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return "", err
	}

	// Sync to disk before rename
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	if err := os.Chmod(tmpPath, mode); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	return tmpPath, nil
}

func fileMode(kind domain.ArtifactKind) os.FileMode {
	if kind == domain.KindGuard {
		return 0755
	}
	return 0644
}

func isRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Ensure FileStore implements domain.ArtifactStore.
var _ domain.ArtifactStore = (*FileStore)(nil)
