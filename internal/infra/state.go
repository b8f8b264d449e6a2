package infra

import "github.com/eliteGoblin/hawkeye/internal/domain"

// MemorySignatureStore keeps the last shown signature for the process lifetime.
type MemorySignatureStore struct {
	signature string
}

// NewMemorySignatureStore creates an empty in-memory store.
func NewMemorySignatureStore() *MemorySignatureStore {
	return &MemorySignatureStore{}
}

// LastSignature returns the remembered signature.
func (m *MemorySignatureStore) LastSignature() (string, error) {
	return m.signature, nil
}

// SetLastSignature replaces the remembered signature.
func (m *MemorySignatureStore) SetLastSignature(signature string) error {
	m.signature = signature
	return nil
}

// NopJournal discards sync records.
type NopJournal struct{}

// RecordSync does nothing.
func (NopJournal) RecordSync(string, domain.SyncResult) error { return nil }

var (
	_ domain.SignatureStore = (*MemorySignatureStore)(nil)
	_ domain.SyncJournal    = NopJournal{}
)
