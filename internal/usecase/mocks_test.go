package usecase

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/eliteGoblin/hawkeye/internal/domain"
)

// mockStore implements domain.ArtifactStore in memory.
type mockStore struct {
	files        map[domain.ArtifactKind][]byte
	backups      map[domain.ArtifactKind][]byte
	replaceErr   error
	replaceCalls int
	promoted     []domain.ArtifactKind
}

func newMockStore() *mockStore {
	return &mockStore{
		files:   make(map[domain.ArtifactKind][]byte),
		backups: make(map[domain.ArtifactKind][]byte),
	}
}

func (m *mockStore) Path(kind domain.ArtifactKind) string {
	return "/mock/" + string(kind)
}

func (m *mockStore) BackupPath(kind domain.ArtifactKind) string {
	return m.Path(kind) + ".bak"
}

func (m *mockStore) Read(kind domain.ArtifactKind) ([]byte, error) {
	data, ok := m.files[kind]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return append([]byte(nil), data...), nil
}

func (m *mockStore) ReadBackup(kind domain.ArtifactKind) ([]byte, error) {
	data, ok := m.backups[kind]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return append([]byte(nil), data...), nil
}

func (m *mockStore) Exists(kind domain.ArtifactKind) bool {
	_, ok := m.files[kind]
	return ok
}

func (m *mockStore) BackupExists(kind domain.ArtifactKind) bool {
	_, ok := m.backups[kind]
	return ok
}

func (m *mockStore) Replace(kind domain.ArtifactKind, data []byte) error {
	m.replaceCalls++
	if m.replaceErr != nil {
		return m.replaceErr
	}
	if old, ok := m.files[kind]; ok {
		m.backups[kind] = old
	}
	m.files[kind] = append([]byte(nil), data...)
	return nil
}

func (m *mockStore) PromoteBackup(kind domain.ArtifactKind) error {
	data, ok := m.backups[kind]
	if !ok {
		return fs.ErrNotExist
	}
	m.files[kind] = data
	delete(m.backups, kind)
	m.promoted = append(m.promoted, kind)
	return nil
}

func (m *mockStore) set(kind domain.ArtifactKind, data string) {
	m.files[kind] = []byte(data)
}

func (m *mockStore) setBackup(kind domain.ArtifactKind, data string) {
	m.backups[kind] = []byte(data)
}

func (m *mockStore) get(kind domain.ArtifactKind) string {
	return string(m.files[kind])
}

// mockFetcher implements domain.Fetcher with canned responses per URL.
type mockFetcher struct {
	responses map[string]mockResponse
	calls     map[string]int
}

type mockResponse struct {
	body        string
	contentType string
	err         error
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{
		responses: make(map[string]mockResponse),
		calls:     make(map[string]int),
	}
}

func (m *mockFetcher) Fetch(ctx context.Context, kind domain.ArtifactKind, url string) (*domain.FetchResult, error) {
	m.calls[url]++
	resp, ok := m.responses[url]
	if !ok {
		return nil, errors.New("connection refused")
	}
	if resp.err != nil {
		return nil, resp.err
	}
	return &domain.FetchResult{Body: []byte(resp.body), ContentType: resp.contentType}, nil
}

func (m *mockFetcher) serve(url, body string) {
	m.responses[url] = mockResponse{body: body, contentType: "application/json"}
}

// mockProcessDirectory implements domain.ProcessDirectory.
type mockProcessDirectory struct {
	running    map[string]struct{}
	listErr    error
	outcomes   map[string]domain.TerminateOutcome
	errs       map[string]error
	terminated []string
	listCalls  int
}

func newMockProcessDirectory(names ...string) *mockProcessDirectory {
	running := make(map[string]struct{}, len(names))
	for _, n := range names {
		running[n] = struct{}{}
	}
	return &mockProcessDirectory{
		running:  running,
		outcomes: make(map[string]domain.TerminateOutcome),
		errs:     make(map[string]error),
	}
}

func (m *mockProcessDirectory) ListRunningNames(ctx context.Context) (map[string]struct{}, error) {
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make(map[string]struct{}, len(m.running))
	for n := range m.running {
		out[n] = struct{}{}
	}
	return out, nil
}

func (m *mockProcessDirectory) Terminate(ctx context.Context, name string) (domain.TerminateOutcome, error) {
	m.terminated = append(m.terminated, name)
	if outcome, ok := m.outcomes[name]; ok {
		return outcome, m.errs[name]
	}
	delete(m.running, name)
	return domain.TerminateKilled, nil
}

// mockNotifier implements domain.Notifier.
type mockNotifier struct {
	err   error
	shown []string
}

func (m *mockNotifier) Display(ctx context.Context, text string, durationSeconds int) error {
	if m.err != nil {
		return m.err
	}
	m.shown = append(m.shown, text)
	return nil
}

// mockJournal implements domain.SyncJournal.
type mockJournal struct {
	passes  []string
	results []domain.SyncResult
}

func (m *mockJournal) RecordSync(passID string, result domain.SyncResult) error {
	m.passes = append(m.passes, passID)
	m.results = append(m.results, result)
	return nil
}

// mockMetrics implements domain.MetricsRecorder.
type mockMetrics struct {
	syncs        []domain.SyncResult
	terminations []domain.TerminateOutcome
	messages     []domain.DispatchOutcome
	ticks        []time.Time
}

func (m *mockMetrics) ObserveSync(result domain.SyncResult) {
	m.syncs = append(m.syncs, result)
}

func (m *mockMetrics) ObserveTermination(outcome domain.TerminateOutcome) {
	m.terminations = append(m.terminations, outcome)
}

func (m *mockMetrics) ObserveMessage(outcome domain.DispatchOutcome) {
	m.messages = append(m.messages, outcome)
}

func (m *mockMetrics) ObserveTick(at time.Time) {
	m.ticks = append(m.ticks, at)
}

func (m *mockMetrics) Flush() error { return nil }

// mockSignatureStore implements domain.SignatureStore.
type mockSignatureStore struct {
	signature string
	readErr   error
	writes    int
}

func (m *mockSignatureStore) LastSignature() (string, error) {
	return m.signature, m.readErr
}

func (m *mockSignatureStore) SetLastSignature(signature string) error {
	m.writes++
	m.signature = signature
	return nil
}
