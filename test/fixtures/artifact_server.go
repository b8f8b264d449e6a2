// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
)

// Content types used by the artifact server.
const (
	ContentTypeJSON   = "application/json"
	ContentTypeHTML   = "text/html; charset=utf-8"
	ContentTypeBinary = "application/octet-stream"
)

type artifact struct {
	body        []byte
	contentType string
	status      int
}

// ArtifactServer serves configurable artifacts the way a static file host
// would. Routes can be swapped while the server is running.
type ArtifactServer struct {
	server *httptest.Server

	mu     sync.Mutex
	routes map[string]artifact
	hits   map[string]int
}

// NewArtifactServer starts an artifact server. Call Close when done.
func NewArtifactServer() *ArtifactServer {
	s := &ArtifactServer{
		routes: make(map[string]artifact),
		hits:   make(map[string]int),
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *ArtifactServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	a, ok := s.routes[r.URL.Path]
	s.hits[r.URL.Path]++
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", a.contentType)
	w.WriteHeader(a.status)
	_, _ = w.Write(a.body)
}

// Serve publishes body at path with a 200 status.
func (s *ArtifactServer) Serve(path, contentType string, body []byte) {
	s.ServeStatus(path, contentType, http.StatusOK, body)
}

// ServeStatus publishes body at path with an explicit status code.
func (s *ArtifactServer) ServeStatus(path, contentType string, status int, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[path] = artifact{body: body, contentType: contentType, status: status}
}

// Hits returns how often path was requested.
func (s *ArtifactServer) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// URL returns the absolute URL of path.
func (s *ArtifactServer) URL(path string) string {
	return s.server.URL + path
}

// Close shuts the server down.
func (s *ArtifactServer) Close() {
	s.server.Close()
}

// ConfigDocument renders a config.json pointing every artifact at the server.
func (s *ArtifactServer) ConfigDocument(intervalSeconds int) []byte {
	return []byte(fmt.Sprintf(`{
  "interval_seconds": %d,
  "message_poll_seconds": %d,
  "urls": {
    "config": %q,
    "blacklist": %q,
    "guard": %q
  }
}`, intervalSeconds, intervalSeconds, s.URL("/config.json"), s.URL("/blacklist.json"), s.URL("/guard")))
}

// WriteVictim writes a long-running shell script named name into dir. On
// Linux the script's process name is its file name, so it can stand in for
// a denied application.
func WriteVictim(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\nwhile :; do sleep 1; done\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		return "", err
	}
	return path, nil
}
