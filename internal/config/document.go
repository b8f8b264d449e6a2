// Package config parses the remote configuration document, the deny-list,
// and the local agent settings file.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/eliteGoblin/hawkeye/internal/domain"
)

const (
	// DefaultIntervalSeconds is the enforcement cadence when config.json does not set one.
	DefaultIntervalSeconds = 10
	// DefaultMessagePollSeconds is the sync + message cadence when config.json does not set one.
	DefaultMessagePollSeconds = 30
	// DefaultMessageDurationSeconds is how long a message stays on screen by default.
	DefaultMessageDurationSeconds = 60
	// MinMessageDurationSeconds is the floor for non-positive durations.
	MinMessageDurationSeconds = 1
)

// ErrNotObject means the document decoded but its top level is not a JSON object.
var ErrNotObject = errors.New("config document is not a JSON object")

// Default returns the configuration used when nothing usable is on disk.
func Default() domain.Configuration {
	return domain.Configuration{
		IntervalSeconds:    DefaultIntervalSeconds,
		MessagePollSeconds: DefaultMessagePollSeconds,
		Message: domain.MessageDirective{
			DurationSeconds: DefaultMessageDurationSeconds,
		},
	}
}

// document mirrors config.json with every field left raw, so that one bad
// field only costs that field.
type document struct {
	IntervalSeconds    json.RawMessage `json:"interval_seconds"`
	MessagePollSeconds json.RawMessage `json:"message_poll_seconds"`
	URLs               json.RawMessage `json:"urls"`
	Message            json.RawMessage `json:"message"`
}

type urlsDocument struct {
	Config    json.RawMessage `json:"config"`
	Blacklist json.RawMessage `json:"blacklist"`
	Guard     json.RawMessage `json:"guard"`
}

type messageDocument struct {
	Show            json.RawMessage `json:"show"`
	Text            json.RawMessage `json:"text"`
	DurationSeconds json.RawMessage `json:"duration_seconds"`
}

// ParseDocument decodes config.json with partial trust.
// A malformed field falls back to its default. Only undecodable JSON or a
// non-object top level returns an error, and even then the returned
// configuration is the full default.
func ParseDocument(data []byte) (domain.Configuration, error) {
	cfg := Default()

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		if !json.Valid(trimmed) {
			return cfg, fmt.Errorf("parse config: invalid JSON")
		}
		return cfg, ErrNotObject
	}

	var doc document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	// Non-positive intervals mean "use the default", not "run as fast as possible"
	if n, ok := positiveInt(doc.IntervalSeconds); ok {
		cfg.IntervalSeconds = n
	}
	if n, ok := positiveInt(doc.MessagePollSeconds); ok {
		cfg.MessagePollSeconds = n
	}

	var urls urlsDocument
	if isObject(doc.URLs) && json.Unmarshal(doc.URLs, &urls) == nil {
		cfg.URLs = domain.URLs{
			Config:    urlString(urls.Config),
			Blacklist: urlString(urls.Blacklist),
			Guard:     urlString(urls.Guard),
		}
	}

	var msg messageDocument
	if isObject(doc.Message) && json.Unmarshal(doc.Message, &msg) == nil {
		cfg.Message = parseMessage(msg)
	}

	return cfg, nil
}

func parseMessage(msg messageDocument) domain.MessageDirective {
	directive := domain.MessageDirective{
		Show:            truthy(msg.Show),
		DurationSeconds: DefaultMessageDurationSeconds,
	}

	var text string
	if json.Unmarshal(msg.Text, &text) == nil {
		directive.Text = text
	}

	if n, ok := intValue(msg.DurationSeconds); ok {
		if n < MinMessageDurationSeconds {
			n = MinMessageDurationSeconds
		}
		directive.DurationSeconds = n
	}

	return directive
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// urlString returns a trimmed URL, or "" for anything that is not a non-blank string.
func urlString(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func positiveInt(raw json.RawMessage) (int, bool) {
	n, ok := intValue(raw)
	if !ok || n <= 0 {
		return 0, false
	}
	return n, true
}

// intValue accepts JSON numbers (fractions truncated) and numeric strings.
func intValue(raw json.RawMessage) (int, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0, false
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return clampInt(f)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return clampInt(f)
}

func clampInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f > math.MaxInt32 {
		return math.MaxInt32, true
	}
	if f < math.MinInt32 {
		return math.MinInt32, true
	}
	return int(f), true
}

// truthy interprets the boolean-like `show` flag.
func truthy(raw json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f != 0
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "1", "yes", "on", "y":
			return true
		}
	}
	return false
}
