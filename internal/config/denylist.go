package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrDenyListShape means blacklist.json decoded but is not a JSON array.
var ErrDenyListShape = errors.New("deny-list is not a JSON array")

// ParseDenyList decodes blacklist.json into normalized process names.
// Entries are stringified, trimmed and lower-cased; blanks and duplicates are
// dropped, first occurrence wins. An empty array is valid and yields no names.
func ParseDenyList(data []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("parse deny-list: empty document")
	}

	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("parse deny-list: invalid JSON")
	}
	if trimmed[0] != '[' {
		return nil, ErrDenyListShape
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("parse deny-list: %w", err)
	}

	names := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, entry := range raw {
		name := NormalizeName(entryString(entry))
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	return names, nil
}

// NormalizeName is the case-folding used for every process name comparison.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// entryString renders a deny-list entry as text. Non-string scalars are
// kept in their literal form; nulls, arrays and objects yield "".
func entryString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}

	return ""
}
