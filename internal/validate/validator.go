// Package validate decides whether fetched bytes may replace a local artifact.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"

	"github.com/eliteGoblin/hawkeye/internal/domain"
)

// markupWindow is how many leading bytes the markup heuristic inspects.
const markupWindow = 256

// Top-level shape only. Field contents are trusted partially by the config
// parser, so a bad field must not reject the whole document here.
const (
	configSchema    = `{"$schema": "http://json-schema.org/draft-07/schema#", "type": "object"}`
	blacklistSchema = `{"$schema": "http://json-schema.org/draft-07/schema#", "type": "array"}`
)

var (
	schemaOnce sync.Once
	schemas    map[domain.ArtifactKind]*gojsonschema.Schema
	schemaErr  error
)

// loadSchemas compiles the shape schemas once.
func loadSchemas() (map[domain.ArtifactKind]*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiled := make(map[domain.ArtifactKind]*gojsonschema.Schema, 2)
		for kind, src := range map[domain.ArtifactKind]string{
			domain.KindConfig:    configSchema,
			domain.KindBlacklist: blacklistSchema,
		} {
			s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
			if err != nil {
				schemaErr = fmt.Errorf("compile %s schema: %w", kind, err)
				return
			}
			compiled[kind] = s
		}
		schemas = compiled
	})
	return schemas, schemaErr
}

// ArtifactValidator implements domain.Validator.
type ArtifactValidator struct{}

// NewValidator creates a new artifact validator.
func NewValidator() *ArtifactValidator {
	return &ArtifactValidator{}
}

// Check returns nil when data is usable as an artifact of the given kind.
// Rejections wrap domain.ErrRejected.
func (v *ArtifactValidator) Check(data []byte, kind domain.ArtifactKind, contentType string) error {
	if len(data) == 0 {
		return reject("empty body")
	}
	if isHTMLContentType(contentType) {
		return reject("content type %q", contentType)
	}
	if LooksLikeMarkup(data) {
		return reject("looks like an HTML page")
	}
	if !kind.IsJSON() {
		return nil
	}

	if !utf8.Valid(data) {
		return reject("not valid UTF-8")
	}
	if !json.Valid(data) {
		return reject("malformed JSON")
	}

	compiled, err := loadSchemas()
	if err != nil {
		return err
	}
	schema, ok := compiled[kind]
	if !ok {
		return nil
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return reject("schema validation: %v", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return reject("schema: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// IsUsable is the boolean form of Check.
func (v *ArtifactValidator) IsUsable(data []byte, kind domain.ArtifactKind, contentType string) bool {
	return v.Check(data, kind, contentType) == nil
}

// LooksLikeMarkup reports whether the start of data resembles an HTML page,
// such as a captive portal or a proxy error served with status 200.
func LooksLikeMarkup(data []byte) bool {
	head := data
	if len(head) > markupWindow {
		head = head[:markupWindow]
	}
	head = bytes.ToLower(bytes.TrimLeft(head, " \t\r\n\ufeff"))
	return bytes.HasPrefix(head, []byte("<!doctype html")) ||
		bytes.HasPrefix(head, []byte("<html")) ||
		bytes.Contains(head, []byte("<head")) ||
		bytes.Contains(head, []byte("<body"))
}

func isHTMLContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func reject(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrRejected, fmt.Sprintf(format, args...))
}

// Ensure ArtifactValidator implements domain.Validator.
var _ domain.Validator = (*ArtifactValidator)(nil)
