package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/hawkeye/internal/domain"
)

func TestParseDocument_FullDocument(t *testing.T) {
	data := []byte(`{
		"interval_seconds": 5,
		"message_poll_seconds": 15,
		"urls": {
			"config": "https://x/config.json",
			"blacklist": " https://x/blacklist.json ",
			"guard": ""
		},
		"message": {"show": true, "text": "Back to work", "duration_seconds": 30}
	}`)

	cfg, err := ParseDocument(data)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.IntervalSeconds)
	assert.Equal(t, 15, cfg.MessagePollSeconds)
	assert.Equal(t, "https://x/config.json", cfg.URLs.Config)
	assert.Equal(t, "https://x/blacklist.json", cfg.URLs.Blacklist)
	assert.Empty(t, cfg.URLs.Guard)
	assert.Equal(t, domain.MessageDirective{Show: true, Text: "Back to work", DurationSeconds: 30}, cfg.Message)
}

func TestParseDocument_PartialTrust(t *testing.T) {
	tests := []struct {
		name string
		data string
		want domain.Configuration
	}{
		{
			name: "empty object uses every default",
			data: `{}`,
			want: Default(),
		},
		{
			name: "non-positive intervals fall back",
			data: `{"interval_seconds": 0, "message_poll_seconds": -3}`,
			want: Default(),
		},
		{
			name: "wrong types fall back per field",
			data: `{"interval_seconds": "abc", "message_poll_seconds": 7, "urls": "nope"}`,
			want: func() domain.Configuration {
				c := Default()
				c.MessagePollSeconds = 7
				return c
			}(),
		},
		{
			name: "numeric string and fraction accepted",
			data: `{"interval_seconds": "12", "message_poll_seconds": 2.9}`,
			want: func() domain.Configuration {
				c := Default()
				c.IntervalSeconds = 12
				c.MessagePollSeconds = 2
				return c
			}(),
		},
		{
			name: "non-string url ignored, others kept",
			data: `{"urls": {"config": 42, "guard": "https://x/guard"}}`,
			want: func() domain.Configuration {
				c := Default()
				c.URLs.Guard = "https://x/guard"
				return c
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseDocument([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg)
		})
	}
}

func TestParseDocument_Message(t *testing.T) {
	tests := []struct {
		name string
		data string
		want domain.MessageDirective
	}{
		{"missing duration defaults", `{"message": {"show": true, "text": "hi"}}`,
			domain.MessageDirective{Show: true, Text: "hi", DurationSeconds: 60}},
		{"null duration defaults", `{"message": {"show": true, "text": "hi", "duration_seconds": null}}`,
			domain.MessageDirective{Show: true, Text: "hi", DurationSeconds: 60}},
		{"zero duration floored", `{"message": {"show": true, "text": "hi", "duration_seconds": 0}}`,
			domain.MessageDirective{Show: true, Text: "hi", DurationSeconds: 1}},
		{"negative duration floored", `{"message": {"show": true, "text": "hi", "duration_seconds": -20}}`,
			domain.MessageDirective{Show: true, Text: "hi", DurationSeconds: 1}},
		{"string show flag", `{"message": {"show": "Yes", "text": "hi"}}`,
			domain.MessageDirective{Show: true, Text: "hi", DurationSeconds: 60}},
		{"numeric show flag", `{"message": {"show": 1, "text": "hi"}}`,
			domain.MessageDirective{Show: true, Text: "hi", DurationSeconds: 60}},
		{"false string", `{"message": {"show": "false", "text": "hi"}}`,
			domain.MessageDirective{Show: false, Text: "hi", DurationSeconds: 60}},
		{"non-object message ignored", `{"message": "hello"}`,
			domain.MessageDirective{DurationSeconds: 60}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseDocument([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Message)
		})
	}
}

func TestParseDocument_UnusableDocument(t *testing.T) {
	cfg, err := ParseDocument([]byte(`<!DOCTYPE html><html></html>`))
	assert.Error(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = ParseDocument([]byte(`[1, 2]`))
	assert.True(t, errors.Is(err, ErrNotObject))
	assert.Equal(t, Default(), cfg)

	cfg, err = ParseDocument(nil)
	assert.Error(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestMessageDirective_Requested(t *testing.T) {
	assert.True(t, domain.MessageDirective{Show: true, Text: "A"}.Requested())
	assert.False(t, domain.MessageDirective{Show: true, Text: "   "}.Requested())
	assert.False(t, domain.MessageDirective{Show: false, Text: "A"}.Requested())
}
