package logger

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tumblrsync/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{
			name:    "info level",
			cfg:     &config.LoggingConfig{Level: "info"},
			wantErr: false,
		},
		{
			name:    "debug level",
			cfg:     &config.LoggingConfig{Level: "debug"},
			wantErr: false,
		},
		{
			name:    "invalid log level",
			cfg:     &config.LoggingConfig{Level: "invalid"},
			wantErr: true,
		},
		{
			name:    "file output",
			cfg:     &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "run.log")},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"warn", zerolog.WarnLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"loud", zerolog.InfoLevel, true},
		{"", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestDefaultFieldsAndChaining(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	var buf bytes.Buffer
	log := NewWithWriter(&buf)

	log.WithField("run_id", "abc").
		WithFields(map[string]interface{}{"blog": "staff", "count": 3}).
		WithError(errors.New("boom")).
		Info("chained")

	out := buf.String()
	assert.Contains(t, out, `"app":"tumblrsync"`)
	assert.Contains(t, out, `"run_id":"abc"`)
	assert.Contains(t, out, `"blog":"staff"`)
	assert.Contains(t, out, `"count":3`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, `"message":"chained"`)
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	var buf bytes.Buffer
	parent := NewWithWriter(&buf)

	_ = parent.WithField("blog", "staff")
	parent.Info("parent entry")

	assert.NotContains(t, buf.String(), "staff")
}

func TestWithErrorNil(t *testing.T) {
	log := NewWithWriter(&bytes.Buffer{})
	assert.Same(t, log, log.WithError(nil))
}

func TestStructuredFieldTypes(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	var buf bytes.Buffer
	log := NewWithWriter(&buf)

	log.WarnWithFields("retrying", map[string]interface{}{
		"attempt":  2,
		"delay":    5 * time.Second,
		"blogs":    []string{"a", "b"},
		"retry":    true,
		"cause":    errors.New("503"),
		"when":     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		"fraction": 0.5,
	})

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"attempt":2`)
	assert.Contains(t, out, `"blogs":["a","b"]`)
	assert.Contains(t, out, `"cause":"503"`)
}

func TestHelpers(t *testing.T) {
	tl := NewTestLogger()

	LogRequest(tl, "GET", "https://api.tumblr.com/v2/user/info", 200, 15*time.Millisecond)
	LogRequest(tl, "GET", "https://api.tumblr.com/v2/user/info", 429, time.Millisecond)
	LogDownload(tl, "staff", "123", "/tmp/a.jpg", nil)
	LogDownload(tl, "staff", "123", "/tmp/b.jpg", errors.New("disk full"))
	LogBackupProgress(tl, "staff", 20, 45)

	assert.True(t, tl.HasMessage("HTTP request completed"))
	assert.True(t, tl.HasMessage("HTTP request client error"))
	assert.Len(t, tl.GetMessagesByLevel("ERROR"), 1)

	progress := tl.GetMessagesByLevel("INFO")
	require.Len(t, progress, 1)
	assert.Equal(t, "staff", progress[0].Fields["blog"])
	assert.InDelta(t, 44.4, progress[0].Fields["percentage"].(float64), 0.1)
}

func TestTestLoggerSharesBuffer(t *testing.T) {
	tl := NewTestLogger()
	child := tl.WithField("blog", "staff").WithError(errors.New("x"))
	child.Warn("child warning")

	msgs := tl.GetMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "WARN", msgs[0].Level)
	assert.Equal(t, "staff", msgs[0].Fields["blog"])
	assert.EqualError(t, msgs[0].Error, "x")

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}

func TestGlobalLogger(t *testing.T) {
	require.NoError(t, Initialize(&config.LoggingConfig{Level: "disabled"}))
	assert.NotNil(t, GetLogger())

	// must not panic
	Info("info message")
	Error("error message")
	WithField("key", "value").Info("with field")
	WithError(errors.New("test")).Error("with error")
}
