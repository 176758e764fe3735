package logger

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"followgraph/pkg/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufferLogger(buf *bytes.Buffer) *zerologLogger {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	zlog := zerolog.New(buf).Level(zerolog.DebugLevel)
	return &zerologLogger{logger: &zlog, fields: map[string]interface{}{}}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{name: "info level", cfg: &config.LoggingConfig{Level: "info"}},
		{name: "debug level", cfg: &config.LoggingConfig{Level: "debug"}},
		{name: "empty level defaults to info", cfg: &config.LoggingConfig{}},
		{name: "invalid level", cfg: &config.LoggingConfig{Level: "loud"}, wantErr: true},
		{name: "file output", cfg: &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "crawl.log")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":    zerolog.DebugLevel,
		"INFO":     zerolog.InfoLevel,
		"warning":  zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"fatal":    zerolog.FatalLevel,
		"disabled": zerolog.Disabled,
	}
	for in, want := range tests {
		got, err := parseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseLogLevel("verbose")
	assert.Error(t, err)
}

func TestLevelsReachOutput(t *testing.T) {
	var buf bytes.Buffer
	l := bufferLogger(&buf)

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message")

	out := buf.String()
	for _, msg := range []string{"debug message", "info message", "warn message", "error message"} {
		assert.Contains(t, out, msg)
	}
}

func TestFieldChaining(t *testing.T) {
	var buf bytes.Buffer
	l := bufferLogger(&buf)

	l.WithField("direction", "follower").
		WithFields(map[string]interface{}{"resolved": 12, "partial": true}).
		WithError(errors.New("boom")).
		Info("checkpoint")

	out := buf.String()
	assert.Contains(t, out, `"direction":"follower"`)
	assert.Contains(t, out, `"resolved":12`)
	assert.Contains(t, out, `"partial":true`)
	assert.Contains(t, out, `"error":"boom"`)
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	l := bufferLogger(&buf)

	_ = l.WithField("child", "only")
	l.Info("parent")

	assert.NotContains(t, buf.String(), "child")
}

func TestWithErrorNil(t *testing.T) {
	var buf bytes.Buffer
	l := bufferLogger(&buf)
	assert.Same(t, l, l.WithError(nil))
}

func TestFieldTypes(t *testing.T) {
	var buf bytes.Buffer
	l := bufferLogger(&buf)

	l.InfoWithFields("typed", map[string]interface{}{
		"int64":    int64(456),
		"uint64":   uint64(7),
		"duration": 5 * time.Second,
		"time":     time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		"strings":  []string{"a", "b"},
		"custom":   struct{ Name string }{Name: "x"},
	})

	out := buf.String()
	assert.Contains(t, out, `"int64":456`)
	assert.Contains(t, out, `"strings":["a","b"]`)
	assert.Contains(t, out, `"custom":{"Name":"x"}`)
}

func TestGlobalLogger(t *testing.T) {
	require.NoError(t, Initialize(&config.LoggingConfig{Level: "debug"}))
	require.NotNil(t, GetLogger())

	Debug("debug message")
	Info("info message")
	WithField("key", "value").Info("with field")
	WithError(errors.New("x")).Warn("with error")
	LogCrawlProgress("follower", 5, 10, 1)
	LogTileWritten("adj", 0, 1, 3, true)
}

func TestTestLoggerCapturesFields(t *testing.T) {
	l := NewTestLogger()
	child := l.WithField("component", "builder")
	child.InfoWithFields("tile written", map[string]interface{}{"row": 1})
	l.Error("failed")

	msgs := l.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "builder", msgs[0].Fields["component"])
	assert.Equal(t, 1, msgs[0].Fields["row"])
	assert.True(t, l.HasMessage("tile"))
	assert.True(t, l.HasError())
	assert.Len(t, l.GetMessagesByLevel("INFO"), 1)

	l.Clear()
	assert.Empty(t, l.GetMessages())
}
