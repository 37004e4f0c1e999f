package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "production", "info")

	log.Info(context.Background(), "listening", "addr", ":8080")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "listening", line["msg"])
	assert.Equal(t, ":8080", line["addr"])
	assert.Equal(t, "INFO", line["level"])
}

func TestNewDevelopmentWritesText(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "development", "debug")

	log.Warn(context.Background(), "slow request", "ms", 1200)

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, `msg="slow request"`)
	assert.Contains(t, out, "ms=1200")
}

func TestLevelFiltersInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "production", "error")

	log.Info(context.Background(), "hidden")
	log.Error(context.Background(), "shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestWithCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "development", "info").With("request_id", "abc")

	log.Info(context.Background(), "done")

	assert.Contains(t, buf.String(), "request_id=abc")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
