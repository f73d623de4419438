package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_JSONCarriesRunID(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(&buf, "migrate-identity", "info", "json")

	logger.Info("migrated", "target", "uid-1")
	logger.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "migrated", rec["msg"])
	assert.Equal(t, "migrate-identity", rec["tool"])
	assert.Equal(t, "uid-1", rec["target"])
	assert.NotEmpty(t, rec["run_id"])
}

func TestSetup_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(&buf, "seed-tenant-config", "debug", "text")

	logger.Debug("seeding", "tenant", "acme")
	assert.Contains(t, buf.String(), "msg=seeding")
	assert.Contains(t, buf.String(), "tenant=acme")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestDiscard(t *testing.T) {
	assert.False(t, Discard().Enabled(context.Background(), slog.LevelError))
}
