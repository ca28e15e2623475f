package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithComponent(t *testing.T) {
	log := New()
	entry := log.WithComponent("quotes")
	require.Equal(t, "quotes", entry.Entry.Data["component"])
}

func TestConfigureInvalidLevel(t *testing.T) {
	log := New()
	require.Error(t, log.Configure("loud", "json", "stdout", 0))
}

func TestConfigureInvalidFormat(t *testing.T) {
	log := New()
	require.Error(t, log.Configure("info", "xml", "stdout", 0))
}

func TestConfigureFileOutput(t *testing.T) {
	log := New()
	path := filepath.Join(t.TempDir(), "quotebroker.log")
	require.NoError(t, log.Configure("debug", "text", path, 7))
}

func TestJSONFieldNames(t *testing.T) {
	// Arrange: capture output.
	log := New()
	var buf bytes.Buffer
	log.SetOutput(&buf)

	// Act
	log.WithComponent("store").WithField("key", "AAPLNASDAQ").Warn("slow query")

	// Assert: renamed keys are present.
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "slow query", line["message"])
	require.Equal(t, "warning", line["level"])
	require.Equal(t, "store", line["component"])
	require.Contains(t, line, "timestamp")
}

func TestCallerIsCallSite(t *testing.T) {
	// Arrange
	log := New()
	var buf bytes.Buffer
	log.SetOutput(&buf)

	// Act
	log.WithComponent("store").Error("write failed")

	// Assert
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Contains(t, line["file"], "logger_test.go:")
}
