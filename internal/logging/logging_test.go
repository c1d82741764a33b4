package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewDisabledIsNop(t *testing.T) {
	t.Setenv(EnvDebug, "")
	dir := filepath.Join(t.TempDir(), "logs")

	logger, err := New(Options{Dir: dir})
	require.NoError(t, err)
	logger.Info("dropped")
	assert.NoDirExists(t, dir)
}

func TestNewWritesJSONFile(t *testing.T) {
	t.Setenv(EnvDebug, "")
	dir := filepath.Join(t.TempDir(), "logs")

	logger, err := New(Options{Debug: true, Dir: dir})
	require.NoError(t, err)
	logger.Debug("scanned", zap.Int("instructions", 2))
	_ = logger.Sync()

	data, err := os.ReadFile(LogFile(dir))
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "scanned", entry["msg"])
	assert.Equal(t, "debug", entry["level"])
	assert.EqualValues(t, 2, entry["instructions"])
}

func TestEnvEnablesLogging(t *testing.T) {
	t.Setenv(EnvDebug, "1")
	assert.True(t, Enabled(Options{}))

	_, err := New(Options{})
	assert.Error(t, err, "a log directory is required once enabled")
}
