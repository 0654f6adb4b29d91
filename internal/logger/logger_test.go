package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPlainFormatWritesBareMessage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	log, err := New(&Config{Level: "info", OutputPath: path, Format: FormatPlain})
	require.NoError(t, err)

	log.Info("[Monitor] Node-1 is healthy.")
	log.Debug("hidden at info level")
	log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[Monitor] Node-1 is healthy.\n", string(data))
}

func TestJSONFormatCarriesFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	log, err := New(&Config{Level: "debug", OutputPath: path, Format: FormatJSON})
	require.NoError(t, err)

	log.With("node", "Node-2").Debug("draw")
	log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(data)
	assert.True(t, strings.Contains(line, `"msg":"draw"`), line)
	assert.True(t, strings.Contains(line, `"node":"Node-2"`), line)
	assert.True(t, strings.Contains(line, `"level":"debug"`), line)
}

func TestUnknownFormat(t *testing.T) {
	_, err := New(&Config{Level: "info", Format: "xml"})
	require.Error(t, err)
}

func TestBadLevelFallsBackToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	log, err := New(&Config{Level: "loud", OutputPath: path})
	require.NoError(t, err)

	log.Debug("dropped")
	log.Info("kept")
	log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "kept\n", string(data))
}

func TestFromZapObserver(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := FromZap(zap.New(core)).Named("node")

	log.Warn("stuck", "worker", "Node-3")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "stuck", entry.Message)
	assert.Equal(t, "node", entry.LoggerName)
	assert.Equal(t, "Node-3", entry.ContextMap()["worker"])
}

func TestNopAndDefault(t *testing.T) {
	NewNop().Info("nothing")
	require.NotNil(t, NewDefault())
}
