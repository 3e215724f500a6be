package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/saiset-co/sai-directory/types"
)

func TestNewManager(t *testing.T) {
	_, err := NewManager(nil)
	assert.ErrorIs(t, err, types.ErrLoggerConfigInvalid)

	_, err = NewManager(&types.LoggerConfig{Type: "missing"})
	assert.ErrorIs(t, err, types.ErrLoggerTypeUnknown)

	m, err := NewManager(&types.LoggerConfig{Type: "nop"})
	require.NoError(t, err)
	m.Info("discarded")
}

func TestManager_Lifecycle(t *testing.T) {
	m, err := NewManager(&types.LoggerConfig{Type: "nop"})
	require.NoError(t, err)

	assert.False(t, m.IsRunning())
	require.NoError(t, m.Start())
	assert.True(t, m.IsRunning())
	assert.ErrorIs(t, m.Start(), types.ErrServerAlreadyRunning)

	require.NoError(t, m.Stop())
	assert.False(t, m.IsRunning())
	assert.ErrorIs(t, m.Stop(), types.ErrServerNotRunning)
}

func TestManager_CustomLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	var received interface{}
	RegisterLogger("observed", func(config interface{}) (types.Logger, error) {
		received = config
		return NewZapWrapper(zap.New(core)), nil
	})

	m, err := NewManager(&types.LoggerConfig{Type: "observed", Config: map[string]interface{}{"k": "v"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"k": "v"}, received)

	m.Debug("debug", zap.Int("n", 1))
	m.Info("info")
	m.Warn("warn")
	m.Error("error")
	m.Log(zapcore.InfoLevel, "log")

	require.Equal(t, 5, logs.Len())
	entries := logs.AllUntimed()
	assert.Equal(t, "debug", entries[0].Message)
	assert.Equal(t, int64(1), entries[0].ContextMap()["n"])
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}

func TestZapWrapper_ErrorWithErrStack(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapWrapper(zap.New(core))

	l.ErrorWithErrStack("no error", nil)
	l.ErrorWithErrStack("wrapped", errors.Wrap(errors.New("root cause"), "outer"), zap.String("id", "7"))

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "no error", entries[0].Message)
	assert.Equal(t, "root cause", entries[1].ContextMap()["error"])
	assert.Equal(t, "7", entries[1].ContextMap()["id"])
	assert.NotEmpty(t, entries[1].ContextMap()["stack"])
	_, hasStack := entries[0].ContextMap()["stack"]
	assert.False(t, hasStack)
}

func TestZapWrapper_With(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m, err := NewManager(&types.LoggerConfig{Type: "nop"})
	require.NoError(t, err)
	m.Logger = NewZapWrapper(zap.New(core))

	scoped := m.With(zap.String("component", "cache"))
	scoped.Info("scoped")
	m.Info("plain")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "cache", entries[0].ContextMap()["component"])
	assert.NotContains(t, entries[1].ContextMap(), "component")
}

func TestNewDefaultLogger_FileRequiresPath(t *testing.T) {
	_, err := NewDefaultLogger(&types.LoggerConfig{Config: map[string]interface{}{"output": "file"}})
	assert.ErrorIs(t, err, types.ErrLogFileIsEmpty)
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"fatal":   zapcore.FatalLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}

	for input, want := range tests {
		assert.Equal(t, want, parseLogLevel(input), input)
	}
}

func TestNewDefaultLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "directory.log")

	l, err := NewDefaultLogger(&types.LoggerConfig{
		Level: "info",
		Config: map[string]interface{}{
			"format": "json",
			"output": "file",
			"file":   path,
		},
	})
	require.NoError(t, err)

	l.Info("written to file", zap.String("component", "test"))
	require.NoError(t, l.(*ZapWrapper).Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
	assert.Contains(t, string(data), `"component":"test"`)
}
