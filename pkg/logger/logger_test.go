package logger

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"device-gate/pkg/config"
)

func TestInitLevelAndFormat(t *testing.T) {
	closer := Init(config.LogConfig{Level: "DEBUG", Format: "json"})
	defer closer.Close()

	assert.Equal(t, log.DebugLevel, log.GetLevel())
	_, isJSON := log.StandardLogger().Formatter.(*log.JSONFormatter)
	assert.True(t, isJSON)
}

func TestInitFallsBackToInfo(t *testing.T) {
	closer := Init(config.LogConfig{Level: "chatty"})
	defer closer.Close()

	assert.Equal(t, log.InfoLevel, log.GetLevel())
}

func TestInitWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gate.log")
	closer := Init(config.LogConfig{Level: "info", File: path, MaxSizeMB: 1})

	log.Info("device bound")
	require.NoError(t, closer.Close())
	log.SetOutput(os.Stdout)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "device bound")
}
