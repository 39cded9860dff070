package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(100<<20), cfg.Uploads.MaxSizeBytes)
	assert.Contains(t, cfg.Uploads.AllowedExtensions, ".csv")
	assert.True(t, cfg.Security.PIIDetection)
	assert.False(t, cfg.Security.PIIReject)
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.Timeout.Duration())
	assert.Equal(t, 1, cfg.Pipeline.MaxConcurrent)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
pipeline:
  timeout: 2m
openai:
  model: gpt-4o
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Pipeline.Timeout.Duration())
	assert.Equal(t, "gpt-4o", cfg.OpenAI.Model)

	// Untouched fields keep their defaults.
	assert.Equal(t, int64(100<<20), cfg.Uploads.MaxSizeBytes)
	assert.Equal(t, 1, cfg.Pipeline.MaxConcurrent)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidDuration(t *testing.T) {
	path := writeConfig(t, "pipeline:\n  timeout: soon\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadInvalidPort(t *testing.T) {
	path := writeConfig(t, "server:\n  port: -1\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.MaxConcurrent = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Uploads.AllowedExtensions = nil
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Uploads.MaxSizeBytes = 0
	assert.Error(t, cfg.Validate())
}
