package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  env: test\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "rf24-gateway", cfg.App.Name)
	assert.Equal(t, "test", cfg.App.Env)
	assert.Equal(t, "stub", cfg.Radio.Driver)
	assert.Equal(t, 0x4C, cfg.Radio.Channel)
	assert.Equal(t, []string{"1Node"}, cfg.Radio.ReadPipes)
	assert.Equal(t, "2Node", cfg.Radio.WritePipe)
	assert.Equal(t, 500*time.Millisecond, cfg.Link.ResponseTimeout)
	assert.Equal(t, 5*time.Millisecond, cfg.Link.PollInterval)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Database.Enabled)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rf24.yaml")
	doc := `
radio:
  channel: 90
  paLevel: high
  readPipes: ["1Node", "3Node"]
link:
  responseTimeout: 2s
redis:
  enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	t.Setenv("RF24_RADIO_DRIVER", "spidev")
	t.Setenv("RF24_REDIS_ADDR", "redis:6380")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 90, cfg.Radio.Channel)
	assert.Equal(t, "high", cfg.Radio.PALevel)
	assert.Equal(t, []string{"1Node", "3Node"}, cfg.Radio.ReadPipes)
	assert.Equal(t, 2*time.Second, cfg.Link.ResponseTimeout)
	assert.Equal(t, "spidev", cfg.Radio.Driver)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
}

func TestLoad_BadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("radio: [unclosed"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}
