package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shopfront.yaml")
	body := `
api:
  base_url: http://shop.internal:9000
  timeout: 3s
chat:
  reconnect_delay: 250ms
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("SHOPFRONT_APP_DEFAULT_ROLE", "admin")
	t.Setenv("SHOPFRONT_JWT_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://shop.internal:9000", cfg.API.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Chat.ReconnectDelay)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	assert.Equal(t, "admin", cfg.App.DefaultRole)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
}

func TestLoadRejectsUnknownRole(t *testing.T) {
	t.Setenv("SHOPFRONT_APP_DEFAULT_ROLE", "guest")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_role")
}
