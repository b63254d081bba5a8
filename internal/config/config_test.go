package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadPath_Defaults(t *testing.T) {
	path := writeConfig(t, `
env: local
secret_key: test-secret
clients:
  - client_id: c1
    redirect_uri: http://localhost:8001/callback
`)

	cfg, err := LoadPath(path)
	require.NoError(t, err)

	assert.Equal(t, EnvLocal, cfg.Env)
	assert.Equal(t, 168*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 5*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 720*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 60*time.Second, cfg.AuthorizationCodeTTL)
	assert.Equal(t, 8000, cfg.HTTP.Port)
	assert.Equal(t, "/dashboard", cfg.HTTP.DefaultLanding)
	require.Len(t, cfg.Clients, 1)
	assert.Equal(t, "c1", cfg.Clients[0].ClientID)
}

func TestLoadPath_NoSecret(t *testing.T) {
	path := writeConfig(t, "env: local\n")

	_, err := LoadPath(path)
	require.ErrorIs(t, err, ErrNoSecret)
}

func TestLoadPath_VaultInsteadOfSecret(t *testing.T) {
	path := writeConfig(t, "env: prod\nvault:\n  enabled: true\n  token: t\n")

	cfg, err := LoadPath(path)
	require.NoError(t, err)
	assert.True(t, cfg.Vault.Enabled)
	assert.Equal(t, "signing_key", cfg.Vault.KeyField)
}

func TestLoadPath_Missing(t *testing.T) {
	_, err := LoadPath(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestMustLoadPath_Panics(t *testing.T) {
	assert.Panics(t, func() { MustLoadPath("") })
}
