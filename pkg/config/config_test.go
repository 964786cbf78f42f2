package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborgate/orgd/pkg/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ORGD_LICENSE_PRIVATE_KEY_FILE", "/etc/orgd/license.pem")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ModeHosted, cfg.DeploymentMode)
	assert.True(t, cfg.Mode().Hosted())
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 2*time.Second, cfg.Guard.MinDelay)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("ORGD_DEPLOYMENT_MODE", "self-hosted")
	t.Setenv("ORGD_LICENSE_PUBLIC_KEY_FILE", "/etc/orgd/license.pub")
	t.Setenv("ORGD_GUARD_MIN_DELAY", "3s")
	t.Setenv("ORGD_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ModeSelfHosted, cfg.DeploymentMode)
	assert.False(t, cfg.Mode().Hosted())
	assert.Equal(t, 3*time.Second, cfg.Guard.MinDelay)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
}

func TestLoadConfigYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orgd.yaml")
	content := `
deployment_mode: self-hosted
server:
  port: "8888"
license:
  public_key_file: /etc/orgd/license.pub
guard:
  min_delay: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("ORGD_CONFIG_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ModeSelfHosted, cfg.DeploymentMode)
	assert.Equal(t, "8888", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Guard.MinDelay)
}

func TestLoadConfigEnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orgd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"8888\"\n"), 0o600))
	t.Setenv("ORGD_CONFIG_FILE", path)
	t.Setenv("ORGD_PORT", "7777")
	t.Setenv("ORGD_LICENSE_PRIVATE_KEY_FILE", "/etc/orgd/license.pem")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "7777", cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := defaultConfig()
		cfg.License.PrivateKeyFile = "/etc/orgd/license.pem"
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("unknown mode", func(t *testing.T) {
		cfg := base()
		cfg.DeploymentMode = "on-prem"
		assert.Error(t, cfg.Validate())
	})

	t.Run("ports must differ", func(t *testing.T) {
		cfg := base()
		cfg.Server.HealthPort = cfg.Server.Port
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero guard delay rejected", func(t *testing.T) {
		cfg := base()
		cfg.Guard.MinDelay = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("hosted requires signing key", func(t *testing.T) {
		cfg := base()
		cfg.License.PrivateKeyFile = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("self-hosted requires public key", func(t *testing.T) {
		cfg := base()
		cfg.DeploymentMode = ModeSelfHosted
		cfg.License.PrivateKeyFile = ""
		cfg.License.PublicKeyFile = ""
		assert.Error(t, cfg.Validate())

		cfg.License.PublicKeyFile = "/etc/orgd/license.pub"
		assert.NoError(t, cfg.Validate())
	})
}
