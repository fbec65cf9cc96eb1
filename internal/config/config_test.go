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

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "anthropic", cfg.Judge.Backend)
	assert.Equal(t, uint64(150_000), cfg.Solana.PriorityFeeMicro)
	assert.Equal(t, "@every 30s", cfg.Cron.TreasuryRefresh)
	assert.Equal(t, DefaultTuning(), cfg.Tuning)
	assert.Equal(t, []string{"*"}, cfg.Server.Origins())
	assert.False(t, cfg.Auth.Enabled())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ORACLE_ADDR", ":9090")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "file:oracle.db")
	t.Setenv("JUDGE_BACKEND", "gemini")
	t.Setenv("JUDGE_TIMEOUT", "5s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("ADMIN_JWT_SECRET", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "gemini", cfg.Judge.Backend)
	assert.Equal(t, 5*time.Second, cfg.Judge.Timeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.Origins())
	assert.True(t, cfg.Auth.Enabled())
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("TOKEN_MINT_ADDRESS=MintFromDotEnv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("TOKEN_MINT_ADDRESS") })

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "MintFromDotEnv", cfg.Solana.TokenMint)

	_, err = Load(filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
}

func TestLoadTuningFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cooldown: 1m\nhype_limit: 1000000\nworthy_threshold: 50\n"), 0o600))
	t.Setenv("ORACLE_TUNING_FILE", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Tuning.Cooldown)
	assert.Equal(t, uint64(1_000_000), cfg.Tuning.HypeLimit)
	assert.Equal(t, 50, cfg.Tuning.WorthyThreshold)
	// Unset keys keep their defaults.
	assert.Equal(t, DefaultTuning().BreakerCooling, cfg.Tuning.BreakerCooling)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }},
		{"unknown judge", func(c *Config) { c.Judge.Backend = "oracle-of-delphi" }},
		{"threshold too low", func(c *Config) { c.Tuning.WorthyThreshold = 10 }},
		{"minimum above cap", func(c *Config) { c.Tuning.TreasuryMinimum = 100_000_000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Database: DatabaseConfig{Driver: "memory"},
				Judge:    JudgeConfig{Backend: "anthropic"},
				Tuning:   DefaultTuning(),
			}
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
