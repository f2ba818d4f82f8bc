package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://app@localhost:5432/godsaeng")

	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Database.LockTimeout)
	assert.Equal(t, 10*time.Second, cfg.Database.TxTimeout)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "X-User-ID", cfg.HTTP.UserIDHeader)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 100, cfg.Progression.ExpPerLevel)
	assert.Equal(t, 10*time.Minute, cfg.Redis.SnapshotTTL)
	assert.False(t, cfg.IsProduction())
}

func TestLoadFile_DotenvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("DB_DRIVER=sqlite\nSQLITE_PATH=/tmp/from-file.db\nHTTP_PORT=9000\n"), 0o600))

	t.Setenv("HTTP_PORT", "7000")
	// Restored after the test so the dotenv values do not leak.
	for _, k := range []string{"DB_DRIVER", "SQLITE_PATH"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "/tmp/from-file.db", cfg.Database.SQLitePath)
	assert.Equal(t, 7000, cfg.HTTP.Port)
}

func TestLoadFile_MissingDotenvIsFine(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestDatabaseURLFromParts(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "pw")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://app:pw@db:5432/godsaeng?sslmode=disable", cfg.Database.URL)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			App:         AppConfig{Environment: EnvDevelopment},
			HTTP:        HTTPConfig{Port: 8080, UserIDHeader: "X-User-ID"},
			Database:    DatabaseConfig{Driver: DriverSQLite, SQLitePath: "x.db", MaxConns: 1, LockTimeout: time.Second, TxTimeout: 2 * time.Second},
			Progression: ProgressionConfig{ExpPerLevel: 100},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "DB_DRIVER"},
		{"postgres without url", func(c *Config) { c.Database.Driver = DriverPostgres }, "DATABASE_URL"},
		{"zero lock timeout", func(c *Config) { c.Database.LockTimeout = 0 }, "DB_LOCK_TIMEOUT"},
		{"tx shorter than lock", func(c *Config) { c.Database.TxTimeout = time.Millisecond }, "DB_TX_TIMEOUT"},
		{"bad port", func(c *Config) { c.HTTP.Port = 0 }, "HTTP_PORT"},
		{"zero exp per level", func(c *Config) { c.Progression.ExpPerLevel = 0 }, "PROGRESSION_EXP_PER_LEVEL"},
		{"sqlite in production", func(c *Config) { c.App.Environment = EnvProduction }, "production"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
