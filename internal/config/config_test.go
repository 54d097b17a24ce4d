package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 0.3, cfg.Training.DefaultTestRatio)
	assert.Equal(t, 5, cfg.Training.MinProducts)
	assert.Equal(t, 8, cfg.Training.MinWeeks)
	assert.Equal(t, filepath.Join("storage", "processed"), cfg.Storage.ProcessedDir)
	assert.Len(t, cfg.StorageDirs(), 5)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "SQLite3")
	t.Setenv("DEFAULT_TEST_RATIO", "0.25")
	t.Setenv("STORAGE_DIR", "/tmp/fc")
	t.Setenv("SERVER_READ_TIMEOUT", "5s")
	t.Setenv("CORS_ORIGINS", "http://a, http://b,")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, 0.25, cfg.Training.DefaultTestRatio)
	assert.Equal(t, "/tmp/fc/models", cfg.Storage.ModelsDir)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.API.CORSOrigins)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "port out of range", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: true},
		{name: "postgres without host", mutate: func(c *Config) {
			c.Database.Driver = "postgres"
			c.Database.Host = ""
		}, wantErr: true},
		{name: "ratio zero", mutate: func(c *Config) { c.Training.DefaultTestRatio = 0 }, wantErr: true},
		{name: "ratio one", mutate: func(c *Config) { c.Training.DefaultTestRatio = 1 }, wantErr: true},
		{name: "no workers", mutate: func(c *Config) { c.Training.Workers = 0 }, wantErr: true},
		{name: "no rate", mutate: func(c *Config) { c.API.RateLimitPerSecond = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			cfg, err := LoadConfig()
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
