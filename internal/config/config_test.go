package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:             "development",
		Port:            "8080",
		DBDriver:        "postgres",
		DBPassword:      "secure-password",
		DBSSLMode:       "require",
		SessionSecret:   "secure-secret-at-least-32-chars-long",
		SessionTTLHours: 24,
		CookieSecure:    true,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{"Valid development config", func(*Config) {}, false},
		{"Missing port", func(c *Config) { c.Port = "" }, true},
		{"Missing session secret", func(c *Config) { c.SessionSecret = "" }, true},
		{"Non-positive session ttl", func(c *Config) { c.SessionTTLHours = 0 }, true},
		{"Unknown driver", func(c *Config) { c.DBDriver = "mysql" }, true},
		{"Sqlite in development", func(c *Config) { c.DBDriver = "sqlite" }, false},
		{"Sqlite in production", func(c *Config) { c.Env = "production"; c.DBDriver = "sqlite" }, true},
		{"Default secret in production", func(c *Config) { c.Env = "production"; c.SessionSecret = defaultSessionSecret }, true},
		{"Short secret in production", func(c *Config) { c.Env = "prod"; c.SessionSecret = "short" }, true},
		{"Weak db password in production", func(c *Config) { c.Env = "production"; c.DBPassword = "password" }, true},
		{"Hardened production", func(c *Config) { c.Env = "production" }, false},
		{"Azure without container", func(c *Config) { c.BlobProvider = "azure"; c.AzureConnectionString = "UseDevelopmentStorage=true" }, true},
		{"S3 without bucket", func(c *Config) { c.BlobProvider = "s3" }, true},
		{"Local with dir", func(c *Config) { c.BlobProvider = "local"; c.LocalBlobDir = "/tmp/x" }, false},
		{"Unknown provider", func(c *Config) { c.BlobProvider = "ftp" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ResolvedBlobProvider(t *testing.T) {
	c := validConfig()
	assert.Equal(t, "", c.ResolvedBlobProvider())

	c.AzureConnectionString = "UseDevelopmentStorage=true"
	assert.Equal(t, "", c.ResolvedBlobProvider(), "container is required to infer azure")

	c.AzureContainerName = "plants"
	assert.Equal(t, "azure", c.ResolvedBlobProvider())

	c.BlobProvider = " LOCAL "
	assert.Equal(t, "local", c.ResolvedBlobProvider())
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("APP_ENV", "test")
	t.Setenv("PORT", "9999")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("AZURE_STORAGE_CONNECTION", "UseDevelopmentStorage=true")
	t.Setenv("AZURE_STORAGE_CONTAINER_NAME", "plants")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "test", c.Env)
	assert.Equal(t, "9999", c.Port)
	assert.Equal(t, "sqlite", c.DBDriver)
	assert.Equal(t, "UseDevelopmentStorage=true", c.AzureConnectionString)
	assert.Equal(t, "azure", c.ResolvedBlobProvider())
	assert.Equal(t, 24*7, c.SessionTTLHours)
}
