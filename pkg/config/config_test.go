package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"SERVER_PORT", "MAX_UPLOAD_MB", "DATABASE_ENABLED", "LOG_LEVEL",
		"CORS_ALLOWED_ORIGINS", "IMPORT_DEFAULT_CURRENCY", "IMPORT_DEFAULT_HEADER_ROW",
		"UPLOAD_ARCHIVE_ENABLED", "UPLOAD_RETENTION_DAYS",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(20<<20), cfg.Server.MaxUploadBytes)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "EUR", cfg.Import.DefaultCurrency)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Storage.Enabled)
	assert.Equal(t, 365, cfg.Storage.RetentionDays)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_HOST", "0.0.0.0")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("MAX_UPLOAD_MB", "5")
	t.Setenv("DATABASE_ENABLED", "true")
	t.Setenv("POSTGRES_DB", "recon")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("IMPORT_DEFAULT_CURRENCY", "usd")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr())
	assert.Equal(t, int64(5<<20), cfg.Server.MaxUploadBytes)
	assert.True(t, cfg.Database.Enabled)
	assert.Contains(t, cfg.Database.DSN(), "dbname=recon")
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "USD", cfg.Import.DefaultCurrency)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"log level", "LOG_LEVEL", "chatty"},
		{"upload size", "MAX_UPLOAD_MB", "0"},
		{"header row", "IMPORT_DEFAULT_HEADER_ROW", "-1"},
		{"currency", "IMPORT_DEFAULT_CURRENCY", "EURO"},
		{"retention", "UPLOAD_RETENTION_DAYS", "-30"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
