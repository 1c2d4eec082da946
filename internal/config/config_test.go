package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	t.Setenv("API_BASE", "https://api.example.com")
	t.Setenv("ADMIN_PHONE", "254700000001")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://api.example.com", cfg.Upstream.BaseURL)
	assert.Equal(t, 3, cfg.Upstream.Retries)
	assert.Equal(t, 15*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestNewRequiresAPIBase(t *testing.T) {
	t.Setenv("API_BASE", "")
	t.Setenv("ADMIN_PHONE", "254700000001")

	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API_BASE")
}

func TestNewRequiresAdminPhone(t *testing.T) {
	t.Setenv("API_BASE", "https://api.example.com")
	t.Setenv("ADMIN_PHONE", "")

	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADMIN_PHONE")
}

func TestNewOverrides(t *testing.T) {
	t.Setenv("API_BASE", "https://api.example.com")
	t.Setenv("ADMIN_PHONE", "254700000001")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("API_RETRIES", "5")
	t.Setenv("API_TIMEOUT_MS", "2000")
	t.Setenv("REDIS_DB", "3")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Upstream.Retries)
	assert.Equal(t, 2*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 3, cfg.Redis.DB)
}

func TestNewRejectsBadPort(t *testing.T) {
	t.Setenv("API_BASE", "https://api.example.com")
	t.Setenv("ADMIN_PHONE", "254700000001")
	t.Setenv("SERVER_PORT", "not-a-port")

	_, err := New()
	assert.Error(t, err)
}
