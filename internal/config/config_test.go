package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.False(t, cfg.Remote())
	assert.Equal(t, "./connectkids.db", cfg.DatabasePath)
	assert.Equal(t, 30*time.Second, cfg.SessionTTL)
	assert.Equal(t, time.Minute, cfg.ListingTTL)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoadParseError(t *testing.T) {
	t.Setenv("CONNECTKIDS_SESSION_TTL", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "parse env:"), err.Error())
}

func TestRemoteRequiresLoginURL(t *testing.T) {
	t.Setenv("CONNECTKIDS_BACKEND_URL", "https://api.example.org")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONNECTKIDS_LOGIN_URL")

	t.Setenv("CONNECTKIDS_LOGIN_URL", "https://login.example.org")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Remote())
}

func TestCSRFKey(t *testing.T) {
	t.Setenv("CONNECTKIDS_CSRF_KEY", "abc")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("CONNECTKIDS_CSRF_KEY", strings.Repeat("ab", 32))
	cfg, err := Load()
	require.NoError(t, err)
	key, err := cfg.CSRFSecret()
	require.NoError(t, err)
	assert.Len(t, key, 32)
}

func TestGeneratedKeysDiffer(t *testing.T) {
	var cfg Config
	a, err := cfg.SessionKey()
	require.NoError(t, err)
	b, err := cfg.SessionKey()
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
