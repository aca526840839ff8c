package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.AuthzCacheTTL)
	assert.Equal(t, "odyssey:authz:permissions", cfg.AuthzCacheKey)
	assert.Equal(t, "authz.flush", cfg.AuthzFlushChannel)
	assert.Equal(t, "admin", cfg.AuthzAdminRole)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTHZ_CACHE_TTL", "90s")
	t.Setenv("AUTHZ_REFRESH_CRON", "*/15 * * * *")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.AuthzCacheTTL)
	assert.Equal(t, "*/15 * * * *", cfg.AuthzRefreshCron)
	assert.True(t, cfg.IsProduction())
}

func TestConfigValidateRejectsNonPositiveTTL(t *testing.T) {
	t.Setenv("AUTHZ_CACHE_TTL", "0s")
	_, err := LoadConfig()
	assert.Error(t, err)

	cfg := &Config{AuthzCacheKey: "k", AuthzCacheTTL: time.Minute, SessionTTL: time.Minute}
	assert.Error(t, cfg.Validate())
}
