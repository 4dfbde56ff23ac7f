package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("JWT_SECRET", "access-secret")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret")
}

func TestLoad_defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, 10, cfg.SessionHashCost)
	assert.Equal(t, 5, cfg.RateLimitMax)
	assert.False(t, cfg.TrustProxy)
	assert.True(t, cfg.IsDevelopment())

	t.Setenv("TRUST_PROXY", "true")
	cfg, err = Load()
	require.NoError(t, err)
	assert.True(t, cfg.TrustProxy)
}

func TestLoad_requiresDistinctSecrets(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("JWT_REFRESH_SECRET", "access-secret")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_missingRefreshSecret(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("JWT_REFRESH_SECRET", "")

	_, err := Load()
	assert.ErrorContains(t, err, "JWT_REFRESH_SECRET")
}

func TestLoad_postgresNeedsURL(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestLoad_unknownBackend(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("STORE_BACKEND", "sqlite")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_rateLimitMax(t *testing.T) {
	for _, v := range []string{"0", "-3", "five"} {
		t.Run(v, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv("RATE_LIMIT_MAX", v)

			_, err := Load()
			assert.ErrorContains(t, err, "RATE_LIMIT_MAX")
		})
	}

	setBaseEnv(t)
	t.Setenv("RATE_LIMIT_MAX", "20")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.RateLimitMax)
}

func TestParseLifetime(t *testing.T) {
	d, err := ParseLifetime("7d")
	require.NoError(t, err)
	assert.Equal(t, 168*time.Hour, d)

	d, err = ParseLifetime("15m")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, d)

	for _, bad := range []string{"", "xd", "-5m", "0d", "soon"} {
		_, err := ParseLifetime(bad)
		assert.Error(t, err, "input %q", bad)
	}
}
