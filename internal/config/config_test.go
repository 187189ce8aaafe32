package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresPostgresDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("JWT_SECRET", "secret")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_DSN")
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/marketplace")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/marketplace")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("MARK_READ_DELAY", "")
	t.Setenv("HTTP_PORT", "")
	t.Setenv("POSTGRES_MAX_CONNS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
	assert.Equal(t, time.Second, cfg.MarkReadDelay)
	assert.Equal(t, "marketplace.notifications", cfg.NotificationExchange)
	assert.Equal(t, int32(10), cfg.PostgresMaxConns)
}

func TestLoad_PoolSizeRange(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/marketplace")
	t.Setenv("JWT_SECRET", "secret")

	for _, raw := range []string{"0", "-3", "2147483648", "4294967297"} {
		t.Run(raw, func(t *testing.T) {
			t.Setenv("POSTGRES_MAX_CONNS", raw)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "POSTGRES_MAX_CONNS")
		})
	}

	t.Setenv("POSTGRES_MAX_CONNS", "2147483647")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int32(2147483647), cfg.PostgresMaxConns)
}

func TestLoad_RedisURLAndDurations(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/marketplace")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("REDIS_URL", "redis://alice:pw@cache:6380")
	t.Setenv("LOCK_TTL", "3")
	t.Setenv("MARK_READ_DELAY", "250ms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", cfg.RedisAddr)
	assert.Equal(t, "alice", cfg.RedisUsername)
	assert.Equal(t, "pw", cfg.RedisPassword)
	assert.Equal(t, 3*time.Second, cfg.LockTTL)
	assert.Equal(t, 250*time.Millisecond, cfg.MarkReadDelay)
}
