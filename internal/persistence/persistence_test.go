package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/hit-counter/internal/config"
)

func TestPoolConfigAppliesSizing(t *testing.T) {
	cfg := config.PostgresConfig{
		DSN:            "postgres://hits@localhost:5432/hits",
		MaxConns:       4,
		MinConns:       1,
		ConnMaxIdleSec: 15,
		ConnMaxLifeSec: 60,
	}

	poolCfg, err := PoolConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, int32(4), poolCfg.MaxConns)
	assert.Equal(t, int32(1), poolCfg.MinConns)
	assert.Equal(t, 15*time.Second, poolCfg.MaxConnIdleTime)
	assert.Equal(t, time.Minute, poolCfg.MaxConnLifetime)
	assert.Equal(t, "localhost", poolCfg.ConnConfig.Host)
	assert.Equal(t, "hits", poolCfg.ConnConfig.Database)
}

func TestPoolConfigRejectsGarbage(t *testing.T) {
	_, err := PoolConfig(config.PostgresConfig{DSN: "postgres://%zz"})
	assert.Error(t, err)
}

func TestNewPostgresRequiresDSN(t *testing.T) {
	_, err := NewPostgres(context.Background(), config.PostgresConfig{}, zap.NewNop())
	assert.ErrorIs(t, err, config.ErrMissingDSN)
}

func TestNilPostgresPing(t *testing.T) {
	var pg *Postgres
	assert.Error(t, pg.Ping(context.Background()))
	assert.Nil(t, pg.PoolHandle())
	pg.Close()
}

func TestMigrationNames(t *testing.T) {
	names, err := MigrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "0001_create_hits.sql", names[0])
}

func TestRunMigrationsWithoutPool(t *testing.T) {
	assert.NoError(t, RunMigrations(context.Background(), nil, zap.NewNop()))
}

func TestNewRedisDisabled(t *testing.T) {
	r := NewRedis(config.RedisConfig{}, zap.NewNop())
	assert.Nil(t, r)
	assert.Error(t, r.Ping(context.Background()))
	r.Close()
}

func TestNewRedisConnects(t *testing.T) {
	mr := miniredis.RunT(t)

	r := NewRedis(config.RedisConfig{Addr: mr.Addr()}, zap.NewNop())
	require.NotNil(t, r)
	defer r.Close()

	assert.NoError(t, r.Ping(context.Background()))
}
