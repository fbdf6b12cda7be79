//go:build integration

package test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/sqlstore"
)

const testPassword = "integration-pass-1"

// redisMode describes which Redis backend a suite runs against.
type redisMode struct {
	name  string
	setup func(t *testing.T) redis.UniversalClient
}

// redisModes returns the Redis backends to test. miniredis is always
// available; REDIS_ADDR adds a standalone server.
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{{
		name: "miniredis",
		setup: func(t *testing.T) redis.UniversalClient {
			t.Helper()
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return rdb
		},
	}}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				pingOrSkip(t, rdb, addr)
				rdb.FlushDB(context.Background())
				t.Cleanup(func() {
					rdb.FlushDB(context.Background())
					_ = rdb.Close()
				})
				return rdb
			},
		})
	}

	return modes
}

func pingOrSkip(t *testing.T, rdb redis.UniversalClient, addr string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("cannot connect to Redis at %s: %v", addr, err)
	}
}

// newEngine builds an engine with SQLite accounts and the Redis refresh
// store and login throttle on rdb.
func newEngine(t *testing.T, rdb redis.UniversalClient, mutate func(*authcore.Config)) *authcore.Engine {
	t.Helper()
	ctx := context.Background()

	db, err := sqlstore.Open(ctx, sqlstore.SQLite, filepath.Join(t.TempDir(), "it.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = sqlstore.Migrate(ctx, db, sqlstore.SQLite)
	require.NoError(t, err)

	cfg := authcore.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("integration-secret-integration-secret")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Security.EnableLoginThrottle = true
	// unique per test so a shared real Redis does not leak state
	cfg.Refresh.RedisPrefix = "it-" + strings.ReplaceAll(t.Name(), "/", "-")
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(sqlstore.NewUserStore(db)).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}
