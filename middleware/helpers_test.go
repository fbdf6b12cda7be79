package middleware

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/sqlstore"
)

const testPassword = "middleware-pass-1"

type fixture struct {
	engine     *authcore.Engine
	userToken  string
	adminToken string
}

func newFixture(t *testing.T, conceal bool) fixture {
	t.Helper()
	ctx := context.Background()

	db, err := sqlstore.Open(ctx, sqlstore.SQLite, filepath.Join(t.TempDir(), "mw.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = sqlstore.Migrate(ctx, db, sqlstore.SQLite)
	require.NoError(t, err)

	cfg := authcore.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Security.ConcealForbidden = conceal

	refreshStore, err := sqlstore.NewRefreshStore(db, cfg.RefreshStoreOptions())
	require.NoError(t, err)

	engine, err := authcore.New().
		WithConfig(cfg).
		WithUserStore(sqlstore.NewUserStore(db)).
		WithRefreshStore(refreshStore).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	login := func(email string, role permission.Role) string {
		u, err := engine.Register(ctx, authcore.RegisterInput{Email: email, Password: testPassword})
		require.NoError(t, err)
		if role != permission.RoleUser {
			require.NoError(t, engine.SetRole(ctx, u.UserID, role))
		}
		pair, err := engine.Login(ctx, email, testPassword)
		require.NoError(t, err)
		return pair.AccessToken
	}

	return fixture{
		engine:     engine,
		userToken:  login("user@example.com", permission.RoleUser),
		adminToken: login("admin@example.com", permission.RoleAdmin),
	}
}
