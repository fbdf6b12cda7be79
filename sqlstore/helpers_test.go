package sqlstore

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/permission"
)

var t0 = time.Unix(1_700_000_000, 0).UTC()

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, SQLite, filepath.Join(t.TempDir(), "authcore.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = Migrate(ctx, db, SQLite)
	require.NoError(t, err)
	return db
}

func seedUser(t *testing.T, db DBTX, email string) authcore.UserRecord {
	t.Helper()
	u := authcore.UserRecord{
		UserID:       uuid.NewString(),
		Email:        email,
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		Role:         permission.RoleUser,
		Active:       true,
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}
	require.NoError(t, NewUserStore(db).CreateUser(context.Background(), u))
	return u
}
