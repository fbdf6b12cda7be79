package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/refresh"
)

// runConformance exercises both stores against a migrated database. It is
// shared by the SQLite and Postgres suites.
func runConformance(t *testing.T, db *sql.DB) {
	t.Run("users", func(t *testing.T) { userConformance(t, db) })
	t.Run("refresh", func(t *testing.T) { refreshConformance(t, db) })
}

func userConformance(t *testing.T, db *sql.DB) {
	ctx := context.Background()
	users := NewUserStore(db)

	alice := seedUser(t, db, "alice@example.com")

	got, err := users.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.UserID, got.UserID)
	assert.Equal(t, permission.RoleUser, got.Role)
	assert.True(t, got.Active)
	assert.True(t, got.CreatedAt.Equal(t0))

	dup := alice
	dup.UserID = "other-id"
	require.ErrorIs(t, users.CreateUser(ctx, dup), authcore.ErrDuplicateEmail)

	_, err = users.GetUserByID(ctx, "missing")
	require.ErrorIs(t, err, authcore.ErrUserNotFound)

	later := t0.Add(time.Hour)
	require.NoError(t, users.SetRole(ctx, alice.UserID, permission.RoleAdmin, later))
	require.NoError(t, users.SetActive(ctx, alice.UserID, false, later))
	require.NoError(t, users.UpdateDisplayName(ctx, alice.UserID, "Alice", later))
	require.NoError(t, users.UpdatePasswordHash(ctx, alice.UserID, "new-hash", later))

	got, err = users.GetUserByID(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, permission.RoleAdmin, got.Role)
	assert.False(t, got.Active)
	assert.Equal(t, "Alice", got.DisplayName)
	assert.Equal(t, "new-hash", got.PasswordHash)
	assert.True(t, got.UpdatedAt.Equal(later))

	require.ErrorIs(t, users.SetActive(ctx, "missing", true, later), authcore.ErrUserNotFound)
	require.ErrorIs(t, users.SetRole(ctx, alice.UserID, permission.Role(0), later), authcore.ErrInvalidRole)

	seedUser(t, db, "bob@example.com")
	seedUser(t, db, "carol@example.com")
	page, err := users.ListUsers(ctx, 0, 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)
	rest, err := users.ListUsers(ctx, 2, 10)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

func refreshConformance(t *testing.T, db *sql.DB) {
	ctx := context.Background()
	store, err := NewRefreshStore(db, refresh.Options{TTL: time.Hour, Retention: time.Hour})
	require.NoError(t, err)

	owner := seedUser(t, db, "refresh-owner@example.com")
	bystander := seedUser(t, db, "bystander@example.com")

	t.Run("redeem once", func(t *testing.T) {
		issued, err := store.Create(ctx, owner.UserID, t0, refresh.Client{})
		require.NoError(t, err)
		assert.True(t, internal.ValidOpaqueToken(issued.Token))
		assert.Equal(t, internal.HashToken(issued.Token), issued.Record.ID)

		rec, err := store.Redeem(ctx, issued.Token, t0.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, owner.UserID, rec.UserID)
		assert.True(t, rec.Revoked)

		rec, err = store.Redeem(ctx, issued.Token, t0.Add(time.Minute))
		require.ErrorIs(t, err, refresh.ErrAlreadyRevoked)
		assert.Equal(t, owner.UserID, rec.UserID)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := store.Redeem(ctx, "unknown-token", t0)
		require.ErrorIs(t, err, refresh.ErrNotFound)
		_, err = store.Redeem(ctx, "", t0)
		require.ErrorIs(t, err, refresh.ErrNotFound)
	})

	t.Run("expiry boundary", func(t *testing.T) {
		a, err := store.Create(ctx, owner.UserID, t0, refresh.Client{})
		require.NoError(t, err)
		_, err = store.Redeem(ctx, a.Token, a.Record.ExpiresAt.Add(-time.Millisecond))
		require.NoError(t, err)

		b, err := store.Create(ctx, owner.UserID, t0, refresh.Client{})
		require.NoError(t, err)
		rec, err := store.Redeem(ctx, b.Token, b.Record.ExpiresAt)
		require.ErrorIs(t, err, refresh.ErrExpired)
		assert.False(t, rec.Revoked)
	})

	t.Run("rotate", func(t *testing.T) {
		first, err := store.Create(ctx, owner.UserID, t0, refresh.Client{})
		require.NoError(t, err)

		now := t0.Add(5 * time.Minute)
		old, next, err := store.Rotate(ctx, first.Token, now, refresh.Client{})
		require.NoError(t, err)
		assert.Equal(t, next.Record.ID, old.ReplacedBy)
		assert.Equal(t, owner.UserID, next.Record.UserID)
		assert.True(t, next.Record.ExpiresAt.Equal(now.Add(time.Hour)))

		_, _, err = store.Rotate(ctx, first.Token, now, refresh.Client{})
		require.ErrorIs(t, err, refresh.ErrAlreadyRevoked)

		_, err = store.Redeem(ctx, next.Token, now)
		require.NoError(t, err)
	})

	t.Run("client metadata", func(t *testing.T) {
		first, err := store.Create(ctx, owner.UserID, t0, refresh.Client{IP: "203.0.113.5", UserAgent: "curl/8.0"})
		require.NoError(t, err)
		assert.Equal(t, "203.0.113.5", first.Record.IP)

		old, next, err := store.Rotate(ctx, first.Token, t0.Add(time.Minute), refresh.Client{IP: "198.51.100.2", UserAgent: "app/3"})
		require.NoError(t, err)
		assert.Equal(t, "203.0.113.5", old.IP)
		assert.Equal(t, "curl/8.0", old.UserAgent)

		stored, err := store.Lookup(ctx, next.Token)
		require.NoError(t, err)
		assert.Equal(t, "198.51.100.2", stored.IP)
		assert.Equal(t, "app/3", stored.UserAgent)

		replayed, err := store.Redeem(ctx, first.Token, t0.Add(2*time.Minute))
		require.ErrorIs(t, err, refresh.ErrAlreadyRevoked)
		assert.Equal(t, "curl/8.0", replayed.UserAgent)

		_, err = store.Lookup(ctx, "unknown-token")
		require.ErrorIs(t, err, refresh.ErrNotFound)
	})

	t.Run("concurrent redeem single winner", func(t *testing.T) {
		issued, err := store.Create(ctx, owner.UserID, t0, refresh.Client{})
		require.NoError(t, err)

		const workers = 16
		var (
			wins, replays atomic.Int32
			wg            sync.WaitGroup
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := store.Rotate(ctx, issued.Token, t0.Add(time.Second), refresh.Client{})
				switch {
				case err == nil:
					wins.Add(1)
				case errors.Is(err, refresh.ErrAlreadyRevoked):
					replays.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, wins.Load())
		assert.EqualValues(t, workers-1, replays.Load())
	})

	t.Run("revoke and revoke all", func(t *testing.T) {
		a, err := store.Create(ctx, owner.UserID, t0, refresh.Client{})
		require.NoError(t, err)
		b, err := store.Create(ctx, owner.UserID, t0, refresh.Client{})
		require.NoError(t, err)
		keep, err := store.Create(ctx, bystander.UserID, t0, refresh.Client{})
		require.NoError(t, err)

		require.NoError(t, store.Revoke(ctx, a.Token))
		require.NoError(t, store.Revoke(ctx, a.Token))
		require.NoError(t, store.Revoke(ctx, "unknown"))

		n, err := store.RevokeAllForUser(ctx, owner.UserID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 1)

		n, err = store.RevokeAllForUser(ctx, owner.UserID)
		require.NoError(t, err)
		assert.Zero(t, n)

		_, err = store.Redeem(ctx, b.Token, t0)
		require.ErrorIs(t, err, refresh.ErrAlreadyRevoked)
		_, err = store.Redeem(ctx, keep.Token, t0)
		require.NoError(t, err)
	})

	t.Run("active count", func(t *testing.T) {
		counted := seedUser(t, db, "counted@example.com")
		a, err := store.Create(ctx, counted.UserID, t0, refresh.Client{})
		require.NoError(t, err)
		_, err = store.Create(ctx, counted.UserID, t0, refresh.Client{})
		require.NoError(t, err)

		n, err := store.ActiveCount(ctx, counted.UserID, t0)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		require.NoError(t, store.Revoke(ctx, a.Token))
		n, err = store.ActiveCount(ctx, counted.UserID, t0)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = store.ActiveCount(ctx, counted.UserID, a.Record.ExpiresAt)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("prune", func(t *testing.T) {
		issued, err := store.Create(ctx, bystander.UserID, t0, refresh.Client{})
		require.NoError(t, err)

		n, err := store.PruneExpired(ctx, issued.Record.ExpiresAt)
		require.NoError(t, err)
		assert.Zero(t, n, "retention keeps just-expired records")

		n, err = store.PruneExpired(ctx, issued.Record.ExpiresAt.Add(time.Hour))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))

		_, err = store.Redeem(ctx, issued.Token, t0)
		require.ErrorIs(t, err, refresh.ErrNotFound)
	})
}

func TestSQLiteConformance(t *testing.T) {
	runConformance(t, openSQLite(t))
}

func TestRefreshStoreRequiresExistingUser(t *testing.T) {
	db := openSQLite(t)
	store, err := NewRefreshStore(db, refresh.Options{TTL: time.Hour})
	require.NoError(t, err)

	_, err = store.Create(context.Background(), "ghost", t0, refresh.Client{})
	require.ErrorIs(t, err, refresh.ErrStoreUnavailable)
}
