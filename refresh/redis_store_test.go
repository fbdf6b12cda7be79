package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/internal"
)

var t0 = time.Unix(1_700_000_000, 0).UTC()

func newRedisStoreTest(t *testing.T, opts Options) (*RedisStore, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	if opts.TTL == 0 {
		opts.TTL = 24 * time.Hour
	}
	store, err := NewRedisStore(rdb, "ac", opts)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return store, mr, rdb
}

func TestCreateAndRedeemOnce(t *testing.T) {
	store, _, _ := newRedisStoreTest(t, Options{})
	ctx := context.Background()

	issued, err := store.Create(ctx, "u-1", t0, Client{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !internal.ValidOpaqueToken(issued.Token) {
		t.Fatalf("unexpected token shape %q", issued.Token)
	}
	if !issued.Record.ExpiresAt.Equal(t0.Add(24 * time.Hour)) {
		t.Fatalf("expiresAt = %v", issued.Record.ExpiresAt)
	}

	rec, err := store.Redeem(ctx, issued.Token, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	if rec.UserID != "u-1" || !rec.Revoked || rec.ID != issued.Record.ID {
		t.Fatalf("unexpected record %+v", rec)
	}

	again, err := store.Redeem(ctx, issued.Token, t0.Add(2*time.Minute))
	if !errors.Is(err, ErrAlreadyRevoked) {
		t.Fatalf("second redeem: expected ErrAlreadyRevoked, got %v", err)
	}
	if again.UserID != "u-1" {
		t.Fatalf("replay must report the owner, got %+v", again)
	}
}

func TestIdentifiersStoredHashed(t *testing.T) {
	store, mr, _ := newRedisStoreTest(t, Options{})
	issued, err := store.Create(context.Background(), "u-1", t0, Client{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if mr.Exists("{ac}:rt:" + issued.Token) {
		t.Fatal("raw token must not be a key")
	}
	if !mr.Exists("{ac}:rt:" + internal.HashToken(issued.Token)) {
		t.Fatal("expected digest-keyed record")
	}
	if issued.Record.ID != internal.HashToken(issued.Token) {
		t.Fatalf("record id = %q", issued.Record.ID)
	}
}

func TestRawIdentifiersOption(t *testing.T) {
	store, mr, _ := newRedisStoreTest(t, Options{RawIdentifiers: true})
	issued, err := store.Create(context.Background(), "u-1", t0, Client{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !mr.Exists("{ac}:rt:" + issued.Token) {
		t.Fatal("expected raw-keyed record")
	}
}

func TestRedeemExpiryBoundary(t *testing.T) {
	store, _, _ := newRedisStoreTest(t, Options{TTL: time.Hour})
	ctx := context.Background()

	a, err := store.Create(ctx, "u-1", t0, Client{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Redeem(ctx, a.Token, a.Record.ExpiresAt.Add(-time.Millisecond)); err != nil {
		t.Fatalf("redeem just before expiry: %v", err)
	}

	b, err := store.Create(ctx, "u-1", t0, Client{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	rec, err := store.Redeem(ctx, b.Token, b.Record.ExpiresAt)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("redeem at expiry: expected ErrExpired, got %v", err)
	}
	if rec.Revoked {
		t.Fatal("expired redemption must not flip the record")
	}
}

func TestRedeemUnknown(t *testing.T) {
	store, _, _ := newRedisStoreTest(t, Options{})
	for _, tok := range []string{"", "nope", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"} {
		if _, err := store.Redeem(context.Background(), tok, t0); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%q: expected ErrNotFound, got %v", tok, err)
		}
	}
}

func TestConcurrentRedeemSingleWinner(t *testing.T) {
	store, _, _ := newRedisStoreTest(t, Options{})
	ctx := context.Background()
	issued, err := store.Create(ctx, "u-1", t0, Client{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const workers = 16
	var (
		wins     atomic.Int32
		replays  atomic.Int32
		start    = make(chan struct{})
		wg       sync.WaitGroup
		failures = make(chan error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := store.Redeem(ctx, issued.Token, t0.Add(time.Second))
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrAlreadyRevoked):
				replays.Add(1)
			default:
				failures <- err
			}
		}()
	}
	close(start)
	wg.Wait()
	close(failures)

	for err := range failures {
		t.Fatalf("unexpected error: %v", err)
	}
	if wins.Load() != 1 || replays.Load() != workers-1 {
		t.Fatalf("wins=%d replays=%d", wins.Load(), replays.Load())
	}
}

func TestConcurrentRotateSingleWinner(t *testing.T) {
	store, _, _ := newRedisStoreTest(t, Options{})
	ctx := context.Background()
	issued, err := store.Create(ctx, "u-1", t0, Client{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const workers = 16
	var (
		wins atomic.Int32
		wg   sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := store.Rotate(ctx, issued.Token, t0.Add(time.Second), Client{}); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one rotation, got %d", wins.Load())
	}
}

func TestRotateLinksSuccessor(t *testing.T) {
	store, _, _ := newRedisStoreTest(t, Options{TTL: time.Hour})
	ctx := context.Background()
	first, err := store.Create(ctx, "u-1", t0, Client{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	now := t0.Add(10 * time.Minute)
	old, next, err := store.Rotate(ctx, first.Token, now, Client{})
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if old.ReplacedBy != next.Record.ID || !old.Revoked {
		t.Fatalf("old record not linked: %+v next=%s", old, next.Record.ID)
	}
	if next.Record.UserID != "u-1" || !next.Record.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected successor %+v", next.Record)
	}

	stored, err := store.Lookup(ctx, first.Token)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if stored.ReplacedBy != next.Record.ID {
		t.Fatalf("persisted link = %q", stored.ReplacedBy)
	}

	if _, _, err := store.Rotate(ctx, first.Token, now, Client{}); !errors.Is(err, ErrAlreadyRevoked) {
		t.Fatalf("rotate replay: expected ErrAlreadyRevoked, got %v", err)
	}
	if _, err := store.Redeem(ctx, next.Token, now); err != nil {
		t.Fatalf("successor redeem: %v", err)
	}
}

func TestRevokeIdempotent(t *testing.T) {
	store, _, _ := newRedisStoreTest(t, Options{})
	ctx := context.Background()
	issued, err := store.Create(ctx, "u-1", t0, Client{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := store.Revoke(ctx, issued.Token); err != nil {
			t.Fatalf("revoke #%d: %v", i, err)
		}
	}
	if err := store.Revoke(ctx, "unknown"); err != nil {
		t.Fatalf("revoke unknown: %v", err)
	}
	if err := store.Revoke(ctx, ""); err != nil {
		t.Fatalf("revoke empty: %v", err)
	}
	if _, err := store.Redeem(ctx, issued.Token, t0); !errors.Is(err, ErrAlreadyRevoked) {
		t.Fatalf("expected ErrAlreadyRevoked after logout, got %v", err)
	}
}

func TestRevokeAllForUser(t *testing.T) {
	store, _, _ := newRedisStoreTest(t, Options{})
	ctx := context.Background()

	var tokens []string
	for i := 0; i < 3; i++ {
		issued, err := store.Create(ctx, "u-1", t0, Client{})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		tokens = append(tokens, issued.Token)
	}
	other, err := store.Create(ctx, "u-2", t0, Client{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Revoke(ctx, tokens[0]); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	n, err := store.RevokeAllForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 flipped, got %d", n)
	}
	if n, err = store.RevokeAllForUser(ctx, "u-1"); err != nil || n != 0 {
		t.Fatalf("second revoke all: n=%d err=%v", n, err)
	}

	for _, tok := range tokens {
		if _, err := store.Redeem(ctx, tok, t0); !errors.Is(err, ErrAlreadyRevoked) {
			t.Fatalf("expected revoked, got %v", err)
		}
	}
	if _, err := store.Redeem(ctx, other.Token, t0); err != nil {
		t.Fatalf("other user's token must survive: %v", err)
	}

	active, err := store.ActiveCount(ctx, "u-1", t0)
	if err != nil || active != 0 {
		t.Fatalf("active count = %d, %v", active, err)
	}
}

func TestRecordRetentionTTL(t *testing.T) {
	store, mr, _ := newRedisStoreTest(t, Options{TTL: time.Hour, Retention: 30 * time.Minute})
	issued, err := store.Create(context.Background(), "u-1", t0, Client{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ttl := mr.TTL("{ac}:rt:" + issued.Record.ID); ttl != 90*time.Minute {
		t.Fatalf("record ttl = %v", ttl)
	}
	if ttl := mr.TTL("{ac}:rtu:u-1"); ttl != 90*time.Minute {
		t.Fatalf("user index ttl = %v", ttl)
	}
}

func TestCorruptRecord(t *testing.T) {
	store, mr, _ := newRedisStoreTest(t, Options{RawIdentifiers: true})
	mr.HSet("{ac}:rt:bad", "uid", "u-1", "iat", "x", "exp", "y", "rev", "0")

	_, err := store.Redeem(context.Background(), "bad", t0)
	if !errors.Is(err, ErrCorruptRecord) || !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected corrupt sentinel, got %v", err)
	}
}

func TestStoreUnavailable(t *testing.T) {
	store, mr, _ := newRedisStoreTest(t, Options{})
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := store.Create(ctx, "u-1", t0, Client{}); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if err := store.Ping(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ping failure, got %v", err)
	}
}

func TestNewRedisStoreValidation(t *testing.T) {
	if _, err := NewRedisStore(nil, "ac", Options{TTL: time.Hour}); err == nil {
		t.Fatal("expected nil client to fail")
	}
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()
	if _, err := NewRedisStore(rdb, "ac", Options{}); err == nil {
		t.Fatal("expected zero TTL to fail")
	}
}

func TestCustomIdentifierGenerator(t *testing.T) {
	calls := 0
	store, _, _ := newRedisStoreTest(t, Options{
		RawIdentifiers: true,
		NewIdentifier: func() (string, error) {
			calls++
			return "fixed", nil
		},
	})
	ctx := context.Background()
	if _, err := store.Create(ctx, "u-1", t0, Client{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Create(ctx, "u-1", t0, Client{}); err == nil {
		t.Fatal("expected collision on duplicate identifier")
	}
	if calls != 2 {
		t.Fatalf("generator calls = %d", calls)
	}
}

func TestClientMetadataRoundTrips(t *testing.T) {
	store, mr, _ := newRedisStoreTest(t, Options{TTL: time.Hour})
	ctx := context.Background()

	first, err := store.Create(ctx, "u-1", t0, Client{IP: "203.0.113.5", UserAgent: "curl/8.0"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.Record.IP != "203.0.113.5" || first.Record.UserAgent != "curl/8.0" {
		t.Fatalf("issued record missing client: %+v", first.Record)
	}
	if got := mr.HGet("{ac}:rt:"+first.Record.ID, "ua"); got != "curl/8.0" {
		t.Fatalf("stored ua = %q", got)
	}

	old, next, err := store.Rotate(ctx, first.Token, t0.Add(time.Minute), Client{IP: "198.51.100.2", UserAgent: "app/3"})
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if old.IP != "203.0.113.5" || old.UserAgent != "curl/8.0" {
		t.Fatalf("redeemed record lost client: %+v", old)
	}
	stored, err := store.Lookup(ctx, next.Token)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if stored.IP != "198.51.100.2" || stored.UserAgent != "app/3" {
		t.Fatalf("successor client = %q %q", stored.IP, stored.UserAgent)
	}

	replayed, err := store.Redeem(ctx, first.Token, t0.Add(2*time.Minute))
	if !errors.Is(err, ErrAlreadyRevoked) || replayed.UserAgent != "curl/8.0" {
		t.Fatalf("replay = %+v, %v", replayed, err)
	}
}

func TestKeysShareOneHashSlot(t *testing.T) {
	store, mr, _ := newRedisStoreTest(t, Options{})
	ctx := context.Background()

	issued, err := store.Create(ctx, "u-1", t0, Client{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := store.Rotate(ctx, issued.Token, t0.Add(time.Second), Client{}); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	keys := mr.Keys()
	if len(keys) != 3 {
		t.Fatalf("expected two records and one index, got %v", keys)
	}
	for _, k := range keys {
		if len(k) < 5 || k[:5] != "{ac}:" {
			t.Fatalf("key %q lacks the hash tag", k)
		}
	}
}
