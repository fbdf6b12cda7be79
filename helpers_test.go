package authcore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/permission"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "correct-horse-42"

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

// testConfig keeps argon2 cheap so tests stay fast.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = append([]byte(nil), testSecret...)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.KeyLength = 16
	return cfg
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testHarness struct {
	engine *Engine
	users  *memUserStore
	clock  *testClock
	mr     *miniredis.Miniredis
	rdb    *redis.Client
}

func newHarness(t testing.TB, mutate func(*Config), opts ...func(*Builder)) *testHarness {
	t.Helper()

	mr, rdb := newTestRedis(t)
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	h := &testHarness{
		users: newMemUserStore(),
		clock: newTestClock(),
		mr:    mr,
		rdb:   rdb,
	}
	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(h.users).
		WithClock(h.clock.Now)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	h.engine = engine
	return h
}

func (h *testHarness) register(t *testing.T, email string) UserRecord {
	t.Helper()
	u, err := h.engine.Register(context.Background(), RegisterInput{Email: email, Password: testPassword})
	if err != nil {
		t.Fatalf("Register(%s) failed: %v", email, err)
	}
	return u
}

func (h *testHarness) login(t *testing.T, email string) TokenPair {
	t.Helper()
	pair, err := h.engine.Login(context.Background(), email, testPassword)
	if err != nil {
		t.Fatalf("Login(%s) failed: %v", email, err)
	}
	return pair
}

// memUserStore is an in-memory UserStore with call counters.
type memUserStore struct {
	mu      sync.Mutex
	byID    map[string]UserRecord
	byEmail map[string]string

	calls   int
	failAll error
}

func newMemUserStore() *memUserStore {
	return &memUserStore{
		byID:    map[string]UserRecord{},
		byEmail: map[string]string{},
	}
}

func (s *memUserStore) hit() error {
	s.calls++
	return s.failAll
}

func (s *memUserStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *memUserStore) CreateUser(_ context.Context, u UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit(); err != nil {
		return err
	}
	key := strings.ToLower(u.Email)
	if _, ok := s.byEmail[key]; ok {
		return ErrDuplicateEmail
	}
	s.byID[u.UserID] = u
	s.byEmail[key] = u.UserID
	return nil
}

func (s *memUserStore) GetUserByEmail(_ context.Context, email string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit(); err != nil {
		return UserRecord{}, err
	}
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *memUserStore) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit(); err != nil {
		return UserRecord{}, err
	}
	u, ok := s.byID[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func (s *memUserStore) ListUsers(_ context.Context, offset, limit int) ([]UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit(); err != nil {
		return nil, err
	}
	all := make([]UserRecord, 0, len(s.byID))
	for _, u := range s.byID {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].Email < all[j].Email
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	if offset >= len(all) {
		return []UserRecord{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *memUserStore) update(userID string, now time.Time, fn func(*UserRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit(); err != nil {
		return err
	}
	u, ok := s.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	fn(&u)
	u.UpdatedAt = now
	s.byID[userID] = u
	return nil
}

func (s *memUserStore) UpdatePasswordHash(_ context.Context, userID, hash string, now time.Time) error {
	return s.update(userID, now, func(u *UserRecord) { u.PasswordHash = hash })
}

func (s *memUserStore) UpdateDisplayName(_ context.Context, userID, name string, now time.Time) error {
	return s.update(userID, now, func(u *UserRecord) { u.DisplayName = name })
}

func (s *memUserStore) SetActive(_ context.Context, userID string, active bool, now time.Time) error {
	return s.update(userID, now, func(u *UserRecord) { u.Active = active })
}

func (s *memUserStore) SetRole(_ context.Context, userID string, role permission.Role, now time.Time) error {
	return s.update(userID, now, func(u *UserRecord) { u.Role = role })
}

func (s *memUserStore) get(userID string) UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[userID]
}
