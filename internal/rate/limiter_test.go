package rate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiterTest(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	l, err := New(rdb, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return l, mr
}

func TestLoginThrottleBlocksAfterBudget(t *testing.T) {
	l, _ := newLimiterTest(t, Config{MaxLoginAttempts: 3, LoginCooldownDuration: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.CheckLogin(ctx, "a@example.com", ""); err != nil {
			t.Fatalf("attempt %d: unexpected check error: %v", i, err)
		}
		if err := l.IncrementLogin(ctx, "a@example.com", ""); err != nil {
			t.Fatalf("attempt %d: unexpected increment error: %v", i, err)
		}
	}

	if err := l.CheckLogin(ctx, "a@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.CheckLogin(ctx, "b@example.com", ""); err != nil {
		t.Fatalf("other email must not be throttled: %v", err)
	}
}

func TestLoginThrottleWindowExpires(t *testing.T) {
	l, mr := newLimiterTest(t, Config{MaxLoginAttempts: 1, LoginCooldownDuration: time.Minute})
	ctx := context.Background()

	_ = l.IncrementLogin(ctx, "a@example.com", "")
	if err := l.CheckLogin(ctx, "a@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	mr.FastForward(time.Minute + time.Second)

	if err := l.CheckLogin(ctx, "a@example.com", ""); err != nil {
		t.Fatalf("expected window reset, got %v", err)
	}
}

func TestLoginThrottleFixedWindowTTLSetOnce(t *testing.T) {
	l, mr := newLimiterTest(t, Config{Prefix: "x", MaxLoginAttempts: 10, LoginCooldownDuration: time.Minute})
	ctx := context.Background()

	_ = l.IncrementLogin(ctx, "a@example.com", "")
	mr.FastForward(30 * time.Second)
	_ = l.IncrementLogin(ctx, "a@example.com", "")

	key := l.loginUserKey("a@example.com")
	if !strings.HasPrefix(key, "x:al:") {
		t.Fatalf("unexpected key layout %q", key)
	}
	if strings.Contains(key, "example.com") {
		t.Fatalf("email must not appear in key: %q", key)
	}
	if ttl := mr.TTL(key); ttl > 30*time.Second {
		t.Fatalf("second hit must not extend the window, ttl=%v", ttl)
	}
}

func TestLoginThrottleByIP(t *testing.T) {
	l, _ := newLimiterTest(t, Config{EnableIPThrottle: true, MaxLoginAttempts: 2, LoginCooldownDuration: time.Minute})
	ctx := context.Background()

	_ = l.IncrementLogin(ctx, "a@example.com", "10.0.0.1")
	_ = l.IncrementLogin(ctx, "b@example.com", "10.0.0.1")

	if err := l.CheckLogin(ctx, "c@example.com", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP throttle, got %v", err)
	}
	if err := l.CheckLogin(ctx, "c@example.com", "10.0.0.2"); err != nil {
		t.Fatalf("other IP must pass: %v", err)
	}
}

func TestResetLoginClearsEmailCounter(t *testing.T) {
	l, _ := newLimiterTest(t, Config{MaxLoginAttempts: 5, LoginCooldownDuration: time.Minute})
	ctx := context.Background()

	_ = l.IncrementLogin(ctx, "a@example.com", "")
	_ = l.IncrementLogin(ctx, "a@example.com", "")
	if n, _ := l.LoginAttempts(ctx, "a@example.com"); n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}

	if err := l.ResetLogin(ctx, "a@example.com"); err != nil {
		t.Fatalf("ResetLogin failed: %v", err)
	}
	if n, _ := l.LoginAttempts(ctx, "a@example.com"); n != 0 {
		t.Fatalf("expected 0 attempts after reset, got %d", n)
	}
}

func TestLimiterRedisDown(t *testing.T) {
	l, mr := newLimiterTest(t, Config{MaxLoginAttempts: 5, LoginCooldownDuration: time.Minute})
	mr.Close()

	if err := l.CheckLogin(context.Background(), "a@example.com", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	if _, err := New(nil, Config{MaxLoginAttempts: 1, LoginCooldownDuration: time.Second}); err == nil {
		t.Fatal("expected nil client error")
	}
	if _, err := New(rdb, Config{LoginCooldownDuration: time.Second}); err == nil {
		t.Fatal("expected MaxLoginAttempts error")
	}
	if _, err := New(rdb, Config{MaxLoginAttempts: 1}); err == nil {
		t.Fatal("expected cooldown error")
	}
}

func TestRegisterThrottlePerIP(t *testing.T) {
	l, mr := newLimiterTest(t, Config{
		MaxLoginAttempts:      5,
		LoginCooldownDuration: time.Minute,
		MaxRegistrations:      2,
		RegistrationCooldown:  time.Hour,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.EnforceRegister(ctx, "203.0.113.9"); err != nil {
			t.Fatalf("attempt %d: unexpected error %v", i+1, err)
		}
	}
	if err := l.EnforceRegister(ctx, "203.0.113.9"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.EnforceRegister(ctx, "198.51.100.1"); err != nil {
		t.Fatalf("other IP should not be throttled: %v", err)
	}
	if err := l.EnforceRegister(ctx, ""); err != nil {
		t.Fatalf("empty IP should not be throttled: %v", err)
	}

	mr.FastForward(time.Hour)
	if err := l.EnforceRegister(ctx, "203.0.113.9"); err != nil {
		t.Fatalf("expected fresh window, got %v", err)
	}
}

func TestRegisterThrottleDisabledByDefault(t *testing.T) {
	l, _ := newLimiterTest(t, Config{MaxLoginAttempts: 1, LoginCooldownDuration: time.Minute})
	for i := 0; i < 10; i++ {
		if err := l.EnforceRegister(context.Background(), "203.0.113.9"); err != nil {
			t.Fatalf("expected no registration throttle, got %v", err)
		}
	}
}
