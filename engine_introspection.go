package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal/flows"
)

// ErrIntrospectionUnsupported is returned when the configured refresh store
// cannot answer an introspection query.
var ErrIntrospectionUnsupported = errors.New("introspection not supported by refresh store")

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	StoreAvailable bool
	StoreLatency   time.Duration
}

type activeCounter interface {
	ActiveCount(ctx context.Context, userID string, now time.Time) (int, error)
}

// ActiveRefreshTokenCount returns how many refresh tokens userID could still
// redeem right now.
func (e *Engine) ActiveRefreshTokenCount(ctx context.Context, userID string) (int, error) {
	if e == nil || e.refresh == nil {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, ErrUserNotFound
	}
	counter, ok := e.refresh.(activeCounter)
	if !ok {
		return 0, ErrIntrospectionUnsupported
	}
	n, err := counter.ActiveCount(ctx, userID, e.now())
	if err != nil {
		return 0, fmt.Errorf("active refresh count: %w", err)
	}
	return n, nil
}

// Health pings the refresh store and reports the round trip.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.refresh == nil {
		return HealthStatus{}
	}

	start := time.Now()
	err := e.Ping(ctx)
	return HealthStatus{
		StoreAvailable: err == nil,
		StoreLatency:   time.Since(start),
	}
}

// GetLoginAttempts returns the failed-login counter for email in the current
// throttle window. It is zero when throttling is disabled.
func (e *Engine) GetLoginAttempts(ctx context.Context, email string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	email = flows.CanonicalEmail(email)
	if e.limiter == nil || email == "" {
		return 0, nil
	}
	return e.limiter.LoginAttempts(ctx, email)
}
