package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/redis/go-redis/v9"
)

// Config holds login throttle tuning parameters.
type Config struct {
	// Prefix namespaces every key; empty means "authcore".
	Prefix           string
	EnableIPThrottle bool
	MaxLoginAttempts int
	// LoginCooldownDuration is the fixed window length.
	LoginCooldownDuration time.Duration

	// MaxRegistrations caps account creations per client IP and window.
	// Zero disables the registration throttle.
	MaxRegistrations     int
	RegistrationCooldown time.Duration
}

// Limiter throttles failed logins per email and, optionally, per client IP
// using fixed-window Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// INCR and the first-hit PEXPIRE run as one script so a crash between them
// cannot leave a counter without a TTL.
var incrementScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) (*Limiter, error) {
	if redisClient == nil {
		return nil, errors.New("rate: redis client is nil")
	}
	if cfg.MaxLoginAttempts <= 0 {
		return nil, errors.New("rate: MaxLoginAttempts must be > 0")
	}
	if cfg.LoginCooldownDuration < time.Millisecond {
		return nil, errors.New("rate: LoginCooldownDuration must be >= 1ms")
	}
	if cfg.MaxRegistrations < 0 {
		return nil, errors.New("rate: MaxRegistrations must be >= 0")
	}
	if cfg.MaxRegistrations > 0 && cfg.RegistrationCooldown < time.Millisecond {
		return nil, errors.New("rate: RegistrationCooldown must be >= 1ms")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "authcore"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}, nil
}

// CheckLogin returns ErrRateLimited when the email or IP has exhausted its
// budget for the current window.
func (l *Limiter) CheckLogin(ctx context.Context, email, ip string) error {
	if err := l.checkCounter(ctx, l.loginUserKey(email)); err != nil {
		return err
	}

	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, l.loginIPKey(ip)); err != nil {
			return err
		}
	}

	return nil
}

// IncrementLogin records a failed attempt. It returns ErrRateLimited when the
// attempt pushed a counter over the budget.
func (l *Limiter) IncrementLogin(ctx context.Context, email, ip string) error {
	count, err := l.incrementWithTTL(ctx, l.loginUserKey(email))
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, l.loginIPKey(ip))
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxLoginAttempts) {
			return ErrRateLimited
		}
	}

	return nil
}

// ResetLogin clears the per-email counter after a successful login. The IP
// counter is left alone so one valid account cannot launder a sprayed IP.
func (l *Limiter) ResetLogin(ctx context.Context, email string) error {
	if err := l.redis.Del(ctx, l.loginUserKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// LoginAttempts returns the failure count for email in the current window.
func (l *Limiter) LoginAttempts(ctx context.Context, email string) (int, error) {
	count, err := l.redis.Get(ctx, l.loginUserKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// EnforceRegister counts one registration attempt from ip and returns
// ErrRateLimited once the window budget is spent. Requests without an IP are
// not throttled.
func (l *Limiter) EnforceRegister(ctx context.Context, ip string) error {
	if l.config.MaxRegistrations == 0 || ip == "" {
		return nil
	}
	count, err := l.increment(ctx, l.registerIPKey(ip), l.config.RegistrationCooldown)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxRegistrations) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) loginUserKey(email string) string {
	return l.config.Prefix + ":al:" + internal.HashToken(email)
}

func (l *Limiter) loginIPKey(ip string) string {
	return l.config.Prefix + ":ali:" + ip
}

func (l *Limiter) registerIPKey(ip string) string {
	return l.config.Prefix + ":reg:" + ip
}

func (l *Limiter) checkCounter(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	return l.increment(ctx, key, l.config.LoginCooldownDuration)
}

func (l *Limiter) increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := incrementScript.Run(ctx, l.redis, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}
