package authcore

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder can be used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users        UserStore
	refreshStore refresh.Store
	hasher       PasswordHasher
	auditSink    AuditSink
	logger       *slog.Logger
	clock        func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client used by the login throttle and, unless
// WithRefreshStore is also called, by a [refresh.RedisStore].
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserStore(users UserStore) *Builder {
	b.users = users
	return b
}

// WithRefreshStore overrides the refresh store, for example with a SQL one.
func (b *Builder) WithRefreshStore(store refresh.Store) *Builder {
	b.refreshStore = store
	return b
}

// WithPasswordHasher overrides the hasher derived from Config.Password.
func (b *Builder) WithPasswordHasher(h PasswordHasher) *Builder {
	b.hasher = h
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now, mainly for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.users == nil {
		return nil, errors.New("user store required")
	}
	if b.refreshStore == nil && b.redis == nil {
		return nil, errors.New("refresh store or redis client required")
	}
	if cfg.Security.EnableLoginThrottle && b.redis == nil {
		return nil, errors.New("login throttle requires redis client")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	engine := &Engine{
		config:  cloneConfig(cfg),
		users:   b.users,
		logger:  logger.With("component", "authcore"),
		now:     clock,
		metrics: NewMetrics(cfg.Metrics),
	}

	// -------- TOKEN CODEC --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cloneConfig(cfg).JWT.VerifyKeys,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	// -------- REFRESH STORE --------
	store := b.refreshStore
	if store == nil {
		opts := cfg.RefreshStoreOptions()
		opts.NewIdentifier = jm.IssueRefreshIdentifier
		rs, err := refresh.NewRedisStore(b.redis, cfg.Refresh.RedisPrefix, opts)
		if err != nil {
			return nil, err
		}
		store = rs
	}
	engine.refresh = store

	// -------- LOGIN THROTTLE --------
	if cfg.Security.EnableLoginThrottle {
		limiter, err := rate.New(b.redis, rate.Config{
			Prefix:                cfg.Refresh.RedisPrefix,
			EnableIPThrottle:      cfg.Security.EnableIPThrottle,
			MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
			MaxRegistrations:      cfg.Security.MaxRegistrationsPerIP,
			RegistrationCooldown:  cfg.Security.RegistrationCooldown,
		})
		if err != nil {
			return nil, err
		}
		engine.limiter = limiter
	}

	// -------- PASSWORD HASHER --------
	hasher := b.hasher
	if hasher == nil {
		h, err := newPasswordHasher(cfg.Password)
		if err != nil {
			return nil, err
		}
		hasher = h
	}
	engine.hasher = hasher

	dummy, err := dummyPasswordHash(hasher)
	if err != nil {
		return nil, fmt.Errorf("derive dummy hash: %w", err)
	}
	engine.dummyHash = dummy

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink, engine.logger)
	engine.flows = engine.buildFlows()

	b.built = true

	return engine, nil
}

func newPasswordHasher(cfg PasswordConfig) (PasswordHasher, error) {
	switch cfg.Algorithm {
	case PasswordAlgorithmBcrypt:
		return password.NewBcrypt(cfg.BcryptCost)
	default:
		return password.NewArgon2(password.Config{
			Memory:      cfg.Memory,
			Time:        cfg.Time,
			Parallelism: cfg.Parallelism,
			SaltLength:  cfg.SaltLength,
			KeyLength:   cfg.KeyLength,
		})
	}
}

// dummyPasswordHash hashes a random secret nobody knows. Verifying against it
// costs the same as verifying a real account's hash.
func dummyPasswordHash(h PasswordHasher) (string, error) {
	secret, err := internal.NewOpaqueToken()
	if err != nil {
		return "", err
	}
	return h.Hash(secret)
}
