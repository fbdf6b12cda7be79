package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/refresh"
	"golang.org/x/crypto/bcrypt"
)

// Config holds every engine option. It is copied at Build and immutable
// afterwards.
type Config struct {
	JWT      JWTConfig
	Password PasswordConfig
	Refresh  RefreshConfig
	Security SecurityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	// PrivateKey is the HS256 secret or the Ed25519 private key (PEM or raw).
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
	KeyID      string
	// VerifyKeys holds retired keys by kid, accepted for verification only.
	VerifyKeys map[string][]byte
}

/*
====================================
PASSWORD CONFIG
====================================
*/

const (
	PasswordAlgorithmArgon2id = "argon2id"
	PasswordAlgorithmBcrypt   = "bcrypt"
)

type PasswordConfig struct {
	Algorithm string // "argon2id" (default) or "bcrypt"

	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	BcryptCost int

	// MinLength and MaxLength bound the policy in characters.
	MinLength int
	MaxLength int

	UpgradeOnLogin bool
}

/*
====================================
REFRESH CONFIG
====================================
*/

type RefreshConfig struct {
	TTL time.Duration
	// Retention keeps redeemed and expired records around so replays are
	// still detected. Zero means TTL.
	Retention time.Duration
	// HashIdentifiers stores SHA-256 digests instead of raw tokens.
	HashIdentifiers bool
	// RedisPrefix namespaces the Redis store and the login throttle.
	RedisPrefix string
}

/*
====================================
SECURITY CONFIG
====================================
*/

type SecurityConfig struct {
	ProductionMode bool

	// RevokeAllOnReuse revokes every refresh record of a user when one of
	// their redeemed tokens is replayed.
	RevokeAllOnReuse bool
	// ConcealForbidden makes HTTP guards answer 401 instead of 403.
	ConcealForbidden bool

	EnableLoginThrottle   bool
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration

	// MaxRegistrationsPerIP caps Register calls per client IP within
	// RegistrationCooldown. Zero disables it; it needs the login throttle's
	// Redis client.
	MaxRegistrationsPerIP int
	RegistrationCooldown  time.Duration

	MaxDisplayNameLength int
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults minus key material.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: string(jwt.MethodHS256),
		},
		Password: PasswordConfig{
			Algorithm:      PasswordAlgorithmArgon2id,
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			BcryptCost:     12,
			MinLength:      8,
			MaxLength:      128,
			UpgradeOnLogin: true,
		},
		Refresh: RefreshConfig{
			TTL:             7 * 24 * time.Hour,
			HashIdentifiers: true,
			RedisPrefix:     "authcore",
		},
		Security: SecurityConfig{
			RevokeAllOnReuse:      true,
			EnableLoginThrottle:   false,
			EnableIPThrottle:      false,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
			RegistrationCooldown:  time.Hour,
			MaxDisplayNameLength:  255,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// RefreshStoreOptions derives the options a refresh store built outside the
// Builder should use so it agrees with the engine's TTL and identifier mode.
func (c Config) RefreshStoreOptions() refresh.Options {
	return refresh.Options{
		TTL:            c.Refresh.TTL,
		Retention:      c.Refresh.Retention,
		RawIdentifiers: !c.Refresh.HashIdentifiers,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid option.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	switch jwt.SigningMethod(c.JWT.SigningMethod) {
	case jwt.MethodHS256:
		if len(c.JWT.PrivateKey) < jwt.MinSecretBytes {
			return fmt.Errorf("hs256 requires a PrivateKey of at least %d bytes", jwt.MinSecretBytes)
		}
	case jwt.MethodEd25519:
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 {
		return errors.New("JWT Leeway must be >= 0")
	}
	if len(c.JWT.VerifyKeys) > 0 && c.JWT.KeyID == "" {
		return errors.New("JWT VerifyKeys require a KeyID for the signing key")
	}

	// Password
	switch c.Password.Algorithm {
	case PasswordAlgorithmArgon2id:
		if c.Password.Memory < 8*1024 {
			return errors.New("Password Memory must be >= 8192 KB")
		}
		if c.Password.Time < 1 {
			return errors.New("Password Time must be >= 1")
		}
		if c.Password.Parallelism < 1 {
			return errors.New("Password Parallelism must be >= 1")
		}
		if c.Password.SaltLength < 16 {
			return errors.New("Password SaltLength must be >= 16")
		}
		if c.Password.KeyLength < 16 {
			return errors.New("Password KeyLength must be >= 16")
		}
	case PasswordAlgorithmBcrypt:
		if c.Password.BcryptCost < bcrypt.MinCost || c.Password.BcryptCost > bcrypt.MaxCost {
			return fmt.Errorf("Password BcryptCost must be in [%d,%d]", bcrypt.MinCost, bcrypt.MaxCost)
		}
		// Multi-byte input past 72 bytes is still rejected by the hasher.
		if c.Password.MaxLength > password.BcryptMaxPasswordBytes {
			return fmt.Errorf("Password MaxLength must be <= %d with bcrypt", password.BcryptMaxPasswordBytes)
		}
	default:
		return errors.New("Password Algorithm must be argon2id or bcrypt")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("Refresh TTL must exceed JWT AccessTTL")
	}
	if c.Refresh.Retention < 0 {
		return errors.New("Refresh Retention must be >= 0")
	}
	if c.Refresh.RedisPrefix == "" {
		return errors.New("Refresh RedisPrefix must not be empty")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Security
	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginAttempts <= 0 {
			return errors.New("MaxLoginAttempts must be > 0")
		}
		if c.Security.LoginCooldownDuration <= 0 {
			return errors.New("LoginCooldownDuration must be > 0")
		}
	}
	if c.Security.EnableIPThrottle && !c.Security.EnableLoginThrottle {
		return errors.New("EnableIPThrottle requires EnableLoginThrottle")
	}
	if c.Security.MaxRegistrationsPerIP < 0 {
		return errors.New("MaxRegistrationsPerIP must be >= 0")
	}
	if c.Security.MaxRegistrationsPerIP > 0 {
		if !c.Security.EnableLoginThrottle {
			return errors.New("MaxRegistrationsPerIP requires EnableLoginThrottle")
		}
		if c.Security.RegistrationCooldown <= 0 {
			return errors.New("RegistrationCooldown must be > 0")
		}
	}
	if c.Security.MaxDisplayNameLength <= 0 {
		return errors.New("MaxDisplayNameLength must be > 0")
	}

	if c.Security.ProductionMode {
		if c.JWT.AccessTTL > 15*time.Minute {
			return errors.New("ProductionMode requires JWT AccessTTL <= 15m")
		}
		if c.Refresh.TTL > 30*24*time.Hour {
			return errors.New("ProductionMode requires Refresh TTL <= 30d")
		}
		if !c.Refresh.HashIdentifiers {
			return errors.New("ProductionMode requires Refresh HashIdentifiers")
		}
		if !c.Security.RevokeAllOnReuse {
			return errors.New("ProductionMode requires RevokeAllOnReuse")
		}
		if !c.Security.EnableLoginThrottle {
			return errors.New("ProductionMode requires EnableLoginThrottle")
		}
		if c.Password.MinLength < 8 {
			return errors.New("ProductionMode requires Password MinLength >= 8")
		}
		if c.Password.Algorithm == PasswordAlgorithmArgon2id {
			if c.Password.Memory < 64*1024 {
				return errors.New("ProductionMode requires Password Memory >= 65536 KB")
			}
			if c.Password.Time < 2 {
				return errors.New("ProductionMode requires Password Time >= 2")
			}
			if c.Password.KeyLength < 32 {
				return errors.New("ProductionMode requires Password KeyLength >= 32")
			}
		}
		if c.Password.Algorithm == PasswordAlgorithmBcrypt && c.Password.BcryptCost < 12 {
			return errors.New("ProductionMode requires Password BcryptCost >= 12")
		}
	}

	return nil
}
