package authcore

import (
	"log/slog"
	"time"
)

// SecurityReport summarises the effective security posture of an Engine.
type SecurityReport struct {
	ProductionMode    bool
	SigningAlgorithm  string
	KeyRotation       bool
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	PasswordAlgorithm string
	Argon2            PasswordConfigReport
	BcryptCost        int

	HashedRefreshIdentifiers bool
	RevokeAllOnReuse         bool
	LoginThrottle            bool
	IPThrottle               bool
	AuditEnabled             bool
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	r := SecurityReport{
		ProductionMode:    e.config.Security.ProductionMode,
		SigningAlgorithm:  e.config.JWT.SigningMethod,
		KeyRotation:       len(e.config.JWT.VerifyKeys) > 0,
		AccessTTL:         e.config.JWT.AccessTTL,
		RefreshTTL:        e.config.Refresh.TTL,
		PasswordAlgorithm: e.config.Password.Algorithm,

		HashedRefreshIdentifiers: e.config.Refresh.HashIdentifiers,
		RevokeAllOnReuse:         e.config.Security.RevokeAllOnReuse,
		LoginThrottle:            e.limiter != nil,
		IPThrottle:               e.limiter != nil && e.config.Security.EnableIPThrottle,
		AuditEnabled:             e.audit != nil,
	}
	if r.PasswordAlgorithm == PasswordAlgorithmBcrypt {
		r.BcryptCost = e.config.Password.BcryptCost
	} else {
		r.Argon2 = PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		}
	}
	return r
}

// LogValue renders the report as one structured log group.
func (r SecurityReport) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Bool("production_mode", r.ProductionMode),
		slog.String("signing_algorithm", r.SigningAlgorithm),
		slog.Bool("key_rotation", r.KeyRotation),
		slog.Duration("access_ttl", r.AccessTTL),
		slog.Duration("refresh_ttl", r.RefreshTTL),
		slog.String("password_algorithm", r.PasswordAlgorithm),
		slog.Bool("hashed_refresh_ids", r.HashedRefreshIdentifiers),
		slog.Bool("revoke_all_on_reuse", r.RevokeAllOnReuse),
		slog.Bool("login_throttle", r.LoginThrottle),
		slog.Bool("ip_throttle", r.IPThrottle),
		slog.Bool("audit", r.AuditEnabled),
	}
	if r.PasswordAlgorithm == PasswordAlgorithmBcrypt {
		attrs = append(attrs, slog.Int("bcrypt_cost", r.BcryptCost))
	} else {
		attrs = append(attrs,
			slog.Any("argon2_memory_kb", r.Argon2.Memory),
			slog.Any("argon2_time", r.Argon2.Time),
		)
	}
	return slog.GroupValue(attrs...)
}
