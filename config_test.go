package authcore

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "test defaults valid",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "short hs256 secret",
			mutate: func(c *Config) {
				c.JWT.PrivateKey = []byte("short")
			},
		},
		{
			name: "unknown signing method",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "rs256"
			},
		},
		{
			name: "ed25519 missing public key",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "ed25519"
			},
		},
		{
			name: "negative leeway",
			mutate: func(c *Config) {
				c.JWT.Leeway = -time.Second
			},
		},
		{
			name: "verify keys without kid",
			mutate: func(c *Config) {
				c.JWT.VerifyKeys = map[string][]byte{"old": testSecret}
			},
		},
		{
			name: "zero access ttl",
			mutate: func(c *Config) {
				c.JWT.AccessTTL = 0
			},
		},
		{
			name: "refresh ttl not above access ttl",
			mutate: func(c *Config) {
				c.Refresh.TTL = c.JWT.AccessTTL
			},
		},
		{
			name: "negative retention",
			mutate: func(c *Config) {
				c.Refresh.Retention = -time.Minute
			},
		},
		{
			name: "empty redis prefix",
			mutate: func(c *Config) {
				c.Refresh.RedisPrefix = ""
			},
		},
		{
			name: "argon2 memory too low",
			mutate: func(c *Config) {
				c.Password.Memory = 1024
			},
		},
		{
			name: "unknown password algorithm",
			mutate: func(c *Config) {
				c.Password.Algorithm = "scrypt"
			},
		},
		{
			name: "bcrypt with default max length",
			mutate: func(c *Config) {
				c.Password.Algorithm = PasswordAlgorithmBcrypt
			},
		},
		{
			name: "bcrypt with 72 char cap",
			mutate: func(c *Config) {
				c.Password.Algorithm = PasswordAlgorithmBcrypt
				c.Password.BcryptCost = 10
				c.Password.MaxLength = 72
			},
			wantValid: true,
		},
		{
			name: "bcrypt cost out of range",
			mutate: func(c *Config) {
				c.Password.Algorithm = PasswordAlgorithmBcrypt
				c.Password.BcryptCost = 40
				c.Password.MaxLength = 72
			},
		},
		{
			name: "max length below min",
			mutate: func(c *Config) {
				c.Password.MinLength = 10
				c.Password.MaxLength = 9
			},
		},
		{
			name: "audit enabled without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
		},
		{
			name: "throttle without attempts",
			mutate: func(c *Config) {
				c.Security.EnableLoginThrottle = true
				c.Security.MaxLoginAttempts = 0
			},
		},
		{
			name: "ip throttle alone",
			mutate: func(c *Config) {
				c.Security.EnableIPThrottle = true
			},
		},
		{
			name: "display name limit zero",
			mutate: func(c *Config) {
				c.Security.MaxDisplayNameLength = 0
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected invalid config, got nil")
			}
		})
	}
}

func TestConfigProductionMode(t *testing.T) {
	prod := func() Config {
		cfg := DefaultConfig()
		cfg.JWT.PrivateKey = testSecret
		cfg.Security.ProductionMode = true
		cfg.Security.EnableLoginThrottle = true
		return cfg
	}

	cfg := prod()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected production defaults valid, got %v", err)
	}

	tests := map[string]func(*Config){
		"long access ttl":      func(c *Config) { c.JWT.AccessTTL = time.Hour },
		"long refresh ttl":     func(c *Config) { c.Refresh.TTL = 60 * 24 * time.Hour },
		"raw identifiers":      func(c *Config) { c.Refresh.HashIdentifiers = false },
		"no revoke on reuse":   func(c *Config) { c.Security.RevokeAllOnReuse = false },
		"no throttle":          func(c *Config) { c.Security.EnableLoginThrottle = false },
		"weak argon2":          func(c *Config) { c.Password.Memory = 8 * 1024 },
		"short min password":   func(c *Config) { c.Password.MinLength = 6 },
		"cheap bcrypt":         func(c *Config) { c.Password.Algorithm = PasswordAlgorithmBcrypt; c.Password.BcryptCost = 10; c.Password.MaxLength = 72 },
		"single argon2 pass":   func(c *Config) { c.Password.Time = 1 },
		"short argon2 key len": func(c *Config) { c.Password.KeyLength = 16 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := prod()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected production mode to reject config")
			}
		})
	}
}

func TestConfigEd25519Valid(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.JWT.SigningMethod = "ed25519"
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected ed25519 config valid, got %v", err)
	}
}

func TestCloneConfigCopiesKeyMaterial(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.KeyID = "k2"
	cfg.JWT.VerifyKeys = map[string][]byte{"k1": []byte("old-secret-old-secret-old-secret")}

	cloned := cloneConfig(cfg)
	cfg.JWT.PrivateKey[0] = 'X'
	cfg.JWT.VerifyKeys["k1"][0] = 'X'

	if cloned.JWT.PrivateKey[0] == 'X' {
		t.Fatal("private key shares backing array")
	}
	if cloned.JWT.VerifyKeys["k1"][0] == 'X' {
		t.Fatal("verify keys share backing array")
	}
}
