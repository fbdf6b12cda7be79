package appconfig

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/sqlstore"
)

const envPrefix = "AUTHD_"

// Config is the root configuration of authd.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Audit    AuditConfig    `yaml:"audit"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// TrustProxy makes the router take the client IP from X-Forwarded-For.
	TrustProxy bool `yaml:"trust_proxy"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // postgres or sqlite
	DSN    string `yaml:"dsn"`
	// PruneInterval runs refresh housekeeping periodically when positive.
	PruneInterval time.Duration `yaml:"prune_interval"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type AuthConfig struct {
	// RefreshStore selects where refresh tokens live: redis or sql.
	RefreshStore     string        `yaml:"refresh_store"`
	JWTSecret        string        `yaml:"jwt_secret"`
	Issuer           string        `yaml:"issuer"`
	Audience         string        `yaml:"audience"`
	AccessTTL        time.Duration `yaml:"access_ttl"`
	RefreshTTL       time.Duration `yaml:"refresh_ttl"`
	RefreshRetention time.Duration `yaml:"refresh_retention"`

	PasswordAlgorithm string `yaml:"password_algorithm"`
	Argon2MemoryKB    uint32 `yaml:"argon2_memory_kb"`
	Argon2Time        uint32 `yaml:"argon2_time"`
	BcryptCost        int    `yaml:"bcrypt_cost"`
	PasswordMinLength int    `yaml:"password_min_length"`

	ProductionMode        bool          `yaml:"production_mode"`
	RevokeAllOnReuse      bool          `yaml:"revoke_all_on_reuse"`
	ConcealForbidden      bool          `yaml:"conceal_forbidden"`
	LoginThrottle         bool          `yaml:"login_throttle"`
	IPThrottle            bool          `yaml:"ip_throttle"`
	MaxLoginAttempts      int           `yaml:"max_login_attempts"`
	LoginCooldown         time.Duration `yaml:"login_cooldown"`
	MaxRegistrationsPerIP int           `yaml:"max_registrations_per_ip"`
}

type AuditConfig struct {
	Enabled    bool       `yaml:"enabled"`
	Sink       string     `yaml:"sink"` // log or mqtt
	BufferSize int        `yaml:"buffer_size"`
	DropIfFull bool       `yaml:"drop_if_full"`
	MQTT       MQTTConfig `yaml:"mqtt"`
}

type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Latency bool `yaml:"latency"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	engine := authcore.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: string(sqlstore.SQLite),
			DSN:    "authd.db",
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: engine.Refresh.RedisPrefix,
		},
		Auth: AuthConfig{
			RefreshStore:      "redis",
			AccessTTL:         engine.JWT.AccessTTL,
			RefreshTTL:        engine.Refresh.TTL,
			PasswordAlgorithm: engine.Password.Algorithm,
			Argon2MemoryKB:    engine.Password.Memory,
			Argon2Time:        engine.Password.Time,
			BcryptCost:        engine.Password.BcryptCost,
			PasswordMinLength: engine.Password.MinLength,
			RevokeAllOnReuse:  true,
			LoginThrottle:     true,
			MaxLoginAttempts:  engine.Security.MaxLoginAttempts,
			LoginCooldown:     engine.Security.LoginCooldownDuration,
		},
		Audit: AuditConfig{
			Sink:       "log",
			BufferSize: engine.Audit.BufferSize,
			DropIfFull: true,
			MQTT: MQTTConfig{
				ClientID: "authd-audit",
				QoS:      1,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load builds the configuration from path (optional) and envFile
// (optional, ignored when missing) and validates it.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	str := map[string]*string{
		"SERVER_ADDR":        &cfg.Server.Addr,
		"DATABASE_DRIVER":    &cfg.Database.Driver,
		"DATABASE_DSN":       &cfg.Database.DSN,
		"REDIS_ADDR":         &cfg.Redis.Addr,
		"REDIS_PASSWORD":     &cfg.Redis.Password,
		"REDIS_PREFIX":       &cfg.Redis.Prefix,
		"REFRESH_STORE":      &cfg.Auth.RefreshStore,
		"JWT_SECRET":         &cfg.Auth.JWTSecret,
		"JWT_ISSUER":         &cfg.Auth.Issuer,
		"JWT_AUDIENCE":       &cfg.Auth.Audience,
		"PASSWORD_ALGORITHM": &cfg.Auth.PasswordAlgorithm,
		"AUDIT_SINK":         &cfg.Audit.Sink,
		"MQTT_BROKER":        &cfg.Audit.MQTT.Broker,
		"MQTT_USERNAME":      &cfg.Audit.MQTT.Username,
		"MQTT_PASSWORD":      &cfg.Audit.MQTT.Password,
		"LOG_LEVEL":          &cfg.Logging.Level,
		"LOG_FORMAT":         &cfg.Logging.Format,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"ACCESS_TTL":     &cfg.Auth.AccessTTL,
		"REFRESH_TTL":    &cfg.Auth.RefreshTTL,
		"PRUNE_INTERVAL": &cfg.Database.PruneInterval,
	}
	for key, dst := range durations {
		v, ok := os.LookupEnv(envPrefix + key)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = d
	}

	bools := map[string]*bool{
		"PRODUCTION_MODE": &cfg.Auth.ProductionMode,
		"LOGIN_THROTTLE":  &cfg.Auth.LoginThrottle,
		"AUDIT_ENABLED":   &cfg.Audit.Enabled,
		"METRICS_ENABLED": &cfg.Metrics.Enabled,
		"TRUST_PROXY":     &cfg.Server.TrustProxy,
	}
	for key, dst := range bools {
		v, ok := os.LookupEnv(envPrefix + key)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = b
	}

	if v, ok := os.LookupEnv(envPrefix + "REDIS_DB"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sREDIS_DB: %w", envPrefix, err)
		}
		cfg.Redis.DB = n
	}
	return nil
}

// Validate checks the process-level settings. Engine settings are checked
// again by authcore when the engine is built.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	}
	if _, err := sqlstore.ParseDialect(c.Database.Driver); err != nil {
		errs = append(errs, fmt.Sprintf("database.driver: %v", err))
	}
	if c.Database.DSN == "" {
		errs = append(errs, "database.dsn is required")
	}
	if c.Database.PruneInterval < 0 {
		errs = append(errs, "database.prune_interval must be >= 0")
	}

	switch c.Auth.RefreshStore {
	case "redis", "sql":
	default:
		errs = append(errs, "auth.refresh_store must be redis or sql")
	}
	if c.NeedsRedis() && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required for the redis refresh store and login throttle")
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, "auth.jwt_secret is required (set AUTHD_JWT_SECRET)")
	}

	if c.Audit.Enabled {
		switch c.Audit.Sink {
		case "log":
		case "mqtt":
			if c.Audit.MQTT.Broker == "" {
				errs = append(errs, "audit.mqtt.broker is required for the mqtt sink")
			}
		default:
			errs = append(errs, "audit.sink must be log or mqtt")
		}
	}

	if _, err := parseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err.Error())
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, "logging.format must be json or text")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// NeedsRedis reports whether authd must connect to Redis.
func (c *Config) NeedsRedis() bool {
	return c.Auth.RefreshStore == "redis" || c.Auth.LoginThrottle
}

// Dialect returns the validated database dialect.
func (c *Config) Dialect() sqlstore.Dialect {
	d, _ := sqlstore.ParseDialect(c.Database.Driver)
	return d
}

// EngineConfig converts the file settings into an authcore.Config.
func (c *Config) EngineConfig() authcore.Config {
	cfg := authcore.DefaultConfig()

	cfg.JWT.PrivateKey = []byte(c.Auth.JWTSecret)
	cfg.JWT.Issuer = c.Auth.Issuer
	cfg.JWT.Audience = c.Auth.Audience
	cfg.JWT.AccessTTL = c.Auth.AccessTTL

	cfg.Refresh.TTL = c.Auth.RefreshTTL
	cfg.Refresh.Retention = c.Auth.RefreshRetention
	if c.Redis.Prefix != "" {
		cfg.Refresh.RedisPrefix = c.Redis.Prefix
	}

	cfg.Password.Algorithm = c.Auth.PasswordAlgorithm
	cfg.Password.Memory = c.Auth.Argon2MemoryKB
	cfg.Password.Time = c.Auth.Argon2Time
	cfg.Password.BcryptCost = c.Auth.BcryptCost
	cfg.Password.MinLength = c.Auth.PasswordMinLength
	if cfg.Password.Algorithm == authcore.PasswordAlgorithmBcrypt && cfg.Password.MaxLength > 72 {
		cfg.Password.MaxLength = 72
	}

	cfg.Security.ProductionMode = c.Auth.ProductionMode
	cfg.Security.RevokeAllOnReuse = c.Auth.RevokeAllOnReuse
	cfg.Security.ConcealForbidden = c.Auth.ConcealForbidden
	cfg.Security.EnableLoginThrottle = c.Auth.LoginThrottle
	cfg.Security.EnableIPThrottle = c.Auth.IPThrottle
	cfg.Security.MaxLoginAttempts = c.Auth.MaxLoginAttempts
	cfg.Security.LoginCooldownDuration = c.Auth.LoginCooldown
	cfg.Security.MaxRegistrationsPerIP = c.Auth.MaxRegistrationsPerIP

	cfg.Audit.Enabled = c.Audit.Enabled
	if c.Audit.BufferSize > 0 {
		cfg.Audit.BufferSize = c.Audit.BufferSize
	}
	cfg.Audit.DropIfFull = c.Audit.DropIfFull

	cfg.Metrics.Enabled = c.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = c.Metrics.Latency
	return cfg
}
