package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/auditsink/mqttsink"
	"github.com/MrEthical07/authcore/internal/appconfig"
	"github.com/MrEthical07/authcore/sqlstore"
)

type appOptions struct {
	config *appconfig.Config
	logger *slog.Logger
	dev    bool
}

// app owns every connection a command opens. close releases them in
// reverse order.
type app struct {
	db           *sql.DB
	redis        redis.UniversalClient
	sqlRefresh   *sqlstore.RefreshStore
	engine       *authcore.Engine
	closers      []func()
	engineConfig authcore.Config
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// openDatabase opens the database and applies pending migrations.
func openDatabase(ctx context.Context, opts appOptions) (*app, error) {
	cfg := opts.config
	db, err := sqlstore.Open(ctx, cfg.Dialect(), cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a := &app{db: db, engineConfig: cfg.EngineConfig()}
	a.closers = append(a.closers, func() {
		if err := db.Close(); err != nil {
			opts.logger.Error("error closing database", "error", err)
		}
	})

	applied, err := sqlstore.Migrate(ctx, db, cfg.Dialect())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	opts.logger.Info("database ready", "driver", cfg.Database.Driver, "migrations_applied", applied)
	return a, nil
}

// openApp opens storage and builds the engine.
func openApp(ctx context.Context, opts appOptions) (*app, error) {
	a, err := openDatabase(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := a.buildEngine(ctx, opts); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) buildEngine(ctx context.Context, opts appOptions) error {
	cfg := opts.config
	b := authcore.New().
		WithConfig(a.engineConfig).
		WithLogger(opts.logger).
		WithUserStore(sqlstore.NewUserStore(a.db))

	if cfg.NeedsRedis() {
		client, err := a.connectRedis(ctx, opts)
		if err != nil {
			return err
		}
		b.WithRedis(client)
	}

	if cfg.Auth.RefreshStore == "sql" {
		store, err := sqlstore.NewRefreshStore(a.db, a.engineConfig.RefreshStoreOptions())
		if err != nil {
			return err
		}
		a.sqlRefresh = store
		b.WithRefreshStore(store)
	}

	if cfg.Audit.Enabled {
		sink, err := a.auditSink(opts)
		if err != nil {
			return err
		}
		b.WithAuditSink(sink)
	}

	engine, err := b.Build()
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	a.engine = engine
	a.closers = append(a.closers, engine.Close)
	return nil
}

func (a *app) connectRedis(ctx context.Context, opts appOptions) (redis.UniversalClient, error) {
	addr := opts.config.Redis.Addr
	if opts.dev {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("starting miniredis: %w", err)
		}
		a.closers = append(a.closers, mr.Close)
		addr = mr.Addr()
		opts.logger.Warn("using in-process redis; refresh state is lost on exit", "addr", addr)
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: opts.config.Redis.Password,
		DB:       opts.config.Redis.DB,
	})
	a.closers = append(a.closers, func() { _ = client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	a.redis = client
	return client, nil
}

func (a *app) auditSink(opts appOptions) (authcore.AuditSink, error) {
	cfg := opts.config.Audit
	if cfg.Sink != "mqtt" {
		return authcore.NewSlogSink(opts.logger), nil
	}

	sink, err := mqttsink.Connect(mqttsink.Config{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		QoS:         cfg.MQTT.QoS,
	}, opts.logger)
	if err != nil {
		return nil, fmt.Errorf("audit sink: %w", err)
	}
	a.closers = append(a.closers, sink.Close)
	opts.logger.Info("audit events published over mqtt", "broker", cfg.MQTT.Broker)
	return sink, nil
}

var errNoSQLRefresh = errors.New("refresh records live in redis and expire on their own")
