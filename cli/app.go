package cli

import (
	"context"
	"errors"
	"fmt"

	"social-ledger/config"
	"social-ledger/ledger"
	"social-ledger/ledger/inmemoryimpl"
	"social-ledger/ledger/mongoimpl"
	"social-ledger/ledger/pgimpl"
	"social-ledger/ledger/redisimpl"
	"social-ledger/ledger/sqliteimpl"
	"social-ledger/notify"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app is everything a command needs, opened from the resolved config.
type app struct {
	cfg    config.Config
	log    *zap.Logger
	ledger *ledger.Ledger

	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	_ = a.log.Sync()
	return errors.Join(errs...)
}

// resolveConfig layers file, environment and flags.
func (o *RootOptions) resolveConfig() (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath, o.lookupEnv)
	if err != nil {
		return config.Config{}, err
	}
	if o.Storage != "" {
		cfg.StorageMode = o.Storage
	}
	if o.Database != "" {
		cfg.SQLitePath = o.Database
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.Dev {
		cfg.Development = true
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = level
	// stdout belongs to command output
	zcfg.OutputPaths = []string{"stderr"}
	return zcfg.Build()
}

func openStore(ctx context.Context, cfg config.Config) (ledger.Store, error) {
	switch cfg.StorageMode {
	case config.ModeInMemory:
		return inmemoryimpl.NewInMemoryStore(), nil
	case config.ModeSQLite:
		return sqliteimpl.Open(cfg.SQLitePath)
	case config.ModePostgres:
		return pgimpl.Open(ctx, cfg.PostgresURL)
	case config.ModeMongo:
		return mongoimpl.NewMongoStore(ctx, cfg.MongoURL, cfg.MongoDBName)
	case config.ModeRedis:
		return redisimpl.NewRedisStore(redis.NewClient(&redis.Options{Addr: cfg.RedisURL})), nil
	case config.ModeCached:
		mongoStore, err := mongoimpl.NewMongoStore(ctx, cfg.MongoURL, cfg.MongoDBName)
		if err != nil {
			return nil, err
		}
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		return redisimpl.NewCachedStore(redisClient, mongoStore), nil
	}
	return nil, fmt.Errorf("unknown storage mode %q", cfg.StorageMode)
}

func (o *RootOptions) openApp(ctx context.Context) (*app, error) {
	cfg, err := o.resolveConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	log := o.logger
	if log == nil {
		if log, err = newLogger(cfg); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to build logger", err)
		}
	}
	a := &app{cfg: cfg, log: log}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open storage", err)
	}
	a.closers = append(a.closers, store.Close)

	sinks := notify.MultiSink{notify.NewLogSink(log)}
	if cfg.EventsChannel != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		a.closers = append(a.closers, client.Close)
		sinks = append(sinks, notify.NewRedisSink(client, cfg.EventsChannel))
	}

	opts := []ledger.Option{ledger.WithLogger(log), ledger.WithSink(sinks)}
	if o.clock != nil {
		opts = append(opts, ledger.WithClock(o.clock))
	}
	a.ledger = ledger.New(store, opts...)
	log.Debug("ledger opened", zap.String("storage_mode", cfg.StorageMode))
	return a, nil
}
