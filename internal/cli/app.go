package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lazypower/tether/internal/config"
	"github.com/lazypower/tether/internal/engine"
	"github.com/lazypower/tether/internal/notify"
	"github.com/lazypower/tether/internal/observability"
	"github.com/lazypower/tether/internal/store"
)

// app holds everything a command needs: config, logger, store, and an
// engine wired to the configured lock and delivery backends.
type app struct {
	cfg     config.Config
	log     *zap.Logger
	db      *store.DB
	eng     *engine.Engine
	closers []func() error
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Pretty)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	a.db, err = store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.db.SetLogger(log.Named("store"))
	a.closers = append(a.closers, a.db.Close)

	loc, err := cfg.Location()
	if err != nil {
		a.Close()
		return nil, err
	}

	locker, err := a.locker()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.eng = engine.New(a.db, engine.Options{
		Logger:    log,
		Location:  loc,
		Locker:    locker,
		Deliverer: a.deliverer(),
		MinGap:    cfg.Scheduler.MinGap,
		LockTTL:   cfg.Scheduler.LockTTL,
	})
	return a, nil
}

// locker returns a Redis-backed locker when Redis is configured so
// evaluation passes from several processes stay single-flight.
func (a *app) locker() (notify.Locker, error) {
	if a.cfg.Redis.Addr == "" {
		return notify.NewMemoryLocker(), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", a.cfg.Redis.Addr, err)
	}
	a.closers = append(a.closers, rdb.Close)
	a.log.Info("scheduler lock: redis", zap.String("addr", a.cfg.Redis.Addr))
	return notify.NewRedisLocker(rdb, "", a.cfg.Scheduler.LockWait, a.log.Named("lock")), nil
}

func (a *app) deliverer() notify.Deliverer {
	if len(a.cfg.Kafka.Brokers) == 0 {
		return notify.NewLogDeliverer(a.log.Named("deliver"))
	}
	d := notify.NewKafkaDeliverer(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic, a.log.Named("deliver"))
	a.closers = append(a.closers, d.Close)
	a.log.Info("notification delivery: kafka",
		zap.Strings("brokers", a.cfg.Kafka.Brokers), zap.String("topic", a.cfg.Kafka.Topic))
	return d
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	if a.eng != nil {
		a.eng.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close", zap.Error(err))
		}
	}
	a.log.Sync()
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
