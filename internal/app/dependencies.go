package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderms/internal/cache"
	"github.com/vladislavdragonenkov/orderms/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/orderms/internal/health"
	"github.com/vladislavdragonenkov/orderms/internal/metrics"
	"github.com/vladislavdragonenkov/orderms/internal/storage/memory"
	"github.com/vladislavdragonenkov/orderms/internal/storage/mongodb"
	"github.com/vladislavdragonenkov/orderms/internal/storage/postgres"
)

// runtimeDependencies содержит хранилище и всё, что нужно закрыть при остановке.
type runtimeDependencies struct {
	repo     domain.OrderRepository
	checkers map[string]healthcheck.Checker
	closers  []func(ctx context.Context) error
}

func (d *runtimeDependencies) addCloser(fn func(ctx context.Context) error) {
	d.closers = append(d.closers, fn)
}

// close закрывает ресурсы в обратном порядке открытия.
func (d *runtimeDependencies) close(ctx context.Context, logger *log.Entry) {
	if d == nil {
		return
	}
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](ctx); err != nil {
			logger.WithError(err).Warn("failed to close dependency")
		}
	}
	d.closers = nil
}

// initRuntimeDependencies открывает выбранное хранилище и, если задан Redis, оборачивает его кэшем сумм.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry, orderMetrics *metrics.OrderMetrics) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{checkers: make(map[string]healthcheck.Checker)}

	if err := initStorage(ctx, cfg, deps, logger); err != nil {
		deps.close(ctx, logger)
		return nil, err
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		totals := cache.NewTotalsCache(deps.repo, client,
			cache.WithTTL(cfg.RedisTTL),
			cache.WithLogger(logger),
			cache.WithMetrics(orderMetrics),
		)
		if err := totals.Ping(ctx); err != nil {
			logger.WithError(err).WithField("addr", cfg.RedisAddr).Warn("redis is unreachable, totals will be read from storage")
		}

		deps.repo = totals
		deps.checkers["redis"] = healthcheck.NewOptionalChecker("redis", totals.Ping)
		deps.addCloser(func(context.Context) error { return client.Close() })
		logger.WithField("addr", cfg.RedisAddr).Info("redis totals cache enabled")
	}

	return deps, nil
}

func initStorage(ctx context.Context, cfg Config, deps *runtimeDependencies, logger *log.Entry) error {
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		deps.repo = memory.NewOrderRepository()
		logger.Info("using in-memory storage")
		return nil

	case StorageDriverMongo:
		if cfg.MongoURI == "" {
			return fmt.Errorf("mongo storage requires ORDERMS_MONGO_URI")
		}
		store, err := mongodb.Open(ctx, cfg.MongoURI, cfg.mongoDatabase())
		if err != nil {
			return fmt.Errorf("open mongodb storage: %w", err)
		}
		deps.repo = mongodb.NewOrderRepository(store)
		deps.checkers["storage"] = healthcheck.NewPingChecker("mongodb", store.Ping)
		deps.addCloser(store.Close)
		logger.WithField("database", cfg.mongoDatabase()).Info("using mongodb storage")
		return nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return fmt.Errorf("postgres storage requires ORDERMS_POSTGRES_DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("open postgres storage: %w", err)
		}
		deps.addCloser(func(context.Context) error { return store.Close() })
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("migrate postgres schema: %w", err)
			}
		}
		deps.repo = postgres.NewOrderRepository(store)
		deps.checkers["storage"] = healthcheck.NewPingChecker("postgres", store.Ping)
		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("using postgres storage")
		return nil

	default:
		return fmt.Errorf("unsupported storage driver: %q", cfg.StorageDriver)
	}
}
