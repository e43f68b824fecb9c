package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"linkup/cmd/identity"
	"linkup/cmd/internal/cache"
	"linkup/cmd/internal/graph"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
)

// backends owns the connections behind the record store, graph mirror and cache.
// Anything left unconfigured falls back to an in-process implementation.
type backends struct {
	accounts identity.Store
	mirror   graph.Mirror
	cache    cache.Store

	pool   *pgxpool.Pool
	redis  *redis.Client
	driver neo4j.DriverWithContext
	neo    *graph.Neo4jMirror
}

func openBackends(ctx context.Context, cfg Config, log *slog.Logger) (_ *backends, err error) {
	b := &backends{}
	defer func() {
		if err != nil {
			_ = b.Close(context.Background())
		}
	}()

	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		b.accounts = identity.NewMemoryStore()
	} else {
		b.pool, err = NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if cfg.DBMigrate {
			if err = Migrate(ctx, b.pool, log); err != nil {
				return nil, err
			}
		}
		b.accounts, err = identity.NewPostgresStore(b.pool)
		if err != nil {
			return nil, err
		}
		log.Info("db.enabled.postgres_store")
	}

	if cfg.Neo4jURI == "" {
		log.Info("graph.disabled.inmemory_mirror")
		b.mirror = graph.NewMemoryMirror()
	} else {
		b.driver, err = graph.Dial(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
		if err != nil {
			return nil, err
		}
		b.neo = graph.NewNeo4jMirror(b.driver, cfg.Neo4jDatabase)
		if err = b.neo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		b.mirror = b.neo
		log.Info("graph.enabled.neo4j", "database", cfg.Neo4jDatabase)
	}

	if cfg.RedisAddr == "" {
		log.Info("cache.disabled")
		b.cache = cache.Nop{}
	} else {
		b.redis, err = cache.Dial(ctx, redisOptions(cfg))
		if err != nil {
			return nil, err
		}
		b.cache = cache.NewRedisStore(b.redis)
		log.Info("cache.enabled.redis", "addr", cfg.RedisAddr)
	}

	return b, nil
}

func redisOptions(cfg Config) *redis.Options {
	return &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

func asynqOptions(cfg Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// ready pings every external backend that is configured.
func (b *backends) ready(ctx context.Context) error {
	var errs []error
	if b.pool != nil {
		if err := PingDB(ctx, b.pool, 2*time.Second); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if b.redis != nil {
		if err := b.redis.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if b.neo != nil {
		if err := b.neo.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("neo4j: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases connections in reverse order of opening.
func (b *backends) Close(ctx context.Context) error {
	var errs []error
	if b.redis != nil {
		errs = append(errs, b.redis.Close())
	}
	if b.driver != nil {
		errs = append(errs, b.driver.Close(ctx))
	}
	if b.pool != nil {
		b.pool.Close()
	}
	return errors.Join(errs...)
}
