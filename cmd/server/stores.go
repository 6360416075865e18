package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"vortx/cmd/server/config"
	"vortx/internal/customers"
	customersdb "vortx/internal/db/customers"
	facedb "vortx/internal/db/face"
	ordersdb "vortx/internal/db/orders"
	workflowdb "vortx/internal/db/workflow"
	"vortx/internal/face"
	"vortx/internal/orders"
	"vortx/internal/wishlist"
)

const schemaSetupTimeout = 5 * time.Second

var openDB = func(driver, dsn string) (*sql.DB, error) {
	return sql.Open(driver, dsn)
}

// stores holds the persistence backends. Recorder is nil when no database is
// configured, which leaves workflow executions unrecorded.
type stores struct {
	Payments  orders.PaymentStatusStore
	Faces     face.Store
	Customers customers.Store
	Recorder  *workflowdb.Recorder
	Wishlist  wishlist.Store
	Events    orders.EventLog
	Redis     *redis.Client
}

// buildPostgresStores opens DATABASE_URL and creates every table. Any failure
// falls back to the in-memory stores so the storefront keeps serving.
func buildPostgresStores(ctx context.Context, databaseURL string, logger *slog.Logger) (stores, func()) {
	memory := stores{
		Payments:  orders.NewMemoryStore(),
		Faces:     face.NewMemoryStore(),
		Customers: customers.NewMemoryStore(),
	}
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
		return memory, func() {}
	}

	db, err := openDB("pgx", databaseURL)
	if err != nil {
		logger.Error("open database, using in-memory stores", "error", err)
		return memory, func() {}
	}

	setupCtx, cancel := context.WithTimeout(ctx, schemaSetupTimeout)
	defer cancel()

	out, err := initPostgresStores(setupCtx, db)
	if err != nil {
		_ = db.Close()
		logger.Error("init database schema, using in-memory stores", "error", err)
		return memory, func() {}
	}
	cleanup := func() {
		if err := db.Close(); err != nil {
			logger.Error("close database", "error", err)
		}
	}
	return out, cleanup
}

func initPostgresStores(ctx context.Context, db *sql.DB) (stores, error) {
	recorder, err := workflowdb.NewRecorderWithSchema(ctx, db)
	if err != nil {
		return stores{}, err
	}
	payments, err := ordersdb.NewPaymentStatusStoreWithSchema(ctx, db)
	if err != nil {
		return stores{}, err
	}
	faces, err := facedb.NewStoreWithSchema(ctx, db)
	if err != nil {
		return stores{}, err
	}
	custs, err := customersdb.NewStoreWithSchema(ctx, db)
	if err != nil {
		return stores{}, err
	}
	return stores{Payments: payments, Faces: faces, Customers: custs, Recorder: recorder}, nil
}

// buildRedis connects to REDIS_URL. A nil client with a nil error means Redis
// is not configured.
func buildRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.DialTimeout != nil {
		opts.DialTimeout = *cfg.DialTimeout
	}
	if cfg.ReadTimeout != nil {
		opts.ReadTimeout = *cfg.ReadTimeout
	}
	if cfg.WriteTimeout != nil {
		opts.WriteTimeout = *cfg.WriteTimeout
	}
	if cfg.PoolSize != nil {
		opts.PoolSize = *cfg.PoolSize
	}
	if cfg.MinIdleConns != nil {
		opts.MinIdleConns = *cfg.MinIdleConns
	}
	if cfg.MaxRetries != nil {
		opts.MaxRetries = *cfg.MaxRetries
	}
	if cfg.TLSConfig != nil {
		opts.TLSConfig = cfg.TLSConfig
	}

	client := redis.NewClient(opts)
	if cfg.EnableOTel {
		if err := redisotel.InstrumentTracing(client); err != nil {
			_ = client.Close()
			return nil, err
		}
		if err := redisotel.InstrumentMetrics(client); err != nil {
			_ = client.Close()
			return nil, err
		}
	}

	pingCtx := ctx
	if cfg.HealthcheckTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.HealthcheckTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// buildStores wires Postgres and Redis backed stores, falling back to memory
// for whichever backend is missing or unreachable.
func buildStores(ctx context.Context, logger *slog.Logger) (stores, func(), error) {
	out, closeDB := buildPostgresStores(ctx, os.Getenv("DATABASE_URL"), logger)

	redisCfg, err := config.LoadRedis()
	if err != nil {
		closeDB()
		return stores{}, nil, err
	}
	client, err := buildRedis(ctx, redisCfg)
	if err != nil {
		logger.Error("connect redis, using in-memory wishlist", "error", err)
	}
	if client == nil {
		out.Wishlist = wishlist.NewMemoryStore()
		return out, closeDB, nil
	}

	out.Redis = client
	out.Wishlist = wishlist.NewRedisStore(client)
	out.Events = orders.NewRedisEventLog(client, redisCfg.Stream, redisCfg.EventTTL, redisCfg.StreamMaxLen)
	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Error("close redis", "error", err)
		}
		closeDB()
	}
	return out, cleanup, nil
}
