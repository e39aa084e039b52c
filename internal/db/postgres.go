package db

import (
	"context"
	"log"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var Pool *pgxpool.Pool

var (
	newPool  = pgxpool.New
	pingPool = func(ctx context.Context, pool *pgxpool.Pool) error {
		return pool.Ping(ctx)
	}
)

// InitPostgres opens the process-wide pool. An empty dsn leaves Pool nil so
// callers can fall back to another backend.
func InitPostgres(ctx context.Context, dsn string) {
	if strings.TrimSpace(dsn) == "" {
		log.Println("DATABASE_URL not set, skipping Postgres")
		return
	}

	pool, err := newPool(ctx, dsn)
	if err != nil {
		log.Fatalf("failed to create Postgres pool: %v", err)
	}
	if err := pingPool(ctx, pool); err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	Pool = pool
	log.Println("Connected to Postgres")
}

// Close releases the pool if it was opened.
func Close() {
	if Pool != nil {
		Pool.Close()
		Pool = nil
	}
}
