package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

// PgxPool is the subset of pgxpool.Pool used by the store.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is a cache.Store backed by the price_cache and cache_blobs
// tables. Expiry is enforced on read; PurgeExpired reclaims the rows.
type PostgresStore struct {
	pool   PgxPool
	tracer trace.Tracer
	now    func() time.Time
}

func NewPostgresStore(pool PgxPool, tracer trace.Tracer) *PostgresStore {
	return &PostgresStore{pool: pool, tracer: tracer, now: time.Now}
}

func (s *PostgresStore) expiresAt(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := s.now().Add(ttl).UTC()
	return &t
}

func (s *PostgresStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	ctx, span := s.tracer.Start(ctx, "price-store.hgetall")
	defer span.End()

	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT fields FROM price_cache
		 WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`,
		key, s.now().UTC(),
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select price_cache %s: %w", key, err)
	}

	fields := make(map[string]string)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode price_cache %s: %w", key, err)
	}
	return fields, nil
}

func (s *PostgresStore) HSetWithTTL(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	ctx, span := s.tracer.Start(ctx, "price-store.hset")
	defer span.End()

	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode price_cache %s: %w", key, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO price_cache (key, fields, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET
		     fields = EXCLUDED.fields,
		     expires_at = EXCLUDED.expires_at`,
		key, raw, s.expiresAt(ttl),
	)
	if err != nil {
		return fmt.Errorf("upsert price_cache %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := s.tracer.Start(ctx, "price-store.get")
	defer span.End()

	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM cache_blobs
		 WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`,
		key, s.now().UTC(),
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select cache_blobs %s: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, span := s.tracer.Start(ctx, "price-store.set")
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO cache_blobs (key, value, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET
		     value = EXCLUDED.value,
		     expires_at = EXCLUDED.expires_at`,
		key, value, s.expiresAt(ttl),
	)
	if err != nil {
		return fmt.Errorf("upsert cache_blobs %s: %w", key, err)
	}
	return nil
}

// PurgeExpired deletes rows whose expiry has passed and returns how many
// were removed.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "price-store.purge-expired")
	defer span.End()

	now := s.now().UTC()
	var total int64
	for _, table := range []string{"price_cache", "cache_blobs"} {
		tag, err := s.pool.Exec(ctx, `DELETE FROM `+table+` WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
		if err != nil {
			return total, fmt.Errorf("purge %s: %w", table, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}
