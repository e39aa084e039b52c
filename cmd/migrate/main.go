// Command migrate applies the Postgres schema used by the postgres cache
// backend.
package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"crypto-price-service/internal/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

const usage = "usage: migrate [up|down|version|status] [steps]"

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	loadEnvFunc    = godotenv.Load
	loadConfigFunc = config.Load
	openPool       = func(ctx context.Context, dsn string) (migrationDB, func(), error) {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return pool, pool.Close, nil
	}
)

var migrationFile = regexp.MustCompile(`^migrations/([0-9]+)_([a-z0-9_]+)\.(up|down)\.sql$`)

// migrationDB is the part of pgxpool.Pool the migrator needs.
type migrationDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

type migrator struct {
	db         migrationDB
	migrations []migration
}

func main() {
	loadEnvFunc()

	if len(os.Args) < 2 {
		log.Fatal(usage)
	}

	cfg := loadConfigFunc()
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Fatal("DATABASE_URL is required")
	}

	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		log.Fatalf("load migrations: %v", err)
	}

	ctx := context.Background()
	db, closeDB, err := openPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to postgres: %v", err)
	}
	defer closeDB()

	m := &migrator{db: db, migrations: migrations}
	if err := m.run(ctx, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func (m *migrator) run(ctx context.Context, args []string) error {
	if _, err := m.db.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version     BIGINT PRIMARY KEY,
    name        TEXT NOT NULL,
    applied_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	switch args[0] {
	case "up":
		n, err := m.up(ctx)
		if err != nil {
			return fmt.Errorf("apply migrations up: %w", err)
		}
		log.Printf("migrations up complete (%d applied)", n)
	case "down":
		steps, err := parseSteps(args[1:])
		if err != nil {
			return err
		}
		n, err := m.down(ctx, steps)
		if err != nil {
			return fmt.Errorf("apply migrations down: %w", err)
		}
		log.Printf("migrations down complete (%d rolled back)", n)
	case "version":
		version, name, err := m.current(ctx)
		if err != nil {
			return fmt.Errorf("read current version: %w", err)
		}
		if version == 0 {
			log.Println("no migrations applied")
			return nil
		}
		log.Printf("current version: %d (%s)", version, name)
	case "status":
		applied, err := m.applied(ctx)
		if err != nil {
			return fmt.Errorf("read applied versions: %w", err)
		}
		for _, mg := range m.migrations {
			state := "pending"
			if _, ok := applied[mg.Version]; ok {
				state = "applied"
			}
			log.Printf("%04d %-32s %s", mg.Version, mg.Name, state)
		}
	default:
		return fmt.Errorf("unknown command %q. %s", args[0], usage)
	}
	return nil
}

func parseSteps(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid down steps: %q", args[0])
	}
	return n, nil
}

func loadMigrations(fsys fs.FS) ([]migration, error) {
	paths, err := fs.Glob(fsys, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.New("no migration files found")
	}

	index := make(map[int64]*migration)
	for _, p := range paths {
		parts := migrationFile.FindStringSubmatch(p)
		if parts == nil {
			return nil, fmt.Errorf("invalid migration filename: %s", p)
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse version in %s: %w", p, err)
		}

		raw, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", p, err)
		}
		sqlText := strings.TrimSpace(string(raw))
		if sqlText == "" {
			return nil, fmt.Errorf("empty migration file: %s", p)
		}

		mg, ok := index[version]
		if !ok {
			mg = &migration{Version: version, Name: parts[2]}
			index[version] = mg
		} else if mg.Name != parts[2] {
			return nil, fmt.Errorf("conflicting names for version %d: %s vs %s", version, mg.Name, parts[2])
		}

		target := &mg.UpSQL
		if parts[3] == "down" {
			target = &mg.DownSQL
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", parts[3], version)
		}
		*target = sqlText
	}

	out := make([]migration, 0, len(index))
	for _, mg := range index {
		if mg.UpSQL == "" || mg.DownSQL == "" {
			return nil, fmt.Errorf("migration version %d must include both up and down files", mg.Version)
		}
		out = append(out, *mg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// pending returns the migrations not yet applied, oldest first.
func pending(migrations []migration, applied map[int64]struct{}) []migration {
	var out []migration
	for _, mg := range migrations {
		if _, ok := applied[mg.Version]; !ok {
			out = append(out, mg)
		}
	}
	return out
}

func (m *migrator) applied(ctx context.Context) (map[int64]struct{}, error) {
	rows, err := m.db.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	out := make(map[int64]struct{}, len(versions))
	for _, v := range versions {
		out[v] = struct{}{}
	}
	return out, nil
}

func (m *migrator) up(ctx context.Context) (int, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, mg := range pending(m.migrations, applied) {
		err := m.inTx(ctx, mg.UpSQL, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, mg.Version, mg.Name)
		if err != nil {
			return n, fmt.Errorf("version %d up failed: %w", mg.Version, err)
		}
		n++
	}
	return n, nil
}

func (m *migrator) down(ctx context.Context, steps int) (int, error) {
	byVersion := make(map[int64]migration, len(m.migrations))
	for _, mg := range m.migrations {
		byVersion[mg.Version] = mg
	}

	rows, err := m.db.Query(ctx, `SELECT version FROM schema_migrations ORDER BY version DESC LIMIT $1`, steps)
	if err != nil {
		return 0, err
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return 0, err
	}

	n := 0
	for _, version := range versions {
		mg, ok := byVersion[version]
		if !ok {
			return n, fmt.Errorf("cannot find migration source for applied version %d", version)
		}
		if err := m.inTx(ctx, mg.DownSQL, `DELETE FROM schema_migrations WHERE version = $1`, mg.Version); err != nil {
			return n, fmt.Errorf("version %d down failed: %w", mg.Version, err)
		}
		n++
	}
	return n, nil
}

// inTx runs a migration body and its bookkeeping statement atomically.
func (m *migrator) inTx(ctx context.Context, body, record string, args ...any) error {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, body); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, record, args...); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return tx.Commit(ctx)
}

func (m *migrator) current(ctx context.Context) (int64, string, error) {
	var version int64
	var name string
	err := m.db.QueryRow(ctx, `SELECT version, name FROM schema_migrations ORDER BY version DESC LIMIT 1`).Scan(&version, &name)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", err
	}
	return version, name, nil
}
