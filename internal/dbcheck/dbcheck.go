// Package dbcheck runs preflight checks against the target PostgreSQL
// database before artifacts are handed to the bulk loader. It catches the
// cheap failures (bad URL, unreachable host, table already present) while
// they are still cheap.
package dbcheck

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/johndauphine/csv2pg/internal/logging"
)

// Report is the outcome of a preflight run.
type Report struct {
	ServerVersion string
	TableExists   bool
	RowCount      int64
}

// Checker holds a small connection pool to the target database.
type Checker struct {
	pool *pgxpool.Pool
}

// New connects to the database at url and verifies it answers a ping.
func New(ctx context.Context, url string) (*Checker, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	poolCfg.MaxConns = 2
	poolCfg.ConnConfig.ConnectTimeout = 10 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Checker{pool: pool}, nil
}

// Close releases the pool.
func (c *Checker) Close() {
	c.pool.Close()
}

// Preflight gathers server version and existing-table information for the
// table the import will create.
func (c *Checker) Preflight(ctx context.Context, tableName string) (*Report, error) {
	r := &Report{}

	if err := c.pool.QueryRow(ctx, "SHOW server_version").Scan(&r.ServerVersion); err != nil {
		return nil, fmt.Errorf("reading server version: %w", err)
	}

	err := c.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)`, tableName).Scan(&r.TableExists)
	if err != nil {
		return nil, fmt.Errorf("checking table existence: %w", err)
	}

	if r.TableExists {
		if err := c.pool.QueryRow(ctx,
			fmt.Sprintf("SELECT COUNT(*) FROM %q", tableName)).Scan(&r.RowCount); err != nil {
			return nil, fmt.Errorf("counting rows in %s: %w", tableName, err)
		}
		logging.Warn("table %q already exists with %d rows; the generated load will drop and recreate it",
			tableName, r.RowCount)
	}

	logging.Info("database preflight ok (server %s)", r.ServerVersion)
	return r, nil
}
