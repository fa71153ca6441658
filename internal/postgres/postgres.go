package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Params describe one database on the target server.
type Params struct {
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	ConnectTimeout time.Duration
}

// Querier is the subset of pgxpool.Pool used by Client; pgxmock pools satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Client runs administrative queries against a single database.
type Client struct {
	q        Querier
	database string
}

// NewClient wraps an existing querier.
func NewClient(q Querier, database string) *Client {
	return &Client{q: q, database: database}
}

// Connect establishes a small pgx pool to p.Database and verifies it with a
// trivial authenticated query.
func Connect(ctx context.Context, p Params) (*Client, error) {
	cfg, err := pgxpool.ParseConfig("")
	if err != nil {
		return nil, err
	}
	if p.Port < 1 || p.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", p.Port)
	}
	cc := cfg.ConnConfig
	cc.Host = p.Host
	cc.Port = uint16(p.Port)
	cc.User = p.User
	cc.Password = p.Password
	cc.Database = p.Database
	if p.ConnectTimeout > 0 {
		cc.ConnectTimeout = p.ConnectTimeout
	}
	// pg_restore may hold the table; keep our own footprint minimal
	cfg.MaxConns = 2
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c := NewClient(pool, p.Database)
	if err := c.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return c, nil
}

// Close releases the pool.
func (c *Client) Close() { c.q.Close() }

// Ping executes SELECT 1.
func (c *Client) Ping(ctx context.Context) error {
	var one int
	if err := c.q.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("select 1 on %s: %w", c.database, err)
	}
	return nil
}

// EnsureVersion checks that server_version_num >= min (e.g. 100000).
func (c *Client) EnsureVersion(ctx context.Context, min int) error {
	var verStr string
	if err := c.q.QueryRow(ctx, "SHOW server_version_num").Scan(&verStr); err != nil {
		return fmt.Errorf("query version: %w", err)
	}
	verNum, err := strconv.Atoi(verStr)
	if err != nil {
		return fmt.Errorf("parse version_num %s: %w", verStr, err)
	}
	if verNum < min {
		return fmt.Errorf("PostgreSQL >= %d required, server reports %s", min/10000, verStr)
	}
	return nil
}

// WalLevel returns the current wal_level setting.
func (c *Client) WalLevel(ctx context.Context) (string, error) {
	var lvl string
	if err := c.q.QueryRow(ctx, "SHOW wal_level").Scan(&lvl); err != nil {
		return "", fmt.Errorf("query wal_level: %w", err)
	}
	return lvl, nil
}

// TableExists reports whether schema.table is present.
func (c *Client) TableExists(ctx context.Context, schema, table string) (bool, error) {
	return c.exists(ctx, `SELECT EXISTS (SELECT 1 FROM pg_catalog.pg_tables WHERE schemaname = $1 AND tablename = $2)`, schema, table)
}

// TableSize returns pg_total_relation_size of schema.table; found is false
// when the table does not exist.
func (c *Client) TableSize(ctx context.Context, schema, table string) (size int64, found bool, err error) {
	const q = `SELECT pg_catalog.pg_total_relation_size(c.oid)
               FROM pg_catalog.pg_class c
               JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
               WHERE n.nspname = $1 AND c.relname = $2 AND c.relkind IN ('r', 'p')`
	err = c.q.QueryRow(ctx, q, schema, table).Scan(&size)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("table size %s.%s: %w", schema, table, err)
	}
	return size, true, nil
}

func (c *Client) exists(ctx context.Context, sql string, args ...any) (bool, error) {
	var ok bool
	if err := c.q.QueryRow(ctx, sql, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("existence check on %s: %w", c.database, err)
	}
	return ok, nil
}

// PrettyBytes converts bytes to human-readable IEC units similar to pg_size_pretty.
func PrettyBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d bytes", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	value := float64(b) / float64(div)
	suffix := []string{"kB", "MB", "GB", "TB", "PB", "EB"}[exp]
	return fmt.Sprintf("%.2f %s", value, suffix)
}
