package source

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/skaji/postgres-language-server/internal/schema"
)

func init() {
	Register(sqliteDriver{})
}

type sqliteDriver struct{}

func (sqliteDriver) Name() string { return "sqlite" }

func (sqliteDriver) Open(ctx context.Context, dsn string) (Conn, error) {
	dsn = normalizeSQLiteDSN(dsn)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if dsn == ":memory:" {
		// every pooled connection would see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	return &sqliteConn{db: db}, nil
}

// normalizeSQLiteDSN strips the URL prefixes accepted in connection strings.
func normalizeSQLiteDSN(dsn string) string {
	for _, prefix := range []string{"sqlite3://", "sqlite://", "sqlite3:", "sqlite:", "file://", "file:"} {
		if strings.HasPrefix(dsn, prefix) {
			return strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

type sqliteConn struct {
	db *sql.DB
}

func (c *sqliteConn) LoadSnapshot(ctx context.Context) (*schema.Snapshot, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("sqlite tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite scan table: %w", err)
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite tables: %w", err)
	}

	tables := make([]schema.Table, 0, len(names))
	for _, name := range names {
		columns, err := c.columns(ctx, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, schema.Table{Schema: "main", Name: name, Columns: columns})
	}
	return schema.NewSnapshot(tables), nil
}

func (c *sqliteConn) columns(ctx context.Context, table string) ([]schema.Column, error) {
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("sqlite columns of %s: %w", table, err)
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    bool
			dfltValue  sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dfltValue, &primaryKey); err != nil {
			return nil, fmt.Errorf("sqlite scan column: %w", err)
		}
		columns = append(columns, schema.Column{Name: name, Type: typ, Nullable: !notNull})
	}
	return columns, rows.Err()
}

func (c *sqliteConn) Exec(ctx context.Context, stmt string) (int64, error) {
	result, err := c.db.ExecContext(ctx, stmt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Listen polls PRAGMA schema_version, which SQLite bumps on every schema change.
func (c *sqliteConn) Listen(ctx context.Context, cfg ListenConfig) (Listener, error) {
	return newPollListener(ctx, cfg, func(ctx context.Context) (string, error) {
		var version int64
		if err := c.db.QueryRowContext(ctx, "PRAGMA schema_version").Scan(&version); err != nil {
			return "", err
		}
		return strconv.FormatInt(version, 10), nil
	})
}

func (c *sqliteConn) Close() error {
	return c.db.Close()
}
