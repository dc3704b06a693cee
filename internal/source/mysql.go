package source

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/skaji/postgres-language-server/internal/schema"
)

func init() {
	Register(mysqlDriver{})
}

type mysqlDriver struct{}

func (mysqlDriver) Name() string { return "mysql" }

func (mysqlDriver) Open(ctx context.Context, dsn string) (Conn, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql ping: %w", err)
	}
	return &mysqlConn{db: db}, nil
}

type mysqlConn struct {
	db *sql.DB
}

func (c *mysqlConn) LoadSnapshot(ctx context.Context) (*schema.Snapshot, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT table_schema, table_name, table_comment
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("mysql tables: %w", err)
	}
	var tables []schema.Table
	for rows.Next() {
		var (
			t       schema.Table
			comment string
		)
		if err := rows.Scan(&t.Schema, &t.Name, &comment); err != nil {
			rows.Close()
			return nil, fmt.Errorf("mysql scan table: %w", err)
		}
		t.Comment = optional(comment)
		tables = append(tables, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mysql tables: %w", err)
	}

	columns, err := c.columns(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tables {
		tables[i].Columns = columns[tables[i].Name]
	}
	return schema.NewSnapshot(tables), nil
}

func (c *mysqlConn) columns(ctx context.Context) (map[string][]schema.Column, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT table_name, column_name, column_type, is_nullable, column_comment
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		ORDER BY table_name, ordinal_position`)
	if err != nil {
		return nil, fmt.Errorf("mysql columns: %w", err)
	}
	defer rows.Close()

	columns := make(map[string][]schema.Column)
	for rows.Next() {
		var (
			table, nullable, comment string
			col                      schema.Column
		)
		if err := rows.Scan(&table, &col.Name, &col.Type, &nullable, &comment); err != nil {
			return nil, fmt.Errorf("mysql scan column: %w", err)
		}
		col.Nullable = nullable == "YES"
		col.Comment = optional(comment)
		columns[table] = append(columns[table], col)
	}
	return columns, rows.Err()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (c *mysqlConn) Exec(ctx context.Context, stmt string) (int64, error) {
	result, err := c.db.ExecContext(ctx, stmt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Listen polls a checksum over the column definitions of the current database.
func (c *mysqlConn) Listen(ctx context.Context, cfg ListenConfig) (Listener, error) {
	return newPollListener(ctx, cfg, func(ctx context.Context) (string, error) {
		var count, checksum int64
		err := c.db.QueryRowContext(ctx, `
			SELECT COUNT(*), COALESCE(SUM(CRC32(CONCAT_WS('|', c.table_name, c.column_name, c.column_type, c.column_comment, t.table_comment))), 0)
			FROM information_schema.columns c
			JOIN information_schema.tables t ON t.table_schema = c.table_schema AND t.table_name = c.table_name
			WHERE c.table_schema = DATABASE()`).Scan(&count, &checksum)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d:%d", count, checksum), nil
	})
}

func (c *mysqlConn) Close() error {
	return c.db.Close()
}
