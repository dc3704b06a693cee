package source

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/skaji/postgres-language-server/internal/schema"
)

func init() {
	Register(postgresDriver{})
}

type postgresDriver struct{}

func (postgresDriver) Name() string { return "postgres" }

func (postgresDriver) Open(ctx context.Context, dsn string) (Conn, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &pgConn{pool: pool}, nil
}

type pgConn struct {
	pool *pgxpool.Pool
}

const pgSchemaFilter = `n.nspname NOT IN ('pg_catalog', 'information_schema') AND n.nspname NOT LIKE 'pg_toast%' AND n.nspname NOT LIKE 'pg_temp%'`

func (c *pgConn) LoadSnapshot(ctx context.Context) (*schema.Snapshot, error) {
	var (
		tables  []schema.Table
		columns map[tableKey][]schema.Column
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tables, err = c.loadTables(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		columns, err = c.loadColumns(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i := range tables {
		tables[i].Columns = columns[tableKey{schema: tables[i].Schema, name: tables[i].Name}]
	}
	return schema.NewSnapshot(tables), nil
}

type tableKey struct {
	schema string
	name   string
}

func (c *pgConn) loadTables(ctx context.Context) ([]schema.Table, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT n.nspname, c.relname, obj_description(c.oid, 'pg_class')
		FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind IN ('r', 'p', 'v', 'm', 'f') AND `+pgSchemaFilter+`
		ORDER BY n.nspname, c.relname`)
	if err != nil {
		return nil, fmt.Errorf("postgres tables: %w", err)
	}
	defer rows.Close()

	var tables []schema.Table
	for rows.Next() {
		var t schema.Table
		if err := rows.Scan(&t.Schema, &t.Name, &t.Comment); err != nil {
			return nil, fmt.Errorf("postgres scan table: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres tables: %w", err)
	}
	return tables, nil
}

func (c *pgConn) loadColumns(ctx context.Context) (map[tableKey][]schema.Column, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT n.nspname, c.relname, a.attname,
			pg_catalog.format_type(a.atttypid, a.atttypmod),
			NOT a.attnotnull,
			col_description(c.oid, a.attnum)
		FROM pg_catalog.pg_attribute a
		JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE a.attnum > 0 AND NOT a.attisdropped
			AND c.relkind IN ('r', 'p', 'v', 'm', 'f') AND `+pgSchemaFilter+`
		ORDER BY n.nspname, c.relname, a.attnum`)
	if err != nil {
		return nil, fmt.Errorf("postgres columns: %w", err)
	}
	defer rows.Close()

	columns := make(map[tableKey][]schema.Column)
	for rows.Next() {
		var (
			key tableKey
			col schema.Column
		)
		if err := rows.Scan(&key.schema, &key.name, &col.Name, &col.Type, &col.Nullable, &col.Comment); err != nil {
			return nil, fmt.Errorf("postgres scan column: %w", err)
		}
		columns[key] = append(columns[key], col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres columns: %w", err)
	}
	return columns, nil
}

func (c *pgConn) Exec(ctx context.Context, stmt string) (int64, error) {
	tag, err := c.pool.Exec(ctx, stmt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Listen takes a connection out of the pool for good and subscribes it to
// cfg.Channels.
func (c *pgConn) Listen(ctx context.Context, cfg ListenConfig) (Listener, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres acquire: %w", err)
	}
	for _, channel := range cfg.Channels {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
			conn.Release()
			return nil, fmt.Errorf("postgres listen %s: %w", channel, err)
		}
	}
	return &pgListener{conn: conn.Hijack()}, nil
}

func (c *pgConn) Close() error {
	c.pool.Close()
	return nil
}

type pgListener struct {
	conn *pgx.Conn
}

func (l *pgListener) Receive(ctx context.Context) (Notification, error) {
	n, err := l.conn.WaitForNotification(ctx)
	if err != nil {
		return Notification{}, err
	}
	return Notification{Channel: n.Channel, Payload: n.Payload}, nil
}

func (l *pgListener) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return l.conn.Close(ctx)
}
