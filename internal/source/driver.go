package source

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xo/dburl"

	"github.com/skaji/postgres-language-server/internal/schema"
)

// ReloadPayload is the notification payload that triggers a schema reload.
const ReloadPayload = "reload schema"

// Channels are the notification channels a Source subscribes to.
var Channels = []string{"postgres_lsp", "pgrst"}

type Notification struct {
	Channel string
	Payload string
}

// ListenConfig configures a subscription. PollInterval is used by drivers
// without server-side notifications.
type ListenConfig struct {
	Channels     []string
	PollInterval time.Duration
}

// Driver opens connections to one kind of database.
type Driver interface {
	Name() string
	Open(ctx context.Context, dsn string) (Conn, error)
}

// Conn is an open, pooled connection to a database.
type Conn interface {
	LoadSnapshot(ctx context.Context) (*schema.Snapshot, error)
	Exec(ctx context.Context, stmt string) (int64, error)
	Listen(ctx context.Context, cfg ListenConfig) (Listener, error)
	Close() error
}

// Listener delivers notifications. Receive blocks until a notification
// arrives, ctx is done or the subscription fails.
type Listener interface {
	Receive(ctx context.Context) (Notification, error)
	Close() error
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Driver{}
)

// Register adds a driver to the registry, replacing one with the same name.
func Register(d Driver) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[d.Name()] = d
}

func lookupDriver(name string) (Driver, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[name]
	return d, ok
}

var schemeAliases = map[string]string{
	"postgres":   "postgres",
	"postgresql": "postgres",
	"pgsql":      "postgres",
	"pg":         "postgres",
	"mysql":      "mysql",
	"sqlite":     "sqlite",
	"sqlite3":    "sqlite",
	"file":       "sqlite",
}

// resolveDriver picks the driver for connString and the DSN to open it with.
func resolveDriver(connString string) (Driver, string, error) {
	name, dsn, err := classify(connString)
	if err != nil {
		return nil, "", err
	}
	d, ok := lookupDriver(name)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownDriver, name)
	}
	return d, dsn, nil
}

func classify(connString string) (string, string, error) {
	s := strings.TrimSpace(connString)
	if s == "" {
		return "", "", fmt.Errorf("%w: empty connection string", ErrUnknownDriver)
	}
	scheme := ""
	if i := strings.Index(s, ":"); i > 0 {
		scheme = strings.ToLower(s[:i])
	}

	switch name := schemeAliases[scheme]; name {
	case "postgres":
		return name, s, nil
	case "mysql":
		u, err := dburl.Parse(s)
		if err != nil {
			return "", "", fmt.Errorf("parse mysql url: %w", err)
		}
		return name, u.DSN, nil
	case "sqlite":
		return name, s, nil
	}

	lower := strings.ToLower(s)
	switch {
	case s == ":memory:",
		strings.HasSuffix(lower, ".db"),
		strings.HasSuffix(lower, ".sqlite"),
		strings.HasSuffix(lower, ".sqlite3"):
		return "sqlite", s, nil
	case strings.Contains(s, "://") && scheme != "":
		return scheme, s, nil
	case strings.Contains(s, "host=") || strings.Contains(s, "dbname="):
		// libpq keyword/value form
		return "postgres", s, nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnknownDriver, connString)
}
