// Package source owns live database connections and turns their schema
// change notifications into fresh schema snapshots.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skaji/postgres-language-server/internal/metrics"
	"github.com/skaji/postgres-language-server/internal/schema"
)

const (
	defaultCloseTimeout = 5 * time.Second
	defaultPollInterval = 2 * time.Second
)

// Source is one live database connection plus at most one listener
// goroutine that rebuilds the schema on reload notifications.
type Source struct {
	connString   string
	driver       string
	conn         Conn
	closeTimeout time.Duration
	pollInterval time.Duration
	onStopped    func(error)

	mu        sync.Mutex
	listening bool
	started   bool
	closed    bool
	cancel    context.CancelFunc
	done      chan struct{}
	listener  Listener
	err       error
}

type Option func(*Source)

// WithCloseTimeout bounds how long Close waits for the listener goroutine.
func WithCloseTimeout(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.closeTimeout = d
		}
	}
}

// WithPollInterval sets the change detection interval of polling drivers.
func WithPollInterval(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithListenerStopped registers fn to be called once when the listener
// stops because receiving failed. It is not called for Close.
func WithListenerStopped(fn func(error)) Option {
	return func(s *Source) {
		s.onStopped = fn
	}
}

// Connect opens and pings a database. It does not start listening.
func Connect(ctx context.Context, connString string, opts ...Option) (*Source, error) {
	d, dsn, err := resolveDriver(connString)
	if err != nil {
		return nil, &ConnectionError{Driver: "unknown", Err: err}
	}
	conn, err := d.Open(ctx, dsn)
	if err != nil {
		return nil, &ConnectionError{Driver: d.Name(), Err: err}
	}
	s := &Source{
		connString:   connString,
		driver:       d.Name(),
		conn:         conn,
		closeTimeout: defaultCloseTimeout,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	slog.Info("database connected", "driver", s.driver)
	return s, nil
}

func (s *Source) Driver() string {
	return s.driver
}

// Matches reports whether s was connected with connString.
func (s *Source) Matches(connString string) bool {
	return s != nil && s.connString == connString
}

// Load builds a snapshot from the live connection.
func (s *Source) Load(ctx context.Context) (*schema.Snapshot, error) {
	start := time.Now()
	snap, err := s.conn.LoadSnapshot(ctx)
	metrics.SchemaReloads.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	slog.Debug("schema loaded", "driver", s.driver, "tables", snap.Len(), "elapsed", time.Since(start))
	return snap, nil
}

// StartListening subscribes to the reload channels and starts the listener
// goroutine. onUpdate is called from that goroutine with every snapshot
// built after a reload notification.
func (s *Source) StartListening(ctx context.Context, onUpdate func(*schema.Snapshot)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.started {
		return ErrAlreadyListening
	}

	listener, err := s.conn.Listen(ctx, ListenConfig{Channels: Channels, PollInterval: s.pollInterval})
	if err != nil {
		return fmt.Errorf("listen for schema changes: %w", err)
	}
	listenCtx, cancel := context.WithCancel(context.Background())
	s.started = true
	s.listening = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.listener = listener
	go s.listen(listenCtx, listener, onUpdate, s.done)
	slog.Debug("schema listener started", "driver", s.driver, "channels", Channels)
	return nil
}

func (s *Source) listen(ctx context.Context, listener Listener, onUpdate func(*schema.Snapshot), done chan struct{}) {
	defer close(done)
	for {
		n, err := listener.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Debug("schema listener cancelled", "driver", s.driver)
				return
			}
			s.stopped(err)
			return
		}
		if n.Payload != ReloadPayload {
			slog.Debug("ignoring notification", "channel", n.Channel, "payload", n.Payload)
			continue
		}
		slog.Info("reloading schema", "channel", n.Channel)
		snap, err := s.Load(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("schema reload failed, keeping previous schema", "driver", s.driver, "error", err)
			continue
		}
		onUpdate(snap)
	}
}

func (s *Source) stopped(err error) {
	slog.Error("schema listener stopped", "driver", s.driver, "error", err)
	metrics.ListenerStops.Inc()
	s.mu.Lock()
	s.listening = false
	s.err = err
	s.mu.Unlock()
	if s.onStopped != nil {
		s.onStopped(err)
	}
}

// Listening reports whether the listener goroutine is running.
func (s *Source) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening && !s.closed
}

// Err returns the error that stopped the listener, if any.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// RunStatement executes stmt and returns the number of affected rows.
func (s *Source) RunStatement(ctx context.Context, stmt string) (int64, error) {
	n, err := s.conn.Exec(ctx, stmt)
	metrics.Statements.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return 0, &ExecutionError{Err: err}
	}
	return n, nil
}

// Close stops the listener and closes the connection. It is safe to call
// more than once and without StartListening.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel, done, listener := s.cancel, s.done, s.listener
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		timer := time.NewTimer(s.closeTimeout)
		select {
		case <-done:
		case <-timer.C:
			slog.Warn("schema listener did not stop in time", "driver", s.driver, "timeout", s.closeTimeout)
		}
		timer.Stop()
	}
	if listener != nil {
		if err := listener.Close(); err != nil {
			slog.Debug("close listener", "error", err)
		}
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close %s connection: %w", s.driver, err)
	}
	slog.Info("database connection closed", "driver", s.driver)
	return nil
}
