// Package sourcetest provides an in-memory database driver for tests.
package sourcetest

import (
	"context"
	"sync"

	"github.com/skaji/postgres-language-server/internal/schema"
	"github.com/skaji/postgres-language-server/internal/source"
)

// Driver is a registered fake driver. Connection strings for it are
// built with ConnString. All connections of a Driver share its schema and
// its notification queue.
type Driver struct {
	name string

	notify chan source.Notification
	fail   chan error

	mu          sync.Mutex
	tables      []schema.Table
	openErr     error
	loadErr     error
	listenErr   error
	execRows    int64
	execErr     error
	executed    []string
	opens       int
	listens     int
	closes      int
	hold        chan struct{}
	loadStarted chan struct{}
}

// New registers a fake driver under name and returns it.
func New(name string) *Driver {
	d := &Driver{
		name:   name,
		notify: make(chan source.Notification, 16),
		fail:   make(chan error, 1),
	}
	source.Register(d)
	return d
}

func (d *Driver) Name() string { return d.name }

// ConnString returns a connection string routed to d.
func (d *Driver) ConnString(db string) string {
	return d.name + "://" + db
}

func (d *Driver) Open(ctx context.Context, dsn string) (source.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens++
	if d.openErr != nil {
		return nil, d.openErr
	}
	return &conn{d: d}, nil
}

func (d *Driver) SetTables(tables ...schema.Table) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables = tables
}

func (d *Driver) SetOpenError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErr = err
}

func (d *Driver) SetLoadError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loadErr = err
}

func (d *Driver) SetListenError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listenErr = err
}

func (d *Driver) SetExecResult(rows int64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.execRows, d.execErr = rows, err
}

// HoldLoads makes later snapshot loads block until ReleaseLoads. The
// returned channel receives once per load that starts waiting.
func (d *Driver) HoldLoads() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hold = make(chan struct{})
	d.loadStarted = make(chan struct{}, 16)
	return d.loadStarted
}

func (d *Driver) ReleaseLoads() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hold != nil {
		close(d.hold)
		d.hold = nil
	}
}

// Notify queues a notification for the listener.
func (d *Driver) Notify(payload string) {
	d.notify <- source.Notification{Channel: source.Channels[0], Payload: payload}
}

// FailListener makes the next Receive return err.
func (d *Driver) FailListener(err error) {
	d.fail <- err
}

func (d *Driver) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

func (d *Driver) Listens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listens
}

func (d *Driver) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

func (d *Driver) Executed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.executed...)
}

type conn struct {
	d *Driver
}

func (c *conn) LoadSnapshot(ctx context.Context) (*schema.Snapshot, error) {
	c.d.mu.Lock()
	hold, started := c.d.hold, c.d.loadStarted
	c.d.mu.Unlock()
	if hold != nil {
		started <- struct{}{}
		<-hold
	}

	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if c.d.loadErr != nil {
		return nil, c.d.loadErr
	}
	return schema.NewSnapshot(c.d.tables), nil
}

func (c *conn) Exec(ctx context.Context, stmt string) (int64, error) {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.d.executed = append(c.d.executed, stmt)
	return c.d.execRows, c.d.execErr
}

func (c *conn) Listen(ctx context.Context, cfg source.ListenConfig) (source.Listener, error) {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if c.d.listenErr != nil {
		return nil, c.d.listenErr
	}
	c.d.listens++
	return &listener{d: c.d}, nil
}

func (c *conn) Close() error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.d.closes++
	return nil
}

type listener struct {
	d *Driver
}

func (l *listener) Receive(ctx context.Context) (source.Notification, error) {
	select {
	case <-ctx.Done():
		return source.Notification{}, ctx.Err()
	case n := <-l.d.notify:
		return n, nil
	case err := <-l.d.fail:
		return source.Notification{}, err
	}
}

func (l *listener) Close() error {
	return nil
}
