package session_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skaji/postgres-language-server/internal/schema"
	"github.com/skaji/postgres-language-server/internal/session"
	"github.com/skaji/postgres-language-server/internal/source"
	"github.com/skaji/postgres-language-server/internal/source/sourcetest"
)

var driverSeq atomic.Int64

func newDriver(t *testing.T, tables ...schema.Table) *sourcetest.Driver {
	t.Helper()
	d := sourcetest.New(fmt.Sprintf("sessfake%d", driverSeq.Add(1)))
	d.SetTables(tables...)
	return d
}

func strPtr(s string) *string { return &s }

func TestVersionMonotonicity(t *testing.T) {
	s := session.New()
	const path = "/work/q.sql"

	assert.Equal(t, []string{path}, s.Open(path, 1, "select 1"))
	assert.Equal(t, []string{path}, s.ApplyChange(path, 2, "select 2"))
	assert.Equal(t, []string{path}, s.ApplyChange(path, 5, "select 5"))
	assert.Nil(t, s.ApplyChange(path, 3, "select 3"))
	assert.Nil(t, s.ApplyChange(path, 5, "select 5 again"))

	doc, ok := s.Document(path)
	require.True(t, ok)
	assert.Equal(t, int32(5), doc.Version)
	assert.Equal(t, "select 5", doc.Text)

	assert.Equal(t, []string{path}, s.ApplyChange(path, 6, "select 6"))
	doc, _ = s.Document(path)
	assert.Equal(t, "select 6", doc.Text)

	// re-open of a known path is a change
	assert.Nil(t, s.Open(path, 4, "select 4"))
	assert.Equal(t, []string{path}, s.Open(path, 7, "select 7"))
}

func TestUnknownPathChangeOpens(t *testing.T) {
	s := session.New()
	assert.Equal(t, []string{"/a.sql"}, s.ApplyChange("/a.sql", 3, "select 1"))
	assert.Equal(t, []string{"/a.sql"}, s.Paths())

	s.Close("/a.sql")
	_, ok := s.Document("/a.sql")
	assert.False(t, ok)
	assert.Empty(t, s.Paths())
	assert.Nil(t, s.Diagnostics("/a.sql"))
}

func TestSaveListsSavedPathFirst(t *testing.T) {
	s := session.New()
	s.Open("/a.sql", 1, "select 1")
	s.Open("/b.sql", 1, "select 2")
	s.Open("/c.sql", 1, "select 3")

	assert.Equal(t, []string{"/b.sql", "/a.sql", "/c.sql"}, s.Save("/b.sql"))
	assert.Equal(t, []string{"/a.sql", "/b.sql", "/c.sql"}, s.Save("/unknown.sql"))
}

func TestSyntaxErrorDiagnostics(t *testing.T) {
	s := session.New()
	s.Open("/a.sql", 1, "select 1;\nselect * from users where (")

	diags := s.Diagnostics("/a.sql")
	require.NotEmpty(t, diags)
	for _, d := range diags {
		assert.Equal(t, session.SeverityError, d.Severity)
		assert.GreaterOrEqual(t, d.Range.Start, 10)
	}
}

func TestChangeDBIsIdempotent(t *testing.T) {
	defer leaktest.Check(t)()

	d := newDriver(t, schema.Table{Schema: "public", Name: "users"})
	s := session.New()
	defer s.Shutdown()

	ctx := context.Background()
	require.NoError(t, s.ChangeDB(ctx, d.ConnString("app")))
	require.NoError(t, s.ChangeDB(ctx, d.ConnString("app")))

	assert.Equal(t, 1, d.Opens())
	assert.Equal(t, 1, d.Listens())
	assert.Equal(t, 0, d.Closes())
	assert.Equal(t, 1, s.Snapshot().Len())
}

func TestConcurrentChangeDBSameDatabase(t *testing.T) {
	defer leaktest.Check(t)()

	d := newDriver(t, schema.Table{Schema: "public", Name: "users"})
	s := session.New()
	defer s.Shutdown()

	// the first caller blocks in its load while the rest queue behind it
	started := d.HoldLoads()
	ctx := context.Background()
	connString := d.ConnString("app")

	const callers = 8
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.ChangeDB(ctx, connString)
		}()
	}

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("no load started")
	}
	d.ReleaseLoads()
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, d.Opens())
	assert.Equal(t, 1, d.Listens())
	assert.Equal(t, 0, d.Closes())
	assert.True(t, s.Connected())
	assert.Equal(t, 1, s.Snapshot().Len())
}

func TestChangeDBSwitchesAndClosesPrevious(t *testing.T) {
	defer leaktest.Check(t)()

	first := newDriver(t, schema.Table{Schema: "public", Name: "users"})
	second := newDriver(t, schema.Table{Schema: "public", Name: "posts"}, schema.Table{Schema: "public", Name: "tags"})
	s := session.New()
	defer s.Shutdown()

	ctx := context.Background()
	require.NoError(t, s.ChangeDB(ctx, first.ConnString("app")))
	require.NoError(t, s.ChangeDB(ctx, second.ConnString("app")))

	assert.Equal(t, 1, first.Closes())
	assert.Equal(t, 2, s.Snapshot().Len())
	assert.Nil(t, s.Snapshot().FindTable("users", ""))
}

func TestFailedChangeDBKeepsPrevious(t *testing.T) {
	defer leaktest.Check(t)()

	good := newDriver(t, schema.Table{Schema: "public", Name: "users"})
	s := session.New()
	defer s.Shutdown()
	ctx := context.Background()
	require.NoError(t, s.ChangeDB(ctx, good.ConnString("app")))

	unreachable := newDriver(t)
	unreachable.SetOpenError(errors.New("connection refused"))
	err := s.ChangeDB(ctx, unreachable.ConnString("app"))
	var connErr *source.ConnectionError
	require.ErrorAs(t, err, &connErr)

	noListen := newDriver(t)
	noListen.SetListenError(errors.New("too many connections"))
	require.Error(t, s.ChangeDB(ctx, noListen.ConnString("app")))
	assert.Equal(t, 1, noListen.Closes())

	noLoad := newDriver(t)
	noLoad.SetLoadError(errors.New("permission denied"))
	require.Error(t, s.ChangeDB(ctx, noLoad.ConnString("app")))
	assert.Equal(t, 1, noLoad.Closes())

	assert.Equal(t, 0, good.Closes())
	assert.NotNil(t, s.Snapshot().FindTable("users", ""))

	good.SetExecResult(1, nil)
	n, err := s.RunStatement(ctx, "delete from users where id = 1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, []string{"delete from users where id = 1"}, good.Executed())
}

func TestReloadRecomputesDiagnosticsAndHover(t *testing.T) {
	defer leaktest.Check(t)()

	d := newDriver(t, schema.Table{Schema: "public", Name: "posts"})
	s := session.New()
	defer s.Shutdown()

	changed := make(chan []string, 4)
	s.OnSchemaChange(func(paths []string) { changed <- paths })

	const path = "/work/users.sql"
	s.Open(path, 1, "select * from users")
	assert.Empty(t, s.Diagnostics(path), "no schema checks without a database")

	require.NoError(t, s.ChangeDB(context.Background(), d.ConnString("app")))
	assert.Equal(t, []string{path}, <-changed)

	diags := s.Diagnostics(path)
	require.Len(t, diags, 1)
	assert.Equal(t, session.SeverityWarning, diags[0].Severity)
	assert.Equal(t, `relation "users" does not exist`, diags[0].Message)
	assert.Nil(t, s.Hover(path, 15))

	d.SetTables(schema.Table{Schema: "public", Name: "posts"}, schema.Table{Schema: "public", Name: "users", Comment: strPtr("app users")})
	d.Notify(source.ReloadPayload)

	select {
	case paths := <-changed:
		assert.Equal(t, []string{path}, paths)
	case <-time.After(5 * time.Second):
		t.Fatal("schema change was not reported")
	}
	assert.Empty(t, s.Diagnostics(path))

	result := s.Hover(path, 15)
	require.NotNil(t, result)
	assert.Equal(t, "users\napp users", result.Content)
	assert.Equal(t, 14, result.Range.Start)
	assert.Equal(t, 19, result.Range.End)
}

func TestCreatedTablesAreNotReported(t *testing.T) {
	defer leaktest.Check(t)()

	d := newDriver(t, schema.Table{Schema: "public", Name: "posts"})
	s := session.New()
	defer s.Shutdown()
	require.NoError(t, s.ChangeDB(context.Background(), d.ConnString("app")))

	s.Open("/a.sql", 1, "create table audit (id int);\nselect * from audit;\nselect * from posts")
	for _, diag := range s.Diagnostics("/a.sql") {
		assert.NotEqual(t, session.SeverityWarning, diag.Severity, diag.Message)
	}
}

func TestStaleSourceNeverOverwritesNewerSnapshot(t *testing.T) {
	defer leaktest.Check(t)()

	oldDriver := newDriver(t, schema.Table{Schema: "public", Name: "old_table"})
	newDriverB := newDriver(t, schema.Table{Schema: "public", Name: "new_table"})
	s := session.New(session.WithSourceOptions(source.WithCloseTimeout(5 * time.Second)))
	defer s.Shutdown()

	ctx := context.Background()
	require.NoError(t, s.ChangeDB(ctx, oldDriver.ConnString("app")))

	// the old source starts a reload that finishes after the switch
	started := oldDriver.HoldLoads()
	oldDriver.Notify(source.ReloadPayload)
	<-started

	done := make(chan error, 1)
	go func() {
		done <- s.ChangeDB(ctx, newDriverB.ConnString("app"))
	}()

	require.Eventually(t, func() bool {
		return s.Snapshot().FindTable("new_table", "") != nil
	}, 5*time.Second, 5*time.Millisecond)

	oldDriver.ReleaseLoads()
	require.NoError(t, <-done)

	assert.NotNil(t, s.Snapshot().FindTable("new_table", ""))
	assert.Nil(t, s.Snapshot().FindTable("old_table", ""))
	assert.Equal(t, 1, oldDriver.Closes())
}

func TestSnapshotAtomicity(t *testing.T) {
	defer leaktest.Check(t)()

	gen1 := []schema.Table{{Schema: "public", Name: "users", Comment: strPtr("v1")}}
	gen2 := []schema.Table{{Schema: "public", Name: "users", Comment: strPtr("v2")}, {Schema: "public", Name: "posts"}}
	d := newDriver(t, gen1...)
	s := session.New()
	defer s.Shutdown()
	require.NoError(t, s.ChangeDB(context.Background(), d.ConnString("app")))
	s.Open("/a.sql", 1, "select * from users")

	stop := make(chan struct{})
	var bad atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := s.Snapshot()
				users := snap.FindTable("users", "")
				switch {
				case users == nil:
					bad.Add(1)
				case snap.Len() == 1 && *users.Comment != "v1":
					bad.Add(1)
				case snap.Len() == 2 && *users.Comment != "v2":
					bad.Add(1)
				}
				if result := s.Hover("/a.sql", 15); result == nil ||
					(result.Content != "users\nv1" && result.Content != "users\nv2") {
					bad.Add(1)
				}
			}
		}()
	}

	changed := make(chan []string, 64)
	s.OnSchemaChange(func(paths []string) { changed <- paths })
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			d.SetTables(gen2...)
		} else {
			d.SetTables(gen1...)
		}
		d.Notify(source.ReloadPayload)
		select {
		case <-changed:
		case <-time.After(5 * time.Second):
			t.Fatal("reload was not published")
		}
	}
	close(stop)
	wg.Wait()
	assert.Zero(t, bad.Load())
}

func TestListenerFailureIsReported(t *testing.T) {
	defer leaktest.Check(t)()

	d := newDriver(t)
	s := session.New()
	defer s.Shutdown()

	stopped := make(chan error, 2)
	s.OnListenerStopped(func(err error) { stopped <- err })
	require.NoError(t, s.ChangeDB(context.Background(), d.ConnString("app")))

	lost := errors.New("terminating connection due to administrator command")
	d.FailListener(lost)
	select {
	case err := <-stopped:
		assert.ErrorIs(t, err, lost)
	case <-time.After(5 * time.Second):
		t.Fatal("listener failure was not reported")
	}
	assert.True(t, s.Connected())
}

func TestCodeActions(t *testing.T) {
	defer leaktest.Check(t)()

	s := session.New()
	defer s.Shutdown()
	text := "select 1;\nselect 2;\nselect 3"
	s.Open("/a.sql", 1, text)
	assert.Nil(t, s.CodeActions("/a.sql", 0, len(text)), "no actions without a database")

	d := newDriver(t)
	require.NoError(t, s.ChangeDB(context.Background(), d.ConnString("app")))

	actions := s.CodeActions("/a.sql", 12, 12)
	require.Len(t, actions, 1)
	assert.Equal(t, "Execute statement", actions[0].Title)
	assert.Equal(t, session.ExecuteStatementCommand, actions[0].Command)
	assert.Equal(t, "select 2", actions[0].Statement)

	assert.Len(t, s.CodeActions("/a.sql", 0, len(text)), 3)
	assert.Nil(t, s.CodeActions("/missing.sql", 0, 1))
}

func TestRunStatementWithoutSource(t *testing.T) {
	s := session.New()
	_, err := s.RunStatement(context.Background(), "select 1")
	assert.ErrorIs(t, err, source.ErrNoSource)
}

func TestShutdownClosesSource(t *testing.T) {
	defer leaktest.Check(t)()

	d := newDriver(t)
	s := session.New()
	require.NoError(t, s.ChangeDB(context.Background(), d.ConnString("app")))
	s.Shutdown()
	s.Shutdown()

	assert.Equal(t, 1, d.Closes())
	assert.False(t, s.Connected())
	_, err := s.RunStatement(context.Background(), "select 1")
	assert.ErrorIs(t, err, source.ErrNoSource)
}

func TestCompletions(t *testing.T) {
	defer leaktest.Check(t)()

	d := newDriver(t,
		schema.Table{Schema: "public", Name: "users"},
		schema.Table{Schema: "public", Name: "user_roles"},
		schema.Table{Schema: "public", Name: "posts"},
	)
	s := session.New()
	defer s.Shutdown()

	text := "select * from us"
	s.Open("/a.sql", 1, text)
	assert.Nil(t, s.Completions("/a.sql", len(text)), "no snapshot yet")

	require.NoError(t, s.ChangeDB(context.Background(), d.ConnString("app")))
	var names []string
	for _, table := range s.Completions("/a.sql", len(text)) {
		names = append(names, table.Name)
	}
	assert.ElementsMatch(t, []string{"users", "user_roles"}, names)

	assert.Len(t, s.Completions("/a.sql", len("select * from ")), 3)
}

// sqliteDeadline bounds waits on schema version polling.
const sqliteDeadline = 20 * time.Second

func TestSQLiteSchemaChangesReachDiagnostics(t *testing.T) {
	defer leaktest.Check(t)()

	path := filepath.Join(t.TempDir(), "app.db")
	s := session.New(session.WithSourceOptions(source.WithPollInterval(20 * time.Millisecond)))
	defer s.Shutdown()

	ctx := context.Background()
	require.NoError(t, s.ChangeDB(ctx, "sqlite:"+path))
	s.Open("/q.sql", 1, "select * from posts")

	_, err := s.RunStatement(ctx, "CREATE TABLE users (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		diags := s.Diagnostics("/q.sql")
		return len(diags) == 1 && diags[0].Message == `relation "posts" does not exist`
	}, sqliteDeadline, 10*time.Millisecond)

	_, err = s.RunStatement(ctx, "CREATE TABLE posts (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(s.Diagnostics("/q.sql")) == 0
	}, sqliteDeadline, 10*time.Millisecond)
}
