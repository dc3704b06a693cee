// Package session coordinates open documents with the active database
// connection and the schema snapshot it publishes.
package session

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/skaji/postgres-language-server/internal/hover"
	"github.com/skaji/postgres-language-server/internal/metrics"
	"github.com/skaji/postgres-language-server/internal/schema"
	"github.com/skaji/postgres-language-server/internal/source"
)

// Session owns the open documents, the active Source and the published
// snapshot. Readers load the snapshot without locking.
type Session struct {
	mu   sync.Mutex
	docs map[string]*Document

	snapshot atomic.Pointer[schema.Snapshot]
	active   atomic.Pointer[source.Source]

	// reconfigMu serializes ChangeDB and Shutdown.
	reconfigMu sync.Mutex
	// pubMu makes "is this source active" and "store its snapshot" atomic.
	pubMu sync.Mutex
	// recomputeMu serializes recomputation sweeps.
	recomputeMu sync.Mutex

	hooksMu           sync.RWMutex
	onSchemaChange    func(paths []string)
	onListenerStopped func(err error)

	sourceOpts []source.Option
}

type Option func(*Session)

// WithSourceOptions passes opts to every Source the session connects.
func WithSourceOptions(opts ...source.Option) Option {
	return func(s *Session) {
		s.sourceOpts = append(s.sourceOpts, opts...)
	}
}

func New(opts ...Option) *Session {
	s := &Session{
		docs: make(map[string]*Document),
	}
	s.snapshot.Store(schema.Empty())
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnSchemaChange registers fn to receive the documents whose diagnostics
// were recomputed after a new snapshot was published.
func (s *Session) OnSchemaChange(fn func(paths []string)) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onSchemaChange = fn
}

// OnListenerStopped registers fn to be told when the active Source's
// listener failed.
func (s *Session) OnListenerStopped(fn func(err error)) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onListenerStopped = fn
}

// Snapshot returns the currently published snapshot.
func (s *Session) Snapshot() *schema.Snapshot {
	return s.snapshot.Load()
}

// Connected reports whether a Source is active.
func (s *Session) Connected() bool {
	return s.active.Load() != nil
}

// Open starts tracking a document. Opening a known path is a change.
func (s *Session) Open(path string, version int32, text string) []string {
	return s.update(path, version, text)
}

// ApplyChange replaces the text of path. Versions not newer than the stored
// one are dropped.
func (s *Session) ApplyChange(path string, version int32, text string) []string {
	return s.update(path, version, text)
}

func (s *Session) update(path string, version int32, text string) []string {
	if prev, ok := s.Document(path); ok && version <= prev.Version {
		slog.Debug("dropping stale change", "path", path, "version", version, "current", prev.Version)
		return nil
	}

	snap := s.snapshot.Load()
	checkSchema := s.Connected()
	doc := newDocument(path, version, text, snap, checkSchema)

	s.mu.Lock()
	prev, ok := s.docs[path]
	if ok && version <= prev.Version {
		s.mu.Unlock()
		slog.Debug("dropping stale change", "path", path, "version", version, "current", prev.Version)
		return nil
	}
	s.docs[path] = doc
	s.mu.Unlock()
	if !ok {
		metrics.OpenDocuments.Inc()
	}

	// a snapshot published while this document was being built
	if doc.stale(s.snapshot.Load(), s.Connected()) {
		s.recompute([]*Document{doc})
	}
	return []string{path}
}

// Save rechecks every document. The saved path comes first.
func (s *Session) Save(path string) []string {
	_, known := s.Document(path)
	all := s.recomputeAll()

	var out []string
	if known {
		out = append(out, path)
	}
	for _, p := range all {
		if p != path {
			out = append(out, p)
		}
	}
	return out
}

func (s *Session) Close(path string) {
	s.mu.Lock()
	_, ok := s.docs[path]
	delete(s.docs, path)
	s.mu.Unlock()
	if ok {
		metrics.OpenDocuments.Dec()
	}
}

func (s *Session) Document(path string) (*Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[path]
	return doc, ok
}

func (s *Session) Diagnostics(path string) []Diagnostic {
	doc, ok := s.Document(path)
	if !ok {
		return nil
	}
	return doc.Diagnostics
}

// Paths returns the open document paths in sorted order.
func (s *Session) Paths() []string {
	s.mu.Lock()
	paths := make([]string, 0, len(s.docs))
	for path := range s.docs {
		paths = append(paths, path)
	}
	s.mu.Unlock()
	sort.Strings(paths)
	return paths
}

// Hover answers a hover request against the snapshot published right now.
func (s *Session) Hover(path string, offset int) *hover.Result {
	doc, ok := s.Document(path)
	if !ok {
		return nil
	}
	return hover.HoverDocument(offset, doc.Parsed, s.snapshot.Load())
}

func (s *Session) recomputeAll() []string {
	s.mu.Lock()
	docs := make([]*Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	s.mu.Unlock()

	s.recompute(docs)

	paths := make([]string, 0, len(docs))
	for _, doc := range docs {
		paths = append(paths, doc.Path)
	}
	sort.Strings(paths)
	return paths
}

// recompute rebuilds the diagnostics of docs against the current snapshot.
// A document replaced in the meantime is left alone.
func (s *Session) recompute(docs []*Document) {
	s.recomputeMu.Lock()
	defer s.recomputeMu.Unlock()

	snap := s.snapshot.Load()
	checkSchema := s.Connected()
	updated := make([]*Document, len(docs))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, doc := range docs {
		g.Go(func() error {
			updated[i] = doc.recheck(snap, checkSchema)
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, doc := range docs {
		if s.docs[doc.Path] == doc {
			s.docs[doc.Path] = updated[i]
		}
	}
}

// ChangeDB makes connString the active database. A Source already connected
// to connString is kept. On failure the previous Source stays active.
func (s *Session) ChangeDB(ctx context.Context, connString string) (err error) {
	s.reconfigMu.Lock()
	defer s.reconfigMu.Unlock()

	if s.active.Load().Matches(connString) {
		slog.Debug("database unchanged")
		return nil
	}
	defer func() {
		metrics.Reconfigurations.WithLabelValues(metrics.Result(err)).Inc()
	}()

	var src *source.Source
	opts := append([]source.Option{}, s.sourceOpts...)
	opts = append(opts, source.WithListenerStopped(func(err error) {
		s.listenerStopped(src, err)
	}))

	src, err = source.Connect(ctx, connString, opts...)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		return err
	}
	snap, err := src.Load(ctx)
	if err != nil {
		closeSource(src)
		return err
	}

	// Held until the swap, so a reload racing with it publishes after the
	// initial snapshot instead of being dropped.
	s.pubMu.Lock()
	err = src.StartListening(ctx, func(snap *schema.Snapshot) {
		s.publish(src, snap)
	})
	if err != nil {
		s.pubMu.Unlock()
		closeSource(src)
		return err
	}
	old := s.active.Swap(src)
	s.snapshot.Store(snap)
	s.pubMu.Unlock()

	slog.Info("database changed", "driver", src.Driver(), "tables", snap.Len())
	s.schemaChanged()

	if old != nil {
		closeSource(old)
	}
	return nil
}

// publish stores snap if src is still the active Source.
func (s *Session) publish(src *source.Source, snap *schema.Snapshot) {
	s.pubMu.Lock()
	if s.active.Load() != src {
		s.pubMu.Unlock()
		slog.Debug("ignoring schema from inactive source", "driver", src.Driver())
		return
	}
	s.snapshot.Store(snap)
	s.pubMu.Unlock()

	slog.Info("schema updated", "tables", snap.Len())
	s.schemaChanged()
}

func (s *Session) schemaChanged() {
	paths := s.recomputeAll()
	s.hooksMu.RLock()
	fn := s.onSchemaChange
	s.hooksMu.RUnlock()
	if fn != nil && len(paths) > 0 {
		fn(paths)
	}
}

func (s *Session) listenerStopped(src *source.Source, err error) {
	if s.active.Load() != src {
		return
	}
	s.hooksMu.RLock()
	fn := s.onListenerStopped
	s.hooksMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// RunStatement executes stmt on the active Source.
func (s *Session) RunStatement(ctx context.Context, stmt string) (int64, error) {
	src := s.active.Load()
	if src == nil {
		return 0, source.ErrNoSource
	}
	return src.RunStatement(ctx, stmt)
}

// Shutdown closes the active Source.
func (s *Session) Shutdown() {
	s.reconfigMu.Lock()
	defer s.reconfigMu.Unlock()

	s.pubMu.Lock()
	old := s.active.Swap(nil)
	s.pubMu.Unlock()
	if old != nil {
		closeSource(old)
	}
}

func closeSource(src *source.Source) {
	if err := src.Close(); err != nil {
		slog.Warn("close database connection", "error", err)
	}
}
