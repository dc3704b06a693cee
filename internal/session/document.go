package session

import (
	"context"
	"log/slog"

	"github.com/skaji/postgres-language-server/internal/parse"
	"github.com/skaji/postgres-language-server/internal/schema"
)

// Document is an open file. It is never modified after it is stored; every
// change builds a new Document.
type Document struct {
	Path        string
	Version     int32
	Text        string
	Parsed      *parse.Result
	Diagnostics []Diagnostic

	// inputs the diagnostics were computed from
	snapshot    *schema.Snapshot
	checkSchema bool
}

func newDocument(path string, version int32, text string, snap *schema.Snapshot, checkSchema bool) *Document {
	parsed, err := parse.Parse(context.Background(), text)
	if err != nil {
		slog.Warn("parse document", "path", path, "error", err)
		parsed = &parse.Result{Text: text}
	}
	return &Document{
		Path:        path,
		Version:     version,
		Text:        text,
		Parsed:      parsed,
		Diagnostics: computeDiagnostics(parsed, snap, checkSchema),
		snapshot:    snap,
		checkSchema: checkSchema,
	}
}

func (d *Document) stale(snap *schema.Snapshot, checkSchema bool) bool {
	return d.snapshot != snap || d.checkSchema != checkSchema
}

func (d *Document) recheck(snap *schema.Snapshot, checkSchema bool) *Document {
	out := *d
	out.Diagnostics = computeDiagnostics(d.Parsed, snap, checkSchema)
	out.snapshot = snap
	out.checkSchema = checkSchema
	return &out
}
