package hover

import (
	"github.com/skaji/postgres-language-server/internal/parse"
	"github.com/skaji/postgres-language-server/internal/schema"
)

// Result is hover content and the source range it describes.
type Result struct {
	Range   parse.Range
	Content string
}

// Hover resolves the element at offset and looks it up in snapshot. Only
// relations that resolve to exactly one table produce a result.
func Hover(offset int, source string, artifacts Artifacts, snapshot *schema.Snapshot) *Result {
	relation, ok := Resolve(offset, source, artifacts).(Relation)
	if !ok {
		return nil
	}
	table := snapshot.FindTable(relation.Name, relation.Schema)
	if table == nil {
		return nil
	}
	content := table.Name
	if table.Comment != nil {
		content += "\n" + *table.Comment
	}
	return &Result{Range: relation.Range, Content: content}
}

// HoverDocument hovers over a whole parsed document. The returned range is
// in document offsets.
func HoverDocument(offset int, parsed *parse.Result, snapshot *schema.Snapshot) *Result {
	stmt := parsed.StatementAt(offset)
	if stmt == nil {
		return nil
	}
	result := Hover(offset-stmt.Range.Start, stmt.Text, ArtifactsOf(stmt), snapshot)
	if result == nil {
		return nil
	}
	result.Range = result.Range.Shift(stmt.Range.Start)
	return result
}
