package session

import (
	"fmt"

	"github.com/skaji/postgres-language-server/internal/parse"
	"github.com/skaji/postgres-language-server/internal/schema"
)

type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "unknown"
	}
}

const diagnosticSource = "pglsp"

// Diagnostic ranges are byte offsets into the document text.
type Diagnostic struct {
	Range    parse.Range
	Severity Severity
	Message  string
	Source   string
}

// computeDiagnostics reports syntax errors, and unknown relations when
// checkSchema is set and the snapshot knows at least one table.
func computeDiagnostics(parsed *parse.Result, snap *schema.Snapshot, checkSchema bool) []Diagnostic {
	var diags []Diagnostic
	for _, stmt := range parsed.Statements {
		for _, se := range stmt.SyntaxErrors {
			diags = append(diags, Diagnostic{
				Range:    se.Range.Shift(stmt.Range.Start),
				Severity: SeverityError,
				Message:  se.Message,
				Source:   diagnosticSource,
			})
		}
	}
	if !checkSchema || snap.Len() == 0 {
		return diags
	}

	created := parsed.CreatedTables()
	for _, stmt := range parsed.Statements {
		for _, rel := range stmt.AST.Relations() {
			if _, ok := created[rel.Name]; ok {
				continue
			}
			if table, matches := snap.Lookup(rel.Name, rel.Qualifier); table != nil || matches > 1 {
				continue
			}
			diags = append(diags, Diagnostic{
				Range:    rel.Range.Shift(stmt.Range.Start),
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("relation %q does not exist", stmt.Text[rel.Range.Start:rel.Range.End]),
				Source:   diagnosticSource,
			})
		}
	}
	return diags
}
