package session

import (
	"github.com/skaji/postgres-language-server/internal/parse"
)

const (
	// ExecuteStatementCommand runs the statement given as its only argument.
	ExecuteStatementCommand = "pglsp.executeStatement"

	executeStatementTitle = "Execute statement"
)

// CodeAction is a command offered for a range of a document.
type CodeAction struct {
	Title     string
	Command   string
	Statement string
	Range     parse.Range
}

// CodeActions offers to execute every statement intersecting [start, end).
// Nothing is offered without a database connection.
func (s *Session) CodeActions(path string, start, end int) []CodeAction {
	if s.active.Load() == nil {
		return nil
	}
	doc, ok := s.Document(path)
	if !ok {
		return nil
	}
	var actions []CodeAction
	for _, stmt := range doc.Parsed.StatementsIn(parse.Range{Start: start, End: end}) {
		actions = append(actions, CodeAction{
			Title:     executeStatementTitle,
			Command:   ExecuteStatementCommand,
			Statement: stmt.Text,
			Range:     stmt.Range,
		})
	}
	return actions
}
