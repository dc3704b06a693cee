package ls

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/skaji/postgres-language-server/internal/session"
)

var errInvalidArguments = errors.New("invalid command arguments")

func (s *Server) codeAction(context *glsp.Context, params *protocol.CodeActionParams) (any, error) {
	s.remember(context)

	path := documentPath(params.TextDocument.URI)
	doc, ok := s.session.Document(path)
	if !ok {
		return nil, nil
	}
	start := offsetAt(doc.Text, params.Range.Start)
	end := max(offsetAt(doc.Text, params.Range.End), start)

	actions := s.session.CodeActions(path, start, end)
	out := make([]protocol.CodeAction, 0, len(actions))
	for _, action := range actions {
		out = append(out, protocol.CodeAction{
			Title: action.Title,
			Command: &protocol.Command{
				Title:     action.Title,
				Command:   action.Command,
				Arguments: []any{action.Statement},
			},
		})
	}
	return out, nil
}

type executeStatementRequest struct {
	statement string
}

func parseExecuteStatement(args []any) (executeStatementRequest, error) {
	if len(args) == 0 {
		return executeStatementRequest{}, fmt.Errorf("%w: missing statement", errInvalidArguments)
	}
	stmt, ok := args[0].(string)
	if !ok {
		return executeStatementRequest{}, fmt.Errorf("%w: statement must be a string, got %T", errInvalidArguments, args[0])
	}
	return executeStatementRequest{statement: stmt}, nil
}

// executeCommand answers workspace/executeCommand. The outcome of a command
// is reported with window/showMessage; the response itself is always empty.
func (s *Server) executeCommand(context *glsp.Context, params *protocol.ExecuteCommandParams) (any, error) {
	s.remember(context)

	name := strings.TrimPrefix(params.Command, "pglsp.")
	if name != strings.TrimPrefix(session.ExecuteStatementCommand, "pglsp.") {
		s.showMessage(protocol.MessageTypeError, fmt.Sprintf("Unknown command: %s", params.Command))
		return nil, nil
	}

	req, err := parseExecuteStatement(params.Arguments)
	if err != nil {
		return nil, err
	}

	rows, err := s.session.RunStatement(s.ctx, req.statement)
	if err != nil {
		slog.Warn("statement execution failed", "error", err)
		s.showMessage(protocol.MessageTypeError, fmt.Sprintf("Statement execution failed: %v", err))
		return nil, nil
	}
	s.showMessage(protocol.MessageTypeInfo, fmt.Sprintf("Success! Affected rows: %d", rows))
	return nil, nil
}
