package ls

import (
	"log/slog"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/skaji/postgres-language-server/internal/hover"
)

func (s *Server) hover(_ *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	path := documentPath(params.TextDocument.URI)
	doc, ok := s.session.Document(path)
	if !ok {
		return nil, nil
	}
	// handlers run in order, so doc is still current when Hover reads it
	offset := offsetAt(doc.Text, params.Position)
	result := s.session.Hover(path, offset)
	slog.Debug("hover", "path", path, "offset", offset, "found", result != nil)
	return hoverFromResult(doc.Text, result), nil
}

func hoverFromResult(text string, result *hover.Result) *protocol.Hover {
	if result == nil {
		return nil
	}
	rng := toProtocolRange(text, result.Range)
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindPlainText,
			Value: result.Content,
		},
		Range: &rng,
	}
}
