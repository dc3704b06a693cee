package ls

import (
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/skaji/postgres-language-server/internal/schema"
)

func (s *Server) completion(_ *glsp.Context, params *protocol.CompletionParams) (any, error) {
	path := documentPath(params.TextDocument.URI)
	doc, ok := s.session.Document(path)
	if !ok {
		return nil, nil
	}
	tables := s.session.Completions(path, offsetAt(doc.Text, params.Position))
	return tableCompletionItems(tables), nil
}

func tableCompletionItems(tables []*schema.Table) []protocol.CompletionItem {
	items := make([]protocol.CompletionItem, 0, len(tables))
	kind := protocol.CompletionItemKindClass
	for _, table := range tables {
		item := protocol.CompletionItem{
			Label: table.Name,
			Kind:  &kind,
		}
		if table.Schema != "" {
			detail := table.Schema
			item.Detail = &detail
		}
		if table.Comment != nil {
			item.Documentation = *table.Comment
		}
		items = append(items, item)
	}
	return items
}
