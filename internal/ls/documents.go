package ls

import (
	"strings"
	"unicode/utf16"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/skaji/postgres-language-server/internal/parse"
)

func applyContentChanges(text string, changes []any) (string, bool) {
	current := text
	for _, change := range changes {
		switch value := change.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			current = value.Text
		case protocol.TextDocumentContentChangeEvent:
			if value.Range == nil {
				current = value.Text
				continue
			}
			start := offsetAt(current, value.Range.Start)
			end := max(offsetAt(current, value.Range.End), start)
			current = current[:start] + value.Text + current[end:]
		default:
			return current, false
		}
	}
	return current, true
}

// offsetAt converts a UTF-16 based position into a byte offset in text.
func offsetAt(text string, pos protocol.Position) int {
	return min(max(pos.IndexIn(text), 0), len(text))
}

// positionAt converts a byte offset in text into a UTF-16 based position.
func positionAt(text string, offset int) protocol.Position {
	offset = min(max(offset, 0), len(text))
	prefix := text[:offset]
	lineStart := strings.LastIndexByte(prefix, '\n') + 1

	character := 0
	for _, r := range prefix[lineStart:] {
		character += utf16.RuneLen(r)
	}
	return protocol.Position{
		Line:      protocol.UInteger(strings.Count(prefix, "\n")),
		Character: protocol.UInteger(character),
	}
}

func toProtocolRange(text string, r parse.Range) protocol.Range {
	return protocol.Range{
		Start: positionAt(text, r.Start),
		End:   positionAt(text, r.End),
	}
}
