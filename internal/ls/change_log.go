package ls

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

const maxChangePreview = 40

// logChangeSummary logs one entry per content change of a didChange.
func logChangeSummary(path string, version protocol.Integer, changes []any, length int) {
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	summary := make([]string, 0, len(changes))
	for _, change := range changes {
		switch value := change.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			summary = append(summary, fmt.Sprintf("full(len=%d)", len(value.Text)))
		case protocol.TextDocumentContentChangeEvent:
			if value.Range == nil {
				summary = append(summary, fmt.Sprintf("full(len=%d)", len(value.Text)))
				continue
			}
			summary = append(summary, fmt.Sprintf("edit(%s-%s,%q)",
				formatPosition(value.Range.Start), formatPosition(value.Range.End),
				truncatePreview(value.Text, maxChangePreview)))
		default:
			summary = append(summary, fmt.Sprintf("unknown(%T)", change))
		}
	}

	slog.Debug("didChange", "path", path, "version", version, "length", length, "changes", strings.Join(summary, "; "))
}

func formatPosition(pos protocol.Position) string {
	return fmt.Sprintf("%d:%d", pos.Line+1, pos.Character+1)
}

func truncatePreview(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
