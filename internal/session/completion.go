package session

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/skaji/postgres-language-server/internal/schema"
)

const maxCompletions = 50

type tableNames []*schema.Table

func (t tableNames) String(i int) string { return strings.ToLower(t[i].Name) }
func (t tableNames) Len() int            { return len(t) }

// Completions returns the tables of the current snapshot ranked against the
// identifier prefix before offset.
func (s *Session) Completions(path string, offset int) []*schema.Table {
	doc, ok := s.Document(path)
	if !ok {
		return nil
	}
	tables := s.Snapshot().Tables()
	if len(tables) == 0 {
		return nil
	}

	prefix := identifierPrefix(doc.Text, offset)
	if prefix == "" {
		if len(tables) > maxCompletions {
			tables = tables[:maxCompletions]
		}
		return tables
	}

	matches := fuzzy.FindFrom(strings.ToLower(prefix), tableNames(tables))
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	out := make([]*schema.Table, 0, len(matches))
	for _, m := range matches {
		out = append(out, tables[m.Index])
	}
	if len(out) > maxCompletions {
		out = out[:maxCompletions]
	}
	return out
}

func identifierPrefix(text string, offset int) string {
	if offset > len(text) {
		offset = len(text)
	}
	start := offset
	for start > 0 {
		c := text[start-1]
		if c == '_' || c == '$' || c >= 0x80 ||
			('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') {
			start--
			continue
		}
		break
	}
	return text[start:offset]
}
