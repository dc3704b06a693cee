package hover

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skaji/postgres-language-server/internal/parse"
	"github.com/skaji/postgres-language-server/internal/schema"
)

func strPtr(s string) *string { return &s }

func mustParse(t *testing.T, text string) *parse.Result {
	t.Helper()
	result, err := parse.Parse(context.Background(), text)
	require.NoError(t, err)
	return result
}

func treeOnly(t *testing.T, text string) Artifacts {
	t.Helper()
	tree, err := parse.ParseTree(context.Background(), text)
	require.NoError(t, err)
	return Artifacts{Tree: tree, Tokens: parse.Scan(text)}
}

func TestHoverTableComment(t *testing.T) {
	snap := schema.NewSnapshot([]schema.Table{
		{Schema: "public", Name: "users", Comment: strPtr("app users")},
	})
	parsed := mustParse(t, "select * from users")

	result := HoverDocument(15, parsed, snap)
	require.NotNil(t, result)
	assert.Equal(t, "users\napp users", result.Content)
	assert.Equal(t, parse.Range{Start: 14, End: 19}, result.Range)
}

func TestHoverWithoutComment(t *testing.T) {
	snap := schema.NewSnapshot([]schema.Table{{Schema: "public", Name: "users"}})
	result := HoverDocument(14, mustParse(t, "select * from users"), snap)
	require.NotNil(t, result)
	assert.Equal(t, "users", result.Content)
}

func TestHoverDisambiguation(t *testing.T) {
	snap := schema.NewSnapshot([]schema.Table{
		{Schema: "public", Name: "orders"},
		{Schema: "billing", Name: "orders", Comment: strPtr("invoices")},
	})

	assert.Nil(t, HoverDocument(16, mustParse(t, "select * from orders"), snap))

	text := "select * from billing.orders"
	result := HoverDocument(24, mustParse(t, text), snap)
	require.NotNil(t, result)
	assert.Equal(t, "orders\ninvoices", result.Content)
	assert.Equal(t, "billing.orders", text[result.Range.Start:result.Range.End])
}

func TestHoverUnquotedNameFoldsCase(t *testing.T) {
	snap := schema.NewSnapshot([]schema.Table{
		{Schema: "public", Name: "Mixed", Comment: strPtr("quoted")},
		{Schema: "public", Name: "plain", Comment: strPtr("folded")},
	})

	assert.Nil(t, HoverDocument(15, mustParse(t, "select * from Mixed"), snap))

	result := HoverDocument(15, mustParse(t, "select * from PLAIN"), snap)
	require.NotNil(t, result)
	assert.Equal(t, "plain\nfolded", result.Content)
}

func TestHoverSecondStatementShiftsRange(t *testing.T) {
	snap := schema.NewSnapshot([]schema.Table{{Schema: "public", Name: "posts", Comment: strPtr("blog")}})
	text := "select 1;\nselect * from posts"
	result := HoverDocument(26, mustParse(t, text), snap)
	require.NotNil(t, result)
	assert.Equal(t, "posts", text[result.Range.Start:result.Range.End])
}

func TestHoverMisses(t *testing.T) {
	snap := schema.NewSnapshot([]schema.Table{{Schema: "public", Name: "users"}})
	parsed := mustParse(t, "select * from users;  ")

	assert.Nil(t, HoverDocument(6, parsed, snap), "whitespace")
	assert.Nil(t, HoverDocument(2, parsed, snap), "keyword")
	assert.Nil(t, HoverDocument(7, parsed, snap), "punctuation")
	assert.Nil(t, HoverDocument(21, parsed, snap), "outside statements")
	assert.Nil(t, HoverDocument(15, parsed, schema.Empty()), "unknown table")
}

func TestResolveASTTakesPriority(t *testing.T) {
	text := "select * from users"
	artifacts := treeOnly(t, text)

	relation, ok := Resolve(15, text, artifacts).(Relation)
	require.True(t, ok)
	assert.Equal(t, "users", relation.Name)

	artifacts.AST = &parse.AST{Nodes: []parse.ASTNode{
		{Kind: parse.NodeColumn, Name: "users", Range: parse.Range{Start: 14, End: 19}},
	}}
	_, ok = Resolve(15, text, artifacts).(Column)
	assert.True(t, ok)

	// an AST without a node at the offset does not fall back to the tree
	artifacts.AST = &parse.AST{}
	assert.Nil(t, Resolve(15, text, artifacts))
}

func TestResolveColumnNamedLikeItsTable(t *testing.T) {
	text := "select orders from orders"
	parsed := mustParse(t, text)
	artifacts := ArtifactsOf(parsed.Statements[0])

	column, ok := Resolve(8, text, artifacts).(Column)
	require.True(t, ok)
	assert.Equal(t, "orders", column.Name)

	relation, ok := Resolve(20, text, artifacts).(Relation)
	require.True(t, ok)
	assert.Equal(t, parse.Range{Start: 19, End: 25}, relation.Range)

	snap := schema.NewSnapshot([]schema.Table{{Schema: "public", Name: "orders"}})
	assert.Nil(t, HoverDocument(8, parsed, snap))
	assert.NotNil(t, HoverDocument(20, parsed, snap))
}

func TestResolveTreeFallback(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		offset int
		want   Hoverable
	}{
		{
			name:   "qualified",
			text:   "select * from billing.orders",
			offset: 24,
			want:   Relation{Name: "orders", Schema: "billing", Range: parse.Range{Start: 14, End: 28}},
		},
		{
			name:   "schema part",
			text:   "select * from billing.orders",
			offset: 15,
			want:   nil,
		},
		{
			name:   "after comma and alias",
			text:   "select * from users as u, orders",
			offset: 27,
			want:   Relation{Name: "orders", Range: parse.Range{Start: 26, End: 32}},
		},
		{
			name:   "update",
			text:   "update Users set name = 'x'",
			offset: 8,
			want:   Relation{Name: "users", Range: parse.Range{Start: 7, End: 12}},
		},
		{
			name:   "column",
			text:   "select name from users",
			offset: 8,
			want:   nil,
		},
		{
			name:   "where clause",
			text:   "select * from users where name = 1",
			offset: 27,
			want:   nil,
		},
		{
			name:   "literal",
			text:   "insert into users values ('users')",
			offset: 28,
			want:   nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.offset, tt.text, treeOnly(t, tt.text))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHoverConcurrentReaders(t *testing.T) {
	snap := schema.NewSnapshot([]schema.Table{{Schema: "public", Name: "users", Comment: strPtr("app users")}})
	text := "select * from users where"
	artifacts := treeOnly(t, text)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				result := Hover(15, text, artifacts, snap)
				if assert.NotNil(t, result) {
					assert.Equal(t, "users\napp users", result.Content)
				}
			}
		}()
	}
	wg.Wait()
}
