// Package hover maps a cursor offset to the schema element under it and
// renders hover content from a schema snapshot.
package hover

import (
	"github.com/skaji/postgres-language-server/internal/parse"
)

// Hoverable is the semantic element under the cursor: a Relation or a Column.
type Hoverable interface {
	isHoverable()
}

type Relation struct {
	Name   string
	Schema string
	Range  parse.Range
}

type Column struct {
	Name      string
	Qualifier string
	Range     parse.Range
}

func (Relation) isHoverable() {}
func (Column) isHoverable()   {}

// Artifacts are the parse results of one statement. When AST is set it is
// used exclusively; the syntax tree is only consulted without it.
type Artifacts struct {
	AST    *parse.AST
	Tree   *parse.Tree
	Tokens []parse.Token
}

// ArtifactsOf returns the artifacts of a parsed statement.
func ArtifactsOf(stmt *parse.Statement) Artifacts {
	if stmt == nil {
		return Artifacts{}
	}
	return Artifacts{AST: stmt.AST, Tree: stmt.Tree, Tokens: stmt.Tokens}
}

// Resolve returns the element at offset in source, or nil.
func Resolve(offset int, source string, artifacts Artifacts) Hoverable {
	if offset < 0 || offset >= len(source) {
		return nil
	}
	if artifacts.AST != nil {
		return resolveAST(offset, artifacts.AST)
	}
	if artifacts.Tree != nil {
		tokens := artifacts.Tokens
		if tokens == nil {
			tokens = parse.Scan(source)
		}
		return resolveTree(offset, artifacts.Tree, tokens)
	}
	return nil
}

func resolveAST(offset int, ast *parse.AST) Hoverable {
	node := ast.NodeAt(offset)
	if node == nil {
		return nil
	}
	switch node.Kind {
	case parse.NodeRelation:
		return Relation{Name: node.Name, Schema: node.Qualifier, Range: node.Range}
	case parse.NodeColumn:
		return Column{Name: node.Name, Qualifier: node.Qualifier, Range: node.Range}
	default:
		return nil
	}
}

func resolveTree(offset int, tree *parse.Tree, tokens []parse.Token) Hoverable {
	node, ok := tree.NodeAt(offset)
	if !ok || node.IsKeyword() {
		return nil
	}
	idx := parse.TokenAt(tokens, offset)
	if idx < 0 {
		return nil
	}
	token := tokens[idx]
	if !token.IsIdent() || parse.IsKeywordToken(token) {
		return nil
	}
	// the schema part of schema.table is not a relation
	if idx+1 < len(tokens) && tokens[idx+1].IsPunct(".") && tokens[idx+1].Start == token.End {
		return nil
	}

	rng := token.Range()
	schemaName := ""
	start := idx
	if idx >= 2 && tokens[idx-1].IsPunct(".") && tokens[idx-1].End == token.Start &&
		tokens[idx-2].IsIdent() && tokens[idx-2].End == tokens[idx-1].Start {
		schemaName = tokens[idx-2].Name()
		rng.Start = tokens[idx-2].Start
		start = idx - 2
	}

	if !parse.InRelationPosition(tokens, start) {
		return nil
	}
	return Relation{Name: token.Name(), Schema: schemaName, Range: rng}
}
