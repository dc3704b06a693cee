// Package parse turns SQL documents into per-statement artifacts: a syntax
// tree that is always present and an enriched AST when the semantic parser
// accepts the statement.
package parse

import (
	"context"
	"log/slog"
)

// Range is a half-open byte range [Start, End).
type Range struct {
	Start int
	End   int
}

func (r Range) Contains(offset int) bool {
	return r.Start <= offset && offset < r.End
}

func (r Range) Len() int {
	return r.End - r.Start
}

func (r Range) Shift(delta int) Range {
	return Range{Start: r.Start + delta, End: r.End + delta}
}

func (r Range) Intersects(other Range) bool {
	if r.Len() == 0 || other.Len() == 0 {
		return r.Start <= other.End && other.Start <= r.End
	}
	return r.Start < other.End && other.Start < r.End
}

// Statement holds the artifacts of one statement. All ranges inside Tree,
// AST and Tokens are relative to Text; Range locates Text in the document.
type Statement struct {
	Range        Range
	Text         string
	Tokens       []Token
	Tree         *Tree
	AST          *AST
	SyntaxErrors []SyntaxError
}

// Result is the parsed form of a whole document.
type Result struct {
	Text       string
	Statements []*Statement
}

// Parse splits text into statements and parses each of them.
func Parse(ctx context.Context, text string) (*Result, error) {
	result := &Result{Text: text}
	for _, r := range SplitStatements(text) {
		stmtText := text[r.Start:r.End]
		tree, err := ParseTree(ctx, stmtText)
		if err != nil {
			return nil, err
		}
		stmt := &Statement{
			Range:        r,
			Text:         stmtText,
			Tokens:       Scan(stmtText),
			Tree:         tree,
			SyntaxErrors: tree.Errors(),
		}
		stmt.AST, err = BuildAST(stmtText, stmt.Tokens)
		if err != nil {
			slog.Debug("semantic parse skipped", "start", r.Start, "error", err)
		}
		result.Statements = append(result.Statements, stmt)
	}
	return result, nil
}

// StatementAt returns the statement whose range contains offset.
func (r *Result) StatementAt(offset int) *Statement {
	if r == nil {
		return nil
	}
	for _, stmt := range r.Statements {
		if stmt.Range.Contains(offset) {
			return stmt
		}
	}
	return nil
}

// StatementsIn returns the statements intersecting rng.
func (r *Result) StatementsIn(rng Range) []*Statement {
	if r == nil {
		return nil
	}
	var out []*Statement
	for _, stmt := range r.Statements {
		if stmt.Range.Intersects(rng) {
			out = append(out, stmt)
		}
	}
	return out
}

// CreatedTables returns the names of tables and views that the document
// creates itself, folded the way Token.Name folds identifiers.
func (r *Result) CreatedTables() map[string]struct{} {
	created := make(map[string]struct{})
	if r == nil {
		return created
	}
	for _, stmt := range r.Statements {
		if name, ok := createdTable(stmt.Tokens); ok {
			created[name] = struct{}{}
		}
	}
	return created
}

// createdTable matches
// CREATE [OR REPLACE] [TEMP|TEMPORARY|UNLOGGED|MATERIALIZED] TABLE|VIEW [IF NOT EXISTS] name
func createdTable(tokens []Token) (string, bool) {
	i := 0
	next := func(keywords ...string) bool {
		if i >= len(tokens) {
			return false
		}
		for _, kw := range keywords {
			if tokens[i].IsKeyword(kw) {
				i++
				return true
			}
		}
		return false
	}
	if !next("create") {
		return "", false
	}
	if next("or") && !next("replace") {
		return "", false
	}
	next("temp", "temporary", "unlogged", "materialized")
	if !next("table", "view") {
		return "", false
	}
	if next("if") && !(next("not") && next("exists")) {
		return "", false
	}
	chains := Chains(tokens[i:])
	if len(chains) == 0 || chains[0].Parts[0].Start != tokenStart(tokens, i) {
		return "", false
	}
	parts := chains[0].Parts
	return parts[len(parts)-1].Name(), true
}

func tokenStart(tokens []Token, i int) int {
	if i >= len(tokens) {
		return -1
	}
	return tokens[i].Start
}
