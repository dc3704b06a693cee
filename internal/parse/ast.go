package parse

import (
	"errors"
	"fmt"
	"strings"

	"github.com/CovenantSQL/sqlparser"
)

type NodeKind int

const (
	NodeRelation NodeKind = iota + 1
	NodeColumn
)

func (k NodeKind) String() string {
	switch k {
	case NodeRelation:
		return "relation"
	case NodeColumn:
		return "column"
	default:
		return "unknown"
	}
}

// ASTNode is a resolved reference inside a statement. Qualifier is the schema
// of a relation or the table (or alias) of a column.
type ASTNode struct {
	Kind      NodeKind
	Name      string
	Qualifier string
	Range     Range
}

// AST is the enriched view of a statement that the semantic parser accepted.
// Ranges are relative to the statement text.
type AST struct {
	Nodes []ASTNode
}

// NodeAt returns the smallest node containing offset, or nil.
func (a *AST) NodeAt(offset int) *ASTNode {
	if a == nil {
		return nil
	}
	var found *ASTNode
	for i := range a.Nodes {
		node := &a.Nodes[i]
		if !node.Range.Contains(offset) {
			continue
		}
		if found == nil || node.Range.Len() < found.Range.Len() {
			found = node
		}
	}
	return found
}

// Relations returns the relation nodes in source order.
func (a *AST) Relations() []ASTNode {
	if a == nil {
		return nil
	}
	var out []ASTNode
	for _, node := range a.Nodes {
		if node.Kind == NodeRelation {
			out = append(out, node)
		}
	}
	return out
}

var errNotAccepted = errors.New("statement not accepted by semantic parser")

type refKey struct {
	qualifier string
	name      string
}

func newRefKey(qualifier, name string) refKey {
	return refKey{qualifier: strings.ToLower(qualifier), name: strings.ToLower(name)}
}

// BuildAST parses text with the semantic parser and maps the table and
// column references it finds back onto the identifier chains of tokens.
func BuildAST(text string, tokens []Token) (ast *AST, err error) {
	defer func() {
		if r := recover(); r != nil {
			ast = nil
			err = fmt.Errorf("%w: %v", errNotAccepted, r)
		}
	}()

	stmt, err := sqlparser.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errNotAccepted, err)
	}

	relations := make(map[refKey]struct{})
	columns := make(map[refKey]struct{})
	addRelation := func(table sqlparser.TableName) {
		if table.IsEmpty() {
			return
		}
		relations[newRefKey(table.Qualifier.String(), table.Name.String())] = struct{}{}
	}
	err = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch n := node.(type) {
		case *sqlparser.ColName:
			if n != nil {
				columns[newRefKey(n.Qualifier.Name.String(), n.Name.String())] = struct{}{}
			}
			return false, nil
		case sqlparser.TableName:
			addRelation(n)
		case *sqlparser.TableName:
			if n != nil {
				addRelation(*n)
			}
		}
		return true, nil
	}, stmt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errNotAccepted, err)
	}

	ast = &AST{}
	for _, chain := range Chains(tokens) {
		if node, ok := classifyChain(tokens, chain, relations, columns); ok {
			ast.Nodes = append(ast.Nodes, node)
		}
	}
	return ast, nil
}

// classifyChain labels chain by what the semantic parser saw under the same
// name. A name that is both a table and a column, as in
// "select orders from orders", is a relation only in relation position.
func classifyChain(tokens []Token, chain Chain, relations, columns map[refKey]struct{}) (ASTNode, bool) {
	parts := chain.Parts
	last := parts[len(parts)-1]
	qualifier := ""
	if len(parts) >= 2 {
		qualifier = parts[len(parts)-2].Name()
	}
	key := newRefKey(qualifier, last.Name())

	if _, ok := relations[key]; ok && InRelationPosition(tokens, chain.Index) {
		return ASTNode{Kind: NodeRelation, Name: last.Name(), Qualifier: qualifier, Range: chain.Range()}, true
	}
	if _, ok := columns[key]; ok {
		return ASTNode{Kind: NodeColumn, Name: last.Name(), Qualifier: qualifier, Range: chain.Range()}, true
	}
	return ASTNode{}, false
}
