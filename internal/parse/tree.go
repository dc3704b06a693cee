package parse

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/sql"
)

// Node is a copy of the interesting parts of a syntax tree node, so callers
// never hold on to cgo-backed nodes.
type Node struct {
	Type  string
	Range Range
}

func (n Node) IsKeyword() bool {
	return strings.HasPrefix(n.Type, "keyword_")
}

// SyntaxError is an ERROR or MISSING node of a syntax tree.
type SyntaxError struct {
	Range   Range
	Message string
}

// Tree is a concrete syntax tree of one statement. The underlying tree is
// released by the binding's finalizer; a Tree can be shared by documents that
// are still being read after a newer version replaced them.
type Tree struct {
	mu   sync.Mutex
	tree *sitter.Tree
	size int
}

// ParseTree builds the syntax tree of text. It only fails when ctx is done.
func ParseTree(ctx context.Context, text string) (*Tree, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(sql.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, []byte(text))
	if err != nil {
		return nil, fmt.Errorf("parse syntax tree: %w", err)
	}
	return &Tree{tree: tree, size: len(text)}, nil
}

// NodeAt returns the smallest node whose range contains offset.
func (t *Tree) NodeAt(offset int) (Node, bool) {
	if t == nil || offset < 0 || offset >= t.size {
		return Node{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	node := t.tree.RootNode()
	if node == nil || !nodeContains(node, offset) {
		return Node{}, false
	}
	for {
		var next *sitter.Node
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			if child != nil && nodeContains(child, offset) {
				next = child
				break
			}
		}
		if next == nil {
			break
		}
		node = next
	}
	return Node{Type: node.Type(), Range: nodeRange(node)}, true
}

// Errors returns the ERROR and MISSING nodes of the tree in document order.
func (t *Tree) Errors() []SyntaxError {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []SyntaxError
	collectErrors(t.tree.RootNode(), &errs)
	return errs
}

func collectErrors(node *sitter.Node, errs *[]SyntaxError) {
	if node == nil {
		return
	}
	switch {
	case node.IsMissing():
		*errs = append(*errs, SyntaxError{
			Range:   nodeRange(node),
			Message: fmt.Sprintf("syntax error: missing %s", strings.TrimPrefix(node.Type(), "keyword_")),
		})
		return
	case node.IsError():
		*errs = append(*errs, SyntaxError{
			Range:   nodeRange(node),
			Message: "syntax error",
		})
		return
	case !node.HasError():
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectErrors(node.Child(i), errs)
	}
}

func nodeContains(node *sitter.Node, offset int) bool {
	start, end := int(node.StartByte()), int(node.EndByte())
	return start < end && start <= offset && offset < end
}

func nodeRange(node *sitter.Node) Range {
	return Range{Start: int(node.StartByte()), End: int(node.EndByte())}
}
