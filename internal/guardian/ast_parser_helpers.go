package guardian

import (
	"errors"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

var errSyntax = errors.New("syntax error")

var (
	pythonSyntaxLanguage     = sitter.NewLanguage(tree_sitter_python.Language())
	rustSyntaxLanguage       = sitter.NewLanguage(tree_sitter_rust.Language())
	typeScriptSyntaxLanguage = sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
	typeScriptTSXLanguage    = sitter.NewLanguage(tree_sitter_typescript.LanguageTSX())
)

func newParserForLanguage(language *sitter.Language) (*sitter.Parser, error) {
	parser := sitter.NewParser()
	if err := parser.SetLanguage(language); err != nil {
		parser.Close()
		return nil, err
	}
	return parser, nil
}

// parseSyntaxTree parses content and hands the root node to visit. Trees with
// error nodes are rejected so a broken file yields no symbols at all.
func parseSyntaxTree(language *sitter.Language, content []byte, visit func(root *sitter.Node)) error {
	parser, err := newParserForLanguage(language)
	if err != nil {
		return err
	}
	defer parser.Close()

	tree := parser.Parse(content, nil)
	if tree == nil {
		return errSyntax
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return errSyntax
	}
	if root.HasError() {
		return errSyntax
	}
	visit(root)
	return nil
}

func nodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	return node.Utf8Text(source)
}

func fieldText(node *sitter.Node, field string, source []byte) string {
	if node == nil {
		return ""
	}
	return nodeText(node.ChildByFieldName(field), source)
}

func walkTreePreOrder(root *sitter.Node, visit func(*sitter.Node)) {
	if root == nil || visit == nil {
		return
	}

	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visit(node)

		for i := int(node.ChildCount()) - 1; i >= 0; i-- {
			child := node.Child(uint(i))
			if child != nil {
				stack = append(stack, child)
			}
		}
	}
}
