package guardian

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// PythonStrategy collects every function and method definition, nested ones included.
type PythonStrategy struct{}

func (PythonStrategy) LanguageID() string { return languagePython }

func (PythonStrategy) Symbols(_ string, content []byte) ([]string, error) {
	names := make([]string, 0)
	err := parseSyntaxTree(pythonSyntaxLanguage, content, func(root *sitter.Node) {
		walkTreePreOrder(root, func(node *sitter.Node) {
			if node.Kind() == "function_definition" {
				names = appendNonEmpty(names, fieldText(node, "name", content))
			}
		})
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// TypeScriptStrategy handles .ts and .tsx sources: declared functions, class
// methods and function-valued variables.
type TypeScriptStrategy struct{}

func (TypeScriptStrategy) LanguageID() string { return languageTypeScript }

func (TypeScriptStrategy) Symbols(path string, content []byte) ([]string, error) {
	language := typeScriptSyntaxLanguage
	if isTypeScriptTSXPath(path) {
		language = typeScriptTSXLanguage
	}

	names := make([]string, 0)
	err := parseSyntaxTree(language, content, func(root *sitter.Node) {
		walkTreePreOrder(root, func(node *sitter.Node) {
			switch node.Kind() {
			case "function_declaration", "generator_function_declaration", "method_definition", "abstract_method_signature":
				names = appendNonEmpty(names, fieldText(node, "name", content))
			case "variable_declarator":
				value := node.ChildByFieldName("value")
				if value == nil {
					return
				}
				switch value.Kind() {
				case "arrow_function", "function_expression", "function", "generator_function":
					nameNode := node.ChildByFieldName("name")
					if nameNode != nil && nameNode.Kind() == "identifier" {
						names = appendNonEmpty(names, nodeText(nameNode, content))
					}
				}
			}
		})
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// RustStrategy collects fn items, including impl and trait methods.
type RustStrategy struct{}

func (RustStrategy) LanguageID() string { return languageRust }

func (RustStrategy) Symbols(_ string, content []byte) ([]string, error) {
	names := make([]string, 0)
	err := parseSyntaxTree(rustSyntaxLanguage, content, func(root *sitter.Node) {
		walkTreePreOrder(root, func(node *sitter.Node) {
			switch node.Kind() {
			case "function_item", "function_signature_item":
				names = appendNonEmpty(names, fieldText(node, "name", content))
			}
		})
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

func appendNonEmpty(names []string, name string) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return names
	}
	return append(names, name)
}
