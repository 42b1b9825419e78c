package guardian

import (
	"go/ast"
	"go/parser"
	"go/token"
)

// GoStrategy uses the standard Go parser. Methods are reported as Type.Method.
type GoStrategy struct{}

func (GoStrategy) LanguageID() string { return languageGo }

func (GoStrategy) Symbols(path string, content []byte) ([]string, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, parser.SkipObjectResolution)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(file.Decls))
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Name == nil {
			continue
		}
		name := fn.Name.Name
		if recv := receiverTypeName(fn); recv != "" {
			name = recv + "." + name
		}
		names = append(names, name)
	}
	return names, nil
}

func receiverTypeName(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return ""
	}
	expr := fn.Recv.List[0].Type
	for {
		switch t := expr.(type) {
		case *ast.StarExpr:
			expr = t.X
		case *ast.IndexExpr:
			expr = t.X
		case *ast.IndexListExpr:
			expr = t.X
		case *ast.Ident:
			return t.Name
		default:
			return ""
		}
	}
}
