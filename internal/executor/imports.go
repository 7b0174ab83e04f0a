package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"

	"canvasflow/internal/domain"
	"canvasflow/internal/locator"
)

// ImportName is one imported binding: Name as exported by the module,
// Alias as seen by the script (equal to Name when not renamed).
type ImportName struct {
	Name  string
	Alias string
}

// Import is one module referenced by an import statement. Statements that
// import several modules yield one Import each, sharing Start and End.
type Import struct {
	Module string
	URL    string

	Start, End         uint32 // the whole statement
	SpecStart, SpecEnd uint32 // the module name as written
	Line               int

	Default   string
	Namespace string
	Names     []ImportName
}

// ParseImports finds the import statements of a script and resolves each
// bare package name against cdn. URLs are kept as they are. Relative
// paths and names with a path separator fail with domain.ErrInvalidImport.
func ParseImports(ctx context.Context, code, lang, cdn string) ([]Import, error) {
	parser := sitter.NewParser()
	switch lang {
	case locator.LangJavaScript, locator.LangTypeScript:
		parser.SetLanguage(javascript.GetLanguage())
	case locator.LangPython:
		parser.SetLanguage(python.GetLanguage())
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedLanguage, lang)
	}

	src := []byte(code)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse imports: %w", err)
	}
	defer tree.Close()

	var imports []Import
	root := tree.RootNode()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		var found []Import
		var err error
		switch node.Type() {
		case "import_statement":
			if lang == locator.LangPython {
				found, err = pythonImport(node, src)
			} else {
				found, err = jsImport(node, src)
			}
		case "import_from_statement":
			found, err = pythonFromImport(node, src)
		}
		if err != nil {
			return nil, err
		}
		imports = append(imports, found...)
	}

	for i := range imports {
		if err := resolveURL(&imports[i], lang, cdn, code); err != nil {
			return nil, err
		}
	}
	return imports, nil
}

func resolveURL(imp *Import, lang, cdn, code string) error {
	stmt := code[imp.Start:imp.End]
	if strings.HasPrefix(imp.Module, "https://") {
		imp.URL = imp.Module
		return nil
	}
	sep := "/"
	if lang == locator.LangPython {
		sep = "."
	}
	if imp.Module == "" || strings.Contains(imp.Module, sep) || strings.HasPrefix(imp.Module, ".") {
		return fmt.Errorf("%w: only package imports are allowed: %s", domain.ErrInvalidImport, stmt)
	}
	imp.URL = cdn + imp.Module
	return nil
}

// RewriteImports replaces each module name in code with its CDN URL.
func RewriteImports(code string, imports []Import, quote func(string) string) string {
	sorted := append([]Import(nil), imports...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SpecStart > sorted[j].SpecStart })
	for _, imp := range sorted {
		if imp.URL == imp.Module {
			continue
		}
		code = code[:imp.SpecStart] + quote(imp.URL) + code[imp.SpecEnd:]
	}
	return code
}

func text(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return n.Content(src)
}

// jsImport reads `import a, {b as c} from "m"`, `import * as ns from "m"`
// and `import "m"`.
func jsImport(node *sitter.Node, src []byte) ([]Import, error) {
	source := node.ChildByFieldName("source")
	if source == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidImport, text(node, src))
	}
	imp := Import{
		Module:    strings.Trim(text(source, src), "\"'`"),
		Start:     node.StartByte(),
		End:       node.EndByte(),
		SpecStart: source.StartByte(),
		SpecEnd:   source.EndByte(),
		Line:      int(node.StartPoint().Row) + 1,
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		clause := node.NamedChild(i)
		if clause.Type() != "import_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			part := clause.NamedChild(j)
			switch part.Type() {
			case "identifier":
				imp.Default = text(part, src)
			case "namespace_import":
				for k := 0; k < int(part.NamedChildCount()); k++ {
					if id := part.NamedChild(k); id.Type() == "identifier" {
						imp.Namespace = text(id, src)
					}
				}
			case "named_imports":
				for k := 0; k < int(part.NamedChildCount()); k++ {
					spec := part.NamedChild(k)
					if spec.Type() != "import_specifier" {
						continue
					}
					name := text(spec.ChildByFieldName("name"), src)
					alias := text(spec.ChildByFieldName("alias"), src)
					if alias == "" {
						alias = name
					}
					imp.Names = append(imp.Names, ImportName{Name: name, Alias: alias})
				}
			}
		}
	}
	return []Import{imp}, nil
}

// pythonImport reads `import a, b as c`.
func pythonImport(node *sitter.Node, src []byte) ([]Import, error) {
	var out []Import
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		imp := Import{Start: node.StartByte(), End: node.EndByte(), Line: int(node.StartPoint().Row) + 1}
		switch child.Type() {
		case "dotted_name":
			imp.Module = text(child, src)
			imp.SpecStart, imp.SpecEnd = child.StartByte(), child.EndByte()
			imp.Namespace = imp.Module
		case "aliased_import":
			name := child.ChildByFieldName("name")
			imp.Module = text(name, src)
			imp.SpecStart, imp.SpecEnd = name.StartByte(), name.EndByte()
			imp.Namespace = text(child.ChildByFieldName("alias"), src)
		default:
			continue
		}
		out = append(out, imp)
	}
	return out, nil
}

// pythonFromImport reads `from m import a, b as c`.
func pythonFromImport(node *sitter.Node, src []byte) ([]Import, error) {
	module := node.ChildByFieldName("module_name")
	if module == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidImport, text(node, src))
	}
	imp := Import{
		Module:    text(module, src),
		Start:     node.StartByte(),
		End:       node.EndByte(),
		SpecStart: module.StartByte(),
		SpecEnd:   module.EndByte(),
		Line:      int(node.StartPoint().Row) + 1,
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.StartByte() == module.StartByte() {
			continue
		}
		switch child.Type() {
		case "wildcard_import":
			return nil, fmt.Errorf("%w: wildcard imports are not supported: %s", domain.ErrInvalidImport, text(node, src))
		case "dotted_name":
			n := text(child, src)
			imp.Names = append(imp.Names, ImportName{Name: n, Alias: n})
		case "aliased_import":
			imp.Names = append(imp.Names, ImportName{
				Name:  text(child.ChildByFieldName("name"), src),
				Alias: text(child.ChildByFieldName("alias"), src),
			})
		}
	}
	return []Import{imp}, nil
}

// lowerImports replaces every import statement with replace(group), where
// group holds the imports of that statement, padded with newlines so the
// statement still spans the same lines.
func lowerImports(code string, imports []Import, replace func([]Import) string) string {
	var b strings.Builder
	pos := uint32(0)
	for i := 0; i < len(imports); {
		j := i
		for j < len(imports) && imports[j].Start == imports[i].Start {
			j++
		}
		group := imports[i:j]
		stmt := code[group[0].Start:group[0].End]
		b.WriteString(code[pos:group[0].Start])
		b.WriteString(replace(group))
		b.WriteString(strings.Repeat("\n", strings.Count(stmt, "\n")))
		pos = group[0].End
		i = j
	}
	b.WriteString(code[pos:])
	return b.String()
}
