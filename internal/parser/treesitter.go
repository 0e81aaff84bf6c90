//go:build cgo

package parser

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/kotlin"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"codescope/internal/model"
)

// treeSitterExtractor extracts symbols with tree-sitter grammars.
type treeSitterExtractor struct {
	parser *sitter.Parser
}

func newExtractor() symbolExtractor {
	return &treeSitterExtractor{parser: sitter.NewParser()}
}

func (e *treeSitterExtractor) extract(ctx context.Context, _ string, content []byte, lang Language) ([]symbol, error) {
	tsLang := grammarFor(lang)
	if tsLang == nil {
		return nil, nil
	}

	e.parser.SetLanguage(tsLang)
	tree, err := e.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, err
	}
	root := tree.RootNode()

	var symbols []symbol

	for _, fn := range findNodes(root, functionNodeTypes(lang)) {
		if sym, ok := functionSymbol(fn, content, lang, ""); ok {
			symbols = append(symbols, sym)
		}
	}

	for _, cls := range findNodes(root, classNodeTypes(lang)) {
		sym, ok := classSymbol(cls, content, lang)
		if !ok {
			continue
		}
		symbols = append(symbols, sym)
		for _, m := range findNodes(cls, methodNodeTypes(lang)) {
			if ms, ok := functionSymbol(m, content, lang, sym.name); ok {
				symbols = append(symbols, ms)
			}
		}
	}

	return symbols, nil
}

func grammarFor(lang Language) *sitter.Language {
	switch lang {
	case LangGo:
		return golang.GetLanguage()
	case LangJavaScript:
		return javascript.GetLanguage()
	case LangTypeScript:
		return typescript.GetLanguage()
	case LangTSX:
		return tsx.GetLanguage()
	case LangPython:
		return python.GetLanguage()
	case LangRust:
		return rust.GetLanguage()
	case LangJava:
		return java.GetLanguage()
	case LangKotlin:
		return kotlin.GetLanguage()
	default:
		return nil
	}
}

func functionNodeTypes(lang Language) []string {
	switch lang {
	case LangGo:
		return []string{"function_declaration", "method_declaration"}
	case LangJavaScript, LangTypeScript, LangTSX:
		return []string{"function_declaration", "generator_function_declaration"}
	case LangPython:
		return []string{"function_definition"}
	case LangRust:
		return []string{"function_item"}
	case LangJava:
		// Methods live inside class bodies, handled via classes.
		return nil
	case LangKotlin:
		return []string{"function_declaration"}
	default:
		return nil
	}
}

func classNodeTypes(lang Language) []string {
	switch lang {
	case LangGo:
		return []string{"type_declaration"}
	case LangJavaScript, LangTypeScript, LangTSX:
		return []string{"class_declaration", "interface_declaration"}
	case LangPython:
		return []string{"class_definition"}
	case LangRust:
		return []string{"struct_item", "enum_item", "trait_item"}
	case LangJava:
		return []string{"class_declaration", "interface_declaration", "enum_declaration"}
	case LangKotlin:
		return []string{"class_declaration", "interface_declaration", "object_declaration"}
	default:
		return nil
	}
}

func methodNodeTypes(lang Language) []string {
	switch lang {
	case LangGo:
		return nil // Go methods are top level with receivers
	case LangJavaScript, LangTypeScript, LangTSX:
		return []string{"method_definition"}
	case LangPython:
		return []string{"function_definition"}
	case LangJava:
		return []string{"method_declaration", "constructor_declaration"}
	case LangKotlin:
		return []string{"function_declaration"}
	default:
		return nil
	}
}

func callNodeTypes(lang Language) []string {
	switch lang {
	case LangGo, LangJavaScript, LangTypeScript, LangTSX, LangRust, LangKotlin:
		return []string{"call_expression"}
	case LangPython:
		return []string{"call"}
	case LangJava:
		return []string{"method_invocation", "object_creation_expression"}
	default:
		return nil
	}
}

func functionSymbol(node *sitter.Node, content []byte, lang Language, parent string) (symbol, bool) {
	name := nodeName(node, content, lang)
	if name == "" {
		return symbol{}, false
	}
	kind := model.KindFunction
	return symbol{
		name:      name,
		kind:      kind,
		startByte: node.StartByte(),
		endByte:   node.EndByte(),
		startLine: int(node.StartPoint().Row) + 1,
		endLine:   int(node.EndPoint().Row) + 1,
		parent:    parent,
		calls:     calleeNames(node, content, lang),
	}, true
}

func classSymbol(node *sitter.Node, content []byte, lang Language) (symbol, bool) {
	name := className(node, content, lang)
	if name == "" {
		return symbol{}, false
	}
	return symbol{
		name:      name,
		kind:      model.KindClass,
		startByte: node.StartByte(),
		endByte:   node.EndByte(),
		startLine: int(node.StartPoint().Row) + 1,
		endLine:   int(node.EndPoint().Row) + 1,
		inherits:  superclassNames(node, content, lang),
	}, true
}

// nodeName extracts the declared name of a function-like node.
func nodeName(node *sitter.Node, content []byte, lang Language) string {
	if n := node.ChildByFieldName("name"); n != nil {
		return string(content[n.StartByte():n.EndByte()])
	}
	want := "identifier"
	if lang == LangKotlin {
		want = "simple_identifier"
	}
	for i := uint32(0); i < node.ChildCount(); i++ {
		child := node.Child(int(i))
		if child != nil && child.Type() == want {
			return string(content[child.StartByte():child.EndByte()])
		}
	}
	return ""
}

// className extracts the declared name of a class-like node.
func className(node *sitter.Node, content []byte, lang Language) string {
	if lang == LangGo {
		// type_declaration wraps type_spec, which carries the name.
		for i := uint32(0); i < node.ChildCount(); i++ {
			child := node.Child(int(i))
			if child != nil && child.Type() == "type_spec" {
				if n := child.ChildByFieldName("name"); n != nil {
					return string(content[n.StartByte():n.EndByte()])
				}
			}
		}
		return ""
	}
	return nodeName(node, content, lang)
}

// calleeNames collects the simple names of functions called inside node.
func calleeNames(node *sitter.Node, content []byte, lang Language) []string {
	var out []string
	for _, call := range findNodes(node, callNodeTypes(lang)) {
		target := call.ChildByFieldName("function")
		if target == nil {
			target = call.ChildByFieldName("name")
		}
		if target == nil {
			continue
		}
		name := string(content[target.StartByte():target.EndByte()])
		// For selector calls keep the final segment; same-file resolution
		// only matches simple names anyway.
		if i := strings.LastIndexByte(name, '.'); i >= 0 {
			name = name[i+1:]
		}
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// superclassNames collects names a class extends or implements.
func superclassNames(node *sitter.Node, content []byte, lang Language) []string {
	var out []string
	collect := func(n *sitter.Node) {
		for i := uint32(0); i < n.ChildCount(); i++ {
			child := n.Child(int(i))
			if child == nil {
				continue
			}
			switch child.Type() {
			case "identifier", "type_identifier", "attribute", "scoped_type_identifier":
				out = append(out, string(content[child.StartByte():child.EndByte()]))
			}
		}
	}

	switch lang {
	case LangPython:
		if args := node.ChildByFieldName("superclasses"); args != nil {
			collect(args)
		}
	case LangJavaScript, LangTypeScript, LangTSX:
		for i := uint32(0); i < node.ChildCount(); i++ {
			child := node.Child(int(i))
			if child != nil && child.Type() == "class_heritage" {
				collect(child)
			}
		}
	case LangJava:
		if sc := node.ChildByFieldName("superclass"); sc != nil {
			collect(sc)
		}
		if ifc := node.ChildByFieldName("interfaces"); ifc != nil {
			collect(ifc)
		}
	}
	return out
}

// findNodes finds all nodes of the given types in the subtree.
func findNodes(root *sitter.Node, types []string) []*sitter.Node {
	if len(types) == 0 || root == nil {
		return nil
	}

	typeSet := make(map[string]struct{}, len(types))
	for _, t := range types {
		typeSet[t] = struct{}{}
	}

	var result []*sitter.Node
	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}
		if _, ok := typeSet[node.Type()]; ok {
			result = append(result, node)
		}
		for i := uint32(0); i < node.ChildCount(); i++ {
			walk(node.Child(int(i)))
		}
	}
	walk(root)
	return result
}
