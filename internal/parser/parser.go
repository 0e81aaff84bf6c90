package parser

import (
	"bytes"
	"context"
	"path/filepath"
	"sort"
	"strconv"
	"unicode/utf8"

	"codescope/internal/errors"
	"codescope/internal/hashing"
	"codescope/internal/model"
)

// Parser extracts structural units and dependency edges from source files.
// The zero value is not usable; construct with New.
type Parser struct {
	extractor symbolExtractor
}

// symbolExtractor is the language-aware extraction backend. The tree-sitter
// implementation is compiled in under cgo; without cgo a no-op stands in and
// parsing degrades to file units plus import edges.
type symbolExtractor interface {
	extract(ctx context.Context, path string, content []byte, lang Language) ([]symbol, error)
}

// symbol is a raw extracted entity before id assignment.
type symbol struct {
	name      string
	kind      model.UnitKind
	startByte uint32
	endByte   uint32
	startLine int // 1-indexed
	endLine   int
	parent    string // enclosing class name, if any
	calls     []string
	inherits  []string
}

// New creates a parser with the default extraction backend.
func New() *Parser {
	return &Parser{extractor: newExtractor()}
}

// FileUnitID returns the stable id of the file-level unit for path. It does
// not depend on content, so cross-file edges survive re-parsing.
func FileUnitID(path string) string {
	return "f:" + hashing.ShortID("file", path)
}

// ModuleUnitID returns the stable id of the module unit for an import path.
func ModuleUnitID(importPath string) string {
	return "m:" + hashing.ShortID("module", importPath)
}

func unitID(path string, kind model.UnitKind, name string, startLine int) string {
	return "u:" + hashing.ShortID("unit", path, string(kind), name, strconv.Itoa(startLine))
}

// Parse extracts units and edges from one file's content.
//
// The file-level unit is always emitted, even for malformed or unsupported
// input. Unsupported languages yield the file unit with no edges and no
// error. Undecodable (non-UTF-8) content fails with DecodeError.
func (p *Parser) Parse(ctx context.Context, path string, content []byte, lang Language) ([]model.StructuralUnit, []model.DependencyEdge, error) {
	if !utf8.Valid(content) || bytes.IndexByte(content, 0) >= 0 {
		return nil, nil, errors.New(errors.DecodeError, "file %s is not decodable text", path)
	}

	contentHash := hashing.ContentHash(content)
	fileUnit := model.StructuralUnit{
		ID:          FileUnitID(path),
		Path:        path,
		Name:        path,
		Kind:        model.KindFile,
		Language:    string(lang),
		StartByte:   0,
		EndByte:     uint32(len(content)),
		StartLine:   1,
		EndLine:     countLines(content),
		ContentHash: contentHash,
	}

	units := []model.StructuralUnit{fileUnit}
	var edges []model.DependencyEdge

	if !Supported(lang) {
		return units, nil, nil
	}

	// Imports come from a line scanner shared by all builds, so the import
	// graph is identical with and without the tree-sitter backend.
	// Module units carry no path: the same import emitted by two files is
	// one shared unit, owned by neither. The graph store drops it only
	// when the last importing file stops referencing it.
	for _, imp := range ScanImports(content, lang) {
		modUnit := model.StructuralUnit{
			ID:          ModuleUnitID(imp),
			Name:        imp,
			Kind:        model.KindModule,
			Language:    string(lang),
			ContentHash: hashing.ContentHash([]byte(imp)),
		}
		units = append(units, modUnit)
		edges = append(edges, model.DependencyEdge{
			From:       fileUnit.ID,
			To:         modUnit.ID,
			Kind:       model.EdgeImports,
			Confidence: 1.0,
		})
	}

	symbols, err := p.extractor.extract(ctx, path, content, lang)
	if err != nil {
		// Malformed-but-decodable input degrades to what the scanner found.
		return dedupeUnits(units), dedupeEdges(edges), nil
	}

	byName := make(map[string]string) // symbol name -> unit id, same file
	for _, sym := range symbols {
		u := model.StructuralUnit{
			ID:          unitID(path, sym.kind, qualifiedName(sym), sym.startLine),
			Path:        path,
			Name:        qualifiedName(sym),
			Kind:        sym.kind,
			Language:    string(lang),
			StartByte:   sym.startByte,
			EndByte:     sym.endByte,
			StartLine:   sym.startLine,
			EndLine:     sym.endLine,
			ContentHash: contentHash,
		}
		units = append(units, u)
		if _, taken := byName[sym.name]; !taken {
			byName[sym.name] = u.ID
		}
		// Sub-units hang off their file so graph proximity can cross from
		// symbol hits to file-level import edges.
		edges = append(edges, model.DependencyEdge{
			From:       u.ID,
			To:         fileUnit.ID,
			Kind:       model.EdgeReferences,
			Confidence: 1.0,
		})
	}

	// Same-file call and inheritance edges, resolved by name. Name-based
	// resolution is not syntactic certainty, so confidence stays below 1.
	for _, sym := range symbols {
		fromID := unitID(path, sym.kind, qualifiedName(sym), sym.startLine)
		for _, callee := range sym.calls {
			if toID, ok := byName[callee]; ok && toID != fromID {
				edges = append(edges, model.DependencyEdge{
					From:       fromID,
					To:         toID,
					Kind:       model.EdgeCalls,
					Confidence: 0.9,
				})
			}
		}
		for _, super := range sym.inherits {
			if toID, ok := byName[super]; ok && toID != fromID {
				edges = append(edges, model.DependencyEdge{
					From:       fromID,
					To:         toID,
					Kind:       model.EdgeInherits,
					Confidence: 0.9,
				})
			}
		}
	}

	return dedupeUnits(units), dedupeEdges(edges), nil
}

// ParseFile is Parse with the language inferred from the path extension.
func (p *Parser) ParseFile(ctx context.Context, path string, content []byte) ([]model.StructuralUnit, []model.DependencyEdge, error) {
	lang, _ := LanguageFromExtension(filepath.Ext(path))
	return p.Parse(ctx, path, content, lang)
}

func qualifiedName(s symbol) string {
	if s.parent != "" {
		return s.parent + "." + s.name
	}
	return s.name
}

func dedupeUnits(units []model.StructuralUnit) []model.StructuralUnit {
	seen := make(map[string]struct{}, len(units))
	out := units[:0]
	for _, u := range units {
		if _, dup := seen[u.ID]; dup {
			continue
		}
		seen[u.ID] = struct{}{}
		out = append(out, u)
	}
	return out
}

func dedupeEdges(edges []model.DependencyEdge) []model.DependencyEdge {
	seen := make(map[string]struct{}, len(edges))
	out := edges[:0]
	for _, e := range edges {
		if !e.Valid() {
			continue
		}
		if _, dup := seen[e.Key()]; dup {
			continue
		}
		seen[e.Key()] = struct{}{}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 1
	}
	n := bytes.Count(content, []byte{'\n'}) + 1
	if content[len(content)-1] == '\n' {
		n--
	}
	if n < 1 {
		n = 1
	}
	return n
}
