package parser

import (
	"os"
	"sort"
	"strings"

	scippb "github.com/sourcegraph/scip/bindings/go/scip"
	"google.golang.org/protobuf/proto"

	"codescope/internal/errors"
	"codescope/internal/hashing"
	"codescope/internal/model"
)

// ImportSCIP loads a prebuilt SCIP index and converts its documents into
// per-file batches of structural units and dependency edges. This is a
// second parser source for repositories whose build already produces SCIP:
// definitions become units and cross-document references become file-level
// edges with syntactic certainty.
func ImportSCIP(path string) ([]model.FileBatch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.NotFound, err, "SCIP index not found at %s", path)
	}

	var index scippb.Index
	if err := proto.Unmarshal(data, &index); err != nil {
		return nil, errors.Wrap(errors.DecodeError, err, "failed to parse SCIP index at %s", path)
	}

	// First pass: where is each symbol defined?
	defDoc := make(map[string]string)
	for _, doc := range index.Documents {
		for _, occ := range doc.Occurrences {
			if occ.SymbolRoles&int32(scippb.SymbolRole_Definition) != 0 {
				defDoc[occ.Symbol] = doc.RelativePath
			}
		}
	}

	batches := make([]model.FileBatch, 0, len(index.Documents))
	for _, doc := range index.Documents {
		batches = append(batches, convertSCIPDocument(doc, defDoc))
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].Path < batches[j].Path })
	return batches, nil
}

func convertSCIPDocument(doc *scippb.Document, defDoc map[string]string) model.FileBatch {
	fileID := FileUnitID(doc.RelativePath)
	fileUnit := model.StructuralUnit{
		ID:          fileID,
		Path:        doc.RelativePath,
		Name:        doc.RelativePath,
		Kind:        model.KindFile,
		Language:    strings.ToLower(doc.Language),
		StartLine:   1,
		ContentHash: hashing.ShortID("scip-doc", doc.RelativePath, doc.Language),
	}

	batch := model.FileBatch{
		Path:  doc.RelativePath,
		Units: []model.StructuralUnit{fileUnit},
	}

	// Definitions in this document become units anchored at their ranges.
	for _, occ := range doc.Occurrences {
		if occ.SymbolRoles&int32(scippb.SymbolRole_Definition) == 0 {
			continue
		}
		if len(occ.Range) < 3 {
			continue
		}
		startLine := int(occ.Range[0]) + 1
		endLine := startLine
		if len(occ.Range) == 4 {
			endLine = int(occ.Range[2]) + 1
		}
		name := scipDisplayName(occ.Symbol)
		if name == "" {
			continue
		}
		kind := scipUnitKind(occ.Symbol)
		u := model.StructuralUnit{
			ID:          unitID(doc.RelativePath, kind, name, startLine),
			Path:        doc.RelativePath,
			Name:        name,
			Kind:        kind,
			Language:    strings.ToLower(doc.Language),
			StartLine:   startLine,
			EndLine:     endLine,
			ContentHash: fileUnit.ContentHash,
		}
		batch.Units = append(batch.Units, u)
		batch.Edges = append(batch.Edges, model.DependencyEdge{
			From:       u.ID,
			To:         fileID,
			Kind:       model.EdgeReferences,
			Confidence: 1.0,
		})
	}

	// References into other documents become file-level edges.
	for _, occ := range doc.Occurrences {
		if occ.SymbolRoles&int32(scippb.SymbolRole_Definition) != 0 {
			continue
		}
		target, ok := defDoc[occ.Symbol]
		if !ok || target == doc.RelativePath {
			continue
		}
		batch.Edges = append(batch.Edges, model.DependencyEdge{
			From:       fileID,
			To:         FileUnitID(target),
			Kind:       model.EdgeReferences,
			Confidence: 1.0,
		})
	}

	batch.Units = dedupeUnits(batch.Units)
	batch.Edges = dedupeEdges(batch.Edges)
	return batch
}

// scipDisplayName derives a readable name from a SCIP symbol string. The
// last descriptor segment carries the local name; local symbols keep their
// opaque id.
func scipDisplayName(symbol string) string {
	if strings.HasPrefix(symbol, "local ") {
		return ""
	}
	s := strings.TrimSuffix(symbol, ".")
	s = strings.TrimSuffix(s, "#")
	s = strings.TrimSuffix(s, "()")
	if i := strings.LastIndexAny(s, "/#."); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(s, "`")
	s = strings.TrimPrefix(s, "`")
	return s
}

// scipUnitKind maps the SCIP descriptor suffix onto a unit kind: `().` for
// methods and functions, `#` for types.
func scipUnitKind(symbol string) model.UnitKind {
	switch {
	case strings.HasSuffix(symbol, ")."), strings.HasSuffix(symbol, ")"):
		return model.KindFunction
	case strings.HasSuffix(symbol, "#"):
		return model.KindClass
	default:
		return model.KindModule
	}
}
