//go:build !cgo

package parser

import "context"

// noopExtractor stands in when the tree-sitter backend is unavailable.
// Parsing degrades to file units and scanned import edges.
type noopExtractor struct{}

func newExtractor() symbolExtractor {
	return noopExtractor{}
}

func (noopExtractor) extract(context.Context, string, []byte, Language) ([]symbol, error) {
	return nil, nil
}
