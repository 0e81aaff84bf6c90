// Package model defines the shared data model for the relevance engine:
// structural units extracted from source, the dependency edges between them,
// and the embedding records kept per unit.
package model

import (
	"fmt"
	"time"
)

// UnitKind classifies a structural unit.
type UnitKind string

const (
	KindFile     UnitKind = "file"
	KindModule   UnitKind = "module"
	KindClass    UnitKind = "class"
	KindFunction UnitKind = "function"
)

// StructuralUnit is a parsed code entity with a stable identity.
// Units are immutable once parsed; a file's units are regenerated wholesale
// when the file's content hash changes.
type StructuralUnit struct {
	ID          string   `json:"id"`
	Path        string   `json:"path"`
	Name        string   `json:"name,omitempty"`
	Kind        UnitKind `json:"kind"`
	Language    string   `json:"language"`
	StartByte   uint32   `json:"startByte"`
	EndByte     uint32   `json:"endByte"`
	StartLine   int      `json:"startLine"`
	EndLine     int      `json:"endLine"`
	ContentHash string   `json:"contentHash"`
}

// EdgeKind classifies a dependency edge.
type EdgeKind string

const (
	EdgeImports    EdgeKind = "imports"
	EdgeCalls      EdgeKind = "calls"
	EdgeInherits   EdgeKind = "inherits"
	EdgeReferences EdgeKind = "references"
)

// DependencyEdge is a directed relation between two structural units.
// Confidence is 1.0 for syntactically certain relations. Self-loops are
// invalid; duplicate (From, To, Kind) edges collapse to one.
type DependencyEdge struct {
	From       string   `json:"from"`
	To         string   `json:"to"`
	Kind       EdgeKind `json:"kind"`
	Confidence float64  `json:"confidence"`
}

// Key returns the identity of the edge. Upserts with the same key are
// last-write-wins.
func (e DependencyEdge) Key() string {
	return fmt.Sprintf("%s\x00%s\x00%s", e.From, e.To, e.Kind)
}

// Valid reports whether the edge satisfies the model invariants.
func (e DependencyEdge) Valid() bool {
	if e.From == "" || e.To == "" || e.From == e.To {
		return false
	}
	return e.Confidence >= 0 && e.Confidence <= 1
}

// EmbeddingRecord associates a structural unit with its embedding vector.
// At most one record exists per (unit id, model tag). A record whose
// content hash no longer matches the unit's hash is stale and must be
// excluded from queries until re-indexed.
type EmbeddingRecord struct {
	UnitID      string    `json:"unitId"`
	Vector      []float32 `json:"vector"`
	ModelTag    string    `json:"modelTag"`
	ContentHash string    `json:"contentHash"`
}

// Direction selects edge orientation for graph traversal.
type Direction string

const (
	DirIn   Direction = "in"
	DirOut  Direction = "out"
	DirBoth Direction = "both"
)

// ParseDirection validates a direction string.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirIn, DirOut, DirBoth:
		return Direction(s), nil
	default:
		return "", fmt.Errorf("invalid direction %q (want in, out, or both)", s)
	}
}

// FileBatch groups the parse output of a single file. Batches are the unit
// of atomic application to the graph store and the vector index.
type FileBatch struct {
	Path  string
	Units []StructuralUnit
	Edges []DependencyEdge
}

// FeedbackSignal is a user judgement on a recommended candidate.
type FeedbackSignal string

const (
	SignalRelevant   FeedbackSignal = "relevant"
	SignalIrrelevant FeedbackSignal = "irrelevant"
)

// ParseFeedbackSignal validates a signal string.
func ParseFeedbackSignal(s string) (FeedbackSignal, error) {
	switch FeedbackSignal(s) {
	case SignalRelevant, SignalIrrelevant:
		return FeedbackSignal(s), nil
	default:
		return "", fmt.Errorf("invalid feedback signal %q (want relevant or irrelevant)", s)
	}
}

// FeedbackEntry is one appended record in a session's feedback log.
type FeedbackEntry struct {
	CandidateID string         `json:"candidateId"`
	Signal      FeedbackSignal `json:"signal"`
	Timestamp   time.Time      `json:"timestamp"`
}
