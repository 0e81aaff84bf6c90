// Package vecindex provides the vector-similarity index over structural
// units. The index stores vectors opaquely; embedding generation belongs to
// the coordinator's external provider.
package vecindex

import (
	"math"
	"sort"
	"sync"

	"codescope/internal/errors"
	"codescope/internal/model"
)

// Match is one query result: a unit and its cosine similarity to the query
// vector.
type Match struct {
	UnitID     string  `json:"unitId"`
	Similarity float64 `json:"similarity"`
}

// Filter restricts query results to units it accepts. A nil Filter accepts
// everything.
type Filter func(unitID string) bool

// Index is the capability surface the ranking engine depends on.
type Index interface {
	// Upsert inserts or replaces the record for (unit id, model tag).
	Upsert(rec model.EmbeddingRecord) error
	// Query returns the k most similar units by cosine similarity,
	// descending, ties broken by unit id ascending. Stale records are
	// excluded.
	Query(vector []float32, k int, filter Filter) []Match
	// SetUnitHash records the current content hash for a unit. Records
	// whose hash differs are stale until re-indexed.
	SetUnitHash(unitID, contentHash string)
	// RemoveUnit drops all records for a unit.
	RemoveUnit(unitID string)
	// Len returns the number of live (non-stale) records.
	Len() int
}

// Memory is the in-memory Index implementation.
type Memory struct {
	mu      sync.RWMutex
	records map[string]map[string]model.EmbeddingRecord // unit id -> model tag -> record
	hashes  map[string]string                           // unit id -> current content hash
}

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]map[string]model.EmbeddingRecord),
		hashes:  make(map[string]string),
	}
}

// Upsert inserts or replaces the record for (unit id, model tag).
func (m *Memory) Upsert(rec model.EmbeddingRecord) error {
	if rec.UnitID == "" {
		return errors.New(errors.InvalidArgument, "embedding record with empty unit id")
	}
	if len(rec.Vector) == 0 {
		return errors.New(errors.InvalidArgument, "embedding record for %s with empty vector", rec.UnitID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	tags := m.records[rec.UnitID]
	if tags == nil {
		tags = make(map[string]model.EmbeddingRecord)
		m.records[rec.UnitID] = tags
	}
	tags[rec.ModelTag] = rec
	return nil
}

// SetUnitHash records the current content hash for a unit.
func (m *Memory) SetUnitHash(unitID, contentHash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[unitID] = contentHash
}

// RemoveUnit drops all records and the hash for a unit.
func (m *Memory) RemoveUnit(unitID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, unitID)
	delete(m.hashes, unitID)
}

// Len returns the number of live records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for unitID, tags := range m.records {
		for _, rec := range tags {
			if m.liveLocked(unitID, rec) {
				n++
			}
		}
	}
	return n
}

// Query returns the k most similar live units. Results are ordered by
// similarity descending with ties broken by unit id ascending, so repeated
// queries over the same index state are identical.
func (m *Memory) Query(vector []float32, k int, filter Filter) []Match {
	if len(vector) == 0 || k <= 0 {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]Match, 0, len(m.records))
	for unitID, tags := range m.records {
		if filter != nil && !filter(unitID) {
			continue
		}
		best := math.Inf(-1)
		found := false
		for _, rec := range tags {
			if !m.liveLocked(unitID, rec) {
				continue
			}
			if len(rec.Vector) != len(vector) {
				continue
			}
			if sim, ok := cosine(vector, rec.Vector); ok && sim > best {
				best = sim
				found = true
			}
		}
		if found {
			matches = append(matches, Match{UnitID: unitID, Similarity: best})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].UnitID < matches[j].UnitID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// Records returns every stored record, live or stale, sorted by unit id
// then model tag. Used by the persistence layer.
func (m *Memory) Records() []model.EmbeddingRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.EmbeddingRecord
	for _, tags := range m.records {
		for _, rec := range tags {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UnitID != out[j].UnitID {
			return out[i].UnitID < out[j].UnitID
		}
		return out[i].ModelTag < out[j].ModelTag
	})
	return out
}

// liveLocked reports whether a record matches the unit's current content
// hash. A unit with no recorded hash has been removed, so its records are
// stale.
func (m *Memory) liveLocked(unitID string, rec model.EmbeddingRecord) bool {
	cur, ok := m.hashes[unitID]
	return ok && cur == rec.ContentHash
}

// cosine computes cosine similarity between two equal-length vectors.
// Returns false for zero-magnitude vectors.
func cosine(a, b []float32) (float64, bool) {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}
