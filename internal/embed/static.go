package embed

import (
	"context"
	"math"
	"strings"
	"unicode"

	"codescope/internal/hashing"
)

// StaticProvider produces deterministic embeddings without any external
// service: a hashed bag-of-tokens projected onto a fixed-dimension vector.
// Texts sharing tokens get similar vectors, which is enough for offline use
// and for exercising the ranking pipeline in tests.
type StaticProvider struct {
	dim int
}

// NewStaticProvider creates a provider emitting vectors of the given
// dimension (minimum 8).
func NewStaticProvider(dim int) *StaticProvider {
	if dim < 8 {
		dim = 8
	}
	return &StaticProvider{dim: dim}
}

// ModelTag identifies the provider and dimension.
func (s *StaticProvider) ModelTag() string {
	return "static/bag-of-tokens"
}

// Embed returns the deterministic vector for text.
func (s *StaticProvider) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float64, s.dim)
	for _, tok := range tokenize(text) {
		vec[hashing.Bucket(tok, s.dim)]++
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, s.dim)
	if norm == 0 {
		// Empty or symbol-only text still needs a valid vector.
		out[0] = 1
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// EmbedBatch returns one vector per text.
func (s *StaticProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
