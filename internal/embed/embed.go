// Package embed defines the external text-embedding collaborator. The
// engine never interprets vector contents; it only requires that the same
// provider and model produce comparable vectors.
package embed

import (
	"context"
	"time"

	"codescope/internal/errors"
)

// Provider turns text into an embedding vector. Implementations must honor
// context cancellation; callers treat every failure as EmbeddingServiceError
// and fail fast rather than degrade to zero similarity.
type Provider interface {
	// Embed returns the vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// ModelTag identifies the provider and model, e.g. "ollama/nomic-embed-text".
	ModelTag() string
}

// WithTimeout wraps a provider so every call is bounded by d. Protects the
// caller from a hung embedding service.
func WithTimeout(p Provider, d time.Duration) Provider {
	if d <= 0 {
		return p
	}
	return &timeoutProvider{inner: p, timeout: d}
}

type timeoutProvider struct {
	inner   Provider
	timeout time.Duration
}

func (t *timeoutProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	vec, err := t.inner.Embed(ctx, text)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return nil, errors.Wrap(errors.EmbeddingService, err, "embedding call timed out after %s", t.timeout)
	}
	return vec, err
}

func (t *timeoutProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	vecs, err := t.inner.EmbedBatch(ctx, texts)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return nil, errors.Wrap(errors.EmbeddingService, err, "embedding call timed out after %s", t.timeout)
	}
	return vecs, err
}

func (t *timeoutProvider) ModelTag() string {
	return t.inner.ModelTag()
}
