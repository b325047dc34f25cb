package embedding

import (
	"context"
	"fmt"

	"github.com/phuslu/log"

	"localcog/internal/domain"
)

// BackendClient is the inference capability the primary embedder needs.
type BackendClient interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// Backend embeds text through the inference runtime.
type Backend struct {
	client    BackendClient
	model     string
	dimension int
}

// NewBackend creates a primary embedder bound to one embedding model.
func NewBackend(client BackendClient, model string, dimension int) *Backend {
	return &Backend{client: client, model: model, dimension: dimension}
}

// Name returns the identifier of this embedder implementation.
func (b *Backend) Name() string { return "backend:" + b.model }

// Dimension returns the dimensionality of the produced embedding vectors.
func (b *Backend) Dimension() int { return b.dimension }

// Embed returns the backend vector. Empty vectors and vectors of the wrong
// width are reported as errors so a fallback can take over.
func (b *Backend) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := b.client.Embed(ctx, b.model, text)
	if err != nil {
		return nil, err
	}
	if len(v) == 0 {
		return nil, fmt.Errorf("empty embedding from %s", b.model)
	}
	if len(v) != b.dimension {
		return nil, fmt.Errorf("embedding from %s has %d dimensions, want %d", b.model, len(v), b.dimension)
	}
	return v, nil
}

// Fallback pairs a primary embedder with a fallback of the same width.
// The fallback is chosen per call, whenever the primary fails.
type Fallback struct {
	primary  domain.Embedder
	fallback domain.Embedder
	logger   *log.Logger
}

// WithFallback combines primary and fallback.
func WithFallback(primary, fallback domain.Embedder, logger *log.Logger) *Fallback {
	return &Fallback{primary: primary, fallback: fallback, logger: logger}
}

// Name returns the identifier of this embedder implementation.
func (f *Fallback) Name() string { return f.primary.Name() + "|" + f.fallback.Name() }

// Dimension returns the dimensionality of the produced embedding vectors.
func (f *Fallback) Dimension() int { return f.primary.Dimension() }

// Embed tries the primary embedder and falls back on error. A cancelled
// context is returned as an error rather than masked by the fallback.
func (f *Fallback) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := f.primary.Embed(ctx, text)
	if err == nil {
		return v, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	f.logger.Warn().Err(err).Str("embedder", f.primary.Name()).Msg("primary embedder failed, using fallback")
	return f.fallback.Embed(ctx, text)
}

var (
	_ domain.Embedder = (*Backend)(nil)
	_ domain.Embedder = (*Hash)(nil)
	_ domain.Embedder = (*Fallback)(nil)
)
