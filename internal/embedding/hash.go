package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math/rand/v2"

	"localcog/internal/inference"
)

// Hash derives a pseudo-random unit vector from the text itself. The same
// text always yields the same vector, across calls and across runs.
// Similarity between hash vectors carries no meaning.
type Hash struct {
	dimension int
}

// NewHash creates a hash embedder of the given width.
func NewHash(dimension int) *Hash { return &Hash{dimension: dimension} }

// Name returns the identifier of this embedder implementation.
func (h *Hash) Name() string { return "hash" }

// Dimension returns the dimensionality of the produced embedding vectors.
func (h *Hash) Dimension() int { return h.dimension }

// Embed never fails.
func (h *Hash) Embed(_ context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	rng := rand.New(rand.NewPCG(binary.LittleEndian.Uint64(sum[0:8]), binary.LittleEndian.Uint64(sum[8:16])))
	v := make([]float32, h.dimension)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	return inference.Normalize(v), nil
}
