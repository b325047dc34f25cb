package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localcog/internal/logger"
)

type stubClient struct {
	vec   []float32
	err   error
	calls int
}

func (s *stubClient) Embed(_ context.Context, _, _ string) ([]float32, error) {
	s.calls++
	return s.vec, s.err
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestHash_DeterministicAndNormalized(t *testing.T) {
	h := NewHash(384)

	a, err := h.Embed(context.Background(), "the same text")
	require.NoError(t, err)
	b, err := NewHash(384).Embed(context.Background(), "the same text")
	require.NoError(t, err)
	c, err := h.Embed(context.Background(), "different text")
	require.NoError(t, err)

	assert.Len(t, a, 384)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.InDelta(t, 1.0, norm(a), 1e-5)
}

func TestBackend_RejectsEmptyAndWrongWidth(t *testing.T) {
	tests := []struct {
		name    string
		vec     []float32
		err     error
		wantErr bool
	}{
		{name: "ok", vec: make([]float32, 4)},
		{name: "empty", vec: nil, wantErr: true},
		{name: "wrong width", vec: make([]float32, 3), wantErr: true},
		{name: "backend error", err: errors.New("boom"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBackend(&stubClient{vec: tt.vec, err: tt.err}, "m", 4)
			_, err := b.Embed(context.Background(), "x")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestFallback_UsesPrimaryWhenHealthy(t *testing.T) {
	primary := &stubClient{vec: []float32{1, 0, 0, 0}}
	f := WithFallback(NewBackend(primary, "m", 4), NewHash(4), logger.Nop())

	v, err := f.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0, 0}, v)
	assert.Equal(t, 4, f.Dimension())
}

func TestFallback_SwitchesOnFailure(t *testing.T) {
	primary := &stubClient{err: errors.New("backend down")}
	hash := NewHash(4)
	f := WithFallback(NewBackend(primary, "m", 4), hash, logger.Nop())

	v, err := f.Embed(context.Background(), "x")
	require.NoError(t, err)
	want, _ := hash.Embed(context.Background(), "x")
	assert.Equal(t, want, v)
	assert.Equal(t, 1, primary.calls)
}

func TestFallback_CancelledContextIsNotMasked(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := WithFallback(NewBackend(&stubClient{err: context.Canceled}, "m", 4), NewHash(4), logger.Nop())

	_, err := f.Embed(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}
