package vectorstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localcog/internal/logger"
)

func unit(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis] = 1
	return v
}

func TestStore_EmptySearch(t *testing.T) {
	s, err := Open(t.TempDir(), 4, logger.Nop())
	require.NoError(t, err)

	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Search(unit(4, 0), 3))
}

func TestStore_PersistReloadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 3, logger.Nop())
	require.NoError(t, err)

	require.NoError(t, s.Append([]string{"alpha", "beta"}, [][]float32{{1, 0, 0}, {0, 1, 0}}))
	require.NoError(t, s.Append([]string{"gamma"}, [][]float32{{0, 0.6, 0.8}}))

	reopened, err := Open(dir, 3, logger.Nop())
	require.NoError(t, err)

	wantChunks, wantVectors := s.Snapshot()
	gotChunks, gotVectors := reopened.Snapshot()
	assert.Equal(t, wantChunks, gotChunks)
	assert.Equal(t, wantVectors, gotVectors)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, gotChunks)
}

func TestStore_SearchOrdering(t *testing.T) {
	s, err := Open(t.TempDir(), 2, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Append(
		[]string{"a", "b", "c", "d"},
		[][]float32{{0, 1}, {1, 0}, {0.6, 0.8}, {1, 0}},
	))

	hits := s.Search([]float32{1, 0}, 3)
	require.Len(t, hits, 3)
	// b and d tie, the lower index comes first
	assert.Equal(t, "b", hits[0].Chunk.Text)
	assert.Equal(t, 1, hits[0].Chunk.Index)
	assert.Equal(t, "d", hits[1].Chunk.Text)
	assert.Equal(t, "c", hits[2].Chunk.Text)
	assert.InDelta(t, 0.6, hits[2].Score, 1e-6)

	assert.Len(t, s.Search([]float32{1, 0}, 10), 4)
}

func TestStore_AppendValidation(t *testing.T) {
	s, err := Open(t.TempDir(), 2, logger.Nop())
	require.NoError(t, err)

	tests := []struct {
		name    string
		chunks  []string
		vectors [][]float32
	}{
		{name: "length mismatch", chunks: []string{"a"}, vectors: nil},
		{name: "wrong dimension", chunks: []string{"a"}, vectors: [][]float32{{1, 0, 0}}},
		{name: "newline in chunk", chunks: []string{"a\nb"}, vectors: [][]float32{{1, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, s.Append(tt.chunks, tt.vectors))
			assert.Equal(t, 0, s.Len())
		})
	}
}

func TestStore_ConcurrentAppendsStayAligned(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 2, logger.Nop())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			chunks := []string{fmt.Sprintf("g%d-0", g), fmt.Sprintf("g%d-1", g), fmt.Sprintf("g%d-2", g)}
			vectors := [][]float32{{1, 0}, {0, 1}, {1, 0}}
			assert.NoError(t, s.Append(chunks, vectors))
		}(g)
	}
	wg.Wait()

	reopened, err := Open(dir, 2, logger.Nop())
	require.NoError(t, err)
	chunks, vectors := reopened.Snapshot()
	assert.Len(t, chunks, 24)
	assert.Len(t, vectors, 24)
}

func TestOpen_RepairsMisalignedArtifacts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, textFile), []byte("one\ntwo\nthree\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, vectorFile), encodeVectors([][]float32{{1, 0}, {0, 1}}, 2), 0o644))

	s, err := Open(dir, 2, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	data, err := os.ReadFile(filepath.Join(dir, textFile))
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))
}

func TestOpen_RejectsForeignVectorFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, vectorFile), []byte("garbage-bytes"), 0o644))

	_, err := Open(dir, 2, logger.Nop())
	assert.ErrorIs(t, err, ErrCorpusIO)
}

func TestStore_VectorWriteFailureRestoresText(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 2, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Append([]string{"kept"}, [][]float32{{1, 0}}))

	// a non-empty directory in place of the vector file makes the rename fail
	vecPath := filepath.Join(dir, vectorFile)
	require.NoError(t, os.Remove(vecPath))
	require.NoError(t, os.MkdirAll(filepath.Join(vecPath, "block"), 0o755))

	err = s.Append([]string{"lost"}, [][]float32{{0, 1}})
	require.ErrorIs(t, err, ErrCorpusIO)

	assert.Equal(t, 1, s.Len())
	data, err := os.ReadFile(filepath.Join(dir, textFile))
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, strings.Fields(string(data)))
}

func TestStore_SearchDuringAppendSeesConsistentCorpus(t *testing.T) {
	s, err := Open(t.TempDir(), 4, logger.Nop())
	require.NoError(t, err)

	const appends = 40
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 0; i < appends; i++ {
			// rows alternate between two axes so both queries keep matching
			if err := s.Append([]string{fmt.Sprintf("chunk-%d", i)}, [][]float32{unit(4, i%2)}); err != nil {
				t.Errorf("append %d: %v", i, err)
				return
			}
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				for _, h := range s.Search(unit(4, r%2), appends) {
					if n := s.Len(); h.Chunk.Index >= n {
						t.Errorf("hit index %d beyond corpus length %d", h.Chunk.Index, n)
					}
					if want := fmt.Sprintf("chunk-%d", h.Chunk.Index); h.Chunk.Text != want {
						t.Errorf("hit %d has text %q, want %q", h.Chunk.Index, h.Chunk.Text, want)
					}
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, appends, s.Len())
	hits := s.Search(unit(4, 0), appends)
	require.Len(t, hits, appends)
	assert.Equal(t, "chunk-0", hits[0].Chunk.Text)
}
