package vectorstore

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/phuslu/log"

	"localcog/internal/domain"
)

// ErrCorpusIO is wrapped around failures reading or writing corpus artifacts.
var ErrCorpusIO = errors.New("corpus io")

const (
	textFile   = "store.txt"
	vectorFile = "emb.bin"
)

// Store is an append-only corpus of chunk texts and their embeddings,
// persisted under one directory and searched by brute-force dot product.
// chunks[i] is always the text that vectors[i] embeds.
type Store struct {
	dir       string
	dimension int
	logger    *log.Logger

	// ingest serialises appends end to end, including disk writes.
	ingest sync.Mutex

	mu      sync.RWMutex
	chunks  []string
	vectors [][]float32
}

// Open loads the corpus in dir, creating the directory when needed. A
// missing corpus opens empty.
func Open(dir string, dimension int, logger *log.Logger) (*Store, error) {
	if dimension <= 0 {
		return nil, errors.New("invalid dimension")
	}
	s := &Store{dir: dir, dimension: dimension, logger: logger}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dimension returns the width every stored vector has.
func (s *Store) Dimension() int { return s.dimension }

// Dir returns the directory holding the corpus artifacts.
func (s *Store) Dir() string { return s.dir }

// Len returns the number of stored chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Snapshot returns copies of the stored chunks and vectors.
func (s *Store) Snapshot() ([]string, [][]float32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.chunks...), append([][]float32(nil), s.vectors...)
}

// Append adds chunks with their vectors and persists the whole corpus. The
// in-memory corpus changes only after both artifacts are on disk.
func (s *Store) Append(chunks []string, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	for i, v := range vectors {
		if len(v) != s.dimension {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), s.dimension)
		}
		if strings.ContainsAny(chunks[i], "\r\n") {
			return fmt.Errorf("chunk %d contains a newline", i)
		}
	}
	if len(chunks) == 0 {
		return nil
	}

	s.ingest.Lock()
	defer s.ingest.Unlock()

	s.mu.RLock()
	oldChunks, oldVectors := s.chunks, s.vectors
	s.mu.RUnlock()

	nextChunks := make([]string, 0, len(oldChunks)+len(chunks))
	nextChunks = append(append(nextChunks, oldChunks...), chunks...)
	nextVectors := make([][]float32, 0, len(oldVectors)+len(vectors))
	nextVectors = append(append(nextVectors, oldVectors...), vectors...)

	if err := s.persist(oldChunks, nextChunks, nextVectors); err != nil {
		return err
	}

	s.mu.Lock()
	s.chunks, s.vectors = nextChunks, nextVectors
	s.mu.Unlock()

	s.logger.Debug().Int("added", len(chunks)).Int("total", len(nextChunks)).Msg("corpus appended")
	return nil
}

// Search returns up to topK hits ordered by descending score. Equal scores
// keep the lower index first.
func (s *Store) Search(query []float32, topK int) []domain.Hit {
	s.mu.RLock()
	chunks, vectors := s.chunks, s.vectors
	s.mu.RUnlock()

	if len(vectors) == 0 || topK <= 0 {
		return nil
	}
	scores := make([]float64, len(vectors))
	for i := range vectors {
		scores[i] = dot(vectors[i], query)
	}
	idxs := argsortDesc(scores)
	topK = min(topK, len(idxs))

	hits := make([]domain.Hit, 0, topK)
	for _, j := range idxs[:topK] {
		hits = append(hits, domain.Hit{Chunk: domain.Chunk{Index: j, Text: chunks[j]}, Score: scores[j]})
	}
	return hits
}

func dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func argsortDesc(vals []float64) []int {
	idxs := make([]int, len(vals))
	for i := range vals {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return vals[idxs[a]] > vals[idxs[b]] })
	return idxs
}

func (s *Store) textPath() string   { return filepath.Join(s.dir, textFile) }
func (s *Store) vectorPath() string { return filepath.Join(s.dir, vectorFile) }
