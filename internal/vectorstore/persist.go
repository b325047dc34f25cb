package vectorstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
)

var vectorMagic = [4]byte{'L', 'C', 'V', '1'}

const vectorHeaderSize = 12

func (s *Store) load() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrCorpusIO, s.dir, err)
	}

	chunks, err := readText(s.textPath())
	if err != nil {
		return err
	}
	vectors, err := readVectors(s.vectorPath(), s.dimension)
	if err != nil {
		return err
	}

	if len(chunks) != len(vectors) {
		n := min(len(chunks), len(vectors))
		s.logger.Warn().
			Int("chunks", len(chunks)).
			Int("vectors", len(vectors)).
			Int("kept", n).
			Msg("corpus artifacts disagree, truncating to the shorter one")
		chunks, vectors = chunks[:n], vectors[:n]
		if err := s.writeArtifacts(chunks, vectors); err != nil {
			return err
		}
	}

	s.chunks, s.vectors = chunks, vectors
	s.logger.Info().Str("dir", s.dir).Int("chunks", len(chunks)).Msg("corpus loaded")
	return nil
}

// persist writes next to disk. If the vector artifact cannot be written, the
// text artifact is put back to prev so the pair stays aligned.
func (s *Store) persist(prev, nextChunks []string, nextVectors [][]float32) error {
	if err := writeFileAtomic(s.textPath(), encodeText(nextChunks)); err != nil {
		return err
	}
	if err := writeFileAtomic(s.vectorPath(), encodeVectors(nextVectors, s.dimension)); err != nil {
		if rerr := writeFileAtomic(s.textPath(), encodeText(prev)); rerr != nil {
			s.logger.Error().Err(rerr).Msg("failed to restore text artifact")
		}
		return err
	}
	return nil
}

func (s *Store) writeArtifacts(chunks []string, vectors [][]float32) error {
	if err := writeFileAtomic(s.textPath(), encodeText(chunks)); err != nil {
		return err
	}
	return writeFileAtomic(s.vectorPath(), encodeVectors(vectors, s.dimension))
}

func encodeText(chunks []string) []byte {
	var buf bytes.Buffer
	for _, c := range chunks {
		buf.WriteString(c)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func readText(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrCorpusIO, path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n"), nil
}

func encodeVectors(vectors [][]float32, dimension int) []byte {
	buf := make([]byte, vectorHeaderSize+4*len(vectors)*dimension)
	copy(buf, vectorMagic[:])
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(vectors)))
	binary.LittleEndian.PutUint32(buf[8:], uint32(dimension))
	off := vectorHeaderSize
	for _, v := range vectors {
		for _, x := range v {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(x))
			off += 4
		}
	}
	return buf
}

func readVectors(path string, dimension int) ([][]float32, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrCorpusIO, path, err)
	}
	if len(data) < vectorHeaderSize || !bytes.Equal(data[:4], vectorMagic[:]) {
		return nil, fmt.Errorf("%w: %s: not a vector file", ErrCorpusIO, path)
	}
	rows := int(binary.LittleEndian.Uint32(data[4:]))
	cols := int(binary.LittleEndian.Uint32(data[8:]))
	if rows > 0 && cols != dimension {
		return nil, fmt.Errorf("%w: %s: dimension %d, want %d", ErrCorpusIO, path, cols, dimension)
	}
	// a short body keeps only the complete rows
	if avail := (len(data) - vectorHeaderSize) / (4 * max(cols, 1)); avail < rows {
		rows = avail
	}

	vectors := make([][]float32, rows)
	off := vectorHeaderSize
	for i := range vectors {
		v := make([]float32, cols)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
		vectors[i] = v
	}
	return vectors, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorpusIO, err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("%w: write %s: %v", ErrCorpusIO, path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("%w: sync %s: %v", ErrCorpusIO, path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("%w: close %s: %v", ErrCorpusIO, path, err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("%w: rename %s: %v", ErrCorpusIO, path, err)
	}
	return nil
}
