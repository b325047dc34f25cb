package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/phuslu/log"

	"localcog/internal/domain"
	"localcog/internal/extract"
	"localcog/internal/vectorstore"
)

// DefaultTopK is used when Retrieve is called with a non-positive topK.
const DefaultTopK = 4

// Extractor turns uploaded bytes into text.
type Extractor interface {
	Extract(raw []byte, name string) (string, error)
}

// Pipeline ingests documents into the corpus and retrieves chunks for
// queries.
type Pipeline struct {
	extractor Extractor
	chunker   domain.Chunker
	embedder  domain.Embedder
	store     *vectorstore.Store
	topK      int
	logger    *log.Logger
}

func NewPipeline(extractor Extractor, chunker domain.Chunker, embedder domain.Embedder, store *vectorstore.Store, topK int, logger *log.Logger) *Pipeline {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Pipeline{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		topK:      topK,
		logger:    logger,
	}
}

// Stats describes the current corpus.
type Stats struct {
	Chunks    int    `json:"chunks"`
	Dimension int    `json:"dimension"`
	Embedder  string `json:"embedder"`
}

func (p *Pipeline) Stats() Stats {
	return Stats{Chunks: p.store.Len(), Dimension: p.store.Dimension(), Embedder: p.embedder.Name()}
}

// Ingest extracts, chunks and embeds one uploaded document and appends the
// result to the corpus in a single batch. It returns the number of chunks
// added. Text that cannot be extracted is treated as empty.
func (p *Pipeline) Ingest(ctx context.Context, raw []byte, filename string) (int, error) {
	if err := p.saveUpload(raw, filename); err != nil {
		p.logger.Warn().Err(err).Str("file", filename).Msg("could not keep uploaded file")
	}

	text, err := p.extractor.Extract(raw, filename)
	if err != nil {
		if !errors.Is(err, extract.ErrExtraction) {
			return 0, err
		}
		p.logger.Warn().Err(err).Str("file", filename).Msg("extraction failed, document treated as empty")
		text = ""
	}

	chunks := p.chunker.Chunk(text)
	if len(chunks) == 0 {
		p.logger.Info().Str("file", filename).Msg("no chunks to ingest")
		return 0, nil
	}

	texts := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))
	for i, ch := range chunks {
		v, err := p.embedder.Embed(ctx, ch.Text)
		if err != nil {
			return 0, fmt.Errorf("embed chunk %d of %s: %w", i, filename, err)
		}
		texts[i] = ch.Text
		vectors[i] = v
	}

	if err := p.store.Append(texts, vectors); err != nil {
		return 0, err
	}
	p.logger.Info().Str("file", filename).Int("chunks", len(chunks)).Int("total", p.store.Len()).Msg("document ingested")
	return len(chunks), nil
}

// Retrieve returns the texts of the topK chunks most similar to query. An
// empty corpus yields no chunks without embedding the query.
func (p *Pipeline) Retrieve(ctx context.Context, query string, topK int) ([]string, error) {
	if topK <= 0 {
		topK = p.topK
	}
	if p.store.Len() == 0 {
		return nil, nil
	}
	v, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits := p.store.Search(v, topK)
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Chunk.Text
	}
	return out, nil
}

func (p *Pipeline) saveUpload(raw []byte, filename string) error {
	base := filepath.Base(filename)
	if base == "." || base == string(filepath.Separator) {
		return nil
	}
	dir := filepath.Join(p.store.Dir(), "uploads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, base), raw, 0o644)
}

var _ domain.Retriever = (*Pipeline)(nil)
