package chunker

import (
	"strings"

	"localcog/internal/domain"
)

// DefaultMaxWords is the chunk size used when none is configured.
const DefaultMaxWords = 500

// WordChunker splits text into runs of at most MaxWords whitespace-separated
// words. Words are rejoined with single spaces, so chunks hold no newlines.
type WordChunker struct {
	maxWords int
}

func NewWordChunker(maxWords int) *WordChunker {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	return &WordChunker{maxWords: maxWords}
}

func (c *WordChunker) Chunk(text string) []domain.Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	chunks := make([]domain.Chunk, 0, (len(words)+c.maxWords-1)/c.maxWords)
	for start := 0; start < len(words); start += c.maxWords {
		end := min(start+c.maxWords, len(words))
		chunks = append(chunks, domain.Chunk{
			Index: len(chunks),
			Text:  strings.Join(words[start:end], " "),
		})
	}
	return chunks
}

var _ domain.Chunker = (*WordChunker)(nil)
