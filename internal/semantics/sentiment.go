package semantics

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/phuslu/log"

	"localcog/internal/inference"
)

const (
	Positive = "POSITIVE"
	Negative = "NEGATIVE"
	Neutral  = "NEUTRAL"
)

// maxSentimentInput bounds how much text is classified.
const maxSentimentInput = 2000

const sentimentSystemPrompt = "Classify the sentiment of the user's text. " +
	"Reply with POSITIVE, NEGATIVE or NEUTRAL followed by your confidence between 0 and 1, for example: NEGATIVE 0.82"

// Sentiment is a polarity label with a confidence in [0, 1].
type Sentiment struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// SentimentClassifier labels the polarity of text.
type SentimentClassifier interface {
	Classify(ctx context.Context, text string) (Sentiment, error)
}

// LLMSentiment asks a chat model for a label.
type LLMSentiment struct {
	client Chatter
	model  string
}

func NewLLMSentiment(client Chatter, model string) *LLMSentiment {
	return &LLMSentiment{client: client, model: model}
}

func (s *LLMSentiment) Classify(ctx context.Context, text string) (Sentiment, error) {
	text = clip(strings.TrimSpace(text), maxSentimentInput)
	if text == "" {
		return Sentiment{Label: Neutral}, nil
	}
	out, err := s.client.Chat(ctx, inference.ChatRequest{Model: s.model, Prompt: text, System: sentimentSystemPrompt})
	if err != nil {
		return Sentiment{}, err
	}
	return parseSentiment(out)
}

// parseSentiment reads the first label in reply and an optional confidence
// right after it. A missing confidence counts as 1.
func parseSentiment(reply string) (Sentiment, error) {
	words := strings.Fields(reply)
	for i, w := range words {
		label := strings.ToUpper(strings.Trim(w, ".,:;!\"'*()"))
		if label != Positive && label != Negative && label != Neutral {
			continue
		}
		score := 1.0
		if i+1 < len(words) {
			if f, err := strconv.ParseFloat(strings.Trim(words[i+1], ".,;()"), 64); err == nil && f >= 0 && f <= 1 {
				score = f
			}
		}
		return Sentiment{Label: label, Score: score}, nil
	}
	return Sentiment{}, fmt.Errorf("no sentiment label in %q", clip(reply, 80))
}

// LexiconSentiment scores text against small word lists. A negator flips
// the word that follows it. It needs no model and never fails.
type LexiconSentiment struct {
	positive  map[string]struct{}
	negative  map[string]struct{}
	negations map[string]struct{}
}

func NewLexiconSentiment() *LexiconSentiment {
	return &LexiconSentiment{
		positive: wordSet("good", "great", "excellent", "amazing", "awesome", "love", "loved", "like", "liked",
			"happy", "glad", "nice", "wonderful", "fantastic", "best", "better", "perfect", "pleasant", "enjoy",
			"enjoyed", "fast", "easy", "helpful", "recommend", "beautiful", "brilliant", "works", "thanks"),
		negative: wordSet("bad", "terrible", "awful", "horrible", "hate", "hated", "dislike", "sad", "angry",
			"poor", "worst", "worse", "broken", "slow", "bug", "bugs", "crash", "crashes", "fail", "failed",
			"fails", "useless", "annoying", "disappointed", "disappointing", "wrong", "problem", "ugly"),
		negations: wordSet("not", "no", "never", "don't", "doesn't", "didn't", "isn't", "wasn't", "aren't",
			"can't", "won't", "without", "hardly"),
	}
}

func (s *LexiconSentiment) Classify(_ context.Context, text string) (Sentiment, error) {
	var pos, neg float64
	negate := false
	for _, tok := range tokens(clip(text, maxSentimentInput)) {
		tok = strings.ReplaceAll(tok, "’", "'")
		if _, ok := s.negations[tok]; ok {
			negate = true
			continue
		}
		_, isPos := s.positive[tok]
		_, isNeg := s.negative[tok]
		if !isPos && !isNeg {
			continue
		}
		if isPos != negate {
			pos++
		} else {
			neg++
		}
		negate = false
	}
	if pos+neg == 0 || pos == neg {
		return Sentiment{Label: Neutral}, nil
	}
	score := math.Abs(pos-neg) / (pos + neg)
	if pos > neg {
		return Sentiment{Label: Positive, Score: score}, nil
	}
	return Sentiment{Label: Negative, Score: score}, nil
}

// FallbackSentiment tries primary first and uses fallback when it fails.
type FallbackSentiment struct {
	primary  SentimentClassifier
	fallback SentimentClassifier
	logger   *log.Logger
}

func SentimentWithFallback(primary, fallback SentimentClassifier, logger *log.Logger) *FallbackSentiment {
	return &FallbackSentiment{primary: primary, fallback: fallback, logger: logger}
}

func (f *FallbackSentiment) Classify(ctx context.Context, text string) (Sentiment, error) {
	out, err := f.primary.Classify(ctx, text)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return Sentiment{}, ctx.Err()
	}
	f.logger.Warn().Err(err).Msg("sentiment model failed, using word lists")
	return f.fallback.Classify(ctx, text)
}

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

var (
	_ SentimentClassifier = (*LLMSentiment)(nil)
	_ SentimentClassifier = (*LexiconSentiment)(nil)
	_ SentimentClassifier = (*FallbackSentiment)(nil)
)
