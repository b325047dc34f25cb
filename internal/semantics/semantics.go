package semantics

import (
	"context"
	"errors"
	"strings"

	wl "github.com/abadojack/whatlanggo"
	"github.com/phuslu/log"

	"localcog/internal/domain"
	"localcog/internal/inference"
)

// maxSummaryInput bounds how much text is sent to the model.
const maxSummaryInput = 4000

const summarySystemPrompt = "You summarise text. Reply with a concise summary of the user's text in the same language, without preamble."

// Chatter sends one prompt to one model.
type Chatter interface {
	Chat(ctx context.Context, req inference.ChatRequest) (string, error)
}

// LLMSummarizer asks a chat model for a summary.
type LLMSummarizer struct {
	client Chatter
	model  string
}

func NewLLMSummarizer(client Chatter, model string) *LLMSummarizer {
	return &LLMSummarizer{client: client, model: model}
}

func (s *LLMSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	text = clip(strings.TrimSpace(text), maxSummaryInput)
	if text == "" {
		return "", nil
	}
	out, err := s.client.Chat(ctx, inference.ChatRequest{Model: s.model, Prompt: text, System: summarySystemPrompt})
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("empty summary")
	}
	return out, nil
}

// Fallback tries primary first and uses fallback when it fails.
type Fallback struct {
	primary  domain.Summarizer
	fallback domain.Summarizer
	logger   *log.Logger
}

func WithFallback(primary, fallback domain.Summarizer, logger *log.Logger) *Fallback {
	return &Fallback{primary: primary, fallback: fallback, logger: logger}
}

func (f *Fallback) Summarize(ctx context.Context, text string) (string, error) {
	out, err := f.primary.Summarize(ctx, text)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	f.logger.Warn().Err(err).Msg("summarizer failed, using frequency ranking")
	return f.fallback.Summarize(ctx, text)
}

// Language is a detected natural language.
type Language struct {
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// DetectLanguage identifies the language of text. Text too short or too
// ambiguous to classify yields an empty code.
func DetectLanguage(text string) Language {
	if strings.TrimSpace(text) == "" {
		return Language{}
	}
	info := wl.Detect(text)
	if info.Lang == -1 {
		return Language{}
	}
	return Language{
		Code:       info.Lang.Iso6391(),
		Name:       info.Lang.String(),
		Confidence: info.Confidence,
	}
}

// Analysis is the result of analysing one text.
type Analysis struct {
	Summary   string    `json:"summary"`
	Sentiment Sentiment `json:"sentiment"`
	Language  Language  `json:"language"`
}

// Analyzer summarises text, labels its sentiment and detects its language.
type Analyzer struct {
	summarizer domain.Summarizer
	sentiment  SentimentClassifier
}

func NewAnalyzer(summarizer domain.Summarizer, sentiment SentimentClassifier) *Analyzer {
	return &Analyzer{summarizer: summarizer, sentiment: sentiment}
}

func (a *Analyzer) Analyze(ctx context.Context, text string) (Analysis, error) {
	summary, err := a.summarizer.Summarize(ctx, text)
	if err != nil {
		return Analysis{}, err
	}
	sentiment, err := a.sentiment.Classify(ctx, text)
	if err != nil {
		return Analysis{}, err
	}
	return Analysis{Summary: summary, Sentiment: sentiment, Language: DetectLanguage(text)}, nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	_ domain.Summarizer = (*LLMSummarizer)(nil)
	_ domain.Summarizer = (*FrequencySummarizer)(nil)
	_ domain.Summarizer = (*Fallback)(nil)
)
