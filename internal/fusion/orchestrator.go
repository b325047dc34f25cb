package fusion

import (
	"context"
	"strings"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"localcog/internal/inference"
)

// NoAnswer is returned when no model produced a usable answer.
const NoAnswer = "(no answer)"

// Chatter sends one prompt to one model.
type Chatter interface {
	Chat(ctx context.Context, req inference.ChatRequest) (string, error)
}

// Orchestrator asks several models the same question at once and returns
// the answer most of them agree on.
type Orchestrator struct {
	client        Chatter
	defaultModels []string
	logger        *log.Logger
}

func NewOrchestrator(client Chatter, defaultModels []string, logger *log.Logger) *Orchestrator {
	return &Orchestrator{client: client, defaultModels: defaultModels, logger: logger}
}

// DefaultModels returns the models used when a request names none.
func (o *Orchestrator) DefaultModels() []string {
	return append([]string(nil), o.defaultModels...)
}

// Fuse never fails. A model that errors contributes nothing, and when every
// model errors the result is NoAnswer. Cancelling ctx cancels every
// outstanding model call.
func (o *Orchestrator) Fuse(ctx context.Context, prompt string, models []string, guidance string) string {
	if len(models) == 0 {
		models = o.defaultModels
	}
	answers := o.collect(ctx, prompt, models, guidance)
	return Vote(answers)
}

func (o *Orchestrator) collect(ctx context.Context, prompt string, models []string, guidance string) []string {
	answers := make([]string, len(models))
	var g errgroup.Group
	for i, model := range models {
		g.Go(func() error {
			start := time.Now()
			out, err := o.client.Chat(ctx, inference.ChatRequest{Model: model, Prompt: prompt, System: guidance})
			if err != nil {
				o.logger.Warn().Err(err).Str("model", model).Msg("model call failed")
				return nil
			}
			o.logger.Debug().Str("model", model).Dur("took", time.Since(start)).Msg("model answered")
			answers[i] = out
			return nil
		})
	}
	_ = g.Wait()
	return answers
}

// Normalize lower-cases s, collapses whitespace runs and trims it.
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Vote picks the plurality answer by normalized text. Ties go to the group
// seen first, and the first original answer of the winning group is
// returned trimmed. Blank answers do not vote.
func Vote(answers []string) string {
	type group struct {
		first string
		count int
	}
	groups := make(map[string]*group)
	var order []string
	for _, a := range answers {
		key := Normalize(a)
		if key == "" {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &group{first: strings.TrimSpace(a)}
			groups[key] = g
			order = append(order, key)
		}
		g.count++
	}
	if len(order) == 0 {
		return NoAnswer
	}
	best := groups[order[0]]
	for _, key := range order[1:] {
		if g := groups[key]; g.count > best.count {
			best = g
		}
	}
	return best.first
}
