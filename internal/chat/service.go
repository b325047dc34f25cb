package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"localcog/internal/domain"
	"localcog/internal/memory"
)

// DefaultSession is used when a request carries no session id.
const DefaultSession = "default"

// DefaultHistoryTurns is how many recent turns go into the guidance block.
const DefaultHistoryTurns = 8

// ErrEmptyMessage is returned for requests without a message.
var ErrEmptyMessage = errors.New("message is required")

// Request is one user message plus the context sources to consult.
type Request struct {
	Message   string   `json:"message"`
	Models    []string `json:"models,omitempty"`
	UseRAG    bool     `json:"use_rag"`
	ImageURLs []string `json:"image_urls,omitempty"`
	Tools     []string `json:"tools,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
}

// Response is the fused reply.
type Response struct {
	Reply         string   `json:"reply"`
	SessionID     string   `json:"session_id"`
	Models        []string `json:"models"`
	ContextChunks int      `json:"context_chunks"`
}

// Fuser asks several models and returns the agreed answer.
type Fuser interface {
	Fuse(ctx context.Context, prompt string, models []string, guidance string) string
	DefaultModels() []string
}

// ImageDescriber describes images by URL, preserving order.
type ImageDescriber interface {
	DescribeAll(ctx context.Context, urls []string) []string
}

// ToolRunner runs the named tools and returns their combined output.
type ToolRunner interface {
	Run(ctx context.Context, names []string, input string) string
}

// TurnLog is the durable conversation log.
type TurnLog interface {
	Add(ctx context.Context, session string, role domain.Role, content string) error
	Recent(ctx context.Context, session string, limit int) ([]domain.Turn, error)
}

// Service answers chat requests.
type Service struct {
	retriever    domain.Retriever
	describer    ImageDescriber
	tools        ToolRunner
	fuser        Fuser
	shortTerm    *memory.ShortTerm
	longTerm     TurnLog
	historyTurns int
	topK         int
	logger       *log.Logger
}

// Deps are the collaborators of a Service. LongTerm may be nil.
type Deps struct {
	Retriever domain.Retriever
	Describer ImageDescriber
	Tools     ToolRunner
	Fuser     Fuser
	ShortTerm *memory.ShortTerm
	LongTerm  TurnLog
}

func NewService(deps Deps, historyTurns, topK int, logger *log.Logger) *Service {
	if historyTurns <= 0 {
		historyTurns = DefaultHistoryTurns
	}
	return &Service{
		retriever:    deps.Retriever,
		describer:    deps.Describer,
		tools:        deps.Tools,
		fuser:        deps.Fuser,
		shortTerm:    deps.ShortTerm,
		longTerm:     deps.LongTerm,
		historyTurns: historyTurns,
		topK:         topK,
		logger:       logger,
	}
}

// NewSessionID returns a fresh random session id.
func NewSessionID() string { return uuid.NewString() }

// Chat gathers context for the message, asks the models and records both
// turns. Only an empty message or a cancelled context is an error; every
// other failure degrades to less context.
func (s *Service) Chat(ctx context.Context, req Request) (*Response, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	session := req.SessionID
	if session == "" {
		session = DefaultSession
	}
	models := req.Models
	if len(models) == 0 {
		models = s.fuser.DefaultModels()
	}

	s.hydrate(ctx, session)

	var chunks []string
	if req.UseRAG {
		var err error
		chunks, err = s.retriever.Retrieve(ctx, message, s.topK)
		if err != nil {
			s.logger.Warn().Err(err).Str("session", session).Msg("retrieval failed, answering without documents")
			chunks = nil
		}
	}

	var images []string
	if len(req.ImageURLs) > 0 {
		images = s.describer.DescribeAll(ctx, req.ImageURLs)
	}

	var toolOutput string
	if len(req.Tools) > 0 {
		toolOutput = s.tools.Run(ctx, req.Tools, message)
	}

	guidance := BuildGuidance(s.history(session), chunks, images, toolOutput)

	s.record(ctx, session, domain.RoleUser, message)
	reply := s.fuser.Fuse(ctx, message, models, guidance)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.record(ctx, session, domain.RoleAssistant, reply)

	s.logger.Info().
		Str("session", session).
		Strs("models", models).
		Int("chunks", len(chunks)).
		Int("images", len(images)).
		Msg("chat answered")

	return &Response{Reply: reply, SessionID: session, Models: models, ContextChunks: len(chunks)}, nil
}

// History returns the session's short-term turns, oldest first.
func (s *Service) History(ctx context.Context, session string) []domain.Turn {
	if session == "" {
		session = DefaultSession
	}
	s.hydrate(ctx, session)
	return s.shortTerm.Get(session)
}

// BuildGuidance assembles the system guidance from the non-empty context
// sources. It returns "" when there is nothing to add.
func BuildGuidance(history []domain.Turn, chunks, images []string, toolOutput string) string {
	var sections []string
	if len(history) > 0 {
		lines := make([]string, len(history))
		for i, t := range history {
			lines[i] = string(t.Role) + ": " + t.Content
		}
		sections = append(sections, "Conversation history:\n"+strings.Join(lines, "\n"))
	}
	if len(chunks) > 0 {
		sections = append(sections, "Retrieved context:\n"+strings.Join(chunks, "\n---\n"))
	}
	if len(images) > 0 {
		sections = append(sections, "Image analysis:\n"+strings.Join(images, "\n"))
	}
	if strings.TrimSpace(toolOutput) != "" {
		sections = append(sections, "Tools:\n"+toolOutput)
	}
	return strings.Join(sections, "\n\n")
}

func (s *Service) history(session string) []domain.Turn {
	turns := s.shortTerm.Get(session)
	if over := len(turns) - s.historyTurns; over > 0 {
		turns = turns[over:]
	}
	return turns
}

// hydrate refills an empty short-term session from the durable log, so
// history survives a restart.
func (s *Service) hydrate(ctx context.Context, session string) {
	if s.longTerm == nil || s.shortTerm.Len(session) > 0 {
		return
	}
	turns, err := s.longTerm.Recent(ctx, session, s.shortTerm.Capacity())
	if err != nil {
		s.logger.Warn().Err(err).Str("session", session).Msg("could not load conversation log")
		return
	}
	if len(turns) > 0 && s.shortTerm.Seed(session, turns) {
		s.logger.Debug().Str("session", session).Int("turns", len(turns)).Msg("session restored from log")
	}
}

func (s *Service) record(ctx context.Context, session string, role domain.Role, content string) {
	s.shortTerm.Add(session, role, content)
	if s.longTerm == nil {
		return
	}
	if err := s.longTerm.Add(ctx, session, role, content); err != nil {
		s.logger.Warn().Err(err).Str("session", session).Msg("could not persist turn")
	}
}
