package chat

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localcog/internal/domain"
	"localcog/internal/logger"
	"localcog/internal/memory"
)

type fakeRetriever struct {
	chunks []string
	err    error
	calls  int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, _ int) ([]string, error) {
	f.calls++
	return f.chunks, f.err
}

type fakeDescriber struct{}

func (fakeDescriber) DescribeAll(_ context.Context, urls []string) []string {
	out := make([]string, len(urls))
	for i, u := range urls {
		out[i] = "picture at " + u
	}
	return out
}

type fakeTools struct{}

func (fakeTools) Run(_ context.Context, names []string, input string) string {
	if len(names) == 0 {
		return ""
	}
	return "[web_search]\nresults for " + input
}

type fakeFuser struct {
	reply    string
	prompt   string
	models   []string
	guidance string
}

func (f *fakeFuser) Fuse(_ context.Context, prompt string, models []string, guidance string) string {
	f.prompt, f.models, f.guidance = prompt, models, guidance
	return f.reply
}

func (f *fakeFuser) DefaultModels() []string { return []string{"llama3", "mistral"} }

func newService(t *testing.T, retriever *fakeRetriever, fuser *fakeFuser, long TurnLog) (*Service, *memory.ShortTerm) {
	t.Helper()
	short := memory.NewShortTerm(50)
	svc := NewService(Deps{
		Retriever: retriever,
		Describer: fakeDescriber{},
		Tools:     fakeTools{},
		Fuser:     fuser,
		ShortTerm: short,
		LongTerm:  long,
	}, 8, 4, logger.Nop())
	return svc, short
}

func TestBuildGuidance(t *testing.T) {
	history := []domain.Turn{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "hello"},
	}
	tests := []struct {
		name    string
		history []domain.Turn
		chunks  []string
		images  []string
		tools   string
		want    string
	}{
		{name: "nothing", want: ""},
		{
			name:   "chunks only",
			chunks: []string{"first", "second"},
			want:   "Retrieved context:\nfirst\n---\nsecond",
		},
		{
			name:    "all sections in order",
			history: history,
			chunks:  []string{"doc"},
			images:  []string{"a cat"},
			tools:   "[web_search]\nnews",
			want: "Conversation history:\nuser: hi\nassistant: hello\n\n" +
				"Retrieved context:\ndoc\n\n" +
				"Image analysis:\na cat\n\n" +
				"Tools:\n[web_search]\nnews",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildGuidance(tt.history, tt.chunks, tt.images, tt.tools))
		})
	}
}

func TestService_Chat_GathersContext(t *testing.T) {
	retriever := &fakeRetriever{chunks: []string{"Paris is the capital of France."}}
	fuser := &fakeFuser{reply: "Paris"}
	svc, short := newService(t, retriever, fuser, nil)

	resp, err := svc.Chat(context.Background(), Request{
		Message:   "  capital of France?  ",
		UseRAG:    true,
		ImageURLs: []string{"http://img/1.png"},
		Tools:     []string{"web_search"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Paris", resp.Reply)
	assert.Equal(t, DefaultSession, resp.SessionID)
	assert.Equal(t, []string{"llama3", "mistral"}, resp.Models)
	assert.Equal(t, 1, resp.ContextChunks)

	assert.Equal(t, "capital of France?", fuser.prompt)
	assert.Equal(t, "Retrieved context:\nParis is the capital of France.\n\n"+
		"Image analysis:\npicture at http://img/1.png\n\n"+
		"Tools:\n[web_search]\nresults for capital of France?", fuser.guidance)

	turns := short.Get(DefaultSession)
	require.Len(t, turns, 2)
	assert.Equal(t, domain.RoleUser, turns[0].Role)
	assert.Equal(t, "Paris", turns[1].Content)
}

func TestService_Chat_HistoryIsBounded(t *testing.T) {
	fuser := &fakeFuser{reply: "ok"}
	svc, _ := newService(t, &fakeRetriever{}, fuser, nil)

	for i := 0; i < 6; i++ {
		_, err := svc.Chat(context.Background(), Request{Message: "m", SessionID: "s", Models: []string{"x"}})
		require.NoError(t, err)
	}
	// 12 turns recorded, only the last 8 are shown
	assert.Contains(t, fuser.guidance, "Conversation history:\n")
	assert.Equal(t, 8, countLines(fuser.guidance)-1)
	assert.Equal(t, []string{"x"}, fuser.models)
}

func TestService_Chat_RetrievalFailureIsNotFatal(t *testing.T) {
	retriever := &fakeRetriever{err: errors.New("corpus unreadable")}
	fuser := &fakeFuser{reply: "fine"}
	svc, _ := newService(t, retriever, fuser, nil)

	resp, err := svc.Chat(context.Background(), Request{Message: "q", UseRAG: true})
	require.NoError(t, err)
	assert.Equal(t, "fine", resp.Reply)
	assert.Equal(t, 0, resp.ContextChunks)
	assert.Equal(t, "", fuser.guidance)
}

func TestService_Chat_SkipsRetrievalWhenNotAsked(t *testing.T) {
	retriever := &fakeRetriever{chunks: []string{"unused"}}
	svc, _ := newService(t, retriever, &fakeFuser{reply: "x"}, nil)

	_, err := svc.Chat(context.Background(), Request{Message: "q"})
	require.NoError(t, err)
	assert.Equal(t, 0, retriever.calls)
}

func TestService_Chat_EmptyMessage(t *testing.T) {
	svc, _ := newService(t, &fakeRetriever{}, &fakeFuser{}, nil)
	_, err := svc.Chat(context.Background(), Request{Message: " \n"})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestService_HistorySurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.sqlite3")
	long, err := memory.OpenLongTerm(path, 1000, logger.Nop())
	require.NoError(t, err)
	defer long.Close()

	first, _ := newService(t, &fakeRetriever{}, &fakeFuser{reply: "Hello Ada"}, long)
	_, err = first.Chat(context.Background(), Request{Message: "I am Ada", SessionID: "s1"})
	require.NoError(t, err)

	// a new service has an empty short-term memory
	fuser := &fakeFuser{reply: "Ada"}
	second, _ := newService(t, &fakeRetriever{}, fuser, long)
	_, err = second.Chat(context.Background(), Request{Message: "who am I?", SessionID: "s1"})
	require.NoError(t, err)

	assert.Equal(t, "Conversation history:\nuser: I am Ada\nassistant: Hello Ada", fuser.guidance)
	assert.Len(t, second.History(context.Background(), "s1"), 4)
}

func countLines(s string) int {
	n := 1
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}
	return n
}
