package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localcog/internal/chat"
	"localcog/internal/domain"
)

type fakeChat struct {
	got     chat.Request
	ctxErr  error
	err     error
	history []domain.Turn
}

func (f *fakeChat) Chat(ctx context.Context, req chat.Request) (*chat.Response, error) {
	f.got = req
	f.ctxErr = ctx.Err()
	if f.ctxErr != nil {
		return nil, f.ctxErr
	}
	if f.err != nil {
		return nil, f.err
	}
	return &chat.Response{Reply: "Paris", Models: []string{"llama3"}}, nil
}

func (f *fakeChat) History(context.Context, string) []domain.Turn { return f.history }

func typeText(m tea.Model, s string) tea.Model {
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return m
}

func TestModel_SendAndReceive(t *testing.T) {
	svc := &fakeChat{}
	var m tea.Model = New(svc, Options{SessionID: "s1", UseRAG: true, Models: []string{"llama3"}})
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	m = typeText(m, "capital of France?")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)

	mid := m.(Model)
	assert.True(t, mid.waiting)
	require.Len(t, mid.turns, 1)
	assert.Equal(t, "", mid.input.Value())

	m, _ = m.Update(cmd())
	done := m.(Model)
	assert.False(t, done.waiting)
	require.Len(t, done.turns, 2)
	assert.Equal(t, "Paris", done.turns[1].Content)
	assert.Equal(t, "s1", svc.got.SessionID)
	assert.True(t, svc.got.UseRAG)
	assert.Contains(t, done.View(), "Paris")
}

func TestModel_ErrorShownInStatus(t *testing.T) {
	var m tea.Model = New(&fakeChat{err: errors.New("boom")}, Options{})
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = typeText(m, "hi")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = m.Update(cmd())

	assert.Equal(t, "Error: boom", m.(Model).status)
	assert.Len(t, m.(Model).turns, 1)
}

func TestModel_IgnoresBlankInputAndLoadsHistory(t *testing.T) {
	svc := &fakeChat{history: []domain.Turn{{Role: domain.RoleUser, Content: "earlier"}}}
	var m tea.Model = New(svc, Options{})
	assert.Equal(t, "Loading...", m.View())

	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "earlier")
}

func TestModel_Quit(t *testing.T) {
	m := New(&fakeChat{}, Options{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModel_CancelledContextAbortsRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc := &fakeChat{}
	var m tea.Model = New(svc, Options{Context: ctx})
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = typeText(m, "hi")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)

	cancel()
	m, _ = m.Update(cmd())
	assert.ErrorIs(t, svc.ctxErr, context.Canceled)
	assert.Equal(t, "Error: "+context.Canceled.Error(), m.(Model).status)
}

func TestModel_LayoutFitsTerminal(t *testing.T) {
	tests := []struct {
		width, height int
	}{
		{80, 24},
		{120, 40},
		{60, 20},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%dx%d", tt.width, tt.height), func(t *testing.T) {
			svc := &fakeChat{history: []domain.Turn{{Role: domain.RoleUser, Content: strings.Repeat("word ", 60)}}}
			var m tea.Model = New(svc, Options{SessionID: "s1"})
			m, _ = m.Update(tea.WindowSizeMsg{Width: tt.width, Height: tt.height})

			frame, _ := transcriptBoxStyle.GetFrameSize()
			assert.Equal(t, tt.width-frame, m.(Model).viewport.Width)
			for _, line := range strings.Split(m.View(), "\n") {
				assert.LessOrEqual(t, lipgloss.Width(line), tt.width, line)
			}
		})
	}
}
