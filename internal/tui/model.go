package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"localcog/internal/chat"
	"localcog/internal/domain"
)

// ChatPort is the TUI-facing subset of the chat service.
type ChatPort interface {
	Chat(ctx context.Context, req chat.Request) (*chat.Response, error)
	History(ctx context.Context, session string) []domain.Turn
}

// Options are fixed for the lifetime of the session.
type Options struct {
	// Context bounds every request; cancelling it aborts the one in flight.
	Context   context.Context
	SessionID string
	Models    []string
	UseRAG    bool
	Tools     []string
	Timeout   time.Duration
}

type replyMsg struct {
	resp *chat.Response
	err  error
	took time.Duration
}

// Model is the Bubble Tea model for the chat client.
type Model struct {
	service  ChatPort
	opts     Options
	input    textinput.Model
	viewport viewport.Model
	turns    []domain.Turn
	status   string
	waiting  bool
	ready    bool
}

// New creates a new TUI model instance.
func New(service ChatPort, opts Options) Model {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Minute
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a message and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		service:  service,
		opts:     opts,
		input:    ti,
		viewport: vp,
		turns:    service.History(opts.Context, opts.SessionID),
		status:   "Ready. Enter sends, Ctrl+C quits.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and reply events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		tw, th := transcriptBoxStyle.GetFrameSize()
		iw, ih := inputBoxStyle.GetFrameSize()
		reserved := 1 + 1 + ih + 1 // header, status, spacer
		m.viewport.Width = max(20, msg.Width-tw)
		// prompt and cursor cell sit beside the text field
		m.input.Width = max(10, msg.Width-iw-lipgloss.Width(m.input.Prompt)-1)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil
	case replyMsg:
		m.waiting = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.turns = append(m.turns, domain.Turn{Role: domain.RoleAssistant, Content: msg.resp.Reply, At: time.Now()})
			m.status = fmt.Sprintf("Answered by %s in %s", strings.Join(msg.resp.Models, ", "), msg.took.Round(time.Millisecond))
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.waiting {
				return m, nil
			}
			m.input.SetValue("")
			m.turns = append(m.turns, domain.Turn{Role: domain.RoleUser, Content: text, At: time.Now()})
			m.waiting = true
			m.status = "Asking models..."
			m.refresh()
			return m, m.send(text)
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// send runs the request off the UI loop.
func (m Model) send(text string) tea.Cmd {
	req := chat.Request{
		Message:   text,
		Models:    m.opts.Models,
		UseRAG:    m.opts.UseRAG,
		Tools:     m.opts.Tools,
		SessionID: m.opts.SessionID,
	}
	service, parent, timeout := m.service, m.opts.Context, m.opts.Timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		start := time.Now()
		resp, err := service.Chat(ctx, req)
		return replyMsg{resp: resp, err: err, took: time.Since(start)}
	}
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("localcog chat") + " " + dimStyle.Render(m.describeSession())
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

func (m Model) describeSession() string {
	parts := []string{"session " + m.opts.SessionID}
	if len(m.opts.Models) > 0 {
		parts = append(parts, "models "+strings.Join(m.opts.Models, ","))
	}
	if m.opts.UseRAG {
		parts = append(parts, "rag on")
	}
	return strings.Join(parts, " | ")
}

func (m *Model) refresh() {
	m.viewport.SetContent(renderTranscript(m.turns, m.viewport.Width))
	m.viewport.GotoBottom()
}

func renderTranscript(turns []domain.Turn, width int) string {
	if len(turns) == 0 {
		return dimStyle.Render("No messages yet.")
	}
	body := lipgloss.NewStyle().Width(max(10, width-4))
	blocks := make([]string, 0, len(turns))
	for _, t := range turns {
		label := userStyle.Render("you")
		if t.Role == domain.RoleAssistant {
			label = assistantStyle.Render("models")
		}
		blocks = append(blocks, label+"\n"+body.Render(t.Content))
	}
	return strings.Join(blocks, "\n\n")
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	headerStyle        = lipgloss.NewStyle().Bold(true)
	dimStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)
