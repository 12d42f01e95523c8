// Package tui provides the interactive chat client. Tokens from the
// assistant stream into the viewport as they arrive.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// ChatPort is the TUI-facing subset of the assistant.
type ChatPort interface {
	StreamChat(ctx context.Context, conversationID, message string, filter map[string]any) (<-chan ports.StreamToken, []entities.ScoredChunk, error)
}

type tokenMsg ports.StreamToken

// streamClosedMsg fires when the token channel closes, which is only after
// the assistant has finalized and persisted the turn.
type streamClosedMsg struct{}

type streamStartedMsg struct {
	ch      <-chan ports.StreamToken
	sources []entities.ScoredChunk
	err     error
}

// Model is the Bubble Tea model for the chat session.
type Model struct {
	assistant      ChatPort
	conversationID string

	input    textinput.Model
	viewport viewport.Model

	transcript string
	current    string
	sources    []entities.ScoredChunk
	stream     <-chan ports.StreamToken
	streaming  bool
	status     string
	ready      bool
}

// New creates a chat model bound to one conversation.
func New(assistant ChatPort, conversationID string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask something and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		assistant:      assistant,
		conversationID: conversationID,
		input:          ti,
		viewport:       vp,
		status:         fmt.Sprintf("Conversation %s. Ctrl+C to quit.", conversationID),
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// startStream kicks off a streamed turn for the given message.
func (m Model) startStream(message string) tea.Cmd {
	return func() tea.Msg {
		ch, sources, err := m.assistant.StreamChat(context.Background(), m.conversationID, message, nil)
		return streamStartedMsg{ch: ch, sources: sources, err: err}
	}
}

// awaitToken pulls the next token off the stream.
func awaitToken(ch <-chan ports.StreamToken) tea.Cmd {
	return func() tea.Msg {
		token, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return tokenMsg(token)
	}
}

// Update handles key, window, and stream events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, fh := chatBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		vh := msg.Height - fh - ih - 4
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = maxInt(20, msg.Width-2)
		m.viewport.Height = vh
		m.viewport.SetContent(m.renderTranscript())
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.String() == "enter" && !m.streaming {
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				return m, nil
			}
			m.input.SetValue("")
			m.streaming = true
			m.status = "Thinking..."
			m.transcript += fmt.Sprintf("%s %s\n\n", userStyle.Render("You:"), q)
			m.current = ""
			m.viewport.SetContent(m.renderTranscript())
			m.viewport.GotoBottom()
			return m, m.startStream(q)
		}

	case streamStartedMsg:
		if msg.err != nil {
			m.streaming = false
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.stream = msg.ch
		m.sources = msg.sources
		return m, awaitToken(m.stream)

	case tokenMsg:
		if msg.Error != nil {
			m.streaming = false
			m.status = "Error: " + msg.Error.Error()
			return m, nil
		}
		m.current += msg.Content
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		// Keep draining past the Done token; input reopens only once the
		// channel closes and the turn is fully committed.
		return m, awaitToken(m.stream)

	case streamClosedMsg:
		m.finishTurn()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// finishTurn commits the streamed answer to the transcript.
func (m *Model) finishTurn() {
	m.transcript += fmt.Sprintf("%s %s\n", assistantStyle.Render("Assistant:"), m.current)
	if len(m.sources) > 0 {
		names := make([]string, 0, len(m.sources))
		for _, s := range m.sources {
			if src, ok := s.Chunk.Metadata["source"].(string); ok && src != "" {
				names = append(names, src)
			} else {
				names = append(names, s.Chunk.ID)
			}
		}
		m.transcript += sourceStyle.Render("sources: "+strings.Join(names, ", ")) + "\n"
	}
	m.transcript += "\n"
	m.current = ""
	m.streaming = false
	m.status = "Ready."
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// View renders the chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("ragchat")
	chat := chatBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + chat + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	out := m.transcript
	if m.streaming {
		out += assistantStyle.Render("Assistant:") + " " + m.current + "▊"
	}
	if out == "" {
		return "No messages yet."
	}
	return out
}

var (
	chatBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	sourceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
