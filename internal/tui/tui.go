// Package tui is the full screen terminal session host.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/scorzo/cloudcost/internal/chat"
	"github.com/scorzo/cloudcost/internal/session"
	"github.com/scorzo/cloudcost/internal/utils"
)

type replyMsg struct {
	reply string
	err   error
}

type toolCallMsg struct {
	name string
}

type fatalMsg struct {
	err error
}

type styles struct {
	header    lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	tool      lipgloss.Style
	errText   lipgloss.Style
	status    lipgloss.Style
}

func newStyles() styles {
	return styles{
		header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#f3f3ff")).
			Background(lipgloss.Color("#1b4f72")).
			Padding(0, 1),
		user:      lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1")).Bold(true),
		assistant: lipgloss.NewStyle().Foreground(lipgloss.Color("#01cdfe")).Bold(true),
		tool:      lipgloss.NewStyle().Foreground(lipgloss.Color("#c792ea")).Italic(true),
		errText:   lipgloss.NewStyle().Foreground(lipgloss.Color("#ff71ce")).Bold(true),
		status:    lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3d8")),
	}
}

type model struct {
	ctx  context.Context
	conv session.Conversation
	mode string

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	styles   styles

	transcript []string
	width      int
	ready      bool
	busy       bool
	err        error
}

func newModel(ctx context.Context, conv session.Conversation, mode string) model {
	input := textinput.New()
	input.Prompt = "You: "
	input.Placeholder = "Tell me about your AWS setup, or type help"
	input.CharLimit = 4000
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := model{
		ctx:      ctx,
		conv:     conv,
		mode:     mode,
		viewport: viewport.New(80, 20),
		input:    input,
		spinner:  sp,
		styles:   newStyles(),
		width:    80,
	}
	m.transcript = append(m.transcript, session.Welcome(mode))
	m.refresh()
	return m
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *model) appendLine(s string) {
	m.transcript = append(m.transcript, s)
	m.refresh()
}

func (m *model) refresh() {
	wrap := lipgloss.NewStyle().Width(m.width)
	rendered := make([]string, 0, len(m.transcript))
	for _, line := range m.transcript {
		rendered = append(rendered, wrap.Render(line))
	}
	m.viewport.SetContent(strings.Join(rendered, "\n"))
	m.viewport.GotoBottom()
}

func (m model) send(text string) tea.Cmd {
	return func() tea.Msg {
		reply, err := m.conv.SendMessage(m.ctx, text)
		return replyMsg{reply: reply, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		// header, status and input lines
		m.viewport.Height = max(msg.Height-3, 1)
		m.input.Width = max(msg.Width-len(m.input.Prompt)-1, 10)
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case tea.KeyEnter:
			return m.submit()
		}

	case replyMsg:
		m.busy = false
		if msg.err != nil {
			if session.IsFatal(msg.err) {
				m.err = msg.err
				return m, tea.Quit
			}
			if errors.Is(msg.err, context.Canceled) {
				return m, tea.Quit
			}
			m.appendLine(m.styles.errText.Render("Error: ") + msg.err.Error())
			m.appendLine("The request failed. Please try again or restart.")
			return m, nil
		}
		m.appendLine(m.styles.assistant.Render("Assistant: ") + msg.reply + "\n")
		return m, nil

	case toolCallMsg:
		m.appendLine(m.styles.tool.Render(session.ToolCallLine(msg.name)))
		return m, nil

	case fatalMsg:
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) submit() (tea.Model, tea.Cmd) {
	cmd, text := session.ParseCommand(m.input.Value())
	m.input.Reset()
	switch cmd {
	case session.CmdEmpty:
		return m, nil
	case session.CmdQuit:
		return m, tea.Quit
	case session.CmdHelp:
		m.appendLine(session.Help)
		return m, nil
	}
	if m.busy {
		m.appendLine(m.styles.status.Render(session.WaitMessage))
		return m, nil
	}
	if cmd == session.CmdReset {
		m.conv.Reset()
		m.appendLine(m.styles.status.Render(session.ResetMessage))
		return m, nil
	}
	m.busy = true
	m.appendLine(m.styles.user.Render("You: ") + text)
	return m, tea.Batch(m.spinner.Tick, m.send(text))
}

func (m model) View() string {
	title := "Cloud Cost Comparison Assistant"
	if m.mode != "" {
		title += " | " + m.mode
	}
	status := m.styles.status.Render("enter: send  pgup/pgdown: scroll  esc: quit")
	if m.busy {
		status = fmt.Sprintf("%v %v", m.spinner.View(), m.styles.status.Render("Thinking..."))
	}
	return strings.Join([]string{
		m.styles.header.Render(title),
		m.viewport.View(),
		status,
		m.input.View(),
	}, "\n")
}

// Run drives conv in a full screen program until the user quits, ctx is
// cancelled or an error arrives on fatal. A user initiated end returns
// utils.ErrUserInitiatedExit.
func Run(ctx context.Context, conv session.Conversation, fatal <-chan error, mode string) error {
	p := tea.NewProgram(newModel(ctx, conv, mode), tea.WithAltScreen(), tea.WithContext(ctx))

	unsubscribe := conv.Subscribe(func(ev chat.Event) {
		if ev.Kind == chat.EventToolCall {
			p.Send(toolCallMsg{name: ev.Tool})
		}
	})
	defer unsubscribe()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case err := <-fatal:
			p.Send(fatalMsg{err: err})
		case <-done:
		}
	}()

	final, err := p.Run()
	if ctx.Err() != nil {
		return utils.ErrUserInitiatedExit
	}
	if err != nil {
		return fmt.Errorf("failed to run terminal ui: %w", err)
	}
	if fm, ok := final.(model); ok && fm.err != nil {
		return fm.err
	}
	return utils.ErrUserInitiatedExit
}
