package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/nstogner/scholarmate/pkg/controller"
	"github.com/nstogner/scholarmate/pkg/domain"
	"github.com/spf13/cobra"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#4F46E5")).
			Padding(0, 1)

	senderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	sourceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).PaddingLeft(2)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true).Padding(0, 1) // Red
)

var errNewChatBusy = errors.New("wait for the reply to finish before starting a new chat")

type transcriptUpdateMsg string
type exchangeDoneMsg struct{ err error }
type newChatDoneMsg struct{}

type chatModel struct {
	ctx        context.Context
	controller *controller.Controller
	updates    <-chan string

	busy   bool
	width  int
	height int
	err    error

	// UI Components
	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
}

func newChatModel(ctx context.Context, ctrl *controller.Controller) chatModel {
	ta := textarea.New()
	ta.Placeholder = "Ask anything about your studies or the news..."
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 2000

	ta.SetWidth(80)
	ta.SetHeight(3)

	// Remove cursor line styling
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false

	m := chatModel{
		ctx:        ctx,
		controller: ctrl,
		updates:    ctrl.Transcript().Subscribe(),
		viewport:   viewport.New(80, 20),
		textarea:   ta,
		spinner:    spinner.New(spinner.WithSpinner(spinner.Dot)),
		renderer:   newRenderer(80),
	}
	m.refresh()
	return m
}

// newRenderer uses the "light" style to avoid terminal queries that leak into input.
func newRenderer(width int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("light"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		slog.Debug("Failed to create markdown renderer", "error", err)
		return nil
	}
	return r
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, waitForUpdate(m.updates))
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.textarea.SetWidth(msg.Width)
		m.viewport.Height = msg.Height - m.textarea.Height() - 3 // Header + status + margin
		if m.viewport.Height < 0 {
			m.viewport.Height = 0
		}
		m.renderer = newRenderer(max(m.width-4, 20))
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyCtrlN:
			return m.newChat()
		case tea.KeyEnter:
			if p, ok := m.quickPrompt(m.textarea.Value()); ok {
				m.textarea.Reset()
				return m.submit(p.Text)
			}
			return m.submit(m.textarea.Value())
		}

	case transcriptUpdateMsg:
		m.refresh()
		cmds = append(cmds, waitForUpdate(m.updates))

	case exchangeDoneMsg:
		m.busy = false
		m.err = msg.err
		m.refresh()

	case newChatDoneMsg:
		m.busy = false
		m.refresh()

	case spinner.TickMsg:
		if m.busy {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	var tiCmd, vpCmd tea.Cmd
	m.textarea, tiCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, tiCmd, vpCmd)

	return m, tea.Batch(cmds...)
}

// quickPrompt maps an input consisting of a single prompt number to that
// canned prompt while the chat is empty.
func (m chatModel) quickPrompt(input string) (controller.Prompt, bool) {
	input = strings.TrimSpace(input)
	if len(input) != 1 || m.busy || m.controller.Transcript().Len() > 0 {
		return controller.Prompt{}, false
	}
	prompts := append(append([]controller.Prompt(nil), controller.Starters...), controller.Features...)
	i := int(input[0]) - '1'
	if i < 0 || i >= len(prompts) {
		return controller.Prompt{}, false
	}
	return prompts[i], true
}

func (m chatModel) View() string {
	var status string
	switch {
	case m.err != nil:
		status = errorStyle.Width(m.width).Render(fmt.Sprintf("Error: %v", m.err))
	case m.busy:
		status = m.spinner.View() + hintStyle.Render(" ScholarMate is thinking...")
	default:
		status = hintStyle.Render("Enter to send · Ctrl+N new chat · /clear · /exit")
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Render("ScholarMate"),
		"",
		m.viewport.View(),
		status,
		m.textarea.View(),
	)
}

// Actions

func (m chatModel) submit(text string) (chatModel, tea.Cmd) {
	text = strings.TrimSpace(text)
	switch text {
	case "":
		return m, nil
	case "/exit":
		return m, tea.Quit
	case "/new", "/clear":
		if m.busy {
			m.err = errNewChatBusy
			return m, nil
		}
		m.textarea.Reset()
		return m.newChat()
	}

	// Input is ignored while a reply is streaming.
	if m.busy {
		return m, nil
	}

	m.textarea.Reset()
	m.busy = true
	m.err = nil

	ctx, ctrl := m.ctx, m.controller
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		_, err := ctrl.Submit(ctx, text)
		return exchangeDoneMsg{err: err}
	})
}

func (m chatModel) newChat() (chatModel, tea.Cmd) {
	if m.busy {
		m.err = errNewChatBusy
		return m, nil
	}
	m.busy = true
	m.err = nil

	ctx, ctrl := m.ctx, m.controller
	return m, func() tea.Msg {
		ctrl.NewChat(ctx)
		return newChatDoneMsg{}
	}
}

func (m *chatModel) refresh() {
	msgs := m.controller.Transcript().Messages()
	if len(msgs) == 0 {
		m.viewport.SetContent(renderWelcome())
		m.viewport.GotoTop()
		return
	}
	m.viewport.SetContent(renderTranscript(msgs, m.renderer))
	m.viewport.GotoBottom()
}

func renderWelcome() string {
	var sb strings.Builder
	sb.WriteString(senderStyle.Render("Hello, I'm ScholarMate."))
	sb.WriteString("\nAsk me to explain a concept, plan your studies or catch you up on the news.\n\n")
	sb.WriteString(hintStyle.Render("Try one of these (type its number and press Enter):"))
	sb.WriteString("\n")
	n := 1
	for _, p := range controller.Starters {
		fmt.Fprintf(&sb, "  %d. %s\n", n, p.Text)
		n++
	}
	sb.WriteString("\n")
	sb.WriteString(hintStyle.Render("Features:"))
	sb.WriteString("\n")
	for _, p := range controller.Features {
		fmt.Fprintf(&sb, "  %d. %s\n", n, p.Label)
		n++
	}
	return sb.String()
}

func renderTranscript(msgs []domain.Message, renderer *glamour.TermRenderer) string {
	var sb strings.Builder
	for _, msg := range msgs {
		if msg.Role == domain.RoleUser {
			sb.WriteString(userStyle.Render("You: "))
		} else {
			sb.WriteString(senderStyle.Render("ScholarMate: "))
		}
		sb.WriteString("\n")

		switch {
		case msg.Content != "":
			sb.WriteString(renderMarkdown(renderer, msg.Content))
		case !msg.IsError:
			sb.WriteString(hintStyle.Render("  ..."))
		}
		sb.WriteString("\n")

		if msg.IsError {
			sb.WriteString(errorStyle.Render(msg.Error))
			sb.WriteString("\n")
		}

		if sources := domain.UniqueSources(msg.Metadata); len(sources) > 0 {
			sb.WriteString(hintStyle.Render("  Sources:"))
			sb.WriteString("\n")
			for i, s := range sources {
				sb.WriteString(sourceStyle.Render(fmt.Sprintf("[%d] %s - %s", i+1, s.Label(), s.URI)))
				sb.WriteString("\n")
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderMarkdown(renderer *glamour.TermRenderer, content string) string {
	if renderer == nil {
		return content
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return content // Fallback
	}
	return rendered
}

func waitForUpdate(sub <-chan string) tea.Cmd {
	return func() tea.Msg {
		id, ok := <-sub
		if !ok {
			return nil
		}
		return transcriptUpdateMsg(id)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The terminal belongs to the UI, so logs go to a file.
	f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer f.Close()
	setupLogging(f, cfg)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a := newApp(cfg)
	defer a.Close()
	a.controller.Start(ctx)

	p := tea.NewProgram(newChatModel(ctx, a.controller), tea.WithAltScreen())
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running chat: %w", err)
	}
	return nil
}
