// Package tui is the interactive terminal front end: a chat transcript with
// live voice placeholders, transient banners, the CV ranking, the voice
// indicator and a command line.
package tui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/docent/internal/chat"
	"github.com/MrWong99/docent/internal/session"
	"github.com/MrWong99/docent/pkg/backend"
)

// Voice is the voice session control. [*session.Controller] satisfies it.
type Voice interface {
	Toggle(ctx context.Context) error
	State() session.State
	OnStateChange(fn func(session.State))
}

// Workflows are the chat and document operations. [*chat.Service]
// satisfies it.
type Workflows interface {
	SendMessage(ctx context.Context, q string) error
	ClearChat(ctx context.Context) error
	UploadPDF(ctx context.Context, path string) error
	ProcessPDF(ctx context.Context) (json.RawMessage, error)
	ClearPDF(ctx context.Context) error
	UploadJD(ctx context.Context, path string) (*backend.JDUpload, error)
	UploadCVs(ctx context.Context, paths []string) (*backend.CVUpload, error)
	CompareDocuments(ctx context.Context) ([]backend.Match, error)
	ClearMatching(ctx context.Context) error
	Matches() []backend.Match
	OnMatches(fn func([]backend.Match))
}

// Deps are the collaborators of the UI.
type Deps struct {
	Log       *chat.Log
	Banners   *chat.Notifier
	Workflows Workflows
	Voice     Voice
}

// refreshMsg asks the model to re-read the log, banners, matches and voice
// state.
type refreshMsg struct{}

// opDoneMsg ends a background operation.
type opDoneMsg struct {
	op   string
	err  error
	info json.RawMessage
}

// Model is the bubbletea model of the UI.
type Model struct {
	ctx  context.Context
	deps Deps

	input    textinput.Model
	viewport viewport.Model
	voice    session.State
	busy     map[string]bool
	info     string
	showHelp bool

	width, height int
	ready         bool
}

// New creates the UI model. ctx bounds every operation started from the UI.
func New(ctx context.Context, deps Deps) Model {
	in := textinput.New()
	in.Placeholder = "Ask about your document, or /help"
	in.Prompt = "> "
	in.CharLimit = 4000
	in.Focus()

	return Model{
		ctx:      ctx,
		deps:     deps,
		input:    in,
		viewport: viewport.New(80, 20),
		voice:    deps.Voice.State(),
		busy:     make(map[string]bool),
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.input.Width = max(msg.Width-4, 10)
		m.layout()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "ctrl+t":
			return m, m.run("voice", nil)
		case "enter":
			line := m.input.Value()
			m.input.SetValue("")
			cmd, quit := m.submit(line)
			if quit {
				return m, tea.Quit
			}
			cmds = append(cmds, cmd)
		case "pgup", "pgdown", "up", "down":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case refreshMsg:
		m.voice = m.deps.Voice.State()
		m.layout()
		return m, nil

	case opDoneMsg:
		delete(m.busy, msg.op)
		if msg.info != nil {
			m.info = formatInfo(msg.info)
		}
		if msg.op == "voice" && msg.err != nil && !errors.Is(msg.err, session.ErrSuperseded) {
			m.deps.Banners.Error(voiceFailure(msg.err))
		}
		m.layout()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit turns an input line into a background operation.
func (m *Model) submit(line string) (cmd tea.Cmd, quit bool) {
	c, err := parseInput(line)
	if err != nil {
		m.deps.Banners.Error(err.Error())
		return nil, false
	}
	switch c.name {
	case "":
		return nil, false
	case "quit":
		return nil, true
	case "help":
		m.showHelp = !m.showHelp
		m.layout()
		return nil, false
	}
	return m.run(c.name, c.args), false
}

// run starts op in the background. An op already in flight is not started
// again.
func (m *Model) run(op string, args []string) tea.Cmd {
	// Toggles always reach the controller so a second one can cancel a
	// start that is still negotiating.
	if op != "voice" {
		if m.busy[op] {
			return nil
		}
		m.busy[op] = true
	}
	ctx, deps := m.ctx, m.deps
	return func() tea.Msg {
		done := opDoneMsg{op: op}
		w := deps.Workflows
		switch op {
		case "say":
			done.err = w.SendMessage(ctx, args[0])
		case "voice":
			done.err = deps.Voice.Toggle(ctx)
		case "clear":
			done.err = w.ClearChat(ctx)
		case "upload":
			done.err = w.UploadPDF(ctx, strings.Join(args, " "))
		case "process":
			done.info, done.err = w.ProcessPDF(ctx)
		case "clear-pdf":
			done.err = w.ClearPDF(ctx)
			if done.err == nil {
				done.info = json.RawMessage("null")
			}
		case "jd":
			_, done.err = w.UploadJD(ctx, strings.Join(args, " "))
		case "cvs":
			_, done.err = w.UploadCVs(ctx, args)
		case "compare":
			_, done.err = w.CompareDocuments(ctx)
		case "clear-matching":
			done.err = w.ClearMatching(ctx)
		}
		return done
	}
}

// layout sizes the viewport and refreshes its content.
func (m *Model) layout() {
	if !m.ready {
		return
	}
	header := m.headerView()
	footer := m.footerView()
	h := m.height - lipgloss.Height(header) - lipgloss.Height(footer)
	m.viewport.Width = m.width
	m.viewport.Height = max(h, 3)

	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.transcriptView())
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// View renders the whole screen.
func (m Model) View() string {
	if !m.ready {
		return "starting…"
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.headerView(), m.viewport.View(), m.footerView())
}

func (m Model) headerView() string {
	title := titleStyle.Render("docent")
	gap := max(m.width-lipgloss.Width(title)-lipgloss.Width(m.voiceView())-1, 1)
	return title + strings.Repeat(" ", gap) + m.voiceView()
}

func (m Model) voiceView() string {
	switch m.voice {
	case session.StateActive:
		return voiceOn
	case session.StateStarting:
		return voiceStarting
	default:
		return voiceOff
	}
}

func (m Model) footerView() string {
	var parts []string
	for _, b := range m.deps.Banners.Active() {
		parts = append(parts, bannerStyles[b.Level].Render(b.Text))
	}
	if ops := m.busyView(); ops != "" {
		parts = append(parts, helpStyle.Render(ops))
	}
	parts = append(parts, m.input.View())
	if m.showHelp {
		parts = append(parts, helpView())
	} else {
		parts = append(parts, helpStyle.Render("enter send • ctrl+t voice • /help commands • ctrl+c quit"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) busyView() string {
	var ops []string
	for _, c := range []string{"say", "clear", "upload", "process", "clear-pdf", "jd", "cvs", "compare", "clear-matching"} {
		if m.busy[c] {
			ops = append(ops, c)
		}
	}
	if len(ops) == 0 {
		return ""
	}
	return "working: " + strings.Join(ops, ", ")
}

// transcriptView renders the log, live placeholders, extracted info and
// the CV ranking.
func (m Model) transcriptView() string {
	width := max(m.width-2, 20)
	var b strings.Builder
	for _, e := range m.deps.Log.Entries() {
		b.WriteString(renderEntry(e, width))
		b.WriteString("\n")
	}
	for _, role := range []chat.Role{chat.RoleUser, chat.RoleAssistant} {
		if text := m.deps.Log.Live(role); text != "" {
			b.WriteString(renderLive(role, text, width))
			b.WriteString("\n")
		}
	}
	if m.info != "" {
		b.WriteString("\n" + titleStyle.Render("Extracted information") + "\n" + m.info + "\n")
	}
	if matches := m.deps.Workflows.Matches(); len(matches) > 0 {
		b.WriteString("\n" + renderMatches(matches, width))
	}
	return b.String()
}

func renderEntry(e chat.Entry, width int) string {
	wrap := lipgloss.NewStyle().Width(width)
	switch e.Role {
	case chat.RoleUser:
		return wrap.Render(roleStyles[e.Role].Render("You:") + " " + e.Text)
	case chat.RoleAssistant:
		return wrap.Render(roleStyles[e.Role].Render("Assistant:") + " " + e.Text)
	default:
		return wrap.Render(roleStyles[chat.RoleError].Render(e.Text))
	}
}

func renderLive(role chat.Role, text string, width int) string {
	who := "You"
	if role == chat.RoleAssistant {
		who = "Assistant"
	}
	return lipgloss.NewStyle().Width(width).Render(liveStyle.Render(who + " (speaking): " + text))
}

func renderMatches(matches []backend.Match, width int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("CV ranking") + "\n")
	for i, mt := range matches {
		pct := gradeStyles[mt.Grade()].Render(fmt.Sprintf("%5.1f%%", mt.MatchPercentage))
		fmt.Fprintf(&b, "%d. %s %s  experience %s  education %s\n", i+1, pct, mt.CVName, yesNo(mt.ExperienceMatch), yesNo(mt.EducationMatch))
		if len(mt.MatchingSkills) > 0 {
			b.WriteString(lipgloss.NewStyle().Width(width).PaddingLeft(3).Render("matching: "+strings.Join(mt.MatchingSkills, ", ")) + "\n")
		}
		if len(mt.MissingSkills) > 0 {
			b.WriteString(lipgloss.NewStyle().Width(width).PaddingLeft(3).Render("missing: "+strings.Join(mt.MissingSkills, ", ")) + "\n")
		}
		summary := mt.OverallSummary
		if summary == "" {
			summary = mt.DetailedAnalysis
		}
		if summary != "" {
			b.WriteString(helpStyle.Width(width).PaddingLeft(3).Render(summary) + "\n")
		}
	}
	return b.String()
}

func helpView() string {
	var b strings.Builder
	for _, h := range commandHelp {
		fmt.Fprintf(&b, "  %-20s %s\n", h[0], h[1])
	}
	return helpStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// formatInfo indents a JSON document for display. null clears it.
func formatInfo(raw json.RawMessage) string {
	if string(raw) == "null" {
		return ""
	}
	var v any
	if json.Unmarshal(raw, &v) != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func voiceFailure(err error) string {
	var se *session.SetupError
	if errors.As(err, &se) {
		switch se.Kind {
		case session.KindPermission:
			return "Could not access the microphone: " + se.Err.Error()
		case session.KindNegotiation:
			return "Could not connect to the voice service: " + se.Err.Error()
		}
	}
	return "Voice session failed: " + err.Error()
}

func yesNo(b bool) string {
	if b {
		return "✓"
	}
	return "✗"
}
