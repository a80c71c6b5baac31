// Package tui renders the interactive registration screen.
//
// The screen mirrors the web form it replaces: email and password inputs,
// a Start button that attaches the camera and a Take Sample button that
// submits one face sample per press. Every action runs as a tea.Cmd and
// presses are ignored until the previous action reports back.
package tui

import (
	"context"
	"strings"

	"github.com/andresmejia3/facegate/internal/flow"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Starter begins registration sessions. *flow.Registration implements it.
type Starter interface {
	Begin(ctx context.Context, email, password string) (*flow.Session, flow.Outcome)
}

type focusTarget int

const (
	focusEmail focusTarget = iota
	focusPassword
	focusStart
	focusSample
	focusCount
)

type beganMsg struct {
	session *flow.Session
	outcome flow.Outcome
}

type capturedMsg struct {
	outcome flow.Outcome
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).MarginBottom(1)
	buttonStyle   = lipgloss.NewStyle().Padding(0, 2).Border(lipgloss.RoundedBorder())
	focusedButton = buttonStyle.BorderForeground(lipgloss.Color("205")).Bold(true)
	disabledStyle = buttonStyle.Foreground(lipgloss.Color("240")).BorderForeground(lipgloss.Color("238"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1)
)

// Model is the registration screen.
type Model struct {
	ctx     context.Context
	starter Starter

	email    textinput.Model
	password textinput.Model
	focus    focusTarget

	session  *flow.Session
	busy     bool
	status   string
	lastKind flow.Kind
	quitting bool
}

// New builds the screen. email and password pre-fill the inputs.
func New(ctx context.Context, starter Starter, email, password string) Model {
	ei := textinput.New()
	ei.Placeholder = "you@example.com"
	ei.Prompt = "Email    "
	ei.SetValue(email)
	ei.Focus()

	pi := textinput.New()
	pi.Placeholder = "password"
	pi.Prompt = "Password "
	pi.EchoMode = textinput.EchoPassword
	pi.EchoCharacter = '•'
	pi.SetValue(password)

	return Model{ctx: ctx, starter: starter, email: ei, password: pi}
}

// Session is the registration session, nil until Start succeeds.
func (m Model) Session() *flow.Session { return m.session }

// Status is the current status line.
func (m Model) Status() string { return m.status }

// Busy reports whether an action is in flight.
func (m Model) Busy() bool { return m.busy }

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case beganMsg:
		m.busy = false
		m.status = msg.outcome.Status
		m.lastKind = msg.outcome.Kind
		if msg.session != nil {
			m.session = msg.session
			m.setFocus(focusSample)
		}
		return m, nil

	case capturedMsg:
		m.busy = false
		if msg.outcome.Kind != flow.Skipped {
			m.status = msg.outcome.Status
			m.lastKind = msg.outcome.Kind
		}
		return m, nil
	}

	return m.updateInputs(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case "tab", "down":
		m.moveFocus(1)
		return m, nil
	case "shift+tab", "up":
		m.moveFocus(-1)
		return m, nil
	case "enter":
		return m.press()
	}
	return m.updateInputs(msg)
}

func (m Model) press() (tea.Model, tea.Cmd) {
	switch m.focus {
	case focusEmail, focusPassword:
		m.moveFocus(1)
		return m, nil
	case focusStart:
		if m.busy || !m.startEnabled() {
			return m, nil
		}
		m.busy = true
		ctx, starter := m.ctx, m.starter
		email, password := m.email.Value(), m.password.Value()
		return m, func() tea.Msg {
			s, out := starter.Begin(ctx, email, password)
			return beganMsg{session: s, outcome: out}
		}
	case focusSample:
		if m.busy || !m.captureEnabled() {
			return m, nil
		}
		m.busy = true
		ctx, s := m.ctx, m.session
		return m, func() tea.Msg {
			return capturedMsg{outcome: s.Capture(ctx)}
		}
	}
	return m, nil
}

func (m Model) startEnabled() bool {
	return m.session == nil
}

func (m Model) captureEnabled() bool {
	return m.session != nil && m.session.CaptureEnabled()
}

// moveFocus cycles through the controls that can take focus.
func (m *Model) moveFocus(step int) {
	next := m.focus
	for i := 0; i < int(focusCount); i++ {
		next = (next + focusTarget(step) + focusCount) % focusCount
		if m.focusable(next) {
			m.setFocus(next)
			return
		}
	}
}

func (m Model) focusable(f focusTarget) bool {
	switch f {
	case focusEmail, focusPassword, focusStart:
		return m.session == nil
	case focusSample:
		return m.captureEnabled()
	}
	return false
}

func (m *Model) setFocus(f focusTarget) {
	m.focus = f
	m.email.Blur()
	m.password.Blur()
	switch f {
	case focusEmail:
		m.email.Focus()
	case focusPassword:
		m.password.Focus()
	}
}

func (m Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.session != nil {
		return m, nil
	}
	var cmds [2]tea.Cmd
	m.email, cmds[0] = m.email.Update(msg)
	m.password, cmds[1] = m.password.Update(msg)
	return m, tea.Batch(cmds[:]...)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Face Registration"))
	b.WriteString("\n")
	b.WriteString(m.email.View())
	b.WriteString("\n")
	b.WriteString(m.password.View())
	b.WriteString("\n\n")

	start := renderButton("Start", m.startEnabled(), m.focus == focusStart)
	label := "Take Sample (1 / 5)"
	if m.session != nil {
		label = m.session.CaptureLabel()
	}
	sample := renderButton(label, m.captureEnabled(), m.focus == focusSample)
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, start, " ", sample))
	b.WriteString("\n")

	if m.busy {
		b.WriteString(hintStyle.Render("working..."))
		b.WriteString("\n")
	}
	if m.status != "" {
		style := okStyle
		if m.lastKind != flow.Success {
			style = errStyle
		}
		b.WriteString(style.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(hintStyle.Render("tab: move  enter: press  esc: quit"))
	return b.String()
}

func renderButton(label string, enabled, focused bool) string {
	switch {
	case !enabled:
		return disabledStyle.Render(label)
	case focused:
		return focusedButton.Render(label)
	default:
		return buttonStyle.Render(label)
	}
}
