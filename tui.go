package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"talkback/chat"
	"talkback/export"
	"talkback/log"
	"talkback/speech"
	"talkback/transcript"
)

// TUI message types
type LiveMsg struct{ Text string }     // speech source changed
type SnapshotMsg struct{ Text string } // answer grew
type AnswerMsg struct {
	Text string
	Err  error
}

type focus int

const (
	focusNone focus = iota
	focusSay
	focusRole
	focusLabel
)

type tuiModel struct {
	sess   *chat.Session
	mic    *speech.Fake
	preset string
	label  string

	ctx    context.Context
	cancel context.CancelFunc

	focus      focus
	say        textinput.Model
	role       textinput.Model
	exportName textinput.Model
	editor     textarea.Model
	spinner    spinner.Model

	submitting    bool
	answer        string
	status        string
	width, height int
}

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	boldHelp    = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	liveStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	textStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	answerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")).Padding(0, 1)
)

func NewTUIProgram(sess *chat.Session, mic *speech.Fake, preset, label string) *tea.Program {
	ctx, cancel := context.WithCancel(context.Background())

	say := textinput.New()
	say.Prompt = "say> "
	say.Placeholder = "type what the microphone hears, enter to dictate"

	role := textinput.New()
	role.Prompt = "role> "
	role.SetValue(sess.Role())

	name := textinput.New()
	name.Prompt = "label> "
	name.Placeholder = export.DefaultLabel

	editor := textarea.New()
	editor.ShowLineNumbers = false
	editor.SetHeight(5)

	sp := spinner.New()
	sp.Spinner = spinner.Points

	m := tuiModel{
		sess:       sess,
		mic:        mic,
		preset:     preset,
		label:      label,
		ctx:        ctx,
		cancel:     cancel,
		say:        say,
		role:       role,
		exportName: name,
		editor:     editor,
		spinner:    sp,
	}
	if mic != nil {
		m.focus = focusSay
		m.say.Focus()
	}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func waitForLive(src speech.Source) tea.Cmd {
	return func() tea.Msg {
		return LiveMsg{Text: <-src.Updates()}
	}
}

func sendToTUI(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()

	if p != nil {
		p.Send(msg)
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForLive(m.sess.Speech()))
}

func (m tuiModel) streamAnswer(sub transcript.Submission) tea.Cmd {
	sess, ctx := m.sess, m.ctx
	return func() tea.Msg {
		text, err := sess.Stream(ctx, sub, func(s string) {
			sendToTUI(SnapshotMsg{Text: s})
		})
		return AnswerMsg{Text: text, Err: err}
	}
}

func (m *tuiModel) setFocus(f focus) {
	m.focus = f
	m.say.Blur()
	m.role.Blur()
	m.exportName.Blur()
	switch f {
	case focusSay:
		m.say.Focus()
	case focusRole:
		m.role.Focus()
	case focusLabel:
		m.exportName.Focus()
	}
}

func (m *tuiModel) restFocus() {
	if m.mic != nil {
		m.setFocus(focusSay)
	} else {
		m.setFocus(focusNone)
	}
}

func (m *tuiModel) report(err error) {
	if err != nil {
		m.status = err.Error()
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.editor.SetWidth(max(msg.Width-4, 20))
		return m, nil

	case LiveMsg:
		return m, waitForLive(m.sess.Speech())

	case SnapshotMsg:
		// cleared or stopped while the request was in flight
		if !m.submitting || m.sess.Mode() != transcript.Submitting {
			return m, nil
		}
		m.answer = msg.Text
		return m, nil

	case AnswerMsg:
		m.submitting = false
		m.report(m.sess.Finish(msg.Text, msg.Err))
		m.answer = m.sess.Response()
		if chat.Retryable(msg.Err) {
			m.status = "request failed, text kept for retry"
		}
		return m, nil

	case spinner.TickMsg:
		if !m.submitting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.cancel()
		return m, tea.Quit
	}

	if m.sess.ExportPending() {
		switch msg.String() {
		case "enter":
			label := strings.TrimSpace(m.exportName.Value())
			if label == "" {
				label = m.label
			}
			err := m.sess.ConfirmExport(label)
			switch {
			case errors.Is(err, export.ErrNothingToExport):
				m.status = "nothing to export"
			case err != nil:
				m.status = "export failed: " + err.Error()
				return m, nil
			default:
				m.status = "history copied to clipboard"
			}
			m.exportName.Reset()
			m.restFocus()
		case "esc":
			m.sess.DiscardExport()
			m.status = "history discarded"
			m.exportName.Reset()
			m.restFocus()
		default:
			var cmd tea.Cmd
			m.exportName, cmd = m.exportName.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	if m.sess.Mode() == transcript.Editing {
		switch msg.String() {
		case "esc", "ctrl+e":
			m.report(m.sess.SetEdit(m.editor.Value()))
			m.report(m.sess.ExitEdit())
			m.editor.Blur()
			m.restFocus()
			return m, nil
		case "ctrl+s":
			m.report(m.sess.SetEdit(m.editor.Value()))
			next, cmd := m.submit()
			nm := next.(tuiModel)
			if nm.sess.Mode() != transcript.Editing {
				nm.editor.Blur()
				nm.restFocus()
			}
			return nm, cmd
		}
		var cmd tea.Cmd
		m.editor, cmd = m.editor.Update(msg)
		return m, cmd
	}

	if m.focus == focusRole {
		switch msg.String() {
		case "enter", "esc":
			m.sess.SetRole(m.role.Value())
			m.restFocus()
			return m, nil
		}
		var cmd tea.Cmd
		m.role, cmd = m.role.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+l":
		m.status = ""
		m.answer = ""
		m.report(m.sess.Start())
		return m, nil
	case "ctrl+e":
		if err := m.sess.EnterEdit(); err != nil {
			m.report(err)
			return m, nil
		}
		m.setFocus(focusNone)
		m.editor.SetValue(m.sess.Display())
		m.editor.Focus()
		return m, textarea.Blink
	case "ctrl+s":
		return m.submit()
	case "ctrl+x":
		m.answer = ""
		m.status = ""
		m.report(m.sess.Clear())
		return m, nil
	case "ctrl+q":
		m.report(m.sess.StopSession())
		m.setFocus(focusLabel)
		return m, textinput.Blink
	case "ctrl+r":
		m.role.SetValue(m.sess.Role())
		m.setFocus(focusRole)
		return m, textinput.Blink
	}

	if m.focus == focusSay {
		if msg.String() == "enter" {
			if words := m.say.Value(); words != "" {
				if !m.mic.Say(words) {
					m.status = "not listening, press ctrl+l"
				}
				m.say.Reset()
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.say, cmd = m.say.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m tuiModel) submit() (tea.Model, tea.Cmd) {
	if m.submitting {
		return m, nil
	}
	sub, err := m.sess.Prepare()
	if err != nil {
		m.report(err)
		return m, nil
	}
	m.status = ""
	m.answer = ""
	m.submitting = true
	log.Infof("submitting %d chars to %s", len(sub.Prompt), m.sess.Backend())
	return m, tea.Batch(m.spinner.Tick, m.streamAnswer(sub))
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	wrapWidth := max(m.width-6, 10)

	var b strings.Builder

	// Header
	mode := m.sess.Mode()
	status := dimStyle.Render("○ " + strings.ToUpper(mode.String()))
	if mode == transcript.Listening && m.sess.Speech().IsActive() {
		status = liveStyle.Render("● LISTENING")
	}
	b.WriteString(titleStyle.Render("talkback") + "  " + status + "\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("[%s | %s | %s]", m.preset, m.sess.Backend(), m.sess.Speech().Name())) + "\n")
	if m.focus == focusRole {
		b.WriteString(m.role.View() + "\n")
	} else {
		role := m.sess.Role()
		if role == "" {
			role = "(none, ctrl+r to set)"
		}
		b.WriteString(dimStyle.Render("role: "+role) + "\n")
	}
	if n := len(m.sess.History()); n > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("memory: %d turns", n)) + "\n")
	}
	b.WriteString("\n")

	// Transcript
	if mode == transcript.Editing {
		b.WriteString(boxStyle.Render(m.editor.View()) + "\n")
	} else {
		text := m.sess.Display()
		if text == "" {
			b.WriteString(boxStyle.Render(dimStyle.Render("Nothing captured yet")) + "\n")
		} else {
			var lines []string
			for _, l := range wrapText(text, wrapWidth) {
				lines = append(lines, textStyle.Render(l))
			}
			b.WriteString(boxStyle.Render(strings.Join(lines, "\n")) + "\n")
		}
	}
	if m.focus == focusSay {
		b.WriteString(m.say.View() + "\n")
	}
	b.WriteString("\n")

	// Answer
	if m.submitting {
		b.WriteString(m.spinner.View() + dimStyle.Render(" waiting for answer...") + "\n")
	}
	if m.answer != "" {
		for _, l := range wrapText(m.answer, wrapWidth) {
			b.WriteString(answerStyle.Render(l) + "\n")
		}
	}
	if err := m.sess.Err(); err != nil {
		b.WriteString(errStyle.Render("⚠ "+err.Error()) + "\n")
	}
	if m.status != "" {
		b.WriteString(errStyle.Render(m.status) + "\n")
	}

	// Export prompt
	if m.sess.ExportPending() {
		b.WriteString("\n" + dimStyle.Render("Export history? enter to copy, esc to discard") + "\n")
		b.WriteString(m.exportName.View() + "\n")
	}

	b.WriteString("\n")
	keys := []struct{ key, what string }{
		{"ctrl+l", "listen"}, {"ctrl+e", "edit"}, {"ctrl+s", "ask"},
		{"ctrl+x", "clear"}, {"ctrl+q", "stop"}, {"ctrl+r", "role"}, {"ctrl+c", "quit"},
	}
	var help []string
	for _, k := range keys {
		help = append(help, boldHelp.Render(k.key)+helpStyle.Render(" "+k.what))
	}
	b.WriteString(strings.Join(help, helpStyle.Render(" · ")) + "\n")
	b.WriteString(helpStyle.Render("talkback " + version))

	return lipgloss.NewStyle().Width(m.width).MaxHeight(m.height).Render(b.String())
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		for len(para) > width {
			// Find last space within width
			splitAt := width
			for i := width; i > 0; i-- {
				if para[i] == ' ' {
					splitAt = i
					break
				}
			}
			lines = append(lines, para[:splitAt])
			para = strings.TrimLeft(para[splitAt:], " ")
		}
		lines = append(lines, para)
	}
	return lines
}
