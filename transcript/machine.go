package transcript

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyPrompt       = errors.New("empty prompt: say something before asking")
	ErrMissingRole       = errors.New("missing role: enter a role first")
	ErrMissingCredential = errors.New("missing credential: enter an API key")
	ErrInvalidTransition = errors.New("invalid transition")
)

type Mode int

const (
	Idle Mode = iota
	Listening
	Editing
	Submitting
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Editing:
		return "editing"
	case Submitting:
		return "submitting"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Command is a side effect requested by a transition. The host executes
// commands in order against the speech source and the display.
type Command int

const (
	ResetLiveFeed Command = iota
	StartListening
	StopListening
	ClearDisplay
	PromptExport
)

func (c Command) String() string {
	switch c {
	case ResetLiveFeed:
		return "reset_live_feed"
	case StartListening:
		return "start_listening"
	case StopListening:
		return "stop_listening"
	case ClearDisplay:
		return "clear_display"
	case PromptExport:
		return "prompt_export"
	}
	return fmt.Sprintf("command(%d)", int(c))
}

type Config struct {
	RequireCredential bool
	Memory            bool
	Connective        string
}

// Submission is what an accepted submit hands to the network layer.
type Submission struct {
	Text       string // this turn's combined text
	Prompt     string // Text composed with remembered turns
	Role       string
	Credential string
	Turns      int // remembered turns folded into Prompt
}

// Machine owns the base text, edit buffer and prompt history. It never
// touches the speech source: the live feed is passed in by the caller and
// every side effect comes back as a Command.
type Machine struct {
	cfg     Config
	mode    Mode
	base    string
	edit    string
	history []string

	// state captured by Submit, applied by Complete
	pending     string
	fromEditing bool
}

func New(cfg Config) *Machine {
	if cfg.Connective == "" {
		cfg.Connective = DefaultConnective
	}
	return &Machine{cfg: cfg}
}

func (m *Machine) Mode() Mode     { return m.mode }
func (m *Machine) Base() string   { return m.base }
func (m *Machine) Edit() string   { return m.edit }
func (m *Machine) Config() Config { return m.cfg }

// History returns a copy of the remembered turns.
func (m *Machine) History() []string {
	return append([]string(nil), m.history...)
}

// Text is the single authoritative display value. While editing it is the
// edit buffer exactly as typed.
func (m *Machine) Text(live string) string {
	if m.mode == Editing {
		return m.edit
	}
	return Combine(m.base, live)
}

func (m *Machine) transitionErr(op string) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, op, m.mode)
}

// Start resumes listening. Starting from Editing commits the edit buffer
// first, the same as ExitEdit.
func (m *Machine) Start() ([]Command, error) {
	if m.mode == Submitting {
		return nil, m.transitionErr("start")
	}
	if m.mode == Editing {
		m.base = strings.TrimSpace(m.edit)
	}
	m.mode = Listening
	m.edit = ""
	return []Command{ResetLiveFeed, ClearDisplay, StartListening}, nil
}

func (m *Machine) EnterEdit(live string) ([]Command, error) {
	if m.mode != Listening {
		return nil, m.transitionErr("edit")
	}
	m.edit = Combine(m.base, live)
	m.mode = Editing
	return []Command{StopListening}, nil
}

func (m *Machine) SetEdit(text string) error {
	if m.mode != Editing {
		return m.transitionErr("type")
	}
	m.edit = text
	return nil
}

// ExitEdit commits the edit buffer. The live feed is reset so words already
// folded into the base are not counted twice.
func (m *Machine) ExitEdit() ([]Command, error) {
	if m.mode != Editing {
		return nil, m.transitionErr("commit")
	}
	m.base = strings.TrimSpace(m.edit)
	m.edit = ""
	m.mode = Listening
	return []Command{ResetLiveFeed, StartListening}, nil
}

// Submit validates the current text and moves to Submitting. Validation
// failures leave every piece of state as it was.
func (m *Machine) Submit(live, role, credential string) (Submission, []Command, error) {
	if m.mode != Listening && m.mode != Editing {
		return Submission{}, nil, m.transitionErr("submit")
	}

	var text string
	if m.mode == Editing {
		text = strings.TrimSpace(m.edit)
	} else {
		text = Combine(m.base, live)
	}

	switch {
	case text == "":
		return Submission{}, nil, ErrEmptyPrompt
	case strings.TrimSpace(role) == "":
		return Submission{}, nil, ErrMissingRole
	case m.cfg.RequireCredential && strings.TrimSpace(credential) == "":
		return Submission{}, nil, ErrMissingCredential
	}

	sub := Submission{
		Text:       text,
		Prompt:     text,
		Role:       strings.TrimSpace(role),
		Credential: strings.TrimSpace(credential),
	}
	if m.cfg.Memory {
		sub.Prompt = ComposePrompt(m.history, text, m.cfg.Connective)
		sub.Turns = len(m.history)
	}

	m.pending = text
	m.fromEditing = m.mode == Editing
	m.mode = Submitting
	return sub, []Command{StopListening}, nil
}

// Complete finishes a submission with the request outcome and returns to
// Listening. Listening is resumed whatever the outcome. When keep is true
// the captured text survives so the user can retry without re-speaking.
func (m *Machine) Complete(keep bool) []Command {
	if m.mode != Submitting {
		// cleared or stopped while the request was in flight
		return nil
	}
	m.mode = Listening
	text := m.pending
	m.pending = ""

	if keep {
		if m.fromEditing {
			m.base = text
			m.edit = ""
			return []Command{ResetLiveFeed, StartListening}
		}
		return []Command{StartListening}
	}

	if m.cfg.Memory {
		m.history = append(m.history, text)
	} else {
		m.history = nil
	}
	m.base = ""
	m.edit = ""
	return []Command{ResetLiveFeed, StartListening}
}

// Clear drops all captured text and history regardless of mode.
func (m *Machine) Clear() []Command {
	m.mode = Idle
	m.base = ""
	m.edit = ""
	m.pending = ""
	m.history = nil
	return []Command{StopListening, ResetLiveFeed, ClearDisplay}
}

// StopSession ends listening and asks the host for a labelled export.
// History stays until the export is confirmed or discarded.
func (m *Machine) StopSession() []Command {
	m.mode = Idle
	m.edit = ""
	m.pending = ""
	return []Command{StopListening, PromptExport}
}

// ClearHistory is called once an export was confirmed or discarded.
func (m *Machine) ClearHistory() {
	m.history = nil
}
