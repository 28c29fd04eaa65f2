// Package chat runs one talkback session: it executes the transcript
// machine's commands against the speech source, sends accepted prompts to
// the backend and tracks what the screen shows.
//
// Session is not safe for concurrent use. Hosts with an event loop call
// Prepare and Finish on the loop and run Stream elsewhere; Stream touches
// only the backend and the decoder.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"talkback/backend"
	"talkback/export"
	"talkback/log"
	"talkback/speech"
	"talkback/stream"
	"talkback/transcript"
)

type Options struct {
	Machine    transcript.Config
	Role       string
	Credential string
	Speech     speech.Source
	Backend    backend.Client
	Sink       export.Sink
}

type Session struct {
	machine *transcript.Machine
	speech  speech.Source
	backend backend.Client
	sink    export.Sink

	role       string
	credential string

	response      string
	err           error
	exportPending bool
	turns         int

	now func() time.Time
}

func New(opts Options) *Session {
	sink := opts.Sink
	if sink == nil {
		sink = &export.Memory{}
	}
	return &Session{
		machine:    transcript.New(opts.Machine),
		speech:     opts.Speech,
		backend:    opts.Backend,
		sink:       sink,
		role:       opts.Role,
		credential: opts.Credential,
		now:        time.Now,
	}
}

// Retryable reports whether a failed request keeps the captured text so the
// user can submit it again.
func Retryable(err error) bool {
	return errors.Is(err, stream.ErrTransport) || errors.Is(err, stream.ErrMalformedResponse)
}

func (s *Session) Mode() transcript.Mode { return s.machine.Mode() }
func (s *Session) Role() string          { return s.role }
func (s *Session) Response() string      { return s.response }
func (s *Session) Err() error            { return s.err }
func (s *Session) ExportPending() bool   { return s.exportPending }
func (s *Session) Turns() int            { return s.turns }
func (s *Session) History() []string     { return s.machine.History() }
func (s *Session) Backend() string       { return s.backend.Name() }
func (s *Session) Speech() speech.Source { return s.speech }

func (s *Session) SetRole(role string)             { s.role = role }
func (s *Session) SetCredential(credential string) { s.credential = credential }

// Display is the text the user sees: the edit buffer while editing,
// otherwise the base text joined with the live feed.
func (s *Session) Display() string {
	return s.machine.Text(s.speech.LiveText())
}

func (s *Session) Start() error {
	from := s.machine.Mode()
	cmds, err := s.machine.Start()
	if err != nil {
		return err
	}
	s.transition("start", from)
	return s.run(cmds)
}

func (s *Session) EnterEdit() error {
	from := s.machine.Mode()
	cmds, err := s.machine.EnterEdit(s.speech.LiveText())
	if err != nil {
		return err
	}
	s.transition("enter_edit", from)
	return s.run(cmds)
}

func (s *Session) SetEdit(text string) error {
	return s.machine.SetEdit(text)
}

func (s *Session) ExitEdit() error {
	from := s.machine.Mode()
	cmds, err := s.machine.ExitEdit()
	if err != nil {
		return err
	}
	s.transition("exit_edit", from)
	return s.run(cmds)
}

// Prepare validates the current text and moves the session to Submitting.
// A validation error is also kept for display and nothing else changes.
// Once the machine accepts the submission only Finish leaves Submitting, so
// a speech source that fails to stop is logged and kept in Err but does not
// hold the request back.
func (s *Session) Prepare() (transcript.Submission, error) {
	from := s.machine.Mode()
	sub, cmds, err := s.machine.Submit(s.speech.LiveText(), s.role, s.credential)
	if err != nil {
		if !errors.Is(err, transcript.ErrInvalidTransition) {
			s.err = err
		}
		return transcript.Submission{}, err
	}
	s.transition("submit", from)
	s.err = nil
	s.response = ""
	log.ConversationText("prompt", sub.Text)
	s.run(cmds)
	return sub, nil
}

// Stream sends sub to the backend and calls onSnapshot with every growing
// snapshot of the answer. It returns the last snapshot seen, which on a
// mid-stream failure is the partial answer.
func (s *Session) Stream(ctx context.Context, sub transcript.Submission, onSnapshot func(string)) (string, error) {
	id := uuid.NewString()
	log.RequestStart(id, s.backend.Name(), len(sub.Prompt), sub.Turns)

	m := log.RequestMetrics{ID: id, Provider: s.backend.Name(), Outcome: "ok"}
	defer func() { log.RequestEnd(m) }()

	reply, err := s.backend.Send(ctx, backend.Request{
		Prompt:     sub.Prompt,
		Role:       sub.Role,
		Credential: sub.Credential,
	})
	if err != nil {
		m.Outcome = err.Error()
		return "", err
	}
	m.Kind = reply.Kind.String()
	m.Status = reply.Status
	m.RateLimit = reply.RateLimit
	if nm := reply.Metrics; nm != nil {
		m.DNSTimeMs = float64(nm.DNS.Milliseconds())
		m.TLSTimeMs = float64(nm.TLS.Milliseconds())
		m.TTFBMs = float64(nm.TTFB.Milliseconds())
		m.TotalTimeMs = float64(nm.Total.Milliseconds())
		m.ConnReused = nm.ConnReused
		m.TLSProto = nm.TLSProtocol
	}

	var answer string
	d := stream.NewDecoder(reply.Response)
	for snap, err := range d.Snapshots() {
		if snap != "" && snap != answer {
			answer = snap
			m.Snapshots++
			if onSnapshot != nil {
				onSnapshot(snap)
			}
		}
		if err != nil {
			m.Outcome = err.Error()
			m.ResponseChars = len(answer)
			return answer, err
		}
	}
	m.ResponseChars = len(answer)
	return answer, nil
}

// Finish records the outcome of a request and resumes listening whatever
// the outcome was.
func (s *Session) Finish(answer string, err error) error {
	if s.machine.Mode() != transcript.Submitting {
		// cleared or stopped while the request was in flight
		return nil
	}
	s.response = answer
	s.err = err
	if err == nil {
		s.turns++
		log.ConversationText("answer", answer)
	} else {
		log.Errorf("request failed: %v", err)
	}
	cmds := s.machine.Complete(Retryable(err))
	s.transition("complete", transcript.Submitting)
	return s.run(cmds)
}

// Submit runs Prepare, Stream and Finish in one call, for hosts that can
// block. It returns the validation or request error, if any.
func (s *Session) Submit(ctx context.Context, onSnapshot func(string)) error {
	sub, err := s.Prepare()
	if err != nil {
		return err
	}
	answer, err := s.Stream(ctx, sub, onSnapshot)
	if ferr := s.Finish(answer, err); err == nil {
		err = ferr
	}
	return err
}

// Clear drops everything captured so far, including history and any
// pending export.
func (s *Session) Clear() error {
	from := s.machine.Mode()
	cmds := s.machine.Clear()
	s.exportPending = false
	s.transition("clear", from)
	return s.run(cmds)
}

// StopSession stops listening and leaves an export pending.
func (s *Session) StopSession() error {
	from := s.machine.Mode()
	cmds := s.machine.StopSession()
	s.transition("stop", from)
	return s.run(cmds)
}

// ConfirmExport delivers the history under label and then forgets it. An
// empty history has nothing to deliver and just ends the export prompt.
func (s *Session) ConfirmExport(label string) error {
	doc, err := export.Document(label, s.machine.History(), s.now())
	if errors.Is(err, export.ErrNothingToExport) {
		s.exportPending = false
		return err
	}
	if err != nil {
		return err
	}
	if err := s.sink.Deliver(label, doc); err != nil {
		log.Errorf("export to %s failed: %v", s.sink.Name(), err)
		return err
	}
	log.Infof("exported %d turns to %s", len(s.machine.History()), s.sink.Name())
	s.machine.ClearHistory()
	s.exportPending = false
	return nil
}

func (s *Session) DiscardExport() {
	s.machine.ClearHistory()
	s.exportPending = false
}

// Close stops the speech source at shutdown.
func (s *Session) Close() error {
	log.SessionEnd(s.turns)
	return s.speech.Stop()
}

func (s *Session) run(cmds []transcript.Command) error {
	var errs []error
	for _, c := range cmds {
		switch c {
		case transcript.ResetLiveFeed:
			s.speech.Reset()
		case transcript.StartListening:
			if err := s.speech.Start(true); err != nil {
				errs = append(errs, err)
			}
		case transcript.StopListening:
			if err := s.speech.Stop(); err != nil {
				errs = append(errs, err)
			}
		case transcript.ClearDisplay:
			s.response = ""
			s.err = nil
		case transcript.PromptExport:
			s.exportPending = true
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		log.Warnf("speech %s: %v", s.speech.Name(), err)
		if s.err == nil {
			s.err = err
		}
	}
	return err
}

func (s *Session) transition(op string, from transcript.Mode) {
	log.Transition(from.String(), s.machine.Mode().String(), op)
}
