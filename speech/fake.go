package speech

import (
	"strings"
	"sync"
)

// Fake is a scriptable source for tests and headless mode. Say only lands
// while the source is active, like a microphone would.
type Fake struct {
	mu         sync.Mutex
	text       string
	active     bool
	continuous bool
	starts     int
	updates    chan string

	startErr, stopErr error
}

func NewFake() *Fake {
	return &Fake{updates: make(chan string, 16)}
}

func (f *Fake) Name() string { return "fake" }

// FailStart makes every later Start return err without activating the
// source. A nil err restores normal behavior.
func (f *Fake) FailStart(err error) {
	f.mu.Lock()
	f.startErr = err
	f.mu.Unlock()
}

// FailStop makes every later Stop return err. The source still goes
// inactive, the way a dropped connection does.
func (f *Fake) FailStop(err error) {
	f.mu.Lock()
	f.stopErr = err
	f.mu.Unlock()
}

func (f *Fake) Start(continuous bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.active = true
	f.continuous = continuous
	return nil
}

func (f *Fake) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = false
	return f.stopErr
}

func (f *Fake) Reset() {
	f.mu.Lock()
	f.text = ""
	f.mu.Unlock()
	f.notify("")
}

// Say appends recognized words. It reports false when the source was not
// listening and the words were lost.
func (f *Fake) Say(words string) bool {
	words = strings.TrimSpace(words)
	f.mu.Lock()
	if !f.active || words == "" {
		f.mu.Unlock()
		return false
	}
	f.text = joinFinal(f.text, words)
	text := f.text
	f.mu.Unlock()
	f.notify(text)
	return true
}

func (f *Fake) LiveText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text
}

func (f *Fake) IsActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// Starts counts Start calls.
func (f *Fake) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *Fake) Updates() <-chan string { return f.updates }

func (f *Fake) notify(text string) {
	select {
	case f.updates <- text:
	default:
	}
}
