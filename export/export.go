// Package export turns a session's prompt history into a labelled plain-text
// document and hands it to a sink.
package export

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	cb "github.com/atotto/clipboard"
)

var ErrNothingToExport = errors.New("nothing to export")

const DefaultLabel = "talkback session"

// Document renders history as one numbered line per prompt under a header
// naming label and the export time.
func Document(label string, history []string, at time.Time) (string, error) {
	if len(history) == 0 {
		return "", ErrNothingToExport
	}
	label = strings.TrimSpace(label)
	if label == "" {
		label = DefaultLabel
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", label)
	fmt.Fprintf(&b, "# exported %s\n\n", at.Format("2006-01-02 15:04:05"))
	for i, h := range history {
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.ReplaceAll(h, "\n", " "))
	}
	return b.String(), nil
}

// Sink delivers a finished export document.
type Sink interface {
	Name() string
	Deliver(label, doc string) error
}

// Clipboard copies exports to the system clipboard.
type Clipboard struct{}

func (Clipboard) Name() string { return "clipboard" }

func (Clipboard) Deliver(_ string, doc string) error {
	if cb.Unsupported {
		return errors.New("clipboard: no clipboard utility available")
	}
	if err := cb.WriteAll(doc); err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	return nil
}

// Read returns the current clipboard contents.
func (Clipboard) Read() (string, error) {
	return cb.ReadAll()
}

// Memory keeps delivered exports, for tests and headless runs.
type Memory struct {
	mu   sync.Mutex
	docs []Delivered
}

type Delivered struct {
	Label string
	Doc   string
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Deliver(label, doc string) error {
	m.mu.Lock()
	m.docs = append(m.docs, Delivered{Label: label, Doc: doc})
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delivered() []Delivered {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Delivered(nil), m.docs...)
}
