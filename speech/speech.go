// Package speech defines the external speech-to-text capability the chat
// front end listens to. Implementations only report text; audio capture and
// recognition happen elsewhere.
package speech

// Source is a speech recognizer that accumulates a live transcript while
// active. LiveText only grows until Reset.
type Source interface {
	Name() string
	Start(continuous bool) error
	Stop() error
	Reset()
	LiveText() string
	IsActive() bool
	// Updates carries the full live text after every change. It is never
	// closed while the source is in use; sends are dropped when nobody reads.
	Updates() <-chan string
}

// joinFinal appends a committed phrase to the transcript with one space.
func joinFinal(committed, phrase string) string {
	if committed == "" {
		return phrase
	}
	return committed + " " + phrase
}
