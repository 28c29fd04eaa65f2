package stream

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyResponse     = errors.New("empty response from backend")
	ErrMalformedResponse = errors.New("malformed response")
	ErrConsumed          = errors.New("response already decoded")
	ErrTransport         = errors.New("transport error")
)

// TransportError wraps a network or read failure observed by the decoder or
// the backend client.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

func transportErr(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}
