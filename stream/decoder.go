package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"mime"
	"strings"
)

const (
	defaultFragmentSize = 4096
	payloadField        = "response"
)

// Kind is the declared content kind of a backend response.
type Kind int

const (
	KindStream Kind = iota
	KindJSON
)

func (k Kind) String() string {
	if k == KindJSON {
		return "json"
	}
	return "stream"
}

// KindOf classifies a Content-Type header value.
func KindOf(contentType string) Kind {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(contentType)
	}
	if strings.Contains(mt, "application/json") {
		return KindJSON
	}
	return KindStream
}

// Response is a completed network response whose body has not been read.
type Response struct {
	Kind Kind
	Body io.ReadCloser
}

// Decoder turns one Response into a growing text value. A Decoder is single
// use: a new response needs a new Decoder.
type Decoder struct {
	resp         Response
	fragmentSize int
	used         bool
	fragments    int
}

type Option func(*Decoder)

// WithFragmentSize sets the read buffer size used for framed streams.
func WithFragmentSize(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.fragmentSize = n
		}
	}
}

func NewDecoder(resp Response, opts ...Option) *Decoder {
	d := &Decoder{resp: resp, fragmentSize: defaultFragmentSize}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Fragments reports how many body fragments were consumed so far.
func (d *Decoder) Fragments() int { return d.fragments }

// Snapshots yields the full accumulated text after every fragment. Decoding
// stops at the first error, which is yielded with the last good snapshot.
// The body is closed when the sequence ends or the caller stops ranging.
func (d *Decoder) Snapshots() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if d.used {
			yield("", ErrConsumed)
			return
		}
		d.used = true
		if d.resp.Body == nil {
			yield("", transportErr("read body", errors.New("no response body")))
			return
		}
		defer d.resp.Body.Close()

		if d.resp.Kind == KindJSON {
			d.decodeJSON(yield)
			return
		}
		d.decodeStream(yield)
	}
}

func (d *Decoder) decodeJSON(yield func(string, error) bool) {
	data, err := io.ReadAll(d.resp.Body)
	d.fragments++
	if err != nil {
		yield("", transportErr("read body", err))
		return
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		yield("", fmt.Errorf("%w: %v", ErrMalformedResponse, err))
		return
	}
	raw, ok := doc[payloadField]
	if !ok {
		yield("", fmt.Errorf("%w: missing %q field", ErrMalformedResponse, payloadField))
		return
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		// non-string payloads are shown as their JSON text
		text = string(raw)
	}
	if strings.TrimSpace(text) == "" {
		yield("", ErrEmptyResponse)
		return
	}
	yield(text, nil)
}

func (d *Decoder) decodeStream(yield func(string, error) bool) {
	var acc strings.Builder
	td := newTextDecoder()
	buf := make([]byte, d.fragmentSize)

	emit := func(chunk string) bool {
		text, framed := processFragment(chunk)
		if framed {
			appendFramed(&acc, text)
		} else {
			acc.WriteString(text)
		}
		if acc.Len() == 0 {
			return true
		}
		return yield(acc.String(), nil)
	}

	for {
		n, readErr := d.resp.Body.Read(buf)
		if n > 0 {
			d.fragments++
			chunk, err := td.decode(buf[:n], false)
			if err != nil {
				yield(acc.String(), fmt.Errorf("%w: %v", ErrMalformedResponse, err))
				return
			}
			if !emit(chunk) {
				return
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			yield(acc.String(), transportErr("read body", readErr))
			return
		}
	}

	tail, err := td.flush()
	if err != nil {
		yield(acc.String(), fmt.Errorf("%w: %v", ErrMalformedResponse, err))
		return
	}
	if tail != "" && !emit(tail) {
		return
	}
	if strings.TrimSpace(acc.String()) == "" {
		yield(acc.String(), ErrEmptyResponse)
	}
}

// Collect drains a decoder and returns the final text.
func Collect(d *Decoder) (string, error) {
	var last string
	for snap, err := range d.Snapshots() {
		if err != nil {
			return last, err
		}
		last = snap
	}
	return last, nil
}
