package backend

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"talkback/stream"
)

// Fake answers every request with an event-stream framed reply, one word
// per fragment. An empty reply echoes the prompt back.
type Fake struct {
	reply string
	err   error
	kind  stream.Kind

	Requests []Request
}

func NewFake(reply string) *Fake {
	return &Fake{reply: reply}
}

// FailWith makes every Send fail with err.
func (f *Fake) FailWith(err error) *Fake {
	f.err = err
	return f
}

// AsJSON switches the fake to single-shot JSON replies.
func (f *Fake) AsJSON() *Fake {
	f.kind = stream.KindJSON
	return f
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Send(_ context.Context, r Request) (*Reply, error) {
	f.Requests = append(f.Requests, r)
	if f.err != nil {
		return nil, f.err
	}

	text := f.reply
	if text == "" {
		text = "You said: " + r.Prompt
	}

	var frags []string
	if f.kind == stream.KindJSON {
		doc, _ := json.Marshal(map[string]string{"response": text})
		frags = []string{string(doc)}
	} else {
		for _, w := range strings.Fields(text) {
			frags = append(frags, "data: "+w+"\n\n")
		}
		frags = append(frags, "data: [DONE]\n\n")
	}
	return &Reply{
		Response: stream.Response{Kind: f.kind, Body: &FragmentBody{Fragments: frags}},
		Status:   200,
	}, nil
}

// FragmentBody returns one fragment per Read, the way a chunked network
// body arrives. Err replaces io.EOF after the last fragment.
type FragmentBody struct {
	Fragments []string
	Err       error
	Closed    bool
}

func (b *FragmentBody) Read(p []byte) (int, error) {
	if len(b.Fragments) == 0 {
		if b.Err != nil {
			return 0, b.Err
		}
		return 0, io.EOF
	}
	n := copy(p, b.Fragments[0])
	b.Fragments[0] = b.Fragments[0][n:]
	if b.Fragments[0] == "" {
		b.Fragments = b.Fragments[1:]
	}
	return n, nil
}

func (b *FragmentBody) Close() error {
	b.Closed = true
	return nil
}
