package stream

import (
	"errors"
	"io"
	"strings"
	"testing"
)

// fragmentReader returns exactly one fragment per Read call.
type fragmentReader struct {
	frags  [][]byte
	err    error // returned after the last fragment instead of io.EOF
	closed bool
}

func newFragments(frags ...string) *fragmentReader {
	r := &fragmentReader{}
	for _, f := range frags {
		r.frags = append(r.frags, []byte(f))
	}
	return r
}

func (r *fragmentReader) Read(p []byte) (int, error) {
	if len(r.frags) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.frags[0])
	r.frags[0] = r.frags[0][n:]
	if len(r.frags[0]) == 0 {
		r.frags = r.frags[1:]
	}
	return n, nil
}

func (r *fragmentReader) Close() error {
	r.closed = true
	return nil
}

func snapshots(t *testing.T, d *Decoder) ([]string, error) {
	t.Helper()
	var out []string
	for snap, err := range d.Snapshots() {
		if err != nil {
			return out, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func TestKindOf(t *testing.T) {
	for _, tt := range []struct {
		contentType string
		want        Kind
	}{
		{"application/json", KindJSON},
		{"application/json; charset=utf-8", KindJSON},
		{"Application/JSON", KindJSON},
		{"text/event-stream", KindStream},
		{"text/plain; charset=utf-8", KindStream},
		{"", KindStream},
	} {
		t.Run(tt.contentType, func(t *testing.T) {
			if got := KindOf(tt.contentType); got != tt.want {
				t.Errorf("KindOf(%q) = %v, want %v", tt.contentType, got, tt.want)
			}
		})
	}
}

func TestEventStreamRoundTrip(t *testing.T) {
	body := newFragments("data: Hel\n", "lo wor\ndata: ld\n", "data: [DONE]\n\n")
	d := NewDecoder(Response{Kind: KindStream, Body: body})

	snaps, err := snapshots(t, d)
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) == 0 {
		t.Fatal("no snapshots")
	}
	if got := snaps[len(snaps)-1]; got != "Hel lo wor ld" {
		t.Errorf("final text = %q, want %q", got, "Hel lo wor ld")
	}
	if !body.closed {
		t.Error("body not closed")
	}
}

func TestSnapshotsGrowMonotonically(t *testing.T) {
	body := newFragments("The ", "quick ", "brown ", "fox")
	d := NewDecoder(Response{Kind: KindStream, Body: body})

	snaps, err := snapshots(t, d)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"The ", "The quick ", "The quick brown ", "The quick brown fox"}
	if len(snaps) != len(want) {
		t.Fatalf("snapshots = %q, want %q", snaps, want)
	}
	for i := range want {
		if snaps[i] != want[i] {
			t.Errorf("snapshot %d = %q, want %q", i, snaps[i], want[i])
		}
		if i > 0 && !strings.HasPrefix(snaps[i], snaps[i-1]) {
			t.Errorf("snapshot %d does not extend the previous one", i)
		}
	}
}

func TestPlainFragmentsPassThrough(t *testing.T) {
	body := newFragments("line one\n", "line two\n")
	got, err := Collect(NewDecoder(Response{Body: body}))
	if err != nil {
		t.Fatal(err)
	}
	if got != "line one\nline two\n" {
		t.Errorf("got %q", got)
	}
}

func TestFramedFragmentWithManyEvents(t *testing.T) {
	body := newFragments("data: one\r\n\r\ndata:two\n\ndata:  three\n\ndata: [DONE]\n")
	got, err := Collect(NewDecoder(Response{Body: body}))
	if err != nil {
		t.Fatal(err)
	}
	if got != "one two three" {
		t.Errorf("got %q, want %q", got, "one two three")
	}
}

func TestMultiByteSplitAcrossFragments(t *testing.T) {
	text := "héllo 世界"
	raw := []byte(text)
	// split inside the 3-byte encoding of 世
	split := strings.Index(text, "世") + 1

	body := &fragmentReader{frags: [][]byte{raw[:split], raw[split:]}}
	got, err := Collect(NewDecoder(Response{Body: body}))
	if err != nil {
		t.Fatal(err)
	}
	if got != text {
		t.Errorf("got %q, want %q", got, text)
	}
	if strings.ContainsRune(got, '\uFFFD') {
		t.Errorf("replacement character in %q", got)
	}
}

func TestMultiByteSplitByteByByte(t *testing.T) {
	text := "data: ünïcødé ✓\n"
	var frags [][]byte
	for _, b := range []byte(text) {
		frags = append(frags, []byte{b})
	}
	got, err := Collect(NewDecoder(Response{Body: &fragmentReader{frags: frags}}))
	if err != nil {
		t.Fatal(err)
	}
	if strings.ContainsRune(got, '\uFFFD') {
		t.Errorf("replacement character in %q", got)
	}
}

func TestTruncatedMultiByteAtEOF(t *testing.T) {
	raw := []byte("ok 世")
	body := &fragmentReader{frags: [][]byte{raw[:len(raw)-1]}}
	got, err := Collect(NewDecoder(Response{Body: body}))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "ok ") || !strings.HasSuffix(got, "\uFFFD") {
		t.Errorf("got %q, want trailing replacement character", got)
	}
}

func TestJSONResponse(t *testing.T) {
	body := newFragments(`{"response": "hi"}`)
	d := NewDecoder(Response{Kind: KindJSON, Body: body})

	snaps, err := snapshots(t, d)
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 || snaps[0] != "hi" {
		t.Errorf("snapshots = %q, want [\"hi\"]", snaps)
	}
	if !body.closed {
		t.Error("body not closed")
	}
}

func TestJSONResponseIsNotDeframed(t *testing.T) {
	body := newFragments(`{"response": "data: raw`, ` [DONE]"}`)
	got, err := Collect(NewDecoder(Response{Kind: KindJSON, Body: body}))
	if err != nil {
		t.Fatal(err)
	}
	if got != "data: raw [DONE]" {
		t.Errorf("got %q", got)
	}
}

func TestJSONErrors(t *testing.T) {
	for _, tt := range []struct {
		name string
		body string
		want error
	}{
		{"missing field", `{"answer": "hi"}`, ErrMalformedResponse},
		{"invalid json", `{"response": `, ErrMalformedResponse},
		{"empty payload", `{"response": ""}`, ErrEmptyResponse},
		{"null payload", `{"response": null}`, ErrEmptyResponse},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Collect(NewDecoder(Response{Kind: KindJSON, Body: newFragments(tt.body)}))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestJSONNonStringPayload(t *testing.T) {
	got, err := Collect(NewDecoder(Response{Kind: KindJSON, Body: newFragments(`{"response": {"text": "hi"}}`)}))
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"text": "hi"}` {
		t.Errorf("got %q", got)
	}
}

func TestEmptyStream(t *testing.T) {
	for _, frags := range [][]string{nil, {"data: [DONE]\n\n"}, {"\n", "data: \n"}} {
		_, err := Collect(NewDecoder(Response{Body: newFragments(frags...)}))
		if !errors.Is(err, ErrEmptyResponse) {
			t.Errorf("fragments %q: err = %v, want ErrEmptyResponse", frags, err)
		}
	}
}

func TestTransportErrorMidStream(t *testing.T) {
	body := newFragments("partial ")
	body.err = errors.New("connection reset")

	var last string
	var gotErr error
	for snap, err := range NewDecoder(Response{Body: body}).Snapshots() {
		last = snap
		if err != nil {
			gotErr = err
			break
		}
	}
	if !errors.Is(gotErr, ErrTransport) {
		t.Fatalf("err = %v, want transport error", gotErr)
	}
	var te *TransportError
	if !errors.As(gotErr, &te) || te.Err.Error() != "connection reset" {
		t.Errorf("err = %#v", gotErr)
	}
	if last != "partial " {
		t.Errorf("last snapshot = %q", last)
	}
	if !body.closed {
		t.Error("body not closed after transport error")
	}
}

func TestAbandonedDecodeClosesBody(t *testing.T) {
	body := newFragments("one ", "two ", "three")
	d := NewDecoder(Response{Body: body})
	for range d.Snapshots() {
		break
	}
	if !body.closed {
		t.Error("body not closed after early break")
	}
	if d.Fragments() != 1 {
		t.Errorf("fragments read = %d, want 1", d.Fragments())
	}
}

func TestDecoderIsSingleUse(t *testing.T) {
	d := NewDecoder(Response{Body: newFragments("hello")})
	if _, err := Collect(d); err != nil {
		t.Fatal(err)
	}
	if _, err := Collect(d); !errors.Is(err, ErrConsumed) {
		t.Errorf("second decode err = %v, want ErrConsumed", err)
	}
}

func TestMissingBody(t *testing.T) {
	_, err := Collect(NewDecoder(Response{}))
	if !errors.Is(err, ErrTransport) {
		t.Errorf("err = %v, want transport error", err)
	}
}

func TestSmallFragmentSize(t *testing.T) {
	body := io.NopCloser(strings.NewReader("abcdefghij"))
	d := NewDecoder(Response{Body: body}, WithFragmentSize(3))
	got, err := Collect(d)
	if err != nil {
		t.Fatal(err)
	}
	if got != "abcdefghij" {
		t.Errorf("got %q", got)
	}
	if d.Fragments() != 4 {
		t.Errorf("fragments = %d, want 4", d.Fragments())
	}
}
