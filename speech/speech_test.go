package speech

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestJoinFinal(t *testing.T) {
	if got := joinFinal("", "hello"); got != "hello" {
		t.Errorf("got %q", got)
	}
	if got := joinFinal("hello", "world"); got != "hello world" {
		t.Errorf("got %q", got)
	}
}

func TestFakeOnlyHearsWhileActive(t *testing.T) {
	f := NewFake()
	if f.Say("lost") {
		t.Error("Say succeeded while stopped")
	}
	f.Start(true)
	f.Say("hello")
	f.Say("  world ")
	if got := f.LiveText(); got != "hello world" {
		t.Errorf("LiveText = %q", got)
	}
	f.Stop()
	if f.IsActive() {
		t.Error("still active after Stop")
	}
	if f.Say("more") {
		t.Error("Say succeeded after Stop")
	}
	f.Reset()
	if f.LiveText() != "" {
		t.Errorf("LiveText after Reset = %q", f.LiveText())
	}
	if f.Starts() != 1 {
		t.Errorf("Starts = %d, want 1", f.Starts())
	}
}

func TestFakeInjectedFailures(t *testing.T) {
	f := NewFake()
	busy := errors.New("device busy")
	f.FailStart(busy)
	if err := f.Start(true); !errors.Is(err, busy) {
		t.Errorf("Start err = %v, want %v", err, busy)
	}
	if f.IsActive() {
		t.Error("active after failed Start")
	}

	f.FailStart(nil)
	if err := f.Start(true); err != nil {
		t.Fatal(err)
	}
	closed := errors.New("close: broken pipe")
	f.FailStop(closed)
	if err := f.Stop(); !errors.Is(err, closed) {
		t.Errorf("Stop err = %v, want %v", err, closed)
	}
	if f.IsActive() {
		t.Error("still active after failed Stop")
	}
	if f.Starts() != 2 {
		t.Errorf("Starts = %d, want 2", f.Starts())
	}
}

func TestFakeUpdatesDoNotBlock(t *testing.T) {
	f := NewFake()
	f.Start(true)
	for i := 0; i < 100; i++ {
		f.Say("word")
	}
	if got := <-f.Updates(); got != "word" {
		t.Errorf("first update = %q", got)
	}
}

var upgrader = websocket.Upgrader{}

func speechServer(t *testing.T, messages []string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, updates <-chan string, want string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case got := <-updates:
			if got == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestRemoteCommitsFinalResults(t *testing.T) {
	url := speechServer(t, []string{
		`{"transcript": "hel", "is_final": false}`,
		`{"transcript": "hello there", "is_final": true}`,
		`not json`,
		`{"type": "Results", "is_final": true, "channel": {"alternatives": [{"transcript": "general"}]}}`,
		`{"type": "Results", "is_final": true, "channel": {"alternatives": [{"transcript": ""}]}}`,
		`{"transcript": "kenobi", "speech_final": true}`,
	})

	r := NewRemote(url)
	if err := r.Start(true); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	waitFor(t, r.Updates(), "hello there general kenobi")
	if got := r.LiveText(); got != "hello there general kenobi" {
		t.Errorf("LiveText = %q", got)
	}
	if !r.IsActive() {
		t.Error("source stopped while continuous")
	}

	r.Reset()
	if r.LiveText() != "" {
		t.Errorf("LiveText after Reset = %q", r.LiveText())
	}
}

func TestRemoteSingleShotStopsAfterFirstFinal(t *testing.T) {
	url := speechServer(t, []string{
		`{"transcript": "one", "is_final": true}`,
		`{"transcript": "two", "is_final": true}`,
	})

	r := NewRemote(url)
	if err := r.Start(false); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	waitFor(t, r.Updates(), "one")
	time.Sleep(50 * time.Millisecond)
	if got := r.LiveText(); got != "one" {
		t.Errorf("LiveText = %q, want %q", got, "one")
	}
	if r.IsActive() {
		t.Error("single-shot source still active")
	}
}

func TestRemoteStop(t *testing.T) {
	r := NewRemote(speechServer(t, nil))
	if err := r.Start(true); err != nil {
		t.Fatal(err)
	}
	if err := r.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if r.IsActive() {
		t.Error("active after Stop")
	}
	if err := r.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
	if r.Err() != nil {
		t.Errorf("Err after clean stop = %v", r.Err())
	}
}

func TestRemoteDialFailure(t *testing.T) {
	if err := NewRemote("ws://127.0.0.1:1/listen").Start(true); err == nil {
		t.Error("expected dial error")
	}
}
