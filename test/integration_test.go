//go:build integration

package test_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

var testBinary string

func TestMain(m *testing.M) {
	testBinary = os.Getenv("TALKBACK_TEST_BIN")
	if testBinary == "" {
		fmt.Fprintln(os.Stderr, "TALKBACK_TEST_BIN not set; run: go build -o /tmp/talkback . && TALKBACK_TEST_BIN=/tmp/talkback go test -tags integration ./test")
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func cmds(parts ...string) string {
	return strings.Join(parts, "\n") + "\n"
}

func runTalkback(t *testing.T, stdin string, args ...string) (out, logDir string) {
	t.Helper()
	logDir = t.TempDir()
	cmdArgs := append([]string{"--logpath", logDir, "--headless", "--env", filepath.Join(logDir, "none.env")}, args...)

	cmd := exec.Command(testBinary, cmdArgs...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = append(os.Environ(), "TALKBACK_API_KEY=sk-integration")

	data, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("talkback exited with error: %v\noutput: %s", err, data)
	}
	return string(data), logDir
}

func readLog(t *testing.T, logDir, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(logDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("failed to read %s: %v", filename, err)
	}
	return string(data)
}

func requireLine(t *testing.T, out, line string) {
	t.Helper()
	for _, l := range strings.Split(out, "\n") {
		if l == line {
			return
		}
	}
	t.Errorf("missing line %q in output:\n%s", line, out)
}

func TestAskAndAnswer(t *testing.T) {
	out, logDir := runTalkback(t,
		cmds("START", "SAY what is", "SAY a goroutine", "SUBMIT", "SHOW", "QUIT"),
		"--provider", "fake", "--preset", "interview")

	requireLine(t, out, "live: what is a goroutine")
	requireLine(t, out, "answer: You said: what is a goroutine")
	requireLine(t, out, "text: ")
	requireLine(t, out, "mode: listening")

	conv := readLog(t, logDir, "conversation_log.txt")
	if !strings.Contains(conv, "prompt\twhat is a goroutine") || !strings.Contains(conv, "answer\tYou said:") {
		t.Errorf("conversation_log.txt:\n%s", conv)
	}
	diag := readLog(t, logDir, "diagnostics_log.txt")
	for _, want := range []string{"session_start", "request_start", "request_end", "session_end"} {
		if !strings.Contains(diag, want) {
			t.Errorf("diagnostics_log.txt missing %s", want)
		}
	}
}

func TestEmptyPromptRejected(t *testing.T) {
	out, logDir := runTalkback(t, cmds("START", "SUBMIT", "QUIT"), "--provider", "fake", "--preset", "interview")

	if !strings.Contains(out, "error: empty prompt") {
		t.Errorf("output:\n%s", out)
	}
	if strings.Contains(readLog(t, logDir, "diagnostics_log.txt"), "request_start") {
		t.Error("request sent for an empty prompt")
	}
}

func TestEditBeforeSubmit(t *testing.T) {
	out, _ := runTalkback(t,
		cmds("START", "SAY helo wrld", "EDIT", "TYPE hello world", "COMMIT", "SAY again", "SHOW", "SUBMIT", "QUIT"),
		"--provider", "fake", "--preset", "interview")

	requireLine(t, out, "text: hello world again")
	requireLine(t, out, "answer: You said: hello world again")
}

func TestMemoryAndExport(t *testing.T) {
	out, _ := runTalkback(t,
		cmds("START", "SAY first", "SUBMIT", "SAY second", "SUBMIT", "STOP", "EXPORT standup", "QUIT"),
		"--provider", "fake", "--preset", "memory", "--role", "SRE", "--connective", " and then ")

	requireLine(t, out, "answer: You said: first and then second")
	requireLine(t, out, "export: 2 turns pending")
	requireLine(t, out, "# standup")
	requireLine(t, out, "1. first")
	requireLine(t, out, "2. second")
}

func TestHTTPBackendEventStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: Hel\n")
		w.(http.Flusher).Flush()
		fmt.Fprint(w, "lo wor\ndata: ld\n")
		w.(http.Flusher).Flush()
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	out, _ := runTalkback(t,
		cmds("START", "SAY hi", "SUBMIT", "QUIT"),
		"--provider", "http", "--endpoint", srv.URL, "--preset", "basic", "--role", "dev")

	requireLine(t, out, "answer: Hel lo wor ld")
}

func TestTransportFailureKeepsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	out, _ := runTalkback(t,
		cmds("START", "SAY keep this", "SUBMIT", "SHOW", "QUIT"),
		"--provider", "http", "--endpoint", srv.URL, "--role", "dev")

	if !strings.Contains(out, "error: ") || !strings.Contains(out, "503") {
		t.Errorf("output:\n%s", out)
	}
	requireLine(t, out, "text: keep this")
	requireLine(t, out, "mode: listening")
}
