package doctor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"talkback/backend"
	"talkback/export"
)

type Options struct {
	LogDir            string
	Credential        string
	RequireCredential bool
	Backend           backend.Client
	Clipboard         *export.Clipboard // nil skips the clipboard check
}

// reachable is implemented by backends that talk to a network endpoint.
type reachable interface {
	Endpoint() string
	Client() *backend.TracedClient
}

// Run executes diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(opts Options) int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Println("talkback doctor - system diagnostics")
	fmt.Println("====================================")

	checks := []func() bool{
		func() bool { return checkLogDir(opts.LogDir) },
		func() bool { return checkCredential(opts.Credential, opts.RequireCredential) },
		func() bool { return checkBackend(opts.Backend) },
	}
	if opts.Clipboard != nil {
		checks = append(checks, func() bool { return checkClipboard(*opts.Clipboard) })
	}

	allPass := true
	for i, check := range checks {
		fmt.Printf("\n[%d/%d] ", i+1, len(checks))
		if !check() {
			allPass = false
		}
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func checkLogDir(dir string) bool {
	fmt.Println("Log directory")
	if dir == "" {
		fmt.Println("  FAIL: no log directory resolved")
		return false
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		fmt.Printf("  FAIL: cannot create %s: %v\n", dir, err)
		return false
	}
	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		fmt.Printf("  FAIL: %s is not writable: %v\n", dir, err)
		return false
	}
	os.Remove(probe)
	fmt.Printf("  PASS: %s\n", dir)
	return true
}

func checkCredential(credential string, required bool) bool {
	fmt.Println("API key")
	switch {
	case strings.TrimSpace(credential) != "":
		fmt.Printf("  PASS: key set (%d chars)\n", len(credential))
		return true
	case required:
		fmt.Println("  FAIL: no key; set TALKBACK_API_KEY or add it to .env")
		return false
	default:
		fmt.Println("  PASS: no key, and this preset does not need one")
		return true
	}
}

func checkBackend(c backend.Client) bool {
	fmt.Println("Backend reachability")
	if c == nil {
		fmt.Println("  FAIL: no backend configured")
		return false
	}
	r, ok := c.(reachable)
	if !ok {
		fmt.Printf("  PASS: %s backend runs in-process\n", c.Name())
		return true
	}
	d, err := r.Client().WarmConnection(r.Endpoint())
	if err != nil {
		fmt.Printf("  FAIL: %s: %v\n", r.Endpoint(), err)
		return false
	}
	fmt.Printf("  PASS: %s answered in %dms\n", r.Endpoint(), d.Milliseconds())
	return true
}

// checkClipboard writes a probe and puts the previous contents back.
func checkClipboard(cb export.Clipboard) bool {
	fmt.Println("Clipboard")

	previous, err := cb.Read()
	if err != nil {
		fmt.Printf("  FAIL: could not read clipboard: %v\n", err)
		return false
	}

	const probe = "talkback-doctor-test"
	if err := cb.Deliver("doctor", probe); err != nil {
		fmt.Printf("  FAIL: clipboard copy failed: %v\n", err)
		return false
	}
	got, err := cb.Read()
	if err != nil {
		fmt.Printf("  FAIL: could not read clipboard back: %v\n", err)
		return false
	}
	if got != probe {
		fmt.Printf("  FAIL: clipboard round trip (got %q, want %q)\n", got, probe)
		return false
	}

	if err := cb.Deliver("doctor", previous); err != nil {
		fmt.Printf("  FAIL: clipboard restore failed: %v\n", err)
		return false
	}
	fmt.Println("  PASS: clipboard copy and restore verified")
	return true
}
