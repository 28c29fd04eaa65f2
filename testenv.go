package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"talkback/chat"
	"talkback/export"
	"talkback/speech"
)

// runHeadless drives a session from line commands on in. It is the test
// mode used by the integration suite and by scripted runs:
//
//	START | SAY <words> | EDIT | TYPE <text> | COMMIT | SUBMIT | CLEAR
//	STOP | EXPORT [label] | DISCARD | SHOW | SLEEP <ms> | QUIT
//
// SAY needs the scripted speech source; with a remote feed the words come
// from the service instead.
func runHeadless(ctx context.Context, sess *chat.Session, mic *speech.Fake, sink *export.Memory, defaultLabel string, in io.Reader, out io.Writer) error {
	report := func(err error) {
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		switch strings.ToUpper(cmd) {
		case "START":
			report(sess.Start())
		case "SAY":
			if mic == nil {
				report(errors.New("SAY needs the scripted speech source"))
				continue
			}
			if !mic.Say(arg) {
				report(fmt.Errorf("not listening (%s)", sess.Mode()))
				continue
			}
			fmt.Fprintf(out, "live: %s\n", mic.LiveText())
		case "EDIT":
			report(sess.EnterEdit())
		case "TYPE":
			report(sess.SetEdit(arg))
		case "COMMIT":
			report(sess.ExitEdit())
		case "SUBMIT":
			err := sess.Submit(ctx, nil)
			if sess.Response() != "" {
				fmt.Fprintf(out, "answer: %s\n", sess.Response())
			}
			report(err)
		case "CLEAR":
			report(sess.Clear())
		case "STOP":
			report(sess.StopSession())
			if sess.ExportPending() {
				fmt.Fprintf(out, "export: %d turns pending\n", len(sess.History()))
			}
		case "EXPORT":
			label := arg
			if label == "" {
				label = defaultLabel
			}
			if err := sess.ConfirmExport(label); err != nil {
				report(err)
				continue
			}
			if sink != nil {
				delivered := sink.Delivered()
				fmt.Fprint(out, delivered[len(delivered)-1].Doc)
			}
		case "DISCARD":
			sess.DiscardExport()
		case "SHOW":
			fmt.Fprintf(out, "mode: %s\n", sess.Mode())
			fmt.Fprintf(out, "text: %s\n", sess.Display())
		case "SLEEP":
			if ms, err := strconv.Atoi(arg); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case "QUIT":
			return nil
		default:
			report(fmt.Errorf("unknown command %q", cmd))
		}
	}
	return scanner.Err()
}
