package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"talkback/backend"
	"talkback/chat"
	"talkback/config"
	"talkback/doctor"
	"talkback/export"
	"talkback/log"
	"talkback/shutdown"
	"talkback/speech"
)

var version = "dev"

var (
	shutdownOnce  sync.Once
	activeSession *chat.Session
)

func gracefulShutdown(code int) {
	shutdownOnce.Do(func() {
		if activeSession != nil {
			if err := activeSession.Close(); err != nil {
				log.Warnf("speech stop: %v", err)
			}
		}
		log.Close()
		tuiMu.Lock()
		p := tuiProgram
		tuiMu.Unlock()
		if p != nil {
			p.Quit()
		}
		os.Exit(code)
	})
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if cfg.ShowVersion {
		fmt.Printf("talkback %s\n", version)
		os.Exit(0)
	}

	// Resolve log directory early
	logPath, err := log.ResolveDir(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)

	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if cfg.Profile != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", cfg.Profile)
			if err := http.ListenAndServe(cfg.Profile, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	client, err := backend.New(backend.Options{
		Provider:  cfg.Provider,
		Endpoint:  cfg.Endpoint,
		Model:     cfg.Model,
		Proxy:     cfg.Proxy,
		FakeReply: cfg.FakeReply,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if cfg.Doctor {
		os.Exit(doctor.Run(doctor.Options{
			LogDir:            log.Dir(),
			Credential:        cfg.Credential,
			RequireCredential: cfg.RequireCredential,
			Backend:           client,
			Clipboard:         &export.Clipboard{},
		}))
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	log.SessionStart(client.Name(), cfg.Preset)

	// The scripted source stands in for a microphone when no speech
	// service is configured.
	var src speech.Source
	var mic *speech.Fake
	if cfg.SpeechURL != "" {
		src = speech.NewRemote(cfg.SpeechURL)
	} else {
		mic = speech.NewFake()
		src = mic
	}

	headless := cfg.Headless || !term.IsTerminal(int(os.Stdin.Fd()))

	var sink export.Sink = export.Clipboard{}
	var memSink *export.Memory
	if headless {
		memSink = &export.Memory{}
		sink = memSink
	}

	activeSession = chat.New(chat.Options{
		Machine:    cfg.Machine(),
		Role:       cfg.Role,
		Credential: cfg.Credential,
		Speech:     src,
		Backend:    client,
		Sink:       sink,
	})

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		gracefulShutdown(0)
	}()

	if headless {
		if err := runHeadless(context.Background(), activeSession, mic, memSink, cfg.Label, os.Stdin, os.Stdout); err != nil {
			log.Errorf("headless: %v", err)
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			gracefulShutdown(1)
		}
		gracefulShutdown(0)
	}

	tuiMu.Lock()
	tuiProgram = NewTUIProgram(activeSession, mic, cfg.Preset, cfg.Label)
	tuiMu.Unlock()

	if _, err := tuiProgram.Run(); err != nil {
		log.Errorf("TUI error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		gracefulShutdown(1)
	}
	gracefulShutdown(0)
}
