// Package config resolves talkback settings from flags, an optional env file
// and the process environment. Flags win over presets; presets fill in the
// per-screen defaults (role, credential rule, memory).
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"talkback/transcript"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrUnknownPreset   = errors.New("unknown preset")
	ErrMissingEndpoint = errors.New("http provider needs an endpoint")
)

var (
	Providers = []string{"http", "openai", "fake"}
	Presets   = []string{"basic", "interview", "memory"}
)

type Config struct {
	Provider          string
	Endpoint          string
	Model             string
	Role              string
	Credential        string
	RequireCredential bool
	Memory            bool
	Connective        string
	Proxy             string
	SpeechURL         string
	LogPath           string
	Preset            string
	Headless          bool
	Label             string
	FakeReply         string

	EnvFile     string
	Doctor      bool
	ShowVersion bool
	Profile     string
}

type preset struct {
	role              string
	requireCredential bool
	memory            bool
}

var presets = map[string]preset{
	"basic":     {requireCredential: true},
	"interview": {role: "Full Stack Developer"},
	"memory":    {requireCredential: true, memory: true},
}

// Load parses args (without the program name) and the environment.
func Load(args []string) (Config, error) {
	var c Config
	fs := pflag.NewFlagSet("talkback", pflag.ContinueOnError)
	fs.StringVarP(&c.EnvFile, "env", "e", ".env", "Env file path (missing file is fine)")
	fs.StringVar(&c.Preset, "preset", "basic", "Screen preset: basic, interview or memory")
	fs.StringVarP(&c.Provider, "provider", "P", "http", "Answer backend: http, openai or fake")
	fs.StringVar(&c.Endpoint, "endpoint", "", "Chat endpoint URL (http provider) or base URL (openai provider)")
	fs.StringVar(&c.Model, "model", "", "Model name for the openai provider")
	fs.StringVarP(&c.Role, "role", "r", "", "Role sent with every prompt")
	fs.BoolVar(&c.RequireCredential, "require-key", false, "Refuse to submit without an API key")
	fs.BoolVar(&c.Memory, "memory", false, "Carry earlier prompts into each new one")
	fs.StringVar(&c.Connective, "connective", transcript.DefaultConnective, "Text joining remembered prompts to the new one")
	fs.StringVarP(&c.Proxy, "proxy", "p", "", "SOCKS5 proxy address for backend requests")
	fs.StringVar(&c.SpeechURL, "speech-url", "", "WebSocket URL of the speech-to-text feed")
	fs.StringVar(&c.LogPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	fs.BoolVar(&c.Headless, "headless", false, "Drive the session from stdin commands")
	fs.StringVar(&c.Label, "label", "", "Default label for history exports")
	fs.StringVar(&c.FakeReply, "fake-reply", "", "Canned answer for the fake provider (default: echo)")
	fs.BoolVar(&c.Doctor, "doctor", false, "Run system diagnostics and exit")
	fs.BoolVar(&c.ShowVersion, "version", false, "Print version and exit")
	fs.StringVar(&c.Profile, "profile", "", "Enable pprof profiling server (e.g., localhost:6060)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if err := godotenv.Load(c.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file %s: %w", c.EnvFile, err)
	}

	if p, ok := presets[c.Preset]; ok {
		if !fs.Changed("role") {
			c.Role = p.role
		}
		if !fs.Changed("require-key") {
			c.RequireCredential = p.requireCredential
		}
		if !fs.Changed("memory") {
			c.Memory = p.memory
		}
	}

	c.Credential = os.Getenv("TALKBACK_API_KEY")
	if c.Credential == "" && c.Provider == "openai" {
		c.Credential = os.Getenv("OPENAI_API_KEY")
	}
	if !fs.Changed("endpoint") {
		if v := os.Getenv("TALKBACK_ENDPOINT"); v != "" {
			c.Endpoint = v
		}
	}
	if !fs.Changed("speech-url") {
		if v := os.Getenv("TALKBACK_SPEECH_URL"); v != "" {
			c.SpeechURL = v
		}
	}

	return c, c.Validate()
}

func (c Config) Validate() error {
	if !slices.Contains(Providers, c.Provider) {
		return fmt.Errorf("%w %q (want %s)", ErrUnknownProvider, c.Provider, strings.Join(Providers, ", "))
	}
	if !slices.Contains(Presets, c.Preset) {
		return fmt.Errorf("%w %q (want %s)", ErrUnknownPreset, c.Preset, strings.Join(Presets, ", "))
	}
	if c.Provider == "http" && c.Endpoint == "" {
		return ErrMissingEndpoint
	}
	return nil
}

// Machine returns the transcript settings for this config.
func (c Config) Machine() transcript.Config {
	return transcript.Config{
		RequireCredential: c.RequireCredential,
		Memory:            c.Memory,
		Connective:        c.Connective,
	}
}
