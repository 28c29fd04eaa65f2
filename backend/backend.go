package backend

import (
	"context"
	"fmt"

	"talkback/stream"
)

// Request is what the chat front end sends for one turn.
type Request struct {
	Prompt     string
	Role       string
	Credential string
}

// Reply carries an unread response body plus transport details.
type Reply struct {
	stream.Response
	Status    int
	RateLimit string // "remaining/limit" or empty
	Metrics   *NetworkMetrics
}

type Client interface {
	Name() string
	Send(ctx context.Context, req Request) (*Reply, error)
}

type Options struct {
	Provider  string // "http" | "openai" | "fake"
	Endpoint  string
	Model     string
	Proxy     string
	FakeReply string
}

func New(opts Options) (Client, error) {
	switch opts.Provider {
	case "fake":
		return NewFake(opts.FakeReply), nil
	case "http", "openai":
	default:
		return nil, fmt.Errorf("unknown provider %q (use http, openai or fake)", opts.Provider)
	}

	tc, err := NewTracedClient(opts.Proxy)
	if err != nil {
		return nil, err
	}
	if opts.Provider == "openai" {
		return NewOpenAI(tc, opts.Endpoint, opts.Model), nil
	}
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("http provider needs an endpoint")
	}
	return NewHTTP(tc, opts.Endpoint), nil
}
