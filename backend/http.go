package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"talkback/stream"
)

// HTTP talks to a chat endpoint that takes {prompt, role, apiKey} and
// answers with either a JSON document or a streamed body.
type HTTP struct {
	client   *TracedClient
	endpoint string
}

func NewHTTP(client *TracedClient, endpoint string) *HTTP {
	return &HTTP{client: client, endpoint: endpoint}
}

func (h *HTTP) Name() string { return "http" }

// Endpoint is used by the doctor to probe reachability.
func (h *HTTP) Endpoint() string { return h.endpoint }

func (h *HTTP) Client() *TracedClient { return h.client }

type chatRequest struct {
	Prompt string `json:"prompt"`
	Role   string `json:"role"`
	APIKey string `json:"apiKey,omitempty"`
}

func (h *HTTP) Send(ctx context.Context, r Request) (*Reply, error) {
	body, err := json.Marshal(chatRequest{Prompt: r.Prompt, Role: r.Role, APIKey: r.Credential})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream, text/plain")

	resp, metrics, err := h.client.Do(req)
	if err != nil {
		return nil, &stream.TransportError{Op: "POST " + h.endpoint, Err: err}
	}

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &stream.TransportError{
			Op:  "POST " + h.endpoint,
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		}
	}

	reply := &Reply{
		Response: stream.Response{
			Kind: stream.KindOf(resp.Header.Get("Content-Type")),
			Body: resp.Body,
		},
		Status:  resp.StatusCode,
		Metrics: metrics,
	}
	if resp.Header.Get("x-ratelimit-limit-requests") != "" {
		reply.RateLimit = firstNonEmpty(resp.Header, "x-ratelimit-remaining-requests") + "/" +
			firstNonEmpty(resp.Header, "x-ratelimit-limit-requests")
	}
	return reply, nil
}
