package backend

import (
	"context"
	"io"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"talkback/stream"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI streams chat completions. The role becomes the system message and
// the credential is sent per request, so one client serves every user key.
type OpenAI struct {
	client  openai.Client
	traced  *TracedClient
	baseURL string
	model   string
}

func NewOpenAI(tc *TracedClient, baseURL, model string) *OpenAI {
	if model == "" {
		model = defaultOpenAIModel
	}
	opts := []option.RequestOption{option.WithHTTPClient(tc.HTTPClient())}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAI{
		client:  openai.NewClient(opts...),
		traced:  tc,
		baseURL: baseURL,
		model:   model,
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Endpoint() string {
	if o.baseURL != "" {
		return o.baseURL
	}
	return "https://api.openai.com/v1/"
}

func (o *OpenAI) Client() *TracedClient { return o.traced }

// Send starts a streaming completion. Content deltas are written as plain
// fragments; API failures surface from the body as transport errors.
func (o *OpenAI) Send(ctx context.Context, r Request) (*Reply, error) {
	var reqOpts []option.RequestOption
	if r.Credential != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(r.Credential))
	}

	st := o.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(r.Role),
			openai.UserMessage(r.Prompt),
		},
		Model: openai.ChatModel(o.model),
	}, reqOpts...)

	pr, pw := io.Pipe()
	go func() {
		defer st.Close()
		for st.Next() {
			chunk := st.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if _, err := io.WriteString(pw, delta); err != nil {
					return
				}
			}
		}
		if err := st.Err(); err != nil {
			pw.CloseWithError(&stream.TransportError{Op: "openai stream", Err: err})
			return
		}
		pw.Close()
	}()

	return &Reply{
		Response: stream.Response{Kind: stream.KindStream, Body: pr},
	}, nil
}
