package generate

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"

	ghostline "github.com/Paranoid-AF/ghostline"
)

// defaultAnthropicMaxTokens is used when neither the request nor the endpoint
// sets a limit; the Messages API requires one.
const defaultAnthropicMaxTokens = 256

// AnthropicTransport streams completions from the Anthropic Messages API.
type AnthropicTransport struct {
	name            string
	model           string
	maxOutputTokens int
	client          anthropic.Client
}

// NewAnthropicTransport creates a transport for an Anthropic endpoint.
func NewAnthropicTransport(ep ghostline.EndpointConfig) *AnthropicTransport {
	opts := []option.RequestOption{
		option.WithAPIKey(ep.APIKey),
		option.WithHTTPClient(newHTTPClient(false)),
	}
	if ep.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(ep.BaseURL))
	}
	return &AnthropicTransport{
		name:            ep.Name,
		model:           ep.Model,
		maxOutputTokens: ep.MaxOutputTokens,
		client:          anthropic.NewClient(opts...),
	}
}

// Name returns the endpoint name.
func (t *AnthropicTransport) Name() string { return t.name }

// Stream sends a Messages request and forwards each text delta.
func (t *AnthropicTransport) Stream(ctx context.Context, req *ChatRequest, onDelta DeltaFunc) (string, error) {
	var system []anthropic.TextBlockParam
	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
	}

	maxTokens := boundMaxTokens(req.MaxTokens, t.maxOutputTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:         anthropic.Model(t.model),
		MaxTokens:     int64(maxTokens),
		System:        system,
		Messages:      messages,
		StopSequences: req.Stop,
	}
	if req.Temperature >= 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if req.TopP > 0 && req.TopP < 1 {
		params.TopP = anthropic.Float(req.TopP)
	}

	stream := t.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var sb strings.Builder
	for stream.Next() {
		event := stream.Current()
		if event.Type != "content_block_delta" {
			continue
		}
		delta := event.AsContentBlockDelta().Delta
		if delta.Type != "text_delta" || delta.Text == "" {
			continue
		}
		sb.WriteString(delta.Text)
		if !onDelta(delta.Text) {
			return sb.String(), ErrTransportCancelled
		}
	}
	if err := stream.Err(); err != nil {
		return sb.String(), classifyAnthropicError(ctx, err)
	}
	return sb.String(), nil
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func classifyAnthropicError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.Mark(err, ErrTransportCancelled)
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return &FailureError{Reason: statusReason(apiErr.StatusCode), Cause: err}
		}
		var payload anthropicErrorPayload
		if raw := apiErr.RawJSON(); raw != "" && json.Unmarshal([]byte(raw), &payload) == nil && payload.Error.Type != "" {
			return &FailureError{Reason: payload.Error.Type, Cause: err}
		}
		return &FailureError{Reason: statusReason(apiErr.StatusCode), Cause: err}
	}

	return errors.Wrap(err, "anthropic stream")
}
