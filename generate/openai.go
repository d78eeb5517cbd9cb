package generate

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	openai "github.com/sashabaranov/go-openai"

	ghostline "github.com/Paranoid-AF/ghostline"
)

// OpenAITransport streams chat completions from an OpenAI-compatible API
// (OpenAI, OpenRouter, Ollama, llama.cpp server, ...).
type OpenAITransport struct {
	name            string
	model           string
	maxOutputTokens int
	client          *openai.Client
}

// NewOpenAITransport creates a transport for an OpenAI-compatible endpoint.
func NewOpenAITransport(ep ghostline.EndpointConfig, telemetry bool) *OpenAITransport {
	cfg := openai.DefaultConfig(ep.APIKey)
	if ep.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(ep.BaseURL, "/")
	}
	cfg.HTTPClient = newHTTPClient(telemetry)
	return &OpenAITransport{
		name:            ep.Name,
		model:           ep.Model,
		maxOutputTokens: ep.MaxOutputTokens,
		client:          openai.NewClientWithConfig(cfg),
	}
}

// Name returns the endpoint name.
func (t *OpenAITransport) Name() string { return t.name }

// Stream sends the request with stream=true and forwards each content delta.
func (t *OpenAITransport) Stream(ctx context.Context, req *ChatRequest, onDelta DeltaFunc) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleSystem {
			role = openai.ChatMessageRoleSystem
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	// The client omits a zero temperature; the smallest float32 still
	// serializes and samples greedily.
	temperature := float32(req.Temperature)
	if temperature <= 0 {
		temperature = math.SmallestNonzeroFloat32
	}
	stream, err := t.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       t.model,
		Messages:    messages,
		MaxTokens:   boundMaxTokens(req.MaxTokens, t.maxOutputTokens),
		Temperature: temperature,
		TopP:        float32(req.TopP),
		Stop:        req.Stop,
		Stream:      true,
	})
	if err != nil {
		return "", classifyOpenAIError(ctx, err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), classifyOpenAIError(ctx, err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if !onDelta(delta) {
			return sb.String(), ErrTransportCancelled
		}
	}
}

func classifyOpenAIError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.Mark(err, ErrTransportCancelled)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return &FailureError{Reason: statusReason(apiErr.HTTPStatusCode), Cause: err}
		}
		reason := ""
		if apiErr.Code != nil {
			reason = fmt.Sprint(apiErr.Code)
		}
		if reason == "" && apiErr.Type != "" {
			reason = apiErr.Type
		}
		if reason == "" {
			reason = statusReason(apiErr.HTTPStatusCode)
		}
		return &FailureError{Reason: reason, Cause: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &FailureError{Reason: statusReason(reqErr.HTTPStatusCode), Cause: err}
	}

	return errors.Wrap(err, "openai stream")
}

// statusReason turns an HTTP status into a short machine-readable reason.
func statusReason(code int) string {
	switch code {
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusUnauthorized, http.StatusForbidden:
		return "unauthorized"
	case 0:
		return "request_failed"
	}
	return fmt.Sprintf("http_%d", code)
}
