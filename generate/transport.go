package generate

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	ghostline "github.com/Paranoid-AF/ghostline"
)

// Message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one turn of the conversation sent to an endpoint.
type Message struct {
	Role    string
	Content string
}

// ChatRequest is what the driver hands to a Transport.
type ChatRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
	TopP        float64
	Stop        []string
}

// DeltaFunc receives each incremental piece of generated text. Returning
// false asks the transport to stop reading.
type DeltaFunc func(delta string) bool

// Transport streams a completion from a remote endpoint.
//
// Stream returns the full text on success. It returns an error wrapping
// ErrTransportCancelled (or context.Canceled) when it stopped because it was
// asked to, and any other error as a failure. FailureError carries a
// remote-reported reason.
type Transport interface {
	Stream(ctx context.Context, req *ChatRequest, onDelta DeltaFunc) (string, error)
	// Name identifies the endpoint in logs.
	Name() string
}

// requestTimeout bounds a single streamed request.
const requestTimeout = 60 * time.Second

// NewTransport builds the transport for an endpoint config.
func NewTransport(ep ghostline.EndpointConfig, telemetry bool) (Transport, error) {
	if ep.Model == "" {
		return nil, errors.Wrapf(ErrNotConfigured, "endpoint %q has no model", ep.Name)
	}
	switch ep.APIType {
	case ghostline.APITypeOpenAI, "":
		if ep.APIKey == "" && ghostline.EndpointRequiresKey(ep) {
			return nil, errors.Wrapf(ErrNotConfigured, "endpoint %q has no API key", ep.Name)
		}
		return NewOpenAITransport(ep, telemetry && strings.Contains(ep.BaseURL, "openrouter.ai")), nil
	case ghostline.APITypeAnthropic:
		if ep.APIKey == "" {
			return nil, errors.Wrapf(ErrNotConfigured, "endpoint %q has no API key", ep.Name)
		}
		return NewAnthropicTransport(ep), nil
	default:
		return nil, errors.Newf("endpoint %q: unknown api_type %q", ep.Name, ep.APIType)
	}
}

// boundMaxTokens caps the requested token count at the endpoint's own limit.
func boundMaxTokens(requested, endpointLimit int) int {
	if endpointLimit > 0 && (requested <= 0 || requested > endpointLimit) {
		return endpointLimit
	}
	return requested
}

// headerTransport adds fixed headers to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// newHTTPClient returns the client used by the transports. With telemetry on,
// OpenRouter attribution headers are attached.
func newHTTPClient(telemetry bool) *http.Client {
	var rt http.RoundTripper = http.DefaultTransport
	if telemetry {
		rt = &headerTransport{
			base: rt,
			headers: map[string]string{
				"X-Title":      "ghostline - inline completions for your editor",
				"HTTP-Referer": "https://github.com/Paranoid-AF/ghostline",
			},
		}
	}
	return &http.Client{Timeout: requestTimeout, Transport: rt}
}
