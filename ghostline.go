// Package ghostline defines the request/response types for ghostline IPC.
// Messages are JSON-encoded and sent over a Unix domain socket, one per line.
package ghostline

import "fmt"

// Position is a zero-based line/character location in a document.
// Character counts Unicode code points within the line.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Character)
}

// Range is a half-open span between two positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Document is a snapshot of an editor buffer.
type Document struct {
	// URI identifies the document (e.g. "file:///home/user/main.go").
	URI string `json:"uri"`
	// LanguageID is the editor's language identifier (e.g. "go", "shellscript").
	LanguageID string `json:"language_id"`
	// Version increases on every edit. A session is stale once it diverges.
	Version int `json:"version"`
	// Text is the full document content.
	Text string `json:"text"`
}

// Request is sent from the editor host to trigger or poll a completion.
type Request struct {
	// Type is empty or "complete".
	Type string `json:"type,omitempty"`
	// SessionID identifies the editor session. A trigger with a new request key
	// cancels the previous one for the same session.
	SessionID string `json:"session_id,omitempty"`
	// Document is the current document snapshot.
	Document Document `json:"document"`
	// Position is the cursor position.
	Position Position `json:"position"`
	// RequestKey is an optional host-supplied identity for this trigger.
	// When empty the daemon derives one from the URI, version, and position.
	RequestKey string `json:"request_key,omitempty"`
	// Instruction is an optional free-form user instruction for the model.
	Instruction string `json:"instruction,omitempty"`
}

// Completion is the text currently available for a trigger.
type Completion struct {
	// Text is the accumulated completion text.
	Text string `json:"text"`
	// Range is where Text is inserted.
	Range Range `json:"range"`
	// CorrelationID is echoed back in accepted/expired callbacks.
	CorrelationID string `json:"correlation_id"`
}

// Response is sent from the daemon back to the host.
type Response struct {
	// Completion is nil when there is nothing to show yet. The host polls
	// again after an "updated" notification.
	Completion *Completion `json:"completion"`
	// Error is set when the daemon cannot fulfill the request.
	Error *Error `json:"error,omitempty"`
}

// Error describes a daemon-side error returned to the host.
type Error struct {
	// Code is a machine-readable error identifier (e.g. "not_configured", "invalid_request").
	Code string `json:"code"`
	// Message is a human-readable error description.
	Message string `json:"message"`
}

// LifecycleRequest reports what happened to a shown completion.
type LifecycleRequest struct {
	// Type is "accepted", "expired", or "cancel".
	Type string `json:"type"`
	// CorrelationID is the id from Completion (accepted/expired).
	CorrelationID string `json:"correlation_id,omitempty"`
	// SessionID is the editor session to cancel (cancel).
	SessionID string `json:"session_id,omitempty"`
}

// LifecycleResponse acknowledges a LifecycleRequest.
type LifecycleResponse struct {
	OK    bool   `json:"ok"`
	Error *Error `json:"error,omitempty"`
}

// Notification is pushed to subscribed connections.
type Notification struct {
	// Type is "updated": re-poll pending completions.
	Type string `json:"type"`
}

// ContextRequest is sent from the host to warm the project context cache.
type ContextRequest struct {
	// Type is always "context".
	Type string `json:"type"`
	// Dir is the directory to pre-cache context for.
	Dir string `json:"dir"`
}

// ContextResponse is sent from the daemon in response to a ContextRequest.
type ContextResponse struct {
	// OK is true when the warm-up was accepted.
	OK bool `json:"ok"`
	// Error is set when the operation fails.
	Error *Error `json:"error,omitempty"`
}

// ConfigRequest is sent from the host for configuration operations.
type ConfigRequest struct {
	// Action is the config operation: "get", "reload", "defaults", "default_prompt", or "validate".
	Action string `json:"action"`
}

// ConfigResponse is sent from the daemon in response to a ConfigRequest.
type ConfigResponse struct {
	// Config is the current configuration (for "get", "reload", and "defaults" actions).
	Config *Config `json:"config,omitempty"`
	// Prompt is the default system prompt (for "default_prompt" action).
	Prompt string `json:"prompt,omitempty"`
	// Warnings contains configuration warnings (for "validate" action).
	Warnings []string `json:"warnings,omitempty"`
	// Error is set when the operation fails.
	Error *Error `json:"error,omitempty"`
}
