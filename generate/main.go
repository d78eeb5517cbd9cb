// Package generate turns cursor positions in live documents into streamed
// inline completions.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"text/template"
	"time"

	ghostline "github.com/Paranoid-AF/ghostline"
	defaults "github.com/Paranoid-AF/ghostline/default"
	"github.com/Paranoid-AF/ghostline/redact"
)

// Placeholders sent in place of an empty prefix or suffix window.
const (
	BeginningOfFile = "[beginning of file]"
	EndOfFile       = "[end of file]"
)

// Trigger carries the host's per-trigger inputs.
type Trigger struct {
	// RequestKey identifies the trigger. Empty keys are synthesized from the
	// document and position.
	RequestKey string
	// Instruction is optional free text steering the completion.
	Instruction string
}

// Result is the text accumulated so far for a trigger.
type Result struct {
	Text          string
	Range         ghostline.Range
	CorrelationID string
}

// Engine owns the completion sessions of one editor host.
type Engine struct {
	mu sync.Mutex

	root      context.Context
	closeRoot context.CancelCauseFunc
	closed    bool

	config       *ghostline.Config
	customPrompt string
	transport    Transport
	extractor    Extractor
	registry     *Registry
	debouncer    *Debouncer
	projects     *ProjectCache
	ownProjects  bool
	metrics      *Metrics
	driver       *driver
	onUpdate     func()
}

// Option configures an Engine.
type Option func(*Engine)

// WithUpdateHandler sets the callback run, debounced, whenever a session's
// text changes or a session fails.
func WithUpdateHandler(fn func()) Option {
	return func(e *Engine) { e.onUpdate = fn }
}

// WithMetrics records engine activity on m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithPrompt overrides the system instruction template.
func WithPrompt(prompt string) Option {
	return func(e *Engine) { e.customPrompt = prompt }
}

// WithProjectCache shares a project context cache between engines. The
// caller keeps ownership and closes it.
func WithProjectCache(pc *ProjectCache) Option {
	return func(e *Engine) { e.projects = pc }
}

// NewEngine creates an engine from the user's config file, custom prompt and
// selected endpoint. Without a usable endpoint the engine is created anyway
// and answers every trigger with nil.
func NewEngine(opts ...Option) *Engine {
	cfg, err := ghostline.LoadConfig()
	if err != nil {
		slog.Warn("failed to load config, using defaults", "error", err)
		cfg = ghostline.DefaultConfig()
	}

	customPrompt := loadCustomPrompt()
	if customPrompt == "" {
		slog.Debug("no custom prompt, using built-in default")
	}

	var transport Transport
	ep, err := ghostline.SelectEndpoint(cfg)
	if err == nil {
		transport, err = NewTransport(ep, ghostline.OpenRouterTelemetryEnabled(cfg))
	}
	if err != nil {
		slog.Warn("generation endpoint not configured", "error", err)
		transport = nil
	} else {
		slog.Info("using endpoint", "name", ep.Name, "api_type", ep.APIType, "model", ep.Model)
	}

	return New(cfg, transport, append([]Option{WithPrompt(customPrompt)}, opts...)...)
}

// New creates an engine around an explicit config and transport. A nil
// transport leaves the engine unconfigured.
func New(cfg *ghostline.Config, transport Transport, opts ...Option) *Engine {
	if cfg == nil {
		cfg = ghostline.DefaultConfig()
	}
	g := cfg.Generation
	root, closeRoot := context.WithCancelCause(context.Background())

	e := &Engine{
		root:      root,
		closeRoot: closeRoot,
		config:    cfg,
		transport: transport,
		extractor: NewExtractor(g.PrefixChars, g.SuffixChars),
		registry: NewRegistry(
			time.Duration(g.SessionTTLSeconds)*time.Second,
			g.MaxSessions,
		),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.projects == nil && ghostline.ProjectContextEnabled(cfg) {
		e.projects = NewProjectCache()
		e.ownProjects = true
	}

	debounce := DefaultDebounceWindow
	if g.DebounceMs > 0 {
		debounce = time.Duration(g.DebounceMs) * time.Millisecond
	}
	e.debouncer = NewDebouncer(debounce, func() {
		if e.onUpdate != nil {
			e.onUpdate()
		}
	})

	throttle := DefaultThrottleInterval
	if g.ThrottleMs > 0 {
		throttle = time.Duration(g.ThrottleMs) * time.Millisecond
	}
	e.driver = newDriver(NewThrottle(throttle), transport, e.metrics, e.notify)
	return e
}

func loadCustomPrompt() string {
	promptPath := ghostline.PromptPath()
	data, err := os.ReadFile(promptPath)
	if err != nil {
		return ""
	}
	slog.Info("loaded custom prompt", "path", promptPath)
	return string(data)
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *ghostline.Config { return e.config }

// Configured reports whether the engine has a transport to call.
func (e *Engine) Configured() bool { return e.transport != nil }

// Close cancels every live session and stops background work.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.closeRoot(ErrEngineClosed)
	e.debouncer.Stop()
	e.registry.Close()
	if e.ownProjects {
		e.projects.Close()
	}
}

// WarmContext gathers project context for dir ahead of the first trigger.
func (e *Engine) WarmContext(ctx context.Context, dir string) {
	if e.projects == nil {
		return
	}
	e.projects.Gather(ctx, dir)
}

// RequestKey synthesizes the key of a trigger that carries none.
func RequestKey(doc *ghostline.Document, pos ghostline.Position) string {
	return fmt.Sprintf("%s@%d:%d:%d", doc.URI, doc.Version, pos.Line, pos.Character)
}

// RequestCompletion is the polling entry point. The first call for a key
// starts generation and returns nil; later calls return whatever text has
// arrived, or nil while there is none. Cancelling ctx invalidates the
// session the call created.
func (e *Engine) RequestCompletion(ctx context.Context, doc *ghostline.Document, pos ghostline.Position, trig Trigger) *Result {
	if doc == nil {
		return nil
	}
	if !ghostline.LanguageEnabled(e.config, doc.LanguageID) {
		e.metrics.triggerSuppressed("language_disabled")
		return nil
	}
	if e.transport == nil {
		e.metrics.triggerSuppressed("not_configured")
		return nil
	}
	if IsAtMidToken(doc, pos) {
		e.metrics.triggerSuppressed("mid_token")
		return nil
	}

	key := trig.RequestKey
	if key == "" {
		key = RequestKey(doc, pos)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}

	s := e.registry.Get(key)
	if s != nil && s.DocumentVersion != doc.Version {
		e.registry.RemoveIf(key, s)
		s.handle.Cancel(ErrStaleSession)
		slog.Debug("session stale", "key", key, "version", s.DocumentVersion, "current", doc.Version)
		s = nil
	}

	if s == nil {
		e.start(ctx, key, doc, pos, trig.Instruction)
		return nil
	}

	text, status := s.snapshot()
	if status == StatusErrored || status == StatusCancelled {
		e.registry.RemoveIf(key, s)
		return nil
	}
	if text == "" {
		return nil
	}
	return &Result{Text: text, Range: s.Range, CorrelationID: key}
}

// start registers a new session and launches its driver. Caller holds e.mu.
func (e *Engine) start(ctx context.Context, key string, doc *ghostline.Document, pos ghostline.Position, instruction string) {
	s := newSession(e.root, key, doc, pos)
	e.registry.Put(s)

	if ctx != nil {
		s.setDetach(context.AfterFunc(ctx, func() {
			if s.handle.Cancel(ErrHostCancelled) {
				e.mu.Lock()
				e.registry.RemoveIf(key, s)
				e.mu.Unlock()
			}
		}))
	}

	req := e.buildRequest(doc, pos, instruction)
	e.metrics.sessionStarted()
	slog.Debug("session created", "key", key, "language", doc.LanguageID)
	go e.driver.run(s, req)
}

// OnAccepted forgets the session the host inserted. Generation that is still
// running finishes in the background.
func (e *Engine) OnAccepted(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Remove(id) != nil
}

// OnExpired forgets the session and cancels its generation.
func (e *Engine) OnExpired(id string) bool {
	e.mu.Lock()
	s := e.registry.Remove(id)
	e.mu.Unlock()
	if s == nil {
		return false
	}
	s.handle.Cancel(ErrSessionExpired)
	return true
}

// Lookup returns the session registered under key, or nil.
func (e *Engine) Lookup(key string) *Session {
	return e.registry.Get(key)
}

// Sessions returns the number of registered sessions.
func (e *Engine) Sessions() int { return e.registry.Len() }

// notify raises an update while s is still the registered session for its key.
func (e *Engine) notify(s *Session) {
	if e.registry.Get(s.Key) != s {
		return
	}
	e.debouncer.Call()
}

// PromptData holds the data passed to the system prompt template.
type PromptData struct {
	Language string
}

// buildSystemPrompt renders the system instruction from the custom prompt,
// falling back to the built-in one.
func (e *Engine) buildSystemPrompt(language string) string {
	tmplSrc := e.customPrompt
	if strings.TrimSpace(tmplSrc) == "" {
		tmplSrc = defaults.DefaultPrompt
	}
	data := PromptData{Language: language}

	t, err := template.New("prompt").Parse(tmplSrc)
	if err != nil {
		slog.Warn("failed to parse prompt template, falling back to default", "error", err)
		t = template.Must(template.New("prompt").Parse(defaults.DefaultPrompt))
	}

	var buf strings.Builder
	if err := t.Execute(&buf, data); err != nil {
		slog.Warn("failed to execute prompt template, falling back to default", "error", err)
		buf.Reset()
		template.Must(template.New("prompt").Parse(defaults.DefaultPrompt)).Execute(&buf, data)
	}
	return strings.TrimRight(buf.String(), " \t\n")
}

// buildUserMessage embeds the language, instruction, project context and
// the prefix/suffix windows.
func (e *Engine) buildUserMessage(doc *ghostline.Document, pos ghostline.Position, instruction string) string {
	prefix, suffix := e.extractor.ExtractContext(doc, pos)
	if ghostline.RedactShellEnabled(e.config) && redact.IsShellLanguage(doc.LanguageID) {
		prefix = redact.Shell(prefix)
		suffix = redact.Shell(suffix)
	}
	if prefix == "" {
		prefix = BeginningOfFile
	}
	if suffix == "" {
		suffix = EndOfFile
	}

	var sb strings.Builder
	sb.WriteString("language: ")
	sb.WriteString(doc.LanguageID)
	sb.WriteString("\n")

	if instruction = strings.TrimSpace(instruction); instruction != "" {
		sb.WriteString("instruction: ")
		sb.WriteString(instruction)
		sb.WriteString("\n")
	}

	for _, line := range e.projectLines(doc.URI) {
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	sb.WriteString("\n<prefix>\n")
	sb.WriteString(prefix)
	sb.WriteString("\n</prefix>\n<suffix>\n")
	sb.WriteString(suffix)
	sb.WriteString("\n</suffix>")
	return sb.String()
}

// projectLines returns cached project context for the document, kicking
// off a background gather on a miss.
func (e *Engine) projectLines(uri string) []string {
	if e.projects == nil || !ghostline.ProjectContextEnabled(e.config) {
		return nil
	}
	dir := DocumentDir(uri)
	if dir == "" {
		return nil
	}
	pc := e.projects.Get(dir)
	if pc == nil {
		e.projects.GatherAsync(dir)
		return nil
	}
	return pc.Lines()
}

func (e *Engine) buildRequest(doc *ghostline.Document, pos ghostline.Position, instruction string) *ChatRequest {
	g := e.config.Generation
	return &ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: e.buildSystemPrompt(doc.LanguageID)},
			{Role: RoleUser, Content: e.buildUserMessage(doc, pos, instruction)},
		},
		MaxTokens:   g.MaxTokens,
		Temperature: ghostline.GenerationTemperature(e.config),
		TopP:        g.TopP,
		Stop:        g.Stop,
	}
}
