package main

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	ghostline "github.com/Paranoid-AF/ghostline"
	defaults "github.com/Paranoid-AF/ghostline/default"
	"github.com/Paranoid-AF/ghostline/generate"
)

// Completer is the engine surface the daemon drives.
type Completer interface {
	RequestCompletion(ctx context.Context, doc *ghostline.Document, pos ghostline.Position, trig generate.Trigger) *generate.Result
	OnAccepted(id string) bool
	OnExpired(id string) bool
	Configured() bool
	WarmContext(ctx context.Context, dir string)
	Close()
}

// CompleterFactory builds a completer that calls notify when subscribers
// should re-poll.
type CompleterFactory func(notify func()) Completer

// hostIdleTTL drops the host context of an editor session that stopped
// polling, cancelling whatever it still guards.
var hostIdleTTL = generate.DefaultSessionTTL

// hostEntry is the host context of one editor session. It lives as long as
// the session keeps polling the same request key.
type hostEntry struct {
	key    string
	ctx    context.Context
	cancel context.CancelFunc
}

// Server listens on a Unix domain socket for requests from editor hosts.
type Server struct {
	listener     net.Listener
	sockPath     string
	newCompleter CompleterFactory

	mu     sync.Mutex
	engine Completer
	hosts  *ttlcache.Cache[string, hostEntry]

	subsMu sync.Mutex
	subs   map[uuid.UUID]chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// NewServer creates a server backed by the configured completion engine.
func NewServer(sockPath string, opts ...generate.Option) (*Server, error) {
	return NewServerWithFactory(sockPath, func(notify func()) Completer {
		return generate.NewEngine(append(opts, generate.WithUpdateHandler(notify))...)
	})
}

// NewServerWithFactory creates a server whose engine is built, and rebuilt on
// reload, by factory.
func NewServerWithFactory(sockPath string, factory CompleterFactory) (*Server, error) {
	// Remove stale socket file if it exists
	if err := os.Remove(sockPath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, err
	}

	s := &Server{
		listener:     listener,
		sockPath:     sockPath,
		newCompleter: factory,
		hosts:        newHostCache(hostIdleTTL),
		subs:         make(map[uuid.UUID]chan struct{}),
		done:         make(chan struct{}),
	}
	s.engine = factory(s.broadcast)
	return s, nil
}

func newHostCache(ttl time.Duration) *ttlcache.Cache[string, hostEntry] {
	c := ttlcache.New[string, hostEntry](ttlcache.WithTTL[string, hostEntry](ttl))
	c.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, hostEntry]) {
		item.Value().cancel()
		if reason == ttlcache.EvictionReasonExpired {
			slog.Debug("host session idle", "session", item.Key())
		}
	})
	go c.Start()
	return c
}

// Serve accepts connections and handles requests.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// Close shuts down the server and engine and removes the socket file.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		for _, item := range s.hosts.Items() {
			item.Value().cancel()
		}
		s.hosts.DeleteAll()
		s.hosts.Stop()
		s.engine.Close()
		s.mu.Unlock()
		s.listener.Close()
		os.Remove(s.sockPath)
	})
}

func (s *Server) currentEngine() Completer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

// activeSessions reports the engine's registered session count when the
// engine exposes one.
func (s *Server) activeSessions() int {
	if c, ok := s.currentEngine().(interface{ Sessions() int }); ok {
		return c.Sessions()
	}
	return 0
}

// envelope picks the handler for a request line.
type envelope struct {
	Type   string `json:"type"`
	Action string `json:"action"`
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !scanner.Scan() {
		return
	}

	raw := scanner.Bytes()
	slog.Debug("request", "bytes", len(raw))

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		slog.Warn("invalid request", "error", err)
		writeJSON(conn, ghostline.Response{Error: &ghostline.Error{Code: "invalid_request", Message: err.Error()}})
		return
	}

	if env.Action != "" {
		var req ghostline.ConfigRequest
		json.Unmarshal(raw, &req)
		s.handleConfigRequest(conn, &req)
		return
	}

	switch env.Type {
	case "", "complete":
		var req ghostline.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			writeJSON(conn, ghostline.Response{Error: &ghostline.Error{Code: "invalid_request", Message: err.Error()}})
			return
		}
		s.handleComplete(conn, &req)
	case "accepted", "expired", "cancel":
		var req ghostline.LifecycleRequest
		json.Unmarshal(raw, &req)
		s.handleLifecycle(conn, &req)
	case "context":
		var req ghostline.ContextRequest
		json.Unmarshal(raw, &req)
		s.handleContextRequest(conn, &req)
	case "subscribe":
		s.handleSubscribe(conn)
	default:
		writeJSON(conn, ghostline.Response{Error: &ghostline.Error{
			Code:    "unknown_action",
			Message: "unknown request type: " + env.Type,
		}})
	}
}

// hostContext returns the context that guards the editor session's current
// trigger. A new request key supersedes, and cancels, the previous one.
func (s *Server) hostContext(sid, key string) context.Context {
	if sid == "" {
		return context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.hosts.Get(sid); item != nil {
		prev := item.Value()
		if prev.key == key {
			return prev.ctx
		}
		prev.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.hosts.Set(sid, hostEntry{key: key, ctx: ctx, cancel: cancel}, ttlcache.DefaultTTL)
	return ctx
}

func (s *Server) cancelHost(sid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.hosts.GetAndDelete(sid)
	if !ok || item == nil {
		return false
	}
	item.Value().cancel()
	return true
}

func (s *Server) hostCount() int {
	return s.hosts.Len()
}

func (s *Server) handleComplete(conn net.Conn, req *ghostline.Request) {
	engine := s.currentEngine()
	var resp ghostline.Response

	switch {
	case req.Document.URI == "":
		resp.Error = &ghostline.Error{Code: "invalid_request", Message: "document.uri is required"}
	case !engine.Configured():
		resp.Error = &ghostline.Error{
			Code:    "not_configured",
			Message: "generation endpoint not configured; set GHOSTLINE_API_KEY or edit " + ghostline.ConfigPath(),
		}
	default:
		key := req.RequestKey
		if key == "" {
			key = generate.RequestKey(&req.Document, req.Position)
		}
		ctx := s.hostContext(req.SessionID, key)
		res := engine.RequestCompletion(ctx, &req.Document, req.Position, generate.Trigger{
			RequestKey:  key,
			Instruction: req.Instruction,
		})
		if res != nil {
			resp.Completion = &ghostline.Completion{
				Text:          res.Text,
				Range:         res.Range,
				CorrelationID: res.CorrelationID,
			}
		}
	}
	writeJSON(conn, resp)
}

func (s *Server) handleLifecycle(conn net.Conn, req *ghostline.LifecycleRequest) {
	resp := ghostline.LifecycleResponse{OK: true}
	engine := s.currentEngine()

	switch req.Type {
	case "accepted", "expired":
		if req.CorrelationID == "" {
			resp = ghostline.LifecycleResponse{Error: &ghostline.Error{Code: "invalid_request", Message: "correlation_id is required"}}
			break
		}
		var found bool
		if req.Type == "accepted" {
			found = engine.OnAccepted(req.CorrelationID)
		} else {
			found = engine.OnExpired(req.CorrelationID)
		}
		if !found {
			resp = ghostline.LifecycleResponse{Error: &ghostline.Error{
				Code:    "unknown_session",
				Message: "no completion for " + req.CorrelationID,
			}}
		}
	case "cancel":
		if req.SessionID == "" {
			resp = ghostline.LifecycleResponse{Error: &ghostline.Error{Code: "invalid_request", Message: "session_id is required"}}
			break
		}
		s.cancelHost(req.SessionID)
	}
	writeJSON(conn, resp)
}

func (s *Server) handleContextRequest(conn net.Conn, req *ghostline.ContextRequest) {
	resp := ghostline.ContextResponse{OK: true}

	dir := strings.TrimRight(req.Dir, "\n")
	if dir == "" {
		resp.OK = false
		resp.Error = &ghostline.Error{Code: "invalid_request", Message: "dir is required"}
	} else {
		// Gather in background, respond immediately
		go s.currentEngine().WarmContext(context.Background(), dir)
	}
	writeJSON(conn, resp)
}

// handleSubscribe keeps the connection open and writes an "updated" line
// whenever the engine reports new text. It returns when the client hangs up
// or the server closes.
func (s *Server) handleSubscribe(conn net.Conn) {
	id := uuid.New()
	ch := make(chan struct{}, 1)

	s.subsMu.Lock()
	s.subs[id] = ch
	s.subsMu.Unlock()
	defer func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}()
	slog.Debug("subscriber connected", "id", id)

	gone := make(chan struct{})
	go func() {
		// Any read result means the client closed or misbehaved.
		buf := make([]byte, 1)
		conn.Read(buf)
		close(gone)
	}()

	for {
		select {
		case <-ch:
			if err := writeJSON(conn, ghostline.Notification{Type: "updated"}); err != nil {
				return
			}
		case <-gone:
			slog.Debug("subscriber disconnected", "id", id)
			return
		case <-s.done:
			return
		}
	}
}

// broadcast signals every subscriber. Signals coalesce per subscriber.
func (s *Server) broadcast() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Server) subscriberCount() int {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	return len(s.subs)
}

func (s *Server) handleConfigRequest(conn net.Conn, req *ghostline.ConfigRequest) {
	var resp ghostline.ConfigResponse

	switch req.Action {
	case "get":
		cfg, err := ghostline.LoadConfig()
		if err != nil {
			resp.Error = &ghostline.Error{
				Code:    "config_error",
				Message: err.Error(),
			}
		} else {
			resp.Config = cfg
		}

	case "reload":
		go s.reloadEngine()
		cfg, _ := ghostline.LoadConfig()
		resp.Config = cfg

	case "defaults":
		resp.Config = ghostline.DefaultConfig()

	case "default_prompt":
		resp.Prompt = defaults.DefaultPrompt

	case "validate":
		cfg, err := ghostline.LoadConfig()
		if err != nil {
			resp.Error = &ghostline.Error{
				Code:    "config_error",
				Message: err.Error(),
			}
		} else {
			resp.Warnings = ghostline.ValidateConfig(cfg)
		}

	default:
		resp.Error = &ghostline.Error{
			Code:    "unknown_action",
			Message: "unknown config action: " + req.Action,
		}
	}
	writeJSON(conn, resp)
}

// reloadEngine replaces the engine with one built from the current config.
// Sessions of the old engine are cancelled.
func (s *Server) reloadEngine() {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return
	default:
	}
	if s.engine != nil {
		s.engine.Close()
	}
	s.engine = s.newCompleter(s.broadcast)
	slog.Info("engine reloaded")
}

func writeJSON(conn net.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return err
	}
	slog.Debug("response", "data", string(data))
	_, err = conn.Write(append(data, '\n'))
	return err
}
