package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/solenelabs/aria/internal/observability"
	"github.com/solenelabs/aria/pkg/agent"
	"github.com/solenelabs/aria/pkg/conversation"
	"github.com/solenelabs/aria/pkg/runner"
)

// Server serves agent runs over HTTP and WebSocket.
type Server struct {
	port         int
	sharedSecret string
	runner       *runner.Runner
	roster       *agent.Roster
	defaultAgent string
	logger       zerolog.Logger

	server   *http.Server
	upgrader websocket.Upgrader

	shutdownMu     sync.RWMutex
	isShuttingDown bool
	inFlightReqs   sync.WaitGroup
}

// Config holds server configuration.
type Config struct {
	Port int
	// SharedSecret, when set, is required on every request via the
	// X-Aria-Secret header.
	SharedSecret string
	Runner       *runner.Runner
	Roster       *agent.Roster
	// DefaultAgent names the agent used when a request does not pick one.
	DefaultAgent string
	Logger       zerolog.Logger
}

// NewServer validates the configuration and builds a server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.Roster == nil {
		return nil, fmt.Errorf("agent roster is required")
	}
	if cfg.DefaultAgent == "" {
		return nil, fmt.Errorf("default agent is required")
	}
	if _, ok := cfg.Roster.Lookup(cfg.DefaultAgent); !ok {
		return nil, fmt.Errorf("default agent %q is not registered", cfg.DefaultAgent)
	}

	observability.EnsureRegistered()

	return &Server{
		port:         cfg.Port,
		sharedSecret: cfg.SharedSecret,
		runner:       cfg.Runner,
		roster:       cfg.Roster,
		defaultAgent: cfg.DefaultAgent,
		logger:       cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}

// Handler returns the HTTP handler with all routes mounted. Exposed for
// in-process tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat", s.handleChat)
	mux.HandleFunc("/v1/chat/stream", s.handleChatStream)
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}

	s.logger.Info().Int("port", s.port).Msg("Starting gateway")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Gateway stopped")
	return nil
}

// authorize enforces the shared secret when configured.
func (s *Server) authorize(r *http.Request) bool {
	if s.sharedSecret == "" {
		return true
	}
	return r.Header.Get(secretHeader) == s.sharedSecret
}

func (s *Server) rejecting(w http.ResponseWriter, r *http.Request) bool {
	s.shutdownMu.RLock()
	shuttingDown := s.isShuttingDown
	s.shutdownMu.RUnlock()
	if shuttingDown {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return true
	}
	if !s.authorize(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return true
	}
	return false
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.rejecting(w, r) {
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	params, err := s.runParams(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.inFlightReqs.Add(1)
	defer s.inFlightReqs.Done()

	runID := gonanoid.Must()
	s.logger.Info().
		Str("run_id", runID).
		Str("agent", params.Agent.Name()).
		Msg("Gateway chat request")

	resp, err := s.runner.Run(r.Context(), params)
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", runID).Msg("Chat run failed")
		writeError(w, http.StatusBadGateway, "agent run failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ChatResponse{
		RunID:     runID,
		Reply:     finalReply(resp.Messages),
		Agent:     resp.ActiveAgent.Name(),
		SessionID: resp.Context["session_id"],
		Context:   resp.Context,
		Messages:  resp.Messages,
	})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if s.rejecting(w, r) {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}
	defer conn.Close()

	var req ChatRequest
	if err := conn.ReadJSON(&req); err != nil {
		_ = conn.WriteJSON(StreamFrame{Type: "error", Error: "invalid request frame"})
		return
	}

	params, err := s.runParams(req)
	if err != nil {
		_ = conn.WriteJSON(StreamFrame{Type: "error", Error: err.Error()})
		return
	}

	s.inFlightReqs.Add(1)
	defer s.inFlightReqs.Done()

	runID := gonanoid.Must()
	s.logger.Info().
		Str("run_id", runID).
		Str("agent", params.Agent.Name()).
		Msg("Gateway stream request")

	tokens, errs := s.runner.RunStream(r.Context(), params)
	for token := range tokens {
		if err := conn.WriteJSON(StreamFrame{Type: "token", Content: token}); err != nil {
			s.logger.Debug().Err(err).Str("run_id", runID).Msg("Stream consumer went away")
			return
		}
	}
	if runErr := <-errs; runErr != nil {
		s.logger.Error().Err(runErr).Str("run_id", runID).Msg("Stream run failed")
		_ = conn.WriteJSON(StreamFrame{Type: "error", Error: "agent run failed", RunID: runID})
		return
	}
	_ = conn.WriteJSON(StreamFrame{Type: "done", RunID: runID})
}

// runParams translates a chat request into runner parameters.
func (s *Server) runParams(req ChatRequest) (runner.Params, error) {
	if strings.TrimSpace(req.Message) == "" {
		return runner.Params{}, fmt.Errorf("message is required")
	}

	agentName := req.Agent
	if agentName == "" {
		agentName = s.defaultAgent
	}
	persona, ok := s.roster.Lookup(agentName)
	if !ok {
		return runner.Params{}, fmt.Errorf("unknown agent: %s", agentName)
	}

	messages := append([]conversation.Message(nil), req.History...)
	messages = append(messages, conversation.UserMessage(req.Message))

	return runner.Params{
		Agent:     persona,
		Messages:  messages,
		Context:   req.Context,
		MaxTurns:  req.MaxTurns,
		SessionID: req.SessionID,
	}, nil
}

// finalReply extracts the last assistant text from a run transcript.
func finalReply(messages []conversation.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == conversation.RoleAssistant {
			return messages[i].Content
		}
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}
