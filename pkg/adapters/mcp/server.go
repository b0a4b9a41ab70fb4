package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/feelflow"
	"github.com/aretw0/feelflow/internal/logging"
	"github.com/aretw0/feelflow/pkg/domain"
	"github.com/aretw0/feelflow/pkg/runner"
)

// ActiveURI is the resource exposing the active session.
const ActiveURI = "feelflow://active"

// TurnResponse is the structured result of every conversational tool.
type TurnResponse struct {
	Turn  domain.Turn      `json:"turn" jsonschema_description:"The user and bot messages appended by the call"`
	Cycle domain.CycleView `json:"cycle" jsonschema_description:"Cycle check availability after the call"`
}

// SessionsResponse is the structured result of the session tools.
type SessionsResponse struct {
	Sessions []domain.SessionSummary `json:"sessions" jsonschema_description:"All sessions in creation order"`
	Active   *domain.Session         `json:"active,omitempty" jsonschema_description:"The active session"`
}

// SubmitArgs are the arguments of submit_text.
type SubmitArgs struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
}

// SwitchArgs are the arguments of switch_session.
type SwitchArgs struct {
	SessionID string `json:"session_id"`
}

// AnswerArgs are the arguments of answer_cycle.
type AnswerArgs struct {
	Yes bool `json:"yes"`
}

// Server wraps the engine and exposes it as an MCP Server.
type Server struct {
	engine    *feelflow.Engine
	logger    *slog.Logger
	sanitizer runner.Sanitizer
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithSanitizer sets the rules applied to submit_text.
func WithSanitizer(sanitizer runner.Sanitizer) Option {
	return func(s *Server) {
		s.sanitizer = sanitizer
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(engine *feelflow.Engine, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		engine:    engine,
		logger:    logger,
		mcpServer: server.NewMCPServer("feelflow-mcp", feelflow.Version),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops when ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutdown signal received, shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("submit_text",
		mcp.WithDescription("Send a user message to a session and get the bot reply."),
		mcp.WithString("text", mcp.Required(), mcp.Description("The user message")),
		mcp.WithString("session_id", mcp.Description("Target session (defaults to the active one)")),
		mcp.WithOutputSchema[TurnResponse](),
	), mcp.NewStructuredToolHandler(s.handleSubmit))

	s.mcpServer.AddTool(mcp.NewTool("start_cycle_check",
		mcp.WithDescription("Ask whether the user still feels what they described."),
		mcp.WithOutputSchema[TurnResponse](),
	), mcp.NewStructuredToolHandler(s.handleStartCycle))

	s.mcpServer.AddTool(mcp.NewTool("answer_cycle",
		mcp.WithDescription("Answer the running cycle check."),
		mcp.WithBoolean("yes", mcp.Required(), mcp.Description("Whether the user still feels it")),
		mcp.WithOutputSchema[TurnResponse](),
	), mcp.NewStructuredToolHandler(s.handleAnswerCycle))

	s.mcpServer.AddTool(mcp.NewTool("create_session",
		mcp.WithDescription("Open a new chat and make it active."),
		mcp.WithOutputSchema[SessionsResponse](),
	), mcp.NewStructuredToolHandler(s.handleCreateSession))

	s.mcpServer.AddTool(mcp.NewTool("switch_session",
		mcp.WithDescription("Make an existing chat active."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("The chat to activate")),
		mcp.WithOutputSchema[SessionsResponse](),
	), mcp.NewStructuredToolHandler(s.handleSwitchSession))

	s.mcpServer.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List all chats."),
		mcp.WithOutputSchema[SessionsResponse](),
	), mcp.NewStructuredToolHandler(s.handleListSessions))
}

// Handler methods for structured tools

func (s *Server) handleSubmit(ctx context.Context, request mcp.CallToolRequest, args SubmitArgs) (TurnResponse, error) {
	clean, err := s.sanitizer.Clean(args.Text)
	if errors.Is(err, runner.ErrBlankInput) {
		return s.turnResponse(ctx, "submit_text", domain.Turn{}, nil)
	}
	if err != nil {
		s.logger.Warn("MCP submit_text: Input rejected", "error", err, "size", len(args.Text))
		return TurnResponse{}, fmt.Errorf("input rejected: %w", err)
	}
	turn, err := s.engine.SubmitText(ctx, args.SessionID, clean)
	return s.turnResponse(ctx, "submit_text", turn, err)
}

func (s *Server) handleStartCycle(ctx context.Context, request mcp.CallToolRequest, args struct{}) (TurnResponse, error) {
	turn, err := s.engine.StartCycleCheck(ctx)
	return s.turnResponse(ctx, "start_cycle_check", turn, err)
}

func (s *Server) handleAnswerCycle(ctx context.Context, request mcp.CallToolRequest, args AnswerArgs) (TurnResponse, error) {
	turn, err := s.engine.AnswerCycle(ctx, args.Yes)
	return s.turnResponse(ctx, "answer_cycle", turn, err)
}

func (s *Server) turnResponse(ctx context.Context, tool string, turn domain.Turn, err error) (TurnResponse, error) {
	if errors.Is(err, domain.ErrTurnPending) {
		return TurnResponse{}, err
	}
	if err != nil {
		s.logger.Error("MCP tool failed", "tool", tool, "error", err)
		return TurnResponse{}, fmt.Errorf("%s failed: %w", tool, err)
	}
	view, err := s.engine.CycleView(ctx)
	if err != nil {
		return TurnResponse{}, fmt.Errorf("cycle view failed: %w", err)
	}
	return TurnResponse{Turn: turn, Cycle: view}, nil
}

func (s *Server) handleCreateSession(ctx context.Context, request mcp.CallToolRequest, args struct{}) (SessionsResponse, error) {
	if _, err := s.engine.CreateSession(ctx); err != nil {
		return SessionsResponse{}, fmt.Errorf("create_session failed: %w", err)
	}
	return s.sessions(ctx)
}

func (s *Server) handleSwitchSession(ctx context.Context, request mcp.CallToolRequest, args SwitchArgs) (SessionsResponse, error) {
	ok, err := s.engine.SwitchSession(ctx, args.SessionID)
	if err != nil {
		return SessionsResponse{}, fmt.Errorf("switch_session failed: %w", err)
	}
	if !ok {
		return SessionsResponse{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, args.SessionID)
	}
	return s.sessions(ctx)
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest, args struct{}) (SessionsResponse, error) {
	return s.sessions(ctx)
}

func (s *Server) sessions(ctx context.Context) (SessionsResponse, error) {
	list, err := s.engine.Sessions(ctx)
	if err != nil {
		return SessionsResponse{}, fmt.Errorf("list sessions failed: %w", err)
	}
	active, err := s.engine.Current(ctx)
	if err != nil {
		return SessionsResponse{}, fmt.Errorf("load active session failed: %w", err)
	}
	return SessionsResponse{Sessions: list, Active: active}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(ActiveURI, "Active chat",
		mcp.WithMIMEType("application/json"),
	), s.readActive)
}

func (s *Server) readActive(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	active, err := s.engine.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active session: %w", err)
	}
	jsonBytes, err := json.Marshal(active)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ActiveURI,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}
