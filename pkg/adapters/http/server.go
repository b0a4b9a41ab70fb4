package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/feelflow"
	"github.com/aretw0/feelflow/internal/logging"
	"github.com/aretw0/feelflow/pkg/domain"
	"github.com/aretw0/feelflow/pkg/runner"
)

// Server exposes one engine over HTTP.
type Server struct {
	Engine  *feelflow.Engine
	Streams *StreamManager

	logger    *slog.Logger
	gatherer  prometheus.Gatherer
	sanitizer runner.Sanitizer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGatherer exposes the given registry on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithSanitizer sets the rules applied to submitted text.
func WithSanitizer(sanitizer runner.Sanitizer) Option {
	return func(s *Server) {
		s.sanitizer = sanitizer
	}
}

// State is the body of GET /state.
type State struct {
	Session     *domain.Session  `json:"session"`
	Typing      bool             `json:"typing"`
	Cycle       domain.CycleView `json:"cycle"`
	SidebarOpen bool             `json:"sidebar_open"`
}

// SubmitRequest is the body of POST /messages. An empty SessionID targets the active session.
type SubmitRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text"`
}

// AnswerRequest is the body of POST /cycle/answer.
type AnswerRequest struct {
	Yes bool `json:"yes"`
}

// SidebarRequest is the body of PUT /sidebar.
type SidebarRequest struct {
	Open bool `json:"open"`
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine *feelflow.Engine, opts ...Option) http.Handler {
	server := &Server{
		Engine:  engine,
		Streams: NewStreamManager(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(server)
	}
	server.Streams.logger = server.logger

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(server.withEngine)

	r.Get("/healthz", server.GetHealth)
	r.Get("/state", server.GetState)
	r.Put("/sidebar", server.PutSidebar)
	r.Get("/events", server.SubscribeEvents)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", server.ListSessions)
		r.Post("/", server.CreateSession)
		r.Post("/{id}/activate", server.ActivateSession)
		r.Get("/{id}/messages", server.GetMessages)
	})
	r.Post("/messages", server.SubmitText)
	r.Post("/cycle/start", server.StartCycle)
	r.Post("/cycle/answer", server.AnswerCycle)

	if server.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(server.gatherer, promhttp.HandlerOpts{}))
	}

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withEngine makes the engine available to handlers through feelflow.FromContext.
func (s *Server) withEngine(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(feelflow.NewContext(r.Context(), s.Engine)))
	})
}

func (s *Server) engine(w http.ResponseWriter, r *http.Request) (*feelflow.Engine, bool) {
	eng, err := feelflow.FromContext(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		s.logger.Error("Engine missing from request context", "path", r.URL.Path)
		return nil, false
	}
	return eng, true
}

// GetHealth handles the GET /healthz request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": feelflow.Version})
}

// GetState handles the GET /state request.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.engine(w, r)
	if !ok {
		return
	}
	current, err := eng.Current(r.Context())
	if err != nil {
		s.fail(w, "GetState", err)
		return
	}
	view, err := eng.CycleView(r.Context())
	if err != nil {
		s.fail(w, "GetState", err)
		return
	}
	s.writeJSON(w, http.StatusOK, State{
		Session:     current,
		Typing:      eng.IsTyping(),
		Cycle:       view,
		SidebarOpen: eng.MobileSidebarOpen(),
	})
}

// PutSidebar handles the PUT /sidebar request.
func (s *Server) PutSidebar(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.engine(w, r)
	if !ok {
		return
	}
	var body SidebarRequest
	if !s.decode(w, r, "PutSidebar", &body) {
		return
	}
	eng.SetMobileSidebarOpen(body.Open)
	w.WriteHeader(http.StatusNoContent)
}

// ListSessions handles the GET /sessions request.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.engine(w, r)
	if !ok {
		return
	}
	list, err := eng.Sessions(r.Context())
	if err != nil {
		s.fail(w, "ListSessions", err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

// CreateSession handles the POST /sessions request. A debounced request
// answers 200 with the already active session instead of 201.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.engine(w, r)
	if !ok {
		return
	}
	before := eng.Manager().ActiveID()
	created, err := eng.CreateSession(r.Context())
	if err != nil {
		s.fail(w, "CreateSession", err)
		return
	}
	status := http.StatusCreated
	if created.ID == before {
		status = http.StatusOK
	}
	s.writeJSON(w, status, created)
}

// ActivateSession handles the POST /sessions/{id}/activate request.
func (s *Server) ActivateSession(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.engine(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	switched, err := eng.SwitchSession(r.Context(), id)
	if err != nil {
		s.fail(w, "ActivateSession", err)
		return
	}
	if !switched {
		http.Error(w, domain.ErrSessionNotFound.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetMessages handles the GET /sessions/{id}/messages request.
func (s *Server) GetMessages(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.engine(w, r)
	if !ok {
		return
	}
	sess, err := eng.Manager().Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrSessionNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		s.fail(w, "GetMessages", err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess.Messages)
}

// SubmitText handles the POST /messages request.
func (s *Server) SubmitText(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.engine(w, r)
	if !ok {
		return
	}
	var body SubmitRequest
	if !s.decode(w, r, "SubmitText", &body) {
		return
	}

	text, err := s.sanitizer.Clean(body.Text)
	if errors.Is(err, runner.ErrBlankInput) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid input: %v", err), http.StatusBadRequest)
		s.logger.Warn("SubmitText: Input rejected", "error", err, "size", len(body.Text))
		return
	}

	turn, err := eng.SubmitText(r.Context(), body.SessionID, text)
	s.respondTurn(w, "SubmitText", turn, err)
}

// StartCycle handles the POST /cycle/start request.
func (s *Server) StartCycle(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.engine(w, r)
	if !ok {
		return
	}
	turn, err := eng.StartCycleCheck(r.Context())
	s.respondTurn(w, "StartCycle", turn, err)
}

// AnswerCycle handles the POST /cycle/answer request.
func (s *Server) AnswerCycle(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.engine(w, r)
	if !ok {
		return
	}
	var body AnswerRequest
	if !s.decode(w, r, "AnswerCycle", &body) {
		return
	}
	turn, err := eng.AnswerCycle(r.Context(), body.Yes)
	s.respondTurn(w, "AnswerCycle", turn, err)
}

// respondTurn writes a turn. Gestures that changed nothing answer 204.
func (s *Server) respondTurn(w http.ResponseWriter, op string, turn domain.Turn, err error) {
	if errors.Is(err, domain.ErrTurnPending) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		s.fail(w, op, err)
		return
	}
	if turn.Bot == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if payload, err := json.Marshal(turn); err == nil {
		s.Streams.Broadcast(turn.SessionID, string(payload))
	}
	s.writeJSON(w, http.StatusOK, turn)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, op string, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn(op+": Invalid request body", "error", err)
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	http.Error(w, fmt.Sprintf("%s error: %v", op, err), http.StatusInternalServerError)
	s.logger.Error(op+" failed", "error", err)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "error", err)
	}
}

// StreamManager handles active SSE connections
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // SessionID -> Set of Channels
	logger      *slog.Logger
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logging.NewNop(),
	}
}

func (sm *StreamManager) Subscribe(sessionID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[sessionID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[sessionID]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, sessionID)
			}
		}
	}
}

func (sm *StreamManager) Broadcast(sessionID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[sessionID] {
		select {
		case ch <- msg:
		default:
			// Drop message if channel is full (slow client)
			sm.logger.Warn("SSE: Client buffer full, dropping message", "session_id", sessionID)
		}
	}
}

// SubscribeEvents handles the GET /events?session_id= request (SSE).
// Each event carries one turn of that session as JSON.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		sessionID = s.Engine.Manager().ActiveID()
	}
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(sessionID)
	defer cancel()

	s.logger.Info("SSE: Subscribing to session turns", "session_id", sessionID)
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected", "session_id", sessionID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: turn\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
