package feelflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/feelflow/internal/logging"
	"github.com/aretw0/feelflow/internal/runtime"
	"github.com/aretw0/feelflow/pkg/adapters/memory"
	"github.com/aretw0/feelflow/pkg/catalog"
	"github.com/aretw0/feelflow/pkg/domain"
	"github.com/aretw0/feelflow/pkg/ports"
	"github.com/aretw0/feelflow/pkg/session"
)

// DefaultTypingDelay is the simulated time the bot spends composing a reply.
const DefaultTypingDelay = time.Second

// TracerName identifies the spans started by the Engine.
const TracerName = "github.com/aretw0/feelflow"

// Reflector produces the closing reflection of a path. *catalog.Catalog implements it.
type Reflector interface {
	Lookup(text string, track domain.Track) string
}

// Engine is the high-level entry point for feelflow.
// It owns the sessions, the dialogue state machine, the cycle check and the typing
// signal, and is safe for concurrent use.
type Engine struct {
	sessions *session.Manager
	dialogue *runtime.Engine
	cycle    *runtime.Cycle
	typing   runtime.Typing

	store     ports.SessionStore
	locker    ports.DistributedLocker
	reflector Reflector
	clock     ports.Clock
	ids       ports.IDGenerator
	random    ports.Random
	debounce  *time.Duration
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	tracer    trace.Tracer

	typingDelay       time.Duration
	autoCreateOnClose bool

	mu          sync.Mutex // guards sidebarOpen and replying
	sidebarOpen bool
	replying    map[string]struct{} // sessions with a reply pending
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock sets the clock used for message timestamps and the creation debounce.
func WithClock(c ports.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator sets the generator for session and message IDs.
func WithIDGenerator(g ports.IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithRandom sets the source for reflection and farewell selection.
// It is also handed to the default catalog.
func WithRandom(r ports.Random) Option {
	return func(e *Engine) {
		e.random = r
	}
}

// WithCatalog replaces the built-in reflection catalog.
func WithCatalog(r Reflector) Option {
	return func(e *Engine) {
		e.reflector = r
	}
}

// WithStore injects a session store (default: in-memory).
func WithStore(s ports.SessionStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithLocker enables distributed session locking.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithTypingDelay sets the simulated reply latency. Zero disables it.
func WithTypingDelay(d time.Duration) Option {
	return func(e *Engine) {
		e.typingDelay = d
	}
}

// WithDebounce sets the session creation debounce window.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) {
		e.debounce = &d
	}
}

// WithHooks registers observability hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithAutoCreateAfterFarewell opens a fresh session once the user declines a restart.
func WithAutoCreateAfterFarewell(enabled bool) Option {
	return func(e *Engine) {
		e.autoCreateOnClose = enabled
	}
}

// WithTracer overrides the tracer taken from the global OpenTelemetry provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// New initializes a new Engine. No session exists until CreateSession is called.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		clock:       ports.SystemClock,
		ids:         ports.UUIDGenerator,
		random:      ports.DefaultRandom,
		typingDelay: DefaultTypingDelay,
		replying:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.typingDelay < 0 {
		return nil, fmt.Errorf("typing delay must not be negative: %s", e.typingDelay)
	}
	if e.debounce != nil && *e.debounce < 0 {
		return nil, fmt.Errorf("debounce must not be negative: %s", *e.debounce)
	}

	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(TracerName)
	}
	if e.store == nil {
		e.store = memory.NewStore()
	}
	if e.reflector == nil {
		e.reflector = catalog.Default(catalog.WithRand(e.random))
	}

	sessionOpts := []session.Option{
		session.WithLogger(e.logger),
		session.WithClock(e.clock),
		session.WithIDGenerator(e.ids),
	}
	if e.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(e.locker))
	}
	if e.debounce != nil {
		sessionOpts = append(sessionOpts, session.WithDebounce(*e.debounce))
	}

	e.sessions = session.NewManager(e.store, sessionOpts...)
	e.dialogue = runtime.NewEngine(e.reflector,
		runtime.WithRandom(e.random),
		runtime.WithLogger(e.logger),
	)
	e.cycle = runtime.NewCycle(e.logger)
	return e, nil
}

// Manager exposes the underlying session manager.
func (e *Engine) Manager() *session.Manager {
	return e.sessions
}

// errSkip aborts an exchange before anything is written.
var errSkip = errors.New("exchange skipped")

// reply is the bot side of an exchange, planned on the session snapshot that
// received the user message.
type reply struct {
	text  string
	apply func(*domain.Session)
	after func(ctx context.Context, s *domain.Session, latency time.Duration)
}

// exchange records the user message, plans the reply on that same snapshot,
// waits the typing delay and appends the reply to the same session id.
// plan returning errSkip turns the whole exchange into a no-op, and so does a
// second exchange on a session whose reply is still pending.
func (e *Engine) exchange(ctx context.Context, id, userText string, plan func(*domain.Session) (reply, error)) (domain.Turn, error) {
	if !e.beginReply(id) {
		e.logger.Debug("Reply pending, input ignored", "session_id", id, "text", userText)
		return domain.Turn{}, nil
	}
	defer e.endReply(id)

	started := e.clock.Now()

	var r reply
	userMsg := e.sessions.NewMessage(domain.RoleUser, userText)
	_, err := e.sessions.Update(ctx, id, func(s *domain.Session) error {
		var err error
		if r, err = plan(s); err != nil {
			return err
		}
		*s = *s.WithMessage(userMsg)
		return nil
	})
	if errors.Is(err, errSkip) || errors.Is(err, domain.ErrSessionNotFound) {
		return domain.Turn{}, nil
	}
	if err != nil {
		return domain.Turn{}, err
	}

	e.wait(ctx)

	// The reply lands even when the caller gave up waiting.
	ctx = context.WithoutCancel(ctx)
	botMsg := e.sessions.NewMessage(domain.RoleBot, r.text)
	s, err := e.sessions.Update(ctx, id, func(s *domain.Session) error {
		if r.apply != nil {
			r.apply(s)
		}
		*s = *s.WithMessage(botMsg)
		return nil
	})
	if err != nil {
		return domain.Turn{}, fmt.Errorf("failed to deliver reply to session %s: %w", id, err)
	}

	if r.after != nil {
		r.after(ctx, s, e.clock.Now().Sub(started))
	}
	return domain.Turn{SessionID: id, User: &userMsg, Bot: &botMsg, Path: s.Path, Step: s.Step}, nil
}

func (e *Engine) beginReply(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.replying[id]; busy {
		return false
	}
	e.replying[id] = struct{}{}
	return true
}

func (e *Engine) endReply(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.replying, id)
}

func (e *Engine) wait(ctx context.Context) {
	if e.typingDelay <= 0 {
		return
	}
	timer := time.NewTimer(e.typingDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "feelflow."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// SubmitText feeds user text to a session. An empty sessionID targets the active session.
// Missing sessions and blank text are no-ops that return a zero Turn.
// While any reply is pending, text is rejected with domain.ErrTurnPending.
// While a cycle check runs on the session, the text answers it (affirmative words mean yes).
func (e *Engine) SubmitText(ctx context.Context, sessionID, text string) (turn domain.Turn, err error) {
	if sessionID == "" {
		sessionID = e.sessions.ActiveID()
	}
	ctx, span := e.startSpan(ctx, "SubmitText", attribute.String("session.id", sessionID))
	defer func() { endSpan(span, err) }()

	if sessionID == "" || strings.TrimSpace(text) == "" {
		e.logger.Debug("Submit ignored", "session_id", sessionID)
		return domain.Turn{}, nil
	}

	if err := e.typing.TryRaise(); err != nil {
		return domain.Turn{}, err
	}
	defer e.typing.Lower()

	if e.cycle.ActiveFor(sessionID) {
		return e.answerCycle(ctx, sessionID, text, runtime.IsAffirmative(text))
	}

	return e.exchange(ctx, sessionID, text, func(s *domain.Session) (reply, error) {
		from := s.Step
		t := e.dialogue.Step(s, text)
		return reply{
			text:  t.Reply,
			apply: t.Apply,
			after: func(ctx context.Context, s *domain.Session, latency time.Duration) {
				e.afterTurn(ctx, s, from, t, latency)
			},
		}, nil
	})
}

func (e *Engine) afterTurn(ctx context.Context, s *domain.Session, from domain.Step, t runtime.Transition, latency time.Duration) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("feelflow.path", string(s.Path)),
		attribute.String("feelflow.step", string(s.Step)),
	)

	ev := &domain.TurnEvent{
		EventBase: e.event(domain.EventTurn, s.ID),
		Path:      s.Path,
		From:      from,
		To:        s.Step,
		Latency:   latency,
		Fallback:  t.Fallback,
	}
	if e.hooks.OnTurn != nil {
		e.hooks.OnTurn(ctx, ev)
	}

	switch {
	case t.PathSelected:
		e.logger.Info("Path selected", "session_id", s.ID, "path", s.Path)
		if e.hooks.OnPathSelected != nil {
			pe := *ev
			pe.Type = domain.EventPathSelected
			e.hooks.OnPathSelected(ctx, &pe)
		}
	case t.Restart:
		e.logger.Info("Conversation restarted", "session_id", s.ID)
		if e.hooks.OnRestart != nil {
			base := e.event(domain.EventRestart, s.ID)
			e.hooks.OnRestart(ctx, &base)
		}
	case t.Farewell:
		e.logger.Info("Conversation ended", "session_id", s.ID)
		if e.hooks.OnFarewell != nil {
			base := e.event(domain.EventFarewell, s.ID)
			e.hooks.OnFarewell(ctx, &base)
		}
		if e.autoCreateOnClose {
			if _, err := e.CreateSession(ctx); err != nil {
				e.logger.Error("Failed to open session after farewell", "err", err)
			}
		}
	}
}

func (e *Engine) event(t domain.EventType, sessionID string) domain.EventBase {
	return domain.EventBase{Timestamp: e.clock.Now(), Type: t, SessionID: sessionID}
}

// CreateSession opens a new session seeded with the greeting and makes it active.
// Calls inside the debounce window return the session just created.
func (e *Engine) CreateSession(ctx context.Context) (s *domain.Session, err error) {
	ctx, span := e.startSpan(ctx, "CreateSession")
	defer func() { endSpan(span, err) }()

	s, created, err := e.sessions.Create(ctx)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("session.id", s.ID), attribute.Bool("feelflow.created", created))
	if !created {
		return s, nil
	}

	e.cycle.Reset()
	if e.hooks.OnSessionCreated != nil {
		base := e.event(domain.EventSessionCreated, s.ID)
		e.hooks.OnSessionCreated(ctx, &base)
	}
	return s, nil
}

// SwitchSession makes id the active session. Unknown IDs leave the selection
// unchanged and report false. Either way the cycle check and the mobile session
// list are closed.
func (e *Engine) SwitchSession(ctx context.Context, id string) (ok bool, err error) {
	ctx, span := e.startSpan(ctx, "SwitchSession", attribute.String("session.id", id))
	defer func() { endSpan(span, err) }()

	e.cycle.Reset()
	e.SetMobileSidebarOpen(false)
	return e.sessions.Switch(ctx, id)
}

// StartCycleCheck asks the active session whether its secondary feeling persists.
// It is a no-op unless the session is eligible (see CycleView).
func (e *Engine) StartCycleCheck(ctx context.Context) (turn domain.Turn, err error) {
	id := e.sessions.ActiveID()
	ctx, span := e.startSpan(ctx, "StartCycleCheck", attribute.String("session.id", id))
	defer func() { endSpan(span, err) }()

	if id == "" {
		return domain.Turn{}, nil
	}

	e.typing.Raise()
	defer e.typing.Lower()

	return e.exchange(ctx, id, domain.GestureCheckIn, func(s *domain.Session) (reply, error) {
		out, ok := e.cycle.Start(s)
		if !ok {
			return reply{}, errSkip
		}
		return reply{
			text: out.Reply,
			after: func(ctx context.Context, s *domain.Session, _ time.Duration) {
				e.cycleEvent(ctx, s.ID, out.Phase, nil)
			},
		}, nil
	})
}

// AnswerCycle answers the running cycle check on the active session.
// Without a running check it is a no-op.
func (e *Engine) AnswerCycle(ctx context.Context, yes bool) (turn domain.Turn, err error) {
	id := e.sessions.ActiveID()
	ctx, span := e.startSpan(ctx, "AnswerCycle", attribute.String("session.id", id), attribute.Bool("feelflow.yes", yes))
	defer func() { endSpan(span, err) }()

	if id == "" {
		return domain.Turn{}, nil
	}

	e.typing.Raise()
	defer e.typing.Lower()

	label := domain.GestureNo
	if yes {
		label = domain.GestureYes
	}
	return e.answerCycle(ctx, id, label, yes)
}

func (e *Engine) answerCycle(ctx context.Context, id, userText string, yes bool) (domain.Turn, error) {
	return e.exchange(ctx, id, userText, func(s *domain.Session) (reply, error) {
		out, ok := e.cycle.Answer(s, yes)
		if !ok {
			return reply{}, errSkip
		}
		r := reply{
			text: out.Reply,
			after: func(ctx context.Context, s *domain.Session, _ time.Duration) {
				e.cycleEvent(ctx, s.ID, out.Phase, &yes)
			},
		}
		if out.Resume != nil {
			step := *out.Resume
			r.apply = func(s *domain.Session) {
				s.Step = step
			}
		}
		return r, nil
	})
}

func (e *Engine) cycleEvent(ctx context.Context, sessionID string, phase domain.CyclePhase, answer *bool) {
	e.logger.Debug("Cycle advanced", "session_id", sessionID, "phase", phase)
	if e.hooks.OnCycle != nil {
		e.hooks.OnCycle(ctx, &domain.CycleEvent{
			EventBase: e.event(domain.EventCycle, sessionID),
			Phase:     phase,
			Answer:    answer,
		})
	}
}

// SetMobileSidebarOpen toggles the session list overlay used on narrow screens.
func (e *Engine) SetMobileSidebarOpen(open bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sidebarOpen = open
}

// MobileSidebarOpen reports whether the session list overlay is open.
func (e *Engine) MobileSidebarOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sidebarOpen
}

// Sessions lists all sessions in creation order with the active one flagged.
func (e *Engine) Sessions(ctx context.Context) ([]domain.SessionSummary, error) {
	return e.sessions.List(ctx)
}

// Current returns the active session, or nil before the first session exists.
func (e *Engine) Current(ctx context.Context) (*domain.Session, error) {
	return e.sessions.Active(ctx)
}

// Messages returns the active session's transcript in order.
func (e *Engine) Messages(ctx context.Context) ([]domain.Message, error) {
	s, err := e.sessions.Active(ctx)
	if err != nil || s == nil {
		return nil, err
	}
	return s.Messages, nil
}

// IsTyping reports whether a bot reply is pending.
func (e *Engine) IsTyping() bool {
	return e.typing.Raised()
}

// CycleView projects the cycle check for the active session.
func (e *Engine) CycleView(ctx context.Context) (domain.CycleView, error) {
	s, err := e.sessions.Active(ctx)
	if err != nil {
		return domain.CycleView{}, err
	}
	if s == nil {
		return domain.CycleView{}, nil
	}
	return domain.CycleView{
		Eligible: e.cycle.Eligible(s),
		Active:   e.cycle.ActiveFor(s.ID),
		Question: e.cycle.Question(),
	}, nil
}
