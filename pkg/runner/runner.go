package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/aretw0/feelflow/internal/logging"
	"github.com/aretw0/feelflow/pkg/domain"
)

// SignalTyping is sent to the handler before every gesture that produces a bot reply.
const SignalTyping = "typing"

// Engine is the part of feelflow.Engine the runner drives.
type Engine interface {
	SubmitText(ctx context.Context, sessionID, text string) (domain.Turn, error)
	CreateSession(ctx context.Context) (*domain.Session, error)
	SwitchSession(ctx context.Context, id string) (bool, error)
	StartCycleCheck(ctx context.Context) (domain.Turn, error)
	AnswerCycle(ctx context.Context, yes bool) (domain.Turn, error)
	Sessions(ctx context.Context) ([]domain.SessionSummary, error)
	Current(ctx context.Context) (*domain.Session, error)
	CycleView(ctx context.Context) (domain.CycleView, error)
}

// Runner handles the chat loop of the engine using provided IO.
// It uses an IOHandler strategy to abstract the interaction mode (Text vs JSON).
type Runner struct {
	// Handler is the strategy for IO. If nil, a TextHandler on Stdin/Stdout is used.
	Handler IOHandler

	// Logger is used for internal debug logging.
	// If nil, a no-op logger is used.
	Logger *slog.Logger

	// Headless suppresses hints and the typing indicator.
	Headless bool

	// Renderer is applied to bot messages by the default TextHandler.
	Renderer ContentRenderer

	// Sanitizer cleans every line before it is dispatched.
	Sanitizer Sanitizer

	engine Engine
	hinted string // session:step where the cycle hint was last shown
}

// NewRunner creates a new Runner for engine.
func NewRunner(engine Engine, opts ...Option) *Runner {
	r := &Runner{
		engine: engine,
		Logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the chat loop until the user quits, input ends, or ctx is cancelled.
// A session is created when none is active, and the active transcript is shown first.
func (r *Runner) Run(ctx context.Context) error {
	handler := r.resolveHandler()

	current, err := r.engine.Current(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active session: %w", err)
	}
	if current == nil {
		if current, err = r.engine.CreateSession(ctx); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
	}
	if err := handler.Output(ctx, current.Messages); err != nil {
		return fmt.Errorf("output error: %w", err)
	}

	for {
		text, err := handler.Input(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				r.Logger.Debug("Runner stopped", "err", err)
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}

		text, err = r.Sanitizer.Clean(text)
		switch {
		case errors.Is(err, ErrBlankInput):
			continue
		case err != nil:
			r.Logger.Debug("Input rejected", "err", err)
			if err := handler.SystemOutput(ctx, err.Error()+". Please try again."); err != nil {
				return err
			}
			continue
		}

		quit, err := r.dispatch(ctx, handler, text)
		if err != nil {
			return err
		}
		if quit {
			return handler.SystemOutput(ctx, "Bye!")
		}
	}
}

// resolveHandler ensures a valid IOHandler is set.
func (r *Runner) resolveHandler() IOHandler {
	if r.Handler != nil {
		return r.Handler
	}
	th := NewTextHandler(os.Stdin, os.Stdout, WithTextHandlerRenderer(r.Renderer))
	if r.Headless {
		th.Typing = ""
	}
	// Memoize to prevent creating new pumps on subsequent Run() calls
	r.Handler = th
	return th
}

func (r *Runner) dispatch(ctx context.Context, h IOHandler, text string) (quit bool, err error) {
	cmd, arg, isCmd := parseCommand(text)
	if !isCmd {
		return false, r.reply(ctx, h, func() (domain.Turn, error) {
			return r.engine.SubmitText(ctx, "", text)
		}, "")
	}

	switch cmd {
	case "quit", "exit":
		return true, nil

	case "new":
		s, err := r.engine.CreateSession(ctx)
		if err != nil {
			return false, err
		}
		if err := h.SystemOutput(ctx, "Opened "+s.Title); err != nil {
			return false, err
		}
		return false, h.Output(ctx, s.Messages)

	case "list":
		return false, r.list(ctx, h)

	case "switch":
		return false, r.switchTo(ctx, h, arg)

	case "check":
		return false, r.reply(ctx, h, func() (domain.Turn, error) {
			return r.engine.StartCycleCheck(ctx)
		}, "Nothing to check in on yet.")

	case "yes", "no":
		return false, r.reply(ctx, h, func() (domain.Turn, error) {
			return r.engine.AnswerCycle(ctx, cmd == "yes")
		}, "No check-in in progress.")

	case "help":
		return false, h.SystemOutput(ctx, helpText)
	}

	return false, h.SystemOutput(ctx, fmt.Sprintf("Unknown command /%s. Type /help.", cmd))
}

const helpText = "/new, /list, /switch <n|id>, /check, /yes, /no, /quit"

// reply runs one gesture and prints its bot message. When the gesture was a
// no-op and noop is set, noop is shown instead.
func (r *Runner) reply(ctx context.Context, h IOHandler, gesture func() (domain.Turn, error), noop string) error {
	if !r.Headless {
		if err := h.Signal(ctx, SignalTyping, nil); err != nil {
			return err
		}
	}

	turn, err := gesture()
	if errors.Is(err, domain.ErrTurnPending) {
		return h.SystemOutput(ctx, "Still answering, please wait.")
	}
	if err != nil {
		return fmt.Errorf("engine error: %w", err)
	}
	if turn.Bot == nil {
		if noop != "" {
			return h.SystemOutput(ctx, noop)
		}
		return nil
	}
	if err := h.Output(ctx, []domain.Message{*turn.Bot}); err != nil {
		return err
	}
	return r.hint(ctx, h, turn)
}

// hint mentions /check once per position where the cycle check becomes available.
func (r *Runner) hint(ctx context.Context, h IOHandler, turn domain.Turn) error {
	if r.Headless {
		return nil
	}
	view, err := r.engine.CycleView(ctx)
	if err != nil || !view.Eligible {
		return err
	}
	key := turn.SessionID + ":" + string(turn.Step)
	if key == r.hinted {
		return nil
	}
	r.hinted = key
	return h.SystemOutput(ctx, "Type /check to revisit how you feel.")
}

func (r *Runner) list(ctx context.Context, h IOHandler) error {
	sessions, err := r.engine.Sessions(ctx)
	if err != nil {
		return err
	}
	var b strings.Builder
	for i, s := range sessions {
		marker := " "
		if s.Active {
			marker = "*"
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %d. %s (%s)", marker, i+1, s.Title, s.ID)
	}
	return h.SystemOutput(ctx, b.String())
}

// switchTo accepts a 1-based position from /list or a session id.
func (r *Runner) switchTo(ctx context.Context, h IOHandler, arg string) error {
	if arg == "" {
		return h.SystemOutput(ctx, "Usage: /switch <n|id>")
	}

	id := arg
	if n, err := strconv.Atoi(arg); err == nil {
		sessions, err := r.engine.Sessions(ctx)
		if err != nil {
			return err
		}
		if n >= 1 && n <= len(sessions) {
			id = sessions[n-1].ID
		}
	}

	ok, err := r.engine.SwitchSession(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return h.SystemOutput(ctx, "No chat "+arg)
	}

	s, err := r.engine.Current(ctx)
	if err != nil || s == nil {
		return err
	}
	if err := h.SystemOutput(ctx, "Switched to "+s.Title); err != nil {
		return err
	}
	return h.Output(ctx, s.Messages)
}

// parseCommand splits "/switch 2" into ("switch", "2").
func parseCommand(text string) (cmd, arg string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	cmd, arg, _ = strings.Cut(text[1:], " ")
	return strings.ToLower(cmd), strings.TrimSpace(arg), cmd != ""
}
