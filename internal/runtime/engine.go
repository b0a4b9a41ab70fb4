package runtime

import (
	"log/slog"

	"github.com/aretw0/feelflow/internal/logging"
	"github.com/aretw0/feelflow/pkg/domain"
	"github.com/aretw0/feelflow/pkg/ports"
)

// Reflector produces the closing reflection for a path's final answer.
type Reflector interface {
	Lookup(text string, track domain.Track) string
}

// Transition is the outcome of feeding one answer to the script.
// It is computed from a session snapshot and applied later, so a pending turn
// always lands on the session it was computed for.
type Transition struct {
	Reply string
	Path  domain.Path
	Step  domain.Step

	// Arm carries the captured feeling when this answer arms the cycle controller.
	ArmPrimary   *string
	ArmSecondary *string

	PathSelected bool
	Restart      bool // path and captured feelings reset
	Farewell     bool // restart declined
	Fallback     bool // input was not understood
}

// Apply writes the transition's position and captured answers onto s.
func (t Transition) Apply(s *domain.Session) {
	if t.Restart {
		s.PrimaryFeeling = ""
		s.SecondaryFeeling = ""
	}
	if t.ArmPrimary != nil {
		s.PrimaryFeeling = *t.ArmPrimary
		s.SecondaryFeeling = ""
	}
	if t.ArmSecondary != nil {
		s.SecondaryFeeling = *t.ArmSecondary
	}
	s.Path = t.Path
	s.Step = t.Step
}

// Engine is the dialogue state machine: (path, step) + input -> reply + next position.
// It holds no per-session state and is safe for concurrent use.
type Engine struct {
	reflector Reflector
	rand      ports.Random
	logger    *slog.Logger
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithRandom sets the source used to pick farewells.
func WithRandom(r ports.Random) EngineOption {
	return func(e *Engine) {
		e.rand = r
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates a new engine answering closing reflections through reflector.
func NewEngine(reflector Reflector, opts ...EngineOption) *Engine {
	e := &Engine{
		reflector: reflector,
		rand:      ports.DefaultRandom,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Step computes the bot's answer to input for a session positioned at (s.Path, s.Step).
// It never fails: input that matches nothing is answered by a fallback branch.
func (e *Engine) Step(s *domain.Session, input string) Transition {
	t := Transition{Path: s.Path, Step: s.Step}

	switch {
	case s.Step == domain.StepChoosePath || s.Path == domain.PathNone:
		return e.choosePath(t, input)
	case s.Step == domain.StepAwaitingRestart:
		return e.restartHandshake(t, input)
	case s.Step == domain.StepEnded:
		t.Reply = domain.NoticeEnded
		return t
	case s.Step == domain.StepDesiredDetail:
		t.Reply = e.reflector.Lookup(input, s.Path.Track()) + "\n\n" + domain.RestartOffer
		t.Step = domain.StepAwaitingRestart
		return t
	}

	line, ok := scriptFor(s.Path, s.Step)
	if !ok {
		// A position the script does not know; answer like the final step would.
		e.logger.Warn("No script line for position", "session_id", s.ID, "path", s.Path, "step", s.Step)
		t.Reply = e.reflector.Lookup(input, s.Path.Track())
		t.Fallback = true
		return t
	}

	t.Reply = line.reply(input)
	t.Step = line.next
	switch line.arm {
	case armPrimary:
		t.ArmPrimary = &input
	case armSecondary:
		t.ArmSecondary = &input
	}
	return t
}

func (e *Engine) choosePath(t Transition, input string) Transition {
	switch classifyPath(input) {
	case domain.PathFeeling:
		t.Path = domain.PathFeeling
		t.Step = domain.StepPrimaryFeeling
		t.Reply = domain.PromptFeelingPath
		t.PathSelected = true
	case domain.PathGoal:
		t.Path = domain.PathGoal
		t.Step = domain.StepGoal
		t.Reply = domain.PromptGoalPath
		t.PathSelected = true
	default:
		t.Path = domain.PathNone
		t.Step = domain.StepChoosePath
		t.Reply = domain.PromptClarify
		t.Fallback = true
	}
	return t
}

func (e *Engine) restartHandshake(t Transition, input string) Transition {
	if IsAffirmative(input) {
		t.Path = domain.PathNone
		t.Step = domain.StepChoosePath
		t.Reply = domain.Greeting
		t.Restart = true
		return t
	}
	t.Step = domain.StepEnded
	t.Reply = ports.Pick(e.rand, domain.Farewells)
	t.Farewell = true
	return t
}
