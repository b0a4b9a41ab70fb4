package runtime

import (
	"log/slog"
	"sync"

	"github.com/aretw0/feelflow/internal/logging"
	"github.com/aretw0/feelflow/pkg/domain"
)

// Minimum script position (Step.Ordinal) from which a path offers the cycle check.
var cycleThreshold = map[domain.Path]int{
	domain.PathFeeling: 2,
	domain.PathGoal:    3,
}

// CycleEligible reports whether s has everything the cycle check needs:
// both feelings captured and the outer script past the path's threshold.
func CycleEligible(s *domain.Session) bool {
	if s == nil || s.Path == domain.PathNone || s.Step.Terminal() {
		return false
	}
	if s.PrimaryFeeling == "" || s.SecondaryFeeling == "" {
		return false
	}
	min, ok := cycleThreshold[s.Path]
	return ok && s.Ordinal() >= min
}

// CycleOutcome is the bot's side of one cycle exchange.
type CycleOutcome struct {
	Reply string
	Phase domain.CyclePhase // phase after the exchange

	// Resume is set when the cycle resolves and moves the outer script.
	Resume *domain.Step
}

// Cycle is the nested "do you still feel X?" sub-dialogue.
//
//	idle -> checking_secondary -(no)-> checking_primary -> idle
//	         ^______(yes)_____|
//
// It is process-wide: at most one cycle runs at a time, bound to one session.
type Cycle struct {
	mu     sync.Mutex
	state  domain.CycleState
	logger *slog.Logger
}

// NewCycle creates an idle cycle controller.
func NewCycle(logger *slog.Logger) *Cycle {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Cycle{state: domain.IdleCycle(), logger: logger}
}

// State returns a snapshot of the cycle.
func (c *Cycle) State() domain.CycleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reset discards any cycle in progress.
func (c *Cycle) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Active {
		c.logger.Debug("Cycle discarded", "session_id", c.state.SessionID, "phase", c.state.Phase)
	}
	c.state = domain.IdleCycle()
}

// ActiveFor reports whether a cycle is running on the given session.
func (c *Cycle) ActiveFor(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Active && c.state.SessionID == sessionID
}

// Eligible reports whether Start would succeed for s.
func (c *Cycle) Eligible(s *domain.Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.state.Active && CycleEligible(s)
}

// Question returns the question currently awaiting an answer, or nil when idle.
func (c *Cycle) Question() *string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.question()
}

func (c *Cycle) question() *string {
	var q string
	switch c.state.Phase {
	case domain.CycleCheckingSecondary:
		q = StillFeel(c.state.SecondaryFeeling)
	case domain.CycleCheckingPrimary:
		q = StillFeel(c.state.PrimaryFeeling)
	default:
		return nil
	}
	return &q
}

// Start opens the cycle on s and asks about the secondary feeling.
// It reports false, doing nothing, when s is not eligible or a cycle is already running.
func (c *Cycle) Start(s *domain.Session) (CycleOutcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Active || !CycleEligible(s) {
		c.logger.Debug("Cycle start ignored", "session_id", sessionID(s), "active", c.state.Active)
		return CycleOutcome{}, false
	}

	c.state = domain.CycleState{
		Active:           true,
		Phase:            domain.CycleCheckingSecondary,
		SessionID:        s.ID,
		PrimaryFeeling:   s.PrimaryFeeling,
		SecondaryFeeling: s.SecondaryFeeling,
	}
	return CycleOutcome{Reply: *c.question(), Phase: c.state.Phase}, true
}

// Answer advances the cycle running on s with the user's yes/no.
// It reports false, doing nothing, when no cycle is running on s.
func (c *Cycle) Answer(s *domain.Session, yes bool) (CycleOutcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Active || s == nil || c.state.SessionID != s.ID {
		c.logger.Debug("Cycle answer ignored: no cycle on session", "session_id", sessionID(s))
		return CycleOutcome{}, false
	}

	switch {
	case c.state.Phase == domain.CycleCheckingSecondary && yes:
		// Same question again; the user may confirm as many times as they need.
		return CycleOutcome{Reply: *c.question(), Phase: c.state.Phase}, true

	case c.state.Phase == domain.CycleCheckingSecondary:
		c.state.Phase = domain.CycleCheckingPrimary
		return CycleOutcome{Reply: *c.question(), Phase: c.state.Phase}, true

	case yes:
		// Still holding the primary feeling: go back and explore it again.
		reply := EchoFeeling(c.state.PrimaryFeeling)
		c.state = domain.IdleCycle()
		resume := domain.StepFeelingDetail
		return CycleOutcome{Reply: reply, Phase: domain.CycleIdle, Resume: &resume}, true

	default:
		c.state = domain.IdleCycle()
		resume := domain.StepNowFeeling
		return CycleOutcome{Reply: domain.PromptNowFeeling, Phase: domain.CycleIdle, Resume: &resume}, true
	}
}

func sessionID(s *domain.Session) string {
	if s == nil {
		return ""
	}
	return s.ID
}
