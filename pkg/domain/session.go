package domain

import (
	"slices"
	"time"
)

// Path is the top-level conversation branch chosen by the user.
type Path string

const (
	PathNone    Path = ""
	PathFeeling Path = "feeling"
	PathGoal    Path = "goal"
)

// Track selects which reflection table the catalog consults.
type Track string

const (
	TrackFeeling Track = "feeling"
	TrackGoal    Track = "goal"
)

// Track returns the reflection track that belongs to the path.
func (p Path) Track() Track {
	if p == PathGoal {
		return TrackGoal
	}
	return TrackFeeling
}

// Step is a named position within a path's script.
// The answer the user gives while a session sits on a Step decides the next Step.
type Step string

const (
	StepChoosePath      Step = "choose_path"
	StepGoal            Step = "goal"
	StepPrimaryFeeling  Step = "primary_feeling"
	StepFeelingDetail   Step = "feeling_detail"
	StepNowFeeling      Step = "now_feeling"
	StepDesiredFeeling  Step = "desired_feeling"
	StepDesiredDetail   Step = "desired_detail"
	StepAwaitingRestart Step = "awaiting_restart"
	StepEnded           Step = "ended"
)

var feelingOrdinals = map[Step]int{
	StepChoosePath:      0,
	StepPrimaryFeeling:  1,
	StepFeelingDetail:   2,
	StepNowFeeling:      3,
	StepDesiredFeeling:  4,
	StepDesiredDetail:   5,
	StepAwaitingRestart: 5,
	StepEnded:           5,
}

var goalOrdinals = map[Step]int{
	StepChoosePath:      0,
	StepGoal:            1,
	StepPrimaryFeeling:  2,
	StepFeelingDetail:   3,
	StepNowFeeling:      4,
	StepDesiredFeeling:  5,
	StepDesiredDetail:   6,
	StepAwaitingRestart: 6,
	StepEnded:           6,
}

// Ordinal projects the step onto the numeric counter of the path's script.
// The reflection step and the restart handshake share a number: the session
// "stays" there while it waits for the user to confirm a restart.
// Steps that do not belong to the path return -1.
func (s Step) Ordinal(p Path) int {
	table := feelingOrdinals
	switch p {
	case PathGoal:
		table = goalOrdinals
	case PathNone:
		if s == StepChoosePath {
			return 0
		}
		return -1
	}
	if n, ok := table[s]; ok {
		return n
	}
	return -1
}

// Terminal reports whether the scripted questions are finished for this step.
func (s Step) Terminal() bool {
	return s == StepAwaitingRestart || s == StepEnded
}

// Session is an independent conversation: an append-only transcript plus its script position.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Path      Path      `json:"path"`
	Step      Step      `json:"step"`

	// PrimaryFeeling and SecondaryFeeling are the answers captured when the
	// cycle check is armed. They are cleared on restart.
	PrimaryFeeling   string `json:"primary_feeling,omitempty"`
	SecondaryFeeling string `json:"secondary_feeling,omitempty"`

	// Sealed holds the encrypted session when a store encrypts at rest.
	// A sealed envelope carries only ID and timestamps besides it.
	Sealed []byte `json:"sealed,omitempty"`
}

// NewSession creates a session on the path-selection step seeded with one bot greeting.
func NewSession(id, title string, greeting Message) *Session {
	return &Session{
		ID:        id,
		Title:     title,
		Messages:  []Message{greeting},
		CreatedAt: greeting.Timestamp,
		UpdatedAt: greeting.Timestamp,
		Path:      PathNone,
		Step:      StepChoosePath,
	}
}

// Clone returns a copy whose message slice is not shared with the receiver.
func (s *Session) Clone() *Session {
	c := *s
	c.Messages = slices.Clone(s.Messages)
	return &c
}

// WithMessage returns a copy of the session with msg appended.
func (s *Session) WithMessage(msg Message) *Session {
	c := s.Clone()
	c.Messages = append(c.Messages, msg)
	if msg.Timestamp.After(c.UpdatedAt) {
		c.UpdatedAt = msg.Timestamp
	}
	return c
}

// Count returns the number of messages authored by role.
func (s *Session) Count(role Role) int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == role {
			n++
		}
	}
	return n
}

// LastMessage returns the most recent message, if any.
func (s *Session) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Ordinal is a shorthand for s.Step.Ordinal(s.Path).
func (s *Session) Ordinal() int {
	return s.Step.Ordinal(s.Path)
}

// SessionSummary is the read projection used by session lists.
type SessionSummary struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}

// Turn is the outcome of one inbound operation on a session.
// User is nil for operations that only produce a bot message (e.g. session creation).
type Turn struct {
	SessionID string   `json:"session_id"`
	User      *Message `json:"user,omitempty"`
	Bot       *Message `json:"bot,omitempty"`
	Path      Path     `json:"path"`
	Step      Step     `json:"step"`
}
