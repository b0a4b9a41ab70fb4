package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventSessionCreated EventType = "session_created"
	EventTurn           EventType = "turn"
	EventPathSelected   EventType = "path_selected"
	EventCycle          EventType = "cycle"
	EventRestart        EventType = "restart"
	EventFarewell       EventType = "farewell"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// TurnEvent describes one computed bot turn.
type TurnEvent struct {
	EventBase
	Path     Path          `json:"path"`
	From     Step          `json:"from"`
	To       Step          `json:"to"`
	Latency  time.Duration `json:"latency"`
	Fallback bool          `json:"fallback,omitempty"` // unrecognized input answered by a fallback branch
}

// CycleEvent describes a cycle start or answer.
type CycleEvent struct {
	EventBase
	Phase  CyclePhase `json:"phase"`
	Answer *bool      `json:"answer,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnSessionCreated func(context.Context, *EventBase)
	OnTurn           func(context.Context, *TurnEvent)
	OnPathSelected   func(context.Context, *TurnEvent)
	OnCycle          func(context.Context, *CycleEvent)
	OnRestart        func(context.Context, *EventBase)
	OnFarewell       func(context.Context, *EventBase)
}
