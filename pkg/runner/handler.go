package runner

import (
	"context"

	"github.com/aretw0/feelflow/pkg/domain"
)

// IOHandler defines the strategy for interacting with the user.
// This allows switching between Text (terminal) and JSON (structured) modes.
type IOHandler interface {
	// Output presents transcript messages to the user.
	Output(ctx context.Context, msgs []domain.Message) error

	// Input reads the next line from the user.
	Input(ctx context.Context) (string, error)

	// Signal notifies the handler of an event (e.g. "typing").
	// This is used for visual feedback without blocking input.
	Signal(ctx context.Context, name string, args map[string]any) error

	// SystemOutput presents a meta-message (command results, hints, errors).
	// This is distinct from transcript content.
	SystemOutput(ctx context.Context, msg string) error
}

// ContentRenderer transforms bot message content before it is printed.
// This allows terminal rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)
