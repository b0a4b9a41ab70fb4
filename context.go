package feelflow

import (
	"context"

	"github.com/aretw0/feelflow/pkg/domain"
)

type engineKey struct{}

// NewContext returns a copy of ctx carrying e.
func NewContext(ctx context.Context, e *Engine) context.Context {
	return context.WithValue(ctx, engineKey{}, e)
}

// FromContext returns the Engine stored by NewContext.
// A missing engine is a wiring bug and is reported as domain.ErrNoEngine.
func FromContext(ctx context.Context) (*Engine, error) {
	e, ok := ctx.Value(engineKey{}).(*Engine)
	if !ok || e == nil {
		return nil, domain.ErrNoEngine
	}
	return e, nil
}

// MustFromContext is like FromContext but panics when no engine is present.
func MustFromContext(ctx context.Context) *Engine {
	e, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return e
}
