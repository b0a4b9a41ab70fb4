package runtime

import (
	"sync"

	"github.com/aretw0/feelflow/pkg/domain"
)

// Typing is the process-wide "bot is composing" indicator.
// It counts outstanding replies so overlapping cycle replies keep it raised
// until the last one lands.
type Typing struct {
	mu      sync.Mutex
	pending int
}

// TryRaise raises the signal for a text turn. A second text turn while any
// reply is pending is rejected with domain.ErrTurnPending.
func (t *Typing) TryRaise() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending > 0 {
		return domain.ErrTurnPending
	}
	t.pending++
	return nil
}

// Raise raises the signal unconditionally. Used by cycle gestures.
func (t *Typing) Raise() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending++
}

// Lower marks one pending reply as delivered.
func (t *Typing) Lower() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending > 0 {
		t.pending--
	}
}

// Raised reports whether any reply is pending.
func (t *Typing) Raised() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending > 0
}
