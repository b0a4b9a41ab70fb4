package ports

import (
	"math/rand/v2"
	"sync"
)

// Random picks uniformly among n options. Implementations must be safe for concurrent use.
type Random interface {
	IntN(n int) int
}

type globalRandom struct{}

func (globalRandom) IntN(n int) int { return rand.IntN(n) }

// DefaultRandom draws from the process-wide math/rand/v2 source.
var DefaultRandom Random = globalRandom{}

type lockedRandom struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRandom) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// NewSeededRandom returns a deterministic source, for tests and reproducible runs.
func NewSeededRandom(seed uint64) Random {
	return &lockedRandom{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Pick returns a uniformly chosen element of options, or "" when options is empty.
func Pick(r Random, options []string) string {
	if len(options) == 0 {
		return ""
	}
	return options[r.IntN(len(options))]
}
