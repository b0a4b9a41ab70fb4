package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/feelflow/internal/logging"
	"github.com/aretw0/feelflow/pkg/domain"
	"github.com/aretw0/feelflow/pkg/ports"
)

// DefaultDebounce is the window in which repeated Create calls collapse into one session.
const DefaultDebounce = 300 * time.Millisecond

// DefaultLockTTL bounds how long a distributed session lock may be held.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager owns the ordered collection of Sessions and the active selection.
// Every mutation replaces the target Session with an updated copy under that
// session's lock; other sessions are never touched.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	store ports.SessionStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger

	clock    ports.Clock
	ids      ports.IDGenerator
	debounce time.Duration

	selMu       sync.Mutex // guards the fields below
	active      string
	lastCreated time.Time
	lastID      string
	created     int // highest "Chat n" handed out; -1 until read from the store
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL for distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock sets the clock used for timestamps and the creation debounce.
func WithClock(c ports.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithIDGenerator sets the generator for session and message IDs.
func WithIDGenerator(g ports.IDGenerator) Option {
	return func(m *Manager) {
		m.ids = g
	}
}

// WithDebounce sets the creation debounce window. Zero disables it.
func WithDebounce(d time.Duration) Option {
	return func(m *Manager) {
		m.debounce = d
	}
}

// NewManager creates a new Session Manager over the given store.
func NewManager(store ports.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		locks:    make(map[string]*lockEntry),
		lockTTL:  DefaultLockTTL,
		logger:   logging.NewNop(),
		clock:    ports.SystemClock,
		ids:      ports.UUIDGenerator,
		debounce: DefaultDebounce,
		created:  -1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// NewMessage stamps a message with a fresh ID and the current time.
func (m *Manager) NewMessage(role domain.Role, content string) domain.Message {
	return domain.NewMessage(m.ids.NewID(), role, content, m.clock.Now())
}

// Create appends a new session seeded with the greeting and makes it active.
// Calls that arrive within the debounce window of the previous creation return
// that session instead, with created=false.
func (m *Manager) Create(ctx context.Context) (s *domain.Session, created bool, err error) {
	m.selMu.Lock()
	defer m.selMu.Unlock()

	now := m.clock.Now()
	if m.lastID != "" && m.debounce > 0 && now.Sub(m.lastCreated) < m.debounce {
		recent, err := m.store.Load(ctx, m.lastID)
		if err == nil {
			m.logger.Debug("Session creation debounced", "session_id", m.lastID)
			return recent, false, nil
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return nil, false, fmt.Errorf("failed to load recent session: %w", err)
		}
	}

	if m.created < 0 {
		if m.created, err = m.highestTitle(ctx); err != nil {
			return nil, false, err
		}
	}

	id := m.ids.NewID()
	greeting := domain.NewMessage(m.ids.NewID(), domain.RoleBot, domain.Greeting, now)
	s = domain.NewSession(id, fmt.Sprintf("%s%d", titlePrefix, m.created+1), greeting)

	if err := m.store.Save(ctx, s); err != nil {
		return nil, false, fmt.Errorf("failed to initialize session: %w", err)
	}

	m.created++
	m.active = id
	m.lastCreated = now
	m.lastID = id
	m.logger.Info("Session created", "session_id", id, "title", s.Title)
	return s, true, nil
}

const titlePrefix = "Chat "

// highestTitle finds the largest n among stored "Chat n" titles, so numbering
// continues in creation order after deletions, expiry or a restart.
func (m *Manager) highestTitle(ctx context.Context) (int, error) {
	ids, err := m.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	highest := len(ids)
	for _, id := range ids {
		s, err := m.store.Load(ctx, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to load session %s: %w", id, err)
		}
		if rest, ok := strings.CutPrefix(s.Title, titlePrefix); ok {
			if n, err := strconv.Atoi(rest); err == nil && n > highest {
				highest = n
			}
		}
	}
	return highest, nil
}

// Switch makes id the active session. Unknown IDs are ignored and report false.
func (m *Manager) Switch(ctx context.Context, id string) (bool, error) {
	if _, err := m.store.Load(ctx, id); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			m.logger.Debug("Switch to unknown session ignored", "session_id", id)
			return false, nil
		}
		return false, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	m.selMu.Lock()
	m.active = id
	m.selMu.Unlock()
	return true, nil
}

// ActiveID returns the active session ID, or "" before the first session exists.
func (m *Manager) ActiveID() string {
	m.selMu.Lock()
	defer m.selMu.Unlock()
	return m.active
}

// Active returns the active session, or nil when there is none.
func (m *Manager) Active(ctx context.Context) (*domain.Session, error) {
	id := m.ActiveID()
	if id == "" {
		return nil, nil
	}
	s, err := m.Get(ctx, id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, nil
	}
	return s, err
}

// Get retrieves a session by ID.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Session, error) {
	return m.store.Load(ctx, id)
}

// List returns all sessions in creation order with the active one flagged.
func (m *Manager) List(ctx context.Context) ([]domain.SessionSummary, error) {
	ids, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	active := m.ActiveID()
	out := make([]domain.SessionSummary, 0, len(ids))
	for _, id := range ids {
		s, err := m.store.Load(ctx, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			continue // expired between List and Load
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load session %s: %w", id, err)
		}
		out = append(out, domain.SessionSummary{ID: s.ID, Title: s.Title, Active: s.ID == active})
	}
	return out, nil
}

// Update loads the session, applies fn to a private copy and stores the copy,
// all under the session lock. Returns domain.ErrSessionNotFound for unknown IDs.
func (m *Manager) Update(ctx context.Context, id string, fn func(*domain.Session) error) (*domain.Session, error) {
	var out *domain.Session
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		current, err := m.store.Load(ctx, id)
		if err != nil {
			return err
		}
		next := current.Clone()
		if err := fn(next); err != nil {
			return err
		}
		if err := m.store.Save(ctx, next); err != nil {
			return fmt.Errorf("failed to save session %s: %w", id, err)
		}
		out = next
		return nil
	})
	return out, err
}

// Append adds msg to the session transcript.
func (m *Manager) Append(ctx context.Context, id string, msg domain.Message) (*domain.Session, error) {
	return m.Update(ctx, id, func(s *domain.Session) error {
		*s = *s.WithMessage(msg)
		return nil
	})
}

// SetStep moves the session to step.
func (m *Manager) SetStep(ctx context.Context, id string, step domain.Step) (*domain.Session, error) {
	return m.Update(ctx, id, func(s *domain.Session) error {
		s.Step = step
		return nil
	})
}

// SetPath sets the session's path.
func (m *Manager) SetPath(ctx context.Context, id string, path domain.Path) (*domain.Session, error) {
	return m.Update(ctx, id, func(s *domain.Session) error {
		s.Path = path
		return nil
	})
}

// Delete removes the session from the store. Deleting the active session clears the selection.
func (m *Manager) Delete(ctx context.Context, id string) error {
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		return m.store.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	m.selMu.Lock()
	if m.active == id {
		m.active = ""
	}
	m.selMu.Unlock()
	return nil
}

// Store returns the underlying session store.
func (m *Manager) Store() ports.SessionStore {
	return m.store
}
