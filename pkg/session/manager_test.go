package session_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/feelflow/pkg/adapters/memory"
	"github.com/aretw0/feelflow/pkg/domain"
	"github.com/aretw0/feelflow/pkg/ports"
	"github.com/aretw0/feelflow/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sequentialIDs() ports.IDGenerator {
	var n atomic.Int64
	return ports.IDFunc(func() string {
		return fmt.Sprintf("id-%d", n.Add(1))
	})
}

func newManager(opts ...session.Option) (*session.Manager, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	base := []session.Option{
		session.WithClock(clock),
		session.WithIDGenerator(sequentialIDs()),
	}
	return session.NewManager(memory.NewStore(), append(base, opts...)...), clock
}

func TestManager_CreateSeedsGreeting(t *testing.T) {
	mgr, clock := newManager()
	ctx := context.Background()

	s, created, err := mgr.Create(ctx)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Chat 1", s.Title)
	assert.Equal(t, domain.PathNone, s.Path)
	assert.Equal(t, domain.StepChoosePath, s.Step)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, domain.RoleBot, s.Messages[0].Role)
	assert.Equal(t, domain.Greeting, s.Messages[0].Content)
	assert.Equal(t, s.ID, mgr.ActiveID())

	clock.Advance(time.Second)
	s2, created, err := mgr.Create(ctx)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Chat 2", s2.Title)
	assert.Equal(t, s2.ID, mgr.ActiveID())

	list, err := mgr.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.SessionSummary{
		{ID: s.ID, Title: "Chat 1", Active: false},
		{ID: s2.ID, Title: "Chat 2", Active: true},
	}, list)
}

func TestManager_CreateDebounced(t *testing.T) {
	mgr, clock := newManager()
	ctx := context.Background()

	first, created, err := mgr.Create(ctx)
	require.NoError(t, err)
	require.True(t, created)

	clock.Advance(100 * time.Millisecond)
	second, created, err := mgr.Create(ctx)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	list, err := mgr.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	clock.Advance(300 * time.Millisecond)
	_, created, err = mgr.Create(ctx)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestManager_CreateConcurrentDoubleTrigger(t *testing.T) {
	mgr, _ := newManager()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := mgr.Create(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	list, err := mgr.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestManager_SwitchUnknownIsNoop(t *testing.T) {
	mgr, _ := newManager()
	ctx := context.Background()

	s, _, err := mgr.Create(ctx)
	require.NoError(t, err)

	ok, err := mgr.Switch(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, s.ID, mgr.ActiveID())
}

func TestManager_MutationsAreIsolated(t *testing.T) {
	mgr, clock := newManager(session.WithDebounce(0))
	ctx := context.Background()

	a, _, err := mgr.Create(ctx)
	require.NoError(t, err)
	b, _, err := mgr.Create(ctx)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	msg := mgr.NewMessage(domain.RoleUser, "1")
	updated, err := mgr.Append(ctx, a.ID, msg)
	require.NoError(t, err)
	assert.Len(t, updated.Messages, 2)
	assert.True(t, updated.UpdatedAt.Equal(clock.Now()))
	assert.Len(t, a.Messages, 1, "the caller's copy is never mutated")

	_, err = mgr.SetPath(ctx, a.ID, domain.PathGoal)
	require.NoError(t, err)
	_, err = mgr.SetStep(ctx, a.ID, domain.StepGoal)
	require.NoError(t, err)

	gotA, err := mgr.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PathGoal, gotA.Path)
	assert.Equal(t, domain.StepGoal, gotA.Step)

	gotB, err := mgr.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, gotB.Messages, 1)
	assert.Equal(t, domain.PathNone, gotB.Path)
}

func TestManager_UpdateUnknown(t *testing.T) {
	mgr, _ := newManager()
	_, err := mgr.Append(context.Background(), "missing", domain.Message{})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_ConcurrentAppendsAreSerialized(t *testing.T) {
	mgr, _ := newManager()
	ctx := context.Background()
	s, _, err := mgr.Create(ctx)
	require.NoError(t, err)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := mgr.Append(ctx, s.ID, mgr.NewMessage(domain.RoleUser, fmt.Sprint(i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := mgr.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, writers+1, "no read-modify-write update may be lost")
}

type countingLocker struct {
	locks, unlocks atomic.Int32
}

func (l *countingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.locks.Add(1)
	return func(context.Context) error {
		l.unlocks.Add(1)
		return nil
	}, nil
}

func TestManager_UsesDistributedLocker(t *testing.T) {
	locker := &countingLocker{}
	mgr, _ := newManager(session.WithLocker(locker))
	ctx := context.Background()

	s, _, err := mgr.Create(ctx)
	require.NoError(t, err)
	_, err = mgr.SetStep(ctx, s.ID, domain.StepGoal)
	require.NoError(t, err)

	assert.Equal(t, int32(1), locker.locks.Load())
	assert.Equal(t, int32(1), locker.unlocks.Load())
}

func TestManager_DeleteClearsActive(t *testing.T) {
	mgr, _ := newManager()
	ctx := context.Background()
	s, _, err := mgr.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, mgr.Delete(ctx, s.ID))
	assert.Empty(t, mgr.ActiveID())

	active, err := mgr.Active(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestManager_TitlesFollowCreationOrder(t *testing.T) {
	store := memory.NewStore()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	ids := sequentialIDs()
	mgr := session.NewManager(store, session.WithClock(clock), session.WithIDGenerator(ids))
	ctx := context.Background()

	var created []*domain.Session
	for range 3 {
		s, _, err := mgr.Create(ctx)
		require.NoError(t, err)
		created = append(created, s)
		clock.Advance(time.Second)
	}
	require.NoError(t, mgr.Delete(ctx, created[1].ID))

	s, _, err := mgr.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Chat 4", s.Title, "a deleted chat does not free its number")

	// A fresh manager on the same store picks up where the last one stopped.
	require.NoError(t, mgr.Delete(ctx, created[0].ID))
	restarted := session.NewManager(store, session.WithClock(clock), session.WithIDGenerator(ids))
	s, _, err = restarted.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Chat 5", s.Title)

	list, err := restarted.List(ctx)
	require.NoError(t, err)
	titles := make([]string, 0, len(list))
	for _, summary := range list {
		titles = append(titles, summary.Title)
	}
	assert.Equal(t, []string{"Chat 3", "Chat 4", "Chat 5"}, titles)
}
