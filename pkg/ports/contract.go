package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/feelflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore implementation
// adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	newSession := func(id string, at time.Time) *domain.Session {
		greeting := domain.NewMessage(id+"-greeting", domain.RoleBot, domain.Greeting, at)
		return domain.NewSession(id, "Chat", greeting)
	}

	t.Run("Save and Load", func(t *testing.T) {
		s := newSession(sessionID, base)
		s.Path = domain.PathFeeling
		s.Step = domain.StepFeelingDetail
		s.PrimaryFeeling = "anxious"
		s = s.WithMessage(domain.NewMessage("m1", domain.RoleUser, "anxious", base.Add(time.Second)))

		err := store.Save(ctx, s)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, s.Title, loaded.Title)
		assert.Equal(t, domain.PathFeeling, loaded.Path)
		assert.Equal(t, domain.StepFeelingDetail, loaded.Step)
		assert.Equal(t, "anxious", loaded.PrimaryFeeling)
		require.Len(t, loaded.Messages, 2)
		assert.Equal(t, domain.Greeting, loaded.Messages[0].Content)
		assert.Equal(t, domain.RoleUser, loaded.Messages[1].Role)
		assert.True(t, s.UpdatedAt.Equal(loaded.UpdatedAt))
	})

	t.Run("Load Isolation", func(t *testing.T) {
		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		loaded.Messages[0].Content = "mutated"

		again, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, domain.Greeting, again.Messages[0].Content, "callers must not mutate stored sessions through returned values")
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List In Creation Order", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		id3 := sessionID + "-3"
		// Saved out of order on purpose.
		require.NoError(t, store.Save(ctx, newSession(id2, base.Add(2*time.Minute))))
		require.NoError(t, store.Save(ctx, newSession(id1, base.Add(time.Minute))))
		require.NoError(t, store.Save(ctx, newSession(id3, base.Add(3*time.Minute))))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
			_ = store.Delete(ctx, id3)
		}()

		// Re-saving must not move a session in the ordering.
		again, err := store.Load(ctx, id1)
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, again.WithMessage(domain.NewMessage("x", domain.RoleUser, "hi", base.Add(time.Hour)))))

		sessions, err := store.List(ctx)
		require.NoError(t, err)

		var ours []string
		for _, id := range sessions {
			if id == id1 || id == id2 || id == id3 {
				ours = append(ours, id)
			}
		}
		assert.Equal(t, []string{id1, id2, id3}, ours)
	})
}
