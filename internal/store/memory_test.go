package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/padel-memory/internal/game"
)

func newEngine(t *testing.T) *game.Engine {
	t.Helper()
	e, err := game.NewEngine(game.Options{Players: 1, BoardCards: 8, Rules: game.DefaultRules()})
	require.NoError(t, err)
	return e
}

func TestOwnershipIsEnforced(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	e := newEngine(t)
	require.NoError(t, st.Save(ctx, "alice", e))

	got, err := st.Get(ctx, "alice", e.ID())
	require.NoError(t, err)
	assert.Same(t, e, got)

	_, err = st.Get(ctx, "bob", e.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, st.Delete(ctx, "bob", e.ID()), ErrNotFound)

	_, err = st.Get(ctx, "alice", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, st.Save(ctx, "", e))
}

func TestDeleteClosesEngine(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	e := newEngine(t)
	require.NoError(t, st.Save(ctx, "alice", e))

	ch, _ := e.Subscribe()
	<-ch // initial snapshot
	require.NoError(t, st.Delete(ctx, "alice", e.ID()))

	_, open := <-ch
	assert.False(t, open, "subscription closed with the engine")

	_, err := st.Get(ctx, "alice", e.ID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPruneDropsIdleGames(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	st := newMemory(func() time.Time { return now })

	old := newEngine(t)
	fresh := newEngine(t)
	require.NoError(t, st.Save(ctx, "a", old))
	now = now.Add(30 * time.Minute)
	require.NoError(t, st.Save(ctx, "a", fresh))
	now = now.Add(40 * time.Minute)

	assert.Equal(t, 1, st.Prune(time.Hour))

	_, err := st.Get(ctx, "a", old.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.Get(ctx, "a", fresh.ID())
	assert.NoError(t, err)
}

func TestCloseEndsEveryGame(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	a, b := newEngine(t), newEngine(t)
	require.NoError(t, st.Save(ctx, "alice", a))
	require.NoError(t, st.Save(ctx, "bob", b))

	ch, _ := b.Subscribe()
	<-ch
	st.Close()

	_, open := <-ch
	assert.False(t, open)
	_, err := st.Get(ctx, "alice", a.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, st.Prune(0))
}
