package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OnslaughtSnail/edgechat/kernel/session"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "db", "edgechat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	ts := time.UnixMilli(1_700_000_000_000)

	_, err := store.Load(ctx, "s")
	require.ErrorIs(t, err, session.ErrSessionNotFound)

	state := session.NewState(ts)
	state.Append(session.Turn{Role: session.RoleUser, Content: "hi", Timestamp: ts}, ts)
	state.Append(session.Turn{Role: session.RoleAssistant, Content: "hello", Timestamp: ts.Add(time.Millisecond)}, ts.Add(time.Millisecond))
	require.NoError(t, store.Save(ctx, "s", state))

	loaded, err := store.Load(ctx, "s")
	require.NoError(t, err)
	require.Len(t, loaded.Turns, 2)
	assert.Equal(t, session.RoleAssistant, loaded.Turns[1].Role)
	assert.Equal(t, "hello", loaded.Turns[1].Content)
	assert.True(t, loaded.LastUpdated.Equal(ts.Add(time.Millisecond)))

	state.Reset(ts.Add(time.Second))
	require.NoError(t, store.Save(ctx, "s", state))
	cleared, err := store.Load(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, cleared.Turns)
	assert.Empty(t, cleared.Summary)
}

func TestStore_EncodingIsDeterministic(t *testing.T) {
	ts := time.UnixMilli(1_700_000_000_000)
	state := session.NewState(ts)
	state.Summary = "- goal"
	state.Append(session.Turn{Role: session.RoleUser, Content: "hi", Timestamp: ts}, ts)
	a, err := encodeState(state)
	require.NoError(t, err)
	b, err := encodeState(state.Clone())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestStore_PutSummaryUpserts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_, ok, err := store.Summary(ctx, "s")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.PutSummary(ctx, "s", "first"))
	require.NoError(t, store.PutSummary(ctx, "s", "second"))
	got, ok, err := store.Summary(ctx, "s")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "second", got)
}

func TestStore_RejectsNilState(t *testing.T) {
	store := openTestStore(t)
	assert.ErrorIs(t, store.Save(context.Background(), "s", nil), session.ErrNilState)
}
