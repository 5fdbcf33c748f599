package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/probelab/agent-testbed/internal/domain/agent"
)

func newTestStore(t *testing.T) (*AgentStateStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewAgentStateStore(NewRedisCacheFromClient(client, zap.NewNop()), zap.NewNop()), mr
}

func TestSaveLoadStateRoundtrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	state := agent.NewAgentState("s1")
	state.History = append(state.History,
		agent.Message{Role: "user", Content: "hello"},
		agent.Message{Role: "assistant", Content: "hi there"})
	state.FailureCount = 2

	require.NoError(t, store.SaveState(ctx, state))

	loaded, err := store.LoadState(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "s1", loaded.SessionID)
	assert.Equal(t, state.History, loaded.History)
	assert.Equal(t, 2, loaded.FailureCount)
}

func TestLoadStateMissingSession(t *testing.T) {
	store, _ := newTestStore(t)

	state, err := store.LoadState(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestSaveStateRequiresSessionID(t *testing.T) {
	store, _ := newTestStore(t)

	assert.Error(t, store.SaveState(context.Background(), nil))
	assert.Error(t, store.SaveState(context.Background(), &agent.AgentState{}))
}

func TestDeleteState(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveState(ctx, agent.NewAgentState("s1")))
	require.NoError(t, store.DeleteState(ctx, "s1"))

	state, err := store.LoadState(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, state)

	// Deleting again is not an error.
	require.NoError(t, store.DeleteState(ctx, "s1"))
}

func TestSaveCheckpointWithoutSavedState(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	state := agent.NewAgentState("s1")
	state.History = append(state.History, agent.Message{Role: "user", Content: "first"})

	// The live state was never saved; the snapshot still works.
	require.NoError(t, store.SaveCheckpoint(ctx, "pre_request", state))

	restored, err := store.RestoreCheckpoint(ctx, "s1", "pre_request")
	require.NoError(t, err)
	require.Len(t, restored.History, 1)
	assert.Equal(t, "first", restored.History[0].Content)

	// Restore also reinstates the snapshot as the live state.
	live, err := store.LoadState(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.Equal(t, restored.History, live.History)
}

func TestCreateCheckpointRequiresState(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, store.CreateCheckpoint(ctx, "s1", "before"))

	require.NoError(t, store.SaveState(ctx, agent.NewAgentState("s1")))
	assert.NoError(t, store.CreateCheckpoint(ctx, "s1", "before"))
}

func TestRestoreCheckpointRollsBack(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	state := agent.NewAgentState("s1")
	state.History = append(state.History, agent.Message{Role: "user", Content: "turn one"})
	require.NoError(t, store.SaveState(ctx, state))
	require.NoError(t, store.CreateCheckpoint(ctx, "s1", "before"))

	state.History = append(state.History, agent.Message{Role: "assistant", Content: "turn two"})
	require.NoError(t, store.SaveState(ctx, state))

	restored, err := store.RestoreCheckpoint(ctx, "s1", "before")
	require.NoError(t, err)
	assert.Len(t, restored.History, 1)

	live, err := store.LoadState(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, live.History, 1)
}

func TestRestoreCheckpointMissing(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.RestoreCheckpoint(context.Background(), "s1", "ghost")
	assert.Error(t, err)
}

func TestFailureCounter(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	count, err := store.GetFailureCount(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	count, err = store.IncrementFailureCount(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = store.IncrementFailureCount(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = store.GetFailureCount(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, store.ResetFailureCount(ctx, "s1"))
	count, err = store.GetFailureCount(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestStateTTLApplied(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveState(ctx, agent.NewAgentState("s1")))

	mr.FastForward(stateTTL + time.Minute)

	state, err := store.LoadState(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, state)
}
