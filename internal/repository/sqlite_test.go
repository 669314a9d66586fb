package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/runview/internal/domain"
	"github.com/xiaot623/runview/tests/helpers"
)

func envelope(seq int64, runID string, t domain.EventType, at int64) domain.LifecycleEnvelope {
	return domain.LifecycleEnvelope{
		Seq: seq,
		Event: domain.LifecycleEvent{
			ID:            runID + ":" + string(t),
			Type:          t,
			RunID:         runID,
			At:            at,
			AgentID:       "coder",
			ParentAgentID: "main",
			Text:          "text " + string(t),
		},
	}
}

func TestSQLiteStoreAppendAndQuery(t *testing.T) {
	ctx := context.Background()
	store := helpers.NewTestSQLiteStore(t)

	n, err := store.AppendEnvelopes(ctx, "bridge-1", []domain.LifecycleEnvelope{
		envelope(1, "r1", domain.EventTypeSpawn, 100),
		envelope(2, "r1", domain.EventTypeStart, 110),
		envelope(3, "r2", domain.EventTypeSpawn, 120),
		envelope(4, "r1", domain.EventTypeEnd, 200),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	events, err := store.GetRunEvents(ctx, "r1", 0, nil, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "r1:spawn", events[0].Event.ID)
	assert.Equal(t, "r1:end", events[2].Event.ID)
	assert.Equal(t, int64(4), events[2].Seq)
	assert.Equal(t, "bridge-1", events[2].BridgeID)
	assert.Equal(t, domain.EventTypeEnd, events[2].Event.Type)
	assert.Equal(t, "main", events[2].Event.ParentAgentID)
	assert.Equal(t, "text end", events[2].Event.Text)
}

func TestSQLiteStoreIgnoresDuplicates(t *testing.T) {
	ctx := context.Background()
	store := helpers.NewTestSQLiteStore(t)

	_, err := store.AppendEnvelopes(ctx, "bridge-1", []domain.LifecycleEnvelope{envelope(1, "r1", domain.EventTypeSpawn, 100)})
	require.NoError(t, err)

	// A restarted server re-emits under a new bridge; the first record wins.
	n, err := store.AppendEnvelopes(ctx, "bridge-2", []domain.LifecycleEnvelope{
		envelope(1, "r1", domain.EventTypeSpawn, 100),
		envelope(2, "r1", domain.EventTypeStart, 150),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := store.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	events, err := store.GetRunEvents(ctx, "r1", 0, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "bridge-1", events[0].BridgeID)
	assert.Equal(t, "bridge-2", events[1].BridgeID)
}

func TestSQLiteStoreFilters(t *testing.T) {
	ctx := context.Background()
	store := helpers.NewTestSQLiteStore(t)

	_, err := store.AppendEnvelopes(ctx, "b", []domain.LifecycleEnvelope{
		envelope(1, "r1", domain.EventTypeSpawn, 100),
		envelope(2, "r1", domain.EventTypeStart, 110),
		envelope(3, "r1", domain.EventTypeError, 200),
		envelope(4, "r1", domain.EventTypeCleanup, 300),
	})
	require.NoError(t, err)

	events, err := store.GetRunEvents(ctx, "r1", 105, nil, 0)
	require.NoError(t, err)
	assert.Len(t, events, 3)

	events, err = store.GetRunEvents(ctx, "r1", 0, []string{"error", "cleanup"}, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventTypeError, events[0].Event.Type)

	events, err = store.GetRunEvents(ctx, "r1", 0, nil, 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = store.GetRunEvents(ctx, "missing", 0, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSQLiteStoreAppendEmpty(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	n, err := store.AppendEnvelopes(context.Background(), "b", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
