package stream

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/runview/internal/domain"
)

func event(id string, at int64) domain.LifecycleEvent {
	return domain.LifecycleEvent{
		ID:    id,
		Type:  domain.EventTypeSpawn,
		RunID: "run-" + id,
		At:    at,
	}
}

func snapshotOf(events ...domain.LifecycleEvent) *domain.Snapshot {
	return &domain.Snapshot{Events: events}
}

func manyEvents(prefix string, n int, baseAt int64) []domain.LifecycleEvent {
	events := make([]domain.LifecycleEvent, n)
	for i := range events {
		events[i] = event(fmt.Sprintf("%s-%04d", prefix, i), baseAt+int64(i))
	}
	return events
}

func TestIngestFirstSnapshotPrimesWithoutEmitting(t *testing.T) {
	b := NewBridge(Config{})

	emitted := b.IngestSnapshot(snapshotOf(event("a", 1), event("b", 2)))
	assert.Empty(t, emitted)
	assert.Equal(t, int64(0), b.LatestSeq())
	assert.NotNil(t, b.LastSnapshot())

	// Already-known events stay silent afterwards.
	assert.Empty(t, b.IngestSnapshot(snapshotOf(event("a", 1), event("b", 2))))
}

func TestIngestEmitsNewEventWithFirstSeq(t *testing.T) {
	b := NewBridge(Config{})
	b.IngestSnapshot(snapshotOf(event("a", 1)))

	emitted := b.IngestSnapshot(snapshotOf(event("a", 1), event("b", 2)))
	require.Len(t, emitted, 1)
	assert.Equal(t, int64(1), emitted[0].Seq)
	assert.Equal(t, "b", emitted[0].Event.ID)
}

func TestIngestOrdersDeterministically(t *testing.T) {
	b := NewBridge(Config{})
	b.IngestSnapshot(snapshotOf())

	start := domain.LifecycleEvent{ID: "r1:start", Type: domain.EventTypeStart, RunID: "r1", At: 10}
	spawn := domain.LifecycleEvent{ID: "r1:spawn", Type: domain.EventTypeSpawn, RunID: "r1", At: 10}
	other := domain.LifecycleEvent{ID: "r0:spawn", Type: domain.EventTypeSpawn, RunID: "r0", At: 10}
	early := domain.LifecycleEvent{ID: "r9:spawn", Type: domain.EventTypeSpawn, RunID: "r9", At: 5}

	emitted := b.IngestSnapshot(snapshotOf(start, spawn, other, early))
	require.Len(t, emitted, 4)
	var ids []string
	for i, env := range emitted {
		assert.Equal(t, int64(i+1), env.Seq)
		ids = append(ids, env.Event.ID)
	}
	assert.Equal(t, []string{"r9:spawn", "r0:spawn", "r1:spawn", "r1:start"}, ids)
}

func TestIngestBackpressureDropsOldestExcess(t *testing.T) {
	b := NewBridge(Config{MaxEmitPerSnapshot: 180})
	b.IngestSnapshot(snapshotOf())

	events := manyEvents("e", 300, 1000)
	emitted := b.IngestSnapshot(snapshotOf(events...))
	require.Len(t, emitted, 180)
	assert.Equal(t, "e-0120", emitted[0].Event.ID)
	assert.Equal(t, "e-0299", emitted[179].Event.ID)

	stats := b.ConsumePressureStats()
	assert.Equal(t, int64(120), stats.DroppedUnseenEvents)
	assert.Equal(t, int64(1), stats.BackpressureActivations)

	// Dropped events were marked seen and are never reconsidered.
	assert.Empty(t, b.IngestSnapshot(snapshotOf(events...)))
}

func TestIngestEvictsQueueBeyondMaxQueue(t *testing.T) {
	b := NewBridge(Config{MaxQueue: 1200, MaxSeen: 100000})
	b.IngestSnapshot(snapshotOf())

	for round := 0; round < 10; round++ {
		b.IngestSnapshot(snapshotOf(manyEvents(fmt.Sprintf("r%02d", round), 150, int64(round*1000))...))
	}

	result := b.GetBackfill(0)
	// Cursor 0 is now behind the retention window.
	require.NotNil(t, result.Gap)
	assert.Equal(t, int64(301), result.Gap.OldestAvailableSeq)
	assert.Equal(t, int64(1500), result.Gap.LatestAvailableSeq)
	assert.Equal(t, int64(300), result.Gap.DroppedCount)

	result = b.GetBackfill(300)
	require.Nil(t, result.Gap)
	assert.Len(t, result.Envelopes, 1200)
	assert.LessOrEqual(t, len(result.Envelopes), 1200)

	stats := b.ConsumePressureStats()
	assert.Equal(t, int64(300), stats.EvictedBackfillEvents)
	assert.Equal(t, int64(2), stats.BackpressureActivations)
}

func TestGetBackfillReturnsSuffix(t *testing.T) {
	b := NewBridge(Config{})
	b.IngestSnapshot(snapshotOf())
	b.IngestSnapshot(snapshotOf(event("a", 1), event("b", 2), event("c", 3)))

	result := b.GetBackfill(1)
	require.Nil(t, result.Gap)
	require.Len(t, result.Envelopes, 2)
	assert.Equal(t, int64(2), result.Envelopes[0].Seq)
	assert.Equal(t, int64(3), result.Envelopes[1].Seq)

	caughtUp := b.GetBackfill(3)
	assert.Nil(t, caughtUp.Gap)
	assert.Empty(t, caughtUp.Envelopes)
}

func TestGetBackfillCursorAheadIsGap(t *testing.T) {
	b := NewBridge(Config{})
	b.IngestSnapshot(snapshotOf())
	b.IngestSnapshot(snapshotOf(event("a", 1)))

	result := b.GetBackfill(42)
	require.NotNil(t, result.Gap)
	assert.Equal(t, int64(42), result.Gap.RequestedCursor)
	assert.Equal(t, int64(1), result.Gap.LatestAvailableSeq)
	assert.Equal(t, int64(0), result.Gap.DroppedCount)
}

func TestGetBackfillOnFreshBridge(t *testing.T) {
	b := NewBridge(Config{})

	result := b.GetBackfill(0)
	assert.Nil(t, result.Gap)
	assert.Empty(t, result.Envelopes)
}

func TestSeenLedgerIsBounded(t *testing.T) {
	b := NewBridge(Config{MaxSeen: 10})
	b.IngestSnapshot(snapshotOf(manyEvents("a", 10, 0)...))
	b.IngestSnapshot(snapshotOf(manyEvents("b", 10, 100)...))

	assert.Len(t, b.seen, 10)
	assert.Len(t, b.seenOrder, 10)
	_, stillSeen := b.seen["a-0000"]
	assert.False(t, stillSeen)
}

func TestConsumePressureStatsResets(t *testing.T) {
	b := NewBridge(Config{MaxEmitPerSnapshot: 1})
	b.IngestSnapshot(snapshotOf())
	b.IngestSnapshot(snapshotOf(event("a", 1), event("b", 2)))

	first := b.ConsumePressureStats()
	assert.Equal(t, int64(1), first.DroppedUnseenEvents)
	assert.Equal(t, domain.PressureStats{}, b.ConsumePressureStats())
}

func TestIngestIgnoresDuplicateIDsWithinSnapshot(t *testing.T) {
	b := NewBridge(Config{})
	b.IngestSnapshot(snapshotOf())

	emitted := b.IngestSnapshot(snapshotOf(event("a", 1), event("a", 1)))
	assert.Len(t, emitted, 1)
}
