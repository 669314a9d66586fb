package domain

// LifecycleEvent is one lifecycle occurrence of a run. Events are immutable.
type LifecycleEvent struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	RunID         string    `json:"runId"`
	At            int64     `json:"at"` // Unix milliseconds
	AgentID       string    `json:"agentId"`
	ParentAgentID string    `json:"parentAgentId"`
	Text          string    `json:"text"`
}

// LifecycleEnvelope wraps an event with the sequence number assigned by the
// bridge that emitted it.
type LifecycleEnvelope struct {
	Seq   int64          `json:"seq"`
	Event LifecycleEvent `json:"event"`
}

// BackfillGap reports that a consumer's cursor fell outside the retained window.
type BackfillGap struct {
	RequestedCursor    int64 `json:"requestedCursor"`
	OldestAvailableSeq int64 `json:"oldestAvailableSeq"`
	LatestAvailableSeq int64 `json:"latestAvailableSeq"`
	DroppedCount       int64 `json:"droppedCount"`
}

// PressureStats are the cumulative backpressure counters of a bridge.
type PressureStats struct {
	BackpressureActivations int64 `json:"backpressureActivations"`
	DroppedUnseenEvents     int64 `json:"droppedUnseenEvents"`
	EvictedBackfillEvents   int64 `json:"evictedBackfillEvents"`
}

// NewerFirst reports whether a sorts before b in snapshot order: At
// descending, ID ascending.
func NewerFirst(a, b LifecycleEvent) bool {
	if a.At != b.At {
		return a.At > b.At
	}
	return a.ID < b.ID
}

// ArchivedEvent is a lifecycle event as stored in the archive, with the
// bridge instance and seq it was emitted under.
type ArchivedEvent struct {
	Seq      int64          `json:"seq"`
	BridgeID string         `json:"bridgeId"`
	Event    LifecycleEvent `json:"event"`
}
