// Package protocol defines the frames pushed to stream subscribers.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xiaot623/runview/internal/domain"
)

// Headers carrying the stream position of a snapshot and the identity of the
// bridge that numbered it. The stream handshake sets the bridge header too.
const (
	HeaderLifecycleCursor = "X-Lifecycle-Cursor"
	HeaderLifecycleBridge = "X-Lifecycle-Bridge"
)

// Frame types from server to subscriber
const (
	TypeSnapshot    = "snapshot"
	TypeLifecycle   = "lifecycle"
	TypeBackfillGap = "backfill-gap"
)

// BaseMessage contains common fields for all frames.
type BaseMessage struct {
	Type string `json:"type"`
	Ts   int64  `json:"ts"`
}

// SnapshotMessage carries a full snapshot and the stream cursor it is current
// up to.
type SnapshotMessage struct {
	BaseMessage
	Cursor   int64            `json:"cursor"`
	Snapshot *domain.Snapshot `json:"snapshot"`
}

// LifecycleMessage carries one lifecycle envelope.
type LifecycleMessage struct {
	BaseMessage
	Seq   int64                 `json:"seq"`
	Event domain.LifecycleEvent `json:"event"`
}

// BackfillGapMessage tells a subscriber that its cursor can no longer be
// served incrementally.
type BackfillGapMessage struct {
	BaseMessage
	domain.BackfillGap
}

// NewSnapshotMessage builds a snapshot frame.
func NewSnapshotMessage(cursor int64, snapshot *domain.Snapshot) SnapshotMessage {
	return SnapshotMessage{
		BaseMessage: newBase(TypeSnapshot),
		Cursor:      cursor,
		Snapshot:    snapshot,
	}
}

// NewLifecycleMessage builds a lifecycle frame.
func NewLifecycleMessage(envelope domain.LifecycleEnvelope) LifecycleMessage {
	return LifecycleMessage{
		BaseMessage: newBase(TypeLifecycle),
		Seq:         envelope.Seq,
		Event:       envelope.Event,
	}
}

// NewBackfillGapMessage builds a backfill-gap frame.
func NewBackfillGapMessage(gap domain.BackfillGap) BackfillGapMessage {
	return BackfillGapMessage{
		BaseMessage: newBase(TypeBackfillGap),
		BackfillGap: gap,
	}
}

func newBase(t string) BaseMessage {
	return BaseMessage{Type: t, Ts: time.Now().UnixMilli()}
}

// Envelope returns the lifecycle envelope carried by m.
func (m LifecycleMessage) Envelope() domain.LifecycleEnvelope {
	return domain.LifecycleEnvelope{Seq: m.Seq, Event: m.Event}
}

// Decode parses a frame and returns one of *SnapshotMessage,
// *LifecycleMessage or *BackfillGapMessage.
func Decode(data []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}

	var msg interface{}
	switch base.Type {
	case TypeSnapshot:
		msg = &SnapshotMessage{}
	case TypeLifecycle:
		msg = &LifecycleMessage{}
	case TypeBackfillGap:
		msg = &BackfillGapMessage{}
	default:
		return nil, fmt.Errorf("unknown frame type: %q", base.Type)
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("invalid %s frame: %w", base.Type, err)
	}
	return msg, nil
}
