// Package stream turns successive full snapshots into a bounded, ordered,
// replayable log of lifecycle envelopes.
package stream

import (
	"sort"
	"sync"

	"github.com/xiaot623/runview/internal/domain"
)

// Default bounds of a Bridge.
const (
	DefaultMaxQueue           = 1200
	DefaultMaxSeen            = 4000
	DefaultMaxEmitPerSnapshot = 180
)

// Config bounds the memory a Bridge may use. Non-positive values fall back to
// the defaults.
type Config struct {
	MaxQueue           int
	MaxSeen            int
	MaxEmitPerSnapshot int
}

// BackfillResult is either the envelopes after a cursor or a gap when the
// cursor is outside the retained window. Exactly one of the two is meaningful:
// Gap is nil when Envelopes is valid (possibly empty).
type BackfillResult struct {
	Envelopes []domain.LifecycleEnvelope
	Gap       *domain.BackfillGap
}

// Bridge diffs snapshots into lifecycle envelopes. All methods are safe for
// concurrent use; IngestSnapshot calls are serialized.
type Bridge struct {
	cfg Config

	mu        sync.Mutex
	primed    bool
	seq       int64
	seen      map[string]struct{}
	seenOrder []string
	queue     []domain.LifecycleEnvelope
	last      *domain.Snapshot
	stats     domain.PressureStats
}

// NewBridge creates a new Bridge.
func NewBridge(cfg Config) *Bridge {
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = DefaultMaxQueue
	}
	if cfg.MaxSeen <= 0 {
		cfg.MaxSeen = DefaultMaxSeen
	}
	if cfg.MaxEmitPerSnapshot <= 0 {
		cfg.MaxEmitPerSnapshot = DefaultMaxEmitPerSnapshot
	}
	return &Bridge{
		cfg:  cfg,
		seen: make(map[string]struct{}),
	}
}

// IngestSnapshot records snapshot and returns the envelopes created for events
// not seen before, oldest first. The first snapshot only primes the ledger.
func (b *Bridge) IngestSnapshot(snapshot *domain.Snapshot) []domain.LifecycleEnvelope {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.last = snapshot
	if snapshot == nil {
		return nil
	}

	if !b.primed {
		b.primed = true
		for _, event := range snapshot.Events {
			b.remember(event.ID)
		}
		return nil
	}

	var unseen []domain.LifecycleEvent
	pending := make(map[string]struct{})
	for _, event := range snapshot.Events {
		if _, ok := b.seen[event.ID]; ok {
			continue
		}
		if _, ok := pending[event.ID]; ok {
			continue
		}
		pending[event.ID] = struct{}{}
		unseen = append(unseen, event)
	}
	if len(unseen) == 0 {
		return nil
	}

	sort.Slice(unseen, func(i, j int) bool {
		return emissionLess(unseen[i], unseen[j])
	})
	for _, event := range unseen {
		b.remember(event.ID)
	}

	if excess := len(unseen) - b.cfg.MaxEmitPerSnapshot; excess > 0 {
		unseen = unseen[excess:]
		b.stats.DroppedUnseenEvents += int64(excess)
		b.stats.BackpressureActivations++
	}

	emitted := make([]domain.LifecycleEnvelope, 0, len(unseen))
	for _, event := range unseen {
		b.seq++
		emitted = append(emitted, domain.LifecycleEnvelope{Seq: b.seq, Event: event})
	}
	b.queue = append(b.queue, emitted...)

	if excess := len(b.queue) - b.cfg.MaxQueue; excess > 0 {
		b.queue = append([]domain.LifecycleEnvelope(nil), b.queue[excess:]...)
		b.stats.EvictedBackfillEvents += int64(excess)
		b.stats.BackpressureActivations++
	}

	return emitted
}

// remember adds id to the seen ledger, evicting the oldest ids past MaxSeen.
// Caller must hold b.mu.
func (b *Bridge) remember(id string) {
	if _, ok := b.seen[id]; ok {
		return
	}
	b.seen[id] = struct{}{}
	b.seenOrder = append(b.seenOrder, id)
	if excess := len(b.seenOrder) - b.cfg.MaxSeen; excess > 0 {
		for _, old := range b.seenOrder[:excess] {
			delete(b.seen, old)
		}
		b.seenOrder = append([]string(nil), b.seenOrder[excess:]...)
	}
}

// GetBackfill returns the retained envelopes with seq > afterSeq, or a gap when
// envelopes after afterSeq were already evicted or afterSeq is ahead of
// anything this bridge emitted.
func (b *Bridge) GetBackfill(afterSeq int64) BackfillResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	oldest, latest := b.windowLocked()
	if afterSeq > latest || afterSeq < oldest-1 {
		gap := &domain.BackfillGap{
			RequestedCursor:    afterSeq,
			OldestAvailableSeq: oldest,
			LatestAvailableSeq: latest,
		}
		if afterSeq < oldest-1 {
			gap.DroppedCount = oldest - 1 - afterSeq
		}
		return BackfillResult{Gap: gap}
	}

	i := sort.Search(len(b.queue), func(i int) bool {
		return b.queue[i].Seq > afterSeq
	})
	envelopes := make([]domain.LifecycleEnvelope, len(b.queue)-i)
	copy(envelopes, b.queue[i:])
	return BackfillResult{Envelopes: envelopes}
}

// windowLocked returns the oldest retained seq and the latest assigned seq.
// With nothing retained the oldest is latest+1. Caller must hold b.mu.
func (b *Bridge) windowLocked() (oldest, latest int64) {
	latest = b.seq
	if len(b.queue) == 0 {
		return latest + 1, latest
	}
	return b.queue[0].Seq, latest
}

// Window returns the oldest retained seq and the latest assigned seq.
func (b *Bridge) Window() (oldest, latest int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.windowLocked()
}

// LatestSeq returns the last sequence number assigned.
func (b *Bridge) LatestSeq() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// LastSnapshot returns the most recently ingested snapshot.
func (b *Bridge) LastSnapshot() *domain.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// ConsumePressureStats returns the cumulative counters and resets them.
func (b *Bridge) ConsumePressureStats() domain.PressureStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	stats := b.stats
	b.stats = domain.PressureStats{}
	return stats
}

// emissionLess orders events by At ascending, then run id, type and id.
func emissionLess(a, c domain.LifecycleEvent) bool {
	if a.At != c.At {
		return a.At < c.At
	}
	if a.RunID != c.RunID {
		return a.RunID < c.RunID
	}
	if a.Type != c.Type {
		return a.Type < c.Type
	}
	return a.ID < c.ID
}
