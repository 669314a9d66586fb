package viewstate

import (
	"sync"

	"github.com/xiaot623/runview/internal/domain"
)

// Connectivity is the transport state of a consumer, kept apart from data
// corruption.
type Connectivity string

const (
	ConnectivityConnecting Connectivity = "connecting"
	ConnectivityLive       Connectivity = "live"
	ConnectivityPolling    Connectivity = "polling"
	ConnectivityOffline    Connectivity = "offline"
)

// Store is a consumer's view: the rendered snapshot, the last healthy
// baseline and the stream cursor. It is safe for concurrent use.
type Store struct {
	limit int

	mu           sync.Mutex
	current      *domain.Snapshot
	baseline     *domain.Snapshot
	cursor       int64
	notice       string
	needsResync  bool
	connectivity Connectivity

	// index is memoized for indexOf only; a new current snapshot drops it.
	index   *Index
	indexOf *domain.Snapshot
}

// NewStore creates a new Store whose event log is capped at limit.
func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = domain.DefaultEventLimit
	}
	return &Store{
		limit:        limit,
		connectivity: ConnectivityConnecting,
	}
}

// ApplySnapshot guards a full snapshot and makes it the view. cursor is the
// stream position the snapshot corresponds to.
func (s *Store) ApplySnapshot(snapshot *domain.Snapshot, cursor int64) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	decision := Guard(snapshot, s.baseline)
	s.acceptLocked(decision)
	if cursor >= 0 {
		s.cursor = cursor
	}
	s.needsResync = false
	return decision
}

// ApplyEnvelope merges one streamed event against the running baseline and
// guards the result. Envelopes at or below the cursor, and every envelope while
// a resync is pending, are ignored and report false.
func (s *Store) ApplyEnvelope(envelope domain.LifecycleEnvelope) (Decision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.needsResync || envelope.Seq <= s.cursor {
		return Decision{Snapshot: s.current, Baseline: s.baseline, Notice: s.notice}, false
	}

	base := s.baseline
	if base == nil {
		base = s.current
	}
	merged := MergeLifecycleEvent(base, envelope.Event, s.limit)
	decision := Guard(merged, s.baseline)
	s.acceptLocked(decision)
	s.cursor = envelope.Seq
	return decision, true
}

// ApplyGap records that incremental merging cannot continue until a fresh
// full snapshot arrives.
func (s *Store) ApplyGap(gap domain.BackfillGap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.needsResync = true
}

func (s *Store) acceptLocked(decision Decision) {
	s.current = decision.Snapshot
	if decision.Baseline != nil {
		s.baseline = decision.Baseline
	}
	s.notice = decision.Notice
}

// SetConnectivity records the transport state.
func (s *Store) SetConnectivity(c Connectivity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectivity = c
}

// Connectivity returns the transport state.
func (s *Store) Connectivity() Connectivity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectivity
}

// Current returns the snapshot to render.
func (s *Store) Current() *domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Baseline returns the last healthy snapshot.
func (s *Store) Baseline() *domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseline
}

// Cursor returns the last applied envelope seq.
func (s *Store) Cursor() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Notice returns the current recovery notice, if any.
func (s *Store) Notice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notice
}

// NeedsResync reports whether a gap was seen since the last full snapshot.
func (s *Store) NeedsResync() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needsResync
}

// Index returns lookup tables for the current snapshot.
func (s *Store) Index() *Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil || s.indexOf != s.current {
		s.index = BuildIndex(s.current)
		s.indexOf = s.current
	}
	return s.index
}
