// Package viewstate maintains a consumer's view of the live snapshot: it folds
// streamed lifecycle events into a capped event log and guards the view against
// corrupted upstream reads.
package viewstate

import (
	"sort"

	"github.com/xiaot623/runview/internal/domain"
)

// MergeLifecycleEvent returns a copy of snapshot with event folded into its
// event log. An existing event with the same id is replaced, the log stays
// sorted by (At desc, ID asc) and is truncated to limit entries, and
// GeneratedAt never moves backward. snapshot itself is not modified.
func MergeLifecycleEvent(snapshot *domain.Snapshot, event domain.LifecycleEvent, limit int) *domain.Snapshot {
	if limit <= 0 {
		limit = domain.DefaultEventLimit
	}

	var merged domain.Snapshot
	if snapshot != nil {
		merged = *snapshot
	}

	events := make([]domain.LifecycleEvent, 0, len(merged.Events)+1)
	for _, existing := range merged.Events {
		if existing.ID != event.ID {
			events = append(events, existing)
		}
	}

	i := sort.Search(len(events), func(i int) bool {
		return !domain.NewerFirst(events[i], event)
	})
	events = append(events, domain.LifecycleEvent{})
	copy(events[i+1:], events[i:])
	events[i] = event

	if len(events) > limit {
		events = events[:limit]
	}
	merged.Events = events

	if event.At > merged.GeneratedAt {
		merged.GeneratedAt = event.At
	}
	return &merged
}
