package viewstate

import "github.com/xiaot623/runview/internal/domain"

// Index holds lookups derived from one snapshot.
type Index struct {
	RunsByID         map[string]domain.Run
	LatestRunByAgent map[string]string
	EventsByRun      map[string][]domain.LifecycleEvent
}

// BuildIndex derives an Index from snapshot. Event lists keep snapshot order.
func BuildIndex(snapshot *domain.Snapshot) *Index {
	idx := &Index{
		RunsByID:         make(map[string]domain.Run),
		LatestRunByAgent: make(map[string]string),
		EventsByRun:      make(map[string][]domain.LifecycleEvent),
	}
	if snapshot == nil {
		return idx
	}
	for _, run := range snapshot.Runs {
		idx.RunsByID[run.RunID] = run
	}
	for agentID, runIDs := range snapshot.RunGraph.RunIDsByAgentID {
		if len(runIDs) > 0 {
			idx.LatestRunByAgent[agentID] = runIDs[0]
		}
	}
	for _, event := range snapshot.Events {
		idx.EventsByRun[event.RunID] = append(idx.EventsByRun[event.RunID], event)
	}
	return idx
}
