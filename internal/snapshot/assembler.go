// Package snapshot assembles full snapshots from parsed state.
package snapshot

import (
	"fmt"
	"sort"

	"github.com/xiaot623/runview/internal/domain"
	"github.com/xiaot623/runview/internal/rungraph"
)

// Input is everything a snapshot is built from.
type Input struct {
	GeneratedAt int64
	Source      domain.SnapshotSource
	Runs        []domain.Run
	Entities    []domain.Entity
	Diagnostics []domain.Diagnostic
	EventLimit  int
}

// Assemble builds a snapshot: the run graph, derived lifecycle events and the
// agent entities. Graph diagnostics are appended after the input's.
func Assemble(in Input) *domain.Snapshot {
	limit := in.EventLimit
	if limit <= 0 {
		limit = domain.DefaultEventLimit
	}

	graph := rungraph.Build(in.Runs)
	runs := uniqueRuns(in.Runs)

	diagnostics := make([]domain.Diagnostic, 0, len(in.Diagnostics)+len(graph.Diagnostics))
	diagnostics = append(diagnostics, in.Diagnostics...)
	diagnostics = append(diagnostics, graph.Diagnostics...)

	events := DeriveEvents(runs)
	if len(events) > limit {
		events = events[:limit]
	}

	generatedAt := in.GeneratedAt
	if len(events) > 0 && events[0].At > generatedAt {
		generatedAt = events[0].At
	}

	return &domain.Snapshot{
		GeneratedAt: generatedAt,
		Source:      in.Source,
		Diagnostics: diagnostics,
		Entities:    mergeEntities(in.Entities, graph),
		Runs:        runs,
		RunGraph:    graph,
		Events:      events,
	}
}

// uniqueRuns keeps the first record of every run id, the same one the graph
// builder keeps. Never nil.
func uniqueRuns(runs []domain.Run) []domain.Run {
	out := make([]domain.Run, 0, len(runs))
	seen := make(map[string]bool, len(runs))
	for _, run := range runs {
		if seen[run.RunID] {
			continue
		}
		seen[run.RunID] = true
		out = append(out, run)
	}
	return out
}

// DeriveEvents returns the lifecycle events implied by runs, newest first.
func DeriveEvents(runs []domain.Run) []domain.LifecycleEvent {
	events := make([]domain.LifecycleEvent, 0, len(runs)*3)
	for _, run := range runs {
		add := func(t domain.EventType, at int64, text string) {
			events = append(events, domain.LifecycleEvent{
				ID:            EventID(run.RunID, t),
				Type:          t,
				RunID:         run.RunID,
				At:            at,
				AgentID:       run.ChildAgentID,
				ParentAgentID: run.ParentAgentID,
				Text:          text,
			})
		}

		add(domain.EventTypeSpawn, run.CreatedAt, spawnText(run))
		if run.StartedAt != nil {
			add(domain.EventTypeStart, *run.StartedAt, fmt.Sprintf("%s started", describe(run)))
		}
		if run.EndedAt != nil {
			switch run.Status {
			case domain.RunStatusError:
				add(domain.EventTypeError, *run.EndedAt, fmt.Sprintf("%s failed", describe(run)))
			default:
				add(domain.EventTypeEnd, *run.EndedAt, fmt.Sprintf("%s finished", describe(run)))
			}
		}
		if run.CleanupCompletedAt != nil {
			add(domain.EventTypeCleanup, *run.CleanupCompletedAt,
				fmt.Sprintf("%s cleaned up (%s)", describe(run), run.Cleanup))
		}
	}

	sort.Slice(events, func(i, j int) bool {
		return domain.NewerFirst(events[i], events[j])
	})
	return events
}

// EventID returns the id of the event of type t for a run.
func EventID(runID string, t domain.EventType) string {
	return runID + ":" + string(t)
}

func spawnText(run domain.Run) string {
	if run.Task == "" {
		return fmt.Sprintf("%s spawned %s", run.ParentAgentID, run.ChildAgentID)
	}
	return fmt.Sprintf("%s spawned %s: %s", run.ParentAgentID, run.ChildAgentID, run.Task)
}

func describe(run domain.Run) string {
	if run.Label != "" {
		return run.Label
	}
	return "run " + run.RunID
}

// mergeEntities combines directory entities with every agent seen in runs and
// counts runs per agent.
func mergeEntities(dirEntities []domain.Entity, graph domain.RunGraph) []domain.Entity {
	byID := make(map[string]domain.Entity, len(dirEntities))
	for _, e := range dirEntities {
		byID[e.ID] = e
	}
	for agentID, runIDs := range graph.RunIDsByAgentID {
		e, ok := byID[agentID]
		if !ok {
			e = domain.Entity{ID: agentID, Kind: string(domain.NodeKindAgent)}
		}
		e.RunCount = len(runIDs)
		byID[agentID] = e
	}

	entities := make([]domain.Entity, 0, len(byID))
	for _, e := range byID {
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })
	return entities
}
