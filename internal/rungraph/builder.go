// Package rungraph builds the delegation graph of a set of subagent runs.
//
// Build is total: malformed input (duplicate session keys, dangling requester
// keys, spawn cycles) produces diagnostics next to a best-effort graph and never
// an error.
package rungraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xiaot623/runview/internal/domain"
)

// subagentKeyMarker appears in every session key minted for a subagent run,
// e.g. "agent:research:subagent:5f0c...".
const subagentKeyMarker = ":subagent:"

const diagnosticSource = "run_graph"

// AgentNodeID returns the graph node id of an agent.
func AgentNodeID(agentID string) string {
	return "agent/" + agentID
}

// RunNodeID returns the graph node id of a run.
func RunNodeID(runID string) string {
	return "run/" + runID
}

// IsSubagentSessionKey reports whether key was minted for a subagent run.
func IsSubagentSessionKey(key string) bool {
	return strings.Contains(key, subagentKeyMarker)
}

type builder struct {
	graph domain.RunGraph

	runsByID    map[string]*domain.Run
	order       []string
	agentSeen   map[string]bool
	byChildKey  map[string]string
	unlinked    map[string]bool
	spawnParent map[string][]string
}

// Build derives the run graph of runs.
func Build(runs []domain.Run) domain.RunGraph {
	b := &builder{
		graph: domain.RunGraph{
			Nodes:                  []domain.GraphNode{},
			Edges:                  []domain.GraphEdge{},
			RunNodeIDByRunID:       make(map[string]string),
			RunIDsByAgentID:        make(map[string][]string),
			AgentIDsByRunID:        make(map[string][]string),
			TimeRangeByRunID:       make(map[string]domain.TimeRange),
			SpawnedByRunID:         make(map[string]string),
			SpawnedChildrenByRunID: make(map[string][]string),
			Diagnostics:            []domain.Diagnostic{},
		},
		runsByID:    make(map[string]*domain.Run, len(runs)),
		agentSeen:   make(map[string]bool),
		byChildKey:  make(map[string]string, len(runs)),
		unlinked:    make(map[string]bool),
		spawnParent: make(map[string][]string),
	}

	for i := range runs {
		b.addRun(runs[i])
	}
	for _, runID := range b.order {
		b.resolveSpawner(runID)
	}
	b.sortIndices()
	for _, cycle := range findCycles(b.order, b.spawnParent) {
		b.diagnose(domain.DiagRunGraphCycleDetected, domain.SeverityError,
			fmt.Sprintf("spawn chain loops back on itself: %s", strings.Join(append(cycle, cycle[0]), " -> ")),
			cycle...)
	}

	return b.graph
}

func (b *builder) addRun(run domain.Run) {
	if run.RunID == "" {
		b.diagnose(domain.DiagRunGraphOrphanRun, domain.SeverityWarning,
			fmt.Sprintf("run with child session %q has no run id", run.ChildSessionKey))
		return
	}
	if _, dup := b.runsByID[run.RunID]; dup {
		b.diagnose(domain.DiagRunGraphOrphanRun, domain.SeverityWarning,
			fmt.Sprintf("run id %s appears more than once", run.RunID), run.RunID)
		return
	}

	stored := run
	b.runsByID[run.RunID] = &stored
	b.order = append(b.order, run.RunID)

	parentNode := b.ensureAgent(run.ParentAgentID)
	b.ensureAgent(run.ChildAgentID)

	runNode := RunNodeID(run.RunID)
	b.graph.Nodes = append(b.graph.Nodes, domain.GraphNode{
		ID:      runNode,
		Kind:    domain.NodeKindSubagent,
		AgentID: run.ChildAgentID,
		Run:     &stored,
	})
	b.graph.RunNodeIDByRunID[run.RunID] = runNode
	if parentNode != "" {
		b.graph.Edges = append(b.graph.Edges, domain.GraphEdge{
			ID:   "runId:" + parentNode + "->" + runNode,
			Kind: domain.EdgeKindRunID,
			From: parentNode,
			To:   runNode,
		})
	}

	var agents []string
	for _, agentID := range []string{run.ParentAgentID, run.ChildAgentID} {
		if agentID == "" || contains(agents, agentID) {
			continue
		}
		agents = append(agents, agentID)
		b.graph.RunIDsByAgentID[agentID] = append(b.graph.RunIDsByAgentID[agentID], run.RunID)
	}
	if agents != nil {
		b.graph.AgentIDsByRunID[run.RunID] = agents
	}
	b.graph.TimeRangeByRunID[run.RunID] = timeRangeOf(run)

	if run.ChildSessionKey == "" {
		return
	}
	if firstID, seen := b.byChildKey[run.ChildSessionKey]; seen {
		b.unlinked[run.RunID] = true
		b.diagnose(domain.DiagRunGraphOrphanRun, domain.SeverityWarning,
			fmt.Sprintf("run %s reuses child session %s already owned by run %s", run.RunID, run.ChildSessionKey, firstID),
			run.RunID, firstID)
		return
	}
	b.byChildKey[run.ChildSessionKey] = run.RunID
}

func (b *builder) ensureAgent(agentID string) string {
	if agentID == "" {
		return ""
	}
	nodeID := AgentNodeID(agentID)
	if !b.agentSeen[agentID] {
		b.agentSeen[agentID] = true
		b.graph.Nodes = append(b.graph.Nodes, domain.GraphNode{
			ID:      nodeID,
			Kind:    domain.NodeKindAgent,
			AgentID: agentID,
		})
	}
	return nodeID
}

func (b *builder) resolveSpawner(runID string) {
	if b.unlinked[runID] {
		return
	}
	run := b.runsByID[runID]
	key := run.RequesterSessionKey
	if key == "" {
		return
	}

	parentID, ok := b.byChildKey[key]
	if !ok {
		// A top-level requester legitimately resolves to nothing.
		if IsSubagentSessionKey(key) {
			b.diagnose(domain.DiagRunGraphMissingParent, domain.SeverityWarning,
				fmt.Sprintf("run %s was requested by subagent session %s but no run owns that session", runID, key),
				runID)
			b.diagnose(domain.DiagRunGraphOrphanRun, domain.SeverityWarning,
				fmt.Sprintf("run %s cannot be attached to its spawning run", runID),
				runID)
		}
		return
	}

	b.spawnParent[runID] = append(b.spawnParent[runID], parentID)
	if parentID == runID {
		return
	}
	b.graph.SpawnedByRunID[runID] = parentID
	b.graph.SpawnedChildrenByRunID[parentID] = append(b.graph.SpawnedChildrenByRunID[parentID], runID)
	from, to := RunNodeID(parentID), RunNodeID(runID)
	b.graph.Edges = append(b.graph.Edges, domain.GraphEdge{
		ID:   "spawnedBy:" + from + "->" + to,
		Kind: domain.EdgeKindSpawnedBy,
		From: from,
		To:   to,
	})
}

// sortIndices orders every run list newest-created first, ties by run id.
func (b *builder) sortIndices() {
	less := func(ids []string) func(i, j int) bool {
		return func(i, j int) bool {
			a, c := b.runsByID[ids[i]], b.runsByID[ids[j]]
			if a.CreatedAt != c.CreatedAt {
				return a.CreatedAt > c.CreatedAt
			}
			return a.RunID < c.RunID
		}
	}
	for _, ids := range b.graph.RunIDsByAgentID {
		sort.SliceStable(ids, less(ids))
	}
	for _, ids := range b.graph.SpawnedChildrenByRunID {
		sort.SliceStable(ids, less(ids))
	}
}

func (b *builder) diagnose(code string, severity domain.DiagnosticSeverity, message string, runIDs ...string) {
	b.graph.Diagnostics = append(b.graph.Diagnostics, domain.Diagnostic{
		Code:     code,
		Severity: severity,
		Message:  message,
		Source:   diagnosticSource,
		RunIDs:   runIDs,
	})
}

func timeRangeOf(run domain.Run) domain.TimeRange {
	start := run.CreatedAt
	if run.StartedAt != nil {
		start = *run.StartedAt
	}
	end := start
	if run.EndedAt != nil {
		end = *run.EndedAt
	}
	if run.CleanupCompletedAt != nil {
		end = *run.CleanupCompletedAt
	}
	return domain.TimeRange{StartAt: start, EndAt: end}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
