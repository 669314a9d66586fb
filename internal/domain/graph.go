package domain

// GraphNode is either an agent or a single run.
type GraphNode struct {
	ID      string   `json:"id"`
	Kind    NodeKind `json:"kind"`
	AgentID string   `json:"agentId,omitempty"`
	Run     *Run     `json:"run,omitempty"`
}

// GraphEdge links two graph nodes.
type GraphEdge struct {
	ID   string   `json:"id"`
	Kind EdgeKind `json:"kind"`
	From string   `json:"from"`
	To   string   `json:"to"`
}

// TimeRange is the span a run occupied.
type TimeRange struct {
	StartAt int64 `json:"startAt"`
	EndAt   int64 `json:"endAt"`
}

// RunGraph is a read-only view derived from a set of runs. It is rebuilt from
// scratch for every run set.
type RunGraph struct {
	Nodes                  []GraphNode          `json:"nodes"`
	Edges                  []GraphEdge          `json:"edges"`
	RunNodeIDByRunID       map[string]string    `json:"runNodeIdByRunId"`
	RunIDsByAgentID        map[string][]string  `json:"runIdsByAgentId"`
	AgentIDsByRunID        map[string][]string  `json:"agentIdsByRunId"`
	TimeRangeByRunID       map[string]TimeRange `json:"timeRangeByRunId"`
	SpawnedByRunID         map[string]string    `json:"spawnedByRunId"`
	SpawnedChildrenByRunID map[string][]string  `json:"spawnedChildrenByRunId"`
	Diagnostics            []Diagnostic         `json:"diagnostics"`
}
