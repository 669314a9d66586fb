package domain

// DefaultEventLimit is the number of lifecycle events a snapshot keeps.
const DefaultEventLimit = 220

// SnapshotSource says where a snapshot was read from.
type SnapshotSource struct {
	StateDir string `json:"stateDir"`
	Live     bool   `json:"live"`
}

// Snapshot is the complete view of the state store at one point in time.
// Events are sorted by (At desc, ID asc) and capped.
type Snapshot struct {
	GeneratedAt int64            `json:"generatedAt"`
	Source      SnapshotSource   `json:"source"`
	Diagnostics []Diagnostic     `json:"diagnostics"`
	Entities    []Entity         `json:"entities"`
	Runs        []Run            `json:"runs"`
	RunGraph    RunGraph         `json:"runGraph"`
	Events      []LifecycleEvent `json:"events"`
}
