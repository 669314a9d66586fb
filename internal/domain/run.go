package domain

// Run is one delegated unit of work: an agent asking a subagent to do something.
// Timestamps are Unix milliseconds.
type Run struct {
	RunID               string        `json:"runId"`
	ChildSessionKey     string        `json:"childSessionKey"`
	RequesterSessionKey string        `json:"requesterSessionKey"`
	ChildAgentID        string        `json:"childAgentId"`
	ParentAgentID       string        `json:"parentAgentId"`
	Status              RunStatus     `json:"status"`
	Task                string        `json:"task"`
	Label               string        `json:"label,omitempty"`
	Cleanup             CleanupPolicy `json:"cleanup"`
	CreatedAt           int64         `json:"createdAt"`
	StartedAt           *int64        `json:"startedAt,omitempty"`
	EndedAt             *int64        `json:"endedAt,omitempty"`
	CleanupCompletedAt  *int64        `json:"cleanupCompletedAt,omitempty"`
}

// Entity is a non-run object in the state store, currently only agents.
type Entity struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Name     string `json:"name,omitempty"`
	RunCount int    `json:"runCount"`
}

// Diagnostic describes a problem noticed while reading or interpreting state.
// Diagnostics travel with the data; they are never raised as errors.
type Diagnostic struct {
	Code     string             `json:"code"`
	Severity DiagnosticSeverity `json:"severity"`
	Message  string             `json:"message"`
	Source   string             `json:"source,omitempty"`
	RunIDs   []string           `json:"runIds,omitempty"`
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}
