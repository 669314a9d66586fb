// Package domain defines the core data model shared by the server and its consumers.
package domain

// RunStatus represents the status of a subagent run.
type RunStatus string

const (
	RunStatusActive RunStatus = "active"
	RunStatusOK     RunStatus = "ok"
	RunStatusError  RunStatus = "error"
)

// CleanupPolicy says what happens to a child session once its run ends.
type CleanupPolicy string

const (
	CleanupKeep   CleanupPolicy = "keep"
	CleanupDelete CleanupPolicy = "delete"
)

// EventType represents the type of a lifecycle event.
type EventType string

const (
	EventTypeSpawn   EventType = "spawn"
	EventTypeStart   EventType = "start"
	EventTypeEnd     EventType = "end"
	EventTypeError   EventType = "error"
	EventTypeCleanup EventType = "cleanup"
)

// NodeKind distinguishes agent nodes from run nodes in the run graph.
type NodeKind string

const (
	NodeKindAgent    NodeKind = "agent"
	NodeKindSubagent NodeKind = "subagent"
)

// EdgeKind distinguishes the two relations carried by the run graph.
type EdgeKind string

const (
	EdgeKindRunID     EdgeKind = "runId"
	EdgeKindSpawnedBy EdgeKind = "spawnedBy"
)

// DiagnosticSeverity grades a diagnostic.
type DiagnosticSeverity string

const (
	SeverityInfo    DiagnosticSeverity = "info"
	SeverityWarning DiagnosticSeverity = "warning"
	SeverityError   DiagnosticSeverity = "error"
)

// Diagnostic codes produced by the state store reader.
const (
	DiagSourceRunsAbsent    = "SOURCE_RUNS_ABSENT"
	DiagSourceAgentsAbsent  = "SOURCE_AGENTS_ABSENT"
	DiagRunsFileUnreadable  = "RUNS_FILE_UNREADABLE"
	DiagRunsFileInvalid     = "RUNS_FILE_INVALID"
	DiagRunEntryInvalid     = "RUN_ENTRY_INVALID"
	DiagAgentsDirUnreadable = "AGENTS_DIR_UNREADABLE"
	DiagEntityEntryInvalid  = "ENTITY_ENTRY_INVALID"
)

// Diagnostic codes produced by the run graph builder. They all share
// RunGraphDiagnosticPrefix.
const (
	RunGraphDiagnosticPrefix = "RUN_GRAPH_"

	DiagRunGraphOrphanRun     = "RUN_GRAPH_ORPHAN_RUN"
	DiagRunGraphMissingParent = "RUN_GRAPH_MISSING_PARENT"
	DiagRunGraphCycleDetected = "RUN_GRAPH_CYCLE_DETECTED"
)
