package helpers

import (
	"os"
	"path/filepath"
	"testing"
)

// Runs files used across package tests. RunsV2 ends r1 and adds r2, which
// yields the lifecycle events r2:spawn then r1:end.
const (
	RunsV1 = `{"version": 2, "runs": {
		"r1": {"childSessionKey": "agent:coder:subagent:1", "requesterSessionKey": "agent:main:main",
		       "task": "fix bug", "createdAt": 100, "startedAt": 110}
	}}`
	RunsV2 = `{"version": 2, "runs": {
		"r1": {"childSessionKey": "agent:coder:subagent:1", "requesterSessionKey": "agent:main:main",
		       "task": "fix bug", "createdAt": 100, "startedAt": 110, "endedAt": 200, "outcome": {"status": "ok"}},
		"r2": {"childSessionKey": "agent:coder:subagent:2", "requesterSessionKey": "agent:main:main",
		       "task": "write tests", "createdAt": 150}
	}}`
)

// NewStateDir creates a temporary state directory whose runs file holds runsJSON.
func NewStateDir(t *testing.T, runsJSON string) string {
	t.Helper()
	dir := t.TempDir()
	WriteRuns(t, dir, runsJSON)
	return dir
}

// WriteRuns replaces the runs file of the state directory dir.
func WriteRuns(t *testing.T, dir, runsJSON string) {
	t.Helper()
	path := filepath.Join(dir, "subagents", "runs.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create state dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(runsJSON), 0o644); err != nil {
		t.Fatalf("failed to write runs file: %v", err)
	}
}
