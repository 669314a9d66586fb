package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/runview/internal/domain"
	"github.com/xiaot623/runview/internal/follower"
	"github.com/xiaot623/runview/internal/snapshot"
	"github.com/xiaot623/runview/internal/viewstate"
)

func testSnapshot() *domain.Snapshot {
	return snapshot.Assemble(snapshot.Input{
		GeneratedAt: 1704164645000,
		Source:      domain.SnapshotSource{StateDir: "/state", Live: true},
		Diagnostics: []domain.Diagnostic{{Code: "RUN_ENTRY_INVALID", Severity: domain.SeverityWarning, Message: "run entry #2 skipped"}},
		Runs: []domain.Run{
			{RunID: "r1", ChildSessionKey: "agent:research:subagent:a", RequesterSessionKey: "agent:main:main",
				ChildAgentID: "research", ParentAgentID: "main", Status: domain.RunStatusOK, Task: "look things up", CreatedAt: 1704164645000},
			{RunID: "r2", ChildSessionKey: "agent:coder:subagent:b", RequesterSessionKey: "agent:research:subagent:a",
				ChildAgentID: "coder", ParentAgentID: "research", Status: domain.RunStatusActive, Task: "write code", CreatedAt: 1704164646000},
		},
	})
}

func TestRenderSnapshotTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderSnapshot(&buf, formatTable, testSnapshot(), 12))

	out := buf.String()
	assert.Contains(t, out, "Generated 2024-01-02 03:04:06 from /state (cursor 12)")
	lines := strings.Split(out, "\n")
	var r2 string
	for _, l := range lines {
		if strings.HasPrefix(l, "r2 ") {
			r2 = l
		}
	}
	require.NotEmpty(t, r2)
	assert.Contains(t, r2, "coder")
	assert.Contains(t, r2, "r1")
	assert.Contains(t, out, "[warning] RUN_ENTRY_INVALID: run entry #2 skipped")
}

func TestRenderSnapshotYAMLUsesJSONNames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderSnapshot(&buf, formatYAML, testSnapshot(), 0))
	assert.Contains(t, buf.String(), "runId: r1")
	assert.Contains(t, buf.String(), "spawnedByRunId:")
}

func TestRenderEvents(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderEvents(&buf, formatTable, nil))
	assert.Equal(t, "No events archived.\n", buf.String())

	buf.Reset()
	events := []domain.ArchivedEvent{{Seq: 3, Event: domain.LifecycleEvent{ID: "r1:end", Type: domain.EventTypeEnd, At: 1704164645000, Text: "run r1 finished"}}}
	require.NoError(t, renderEvents(&buf, formatJSON, events))
	assert.Contains(t, buf.String(), `"seq": 3`)
}

func TestCheckFormat(t *testing.T) {
	assert.NoError(t, checkFormat("yaml"))
	assert.Error(t, checkFormat("xml"))
}

func TestWatchPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := &watchPrinter{w: &buf}

	p.print(follower.Update{Kind: follower.UpdateConnectivity, Connectivity: viewstate.ConnectivityLive})
	p.print(follower.Update{Kind: follower.UpdateLifecycle, Envelope: domain.LifecycleEnvelope{
		Seq:   4,
		Event: domain.LifecycleEvent{Type: domain.EventTypeSpawn, RunID: "r9", At: 1704164645000, Text: "main spawned coder"},
	}})
	p.print(follower.Update{Kind: follower.UpdateSnapshot, Decision: viewstate.Decision{
		Snapshot: &domain.Snapshot{}, Notice: viewstate.NoticeRecovered,
	}})
	p.print(follower.Update{Kind: follower.UpdateSnapshot, Decision: viewstate.Decision{
		Snapshot: &domain.Snapshot{}, Notice: viewstate.NoticeRecovered,
	}})

	out := buf.String()
	assert.Contains(t, out, "-- connection: live\n")
	assert.Contains(t, out, "2024-01-02 03:04:05 #4 spawn   r9 main spawned coder\n")
	assert.Equal(t, 1, strings.Count(out, viewstate.NoticeRecovered))
}
