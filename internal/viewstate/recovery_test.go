package viewstate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xiaot623/runview/internal/domain"
)

func withDiagnostics(codes ...string) *domain.Snapshot {
	snap := &domain.Snapshot{}
	for _, code := range codes {
		snap.Diagnostics = append(snap.Diagnostics, domain.Diagnostic{Code: code})
	}
	return snap
}

func TestGuardRecoversToBaseline(t *testing.T) {
	baseline := withDiagnostics()
	corrupted := withDiagnostics(domain.DiagRunEntryInvalid)

	d := Guard(corrupted, baseline)
	assert.Same(t, baseline, d.Snapshot)
	assert.Same(t, baseline, d.Baseline)
	assert.True(t, d.Corrupted)
	assert.NotEmpty(t, d.Notice)
	assert.Equal(t, NoticeRecovered, d.Notice)
}

func TestGuardAcceptsGraphDiagnostics(t *testing.T) {
	baseline := withDiagnostics()
	incoming := withDiagnostics(domain.DiagRunGraphOrphanRun)

	d := Guard(incoming, baseline)
	assert.Same(t, incoming, d.Snapshot)
	assert.Same(t, incoming, d.Baseline)
	assert.False(t, d.Corrupted)
	assert.Empty(t, d.Notice)
}

func TestGuardWithoutBaseline(t *testing.T) {
	incoming := withDiagnostics(domain.DiagRunsFileInvalid)

	d := Guard(incoming, nil)
	assert.Same(t, incoming, d.Snapshot)
	assert.Nil(t, d.Baseline)
	assert.True(t, d.Corrupted)
	assert.Equal(t, NoticeAwaitBaseline, d.Notice)
}

func TestIsCorruptionDiagnostic(t *testing.T) {
	cases := map[string]bool{
		domain.DiagRunEntryInvalid:       true,
		domain.DiagRunsFileInvalid:       true,
		domain.DiagRunsFileUnreadable:    true,
		domain.DiagEntityEntryInvalid:    true,
		domain.DiagAgentsDirUnreadable:   true,
		domain.DiagRunGraphOrphanRun:     false,
		domain.DiagRunGraphMissingParent: false,
		domain.DiagRunGraphCycleDetected: false,
		domain.DiagSourceRunsAbsent:      false,
		"SOMETHING_ELSE":                 false,
	}
	for code, want := range cases {
		assert.Equal(t, want, IsCorruptionDiagnostic(domain.Diagnostic{Code: code}), code)
	}
	assert.False(t, IsCorrupted(nil))
}
