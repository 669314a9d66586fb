package viewstate

import (
	"strings"

	"github.com/xiaot623/runview/internal/domain"
)

// corruptionPrefixes mark diagnostics raised because source data could not be
// read or parsed.
var corruptionPrefixes = []string{
	"RUNS_",
	"RUN_",
	"AGENTS_",
	"ENTITY_",
	"STATE_",
}

// Notices surfaced while the guard holds back corrupted snapshots.
const (
	NoticeRecovered     = "Recovered to last healthy snapshot; the latest read of the state store was corrupted."
	NoticeAwaitBaseline = "Waiting for a healthy baseline; the state store could not be read cleanly yet."
)

// Decision is the outcome of guarding one incoming snapshot.
type Decision struct {
	// Snapshot is what the consumer should render.
	Snapshot *domain.Snapshot
	// Baseline is the last snapshot known to be clean, possibly nil.
	Baseline *domain.Snapshot
	// Corrupted reports whether the incoming snapshot was corrupted.
	Corrupted bool
	// Notice is empty unless the consumer should tell the user something.
	Notice string
}

// IsCorruptionDiagnostic reports whether d says source data was unreadable.
// Run graph diagnostics describe well-formed data and never count.
func IsCorruptionDiagnostic(d domain.Diagnostic) bool {
	if strings.HasPrefix(d.Code, domain.RunGraphDiagnosticPrefix) {
		return false
	}
	for _, prefix := range corruptionPrefixes {
		if strings.HasPrefix(d.Code, prefix) {
			return true
		}
	}
	return false
}

// IsCorrupted reports whether any diagnostic of snapshot marks it corrupted.
func IsCorrupted(snapshot *domain.Snapshot) bool {
	if snapshot == nil {
		return false
	}
	for _, d := range snapshot.Diagnostics {
		if IsCorruptionDiagnostic(d) {
			return true
		}
	}
	return false
}

// Guard decides which snapshot the consumer sees given the incoming snapshot
// and the last healthy one.
func Guard(incoming, lastHealthy *domain.Snapshot) Decision {
	if !IsCorrupted(incoming) {
		return Decision{Snapshot: incoming, Baseline: incoming}
	}
	if lastHealthy != nil {
		return Decision{
			Snapshot:  lastHealthy,
			Baseline:  lastHealthy,
			Corrupted: true,
			Notice:    NoticeRecovered,
		}
	}
	return Decision{
		Snapshot:  incoming,
		Corrupted: true,
		Notice:    NoticeAwaitBaseline,
	}
}
