// Package repository archives emitted lifecycle events.
package repository

import (
	"context"

	"github.com/xiaot623/runview/internal/domain"
)

// Store defines the interface for lifecycle archive persistence.
type Store interface {
	// AppendEnvelopes stores envelopes emitted by the bridge bridgeID. Events
	// already archived are left untouched. It returns the number inserted.
	AppendEnvelopes(ctx context.Context, bridgeID string, envelopes []domain.LifecycleEnvelope) (int, error)
	// GetRunEvents returns the archived events of a run, oldest first.
	GetRunEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.ArchivedEvent, error)
	CountEvents(ctx context.Context) (int, error)

	Close() error
}
