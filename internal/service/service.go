// Package service keeps the server's live snapshot current and fans lifecycle
// envelopes out to subscribers.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xiaot623/runview/internal/domain"
	"github.com/xiaot623/runview/internal/hub"
	"github.com/xiaot623/runview/internal/repository"
	"github.com/xiaot623/runview/internal/statestore"
	"github.com/xiaot623/runview/internal/stream"
)

// ErrArchiveDisabled is returned by archive queries when no archive is configured.
var ErrArchiveDisabled = errors.New("lifecycle archive is disabled")

// StateReader reads the state store.
type StateReader interface {
	Read(ctx context.Context) (*statestore.Result, error)
}

// Options configures a Service.
type Options struct {
	Source     domain.SnapshotSource
	EventLimit int
	Stream     stream.Config
	Now        func() time.Time
}

type Service struct {
	reader  StateReader
	bridge  *stream.Bridge
	hub     *hub.Hub
	archive repository.Store
	logger  *zap.Logger

	source     domain.SnapshotSource
	eventLimit int
	now        func() time.Time
	bridgeID   string

	// mu serializes polling with subscriber attachment.
	mu             sync.Mutex
	fingerprint    uint64
	hasFingerprint bool
}

// New creates a Service. archive may be nil.
func New(reader StateReader, h *hub.Hub, archive repository.Store, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.EventLimit <= 0 {
		opts.EventLimit = domain.DefaultEventLimit
	}
	return &Service{
		reader:     reader,
		bridge:     stream.NewBridge(opts.Stream),
		hub:        h,
		archive:    archive,
		logger:     logger.With(zap.String("component", "service")),
		source:     opts.Source,
		eventLimit: opts.EventLimit,
		now:        opts.Now,
		bridgeID:   uuid.New().String(),
	}
}

// BridgeID identifies this process's lifecycle stream. Cursors are only
// meaningful against the bridge that issued them.
func (s *Service) BridgeID() string {
	return s.bridgeID
}

// Snapshot returns the latest snapshot and the stream cursor it is current up
// to. The snapshot is nil until the first poll completes.
func (s *Service) Snapshot() (*domain.Snapshot, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bridge.LastSnapshot(), s.bridge.LatestSeq()
}

// Backfill returns the envelopes after afterSeq, or a gap.
func (s *Service) Backfill(afterSeq int64) stream.BackfillResult {
	return s.bridge.GetBackfill(afterSeq)
}

// Window returns the oldest retained and latest assigned seq.
func (s *Service) Window() (oldest, latest int64) {
	return s.bridge.Window()
}

// ConsumePressureStats returns and resets the bridge's backpressure counters.
func (s *Service) ConsumePressureStats() domain.PressureStats {
	stats := s.bridge.ConsumePressureStats()
	if stats != (domain.PressureStats{}) {
		s.logger.Info("stream pressure",
			zap.Int64("backpressure_activations", stats.BackpressureActivations),
			zap.Int64("dropped_unseen_events", stats.DroppedUnseenEvents),
			zap.Int64("evicted_backfill_events", stats.EvictedBackfillEvents))
	}
	return stats
}

// RunEvents returns the archived events of a run.
func (s *Service) RunEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.ArchivedEvent, error) {
	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}
	return s.archive.GetRunEvents(ctx, runID, afterTs, types, limit)
}

// ConnectionCount returns the number of stream subscribers.
func (s *Service) ConnectionCount() int {
	return s.hub.GetConnectionCount()
}
