package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/xiaot623/runview/internal/domain"
	"github.com/xiaot623/runview/internal/protocol"
	"github.com/xiaot623/runview/internal/snapshot"
)

// RunPoller polls the state store every interval until ctx is done.
func (s *Service) RunPoller(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.PollOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("poll failed", zap.Error(err))
			}
		}
	}
}

// PollOnce reads the state store, feeds the new snapshot to the bridge,
// archives the emitted envelopes and pushes them to subscribers. A snapshot
// frame follows when the runs, entities or diagnostics changed.
func (s *Service) PollOnce(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.reader.Read(ctx)
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}

	snap := snapshot.Assemble(snapshot.Input{
		GeneratedAt: s.now().UnixMilli(),
		Source:      s.source,
		Runs:        result.Runs,
		Entities:    result.Entities,
		Diagnostics: result.Diagnostics,
		EventLimit:  s.eventLimit,
	})
	envelopes := s.bridge.IngestSnapshot(snap)

	if len(envelopes) > 0 {
		s.logger.Debug("lifecycle envelopes emitted",
			zap.Int("count", len(envelopes)),
			zap.Int64("latest_seq", envelopes[len(envelopes)-1].Seq))
		s.archiveEnvelopes(ctx, envelopes)
	}
	for _, env := range envelopes {
		if err := s.hub.BroadcastJSON(protocol.NewLifecycleMessage(env)); err != nil {
			s.logger.Error("failed to encode lifecycle frame", zap.String("event_id", env.Event.ID), zap.Error(err))
		}
	}

	fp, err := fingerprint(snap)
	if err != nil {
		return fmt.Errorf("fingerprint snapshot: %w", err)
	}
	if s.hasFingerprint && fp == s.fingerprint {
		return nil
	}
	s.fingerprint = fp
	s.hasFingerprint = true

	if err := s.hub.BroadcastJSON(protocol.NewSnapshotMessage(s.bridge.LatestSeq(), snap)); err != nil {
		s.logger.Error("failed to encode snapshot frame", zap.Error(err))
	}
	return nil
}

func (s *Service) archiveEnvelopes(ctx context.Context, envelopes []domain.LifecycleEnvelope) {
	if s.archive == nil {
		return
	}
	archiveCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if _, err := s.archive.AppendEnvelopes(archiveCtx, s.bridgeID, envelopes); err != nil {
		s.logger.Warn("failed to archive lifecycle envelopes", zap.Int("count", len(envelopes)), zap.Error(err))
	}
}

// fingerprint hashes the structural parts of a snapshot. Events and
// generatedAt are left out: they follow from the runs or change every poll.
func fingerprint(snap *domain.Snapshot) (uint64, error) {
	d := xxhash.New()
	enc := json.NewEncoder(d)
	for _, part := range []interface{}{snap.Runs, snap.Entities, snap.Diagnostics} {
		if err := enc.Encode(part); err != nil {
			return 0, err
		}
	}
	return d.Sum64(), nil
}
