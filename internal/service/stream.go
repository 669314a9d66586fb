package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xiaot623/runview/internal/hub"
	"github.com/xiaot623/runview/internal/protocol"
)

// Attach registers conn and queues its catch-up frames. Without a cursor the
// subscriber gets the current snapshot; with one it gets the envelopes after
// it, or a backfill-gap frame when they are gone. Live frames are queued only
// after the catch-up frames.
func (s *Service) Attach(conn *hub.Connection, cursor *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hub.Register(conn)

	var err error
	if cursor == nil {
		err = s.sendSnapshot(conn)
	} else {
		err = s.sendBackfill(conn, *cursor)
	}
	if err != nil {
		s.hub.Unregister(conn)
		return fmt.Errorf("attach %s: %w", conn.ID, err)
	}
	return nil
}

func (s *Service) sendSnapshot(conn *hub.Connection) error {
	snap := s.bridge.LastSnapshot()
	if snap == nil {
		// The first poll broadcasts it.
		return nil
	}
	return s.hub.SendJSONToConnection(conn, protocol.NewSnapshotMessage(s.bridge.LatestSeq(), snap))
}

func (s *Service) sendBackfill(conn *hub.Connection, cursor int64) error {
	result := s.bridge.GetBackfill(cursor)
	if result.Gap != nil {
		s.logger.Info("subscriber cursor outside backfill window",
			zap.String("conn_id", conn.ID),
			zap.Int64("requested_cursor", result.Gap.RequestedCursor),
			zap.Int64("oldest_available_seq", result.Gap.OldestAvailableSeq),
			zap.Int64("latest_available_seq", result.Gap.LatestAvailableSeq))
		return s.hub.SendJSONToConnection(conn, protocol.NewBackfillGapMessage(*result.Gap))
	}
	for _, env := range result.Envelopes {
		if err := s.hub.SendJSONToConnection(conn, protocol.NewLifecycleMessage(env)); err != nil {
			return err
		}
	}
	return nil
}
