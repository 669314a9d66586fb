package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/runview/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS lifecycle_events (
			event_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			type TEXT NOT NULL,
			ts INTEGER NOT NULL,
			agent_id TEXT NOT NULL DEFAULT '',
			parent_agent_id TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL DEFAULT '',
			seq INTEGER NOT NULL,
			bridge_id TEXT NOT NULL,
			archived_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lifecycle_events_run ON lifecycle_events(run_id, ts)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AppendEnvelopes inserts envelopes in one transaction.
func (s *SQLiteStore) AppendEnvelopes(ctx context.Context, bridgeID string, envelopes []domain.LifecycleEnvelope) (int, error) {
	if len(envelopes) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO lifecycle_events
			(event_id, run_id, type, ts, agent_id, parent_agent_id, text, seq, bridge_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, env := range envelopes {
		e := env.Event
		res, err := stmt.ExecContext(ctx,
			e.ID, e.RunID, string(e.Type), e.At, e.AgentID, e.ParentAgentID, e.Text, env.Seq, bridgeID)
		if err != nil {
			return 0, fmt.Errorf("failed to archive event %s: %w", e.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit archive: %w", err)
	}
	return inserted, nil
}

// GetRunEvents retrieves archived events for a run.
func (s *SQLiteStore) GetRunEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.ArchivedEvent, error) {
	query := `SELECT event_id, run_id, type, ts, agent_id, parent_agent_id, text, seq, bridge_id
		FROM lifecycle_events WHERE run_id = ?`
	args := []interface{}{runID}

	if afterTs > 0 {
		query += ` AND ts > ?`
		args = append(args, afterTs)
	}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		query += fmt.Sprintf(" AND type IN (%s)", strings.Join(placeholders, ","))
	}

	query += ` ORDER BY ts ASC, event_id ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []domain.ArchivedEvent{}
	for rows.Next() {
		var ae domain.ArchivedEvent
		var eventType string
		if err := rows.Scan(&ae.Event.ID, &ae.Event.RunID, &eventType, &ae.Event.At,
			&ae.Event.AgentID, &ae.Event.ParentAgentID, &ae.Event.Text, &ae.Seq, &ae.BridgeID); err != nil {
			return nil, err
		}
		ae.Event.Type = domain.EventType(eventType)
		events = append(events, ae)
	}
	return events, rows.Err()
}

// CountEvents returns the number of archived events.
func (s *SQLiteStore) CountEvents(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lifecycle_events`).Scan(&n)
	return n, err
}
