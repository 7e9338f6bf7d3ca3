package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/lightmode/internal/circuit"
)

// Orphans returns the "created" entries of circuits that were never evicted,
// oldest first. After a restart these circuits no longer exist.
func (s *Store) Orphans(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.seq, c.circuit_id, c.event, c.reason, c.location, c.remote_addr, c.at_unix_ms
		FROM circuit_events c
		WHERE c.event = 'created'
		AND NOT EXISTS (
			SELECT 1 FROM circuit_events e
			WHERE e.circuit_id = c.circuit_id AND e.event = 'evicted'
		)
		ORDER BY c.seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list orphans: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// CloseOrphans records an eviction with reason restart for every orphan and
// returns how many were closed. All rows are written in one transaction.
func (s *Store) CloseOrphans(ctx context.Context, at time.Time) (int, error) {
	orphans, err := s.Orphans(ctx)
	if err != nil {
		return 0, err
	}
	if len(orphans) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("close orphans: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, o := range orphans {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO circuit_events
			(circuit_id, event, reason, location, remote_addr, at_unix_ms)
			VALUES (?, 'evicted', ?, '', '', ?)
			ON CONFLICT DO NOTHING
		`, o.CircuitID, string(circuit.ReasonRestart), at.UnixMilli())
		if err != nil {
			return 0, fmt.Errorf("close orphan %s: %w", o.CircuitID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("close orphans: %w", err)
	}
	return len(orphans), nil
}
