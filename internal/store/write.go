package store

import (
	"context"
	"fmt"

	"github.com/roach88/lightmode/internal/circuit"
)

// Record appends a lifecycle event. It implements circuit.Journal.
// Uses ON CONFLICT DO NOTHING: a second "created" or "evicted" row for the
// same circuit is silently ignored.
func (s *Store) Record(ctx context.Context, e circuit.JournalEntry) error {
	if e.CircuitID == "" {
		return fmt.Errorf("record: empty circuit id")
	}
	if e.Event != EventCreated && e.Event != EventEvicted {
		return fmt.Errorf("record: unknown event %q", e.Event)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO circuit_events
		(circuit_id, event, reason, location, remote_addr, at_unix_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		e.CircuitID,
		e.Event,
		string(e.Reason),
		e.Location,
		e.RemoteAddr,
		e.At.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record %s %s: %w", e.Event, e.CircuitID, err)
	}
	return nil
}
