package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/lightmode/internal/circuit"
)

// Journal event names.
const (
	EventCreated = "created"
	EventEvicted = "evicted"
)

// Entry is a stored lifecycle event.
type Entry struct {
	Seq int64
	circuit.JournalEntry
}

// ListOptions filters List. Zero values match everything.
type ListOptions struct {
	CircuitID string
	Event     string
	Reason    circuit.EvictionReason
	Limit     int
}

// Summary counts journal rows.
type Summary struct {
	Created  int
	Evicted  int
	Live     int
	ByReason map[circuit.EvictionReason]int
}

// List returns matching entries in seq order.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Entry, error) {
	var where []string
	var args []any
	if opts.CircuitID != "" {
		where = append(where, "circuit_id = ?")
		args = append(args, opts.CircuitID)
	}
	if opts.Event != "" {
		where = append(where, "event = ?")
		args = append(args, opts.Event)
	}
	if opts.Reason != "" {
		where = append(where, "reason = ?")
		args = append(args, string(opts.Reason))
	}

	query := `SELECT seq, circuit_id, event, reason, location, remote_addr, at_unix_ms FROM circuit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Summarize counts created and evicted circuits and evictions per reason.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	sum := Summary{ByReason: make(map[circuit.EvictionReason]int)}
	rows, err := s.db.QueryContext(ctx, `
		SELECT event, reason, COUNT(*) FROM circuit_events
		GROUP BY event, reason
		ORDER BY event ASC, reason ASC
	`)
	if err != nil {
		return sum, fmt.Errorf("summarize journal: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var event, reason string
		var n int
		if err := rows.Scan(&event, &reason, &n); err != nil {
			return sum, fmt.Errorf("summarize journal: %w", err)
		}
		switch event {
		case EventCreated:
			sum.Created += n
		case EventEvicted:
			sum.Evicted += n
			sum.ByReason[circuit.EvictionReason(reason)] += n
		}
	}
	if err := rows.Err(); err != nil {
		return sum, fmt.Errorf("summarize journal: %w", err)
	}
	sum.Live = sum.Created - sum.Evicted
	return sum, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		var reason string
		var atMS int64
		if err := rows.Scan(&e.Seq, &e.CircuitID, &e.Event, &reason, &e.Location, &e.RemoteAddr, &atMS); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Reason = circuit.EvictionReason(reason)
		e.At = time.UnixMilli(atMS).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan journal entries: %w", err)
	}
	return out, nil
}
