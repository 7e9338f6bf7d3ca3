package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/lightmode/internal/circuit"
	"github.com/roach88/lightmode/internal/protocol"
)

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func created(id string, minute int) circuit.JournalEntry {
	return circuit.JournalEntry{
		CircuitID:  id,
		Event:      EventCreated,
		Location:   "http://localhost/" + id,
		RemoteAddr: "127.0.0.1",
		At:         testEpoch.Add(time.Duration(minute) * time.Minute),
	}
}

func evicted(id string, reason circuit.EvictionReason, minute int) circuit.JournalEntry {
	return circuit.JournalEntry{
		CircuitID: id,
		Event:     EventEvicted,
		Reason:    reason,
		At:        testEpoch.Add(time.Duration(minute) * time.Minute),
	}
}

type nopRenderer struct{}

func (nopRenderer) RootComponents() []protocol.RootComponent { return nil }

func (nopRenderer) Start(context.Context, circuit.Session, string) error { return nil }

func (nopRenderer) OnEvent(context.Context, circuit.Session, circuit.Event) error { return nil }

func (nopRenderer) OnLocationChanged(context.Context, circuit.Session, string, bool) error {
	return nil
}

func (nopRenderer) OnAfterRender(context.Context, circuit.Session, []int32) error { return nil }

func (nopRenderer) Close() error { return nil }
