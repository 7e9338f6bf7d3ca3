package store

import (
	"context"
	"testing"
	"time"

	"github.com/roach88/lightmode/internal/circuit"
	"github.com/roach88/lightmode/internal/testutil"
)

func TestOrphans(t *testing.T) {
	s := createTestStore(t)
	seedJournal(t, s)

	orphans, err := s.Orphans(context.Background())
	if err != nil {
		t.Fatalf("Orphans() failed: %v", err)
	}
	if len(orphans) != 2 || orphans[0].CircuitID != "c" || orphans[1].CircuitID != "d" {
		t.Fatalf("orphans = %+v", orphans)
	}
}

func TestCloseOrphans(t *testing.T) {
	s := createTestStore(t)
	seedJournal(t, s)
	ctx := context.Background()
	at := testEpoch.Add(time.Hour)

	n, err := s.CloseOrphans(ctx, at)
	if err != nil {
		t.Fatalf("CloseOrphans() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("closed %d, want 2", n)
	}

	restarted, err := s.List(ctx, ListOptions{Reason: circuit.ReasonRestart})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(restarted) != 2 || !restarted[0].At.Equal(at) {
		t.Errorf("restart entries = %+v", restarted)
	}

	// Second pass finds nothing left to close.
	n, err = s.CloseOrphans(ctx, at)
	if err != nil {
		t.Fatalf("second CloseOrphans() failed: %v", err)
	}
	if n != 0 {
		t.Errorf("second pass closed %d, want 0", n)
	}
}

func TestRegistryJournalsToStore(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	reg := circuit.NewRegistry(func(circuit.SessionContext) (circuit.Renderer, error) {
		return nopRenderer{}, nil
	}, circuit.WithJournal(s), circuit.WithIDGenerator(testutil.NewSequentialIDs("c")))

	c, err := reg.Create(ctx, circuit.SessionContext{Location: "http://localhost/", RemoteAddr: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if !reg.Evict(ctx, c.ID(), circuit.ReasonExplicit) {
		t.Fatal("Evict() returned false")
	}

	entries, err := s.List(ctx, ListOptions{CircuitID: "c-1"})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].RemoteAddr != "10.0.0.1" || entries[1].Reason != circuit.ReasonExplicit {
		t.Errorf("entries = %+v", entries)
	}
}
