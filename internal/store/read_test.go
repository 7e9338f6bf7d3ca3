package store

import (
	"context"
	"testing"

	"github.com/roach88/lightmode/internal/circuit"
)

func seedJournal(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	entries := []circuit.JournalEntry{
		created("a", 0),
		created("b", 1),
		created("c", 2),
		evicted("a", circuit.ReasonTimeout, 3),
		evicted("b", circuit.ReasonCapacity, 4),
		created("d", 5),
	}
	for _, e := range entries {
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("Record(%s %s) failed: %v", e.Event, e.CircuitID, err)
		}
	}
}

func TestList_Filters(t *testing.T) {
	s := createTestStore(t)
	seedJournal(t, s)
	ctx := context.Background()

	tests := []struct {
		name string
		opts ListOptions
		want []string
	}{
		{"all in seq order", ListOptions{}, []string{"a", "b", "c", "a", "b", "d"}},
		{"by circuit", ListOptions{CircuitID: "b"}, []string{"b", "b"}},
		{"by event", ListOptions{Event: EventEvicted}, []string{"a", "b"}},
		{"by reason", ListOptions{Reason: circuit.ReasonCapacity}, []string{"b"}},
		{"limit", ListOptions{Limit: 2}, []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := s.List(ctx, tt.opts)
			if err != nil {
				t.Fatalf("List() failed: %v", err)
			}
			var got []string
			for _, e := range entries {
				got = append(got, e.CircuitID)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
			for i := 1; i < len(entries); i++ {
				if entries[i].Seq <= entries[i-1].Seq {
					t.Errorf("seq not ascending at %d", i)
				}
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	s := createTestStore(t)
	seedJournal(t, s)

	sum, err := s.Summarize(context.Background())
	if err != nil {
		t.Fatalf("Summarize() failed: %v", err)
	}
	if sum.Created != 4 || sum.Evicted != 2 || sum.Live != 2 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.ByReason[circuit.ReasonTimeout] != 1 || sum.ByReason[circuit.ReasonCapacity] != 1 {
		t.Errorf("by reason = %v", sum.ByReason)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := createTestStore(t)

	sum, err := s.Summarize(context.Background())
	if err != nil {
		t.Fatalf("Summarize() failed: %v", err)
	}
	if sum.Created != 0 || sum.Live != 0 || len(sum.ByReason) != 0 {
		t.Errorf("summary = %+v", sum)
	}
}
