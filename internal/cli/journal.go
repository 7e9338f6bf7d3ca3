package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/lightmode/internal/circuit"
	"github.com/roach88/lightmode/internal/store"
)

// JournalOptions holds flags shared by the journal subcommands.
type JournalOptions struct {
	*RootOptions
	Database string
	Circuit  string
	Event    string
	Reason   string
	Limit    int
}

// JournalEvent is one journal row as printed.
type JournalEvent struct {
	Seq        int64     `json:"seq"`
	CircuitID  string    `json:"circuit_id"`
	Event      string    `json:"event"`
	Reason     string    `json:"reason,omitempty"`
	Location   string    `json:"location,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	At         time.Time `json:"at"`
}

// JournalSummary is the output of journal summary.
type JournalSummary struct {
	Created  int            `json:"created"`
	Evicted  int            `json:"evicted"`
	Live     int            `json:"live"`
	ByReason map[string]int `json:"by_reason"`
}

// NewJournalCommand creates the journal command and its subcommands.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the circuit journal",
		Long: `Query the circuit lifecycle journal written by serve.

Examples:
  lightmode journal list --db ./lightmode.db --reason timeout
  lightmode journal list --db ./lightmode.db --circuit 0190c6e2-... --format json
  lightmode journal summary --db ./lightmode.db`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List lifecycle events in order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournalList(opts, cmd)
		},
	}
	list.Flags().StringVar(&opts.Circuit, "circuit", "", "filter to one circuit id")
	list.Flags().StringVar(&opts.Event, "event", "", "filter by event (created|evicted)")
	list.Flags().StringVar(&opts.Reason, "reason", "", "filter by eviction reason")
	list.Flags().IntVar(&opts.Limit, "limit", 0, "maximum rows (0 for all)")

	summary := &cobra.Command{
		Use:           "summary",
		Short:         "Count circuits by outcome",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournalSummary(opts, cmd)
		},
	}

	cmd.AddCommand(list, summary)
	return cmd
}

// openJournal opens an existing database. Open would create a missing file,
// which is never what a read command wants.
func openJournal(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func runJournalList(opts *JournalOptions, cmd *cobra.Command) error {
	switch opts.Event {
	case "", store.EventCreated, store.EventEvicted:
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid event %q: must be created or evicted", opts.Event))
	}

	st, err := openJournal(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.List(context.Background(), store.ListOptions{
		CircuitID: opts.Circuit,
		Event:     opts.Event,
		Reason:    circuit.EvictionReason(opts.Reason),
		Limit:     opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list journal", err)
	}

	events := make([]JournalEvent, 0, len(entries))
	for _, e := range entries {
		events = append(events, JournalEvent{
			Seq:        e.Seq,
			CircuitID:  e.CircuitID,
			Event:      e.Event,
			Reason:     string(e.Reason),
			Location:   e.Location,
			RemoteAddr: e.RemoteAddr,
			At:         e.At,
		})
	}

	out := newFormatter(opts.RootOptions, cmd)
	return out.Success(events, func(w io.Writer) error {
		if len(events) == 0 {
			fmt.Fprintln(w, "No journal entries found")
			return nil
		}
		for _, e := range events {
			fmt.Fprintf(w, "[%d] %s %-7s %s", e.Seq, e.At.Format(time.RFC3339), e.Event, e.CircuitID)
			if e.Reason != "" {
				fmt.Fprintf(w, " reason=%s", e.Reason)
			}
			if e.Location != "" {
				fmt.Fprintf(w, " location=%s", e.Location)
			}
			fmt.Fprintln(w)
		}
		return nil
	})
}

func runJournalSummary(opts *JournalOptions, cmd *cobra.Command) error {
	st, err := openJournal(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	sum, err := st.Summarize(context.Background())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to summarize journal", err)
	}

	result := JournalSummary{
		Created:  sum.Created,
		Evicted:  sum.Evicted,
		Live:     sum.Live,
		ByReason: make(map[string]int, len(sum.ByReason)),
	}
	for reason, n := range sum.ByReason {
		result.ByReason[string(reason)] = n
	}

	out := newFormatter(opts.RootOptions, cmd)
	return out.Success(result, func(w io.Writer) error {
		fmt.Fprintf(w, "Circuits created: %d\n", result.Created)
		fmt.Fprintf(w, "Circuits evicted: %d\n", result.Evicted)
		fmt.Fprintf(w, "Still open:       %d\n", result.Live)
		reasons := make([]string, 0, len(result.ByReason))
		for r := range result.ByReason {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			fmt.Fprintf(w, "  %-10s %d\n", r, result.ByReason[r])
		}
		return nil
	})
}
