package circuit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultMaximumCircuitCount is the live-circuit high-water mark.
const DefaultMaximumCircuitCount = 1000

// EvictionReason records why a circuit left the registry.
type EvictionReason string

const (
	ReasonTimeout  EvictionReason = "timeout"
	ReasonCapacity EvictionReason = "capacity"
	ReasonFaulted  EvictionReason = "faulted"
	ReasonShutdown EvictionReason = "shutdown"
	ReasonExplicit EvictionReason = "explicit"

	// ReasonRestart marks circuits that were live when the process stopped.
	ReasonRestart EvictionReason = "restart"
)

// JournalEntry is one circuit lifecycle event.
type JournalEntry struct {
	CircuitID  string
	Event      string // "created" or "evicted"
	Reason     EvictionReason
	Location   string
	RemoteAddr string
	At         time.Time
}

// Journal persists lifecycle events. Failures are logged, never fatal.
type Journal interface {
	Record(ctx context.Context, e JournalEntry) error
}

// Info is a point-in-time summary of a live circuit.
type Info struct {
	ID           string
	CreatedAt    time.Time
	LastActivity time.Time
}

// Registry maps circuit ids to live circuits.
//
// Lookups use a sync.Map, so independent circuits never contend on a global
// lock. Eviction removes the id before disposing the circuit: a request racing
// an eviction either finds the circuit intact or gets NOT_FOUND.
type Registry struct {
	circuits sync.Map // string -> *Circuit
	count    atomic.Int64

	factory   RendererFactory
	clock     Clock
	ids       IDGenerator
	journal   Journal
	logger    *slog.Logger
	maxCount  int
	highWater chan struct{}
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock sets the clock used for activity timestamps.
func WithClock(c Clock) RegistryOption { return func(r *Registry) { r.clock = c } }

// WithIDGenerator sets the circuit id source.
func WithIDGenerator(g IDGenerator) RegistryOption { return func(r *Registry) { r.ids = g } }

// WithJournal records lifecycle events to j.
func WithJournal(j Journal) RegistryOption { return func(r *Registry) { r.journal = j } }

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) RegistryOption { return func(r *Registry) { r.logger = l } }

// WithMaximumCircuitCount sets the count above which HighWater fires.
func WithMaximumCircuitCount(n int) RegistryOption {
	return func(r *Registry) { r.maxCount = n }
}

// NewRegistry creates an empty registry.
func NewRegistry(factory RendererFactory, opts ...RegistryOption) *Registry {
	r := &Registry{
		factory:   factory,
		clock:     SystemClock{},
		ids:       UUIDv7Generator{},
		logger:    slog.Default(),
		maxCount:  DefaultMaximumCircuitCount,
		highWater: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "circuit-registry")
	return r
}

// Create builds a circuit for sc and registers it. The circuit has not
// rendered yet; call Start on it.
func (r *Registry) Create(ctx context.Context, sc SessionContext) (*Circuit, error) {
	renderer, err := r.factory(sc)
	if err != nil {
		return nil, fmt.Errorf("create renderer: %w", err)
	}
	id := r.ids.Generate()
	c := newCircuit(id, renderer, r.clock, r.logger, r.faulted)
	if _, dup := r.circuits.LoadOrStore(id, c); dup {
		_ = c.Close()
		return nil, fmt.Errorf("circuit id %s already registered", id)
	}
	live := r.count.Add(1)

	r.logger.Info("circuit created", "circuit_id", id, "live", live)
	r.record(ctx, JournalEntry{
		CircuitID:  id,
		Event:      "created",
		Location:   sc.Location,
		RemoteAddr: sc.RemoteAddr,
		At:         c.CreatedAt(),
	})

	if live > int64(r.maxCount) {
		select {
		case r.highWater <- struct{}{}:
		default:
		}
	}
	return c, nil
}

// Get returns the live circuit with id.
func (r *Registry) Get(id string) (*Circuit, error) {
	v, ok := r.circuits.Load(id)
	if !ok {
		return nil, newError(ErrCodeNotFound, id, "no such circuit")
	}
	c := v.(*Circuit)
	if c.Closed() {
		return nil, newError(ErrCodeNotFound, id, "no such circuit")
	}
	return c, nil
}

// Touch records activity on a circuit.
func (r *Registry) Touch(id string) error {
	c, err := r.Get(id)
	if err != nil {
		return err
	}
	c.Touch()
	return nil
}

// Evict removes and disposes the circuit. Returns false if it was not present.
func (r *Registry) Evict(ctx context.Context, id string, reason EvictionReason) bool {
	v, ok := r.circuits.LoadAndDelete(id)
	if !ok {
		return false
	}
	live := r.count.Add(-1)
	c := v.(*Circuit)
	if err := c.Close(); err != nil {
		r.logger.Warn("circuit dispose failed", "circuit_id", id, "error", err)
	}
	r.logger.Info("circuit evicted", "circuit_id", id, "reason", reason, "live", live)
	r.record(ctx, JournalEntry{CircuitID: id, Event: "evicted", Reason: reason, At: r.clock.Now()})
	return true
}

// Len returns the number of live circuits.
func (r *Registry) Len() int { return int(r.count.Load()) }

// MaximumCircuitCount returns the high-water mark.
func (r *Registry) MaximumCircuitCount() int { return r.maxCount }

// Snapshot lists live circuits, least recently active first.
func (r *Registry) Snapshot() []Info {
	var out []Info
	r.circuits.Range(func(_, v any) bool {
		c := v.(*Circuit)
		out = append(out, Info{ID: c.ID(), CreatedAt: c.CreatedAt(), LastActivity: c.LastActivity()})
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastActivity.Before(out[j].LastActivity)
	})
	return out
}

// HighWater signals when the live count rises above the maximum.
// Signals coalesce: one pending signal covers any number of creations.
func (r *Registry) HighWater() <-chan struct{} { return r.highWater }

// Close evicts every circuit.
func (r *Registry) Close(ctx context.Context) {
	r.circuits.Range(func(k, _ any) bool {
		r.Evict(ctx, k.(string), ReasonShutdown)
		return true
	})
}

func (r *Registry) faulted(c *Circuit, err error) {
	r.Evict(context.Background(), c.ID(), ReasonFaulted)
}

func (r *Registry) record(ctx context.Context, e JournalEntry) {
	if r.journal == nil {
		return
	}
	if err := r.journal.Record(ctx, e); err != nil {
		r.logger.Warn("journal write failed", "circuit_id", e.CircuitID, "event", e.Event, "error", err)
	}
}
