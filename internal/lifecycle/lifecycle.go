// Package lifecycle evicts idle and excess circuits in the background.
//
// A sweep runs every SweepInterval, or immediately when the registry signals
// that the live count rose above MaximumCircuitCount. Each sweep makes two
// passes over the circuits, least recently active first:
//
//  1. Timeout: evict circuits idle longer than CircuitTimeout, but never drop
//     the live count below MinimumCircuitCount.
//  2. Overflow: if the live count still exceeds MaximumCircuitCount, evict
//     (live - max) + (max - min)/2 circuits. The overshoot leaves headroom so
//     the next few creations do not trip the high-water signal again.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/roach88/lightmode/internal/circuit"
)

// Defaults.
const (
	DefaultMinimumCircuitCount = 10
	DefaultMaximumCircuitCount = circuit.DefaultMaximumCircuitCount
	DefaultCircuitTimeout      = 8 * time.Hour
	DefaultSweepInterval       = 10 * time.Minute
)

// Options bound the registry.
type Options struct {
	MinimumCircuitCount int           `yaml:"minimum_circuit_count"`
	MaximumCircuitCount int           `yaml:"maximum_circuit_count"`
	CircuitTimeout      time.Duration `yaml:"circuit_timeout"`
	SweepInterval       time.Duration `yaml:"sweep_interval"`
}

// DefaultOptions returns the default bounds.
func DefaultOptions() Options {
	return Options{
		MinimumCircuitCount: DefaultMinimumCircuitCount,
		MaximumCircuitCount: DefaultMaximumCircuitCount,
		CircuitTimeout:      DefaultCircuitTimeout,
		SweepInterval:       DefaultSweepInterval,
	}
}

// Validate checks that the bounds are usable.
func (o Options) Validate() error {
	switch {
	case o.MinimumCircuitCount < 0:
		return fmt.Errorf("minimum circuit count %d is negative", o.MinimumCircuitCount)
	case o.MaximumCircuitCount < o.MinimumCircuitCount:
		return fmt.Errorf("maximum circuit count %d is below minimum %d",
			o.MaximumCircuitCount, o.MinimumCircuitCount)
	case o.CircuitTimeout <= 0:
		return fmt.Errorf("circuit timeout %s must be positive", o.CircuitTimeout)
	case o.SweepInterval <= 0:
		return fmt.Errorf("sweep interval %s must be positive", o.SweepInterval)
	}
	return nil
}

// Registry is the part of circuit.Registry the manager drives.
type Registry interface {
	Snapshot() []circuit.Info
	Evict(ctx context.Context, id string, reason circuit.EvictionReason) bool
	Len() int
	HighWater() <-chan struct{}
}

// SweepResult reports what one sweep did.
type SweepResult struct {
	TimedOut int
	Overflow int
	Live     int
}

// Manager runs sweeps against a registry.
type Manager struct {
	reg    Registry
	opts   Options
	clock  circuit.Clock
	logger *slog.Logger

	meterProvider metric.MeterProvider
	evictions     metric.Int64Counter
	sweeps        metric.Int64Counter
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used to judge idleness.
func WithClock(c circuit.Clock) Option { return func(m *Manager) { m.clock = c } }

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithMeterProvider records metrics through mp instead of the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(m *Manager) { m.meterProvider = mp }
}

// New creates a manager. Invalid options are an error.
func New(reg Registry, opts Options, options ...Option) (*Manager, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("lifecycle options: %w", err)
	}
	m := &Manager{
		reg:    reg,
		opts:   opts,
		clock:  circuit.SystemClock{},
		logger: slog.Default(),
	}
	for _, o := range options {
		o(m)
	}
	m.logger = m.logger.With("component", "lifecycle")
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) initMetrics() error {
	mp := m.meterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter("github.com/roach88/lightmode/internal/lifecycle")

	var err error
	m.evictions, err = meter.Int64Counter("lightmode.circuits.evicted",
		metric.WithDescription("Circuits evicted by the lifecycle sweep"),
		metric.WithUnit("{circuit}"),
	)
	if err != nil {
		return fmt.Errorf("create eviction counter: %w", err)
	}
	m.sweeps, err = meter.Int64Counter("lightmode.sweeps",
		metric.WithDescription("Lifecycle sweeps run"),
		metric.WithUnit("{sweep}"),
	)
	if err != nil {
		return fmt.Errorf("create sweep counter: %w", err)
	}
	_, err = meter.Int64ObservableGauge("lightmode.circuits.live",
		metric.WithDescription("Live circuits in the registry"),
		metric.WithUnit("{circuit}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(m.reg.Len()))
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("create live gauge: %w", err)
	}
	return nil
}

// Run sweeps on every tick and on every high-water signal until ctx ends.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()

	m.logger.Info("lifecycle manager starting",
		"min", m.opts.MinimumCircuitCount,
		"max", m.opts.MaximumCircuitCount,
		"timeout", m.opts.CircuitTimeout,
		"interval", m.opts.SweepInterval)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("lifecycle manager stopping")
			return nil
		case <-ticker.C:
			m.Sweep(ctx, m.clock.Now())
		case <-m.reg.HighWater():
			m.logger.Debug("high-water signal")
			m.Sweep(ctx, m.clock.Now())
		}
	}
}

// Sweep runs the timeout pass and then the overflow pass as of now.
func (m *Manager) Sweep(ctx context.Context, now time.Time) SweepResult {
	var res SweepResult
	res.TimedOut = m.timeoutPass(ctx, now)
	res.Overflow = m.overflowPass(ctx)
	res.Live = m.reg.Len()

	m.sweeps.Add(ctx, 1)
	if res.TimedOut > 0 || res.Overflow > 0 {
		m.logger.Info("sweep evicted circuits",
			"timed_out", res.TimedOut, "overflow", res.Overflow, "live", res.Live)
	}
	return res
}

func (m *Manager) timeoutPass(ctx context.Context, now time.Time) int {
	live := m.reg.Len()
	evicted := 0
	for _, info := range m.reg.Snapshot() {
		if live <= m.opts.MinimumCircuitCount {
			break
		}
		if now.Sub(info.LastActivity) <= m.opts.CircuitTimeout {
			// Snapshot is oldest first; everything after is fresher.
			break
		}
		if m.evict(ctx, info.ID, circuit.ReasonTimeout) {
			live--
			evicted++
		}
	}
	return evicted
}

func (m *Manager) overflowPass(ctx context.Context) int {
	live := m.reg.Len()
	maxCount, minCount := m.opts.MaximumCircuitCount, m.opts.MinimumCircuitCount
	if live <= maxCount {
		return 0
	}
	target := (live - maxCount) + (maxCount-minCount)/2
	evicted := 0
	for _, info := range m.reg.Snapshot() {
		if evicted >= target {
			break
		}
		if m.evict(ctx, info.ID, circuit.ReasonCapacity) {
			evicted++
		}
	}
	return evicted
}

func (m *Manager) evict(ctx context.Context, id string, reason circuit.EvictionReason) bool {
	if !m.reg.Evict(ctx, id, reason) {
		return false
	}
	m.evictions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
	return true
}
