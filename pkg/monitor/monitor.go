// Package monitor polls a fixed set of nodes and heals any it finds unhealthy.
//
// Healing is an unconditional reset. The monitor keeps no fault history, so
// there is no escalation or quarantine; a node that keeps failing is simply
// healed again on every sweep that catches it.
package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ryandielhenn/cloudheal/internal/logger"
	"github.com/ryandielhenn/cloudheal/internal/telemetry"
	"github.com/ryandielhenn/cloudheal/pkg/lifecycle"
)

const DefaultInterval = 3 * time.Second

// Target is anything the monitor can inspect and heal.
type Target interface {
	ID() string
	Healthy() bool
	Heal()
}

// Reporter receives every observation made during a sweep. healthy is the
// state the monitor saw; restarted is true when it healed the target.
type Reporter interface {
	Report(ctx context.Context, id string, healthy, restarted bool) error
}

type Monitor struct {
	targets   []Target
	interval  time.Duration
	reporters []Reporter
	log       *logger.Logger

	state    atomic.Uint32
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

type Option func(*Monitor)

func WithInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

func WithLogger(l *logger.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

// WithReporter appends r to the reporters notified after each check.
func WithReporter(r Reporter) Option {
	return func(m *Monitor) { m.reporters = append(m.reporters, r) }
}

// New watches targets. The set is copied and cannot change afterwards.
func New(targets []Target, opts ...Option) *Monitor {
	m := &Monitor{
		targets:  append([]Target(nil), targets...),
		interval: DefaultInterval,
		log:      logger.NewNop(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.state.Store(uint32(lifecycle.StateRunning))
	return m
}

// Targets returns a copy of the watched set.
func (m *Monitor) Targets() []Target {
	return append([]Target(nil), m.targets...)
}

func (m *Monitor) State() lifecycle.State {
	return lifecycle.State(m.state.Load())
}

// Sweep checks every target once, in order, healing the unhealthy ones.
// Reporters are called only after every target has been checked, so a slow
// reporter delays the next sweep but never a heal in this one.
func (m *Monitor) Sweep(ctx context.Context) {
	seen := make([]reading, 0, len(m.targets))
	for _, t := range m.targets {
		id := t.ID()
		healthy := t.Healthy()
		if !healthy {
			m.log.Infof("[Monitor] Restarting %s...", id)
			t.Heal()
		} else {
			m.log.Infof("[Monitor] %s is healthy.", id)
		}
		telemetry.ObserveHealth(id, healthy)
		seen = append(seen, reading{id: id, healthy: healthy})
	}
	telemetry.SweepsTotal.Inc()

	for _, o := range seen {
		for _, r := range m.reporters {
			if err := r.Report(ctx, o.id, o.healthy, !o.healthy); err != nil {
				m.log.Warn("report observation", "node", o.id, "error", err)
			}
		}
	}
}

type reading struct {
	id      string
	healthy bool
}

// Stop asks the run loop to exit after its current sleep. Safe to call repeatedly.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.state.CompareAndSwap(uint32(lifecycle.StateRunning), uint32(lifecycle.StateStopping))
	})
}

// Done is closed once Run has returned.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Run sweeps every interval until Stop is called or ctx is cancelled. As with
// nodes, a stop request is noticed only when the current sleep ends, but it
// cancels the context handed to reporters at once.
// Run must be called at most once.
func (m *Monitor) Run(ctx context.Context) {
	defer close(m.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-m.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for !m.stopRequested(ctx) {
		time.Sleep(m.interval)
		if m.stopRequested(ctx) {
			break
		}
		m.Sweep(ctx)
	}

	m.state.Store(uint32(lifecycle.StateStopped))
	m.log.Info("[Shutdown] Monitor stopped.")
}

func (m *Monitor) stopRequested(ctx context.Context) bool {
	select {
	case <-m.stop:
		return true
	case <-ctx.Done():
		m.state.CompareAndSwap(uint32(lifecycle.StateRunning), uint32(lifecycle.StateStopping))
		return true
	default:
		return false
	}
}
