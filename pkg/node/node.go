package node

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ryandielhenn/cloudheal/internal/logger"
	"github.com/ryandielhenn/cloudheal/internal/telemetry"
)

const (
	DefaultInterval         = 2 * time.Second
	DefaultFaultProbability = 0.2
)

// Rand is the random source behind fault injection.
type Rand interface {
	Float64() float64
}

// Node is a simulated cloud node. Its run loop wakes every interval and may
// flip the node unhealthy; the monitor flips it back through Heal.
type Node struct {
	id       string
	interval time.Duration
	faultP   float64
	rng      Rand
	log      *logger.Logger

	healthy atomic.Bool
	state   atomic.Uint32

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

type Option func(*Node)

func WithInterval(d time.Duration) Option {
	return func(n *Node) { n.interval = d }
}

// WithFaultProbability sets the chance, per wake-up, that a healthy node fails.
func WithFaultProbability(p float64) Option {
	return func(n *Node) { n.faultP = p }
}

func WithRand(r Rand) Option {
	return func(n *Node) { n.rng = r }
}

func WithLogger(l *logger.Logger) Option {
	return func(n *Node) { n.log = l }
}

// New returns a healthy node in the running state.
func New(id string, opts ...Option) *Node {
	n := &Node{
		id:       id,
		interval: DefaultInterval,
		faultP:   DefaultFaultProbability,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		log:      logger.NewNop(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.healthy.Store(true)
	n.state.Store(uint32(StateRunning))
	return n
}

func (n *Node) ID() string {
	return n.id
}

func (n *Node) Healthy() bool {
	return n.healthy.Load()
}

func (n *Node) State() State {
	return State(n.state.Load())
}

// Heal resets the node to healthy. It always logs, even if the node was healthy.
func (n *Node) Heal() {
	n.healthy.Store(true)
	telemetry.HealsTotal.WithLabelValues(n.id).Inc()
	n.log.Infof("[Self-Healing] %s has been restarted.", n.id)
}

// Fail marks the node unhealthy without going through fault injection.
func (n *Node) Fail() {
	n.healthy.Store(false)
}

// Stop asks the run loop to exit after its current sleep. Safe to call repeatedly.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		close(n.stop)
		n.state.CompareAndSwap(uint32(StateRunning), uint32(StateStopping))
	})
}

// Done is closed once Run has returned.
func (n *Node) Done() <-chan struct{} {
	return n.done
}

// Draw reports whether this wake-up injects a fault. It uses the node's random
// source, which is not safe for concurrent use with a running loop.
func (n *Node) Draw() bool {
	return n.rng.Float64() < n.faultP
}

// Run drives the node until Stop is called or ctx is cancelled. Cancellation is
// only observed between sleeps, so exit latency is bounded by the interval.
// Run must be called at most once.
func (n *Node) Run(ctx context.Context) {
	defer close(n.done)

	for !n.stopRequested(ctx) {
		time.Sleep(n.interval)
		if n.stopRequested(ctx) {
			break
		}
		if n.Draw() {
			n.healthy.Store(false)
			telemetry.FaultsTotal.WithLabelValues(n.id).Inc()
			n.log.Infof("[Fault Detected] %s has failed.", n.id)
		}
	}

	n.state.Store(uint32(StateStopped))
	n.log.Infof("[Shutdown] %s stopped.", n.id)
}

func (n *Node) stopRequested(ctx context.Context) bool {
	select {
	case <-n.stop:
		return true
	case <-ctx.Done():
		n.state.CompareAndSwap(uint32(StateRunning), uint32(StateStopping))
		return true
	default:
		return false
	}
}
