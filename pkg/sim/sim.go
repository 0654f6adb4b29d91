package sim

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ryandielhenn/cloudheal/internal/config"
	"github.com/ryandielhenn/cloudheal/internal/logger"
	"github.com/ryandielhenn/cloudheal/pkg/monitor"
	"github.com/ryandielhenn/cloudheal/pkg/node"
	"github.com/ryandielhenn/cloudheal/pkg/status"
)

// Simulation owns the fleet and its monitor for one run.
type Simulation struct {
	cfg     *config.Config
	log     *logger.Logger
	nodes   []*node.Node
	byID    map[string]*node.Node
	monitor *monitor.Monitor
	status  *status.Cache
}

type Option func(*options)

type options struct {
	reporters []monitor.Reporter
	nodeOpts  []node.Option
}

// WithReporter forwards monitor observations to r in addition to the status cache.
func WithReporter(r monitor.Reporter) Option {
	return func(o *options) { o.reporters = append(o.reporters, r) }
}

// WithNodeOptions applies extra options to every node, after the config-derived ones.
func WithNodeOptions(opts ...node.Option) Option {
	return func(o *options) { o.nodeOpts = append(o.nodeOpts, opts...) }
}

// New creates cfg.Nodes.Count nodes named Node-1..Node-N and one monitor
// watching all of them. Nothing runs until Run.
func New(cfg *config.Config, log *logger.Logger, opts ...Option) *Simulation {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	ttl := cfg.Monitor.StatusTTL
	if ttl == 0 {
		ttl = 2 * cfg.Monitor.Interval
	}
	s := &Simulation{
		cfg:    cfg,
		log:    log,
		byID:   make(map[string]*node.Node, cfg.Nodes.Count),
		status: status.NewCache(cfg.Nodes.Count, ttl),
	}

	targets := make([]monitor.Target, 0, cfg.Nodes.Count)
	for i := 1; i <= cfg.Nodes.Count; i++ {
		nodeOpts := append([]node.Option{
			node.WithInterval(cfg.Nodes.Interval),
			node.WithFaultProbability(cfg.Nodes.FaultProbability),
			node.WithLogger(log),
		}, o.nodeOpts...)
		n := node.New(fmt.Sprintf("Node-%d", i), nodeOpts...)
		s.nodes = append(s.nodes, n)
		s.byID[n.ID()] = n
		targets = append(targets, n)
	}

	monOpts := []monitor.Option{
		monitor.WithInterval(cfg.Monitor.Interval),
		monitor.WithLogger(log),
		monitor.WithReporter(s.status),
	}
	for _, r := range o.reporters {
		monOpts = append(monOpts, monitor.WithReporter(r))
	}
	s.monitor = monitor.New(targets, monOpts...)
	return s
}

func (s *Simulation) Nodes() []*node.Node {
	return append([]*node.Node(nil), s.nodes...)
}

func (s *Simulation) Node(id string) (*node.Node, bool) {
	n, ok := s.byID[id]
	return n, ok
}

func (s *Simulation) Monitor() *monitor.Monitor {
	return s.monitor
}

func (s *Simulation) Status() *status.Cache {
	return s.status
}

// Run starts every worker, lets them run for the configured duration (or until
// ctx is done), then stops them all and waits up to the shutdown grace period.
// Workers still sleeping after that are abandoned.
func (s *Simulation) Run(ctx context.Context) error {
	var srv *http.Server
	var ln net.Listener
	if addr := s.cfg.HTTP.Addr; addr != "" {
		var err error
		ln, err = net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		srv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
		s.log.Debug("status server listening", "addr", ln.Addr().String())
	}

	var g errgroup.Group
	for _, n := range s.nodes {
		g.Go(func() error {
			n.Run(ctx)
			return nil
		})
	}
	g.Go(func() error {
		s.monitor.Run(ctx)
		return nil
	})
	if srv != nil {
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
	}

	timer := time.NewTimer(s.cfg.Simulation.Duration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	s.log.Info("[System] Shutting down simulation...")
	s.Stop()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Simulation.ShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("status server shutdown", "error", err)
		}
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	grace := time.NewTimer(s.cfg.Simulation.ShutdownGrace)
	defer grace.Stop()
	select {
	case err := <-done:
		return err
	case <-grace.C:
		s.log.Warn("abandoning workers still running after grace period", "workers", s.stragglers())
		return nil
	}
}

// Stop requests shutdown of every node and the monitor.
func (s *Simulation) Stop() {
	for _, n := range s.nodes {
		n.Stop()
	}
	s.monitor.Stop()
}

func (s *Simulation) stragglers() []string {
	var out []string
	for _, n := range s.nodes {
		select {
		case <-n.Done():
		default:
			out = append(out, n.ID())
		}
	}
	select {
	case <-s.monitor.Done():
	default:
		out = append(out, "monitor")
	}
	return out
}
