package sim

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ryandielhenn/cloudheal/internal/config"
	"github.com/ryandielhenn/cloudheal/internal/logger"
	"github.com/ryandielhenn/cloudheal/pkg/node"
)

func observed() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return logger.FromZap(zap.New(core)), logs
}

func fastConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Nodes.Interval = 5 * time.Millisecond
	cfg.Monitor.Interval = 8 * time.Millisecond
	cfg.Monitor.StatusTTL = time.Minute
	cfg.Simulation.Duration = 60 * time.Millisecond
	cfg.Simulation.ShutdownGrace = 500 * time.Millisecond
	return cfg
}

func TestNewBuildsNamedFleet(t *testing.T) {
	s := New(config.DefaultConfig(), logger.NewNop())

	var ids []string
	for _, n := range s.Nodes() {
		ids = append(ids, n.ID())
		assert.True(t, n.Healthy())
	}
	assert.Equal(t, []string{"Node-1", "Node-2", "Node-3"}, ids)
	assert.Len(t, s.Monitor().Targets(), 3)

	_, ok := s.Node("Node-2")
	assert.True(t, ok)
	_, ok = s.Node("Node-4")
	assert.False(t, ok)
}

func TestForcedFaultHealedByOneMonitorCycle(t *testing.T) {
	log, logs := observed()
	s := New(config.DefaultConfig(), log)

	n2, _ := s.Node("Node-2")
	n2.Fail()
	require.False(t, n2.Healthy())

	s.Monitor().Sweep(context.Background())

	assert.True(t, n2.Healthy())
	assert.Equal(t, 1, logs.FilterMessage("[Monitor] Restarting Node-2...").Len())
	assert.Equal(t, 1, logs.FilterMessage("[Self-Healing] Node-2 has been restarted.").Len())
	assert.Equal(t, 1, logs.FilterMessage("[Monitor] Node-1 is healthy.").Len())
	assert.Equal(t, 1, logs.FilterMessage("[Monitor] Node-3 is healthy.").Len())

	snap, ok := s.Status().Get("Node-2")
	require.True(t, ok)
	assert.False(t, snap.Healthy)
	assert.True(t, snap.Restarted)
	assert.Len(t, s.Status().List(), 3)
}

func TestRunShutsEveryWorkerDownOnce(t *testing.T) {
	log, logs := observed()
	s := New(fastConfig(), log, WithNodeOptions(node.WithFaultProbability(0.5)))

	require.NoError(t, s.Run(context.Background()))

	for _, n := range s.Nodes() {
		select {
		case <-n.Done():
		default:
			t.Fatalf("%s still running after Run returned", n.ID())
		}
		assert.Equal(t, node.StateStopped, n.State())
		assert.Equal(t, 1, logs.FilterMessage("[Shutdown] "+n.ID()+" stopped.").Len())
	}
	assert.Equal(t, 1, logs.FilterMessage("[Shutdown] Monitor stopped.").Len())
	assert.Equal(t, 1, logs.FilterMessage("[System] Shutting down simulation...").Len())

	var msgs []string
	for _, e := range logs.All() {
		msgs = append(msgs, e.Message)
	}
	sys := slices.Index(msgs, "[System] Shutting down simulation...")
	for i, m := range msgs {
		if i < sys {
			assert.NotContains(t, m, "[Shutdown]")
		}
	}
	assert.NotZero(t, logs.FilterMessageSnippet("[Monitor]").Len(), "monitor should have swept at least once")
}

func TestRunStopsEarlyOnContextCancel(t *testing.T) {
	cfg := fastConfig()
	cfg.Simulation.Duration = time.Hour
	s := New(cfg, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	require.NoError(t, s.Run(ctx))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunAbandonsStragglersAfterGrace(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	cfg := fastConfig()
	cfg.Nodes.Interval = 2 * time.Second
	cfg.Monitor.Interval = time.Millisecond
	cfg.Simulation.Duration = 10 * time.Millisecond
	cfg.Simulation.ShutdownGrace = 20 * time.Millisecond
	s := New(cfg, logger.FromZap(zap.New(core)), WithNodeOptions(node.WithFaultProbability(0)))

	start := time.Now()
	require.NoError(t, s.Run(context.Background()))
	assert.Less(t, time.Since(start), time.Second)

	warns := logs.FilterMessage("abandoning workers still running after grace period").All()
	require.Len(t, warns, 1)
	assert.Equal(t, []interface{}{"Node-1", "Node-2", "Node-3"}, warns[0].ContextMap()["workers"])
}

func TestRunServesStatus(t *testing.T) {
	cfg := fastConfig()
	cfg.HTTP.Addr = "127.0.0.1:0"
	s := New(cfg, logger.NewNop())

	require.NoError(t, s.Run(context.Background()))
}

func TestRunFailsOnBadListenAddr(t *testing.T) {
	cfg := fastConfig()
	cfg.HTTP.Addr = "not-an-address"
	s := New(cfg, logger.NewNop())

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen on")
}
