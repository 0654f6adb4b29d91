package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ryandielhenn/cloudheal/discovery"
	"github.com/ryandielhenn/cloudheal/internal/config"
	"github.com/ryandielhenn/cloudheal/internal/logger"
	"github.com/ryandielhenn/cloudheal/internal/telemetry"
	"github.com/ryandielhenn/cloudheal/pkg/sim"
)

// Set with -ldflags "-X main.version=... -X main.gitSHA=...".
var (
	version = "dev"
	gitSHA  = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "cloudheal",
		Short: "Simulate a self-healing fleet of cloud nodes",
		Long: `cloudheal starts a fleet of simulated nodes that fail at random and a
monitor that restarts unhealthy ones, runs for a fixed duration, then shuts down.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	flags.Int("nodes", 0, "Number of simulated nodes")
	flags.Duration("node-interval", 0, "Time between fault draws on each node")
	flags.Float64("fault-probability", 0, "Chance a node fails on each draw")
	flags.Duration("monitor-interval", 0, "Time between monitor sweeps")
	flags.Duration("duration", 0, "How long the simulation runs")
	flags.String("http-addr", "", "Serve status and metrics on this address")
	flags.StringSlice("etcd-endpoints", nil, "Publish node health to these etcd endpoints")
	flags.String("log-format", "", "Log format: plain, console or json")
	flags.String("log-level", "", "Log level")

	keys := map[string]string{
		"nodes.count":             "nodes",
		"nodes.interval":          "node-interval",
		"nodes.fault_probability": "fault-probability",
		"monitor.interval":        "monitor-interval",
		"simulation.duration":     "duration",
		"http.addr":               "http-addr",
		"etcd.endpoints":          "etcd-endpoints",
		"log.format":              "log-format",
		"log.level":               "log-level",
	}
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		bindChanged(v, cmd.Flags(), keys)
	}

	rootCmd.AddCommand(newStatusCmd(v, &configPath))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// bindChanged maps config keys onto flags. Only flags the user actually set
// override file and env values, so zero flag defaults are harmless.
func bindChanged(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if f := flags.Lookup(name); f != nil && f.Changed {
			_ = v.BindPFlag(key, f)
		}
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log, err := logger.New(&cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	telemetry.SetBuildInfo(version, gitSHA)

	var opts []sim.Option
	if len(cfg.Etcd.Endpoints) > 0 {
		cli, err := discovery.NewClient(cfg.Etcd.Endpoints, cfg.Etcd.DialTimeout)
		if err != nil {
			return err
		}
		defer cli.Close()

		pub, err := discovery.NewPublisher(ctx, cli, cfg.Etcd.Prefix, cfg.Etcd.LeaseTTL, cfg.Etcd.DialTimeout)
		if err != nil {
			return err
		}
		defer func() {
			if err := pub.Close(context.Background()); err != nil {
				log.Warn("release etcd lease", "error", err)
			}
		}()
		opts = append(opts, sim.WithReporter(pub))
		log.Debug("publishing node health to etcd", "endpoints", cfg.Etcd.Endpoints, "prefix", cfg.Etcd.Prefix)
	}

	return sim.New(cfg, log, opts...).Run(ctx)
}
