package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ryandielhenn/cloudheal/discovery"
	"github.com/ryandielhenn/cloudheal/internal/config"
)

func newStatusCmd(v *viper.Viper, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show node health published to etcd by a running simulation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, *configPath)
			if err != nil {
				return err
			}
			if len(cfg.Etcd.Endpoints) == 0 {
				return fmt.Errorf("status needs etcd endpoints (--etcd-endpoints or %s_ETCD_ENDPOINTS)", config.EnvPrefix)
			}

			cli, err := discovery.NewClient(cfg.Etcd.Endpoints, cfg.Etcd.DialTimeout)
			if err != nil {
				return err
			}
			defer cli.Close()

			return printStatuses(cmd.Context(), cmd.OutOrStdout(), cli, cfg.Etcd.Prefix)
		},
	}
}

func printStatuses(ctx context.Context, w io.Writer, kv clientv3.KV, prefix string) error {
	statuses, err := discovery.Statuses(ctx, kv, prefix)
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		fmt.Fprintln(w, "no nodes published")
		return nil
	}

	ids := make([]string, 0, len(statuses))
	for id := range statuses {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, strings.Compare)
	for _, id := range ids {
		state := "unhealthy"
		if statuses[id] {
			state = "healthy"
		}
		fmt.Fprintf(w, "%-12s %s\n", id, state)
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cloudheal %s (%s)\n", version, gitSHA)
		},
	}
}
