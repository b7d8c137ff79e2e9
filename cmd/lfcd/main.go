// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/linuxfancontrol/lfcd/service/daemon"
)

var version = "dev"

type flags struct {
	host         string
	port         int
	configPath   string
	profilesPath string
	shmPath      string
	hwmonRefresh time.Duration
	disableLogo  bool
}

func main() {
	var f flags

	root := &cobra.Command{
		Use:   "lfcd",
		Short: "Linux fan control daemon",
		Long: `lfcd samples motherboard and GPU temperature sensors, evaluates
user-defined fan curves, and drives PWM fan outputs accordingly. It
exposes a JSON-RPC server for configuration and publishes a shared-memory
telemetry snapshot for other processes to read.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}

	root.Flags().StringVar(&f.host, "host", "127.0.0.1", "JSON-RPC server bind host")
	root.Flags().IntVar(&f.port, "port", 8732, "JSON-RPC server bind port")
	root.Flags().StringVar(&f.configPath, "config", "", "path to a config file (JSON/YAML/TOML, viper-detected)")
	root.Flags().StringVar(&f.profilesPath, "profiles", "/etc/lfcd/profiles", "directory holding fan-curve profiles")
	root.Flags().StringVar(&f.shmPath, "shm", "/lfc.telemetry", "shared-memory name or file path for telemetry snapshots")
	root.Flags().DurationVar(&f.hwmonRefresh, "hwmon-refresh", 500*time.Millisecond, "interval between hwmon inventory rescans")
	root.Flags().BoolVar(&f.disableLogo, "no-logo", false, "suppress the startup banner")

	if err := root.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		d := daemon.New(
			daemon.WithName("lfcd"),
			daemon.WithVersion(version),
			daemon.WithListenAddr(f.host, f.port),
			daemon.WithConfigPath(f.configPath),
			daemon.WithProfilesPath(f.profilesPath),
			daemon.WithShmPath(f.shmPath),
			daemon.WithHwmonRefresh(f.hwmonRefresh),
			daemon.WithDisableLogo(f.disableLogo),
		)

		if err := d.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}

		if !d.Restarting() || ctx.Err() != nil {
			return nil
		}
	}
}
