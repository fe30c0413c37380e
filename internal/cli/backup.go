package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nyu-hpc/ceph-rbd-backup/internal/config"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/k8s"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/launcher"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/logging"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/notify"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/rbd"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/reaper"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/tick"
)

var cleanupOnly bool

var backupCommand = &cobra.Command{
	Use:     "backup",
	GroupID: "backup",
	Short:   "Run one backup tick",
	Long:    `Scans the fleet for Ceph RBD-backed volumes, reaps finished worker jobs, and launches backups for due volumes, at most ceil(total/24) per tick so a fleet that falls due together is spread across ticks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(headerStyle.Render("Ceph RBD Backup - Tick"))

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		logger := logging.New(logLevel, "backup")

		client, err := k8s.NewClient(kubeconfigPath, cfg.Namespace)
		if err != nil {
			return fmt.Errorf("building k8s client: %w", err)
		}

		storage := rbd.New(logger)

		deps := tick.Deps{
			K8s:      client,
			Reaper:   reaper.Deps{K8s: client, RBD: storage, Logger: logger},
			Launcher: launcher.Deps{K8s: client, RBD: storage, Config: cfg, Logger: logger},
			Notify: notify.Webhook{
				URL:      webhookURL,
				Username: webhookUsername,
				Password: webhookPassword,
			},
			Logger: logger,
		}

		ctx := cmd.Context()
		if timeoutSeconds > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
			defer cancel()
		}

		result, err := tick.Run(ctx, deps, time.Now(), cleanupOnly)
		if err != nil {
			logger.Error("tick completed with errors", "error", err)
		}
		logger.Info("tick summary",
			"reaped", result.Reaped, "in_flight", len(result.InFlight),
			"launch_attempts", result.LaunchAttempts, "launch_failures", result.LaunchFailures)

		return err
	},
}

func init() {
	backupCommand.Flags().BoolVar(&cleanupOnly, "cleanup-only", false, "Reap finished worker jobs without launching new backups")
	rootCommand.AddCommand(backupCommand)
}
