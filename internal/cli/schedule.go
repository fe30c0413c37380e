package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
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

var (
	backupSchedule  string
	cleanupSchedule string
)

var scheduleCommand = &cobra.Command{
	Use:     "schedule",
	GroupID: "backup",
	Short:   "Run the backup and cleanup ticks as an in-process cron daemon",
	Long:    `Starts an in-process scheduler that runs a backup tick and a cleanup-only tick on independent cron schedules, for deployments that prefer one long-running process over a Kubernetes CronJob.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		banner := fmt.Sprintf("Ceph RBD Backup - Schedule\n\nVersion: %s\nBuild Date: %s", BackupVersion, BackupDate)
		fmt.Println(headerStyle.Render(banner))

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		logger := logging.New(logLevel, "schedule")

		client, err := k8s.NewClient(kubeconfigPath, cfg.Namespace)
		if err != nil {
			return fmt.Errorf("building k8s client: %w", err)
		}

		storage := rbd.New(logger)
		webhook := notify.Webhook{URL: webhookURL, Username: webhookUsername, Password: webhookPassword}

		deps := tick.Deps{
			K8s:      client,
			Reaper:   reaper.Deps{K8s: client, RBD: storage, Logger: logger},
			Launcher: launcher.Deps{K8s: client, RBD: storage, Config: cfg, Logger: logger},
			Notify:   webhook,
			Logger:   logger,
		}

		s, err := gocron.NewScheduler()
		if err != nil {
			return fmt.Errorf("creating scheduler: %w", err)
		}
		s.Start()
		logger.Info("scheduler started")

		runTick := func(cleanupOnly bool) {
			ctx := cmd.Context()
			if timeoutSeconds > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
				defer cancel()
			}
			result, err := tick.Run(ctx, deps, time.Now(), cleanupOnly)
			if err != nil {
				logger.Error("tick completed with errors", "error", err, "cleanup_only", cleanupOnly)
				return
			}
			logger.Info("tick finished",
				"cleanup_only", cleanupOnly, "reaped", result.Reaped,
				"launch_attempts", result.LaunchAttempts, "launch_failures", result.LaunchFailures)
		}

		backupJob, err := s.NewJob(
			gocron.CronJob(backupSchedule, false),
			gocron.NewTask(func() { runTick(false) }),
			gocron.WithName("Backup Tick"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("scheduling backup tick: %w", err)
		}
		if nextRun, err := backupJob.NextRun(); err == nil {
			logger.Info("job scheduled", "job", backupJob.Name(), "schedule", backupSchedule, "next_run", nextRun.Format(time.RFC3339))
		}

		cleanupJob, err := s.NewJob(
			gocron.CronJob(cleanupSchedule, false),
			gocron.NewTask(func() { runTick(true) }),
			gocron.WithName("Cleanup Tick"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("scheduling cleanup tick: %w", err)
		}
		if nextRun, err := cleanupJob.NextRun(); err == nil {
			logger.Info("job scheduled", "job", cleanupJob.Name(), "schedule", cleanupSchedule, "next_run", nextRun.Format(time.RFC3339))
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Warn("shutting down scheduler due to system signal")
		return s.Shutdown()
	},
}

func init() {
	scheduleCommand.Flags().StringVar(&backupSchedule, "backup-schedule", "*/15 * * * *", "Cron schedule for the backup tick")
	scheduleCommand.Flags().StringVar(&cleanupSchedule, "cleanup-schedule", "0 * * * *", "Cron schedule for the cleanup-only tick")
	rootCommand.AddCommand(scheduleCommand)
}
