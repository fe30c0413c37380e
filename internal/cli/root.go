// Package cli wires the cobra command tree: backup, metrics, schedule,
// version, grounded on the teacher's internal/cli/root.go.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	kubeconfigPath string
	logLevel       string
	timeoutSeconds int

	webhookURL      string
	webhookUsername string
	webhookPassword string
)

var rootCommand = &cobra.Command{
	Use:     "ceph-rbd-backup",
	Aliases: []string{"cbkp"},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		if viper.GetString("CEPH_USER") == "" {
			return fmt.Errorf("required environment variable CEPH_USER not set")
		}
		if viper.GetString("CEPH_MONITORS") == "" {
			return fmt.Errorf("required environment variable CEPH_MONITORS not set")
		}
		return nil
	},
	Short: "Backs up Ceph RBD-backed Kubernetes volumes on a schedule",
	Long: `ceph-rbd-backup snapshots and clones Ceph RBD-backed PersistentVolumes
on a Kubernetes cluster and hands each clone to an external backup tool,
reclaiming storage and orchestrator state once each run completes.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCommand.Execute()
}

func init() {
	rootCommand.AddGroup(&cobra.Group{ID: "backup", Title: "Backup"})

	rootCommand.PersistentFlags().StringVar(&kubeconfigPath, "kubeconfig", "", "Path to a kubeconfig file (default: in-cluster config)")
	rootCommand.PersistentFlags().IntVar(&timeoutSeconds, "timeout", 0, "Tick execution timeout in seconds (0 = no deadline)")
	rootCommand.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	rootCommand.PersistentFlags().StringVar(&webhookURL, "webhook-url", "", "Webhook URL for launch-failure alerts")
	rootCommand.PersistentFlags().StringVar(&webhookUsername, "webhook-username", "", "Webhook username for alerting")
	rootCommand.PersistentFlags().StringVar(&webhookPassword, "webhook-password", "", "Webhook password for alerting")

	viper.SetEnvPrefix("")
	viper.AutomaticEnv()
}
