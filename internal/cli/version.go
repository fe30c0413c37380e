package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	BackupVersion, BackupCommit, BackupDate string
)

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Display version, commit hash, build date, and other build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ceph-rbd-backup version: %s\n", BackupVersion)
		fmt.Printf("Commit: %s\n", BackupCommit)
		fmt.Printf("Built: %s\n", BackupDate)
	},
}

func init() {
	rootCommand.AddCommand(versionCommand)
}
