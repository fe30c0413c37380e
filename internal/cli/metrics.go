package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nyu-hpc/ceph-rbd-backup/internal/config"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/k8s"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/logging"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/metrics"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/model"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/reaper"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/schedule"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/table"
)

var (
	bindAddress string
	printTable  bool
)

var metricsCommand = &cobra.Command{
	Use:     "metrics",
	GroupID: "backup",
	Short:   "Serve Prometheus metrics, or print the candidate table",
	Long:    `Starts an HTTP server exposing Prometheus metrics derived from the current fleet state. With --table, instead prints the eligible-volume table once to stdout and exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		logger := logging.New(logLevel, "metrics")

		client, err := k8s.NewClient(kubeconfigPath, cfg.Namespace)
		if err != nil {
			return fmt.Errorf("building k8s client: %w", err)
		}

		if printTable {
			return renderTable(cmd.Context(), client)
		}

		fmt.Println(headerStyle.Render("Ceph RBD Backup - Metrics"))

		registry := prometheus.NewRegistry()
		registry.MustRegister(metrics.New(client, logger))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

		logger.Info("metrics server listening", "address", bindAddress)
		return http.ListenAndServe(bindAddress, mux)
	},
}

func renderTable(ctx context.Context, client *k8s.Client) error {
	namespaces, err := client.ListNamespaces(ctx)
	if err != nil {
		return fmt.Errorf("listing namespaces: %w", err)
	}
	claims, err := client.ListClaims(ctx)
	if err != nil {
		return fmt.Errorf("listing claims: %w", err)
	}
	volumes, err := client.ListVolumes(ctx)
	if err != nil {
		return fmt.Errorf("listing volumes: %w", err)
	}
	jobs, err := client.ListWorkerJobs(ctx)
	if err != nil {
		return fmt.Errorf("listing worker jobs: %w", err)
	}

	candidates := schedule.BuildCandidates(namespaces, claims, volumes, client.Namespace, time.Now())
	schedule.SortByLastBackup(candidates)

	jobsByPV := map[string]int{}
	for _, job := range jobs {
		state := reaper.ClassifyJob(job)
		if !state.Completed {
			jobsByPV[job.Labels[model.LabelPVName]]++
		}
	}

	table.Render(os.Stdout, candidates, jobsByPV)
	return nil
}

func init() {
	metricsCommand.Flags().StringVar(&bindAddress, "bind-address", "0.0.0.0:8080", "Address to bind the metrics server")
	metricsCommand.Flags().BoolVar(&printTable, "table", false, "Print the eligible-volume table and exit instead of serving metrics")
	rootCommand.AddCommand(metricsCommand)
}
