// Package tick wires the orchestrator client, reaper, eligibility
// filter, scheduler, and launcher into a single tick transaction, the
// way the teacher's workflow.RunProjectSnapshotWorkflow sequences a
// whole run: client init, context/timeout, then per-item work that
// keeps going across individual failures.
package tick

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nyu-hpc/ceph-rbd-backup/internal/k8s"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/launcher"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/model"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/notify"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/reaper"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/schedule"
)

// Deps bundles every collaborator a tick needs.
type Deps struct {
	K8s       *k8s.Client
	Reaper    reaper.Deps
	Launcher  launcher.Deps
	Notify    notify.Webhook
	Logger    *slog.Logger
}

// Result summarizes one tick's outcome, mirroring the success/error
// counters the teacher's processVolumeGroup aggregates.
type Result struct {
	RunID          string
	Reaped         int
	InFlight       []string
	LaunchAttempts int
	LaunchFailures int
}

// Run executes one tick: reap finished jobs, and unless cleanupOnly is
// set, select and launch backups for the volumes due right now. Errors
// from independent units of work are accumulated with errors.Join so
// one volume's failure never prevents another's attempt, per spec.md §7.
func Run(ctx context.Context, deps Deps, now time.Time, cleanupOnly bool) (Result, error) {
	runID := uuid.NewString()
	logger := deps.Logger.With("run_id", runID)
	logger.Info("tick started", "cleanup_only", cleanupOnly, "now", model.RenderDate(now))

	result := Result{RunID: runID}
	var tickErr error

	jobs, err := deps.K8s.ListWorkerJobs(ctx)
	if err != nil {
		return result, fmt.Errorf("tick: listing worker jobs: %w", err)
	}

	inFlight := map[string]string{}
	for _, job := range jobs {
		pv, err := reaper.Reap(ctx, deps.Reaper, job)
		if err != nil {
			tickErr = errors.Join(tickErr, fmt.Errorf("tick: reaping job %s: %w", job.Name, err))
			continue
		}
		if pv != "" {
			inFlight[pv] = job.Name
			continue
		}
		result.Reaped++
	}
	for pv := range inFlight {
		result.InFlight = append(result.InFlight, pv)
	}

	if cleanupOnly {
		logger.Info("tick finished (cleanup-only)", "reaped", result.Reaped)
		return result, tickErr
	}

	namespaces, err := deps.K8s.ListNamespaces(ctx)
	if err != nil {
		return result, errors.Join(tickErr, fmt.Errorf("tick: listing namespaces: %w", err))
	}
	claims, err := deps.K8s.ListClaims(ctx)
	if err != nil {
		return result, errors.Join(tickErr, fmt.Errorf("tick: listing claims: %w", err))
	}
	volumes, err := deps.K8s.ListVolumes(ctx)
	if err != nil {
		return result, errors.Join(tickErr, fmt.Errorf("tick: listing volumes: %w", err))
	}

	candidates := schedule.BuildCandidates(namespaces, claims, volumes, deps.K8s.Namespace, now)
	due := schedule.Select(candidates, now)

	for _, candidate := range due {
		if jobName, ok := inFlight[candidate.PV]; ok {
			logger.Info("skipping backup, job exists", "pv", candidate.PV, "job", jobName)
			continue
		}

		result.LaunchAttempts++
		if err := launcher.Launch(ctx, deps.Launcher, candidate, now); err != nil {
			result.LaunchFailures++
			tickErr = errors.Join(tickErr, fmt.Errorf("tick: launching backup for pv %s: %w", candidate.PV, err))

			if notifyErr := deps.Notify.Notify(notify.LaunchFailure{
				Service:   "ceph-rbd-backup",
				Namespace: candidate.Namespace,
				Claim:     candidate.Name,
				PV:        candidate.PV,
				Message:   err.Error(),
			}); notifyErr != nil {
				logger.Warn("failed to send launch-failure notification", "error", notifyErr)
			}
			continue
		}
	}

	logger.Info("tick finished",
		"reaped", result.Reaped, "in_flight", len(result.InFlight),
		"launch_attempts", result.LaunchAttempts, "launch_failures", result.LaunchFailures)

	return result, tickErr
}
