// Package reaper classifies and reclaims the controller's worker jobs,
// grounded on original_source cleanup_jobs. Classification and the
// seven-step reclaim sequence are kept in one small package the way
// the teacher's internal/cloud/openstack groups one resource's
// lifecycle operations together.
package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	batchv1 "k8s.io/api/batch/v1"

	"github.com/nyu-hpc/ceph-rbd-backup/internal/errs"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/k8s"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/model"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/rbd"
)

// ttlAfterFinished is applied to a job once it's been reclaimed, so the
// platform's TTL controller removes the object after it's no longer
// needed for provenance.
const ttlAfterFinished = int32(23 * 3600)

// JobState is the result of classifying a WorkerJob, per spec.md §4.5
// step 1.
type JobState struct {
	Completed  bool
	Successful bool
}

// ClassifyJob inspects completion time and Failed condition. Condition
// type/status comparisons are case-insensitive: real clusters have been
// observed emitting both "Failed"/"True" and lowercase variants from
// older client libraries, and the original controller's reliance on the
// Python SDK's exact string match was a latent bug this adaptation
// closes (see the Open Question decision in the design notes).
func ClassifyJob(job batchv1.Job) JobState {
	failed := false
	for _, cond := range job.Status.Conditions {
		if strings.EqualFold(string(cond.Type), "Failed") && strings.EqualFold(string(cond.Status), "True") {
			failed = true
			break
		}
	}

	completed := job.Status.CompletionTime != nil || failed
	return JobState{
		Completed:  completed,
		Successful: completed && !failed,
	}
}

// storageReclaimer is the narrow slice of *rbd.Tool the reaper needs,
// so tests can substitute a fake without shelling out to "rbd".
type storageReclaimer interface {
	CleanStale(ctx context.Context, backupClone, snapshot rbd.Image) error
}

// Deps bundles the collaborators Reap needs, mirroring the small
// constructor-injected dependency structs the teacher uses for its
// workflow functions.
type Deps struct {
	K8s    *k8s.Client
	RBD    storageReclaimer
	Logger *slog.Logger
}

// Reap runs the seven-step reclaim algorithm for one job. When the job
// is not yet completed, it returns the job's pv-name label so the tick
// driver can add it to the in-flight set without a second pass over
// jobs.
func Reap(ctx context.Context, deps Deps, job batchv1.Job) (inFlightPV string, err error) {
	pvName := job.Labels[model.LabelPVName]
	pvcNamespace := job.Labels[model.LabelPVCNamespace]
	pvcName := job.Labels[model.LabelPVCName]
	pool := job.Labels[model.LabelRBDPool]
	image := job.Labels[model.LabelRBDName]

	state := ClassifyJob(job)
	if !state.Completed {
		return pvName, nil
	}

	if job.Annotations[model.AnnotationCleanedUp] == "true" {
		return "", nil
	}

	deps.Logger.Info("reaping worker job", "job", job.Name, "pv", pvName, "pvc", pvcNamespace+"/"+pvcName, "successful", state.Successful)

	startTime := job.Annotations[model.AnnotationStartTime]

	if state.Successful && pvcNamespace != "" {
		if err := propagateSuccess(ctx, deps, pvcNamespace, pvcName, startTime); err != nil {
			return "", fmt.Errorf("reaper: propagating success for job %s: %w", job.Name, err)
		}
	}

	if pool != "" && image != "" {
		backupClone := rbd.Fq(pool, "backup-"+image)
		snapshot := rbd.Snap(pool, image, "backup")
		if err := deps.RBD.CleanStale(ctx, backupClone, snapshot); err != nil {
			return "", fmt.Errorf("reaper: reclaiming storage for job %s: %w", job.Name, err)
		}
	}

	if pvName != "" {
		selector := k8s.PVSelector(pvName)
		if err := deps.K8s.DeleteClaimsBySelector(ctx, selector); err != nil {
			return "", fmt.Errorf("reaper: reclaiming bound claims for job %s: %w", job.Name, err)
		}
		if err := deps.K8s.DeleteVolumesBySelector(ctx, selector); err != nil {
			return "", fmt.Errorf("reaper: reclaiming volumes for job %s: %w", job.Name, err)
		}
		if err := deps.K8s.DeleteConfigMapsBySelector(ctx, selector); err != nil {
			return "", fmt.Errorf("reaper: reclaiming config maps for job %s: %w", job.Name, err)
		}
	}

	if err := seal(ctx, deps, job.Name); err != nil {
		return "", fmt.Errorf("reaper: sealing job %s: %w", job.Name, err)
	}

	return "", nil
}

// propagateSuccess advances the claim's last-backup annotation to
// startTime, unless it already carries a later one. A missing claim is
// not an error: spec.md §4.5 step 4.
func propagateSuccess(ctx context.Context, deps Deps, namespace, name, startTime string) error {
	claim, err := deps.K8s.GetClaim(ctx, namespace, name)
	if err != nil {
		if errs.IsNotFound(err) {
			deps.Logger.Info("source claim no longer exists, skipping annotation", "namespace", namespace, "name", name)
			return nil
		}
		return fmt.Errorf("reaper: fetching claim %s/%s: %w", namespace, name, err)
	}

	existing := claim.Annotations[model.AnnotationLastBackup]
	if existing != "" {
		existingTime, err := model.ParseDate(existing)
		if err == nil {
			startParsed, err := model.ParseDate(startTime)
			if err == nil && !existingTime.Before(startParsed) {
				return nil
			}
		}
	}

	return deps.K8s.PatchClaimAnnotations(ctx, namespace, name, map[string]string{
		model.AnnotationLastBackup: startTime,
	})
}

// seal marks the job cleaned-up and starts its TTL clock.
func seal(ctx context.Context, deps Deps, jobName string) error {
	return deps.K8s.SealJob(ctx, jobName, map[string]string{
		model.AnnotationCleanedUp: "true",
	}, ttlAfterFinished)
}
