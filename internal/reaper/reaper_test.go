package reaper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/nyu-hpc/ceph-rbd-backup/internal/k8s"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/model"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/rbd"
)

type fakeRBD struct {
	cleaned []rbd.Image
}

func (f *fakeRBD) CleanStale(ctx context.Context, backupClone, snapshot rbd.Image) error {
	f.cleaned = append(f.cleaned, backupClone, snapshot)
	return nil
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseJob(name string) batchv1.Job {
	return batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "ceph-backup",
			Labels: map[string]string{
				model.LabelVolumeType:   model.VolumeTypeRBD,
				model.LabelPVName:       "pv-1",
				model.LabelPVCNamespace: "app",
				model.LabelPVCName:      "claim-1",
				model.LabelRBDPool:      "rbd",
				model.LabelRBDName:      "image-1",
			},
			Annotations: map[string]string{
				model.AnnotationStartTime: "2026-01-01T00:00:00Z",
			},
		},
	}
}

func TestClassifyJobActiveHasNoConditions(t *testing.T) {
	job := baseJob("job-1")
	state := ClassifyJob(job)
	if state.Completed {
		t.Errorf("expected an active job with no completion time to be incomplete")
	}
}

func TestClassifyJobFailedConditionCaseInsensitive(t *testing.T) {
	job := baseJob("job-1")
	job.Status.Conditions = []batchv1.JobCondition{
		{Type: "failed", Status: "true"},
	}
	state := ClassifyJob(job)
	if !state.Completed || state.Successful {
		t.Errorf("expected lowercase failed/true condition to classify as completed+unsuccessful, got %+v", state)
	}
}

func TestClassifyJobSucceeded(t *testing.T) {
	job := baseJob("job-1")
	now := metav1.NewTime(time.Now())
	job.Status.CompletionTime = &now
	state := ClassifyJob(job)
	if !state.Completed || !state.Successful {
		t.Errorf("expected completed job with no Failed condition to be successful, got %+v", state)
	}
}

func TestReapIncompleteJobReturnsInFlightPV(t *testing.T) {
	job := baseJob("job-1")
	cs := fake.NewSimpleClientset()
	deps := Deps{K8s: k8s.NewFromClientset(cs, "ceph-backup"), RBD: &fakeRBD{}, Logger: silentLogger()}

	pv, err := Reap(context.Background(), deps, job)
	if err != nil {
		t.Fatalf("Reap() error = %v", err)
	}
	if pv != "pv-1" {
		t.Errorf("Reap() in-flight pv = %q, want %q", pv, "pv-1")
	}
}

func TestReapAlreadyCleanedUpIsNoop(t *testing.T) {
	job := baseJob("job-1")
	completion := metav1.NewTime(time.Now())
	job.Status.CompletionTime = &completion
	job.Annotations[model.AnnotationCleanedUp] = "true"

	rbdFake := &fakeRBD{}
	cs := fake.NewSimpleClientset()
	deps := Deps{K8s: k8s.NewFromClientset(cs, "ceph-backup"), RBD: rbdFake, Logger: silentLogger()}

	pv, err := Reap(context.Background(), deps, job)
	if err != nil {
		t.Fatalf("Reap() error = %v", err)
	}
	if pv != "" {
		t.Errorf("expected no in-flight pv for an already cleaned-up job, got %q", pv)
	}
	if len(rbdFake.cleaned) != 0 {
		t.Errorf("expected no storage reclamation for an already cleaned-up job")
	}
}

func TestReapSuccessfulJobPropagatesAndReclaims(t *testing.T) {
	job := baseJob("job-1")
	completion := metav1.NewTime(time.Now())
	job.Status.CompletionTime = &completion

	claim := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Namespace: "app", Name: "claim-1"},
	}

	rbdFake := &fakeRBD{}
	cs := fake.NewSimpleClientset(claim, &job)
	deps := Deps{K8s: k8s.NewFromClientset(cs, "ceph-backup"), RBD: rbdFake, Logger: silentLogger()}

	pv, err := Reap(context.Background(), deps, job)
	if err != nil {
		t.Fatalf("Reap() error = %v", err)
	}
	if pv != "" {
		t.Errorf("expected no in-flight pv for a completed job, got %q", pv)
	}

	updated, err := cs.CoreV1().PersistentVolumeClaims("app").Get(context.Background(), "claim-1", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("fetching claim: %v", err)
	}
	if updated.Annotations[model.AnnotationLastBackup] != "2026-01-01T00:00:00Z" {
		t.Errorf("expected last-backup to be propagated, got %q", updated.Annotations[model.AnnotationLastBackup])
	}

	if len(rbdFake.cleaned) != 2 {
		t.Errorf("expected storage reclamation for a successful job, got %v", rbdFake.cleaned)
	}

	updatedJob, err := cs.BatchV1().Jobs("ceph-backup").Get(context.Background(), "job-1", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("fetching job: %v", err)
	}
	if updatedJob.Annotations[model.AnnotationCleanedUp] != "true" {
		t.Errorf("expected job to be sealed cleaned-up, got annotations %v", updatedJob.Annotations)
	}
}

func TestReapSkipsPropagationWhenClaimAlreadyNewer(t *testing.T) {
	job := baseJob("job-1")
	completion := metav1.NewTime(time.Now())
	job.Status.CompletionTime = &completion

	claim := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{
			Namespace:   "app",
			Name:        "claim-1",
			Annotations: map[string]string{model.AnnotationLastBackup: "2026-01-02T00:00:00Z"},
		},
	}

	cs := fake.NewSimpleClientset(claim, &job)
	deps := Deps{K8s: k8s.NewFromClientset(cs, "ceph-backup"), RBD: &fakeRBD{}, Logger: silentLogger()}

	if _, err := Reap(context.Background(), deps, job); err != nil {
		t.Fatalf("Reap() error = %v", err)
	}

	updated, err := cs.CoreV1().PersistentVolumeClaims("app").Get(context.Background(), "claim-1", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("fetching claim: %v", err)
	}
	if updated.Annotations[model.AnnotationLastBackup] != "2026-01-02T00:00:00Z" {
		t.Errorf("expected newer last-backup to be preserved, got %q", updated.Annotations[model.AnnotationLastBackup])
	}
}

func TestReapSuccessfulJobMissingClaimIsNoop(t *testing.T) {
	job := baseJob("job-1")
	completion := metav1.NewTime(time.Now())
	job.Status.CompletionTime = &completion

	rbdFake := &fakeRBD{}
	cs := fake.NewSimpleClientset(&job) // no claim "app/claim-1"
	deps := Deps{K8s: k8s.NewFromClientset(cs, "ceph-backup"), RBD: rbdFake, Logger: silentLogger()}

	pv, err := Reap(context.Background(), deps, job)
	if err != nil {
		t.Fatalf("Reap() error = %v, want nil for a missing source claim", err)
	}
	if pv != "" {
		t.Errorf("expected no in-flight pv for a completed job, got %q", pv)
	}
	if len(rbdFake.cleaned) != 2 {
		t.Errorf("expected storage reclamation to still run despite the missing claim, got %v", rbdFake.cleaned)
	}
}

var errTransient = errors.New("etcdserver: request timed out")

func TestReapPropagatesTransientClaimLookupError(t *testing.T) {
	job := baseJob("job-1")
	completion := metav1.NewTime(time.Now())
	job.Status.CompletionTime = &completion

	cs := fake.NewSimpleClientset()
	cs.PrependReactor("get", "persistentvolumeclaims", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errTransient
	})
	deps := Deps{K8s: k8s.NewFromClientset(cs, "ceph-backup"), RBD: &fakeRBD{}, Logger: silentLogger()}

	_, err := Reap(context.Background(), deps, job)
	if err == nil {
		t.Fatal("Reap() error = nil, want a propagated error for a transient claim lookup failure")
	}
	if !errors.Is(err, errTransient) {
		t.Errorf("Reap() error = %v, want it to wrap the transient lookup error", err)
	}
}
