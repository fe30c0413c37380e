package tick

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/nyu-hpc/ceph-rbd-backup/internal/config"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/k8s"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/launcher"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/rbd"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/reaper"
)

type noopStorage struct{}

func (noopStorage) CleanStale(ctx context.Context, backupClone, snapshot rbd.Image) error { return nil }
func (noopStorage) SnapCreate(ctx context.Context, img rbd.Image) error                   { return nil }
func (noopStorage) SnapProtect(ctx context.Context, img rbd.Image) error                  { return nil }
func (noopStorage) Clone(ctx context.Context, snapshot, dest rbd.Image) error              { return nil }

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunCleanupOnlySkipsLaunch(t *testing.T) {
	cs := fake.NewSimpleClientset()
	client := k8s.NewFromClientset(cs, "ceph-backup")
	storage := noopStorage{}

	deps := Deps{
		K8s:    client,
		Reaper: reaper.Deps{K8s: client, RBD: storage, Logger: silentLogger()},
		Launcher: launcher.Deps{
			K8s:    client,
			RBD:    storage,
			Config: config.Config{CephMonitors: []string{"mon"}, CephUser: "admin"},
			Logger: silentLogger(),
		},
		Logger: silentLogger(),
	}

	result, err := Run(context.Background(), deps, time.Now(), true)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.LaunchAttempts != 0 {
		t.Errorf("expected cleanup-only tick to attempt no launches, got %d", result.LaunchAttempts)
	}
}

func TestRunLaunchesDueVolume(t *testing.T) {
	mode := corev1.PersistentVolumeFilesystem
	pv := &corev1.PersistentVolume{
		ObjectMeta: metav1.ObjectMeta{
			Name:              "pv-1",
			CreationTimestamp: metav1.NewTime(time.Now().Add(-72 * time.Hour)),
		},
		Spec: corev1.PersistentVolumeSpec{
			VolumeMode: &mode,
			PersistentVolumeSource: corev1.PersistentVolumeSource{
				CSI: &corev1.CSIPersistentVolumeSource{
					Driver: "rbd.csi.ceph.com",
					VolumeAttributes: map[string]string{
						"pool": "rbd", "imageName": "image-1", "clusterID": "cluster-1",
					},
					FSType: "ext4",
				},
			},
		},
	}
	claim := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Namespace: "app", Name: "claim-1"},
		Spec:       corev1.PersistentVolumeClaimSpec{VolumeName: "pv-1"},
	}

	cs := fake.NewSimpleClientset(pv, claim)
	client := k8s.NewFromClientset(cs, "ceph-backup")
	storage := noopStorage{}

	deps := Deps{
		K8s:    client,
		Reaper: reaper.Deps{K8s: client, RBD: storage, Logger: silentLogger()},
		Launcher: launcher.Deps{
			K8s:    client,
			RBD:    storage,
			Config: config.Config{CephMonitors: []string{"mon"}, CephUser: "admin", BackupImage: "restic"},
			Logger: silentLogger(),
		},
		Logger: silentLogger(),
	}

	result, err := Run(context.Background(), deps, time.Now(), false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.LaunchAttempts != 1 || result.LaunchFailures != 0 {
		t.Errorf("expected exactly one successful launch attempt, got %+v", result)
	}

	jobs, err := cs.BatchV1().Jobs("ceph-backup").List(context.Background(), metav1.ListOptions{})
	if err != nil {
		t.Fatalf("listing jobs: %v", err)
	}
	if len(jobs.Items) != 1 {
		t.Fatalf("expected one worker job to be created, got %d", len(jobs.Items))
	}
}
