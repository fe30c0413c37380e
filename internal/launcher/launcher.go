// Package launcher prepares a source volume's point-in-time clone and
// launches the worker job that actually runs the external backup tool
// against it, grounded on original_source's backup_rbd_fs and extended
// with the raw-block pipeline spec.md adds on top.
package launcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/nyu-hpc/ceph-rbd-backup/internal/config"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/k8s"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/model"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/rbd"
)

const (
	activeDeadlineSeconds = int64(12 * 3600)
	antiAffinityWeight    = 50
	backupSnapshotName    = "backup"
	backupImagePrefix     = "backup-"
)

// storageTool is the narrow slice of *rbd.Tool the launcher needs, so
// tests can substitute a fake without shelling out to "rbd".
type storageTool interface {
	CleanStale(ctx context.Context, backupClone, snapshot rbd.Image) error
	SnapCreate(ctx context.Context, img rbd.Image) error
	SnapProtect(ctx context.Context, img rbd.Image) error
	Clone(ctx context.Context, snapshot, dest rbd.Image) error
}

// Deps bundles the launcher's collaborators.
type Deps struct {
	K8s    *k8s.Client
	RBD    storageTool
	Config config.Config
	Logger *slog.Logger
}

// Launch runs the shared preamble and then dispatches to the file-tree
// or raw-block job template, per spec.md §4.6.
func Launch(ctx context.Context, deps Deps, candidate model.Candidate, now time.Time) error {
	fqImage := rbd.Fq(candidate.Pool, candidate.Image)
	snapshot := rbd.Snap(candidate.Pool, candidate.Image, backupSnapshotName)
	backupClone := rbd.Fq(candidate.Pool, backupImagePrefix+candidate.Image)

	deps.Logger.Info("launching backup",
		"pv", candidate.PV, "pvc", candidate.Namespace+"/"+candidate.Name,
		"rbd", fqImage, "mode", candidate.Mode, "size", candidate.Size)

	if err := deps.RBD.CleanStale(ctx, backupClone, snapshot); err != nil {
		return fmt.Errorf("launcher: cleaning stale artifacts for pv %s: %w", candidate.PV, err)
	}

	if err := deps.K8s.PatchVolumeAnnotations(ctx, candidate.PV, map[string]string{
		model.AnnotationLastStart: model.RenderDate(now),
	}); err != nil {
		return fmt.Errorf("launcher: annotating last-start for pv %s: %w", candidate.PV, err)
	}

	if err := deps.RBD.SnapCreate(ctx, snapshot); err != nil {
		return fmt.Errorf("launcher: creating snapshot for pv %s: %w", candidate.PV, err)
	}
	if err := deps.RBD.SnapProtect(ctx, snapshot); err != nil {
		return fmt.Errorf("launcher: protecting snapshot for pv %s: %w", candidate.PV, err)
	}
	if err := deps.RBD.Clone(ctx, snapshot, backupClone); err != nil {
		return fmt.Errorf("launcher: cloning snapshot for pv %s: %w", candidate.PV, err)
	}

	switch candidate.Mode {
	case model.ModeRawBlock:
		return launchRawBlock(ctx, deps, candidate, backupClone, now)
	default:
		return launchFileTree(ctx, deps, candidate, backupClone, now)
	}
}

func hostToken(modeTag, namespace, claimName string) string {
	return fmt.Sprintf("rbd-%s-%s-nspvc-%s", modeTag, namespace, claimName)
}

func podAntiAffinity() *corev1.Affinity {
	return &corev1.Affinity{
		PodAntiAffinity: &corev1.PodAntiAffinity{
			PreferredDuringSchedulingIgnoredDuringExecution: []corev1.WeightedPodAffinityTerm{
				{
					Weight: antiAffinityWeight,
					PodAffinityTerm: corev1.PodAffinityTerm{
						LabelSelector: &metav1.LabelSelector{
							MatchLabels: map[string]string{model.LabelVolumeType: model.VolumeTypeRBD},
						},
						TopologyKey: "kubernetes.io/hostname",
					},
				},
			},
		},
	}
}

func jobMeta(generateNamePrefix, namespace string, labels map[string]string, startTime time.Time) metav1.ObjectMeta {
	return metav1.ObjectMeta{
		GenerateName: generateNamePrefix,
		Labels:       labels,
		Annotations: map[string]string{
			model.AnnotationStartTime: model.RenderDate(startTime),
		},
	}
}

func launchFileTree(ctx context.Context, deps Deps, candidate model.Candidate, backupClone rbd.Image, now time.Time) error {
	labels := k8s.JobLabels(model.ModeFileTree, candidate.PV, candidate.Namespace, candidate.Name, candidate.Pool, candidate.Image)
	host := hostToken("fs", candidate.Namespace, candidate.Name)
	backupImage := backupImagePrefix + candidate.Image

	env := envVars(map[string]model.EnvValue{
		"URL":             model.Secret(deps.Config.ResticSecretName, "url"),
		"HOST":            model.Lit(host),
		"RESTIC_PASSWORD": model.Secret(deps.Config.ResticSecretName, "password"),
	}, []string{"URL", "HOST", "RESTIC_PASSWORD"})

	job := &batchv1.Job{
		ObjectMeta: jobMeta(fmt.Sprintf("backup-rbd-fs-%s-", candidate.Namespace), deps.K8s.Namespace, labels, now),
		Spec: batchv1.JobSpec{
			ActiveDeadlineSeconds: ptr(activeDeadlineSeconds),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Affinity:      podAntiAffinity(),
					Containers: []corev1.Container{
						{
							Name:  "backup",
							Image: deps.Config.BackupImage,
							Args: []string{
								"/opt/restic", "-r", "$(URL)", "--host", "$(HOST)",
								"--exclude", "lost+found", "backup", "/data",
							},
							Env: env,
							VolumeMounts: []corev1.VolumeMount{
								{Name: "data", MountPath: "/data", ReadOnly: true},
							},
						},
					},
					Volumes: []corev1.Volume{
						{
							Name: "data",
							VolumeSource: corev1.VolumeSource{
								RBD: &corev1.RBDVolumeSource{
									CephMonitors: deps.Config.CephMonitors,
									RBDPool:      candidate.Pool,
									RBDImage:     backupImage,
									FSType:       candidate.FSType,
									SecretRef:    &corev1.LocalObjectReference{Name: deps.Config.CephSecretName},
									RadosUser:    deps.Config.CephUser,
								},
							},
						},
					},
				},
			},
		},
	}

	created, err := deps.K8s.CreateWorkerJob(ctx, job)
	if err != nil {
		return fmt.Errorf("launcher: creating file-tree job for pv %s: %w", candidate.PV, err)
	}
	deps.Logger.Info("created worker job", "job", created.Name, "pv", candidate.PV)
	return nil
}

func launchRawBlock(ctx context.Context, deps Deps, candidate model.Candidate, backupClone rbd.Image, now time.Time) error {
	labels := k8s.JobLabels(model.ModeRawBlock, candidate.PV, candidate.Namespace, candidate.Name, candidate.Pool, candidate.Image)
	host := hostToken("block", candidate.Namespace, candidate.Name)
	backupImage := backupImagePrefix + candidate.Image
	boundName := "backup-block-" + candidate.PV

	blockMode := corev1.PersistentVolumeBlock
	capacity := resource.MustParse("1Gi")
	if candidate.Size != "" {
		if q, err := resource.ParseQuantity(candidate.Size); err == nil {
			capacity = q
		}
	}

	pv := &corev1.PersistentVolume{
		ObjectMeta: metav1.ObjectMeta{Name: boundName, Labels: labels},
		Spec: corev1.PersistentVolumeSpec{
			Capacity:                      corev1.ResourceList{corev1.ResourceStorage: capacity},
			AccessModes:                    []corev1.PersistentVolumeAccessMode{corev1.ReadWriteMany},
			VolumeMode:                     &blockMode,
			PersistentVolumeReclaimPolicy:  corev1.PersistentVolumeReclaimRetain,
			PersistentVolumeSource: corev1.PersistentVolumeSource{
				RBD: &corev1.RBDPersistentVolumeSource{
					CephMonitors: deps.Config.CephMonitors,
					RBDPool:      candidate.Pool,
					RBDImage:     backupImage,
					SecretRef:    &corev1.SecretReference{Name: deps.Config.CephSecretName},
					RadosUser:    deps.Config.CephUser,
				},
			},
		},
	}
	if _, err := deps.K8s.CreateVolume(ctx, pv); err != nil {
		return fmt.Errorf("launcher: creating bound volume for pv %s: %w", candidate.PV, err)
	}

	storageClassName := ""
	claim := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Name: boundName, Namespace: deps.K8s.Namespace, Labels: labels},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes:      []corev1.PersistentVolumeAccessMode{corev1.ReadWriteMany},
			VolumeMode:       &blockMode,
			VolumeName:       boundName,
			StorageClassName: &storageClassName,
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{corev1.ResourceStorage: capacity},
			},
		},
	}
	if _, err := deps.K8s.CreateBoundClaim(ctx, claim); err != nil {
		return fmt.Errorf("launcher: creating bound claim for pv %s: %w", candidate.PV, err)
	}

	env := envVars(map[string]model.EnvValue{
		"URL":             model.Secret(deps.Config.ResticSecretName, "url"),
		"HOST":            model.Lit(host),
		"RESTIC_PASSWORD": model.Secret(deps.Config.ResticSecretName, "password"),
	}, []string{"URL", "HOST", "RESTIC_PASSWORD"})

	script := "rbd diff --whole-object --format=json " + string(rbd.Fq(candidate.Pool, candidate.Image)) +
		" > /tmp/layout.json && " +
		"streaming-qcow2-writer /disk /tmp/layout.json | " +
		"backup-tool --host=$(HOST) backup --stdin --stdin-filename disk.qcow2"

	job := &batchv1.Job{
		ObjectMeta: jobMeta(fmt.Sprintf("backup-rbd-block-%s-", candidate.Namespace), deps.K8s.Namespace, labels, now),
		Spec: batchv1.JobSpec{
			ActiveDeadlineSeconds: ptr(activeDeadlineSeconds),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Affinity:      podAntiAffinity(),
					Containers: []corev1.Container{
						{
							Name:    "backup",
							Image:   deps.Config.BackupImage,
							Command: []string{"/bin/sh", "-c"},
							Args:    []string{script},
							Env:     env,
							VolumeDevices: []corev1.VolumeDevice{
								{Name: "data", DevicePath: "/disk"},
							},
							VolumeMounts: []corev1.VolumeMount{
								{Name: "ceph-credentials", MountPath: "/var/run/secrets/ceph", ReadOnly: true},
							},
						},
					},
					Volumes: []corev1.Volume{
						{
							Name: "data",
							VolumeSource: corev1.VolumeSource{
								PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: boundName},
							},
						},
						{
							Name: "ceph-credentials",
							VolumeSource: corev1.VolumeSource{
								Secret: &corev1.SecretVolumeSource{SecretName: deps.Config.CephKeySecretName},
							},
						},
					},
				},
			},
		},
	}

	created, err := deps.K8s.CreateWorkerJob(ctx, job)
	if err != nil {
		return fmt.Errorf("launcher: creating raw-block job for pv %s: %w", candidate.PV, err)
	}
	deps.Logger.Info("created worker job", "job", created.Name, "pv", candidate.PV)
	return nil
}

func ptr[T any](v T) *T { return &v }
