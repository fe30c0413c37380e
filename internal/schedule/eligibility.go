// Package schedule holds the pure, I/O-free decision logic of the
// backup controller: which volumes are eligible for backup right now,
// and how many of them to actually run this tick. Keeping these free
// of client-go and os/exec, in the spirit of the teacher's
// internal/policy package, makes them exercisable by plain table-driven
// tests.
package schedule

import (
	"sort"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/nyu-hpc/ceph-rbd-backup/internal/k8s"
	"github.com/nyu-hpc/ceph-rbd-backup/internal/model"
)

// defaultBackoff is applied to a volume with no recorded last-attempt,
// so a freshly-provisioned volume isn't treated as having just been
// attempted, per spec.md §4.2.
const defaultBackoff = 18 * time.Hour

// BuildCandidates computes every RBD volume eligible for backup, given
// the fleet's namespaces, claims and volumes and the controller's own
// reserved namespace (claims inside it are never backed up). It
// mirrors the original list_volumes_to_backup three-pass join.
func BuildCandidates(namespaces []corev1.Namespace, claims []corev1.PersistentVolumeClaim, volumes []corev1.PersistentVolume, reservedNamespace string, now time.Time) []model.Candidate {
	nsOptIn := make(map[string]model.OptIn, len(namespaces))
	for _, ns := range namespaces {
		nsOptIn[ns.Name] = model.ParseOptIn(ns.Annotations[model.AnnotationOptIn])
	}

	type claimInfo struct {
		namespace, name string
		optIn           model.OptIn
		lastBackup      *time.Time
	}
	claimByVolume := make(map[string]claimInfo, len(claims))
	for _, pvc := range claims {
		if pvc.Spec.VolumeName == "" {
			continue
		}
		info := claimInfo{
			namespace: pvc.Namespace,
			name:      pvc.Name,
			optIn:     model.ParseOptIn(pvc.Annotations[model.AnnotationOptIn]),
		}
		if raw := pvc.Annotations[model.AnnotationLastBackup]; raw != "" {
			if t, err := model.ParseDate(raw); err == nil {
				info.lastBackup = &t
			}
		}
		claimByVolume[pvc.Spec.VolumeName] = info
	}

	var candidates []model.Candidate
	for _, pv := range volumes {
		if !k8s.IsRBDVolume(pv) {
			continue
		}

		claim, ok := claimByVolume[pv.Name]
		if !ok {
			// PersistentVolume without a matching claim: nothing to
			// annotate or back up.
			continue
		}
		if claim.namespace == reservedNamespace {
			continue
		}

		volOptIn := model.ParseOptIn(pv.Annotations[model.AnnotationOptIn])
		if !model.Resolve(volOptIn, nsOptIn[claim.namespace], claim.optIn) {
			continue
		}

		attrs := pv.Spec.CSI.VolumeAttributes
		lastAttempt := defaultLastAttempt(pv, now)
		if raw := pv.Annotations[model.AnnotationLastStart]; raw != "" {
			if t, err := model.ParseDate(raw); err == nil {
				lastAttempt = &t
			}
		}

		mode := model.ModeFileTree
		if pv.Spec.VolumeMode != nil && *pv.Spec.VolumeMode == corev1.PersistentVolumeBlock {
			mode = model.ModeRawBlock
		}

		size := ""
		if cap, ok := pv.Spec.Capacity[corev1.ResourceStorage]; ok {
			size = cap.String()
		}

		candidates = append(candidates, model.Candidate{
			PV:          pv.Name,
			Mode:        mode,
			Namespace:   claim.namespace,
			Name:        claim.name,
			LastAttempt: lastAttempt,
			LastBackup:  claim.lastBackup,
			Pool:        attrs["pool"],
			Image:       attrs["imageName"],
			FSType:      pv.Spec.CSI.FSType,
			ClusterID:   attrs["clusterID"],
			Size:        size,
		})
	}

	return candidates
}

// defaultLastAttempt backs off from a volume's creation time when no
// last-start annotation is recorded yet, per spec.md §4.2.
func defaultLastAttempt(pv corev1.PersistentVolume, now time.Time) *time.Time {
	t := pv.CreationTimestamp.Time.Add(-defaultBackoff)
	return &t
}

// SortByLastBackup orders candidates oldest-last-backup-first, with
// never-backed-up volumes sorting before any that have a recorded
// timestamp, matching the original's "time_zero" sentinel.
func SortByLastBackup(candidates []model.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return lastBackupOrZero(candidates[i]).Before(lastBackupOrZero(candidates[j]))
	})
}

func lastBackupOrZero(c model.Candidate) time.Time {
	if c.LastBackup == nil {
		return time.Unix(0, 0).UTC()
	}
	return *c.LastBackup
}
