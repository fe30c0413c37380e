package k8s

import (
	"fmt"

	"github.com/nyu-hpc/ceph-rbd-backup/internal/model"
)

// RBDJobSelector selects every worker job the controller owns, per
// spec.md §4.5 ("label volume-type=rbd").
const RBDJobSelector = model.LabelVolumeType + "=" + model.VolumeTypeRBD

// PVSelector builds the selector used to reclaim every artifact that
// carries a given job's pv-name label, per spec.md §3 invariant 3.
func PVSelector(pvName string) string {
	return fmt.Sprintf("%s=%s", model.LabelPVName, pvName)
}

// JobLabels builds the required label set from spec.md §3 for a worker
// job (and, in raw-block mode, its derived bound volume and claim).
func JobLabels(mode model.VolumeMode, pvName, pvcNamespace, pvcName, pool, image string) map[string]string {
	return map[string]string{
		model.LabelVolumeType:   model.VolumeTypeRBD,
		model.LabelVolumeMode:   mode.LabelValue(),
		model.LabelPVName:       pvName,
		model.LabelPVCNamespace: pvcNamespace,
		model.LabelPVCName:      pvcName,
		model.LabelRBDPool:      pool,
		model.LabelRBDName:      image,
	}
}
