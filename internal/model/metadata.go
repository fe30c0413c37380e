// Package model defines the entities, label/annotation keys, and wire
// formats shared by every component of the backup controller.
package model

import (
	"fmt"
	"strings"
	"time"
)

// MetadataPrefix namespaces every label and annotation the controller
// owns on orchestrator objects.
const MetadataPrefix = "cephbackup.nyu.edu/"

// Label keys, all prefixed with MetadataPrefix. These form the sole
// authoritative link between a worker job and the artifacts it owns.
const (
	LabelVolumeType    = MetadataPrefix + "volume-type"
	LabelVolumeMode    = MetadataPrefix + "volume-mode"
	LabelPVName        = MetadataPrefix + "pv-name"
	LabelPVCNamespace  = MetadataPrefix + "pvc-namespace"
	LabelPVCName       = MetadataPrefix + "pvc-name"
	LabelRBDPool       = MetadataPrefix + "rbd-pool"
	LabelRBDName       = MetadataPrefix + "rbd-name"
	VolumeTypeRBD      = "rbd"
	VolumeModeFile     = "filesystem"
	VolumeModeBlock    = "block"
)

// Annotation keys.
const (
	AnnotationLastStart  = MetadataPrefix + "last-start"
	AnnotationLastBackup = MetadataPrefix + "last-backup"
	AnnotationStartTime  = MetadataPrefix + "start-time"
	AnnotationCleanedUp  = MetadataPrefix + "cleaned-up"
	AnnotationOptIn      = MetadataPrefix + "backup"
)

// dateLayout is the wire format: ISO-8601 UTC, second precision,
// trailing literal "Z". Always exactly 20 characters.
const dateLayout = "2006-01-02T15:04:05Z"

// RenderDate formats t as the controller's canonical wire timestamp.
// t is normalized to UTC before formatting.
func RenderDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// ParseDate parses the controller's canonical wire timestamp. It
// rejects any string that isn't exactly 20 characters ending in "Z",
// matching the strictness of the format the whole fleet writes.
func ParseDate(s string) (time.Time, error) {
	if len(s) != 20 || !strings.HasSuffix(s, "Z") {
		return time.Time{}, fmt.Errorf("model: malformed timestamp %q", s)
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("model: parsing timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// OptIn is a tri-state opt-in flag. The zero value is Unset.
type OptIn int

const (
	Unset OptIn = iota
	True
	False
)

// ParseOptIn reads the "backup" annotation value per spec.md §3:
// 1/yes/true -> True, 0/no/false -> False, anything else (including
// absence) -> Unset.
func ParseOptIn(raw string) OptIn {
	switch strings.ToLower(raw) {
	case "1", "yes", "true":
		return True
	case "0", "no", "false":
		return False
	default:
		return Unset
	}
}

// Resolve implements the opt-in resolution in spec.md §3: the volume's
// flag wins if set; otherwise the attempt proceeds unless either the
// namespace or the claim opt-in is explicitly False.
func Resolve(volume, namespace, claim OptIn) bool {
	if volume != Unset {
		return volume == True
	}
	if namespace == False || claim == False {
		return false
	}
	return true
}
