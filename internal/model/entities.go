package model

import "time"

// VolumeMode mirrors spec.md §3: a volume is backed up either as a
// mounted filesystem tree or as a raw block device.
type VolumeMode string

const (
	ModeFileTree VolumeMode = "file-tree"
	ModeRawBlock VolumeMode = "raw-block"
)

// LabelValue returns the value this mode is recorded as in the
// controller's "volume-mode" label, per the required label set in
// spec.md §3.
func (m VolumeMode) LabelValue() string {
	if m == ModeRawBlock {
		return VolumeModeBlock
	}
	return VolumeModeFile
}

// Namespace is a logical tenant.
type Namespace struct {
	Name  string
	OptIn OptIn
}

// Claim is a request for a volume inside a namespace.
type Claim struct {
	Namespace        string
	Name             string
	BoundVolume      string
	OptIn            OptIn
	LastSuccess      *time.Time
}

// Volume is a provisioned block image.
type Volume struct {
	ID            string
	OptIn         OptIn
	Mode          VolumeMode
	Capacity      string
	Pool          string
	Image         string
	FSType        string
	ClusterID     string
	LastAttempt   *time.Time
	CreationTime  time.Time
}

// JobStatus classifies a WorkerJob's lifecycle state, per spec.md §3.
type JobStatus string

const (
	JobActive        JobStatus = "active"
	JobSucceeded     JobStatus = "succeeded"
	JobFailed        JobStatus = "failed"
	JobIndeterminate JobStatus = "indeterminate"
)

// WorkerJob is an external batch workload instance the controller
// created to perform one volume's backup.
type WorkerJob struct {
	Name           string
	Namespace      string
	Labels         map[string]string
	Annotations    map[string]string
	Status         JobStatus
	CompletionTime *time.Time
	CleanedUp      bool
}

// Candidate is a volume eligible for backup under opt-in rules, as
// produced by the eligibility filter (spec.md §4.3).
type Candidate struct {
	PV          string
	Mode        VolumeMode
	Namespace   string
	Name        string
	LastAttempt *time.Time
	LastBackup  *time.Time
	Pool        string
	Image       string
	FSType      string
	ClusterID   string
	Size        string
}

// EnvValue is the tagged-union env-var value from spec.md §9: either a
// literal string or a reference into a named secret key.
type EnvValue struct {
	Literal   string
	SecretRef *SecretKeyRef
}

// SecretKeyRef names a key inside a named secret.
type SecretKeyRef struct {
	SecretName string
	Key        string
}

// Lit builds a literal EnvValue.
func Lit(v string) EnvValue { return EnvValue{Literal: v} }

// Secret builds a secret-reference EnvValue.
func Secret(name, key string) EnvValue {
	return EnvValue{SecretRef: &SecretKeyRef{SecretName: name, Key: key}}
}
