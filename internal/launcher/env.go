package launcher

import (
	corev1 "k8s.io/api/core/v1"

	"github.com/nyu-hpc/ceph-rbd-backup/internal/model"
)

// envVar renders one of the tagged-union EnvValues into a corev1.EnvVar,
// the Go counterpart of original_source's format_env helper.
func envVar(name string, v model.EnvValue) corev1.EnvVar {
	if v.SecretRef != nil {
		return corev1.EnvVar{
			Name: name,
			ValueFrom: &corev1.EnvVarSource{
				SecretKeyRef: &corev1.SecretKeySelector{
					LocalObjectReference: corev1.LocalObjectReference{Name: v.SecretRef.SecretName},
					Key:                  v.SecretRef.Key,
				},
			},
		}
	}
	return corev1.EnvVar{Name: name, Value: v.Literal}
}

// envVars renders a whole ordered env-var list.
func envVars(entries map[string]model.EnvValue, order []string) []corev1.EnvVar {
	out := make([]corev1.EnvVar, 0, len(order))
	for _, name := range order {
		out = append(out, envVar(name, entries[name]))
	}
	return out
}
