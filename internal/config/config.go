// Package config loads the controller's environment variables, per
// spec.md §6, via viper the way the teacher's root command binds
// cloud/timeout/log-level.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds every environment-derived setting the controller needs.
type Config struct {
	CephMonitors      []string
	CephUser          string
	CephSecretName    string
	CephKeySecretName string
	ResticSecretName  string
	Namespace         string
	BackupImage       string
	BackupPullPolicy  string
}

// Load reads the environment per spec.md §6, applying the documented
// defaults and rejecting empty monitor entries.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	v.SetDefault("CEPH_SECRET_NAME", "ceph")
	v.SetDefault("CEPH_KEY_SECRET_NAME", "ceph-key")
	v.SetDefault("RESTIC_SECRET_NAME", "restic")
	v.SetDefault("NAMESPACE", "ceph-backup")
	v.SetDefault("BACKUP_IMAGE_PULL_POLICY", "IfNotPresent")

	for _, key := range []string{
		"CEPH_MONITORS", "CEPH_USER", "CEPH_SECRET_NAME", "CEPH_KEY_SECRET_NAME",
		"RESTIC_SECRET_NAME", "NAMESPACE", "BACKUP_IMAGE", "BACKUP_IMAGE_PULL_POLICY",
	} {
		_ = v.BindEnv(key)
	}

	user := v.GetString("CEPH_USER")
	if user == "" {
		return Config{}, fmt.Errorf("config: CEPH_USER is required")
	}

	var monitors []string
	for _, mon := range strings.Split(v.GetString("CEPH_MONITORS"), ",") {
		if mon != "" {
			monitors = append(monitors, mon)
		}
	}
	if len(monitors) == 0 {
		return Config{}, fmt.Errorf("config: CEPH_MONITORS must contain at least one non-empty entry")
	}

	return Config{
		CephMonitors:      monitors,
		CephUser:          user,
		CephSecretName:    v.GetString("CEPH_SECRET_NAME"),
		CephKeySecretName: v.GetString("CEPH_KEY_SECRET_NAME"),
		ResticSecretName:  v.GetString("RESTIC_SECRET_NAME"),
		Namespace:         v.GetString("NAMESPACE"),
		BackupImage:       v.GetString("BACKUP_IMAGE"),
		BackupPullPolicy:  v.GetString("BACKUP_IMAGE_PULL_POLICY"),
	}, nil
}
