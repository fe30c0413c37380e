// Package rbd wraps the "rbd" CLI the way the teacher's cloud/openstack
// client wraps gophercloud calls: one small method per operation, each
// logging the invocation and its outcome, errors wrapped with context.
// Unlike the openstack client there is no SDK for Ceph's CLI tools, so
// this adapter shells out via os/exec, following the original Python
// controller's call/check_call wrappers.
package rbd

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Tool runs "rbd" subcommands against one Ceph cluster.
type Tool struct {
	logger *slog.Logger
}

// New builds a Tool that logs through logger.
func New(logger *slog.Logger) *Tool {
	return &Tool{logger: logger}
}

// Image is a pool-qualified RBD image or snapshot reference, e.g.
// "rbd/backup-pvc-0001" or "rbd/pvc-0001@backup".
type Image string

// Fq builds an Image reference for pool/name.
func Fq(pool, name string) Image {
	return Image(pool + "/" + name)
}

// Snap builds an Image reference for pool/name@snap.
func Snap(pool, name, snap string) Image {
	return Image(pool + "/" + name + "@" + snap)
}

// run executes an rbd subcommand, logging the invocation and its exit
// code the way the original controller's call() did, and returns its
// stdout (stderr is not captured) for callers that need to parse it.
func (t *Tool) run(ctx context.Context, args ...string) (string, int, error) {
	t.logger.Info("rbd invocation", "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, "rbd", args...)
	var out bytes.Buffer
	cmd.Stdout = &out

	err := cmd.Run()
	code := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
	} else if err != nil {
		return "", -1, fmt.Errorf("rbd: launching %v: %w", args, err)
	}

	t.logger.Info("rbd result", "args", strings.Join(args, " "), "exit_code", code)
	return out.String(), code, nil
}

// Exists reports whether img currently exists, via "rbd info".
func (t *Tool) Exists(ctx context.Context, img Image) (bool, error) {
	_, code, err := t.run(ctx, "info", string(img))
	if err != nil {
		return false, err
	}
	return code == 0, nil
}

// check runs args and demands a zero exit code, mirroring check_call.
func (t *Tool) check(ctx context.Context, args ...string) error {
	_, code, err := t.run(ctx, args...)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("rbd: command %v exited %d", args, code)
	}
	return nil
}

// Remove deletes an image (or clone). Callers should confirm Exists
// first if removal is conditional, matching the original preamble.
func (t *Tool) Remove(ctx context.Context, img Image) error {
	return t.check(ctx, "rm", string(img))
}

// SnapUnprotect unprotects a snapshot. Unlike Remove, failures here are
// tolerated by callers (the snapshot may not have been protected),
// hence it returns the raw exit code rather than erroring on nonzero.
func (t *Tool) SnapUnprotect(ctx context.Context, img Image) (int, error) {
	_, code, err := t.run(ctx, "snap", "unprotect", string(img))
	return code, err
}

// SnapRemove deletes a snapshot.
func (t *Tool) SnapRemove(ctx context.Context, img Image) error {
	return t.check(ctx, "snap", "rm", string(img))
}

// SnapCreate creates a snapshot.
func (t *Tool) SnapCreate(ctx context.Context, img Image) error {
	return t.check(ctx, "snap", "create", string(img))
}

// SnapProtect protects a snapshot so it can be cloned.
func (t *Tool) SnapProtect(ctx context.Context, img Image) error {
	return t.check(ctx, "snap", "protect", string(img))
}

// Clone creates a writable clone of a protected snapshot.
func (t *Tool) Clone(ctx context.Context, snapshot, dest Image) error {
	return t.check(ctx, "clone", string(snapshot), string(dest))
}

// CleanStale removes a prior backup clone and snapshot for img if
// present, tolerating the "not protected" case on unprotect, matching
// the preamble in spec.md §4.4/§4.5 (clean-before-create).
func (t *Tool) CleanStale(ctx context.Context, backupClone, snapshot Image) error {
	exists, err := t.Exists(ctx, backupClone)
	if err != nil {
		return fmt.Errorf("rbd: checking stale clone %s: %w", backupClone, err)
	}
	if exists {
		if err := t.Remove(ctx, backupClone); err != nil {
			return fmt.Errorf("rbd: removing stale clone %s: %w", backupClone, err)
		}
	}

	exists, err = t.Exists(ctx, snapshot)
	if err != nil {
		return fmt.Errorf("rbd: checking stale snapshot %s: %w", snapshot, err)
	}
	if exists {
		if _, err := t.SnapUnprotect(ctx, snapshot); err != nil {
			return fmt.Errorf("rbd: unprotecting stale snapshot %s: %w", snapshot, err)
		}
		if err := t.SnapRemove(ctx, snapshot); err != nil {
			return fmt.Errorf("rbd: removing stale snapshot %s: %w", snapshot, err)
		}
	}
	return nil
}
