package k8s

import (
	"context"
	"encoding/json"
	"fmt"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
)

// CreateWorkerJob submits a backup Job into the reserved namespace.
func (c *Client) CreateWorkerJob(ctx context.Context, job *batchv1.Job) (*batchv1.Job, error) {
	created, err := c.clientset.BatchV1().Jobs(c.Namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("k8s: creating worker job %s: %w", job.Name, err)
	}
	return created, nil
}

// CreateBoundClaim creates the reserved-namespace PersistentVolumeClaim
// the worker job mounts to reach the volume under backup, per
// spec.md §4.5's "bound claim" plumbing.
func (c *Client) CreateBoundClaim(ctx context.Context, claim *corev1.PersistentVolumeClaim) (*corev1.PersistentVolumeClaim, error) {
	created, err := c.clientset.CoreV1().PersistentVolumeClaims(c.Namespace).Create(ctx, claim, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("k8s: creating bound claim %s: %w", claim.Name, err)
	}
	return created, nil
}

// CreateVolume creates the cluster-scoped PersistentVolume that points
// at the just-created clone, for the bound claim to attach to.
func (c *Client) CreateVolume(ctx context.Context, volume *corev1.PersistentVolume) (*corev1.PersistentVolume, error) {
	created, err := c.clientset.CoreV1().PersistentVolumes().Create(ctx, volume, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("k8s: creating volume %s: %w", volume.Name, err)
	}
	return created, nil
}

// DeleteClaimsBySelector deletes every reserved-namespace claim
// matching selector, the bulk-reclamation idiom from spec.md §4.4.
func (c *Client) DeleteClaimsBySelector(ctx context.Context, selector string) error {
	if err := c.clientset.CoreV1().PersistentVolumeClaims(c.Namespace).DeleteCollection(ctx,
		metav1.DeleteOptions{}, metav1.ListOptions{LabelSelector: selector}); err != nil {
		return fmt.Errorf("k8s: deleting claims matching %q: %w", selector, err)
	}
	return nil
}

// DeleteVolumesBySelector deletes every cluster-scoped volume matching
// selector.
func (c *Client) DeleteVolumesBySelector(ctx context.Context, selector string) error {
	if err := c.clientset.CoreV1().PersistentVolumes().DeleteCollection(ctx,
		metav1.DeleteOptions{}, metav1.ListOptions{LabelSelector: selector}); err != nil {
		return fmt.Errorf("k8s: deleting volumes matching %q: %w", selector, err)
	}
	return nil
}

// DeleteConfigMapsBySelector deletes every reserved-namespace config
// map matching selector.
func (c *Client) DeleteConfigMapsBySelector(ctx context.Context, selector string) error {
	if err := c.clientset.CoreV1().ConfigMaps(c.Namespace).DeleteCollection(ctx,
		metav1.DeleteOptions{}, metav1.ListOptions{LabelSelector: selector}); err != nil {
		return fmt.Errorf("k8s: deleting config maps matching %q: %w", selector, err)
	}
	return nil
}

// annotationMergePatch renders the JSON merge-patch body for an
// annotation-only update, per spec.md §4.1's "reads/patches use
// merge-patch semantics".
func annotationMergePatch(annotations map[string]string) ([]byte, error) {
	patch := map[string]any{
		"metadata": map[string]any{
			"annotations": annotations,
		},
	}
	body, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("k8s: marshaling annotation patch: %w", err)
	}
	return body, nil
}

// PatchJobAnnotations merge-patches annotations onto a reserved-namespace
// worker job.
func (c *Client) PatchJobAnnotations(ctx context.Context, name string, annotations map[string]string) error {
	body, err := annotationMergePatch(annotations)
	if err != nil {
		return err
	}
	if _, err := c.clientset.BatchV1().Jobs(c.Namespace).Patch(ctx, name, types.MergePatchType, body, metav1.PatchOptions{}); err != nil {
		return fmt.Errorf("k8s: patching job %s annotations: %w", name, err)
	}
	return nil
}

// PatchVolumeAnnotations merge-patches annotations onto a PersistentVolume,
// used to record the last-start timestamp (last-backup lives on the claim,
// see PatchClaimAnnotations).
func (c *Client) PatchVolumeAnnotations(ctx context.Context, name string, annotations map[string]string) error {
	body, err := annotationMergePatch(annotations)
	if err != nil {
		return err
	}
	if _, err := c.clientset.CoreV1().PersistentVolumes().Patch(ctx, name, types.MergePatchType, body, metav1.PatchOptions{}); err != nil {
		return fmt.Errorf("k8s: patching volume %s annotations: %w", name, err)
	}
	return nil
}

// PatchClaimAnnotations merge-patches annotations onto a claim in the
// given namespace.
func (c *Client) PatchClaimAnnotations(ctx context.Context, namespace, name string, annotations map[string]string) error {
	body, err := annotationMergePatch(annotations)
	if err != nil {
		return err
	}
	if _, err := c.clientset.CoreV1().PersistentVolumeClaims(namespace).Patch(ctx, name, types.MergePatchType, body, metav1.PatchOptions{}); err != nil {
		return fmt.Errorf("k8s: patching claim %s/%s annotations: %w", namespace, name, err)
	}
	return nil
}

// SealJob merge-patches a worker job's annotations and sets
// spec.ttlSecondsAfterFinished, the combined patch the reaper issues
// once reclamation is complete (spec.md §4.5 step 7).
func (c *Client) SealJob(ctx context.Context, name string, annotations map[string]string, ttlSecondsAfterFinished int32) error {
	patch := map[string]any{
		"metadata": map[string]any{
			"annotations": annotations,
		},
		"spec": map[string]any{
			"ttlSecondsAfterFinished": ttlSecondsAfterFinished,
		},
	}
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("k8s: marshaling job seal patch: %w", err)
	}
	if _, err := c.clientset.BatchV1().Jobs(c.Namespace).Patch(ctx, name, types.MergePatchType, body, metav1.PatchOptions{}); err != nil {
		return fmt.Errorf("k8s: sealing job %s: %w", name, err)
	}
	return nil
}

// Clientset exposes the underlying client-go interface for object kinds
// this adapter doesn't wrap directly. Nothing in this repository calls it.
func (c *Client) Clientset() kubernetes.Interface {
	return c.clientset
}
