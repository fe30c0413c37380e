package k8s

import (
	"context"
	"fmt"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// CSIDriverRBD is the only CSI driver the controller backs up, per
// spec.md §4.2.
const CSIDriverRBD = "rbd.csi.ceph.com"

// ListNamespaces returns every namespace in the fleet.
func (c *Client) ListNamespaces(ctx context.Context) ([]corev1.Namespace, error) {
	list, err := c.clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("k8s: listing namespaces: %w", err)
	}
	return list.Items, nil
}

// ListClaims returns every PersistentVolumeClaim across all namespaces.
func (c *Client) ListClaims(ctx context.Context) ([]corev1.PersistentVolumeClaim, error) {
	list, err := c.clientset.CoreV1().PersistentVolumeClaims(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("k8s: listing claims: %w", err)
	}
	return list.Items, nil
}

// ListVolumes returns every PersistentVolume, cluster-scoped.
func (c *Client) ListVolumes(ctx context.Context) ([]corev1.PersistentVolume, error) {
	list, err := c.clientset.CoreV1().PersistentVolumes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("k8s: listing volumes: %w", err)
	}
	return list.Items, nil
}

// ListWorkerJobs returns every backup Job the controller owns, scoped
// to the reserved namespace and selected by RBDJobSelector.
func (c *Client) ListWorkerJobs(ctx context.Context) ([]batchv1.Job, error) {
	list, err := c.clientset.BatchV1().Jobs(c.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: RBDJobSelector,
	})
	if err != nil {
		return nil, fmt.Errorf("k8s: listing worker jobs: %w", err)
	}
	return list.Items, nil
}

// GetClaim fetches a single claim by namespace/name.
func (c *Client) GetClaim(ctx context.Context, namespace, name string) (*corev1.PersistentVolumeClaim, error) {
	claim, err := c.clientset.CoreV1().PersistentVolumeClaims(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("k8s: getting claim %s/%s: %w", namespace, name, err)
	}
	return claim, nil
}

// IsRBDVolume reports whether pv was provisioned by the Ceph RBD CSI
// driver, the sole volume type this controller backs up.
func IsRBDVolume(pv corev1.PersistentVolume) bool {
	return pv.Spec.CSI != nil && pv.Spec.CSI.Driver == CSIDriverRBD
}
