// Package k8s is the orchestrator client adapter (spec.md §4.1): typed
// reads across the fleet and scoped writes into the controller's
// reserved namespace, wired the way other_examples/velero-pvc-watcher
// and the pack's k8s-native operators build a client-go clientset —
// in-cluster config falling back to a kubeconfig file.
package k8s

import (
	"fmt"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Client wraps a client-go clientset scoped to one reserved namespace
// for writes, with typed reads across the whole fleet.
type Client struct {
	clientset kubernetes.Interface
	Namespace string
}

// NewClient builds a Client. If kubeconfigPath is empty, it uses the
// in-cluster config; otherwise it loads the given kubeconfig file.
func NewClient(kubeconfigPath, namespace string) (*Client, error) {
	cfg, err := loadRESTConfig(kubeconfigPath)
	if err != nil {
		return nil, err
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("k8s: building clientset: %w", err)
	}

	return &Client{clientset: clientset, Namespace: namespace}, nil
}

// NewFromClientset wraps an existing clientset, used by tests to inject
// a fake clientset (k8s.io/client-go/kubernetes/fake).
func NewFromClientset(cs kubernetes.Interface, namespace string) *Client {
	return &Client{clientset: cs, Namespace: namespace}
}

func loadRESTConfig(kubeconfigPath string) (*rest.Config, error) {
	if kubeconfigPath == "" {
		cfg, err := rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("k8s: loading in-cluster config: %w", err)
		}
		return cfg, nil
	}

	cfg, err := clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("k8s: loading kubeconfig %q: %w", kubeconfigPath, err)
	}
	return cfg, nil
}
