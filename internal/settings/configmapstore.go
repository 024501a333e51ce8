package settings

import (
	"context"
	"fmt"
	"maps"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/config"
)

const defaultConfigMapName = "sheetimage-settings"

// ConfigMapBackend stores settings as the data of a Kubernetes ConfigMap.
// A missing ConfigMap reads as empty and is created on the first save.
type ConfigMapBackend struct {
	client client.Client
	key    client.ObjectKey
}

func NewConfigMapBackend(c client.Client, namespace, name string) *ConfigMapBackend {
	if name == "" {
		name = defaultConfigMapName
	}
	if namespace == "" {
		namespace = "default"
	}
	return &ConfigMapBackend{
		client: c,
		key:    client.ObjectKey{Namespace: namespace, Name: name},
	}
}

// NewInClusterConfigMapBackend builds a client from the ambient kubeconfig or
// in-cluster service account.
func NewInClusterConfigMapBackend(namespace, name string) (*ConfigMapBackend, error) {
	restConfig, err := config.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get kubernetes config: %w", err)
	}
	c, err := client.New(restConfig, client.Options{Scheme: scheme.Scheme})
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return NewConfigMapBackend(c, namespace, name), nil
}

func (b *ConfigMapBackend) LoadAll(ctx context.Context) (map[string]string, error) {
	var cm corev1.ConfigMap
	if err := b.client.Get(ctx, b.key, &cm); err != nil {
		if apierrors.IsNotFound(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to get configmap %s: %w", b.key, err)
	}
	return maps.Clone(cm.Data), nil
}

func (b *ConfigMapBackend) SaveAll(ctx context.Context, values map[string]string) error {
	var cm corev1.ConfigMap
	err := b.client.Get(ctx, b.key, &cm)
	if apierrors.IsNotFound(err) {
		cm = corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{
				Name:      b.key.Name,
				Namespace: b.key.Namespace,
			},
			Data: maps.Clone(values),
		}
		if err := b.client.Create(ctx, &cm); err != nil {
			return fmt.Errorf("failed to create configmap %s: %w", b.key, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get configmap %s: %w", b.key, err)
	}

	cm.Data = maps.Clone(values)
	if err := b.client.Update(ctx, &cm); err != nil {
		return fmt.Errorf("failed to update configmap %s: %w", b.key, err)
	}
	return nil
}

func (b *ConfigMapBackend) Close() error {
	return nil
}
