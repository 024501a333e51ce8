package settings

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
)

func TestConfigMap_MissingReadsEmpty(t *testing.T) {
	backend := NewConfigMapBackend(fake.NewClientBuilder().Build(), "dash", "")
	values, err := backend.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll error: %v", err)
	}
	if len(values) != 0 {
		t.Fatalf("expected empty values, got %v", values)
	}
}

func TestConfigMap_SaveCreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	c := fake.NewClientBuilder().Build()
	backend := NewConfigMapBackend(c, "dash", "settings")

	if err := backend.SaveAll(ctx, map[string]string{"imageConfig": "a"}); err != nil {
		t.Fatalf("SaveAll (create) error: %v", err)
	}
	if err := backend.SaveAll(ctx, map[string]string{"imageConfig": "b"}); err != nil {
		t.Fatalf("SaveAll (update) error: %v", err)
	}

	var cm corev1.ConfigMap
	if err := c.Get(ctx, client.ObjectKey{Namespace: "dash", Name: "settings"}, &cm); err != nil {
		t.Fatalf("Get configmap error: %v", err)
	}
	if cm.Data["imageConfig"] != "b" {
		t.Fatalf("expected imageConfig=b, got %v", cm.Data)
	}
}

func TestConfigMap_LoadExisting(t *testing.T) {
	existing := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: defaultConfigMapName, Namespace: "default"},
		Data:       map[string]string{"imageConfig": "x"},
	}
	c := fake.NewClientBuilder().WithObjects(existing).Build()
	backend := NewConfigMapBackend(c, "", "")

	values, err := backend.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll error: %v", err)
	}
	if values["imageConfig"] != "x" {
		t.Fatalf("unexpected values: %v", values)
	}
}
