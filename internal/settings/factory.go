package settings

import (
	"fmt"
	"log/slog"
)

// Options selects and configures the settings backend.
type Options struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
	// Key names the redis hash.
	Key string `yaml:"key"`
	// Namespace and Name locate the ConfigMap.
	Namespace string `yaml:"namespace"`
	Name      string `yaml:"name"`
}

func NewBackend(options Options) (backend Backend, err error) {
	switch options.Type {
	case "", "memory":
		backend = NewMemoryBackend(nil)
	case "sqlite":
		backend, err = NewSQLiteBackend(options.ConnectionString)
	case "postgres":
		backend, err = NewPostgresBackend(options.ConnectionString)
	case "redis":
		backend, err = NewRedisBackend(options.ConnectionString, options.Key)
	case "configmap":
		backend, err = NewInClusterConfigMapBackend(options.Namespace, options.Name)
	default:
		return nil, fmt.Errorf("unsupported settings type: %s", options.Type)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("settings backend initialized", "type", options.Type)
	return backend, nil
}
