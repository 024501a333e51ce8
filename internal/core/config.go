package core

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jo-hoe/sheetimage/internal/backend/imageprocessing"
	"github.com/jo-hoe/sheetimage/internal/fetch"
	"github.com/jo-hoe/sheetimage/internal/refresh"
	"github.com/jo-hoe/sheetimage/internal/render"
	"github.com/jo-hoe/sheetimage/internal/settings"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort          = 8080
	defaultSettleDelay   = 100 * time.Millisecond
	defaultDashboardFile = "dashboard.yaml"
)

type Render struct {
	Mode string `yaml:"mode"`
}

type ServiceConfig struct {
	Port          int              `yaml:"port"`
	Settings      settings.Options `yaml:"settings"`
	DashboardFile string           `yaml:"dashboardFile"`
	Refresh       refresh.Options  `yaml:"refresh"`
	Fetch         fetch.Options    `yaml:"fetch"`
	Render        Render           `yaml:"render"`
}

// DefaultConfig returns the values used for keys missing from the file.
func DefaultConfig() ServiceConfig {
	return ServiceConfig{
		Port:          defaultPort,
		Settings:      settings.Options{Type: "memory"},
		DashboardFile: defaultDashboardFile,
		Refresh: refresh.Options{
			SettleDelay: defaultSettleDelay,
			Fallback:    refresh.FallbackRemote,
		},
		Render: Render{Mode: string(render.ModeImage)},
	}
}

// LoadConfig loads configuration from the specified YAML file. A relative
// dashboardFile is resolved against the directory of the config file.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	config, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if !filepath.IsAbs(config.DashboardFile) {
		config.DashboardFile = filepath.Join(filepath.Dir(configPath), config.DashboardFile)
	}
	return config, nil
}

func ParseConfig(data []byte) (*ServiceConfig, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func validateConfig(config *ServiceConfig) error {
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("invalid port: %d", config.Port)
	}
	if config.DashboardFile == "" {
		return fmt.Errorf("dashboardFile must be set")
	}

	if config.Refresh.SettleDelay < 0 {
		return fmt.Errorf("refresh settleDelay cannot be negative: %s", config.Refresh.SettleDelay)
	}
	switch config.Refresh.Fallback {
	case refresh.FallbackRemote, refresh.FallbackNone:
	default:
		return fmt.Errorf("unknown refresh fallback: %s", config.Refresh.Fallback)
	}
	if config.Refresh.Schedule != "" {
		if _, err := cron.ParseStandard(config.Refresh.Schedule); err != nil {
			return fmt.Errorf("invalid refresh schedule %q: %w", config.Refresh.Schedule, err)
		}
	}

	if config.Fetch.Timeout < 0 {
		return fmt.Errorf("fetch timeout cannot be negative: %s", config.Fetch.Timeout)
	}
	if config.Fetch.MaxBytes < 0 {
		return fmt.Errorf("fetch maxBytes cannot be negative: %d", config.Fetch.MaxBytes)
	}
	if err := imageprocessing.ValidateCommandConfigs(config.Fetch.Commands); err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	if _, err := render.ParseMode(config.Render.Mode); err != nil {
		return err
	}
	return nil
}
