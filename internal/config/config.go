// Package config loads and defaults the intrusion detection system's
// configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MLConfig tunes the anomaly model's (currently non-applying) training loop.
type MLConfig struct {
	UpdateFrequency uint64  `yaml:"update_frequency"`
	BatchSize       int     `yaml:"batch_size"`
	LearningRate    float32 `yaml:"learning_rate"`
	WindowSize      int     `yaml:"window_size"`
}

// AlertThresholds holds the configured alert thresholds. The detection
// pipeline does not read them: the supervisor applies its own fixed
// anomaly-score cutoff, and rule alerts are published regardless of
// their confidence or rate.
type AlertThresholds struct {
	AnomalyThreshold   float32 `yaml:"anomaly_threshold"`
	MinConfidence      float32 `yaml:"min_confidence"`
	MaxAlertsPerMinute uint32  `yaml:"max_alerts_per_minute"`
}

// SystemConfig is the immutable-after-construction configuration passed to
// supervisor.New.
type SystemConfig struct {
	Interface       string          `yaml:"interface"`
	Sensitivity     float32         `yaml:"sensitivity"`
	MaxPPS          uint64          `yaml:"max_pps"`
	MLConfig        MLConfig        `yaml:"ml_config"`
	AlertThresholds AlertThresholds `yaml:"alert_thresholds"`
	UseSimulation   bool            `yaml:"use_simulation"`

	// FlowTimeoutSeconds is how long a flow may sit idle before the reaper
	// evicts it.
	FlowTimeoutSeconds uint64 `yaml:"flow_timeout_seconds"`

	// NATSURL, when non-empty, turns on the optional external alert
	// forwarder. Empty (the default) means the core pipeline never talks
	// to a broker.
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`
}

// Default returns the baseline configuration every field of Load starts
// from.
func Default() SystemConfig {
	return SystemConfig{
		Interface:   "Wi-Fi",
		Sensitivity: 0.7,
		MaxPPS:      10000,
		MLConfig: MLConfig{
			UpdateFrequency: 300,
			BatchSize:       128,
			LearningRate:    0.001,
			WindowSize:      100,
		},
		AlertThresholds: AlertThresholds{
			AnomalyThreshold:   0.8,
			MinConfidence:      0.7,
			MaxAlertsPerMinute: 10,
		},
		UseSimulation:      false,
		FlowTimeoutSeconds: 300,
		NATSURL:            "",
		NATSSubject:        "ids.alerts",
	}
}

// Load reads a YAML configuration file, starting from Default() so a
// partial file only overrides the fields it sets.
func Load(filePath string) (*SystemConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	return &cfg, nil
}
