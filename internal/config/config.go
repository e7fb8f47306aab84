// Package config loads runtime settings from flags, environment, and an
// optional pagelate.yaml, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings is the resolved runtime configuration.
type Settings struct {
	APIKey      string `mapstructure:"api_key"`
	BaseURL     string `mapstructure:"base_url"`
	TextModel   string `mapstructure:"text_model"`
	VisionModel string `mapstructure:"vision_model"`
	ImageModel  string `mapstructure:"image_model"`

	DBPath      string `mapstructure:"db_path"`
	ArtifactDir string `mapstructure:"artifact_dir"`
	UploadURL   string `mapstructure:"upload_url"`
	WebhookURL  string `mapstructure:"webhook_url"`

	// GoogleCredentials enables the machine-translation fallback when set.
	GoogleCredentials string `mapstructure:"google_credentials"`

	Threshold   int           `mapstructure:"threshold"`
	MaxVersions int           `mapstructure:"max_versions"`
	Workers     int           `mapstructure:"workers"`
	StallWindow time.Duration `mapstructure:"stall_window"`

	Verbose bool `mapstructure:"verbose"`
}

// Load builds Settings from the given viper instance, applying defaults and
// the PAGELATE_ environment prefix. cfgFile overrides config discovery.
func Load(v *viper.Viper, cfgFile string) (*Settings, error) {
	v.SetDefault("base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("db_path", "pagelate.db")
	v.SetDefault("artifact_dir", "artifacts")
	v.SetDefault("threshold", 80)
	v.SetDefault("max_versions", 5)
	v.SetDefault("workers", 10)
	v.SetDefault("stall_window", 2*time.Minute)

	v.SetEnvPrefix("PAGELATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees keys viper already knows about, so bind every
	// settings key to its environment variable explicitly.
	for _, key := range []string{
		"api_key", "base_url", "text_model", "vision_model", "image_model",
		"db_path", "artifact_dir", "upload_url", "webhook_url",
		"google_credentials", "threshold", "max_versions", "workers",
		"stall_window", "verbose",
	} {
		_ = v.BindEnv(key)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("pagelate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.pagelate")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) validate() error {
	if s.Threshold < 0 || s.Threshold > 100 {
		return fmt.Errorf("threshold must be between 0 and 100, got %d", s.Threshold)
	}
	if s.MaxVersions < 1 {
		return fmt.Errorf("max_versions must be at least 1, got %d", s.MaxVersions)
	}
	if s.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", s.Workers)
	}
	return nil
}
