// Package config centralises runtime configuration helpers for hookbus services.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/coachpo/hookbus/errs"
)

// EngineConfig sizes the dispatch engine and its queue.
type EngineConfig struct {
	QueueCapacity int     `yaml:"queueCapacity" validate:"gt=0"`
	FaultLogSize  int     `yaml:"faultLogSize" validate:"gte=0"`
	PublishRate   float64 `yaml:"publishRate" validate:"gte=0"`
	PublishBurst  int     `yaml:"publishBurst" validate:"gte=0"`
}

// TelemetryConfig configures OTLP exporters.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	ServiceName  string `yaml:"serviceName"`
}

// Settings contains the hookbus configuration tree loaded from defaults and overrides.
type Settings struct {
	Engine    EngineConfig    `yaml:"engine"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

const (
	defaultQueueCapacity = 1024
	defaultFaultLogSize  = 128
	defaultServiceName   = "hookbus"
	defaultConfigPath    = "config/hookbus.yaml"
)

// Default returns the default hookbus configuration.
func Default() Settings {
	return Settings{
		Engine: EngineConfig{
			QueueCapacity: defaultQueueCapacity,
			FaultLogSize:  defaultFaultLogSize,
			PublishRate:   0,
			PublishBurst:  0,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "",
			ServiceName:  defaultServiceName,
		},
	}
}

// FromEnv loads configuration values from environment variables, overriding defaults.
func FromEnv() Settings {
	cfg := Default()
	if v := strings.TrimSpace(os.Getenv("HOOKBUS_QUEUE_CAPACITY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.QueueCapacity = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("HOOKBUS_FAULT_LOG_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.FaultLogSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("HOOKBUS_PUBLISH_RATE")); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Engine.PublishRate = rate
		}
	}
	if v := strings.TrimSpace(os.Getenv("HOOKBUS_PUBLISH_BURST")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.PublishBurst = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("HOOKBUS_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("HOOKBUS_SERVICE_NAME")); v != "" {
		cfg.Telemetry.ServiceName = v
	}
	return cfg
}

// Load reads a configuration YAML document from disk, applying defaults for
// absent fields. An empty path falls back to HOOKBUS_CONFIG, then to
// config/hookbus.yaml.
func Load(path string) (Settings, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("HOOKBUS_CONFIG"))
	}
	if path == "" {
		path = defaultConfigPath
	}

	file, err := os.Open(path)
	if err != nil {
		return Settings{}, fmt.Errorf("open config: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	raw, err := io.ReadAll(file)
	if err != nil {
		return Settings{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Settings{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

func (s *Settings) normalize() {
	if s.Engine.FaultLogSize < 0 {
		s.Engine.FaultLogSize = defaultFaultLogSize
	}
	if strings.TrimSpace(s.Telemetry.ServiceName) == "" {
		s.Telemetry.ServiceName = defaultServiceName
	}
}

var validate = validator.New()

// Validate performs semantic validation on the configuration tree.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			first := fieldErrs[0]
			return errs.New("config", errs.CodeInvalid,
				errs.WithMessage(fmt.Sprintf("field %s failed %q validation", first.Namespace(), first.Tag())),
				errs.WithCause(err))
		}
		return errs.New("config", errs.CodeInvalid, errs.WithCause(err))
	}
	return nil
}
