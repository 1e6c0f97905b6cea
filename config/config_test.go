package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/coachpo/hookbus/errs"
)

func TestDefaultConfigProvidesEngineSettings(t *testing.T) {
	cfg := Default()
	if cfg.Engine.QueueCapacity != 1024 {
		t.Fatalf("expected default queue capacity 1024, got %d", cfg.Engine.QueueCapacity)
	}
	if cfg.Engine.FaultLogSize != 128 {
		t.Fatalf("expected default fault log size 128, got %d", cfg.Engine.FaultLogSize)
	}
	if cfg.Telemetry.ServiceName != "hookbus" {
		t.Fatalf("expected default service name hookbus, got %s", cfg.Telemetry.ServiceName)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration must validate: %v", err)
	}
}

func TestFromEnvOverridesValues(t *testing.T) {
	t.Setenv("HOOKBUS_QUEUE_CAPACITY", "64")
	t.Setenv("HOOKBUS_FAULT_LOG_SIZE", "32")
	t.Setenv("HOOKBUS_PUBLISH_RATE", "500")
	t.Setenv("HOOKBUS_PUBLISH_BURST", "10")
	t.Setenv("HOOKBUS_OTLP_ENDPOINT", "http://collector:4318")
	t.Setenv("HOOKBUS_SERVICE_NAME", "bus-test")

	cfg := FromEnv()
	if cfg.Engine.QueueCapacity != 64 {
		t.Fatalf("expected env queue capacity 64, got %d", cfg.Engine.QueueCapacity)
	}
	if cfg.Engine.FaultLogSize != 32 {
		t.Fatalf("expected env fault log size 32, got %d", cfg.Engine.FaultLogSize)
	}
	if cfg.Engine.PublishRate != 500 || cfg.Engine.PublishBurst != 10 {
		t.Fatalf("expected publish limiter overrides, got %f/%d", cfg.Engine.PublishRate, cfg.Engine.PublishBurst)
	}
	if cfg.Telemetry.OTLPEndpoint != "http://collector:4318" {
		t.Fatalf("expected OTLP endpoint override, got %s", cfg.Telemetry.OTLPEndpoint)
	}
	if cfg.Telemetry.ServiceName != "bus-test" {
		t.Fatalf("expected service name override, got %s", cfg.Telemetry.ServiceName)
	}
}

func TestFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("HOOKBUS_QUEUE_CAPACITY", "not-a-number")
	t.Setenv("HOOKBUS_PUBLISH_RATE", "fast")

	cfg := FromEnv()
	if cfg.Engine.QueueCapacity != 1024 {
		t.Fatalf("malformed capacity must keep default, got %d", cfg.Engine.QueueCapacity)
	}
	if cfg.Engine.PublishRate != 0 {
		t.Fatalf("malformed publish rate must keep default, got %f", cfg.Engine.PublishRate)
	}
}

func TestLoadReadsYAMLAndAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hookbus.yaml")
	body := []byte("engine:\n  queueCapacity: 8\ntelemetry:\n  otlpEndpoint: http://collector:4318\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Engine.QueueCapacity != 8 {
		t.Fatalf("expected queue capacity 8 from file, got %d", cfg.Engine.QueueCapacity)
	}
	if cfg.Engine.FaultLogSize != 128 {
		t.Fatalf("expected fault log default to survive partial file, got %d", cfg.Engine.FaultLogSize)
	}
	if cfg.Telemetry.ServiceName != "hookbus" {
		t.Fatalf("expected service name default, got %s", cfg.Telemetry.ServiceName)
	}
	if cfg.Telemetry.OTLPEndpoint != "http://collector:4318" {
		t.Fatalf("expected endpoint from file, got %s", cfg.Telemetry.OTLPEndpoint)
	}
}

func TestLoadRejectsNonPositiveCapacity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hookbus.yaml")
	if err := os.WriteFile(path, []byte("engine:\n  queueCapacity: 0\n"), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error for zero capacity")
	}
	if errs.CodeOf(err) != errs.CodeInvalid {
		t.Fatalf("expected invalid_argument code, got %q (%v)", errs.CodeOf(err), err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}
