package observability

import (
	"sync"
	"testing"
)

type captureLogger struct {
	mu      sync.Mutex
	entries []string
}

func (c *captureLogger) record(level, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, level+":"+msg)
}

func (c *captureLogger) Debug(msg string, _ ...Field) { c.record("debug", msg) }
func (c *captureLogger) Info(msg string, _ ...Field)  { c.record("info", msg) }
func (c *captureLogger) Warn(msg string, _ ...Field)  { c.record("warn", msg) }
func (c *captureLogger) Error(msg string, _ ...Field) { c.record("error", msg) }

func TestSetLoggerReplacesGlobal(t *testing.T) {
	capture := &captureLogger{}
	SetLogger(capture)
	defer SetLogger(nil)

	Log().Warn("engine already started")

	capture.mu.Lock()
	defer capture.mu.Unlock()
	if len(capture.entries) != 1 || capture.entries[0] != "warn:engine already started" {
		t.Fatalf("unexpected entries: %v", capture.entries)
	}
}

func TestSetLoggerNilRestoresNoop(t *testing.T) {
	SetLogger(&captureLogger{})
	SetLogger(nil)

	// Must not panic and must be the silent default.
	Log().Debug("ignored")
	Log().Error("ignored")
	if _, ok := Log().(noopLogger); !ok {
		t.Fatalf("expected noop logger after reset, got %T", Log())
	}
}
