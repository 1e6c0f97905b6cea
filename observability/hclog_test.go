package observability

import (
	"bytes"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
)

func TestHCLoggerForwardsFields(t *testing.T) {
	var buf bytes.Buffer
	base := hclog.New(&hclog.LoggerOptions{
		Name:   "test",
		Level:  hclog.Debug,
		Output: &buf,
	})

	log := NewHCLogger(base)
	log.Info("queue drained", Field{Key: "depth", Value: 0})
	log.Warn("engine already started", Field{Key: "engine", Value: "abc"})

	out := buf.String()
	if !strings.Contains(out, "queue drained") || !strings.Contains(out, "depth=0") {
		t.Fatalf("info line missing fields: %q", out)
	}
	if !strings.Contains(out, "engine already started") || !strings.Contains(out, "engine=abc") {
		t.Fatalf("warn line missing fields: %q", out)
	}
}

func TestHCLoggerNilFallsBack(t *testing.T) {
	if NewHCLogger(nil) == nil {
		t.Fatal("nil input should still produce a logger")
	}
}
