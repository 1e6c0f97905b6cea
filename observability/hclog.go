package observability

import (
	"github.com/hashicorp/go-hclog"
)

// hcLogger adapts a hashicorp logger to the Logger interface.
type hcLogger struct {
	l hclog.Logger
}

// NewHCLogger wraps l so it can serve as the process logger.
func NewHCLogger(l hclog.Logger) Logger {
	if l == nil {
		l = hclog.Default()
	}
	return &hcLogger{l: l}
}

func (h *hcLogger) Debug(msg string, fields ...Field) { h.l.Debug(msg, args(fields)...) }
func (h *hcLogger) Info(msg string, fields ...Field)  { h.l.Info(msg, args(fields)...) }
func (h *hcLogger) Warn(msg string, fields ...Field)  { h.l.Warn(msg, args(fields)...) }
func (h *hcLogger) Error(msg string, fields ...Field) { h.l.Error(msg, args(fields)...) }

func args(fields []Field) []any {
	out := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		out = append(out, f.Key, f.Value)
	}
	return out
}
