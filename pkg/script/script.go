// Package script compiles JavaScript event handlers into bus callbacks. A
// script exports an onEvent(topic, data) function through the CommonJS-style
// module.exports convention; exceptions it throws surface as handler faults.
package script

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/coachpo/hookbus/errs"
	"github.com/coachpo/hookbus/pkg/bus"
)

const exportName = "onEvent"

// Handler is a compiled script bound to its own runtime. Invocations
// serialize on an internal mutex because a goja runtime is single-threaded;
// the bus dispatch worker is too, so the lock is uncontended unless one
// handler is registered on several engines.
type Handler struct {
	name    string
	mu      sync.Mutex
	rt      *goja.Runtime
	onEvent goja.Callable
}

// Compile parses and runs the source, then resolves the exported onEvent
// function. The name tags compile errors and fault records.
func Compile(name, source string) (*Handler, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, errs.New("script", errs.CodeInvalid, errs.WithMessage("handler name required"))
	}

	prog, err := goja.Compile(trimmed, source, true)
	if err != nil {
		return nil, errs.New("script", errs.CodeInvalid,
			errs.WithMessage("compile failed"),
			errs.WithField("handler", trimmed),
			errs.WithCause(err))
	}

	rt := goja.New()
	exports, err := runModule(rt, prog)
	if err != nil {
		return nil, errs.New("script", errs.CodeInvalid,
			errs.WithMessage("module execution failed"),
			errs.WithField("handler", trimmed),
			errs.WithCause(err))
	}

	value := exports.Get(exportName)
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, errs.New("script", errs.CodeInvalidCallback,
			errs.WithMessage("missing onEvent export"),
			errs.WithField("handler", trimmed))
	}
	callable, ok := goja.AssertFunction(value)
	if !ok {
		return nil, errs.New("script", errs.CodeInvalidCallback,
			errs.WithMessage("onEvent export not callable"),
			errs.WithField("handler", trimmed))
	}

	return &Handler{name: trimmed, rt: rt, onEvent: callable}, nil
}

// Name returns the handler's compile-time name.
func (h *Handler) Name() string { return h.name }

// Bind installs a global the script can call, typically a Go function for
// side effects. Bind before the handler starts receiving events.
func (h *Handler) Bind(name string, value any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.rt.Set(name, value); err != nil {
		return errs.New("script", errs.CodeInvalid,
			errs.WithMessage("bind global failed"),
			errs.WithField("handler", h.name),
			errs.WithField("global", name),
			errs.WithCause(err))
	}
	return nil
}

// Callback adapts the handler for registration. All script callbacks share
// the adapter's identity, so two script handlers on one topic need the
// hook's dedup disabled.
func (h *Handler) Callback() bus.Callback {
	return bus.WithTopicData(h.invoke)
}

func (h *Handler) invoke(topic bus.Topic, data any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.onEvent(goja.Undefined(), h.rt.ToValue(string(topic)), h.rt.ToValue(data))
	if err != nil {
		return errs.New("script", errs.CodeHandlerFault,
			errs.WithTopic(string(topic)),
			errs.WithField("handler", h.name),
			errs.WithCause(err))
	}
	return nil
}

// runModule executes the program against fresh module/exports objects and a
// muted console, returning the exports object.
func runModule(rt *goja.Runtime, program *goja.Program) (*goja.Object, error) {
	rt.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	module := rt.NewObject()
	exports := rt.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, fmt.Errorf("module init: %w", err)
	}
	if err := rt.Set("exports", exports); err != nil {
		return nil, fmt.Errorf("module init: %w", err)
	}
	if err := rt.Set("module", module); err != nil {
		return nil, fmt.Errorf("module init: %w", err)
	}
	if err := rt.Set("console", mutedConsole(rt)); err != nil {
		return nil, fmt.Errorf("module init: %w", err)
	}

	if _, err := rt.RunProgram(program); err != nil {
		return nil, fmt.Errorf("module run: %w", err)
	}

	object := module.Get("exports").ToObject(rt)
	if object == nil {
		return nil, fmt.Errorf("module exports must be an object")
	}
	return object, nil
}

func mutedConsole(rt *goja.Runtime) *goja.Object {
	console := rt.NewObject()
	drop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	for _, level := range []string{"log", "info", "warn", "error"} {
		_ = console.Set(level, drop)
	}
	return console
}
