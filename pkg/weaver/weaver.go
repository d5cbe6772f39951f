// Package weaver wraps method bodies with the hooks of their matched advice.
//
// A woven body runs, per applied advice in entry order, the IsEnabled guard,
// the nesting and suppression decision and the Before hook; then the original
// body; then Return or Throw hooks in reverse order. The original outcome is
// never altered: a returned error comes back as is and a panic is re-raised
// with the same value.
package weaver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/itsneelabh/weave/pkg/core"
	"github.com/itsneelabh/weave/pkg/hierarchy"
	"github.com/itsneelabh/weave/pkg/logger"
	"github.com/itsneelabh/weave/pkg/matcher"
	"github.com/itsneelabh/weave/pkg/propagation"
)

// ErrNoSuchMethod is returned by WovenClass.Invoke for unknown method keys.
var ErrNoSuchMethod = errors.New("no such method")

// Call is one invocation of a method.
type Call struct {
	Ctx      context.Context
	Receiver any
	Args     []any
	// Thread is the invoking goroutine's context. When nil it is taken from
	// Ctx; failing that a fresh one is created and stored in Ctx.
	Thread *propagation.ThreadContext
}

// Body is a method implementation.
type Body func(call *Call) (any, error)

// WovenMethod is a method body with its applied advice.
type WovenMethod struct {
	Method hierarchy.MethodSignature
	plans  []*plan
	orig   Body
	body   Body
}

// Advice returns the names of the applied advice in entry order.
func (wm *WovenMethod) Advice() []string {
	out := make([]string, len(wm.plans))
	for i, p := range wm.plans {
		out[i] = p.bound.Name()
	}
	return out
}

// Woven reports whether any advice was applied.
func (wm *WovenMethod) Woven() bool { return len(wm.plans) > 0 }

// Body returns the callable body.
func (wm *WovenMethod) Body() Body { return wm.body }

// Original returns the unwoven body.
func (wm *WovenMethod) Original() Body { return wm.orig }

// WovenClass is the result of weaving one class.
type WovenClass struct {
	Class   *hierarchy.AnalyzedClass
	Methods map[string]*WovenMethod
	Meta    *MetaCache
}

// Invoke calls the method with the given key.
func (wc *WovenClass) Invoke(key string, call *Call) (any, error) {
	wm, ok := wc.Methods[key]
	if !ok {
		return nil, core.MethodError("weaver.Invoke", wc.Class.Name(), key, "", ErrNoSuchMethod)
	}
	return wm.body(call)
}

// Option configures a Weaver.
type Option func(*Weaver)

// WithLogger sets the weaver logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Weaver) {
		if l != nil {
			w.log = l
		}
	}
}

// WithDiagnostics sets where isolated failures are reported, in addition to
// being returned from Weave.
func WithDiagnostics(s core.DiagnosticSink) Option {
	return func(w *Weaver) {
		if s != nil {
			w.sink = s
		}
	}
}

// Weaver produces woven classes.
type Weaver struct {
	log  logger.Logger
	sink core.DiagnosticSink
	now  func() time.Time
}

// New creates a Weaver.
func New(opts ...Option) *Weaver {
	w := &Weaver{log: logger.NewNop(), sink: core.DiscardDiagnostics, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Weaver) report(d core.Diagnostic) {
	d.Component = "weaver"
	if d.Time.IsZero() {
		d.Time = w.now()
	}
	w.log.Warn("Weave diagnostic",
		"class", d.Class, "method", d.Method, "advice", d.Advice, "error", d.Err)
	w.sink.Report(d)
}

// Weave wraps bodies according to match. Every declared method with a body
// is present in the result; a method that cannot be woven keeps its original
// body and gets a diagnostic. Failures never cross method boundaries.
func (w *Weaver) Weave(ctx context.Context, class *hierarchy.AnalyzedClass, match matcher.Result, bodies map[string]Body) (*WovenClass, []core.Diagnostic) {
	wc := &WovenClass{Class: class, Methods: make(map[string]*WovenMethod), Meta: newMetaCache()}
	var diags []core.Diagnostic
	emit := func(d core.Diagnostic) {
		d.Component = "weaver"
		d.Time = w.now()
		diags = append(diags, d)
		w.report(d)
	}

	for _, m := range class.Methods() {
		if ctx.Err() != nil {
			break
		}
		key := m.Key()
		body := bodies[key]
		mm, matched := match.Methods[key]

		if body == nil {
			if matched {
				emit(core.Diagnostic{Class: class.Name(), Method: key,
					Err: core.MethodError("weaver.Weave", class.Name(), key, "no body", core.ErrWeaveGeneration)})
			}
			continue
		}
		wm := &WovenMethod{Method: m, orig: body, body: body}
		wc.Methods[key] = wm
		if !matched {
			continue
		}
		if m.Modifiers.Has(hierarchy.Abstract) || m.Modifiers.Has(hierarchy.Native) {
			emit(core.Diagnostic{Class: class.Name(), Method: key,
				Err: core.MethodError("weaver.Weave", class.Name(), key, "abstract or native method", core.ErrWeaveGeneration)})
			continue
		}

		plans, err := w.generate(class, m, mm, wc.Meta, emit)
		if err != nil {
			emit(core.Diagnostic{Class: class.Name(), Method: key, Err: err})
			continue
		}
		if len(plans) == 0 {
			continue
		}
		wm.plans = plans
		wm.body = w.wrap(class.Name(), key, plans, body)
	}

	w.log.Debug("Class woven", "class", class.Name(), "methods", len(wc.Methods), "diagnostics", len(diags))
	return wc, diags
}

// generate compiles every advice of mm for m. Binding failures skip only the
// offending advice; a panic fails the whole method.
func (w *Weaver) generate(c *hierarchy.AnalyzedClass, m hierarchy.MethodSignature, mm matcher.MethodMatch, meta *MetaCache, emit func(core.Diagnostic)) (plans []*plan, err error) {
	defer func() {
		if r := recover(); r != nil {
			plans = nil
			err = core.MethodError("weaver.Weave", c.Name(), m.Key(), fmt.Sprintf("generation panicked: %v", r), core.ErrWeaveGeneration)
		}
	}()
	for _, b := range mm.Advice {
		p, perr := compilePlan(c, m, b, meta)
		if perr != nil {
			emit(core.Diagnostic{Class: c.Name(), Method: m.Key(), Advice: b.Name(),
				Err: core.MethodError("weaver.Weave", c.Name(), m.Key(), perr.Error(), core.ErrAdviceBinding)})
			continue
		}
		plans = append(plans, p)
	}
	return plans, nil
}
