package weaver

import (
	"context"
	"fmt"

	"github.com/itsneelabh/weave/pkg/core"
	"github.com/itsneelabh/weave/pkg/propagation"
)

// outcome of running user code: a value, a returned error, or a panic.
type outcome struct {
	value    any
	err      error
	panicked bool
	pval     any
}

func (o outcome) failed() bool { return o.err != nil || o.panicked }

// failure is what Throw hooks see: the returned error or the panic value.
func (o outcome) failure() any {
	if o.panicked {
		return o.pval
	}
	return o.err
}

// rethrow hands the original failure back to the caller unchanged.
func (o outcome) rethrow() (any, error) {
	if o.panicked {
		panic(o.pval)
	}
	return o.value, o.err
}

func capture(fn func() (any, error)) (o outcome) {
	done := false
	defer func() {
		if !done {
			o.panicked = true
			o.pval = recover()
		}
	}()
	o.value, o.err = fn()
	done = true
	return o
}

func threadFor(call *Call) *propagation.ThreadContext {
	if call.Thread != nil {
		return call.Thread
	}
	if tc := propagation.FromContext(call.Ctx); tc != nil {
		call.Thread = tc
		return tc
	}
	// nested calls that only forward Ctx must see the same stack
	ctx := call.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	call.Thread = propagation.NewThreadContext()
	call.Ctx = propagation.WithThreadContext(ctx, call.Thread)
	return call.Thread
}

func (w *Weaver) wrap(class, method string, plans []*plan, body Body) Body {
	return func(call *Call) (any, error) {
		if call == nil {
			call = &Call{}
		}
		tc := threadFor(call)

		entered := make([]*frame, 0, len(plans))
		enteredPlans := make([]*plan, 0, len(plans))
		pushed := 0
		defer func() {
			for ; pushed > 0; pushed-- {
				tc.Exit()
			}
		}()

		for _, p := range plans {
			f := &frame{call: call}
			if p.bound.Descriptor.Hooks.IsEnabled != nil && !w.enabled(class, method, p, f) {
				continue
			}
			if tc.Enter(p.bound.Group, p.bound.Key, p.bound.SuppressibleBy) != propagation.Captured {
				pushed++
				continue
			}
			pushed++

			if before := p.bound.Descriptor.Hooks.Before; before != nil {
				o := capture(func() (any, error) { return before(p.args(p.before, f)) })
				if o.failed() {
					w.unwindThrow(class, method, enteredPlans, entered, o.failure())
					return o.rethrow()
				}
				f.token = o.value
			}
			entered = append(entered, f)
			enteredPlans = append(enteredPlans, p)
		}

		o := capture(func() (any, error) { return body(call) })
		if o.failed() {
			w.unwindThrow(class, method, enteredPlans, entered, o.failure())
			return o.rethrow()
		}
		for i := len(entered) - 1; i >= 0; i-- {
			p, f := enteredPlans[i], entered[i]
			ret := p.bound.Descriptor.Hooks.Return
			if ret == nil {
				continue
			}
			f.result = o.value
			w.guard(class, method, p, "return", func() { ret(p.args(p.ret, f)) })
		}
		return o.value, nil
	}
}

func (w *Weaver) unwindThrow(class, method string, plans []*plan, frames []*frame, failure any) {
	for i := len(frames) - 1; i >= 0; i-- {
		p, f := plans[i], frames[i]
		throw := p.bound.Descriptor.Hooks.Throw
		if throw == nil {
			continue
		}
		f.failure = failure
		w.guard(class, method, p, "throw", func() { throw(p.args(p.throw, f)) })
	}
}

func (w *Weaver) enabled(class, method string, p *plan, f *frame) (ok bool) {
	is := p.bound.Descriptor.Hooks.IsEnabled
	w.guard(class, method, p, "is-enabled", func() { ok = is(p.args(p.isEnabled, f)) })
	return ok
}

// guard runs an adapter hook whose failure must not replace the outcome of
// the intercepted method.
func (w *Weaver) guard(class, method string, p *plan, phase string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			w.report(core.Diagnostic{
				Class:  class,
				Method: method,
				Advice: p.bound.Name(),
				Err:    core.MethodError("weaver.invoke", class, method, phase+" hook panicked", fmt.Errorf("%v", r)),
			})
		}
	}()
	fn()
}
