package weaver

import (
	"fmt"

	"github.com/itsneelabh/weave/pkg/advice"
	"github.com/itsneelabh/weave/pkg/hierarchy"
)

type hook uint8

const (
	hookIsEnabled hook = iota
	hookBefore
	hookReturn
	hookThrow
)

func (h hook) String() string {
	switch h {
	case hookIsEnabled:
		return "is-enabled"
	case hookBefore:
		return "before"
	case hookReturn:
		return "return"
	default:
		return "throw"
	}
}

// frame is the per-advice state of one invocation.
type frame struct {
	call    *Call
	token   any
	result  any
	failure any
}

type resolver func(f *frame) any

// plan is one advice compiled against one method.
type plan struct {
	bound     *advice.Bound
	isEnabled []resolver
	before    []resolver
	ret       []resolver
	throw     []resolver
}

func (p *plan) args(rs []resolver, f *frame) advice.Args {
	if len(rs) == 0 {
		return nil
	}
	out := make(advice.Args, len(rs))
	for i, r := range rs {
		out[i] = r(f)
	}
	return out
}

// compilePlan checks every binding of b against m and resolves metadata
// slots. An error means b cannot be applied to m.
func compilePlan(c *hierarchy.AnalyzedClass, m hierarchy.MethodSignature, b *advice.Bound, meta *MetaCache) (*plan, error) {
	p := &plan{bound: b}
	d := &b.Descriptor
	var err error
	if d.Hooks.IsEnabled != nil {
		if p.isEnabled, err = resolvers(hookIsEnabled, d.Bindings.IsEnabled, c, m, b, meta); err != nil {
			return nil, err
		}
	}
	if d.Hooks.Before != nil {
		if p.before, err = resolvers(hookBefore, d.Bindings.Before, c, m, b, meta); err != nil {
			return nil, err
		}
	}
	if d.Hooks.Return != nil {
		if p.ret, err = resolvers(hookReturn, d.Bindings.Return, c, m, b, meta); err != nil {
			return nil, err
		}
	}
	if d.Hooks.Throw != nil {
		if p.throw, err = resolvers(hookThrow, d.Bindings.Throw, c, m, b, meta); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func resolvers(h hook, bs []advice.Binding, c *hierarchy.AnalyzedClass, m hierarchy.MethodSignature, b *advice.Bound, meta *MetaCache) ([]resolver, error) {
	out := make([]resolver, 0, len(bs))
	for _, bd := range bs {
		r, err := resolverFor(h, bd, c, m, b, meta)
		if err != nil {
			return nil, fmt.Errorf("%s hook binding %s: %w", h, bd, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func resolverFor(h hook, bd advice.Binding, c *hierarchy.AnalyzedClass, m hierarchy.MethodSignature, b *advice.Bound, meta *MetaCache) (resolver, error) {
	switch bd.Kind {
	case advice.BindReceiver:
		if m.Modifiers.Has(hierarchy.Static) {
			return nil, fmt.Errorf("static method has no receiver")
		}
		return func(f *frame) any { return f.call.Receiver }, nil

	case advice.BindArg:
		if bd.Index < 0 || bd.Index >= len(m.ParamTypes) {
			return nil, fmt.Errorf("method takes %d arguments", len(m.ParamTypes))
		}
		i := bd.Index
		return func(f *frame) any {
			if i < len(f.call.Args) {
				return f.call.Args[i]
			}
			return nil
		}, nil

	case advice.BindArgs:
		return func(f *frame) any { return f.call.Args }, nil

	case advice.BindMethodName:
		name := m.Name
		return func(*frame) any { return name }, nil

	case advice.BindClassMeta:
		if bd.Index < 0 || bd.Index >= len(b.Descriptor.ClassMeta) {
			return nil, fmt.Errorf("advice declares %d class metadata factories", len(b.Descriptor.ClassMeta))
		}
		slot := meta.classSlot(c, b, bd.Index)
		return func(*frame) any { return meta.ClassMeta(slot) }, nil

	case advice.BindMethodMeta:
		if bd.Index < 0 || bd.Index >= len(b.Descriptor.MethodMeta) {
			return nil, fmt.Errorf("advice declares %d method metadata factories", len(b.Descriptor.MethodMeta))
		}
		slot := meta.methodSlot(c, m, b, bd.Index)
		return func(*frame) any { return meta.MethodMeta(slot) }, nil

	case advice.BindThreadContext:
		return func(f *frame) any { return f.call.Thread }, nil

	case advice.BindEnterToken:
		if h != hookReturn && h != hookThrow {
			return nil, fmt.Errorf("enter token exists only after before")
		}
		return func(f *frame) any { return f.token }, nil

	case advice.BindReturn:
		if h != hookReturn {
			return nil, fmt.Errorf("return value is only available to the return hook")
		}
		if m.IsVoid() {
			return nil, fmt.Errorf("method returns void")
		}
		return func(f *frame) any { return f.result }, nil

	case advice.BindFailure:
		if h != hookThrow {
			return nil, fmt.Errorf("failure is only available to the throw hook")
		}
		return func(f *frame) any { return f.failure }, nil
	}
	return nil, fmt.Errorf("unknown binding kind %d", bd.Kind)
}
