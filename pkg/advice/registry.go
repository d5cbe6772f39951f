package advice

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/itsneelabh/weave/pkg/core"
	"github.com/itsneelabh/weave/pkg/logger"
	"github.com/itsneelabh/weave/pkg/propagation"
)

// Bound is a registered, compiled descriptor. It is immutable.
type Bound struct {
	Adapter    string
	Seq        int
	Descriptor Descriptor

	Group          propagation.GroupID
	Key            propagation.KeyID
	SuppressibleBy propagation.KeyID

	className  Pattern
	classAnno  Pattern
	methodName Pattern
	methodAnno Pattern
	params     ParamPatterns
}

// Name identifies the advice in diagnostics.
func (b *Bound) Name() string {
	return b.Adapter + "/" + b.Descriptor.displayName()
}

// HasClassName reports whether a class name criterion is set.
func (b *Bound) HasClassName() bool { return !b.className.IsEmpty() }

// HasClassAnnotation reports whether a class annotation criterion is set.
func (b *Bound) HasClassAnnotation() bool { return !b.classAnno.IsEmpty() }

// HasMethodName reports whether a method name criterion is set.
func (b *Bound) HasMethodName() bool { return !b.methodName.IsEmpty() }

// HasMethodAnnotation reports whether a method annotation criterion is set.
func (b *Bound) HasMethodAnnotation() bool { return !b.methodAnno.IsEmpty() }

// MatchClassName tests the class name criterion. Unset criteria never match.
func (b *Bound) MatchClassName(name string) bool {
	return b.HasClassName() && b.className.Match(name)
}

// MatchClassAnnotation tests the class annotation criterion.
func (b *Bound) MatchClassAnnotation(annos []string) bool {
	return b.HasClassAnnotation() && b.classAnno.MatchAny(annos)
}

// MatchMethodName tests the method name criterion.
func (b *Bound) MatchMethodName(name string) bool {
	return b.HasMethodName() && b.methodName.Match(name)
}

// MatchMethodAnnotation tests the method annotation criterion.
func (b *Bound) MatchMethodAnnotation(annos []string) bool {
	return b.HasMethodAnnotation() && b.methodAnno.MatchAny(annos)
}

// MatchParams tests the parameter type criterion.
func (b *Bound) MatchParams(params []string) bool {
	return b.params.Match(params)
}

func compile(adapter string, seq int, d Descriptor) (*Bound, error) {
	fail := func(msg string, err error) error {
		we := core.NewWeaveError("advice.Register", "descriptor", fmt.Errorf("%w: %w", core.ErrInvalidDescriptor, err))
		we.Message = msg
		we.Class = adapter + "/" + d.displayName()
		return we
	}
	if d.ClassName == "" && d.ClassAnnotation == "" {
		return nil, fail("no class criterion", errors.New("class name or class annotation required"))
	}
	if d.MethodName == "" && d.MethodAnnotation == "" {
		return nil, fail("no method criterion", errors.New("method name or method annotation required"))
	}
	if d.Hooks.Before == nil && d.Hooks.Return == nil && d.Hooks.Throw == nil {
		return nil, fail("no hooks", errors.New("at least one of before, return or throw required"))
	}

	b := &Bound{Adapter: adapter, Seq: seq, Descriptor: d}
	var err error
	for _, f := range []struct {
		dst *Pattern
		src string
	}{
		{&b.className, d.ClassName},
		{&b.classAnno, d.ClassAnnotation},
		{&b.methodName, d.MethodName},
		{&b.methodAnno, d.MethodAnnotation},
	} {
		if *f.dst, err = Compile(f.src); err != nil {
			return nil, fail("bad pattern", err)
		}
	}
	if b.params, err = CompileParams(d.ParamTypes); err != nil {
		return nil, fail("bad parameter patterns", err)
	}

	b.Descriptor.ParamTypes = slices.Clone(d.ParamTypes)
	b.Descriptor.ClassMeta = slices.Clone(d.ClassMeta)
	b.Descriptor.MethodMeta = slices.Clone(d.MethodMeta)
	return b, nil
}

// intern assigns the nesting and suppression ids of an accepted b.
func (b *Bound) intern(in *propagation.Interner) {
	d := &b.Descriptor
	b.Group = in.Group(d.NestingGroup)
	b.Key = in.Key(d.SuppressionKey)
	suppressible := d.SuppressibleUsingKey
	if suppressible == "" {
		suppressible = d.SuppressionKey
	}
	b.SuppressibleBy = in.Key(suppressible)
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l logger.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// Registry holds advice from all adapters in a stable order.
type Registry struct {
	log      logger.Logger
	interner *propagation.Interner

	mu      sync.Mutex
	seq     int
	bound   []*Bound
	version atomic.Uint64
}

// NewRegistry creates a registry interning labels with in. A nil interner
// gets a private one.
func NewRegistry(in *propagation.Interner, opts ...RegistryOption) *Registry {
	if in == nil {
		in = propagation.NewInterner()
	}
	r := &Registry{log: logger.NewNop(), interner: in}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Interner returns the label interner.
func (r *Registry) Interner() *propagation.Interner { return r.interner }

// Register validates and adds ds. Either all descriptors are added or none.
func (r *Registry) Register(adapter string, ds ...Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	compiled := make([]*Bound, 0, len(ds))
	var errs []error
	for i, d := range ds {
		b, err := compile(adapter, r.seq+i, d)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		compiled = append(compiled, b)
	}
	if len(errs) > 0 {
		r.log.Warn("Advice rejected", "adapter", adapter, "errors", len(errs))
		return errors.Join(errs...)
	}
	for _, b := range compiled {
		b.intern(r.interner)
	}

	next := make([]*Bound, 0, len(r.bound)+len(compiled))
	next = append(next, r.bound...)
	next = append(next, compiled...)
	sort.SliceStable(next, func(i, j int) bool {
		if next[i].Descriptor.Order != next[j].Descriptor.Order {
			return next[i].Descriptor.Order < next[j].Descriptor.Order
		}
		return next[i].Seq < next[j].Seq
	})
	r.bound = next
	r.seq += len(ds)
	v := r.version.Add(1)
	r.log.Info("Advice registered", "adapter", adapter, "count", len(compiled), "version", v)
	return nil
}

// Snapshot returns the registered advice in entry order. The slice is shared
// and must not be modified.
func (r *Registry) Snapshot() []*Bound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bound
}

// Version increments on every successful Register.
func (r *Registry) Version() uint64 { return r.version.Load() }

// Len returns the number of registered descriptors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bound)
}
