package propagation

import "context"

// Decision is the outcome of entering an advice frame.
type Decision uint8

const (
	// Captured means the advice runs its hooks for this invocation.
	Captured Decision = iota
	// Nested means an outer frame of the same nesting group already captures.
	Nested
	// Suppressed means an ancestor asserted the key this advice is suppressible by.
	Suppressed
)

func (d Decision) String() string {
	switch d {
	case Captured:
		return "captured"
	case Nested:
		return "nested"
	case Suppressed:
		return "suppressed"
	default:
		return "unknown"
	}
}

type frame struct {
	group    GroupID
	asserted KeyID
	decision Decision
}

// ThreadContext is the per-goroutine state: the context holder plus the
// stack of active advice frames. It must only be used by its owning goroutine.
type ThreadContext struct {
	holder Holder
	frames []frame
}

// NewThreadContext returns an empty context for the calling goroutine.
func NewThreadContext() *ThreadContext {
	return &ThreadContext{frames: make([]frame, 0, 8)}
}

// Resume returns a new ThreadContext whose holder is re-established with tc.
// Used by continuations that pick up work belonging to tc on another goroutine.
func Resume(tc TraceContext) *ThreadContext {
	t := NewThreadContext()
	t.holder.Set(tc)
	return t
}

// Holder returns the goroutine's context holder.
func (t *ThreadContext) Holder() *Holder {
	return &t.holder
}

// Handoff copies the current context for another goroutine.
func (t *ThreadContext) Handoff() (TraceContext, bool) {
	return t.holder.Get()
}

// Enter pushes a frame for an advice with the given nesting group, the key it
// asserts when captured, and the key it can be suppressed by.
// Suppression overrides the nesting decision.
func (t *ThreadContext) Enter(group GroupID, asserts KeyID, suppressibleBy KeyID) Decision {
	d := t.decide(group, suppressibleBy)

	f := frame{group: group, decision: d}
	if d == Captured {
		f.asserted = asserts
	}
	t.frames = append(t.frames, f)
	return d
}

func (t *ThreadContext) decide(group GroupID, suppressibleBy KeyID) Decision {
	if suppressibleBy != 0 {
		for i := len(t.frames) - 1; i >= 0; i-- {
			if t.frames[i].asserted == suppressibleBy {
				return Suppressed
			}
		}
	}
	if group != 0 {
		for i := len(t.frames) - 1; i >= 0; i-- {
			if t.frames[i].group == group {
				return Nested
			}
		}
	}
	return Captured
}

// Exit pops the innermost frame. Exit on an empty stack is a no-op.
func (t *ThreadContext) Exit() {
	if n := len(t.frames); n > 0 {
		t.frames = t.frames[:n-1]
	}
}

// Depth returns the number of active frames.
func (t *ThreadContext) Depth() int {
	return len(t.frames)
}

// GroupActive reports whether group is active anywhere on the stack.
func (t *ThreadContext) GroupActive(group GroupID) bool {
	for _, f := range t.frames {
		if f.group == group {
			return true
		}
	}
	return false
}

// KeyAsserted reports whether key is asserted by an active captured frame.
func (t *ThreadContext) KeyAsserted(key KeyID) bool {
	for _, f := range t.frames {
		if key != 0 && f.asserted == key {
			return true
		}
	}
	return false
}

// Run executes fn on the calling goroutine with a fresh ThreadContext
// resumed from parent, clearing the holder when fn returns.
// Typical use is `go propagation.Run(parent, fn)`.
func Run(parent TraceContext, fn func(*ThreadContext)) {
	t := Resume(parent)
	defer t.holder.Clear()
	fn(t)
}

type threadContextKey struct{}

// WithThreadContext returns a context carrying t.
func WithThreadContext(ctx context.Context, t *ThreadContext) context.Context {
	return context.WithValue(ctx, threadContextKey{}, t)
}

// FromContext returns the ThreadContext carried by ctx, or nil.
func FromContext(ctx context.Context) *ThreadContext {
	if ctx == nil {
		return nil
	}
	t, _ := ctx.Value(threadContextKey{}).(*ThreadContext)
	return t
}
