// Package propagation carries the current trace context across goroutine
// hops and decides, per advice entry, whether an invocation is captured.
//
// # Ownership
//
// A ThreadContext belongs to exactly one goroutine: the one executing the
// frames it tracks. It is never shared. Crossing into another goroutine is
// an explicit copy of the immutable TraceContext value:
//
//	tc := propagation.FromContext(ctx)
//	parent, ok := tc.Handoff()
//	go propagation.Run(parent, func(child *propagation.ThreadContext) {
//	    // child.Holder() already holds parent
//	})
//
// # Capture decisions
//
// Every woven advice entry pushes a frame carrying its nesting group and the
// suppression key it asserts. Enter reports whether the new frame is
// captured, collapsed into an outer capture of the same group, or suppressed
// by a key an ancestor asserted. Exit pops the frame.
package propagation

import (
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// TraceContext is the immutable "current context" value. Copies are cheap and
// safe to hand to other goroutines.
type TraceContext struct {
	TransactionID   string
	TransactionType string
	TransactionName string
	SpanContext     trace.SpanContext
}

// NewTraceContext creates a context for a new transaction with a fresh id.
func NewTraceContext(txType, txName string, sc trace.SpanContext) TraceContext {
	return TraceContext{
		TransactionID:   uuid.NewString(),
		TransactionType: txType,
		TransactionName: txName,
		SpanContext:     sc,
	}
}

// IsZero reports whether tc is the zero value.
func (tc TraceContext) IsZero() bool {
	return tc.TransactionID == "" && !tc.SpanContext.IsValid()
}

// WithSpanContext returns a copy of tc pointing at sc.
func (tc TraceContext) WithSpanContext(sc trace.SpanContext) TraceContext {
	tc.SpanContext = sc
	return tc
}

// Holder is a single slot holding at most one TraceContext.
// Its content is only meaningful after an explicit Set.
type Holder struct {
	current TraceContext
	set     bool
}

// Set stores tc as the current context.
func (h *Holder) Set(tc TraceContext) {
	h.current = tc
	h.set = true
}

// Get returns the current context and whether one is set.
func (h *Holder) Get() (TraceContext, bool) {
	if h == nil || !h.set {
		return TraceContext{}, false
	}
	return h.current, true
}

// Clear ends the association.
func (h *Holder) Clear() {
	h.current = TraceContext{}
	h.set = false
}

// IsSet reports whether the holder currently holds a context.
func (h *Holder) IsSet() bool {
	return h != nil && h.set
}
