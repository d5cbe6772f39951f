package agent

import (
	"context"

	"github.com/itsneelabh/weave/pkg/propagation"
)

// Getter reads one header from a request carrier.
type Getter func(carrier any, key string) string

// MessageSupplier builds the span message lazily, when the span finishes.
type MessageSupplier func() string

// IncomingSpanRequest describes a server entry point.
type IncomingSpanRequest struct {
	TransactionType string
	TransactionName string

	// Getter and Carrier, when set, are used to continue a remote trace.
	Getter  Getter
	Carrier any

	MessageSupplier MessageSupplier
	TimerName       string

	// Holder receives the new transaction's context.
	Holder *propagation.Holder

	NestingGroupID   propagation.GroupID
	SuppressionKeyID propagation.KeyID
}

// Span is an active span.
type Span interface {
	// End ends the synchronous portion and finishes the span.
	End()
	// EndSync ends the synchronous portion only. The holder is cleared.
	EndSync()
	// EndAsync marks asynchronous completion.
	EndAsync()
	// SetError records a failure; an error or a panic value.
	SetError(failure any)
	// Context returns the span's trace context.
	Context() propagation.TraceContext
}

// Timer measures one duration.
type Timer interface {
	Stop()
}

// Agent starts spans and timers.
type Agent interface {
	// StartIncomingSpan starts a transaction. It returns nil when the holder
	// is missing or already carries a transaction.
	StartIncomingSpan(ctx context.Context, req IncomingSpanRequest) Span

	// StartLocalSpan starts a child of the transaction in holder. It returns
	// nil outside a transaction. While the span is active the holder points
	// at it; ending it restores the parent.
	StartLocalSpan(ctx context.Context, holder *propagation.Holder, name string, msg MessageSupplier) Span

	// StartTimer starts a named timer.
	StartTimer(ctx context.Context, name string) Timer
}
