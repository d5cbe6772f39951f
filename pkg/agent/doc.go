// Package agent is the span and timer surface that framework adapters call
// from their hooks.
//
// An adapter's Before hook typically starts an incoming span for a server
// entry point and returns it as the enter token; the Return and Throw hooks
// end it:
//
//	Before: func(a advice.Args) (any, error) {
//	    tc := a.At(0).(*propagation.ThreadContext)
//	    span := ag.StartIncomingSpan(ctx, agent.IncomingSpanRequest{
//	        TransactionType: "Web",
//	        TransactionName: a.At(1).(string),
//	        Holder:          tc.Holder(),
//	    })
//	    return span, nil
//	},
//	Return: func(a advice.Args) {
//	    if span, ok := a.At(0).(agent.Span); ok && span != nil {
//	        span.End()
//	    }
//	},
//
// # Transactions and the holder
//
// A non-nil span from StartIncomingSpan means the holder now carries the new
// transaction's TraceContext. Ending the span clears the holder: the
// synchronous portion of the transaction is over for that goroutine.
//
// # Asynchronous transactions
//
// When a transaction outlives the entry point (a servlet that started async
// processing, a callback-based client), the adapter calls EndSync at the end
// of the synchronous portion and EndAsync on completion, in either order and
// from any goroutine. The span is finished exactly once, when both happened.
//
// # OpenTelemetry
//
// OTel implements Agent on top of an otel TracerProvider and MeterProvider.
// Incoming spans continue a remote trace extracted from the request carrier
// with the W3C trace-context propagator. Timers record into a Float64Histogram.
package agent
