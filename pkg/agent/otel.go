package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	otelprop "go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/itsneelabh/weave/pkg/logger"
	"github.com/itsneelabh/weave/pkg/propagation"
)

const instrumentationName = "github.com/itsneelabh/weave/pkg/agent"

// Option configures an OTel agent.
type Option func(*OTel)

// WithLogger sets the agent logger.
func WithLogger(l logger.Logger) Option {
	return func(o *OTel) {
		if l != nil {
			o.log = l
		}
	}
}

// WithPropagator replaces the W3C trace-context propagator.
func WithPropagator(p otelprop.TextMapPropagator) Option {
	return func(o *OTel) {
		if p != nil {
			o.prop = p
		}
	}
}

// OTel implements Agent with OpenTelemetry.
type OTel struct {
	tracer trace.Tracer
	timers metric.Float64Histogram
	prop   otelprop.TextMapPropagator
	log    logger.Logger
	now    func() time.Time
}

// NewOTel creates an agent from the given providers.
func NewOTel(tp trace.TracerProvider, mp metric.MeterProvider, opts ...Option) (*OTel, error) {
	hist, err := mp.Meter(instrumentationName).Float64Histogram(
		"weave.timer.duration",
		metric.WithDescription("Duration of named timers started by adapters"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create timer histogram: %w", err)
	}
	o := &OTel{
		tracer: tp.Tracer(instrumentationName),
		timers: hist,
		prop:   otelprop.TraceContext{},
		log:    logger.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// carrier adapts a Getter to otel's TextMapCarrier.
type carrier struct {
	get Getter
	c   any
}

func (c carrier) Get(key string) string { return c.get(c.c, key) }
func (c carrier) Set(string, string)    {}
func (c carrier) Keys() []string        { return nil }

// StartIncomingSpan implements Agent.
func (o *OTel) StartIncomingSpan(ctx context.Context, req IncomingSpanRequest) Span {
	if req.Holder == nil {
		o.log.Debug("Incoming span without holder ignored", "transaction", req.TransactionName)
		return nil
	}
	if req.Holder.IsSet() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Getter != nil && req.Carrier != nil {
		ctx = o.prop.Extract(ctx, carrier{get: req.Getter, c: req.Carrier})
	}

	ctx, span := o.tracer.Start(ctx, req.TransactionName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("weave.transaction.type", req.TransactionType),
			attribute.Int("weave.nesting_group", int(req.NestingGroupID)),
			attribute.Int("weave.suppression_key", int(req.SuppressionKeyID)),
		),
	)
	tc := propagation.NewTraceContext(req.TransactionType, req.TransactionName, span.SpanContext())
	span.SetAttributes(attribute.String("weave.transaction.id", tc.TransactionID))
	req.Holder.Set(tc)

	s := &otelSpan{
		agent:  o,
		ctx:    ctx,
		span:   span,
		tc:     tc,
		holder: req.Holder,
		msg:    req.MessageSupplier,
		clear:  true,
	}
	if req.TimerName != "" {
		s.timer = o.StartTimer(ctx, req.TimerName)
	}
	s.completion = propagation.NewTwoPartCompletion(s.finish)
	return s
}

// StartLocalSpan implements Agent.
func (o *OTel) StartLocalSpan(ctx context.Context, holder *propagation.Holder, name string, msg MessageSupplier) Span {
	parent, ok := holder.Get()
	if !ok {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = trace.ContextWithSpanContext(ctx, parent.SpanContext)
	ctx, span := o.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("weave.transaction.id", parent.TransactionID)))

	tc := parent.WithSpanContext(span.SpanContext())
	holder.Set(tc)
	s := &otelSpan{
		agent:   o,
		ctx:     ctx,
		span:    span,
		tc:      tc,
		holder:  holder,
		msg:     msg,
		parent:  parent,
		restore: true,
	}
	s.completion = propagation.NewTwoPartCompletion(s.finish)
	return s
}

// StartTimer implements Agent.
func (o *OTel) StartTimer(ctx context.Context, name string) Timer {
	if ctx == nil {
		ctx = context.Background()
	}
	return &otelTimer{agent: o, ctx: ctx, name: name, start: o.now()}
}

type otelSpan struct {
	agent      *OTel
	ctx        context.Context
	span       trace.Span
	tc         propagation.TraceContext
	holder     *propagation.Holder
	msg        MessageSupplier
	timer      Timer
	completion *propagation.TwoPartCompletion

	// incoming spans clear the holder, local spans restore the parent
	clear   bool
	restore bool
	parent  propagation.TraceContext

	syncOnce sync.Once
}

func (s *otelSpan) End() {
	s.EndSync()
	s.EndAsync()
}

func (s *otelSpan) EndSync() {
	s.syncOnce.Do(func() {
		switch {
		case s.clear:
			s.holder.Clear()
		case s.restore:
			s.holder.Set(s.parent)
		}
	})
	s.completion.CompletePart1()
}

func (s *otelSpan) EndAsync() {
	s.completion.CompletePart2()
}

func (s *otelSpan) SetError(failure any) {
	switch f := failure.(type) {
	case nil:
		return
	case error:
		s.span.RecordError(f)
		s.span.SetStatus(codes.Error, f.Error())
	default:
		msg := fmt.Sprintf("panic: %v", f)
		s.span.AddEvent("panic", trace.WithAttributes(attribute.String("weave.panic", msg)))
		s.span.SetStatus(codes.Error, msg)
	}
}

func (s *otelSpan) Context() propagation.TraceContext { return s.tc }

// finish runs exactly once, after both completion parts.
func (s *otelSpan) finish() {
	if s.msg != nil {
		s.span.SetAttributes(attribute.String("weave.message", s.msg()))
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.span.End()
}

type otelTimer struct {
	agent *OTel
	ctx   context.Context
	name  string
	start time.Time
	once  sync.Once
}

func (t *otelTimer) Stop() {
	t.once.Do(func() {
		elapsed := t.agent.now().Sub(t.start)
		t.agent.timers.Record(t.ctx, elapsed.Seconds(),
			metric.WithAttributes(attribute.String("weave.timer.name", t.name)))
	})
}
