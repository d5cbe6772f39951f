package weave

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/itsneelabh/weave/pkg/advice"
	"github.com/itsneelabh/weave/pkg/agent"
	"github.com/itsneelabh/weave/pkg/closure"
	"github.com/itsneelabh/weave/pkg/core"
	"github.com/itsneelabh/weave/pkg/hierarchy"
	"github.com/itsneelabh/weave/pkg/logger"
	"github.com/itsneelabh/weave/pkg/matcher"
	"github.com/itsneelabh/weave/pkg/propagation"
	"github.com/itsneelabh/weave/pkg/shapestore"
	"github.com/itsneelabh/weave/pkg/telemetry"
	"github.com/itsneelabh/weave/pkg/weaver"
)

// Option configures an Engine beyond what core.Config covers.
type Option func(*Engine)

// WithLogger replaces the logger built from the config.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) { e.Logger = l }
}

// WithTracerProvider replaces the provider built from the telemetry config.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tp = tp }
}

// WithMeterProvider sets the provider timers record into.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.mp = mp }
}

// WithShapeStore uses an existing store instead of dialing the configured
// Redis URL.
func WithShapeStore(s *shapestore.Store) Option {
	return func(e *Engine) { e.Shapes = s }
}

// Engine wires the hierarchy index, advice registry, matcher, weaver and
// agent into one unit.
type Engine struct {
	Config      *core.Config
	Logger      logger.Logger
	Index       *hierarchy.Index
	Interner    *propagation.Interner
	Registry    *advice.Registry
	Matches     *matcher.Cache
	Weaver      *weaver.Weaver
	Diagnostics *telemetry.Diagnostics
	Agent       *agent.OTel

	// Shapes is nil unless the shape store is enabled.
	Shapes *shapestore.Store

	tp       trace.TracerProvider
	mp       metric.MeterProvider
	provider *telemetry.Provider
	preload  sync.Map // loader id -> struct{}

	mu     sync.Mutex
	server *http.Server
}

// New builds a config from opts and creates an engine from it.
func New(ctx context.Context, opts ...core.Option) (*Engine, error) {
	cfg, err := core.NewConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create config: %w", err)
	}
	return NewEngine(ctx, cfg)
}

// NewEngine creates an engine from cfg.
func NewEngine(ctx context.Context, cfg *core.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = core.DefaultConfig()
	}
	e := &Engine{Config: cfg}
	for _, opt := range opts {
		opt(e)
	}

	if e.Logger == nil {
		l, err := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Name: cfg.Name})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		e.Logger = l
	}

	if e.tp == nil {
		p, err := telemetry.NewProvider(ctx, cfg.Telemetry)
		if err != nil {
			return nil, err
		}
		e.provider = p
		e.tp = p.TracerProvider
		if e.mp == nil {
			e.mp = p.MeterProvider
		}
	}
	if e.mp == nil {
		e.mp = otel.GetMeterProvider()
	}

	ag, err := agent.NewOTel(e.tp, e.mp, agent.WithLogger(e.Logger.WithField("component", "agent")))
	if err != nil {
		return nil, err
	}
	e.Agent = ag

	e.Diagnostics = telemetry.NewDiagnostics(cfg.Diagnostics.MaxEntries, nil)
	e.Index = hierarchy.NewIndex(hierarchy.WithLogger(e.Logger.WithField("component", "hierarchy")))
	e.Interner = propagation.NewInterner()
	e.Registry = advice.NewRegistry(e.Interner, advice.WithLogger(e.Logger.WithField("component", "advice")))
	e.Matches = matcher.NewCache()
	e.Weaver = weaver.New(
		weaver.WithLogger(e.Logger.WithField("component", "weaver")),
		weaver.WithDiagnostics(e.Diagnostics),
	)

	if e.Shapes == nil && cfg.ShapeStore.Enabled {
		s, err := shapestore.New(cfg.ShapeStore.RedisURL, cfg.ShapeStore.Prefix,
			shapestore.WithLogger(e.Logger.WithField("component", "shapestore")))
		if err != nil {
			return nil, err
		}
		e.Shapes = s
	}

	e.Logger.Info("Weave engine created",
		"name", cfg.Name,
		"shape_store", e.Shapes != nil,
		"telemetry", cfg.Telemetry.Enabled,
		"preload_hints", len(cfg.PreloadHints))
	return e, nil
}

// Register adds an adapter's advice. See advice.Registry.Register.
func (e *Engine) Register(adapter string, ds ...advice.Descriptor) error {
	if err := e.Registry.Register(adapter, ds...); err != nil {
		return err
	}
	e.Logger.Info("Advice registered", "adapter", adapter, "count", len(ds), "version", e.Registry.Version())
	return nil
}

// RegisterShim treats class as implementing facade when matching.
func (e *Engine) RegisterShim(class, facade string) {
	e.Index.RegisterShim(class, facade)
}

// NewLoader creates a loader. A nil source reads shapes from the shape store
// under the loader's name. Match results cached for the loader are dropped
// once it is collected.
func (e *Engine) NewLoader(name string, parent *hierarchy.Loader, src hierarchy.ShapeSource) (*hierarchy.Loader, error) {
	if src == nil {
		if e.Shapes == nil {
			return nil, core.NewWeaveError("Engine.NewLoader", "config",
				fmt.Errorf("loader %q has no source and the shape store is disabled: %w", name, core.ErrMissingConfiguration))
		}
		src = e.Shapes.Source(name)
	}
	l := hierarchy.NewLoader(name, parent, src)
	runtime.AddCleanup(l, e.forgetLoader, l.ID())
	return l, nil
}

func (e *Engine) forgetLoader(id uint64) {
	e.Matches.Forget(id)
	e.preload.Delete(id)
}

// Weave resolves className in l, matches the registered advice and wraps the
// given bodies. A class that cannot be analyzed is returned as an error and a
// diagnostic; per-method failures are diagnostics only and the method keeps
// its original body.
func (e *Engine) Weave(ctx context.Context, className string, l *hierarchy.Loader, bodies map[string]weaver.Body) (*weaver.WovenClass, error) {
	e.Preload(ctx, l)

	class, err := e.Index.Resolve(ctx, className, l)
	if err != nil {
		e.report("hierarchy", className, err)
		return nil, err
	}
	res, err := e.Matches.Match(ctx, e.Index, class, e.Registry)
	if err != nil {
		e.report("matcher", className, err)
		return nil, err
	}
	woven, diags := e.Weaver.Weave(ctx, class, res, bodies)
	e.Logger.Debug("Class woven",
		"class", className,
		"loader", l.Name(),
		"matched_methods", len(res.Methods),
		"diagnostics", len(diags))
	return woven, nil
}

// Redefine re-analyzes className; the next Weave sees the new shape.
func (e *Engine) Redefine(ctx context.Context, className string, l *hierarchy.Loader) (*hierarchy.AnalyzedClass, error) {
	c, err := e.Index.Redefine(ctx, className, l)
	if err != nil {
		e.report("hierarchy", className, err)
	}
	return c, err
}

// Preload resolves the configured preload hints the first time l is seen.
// It returns how many resolved; 0 on later calls or without a loader.
func (e *Engine) Preload(ctx context.Context, l *hierarchy.Loader) int {
	if l == nil || len(e.Config.PreloadHints) == 0 {
		return 0
	}
	if _, seen := e.preload.LoadOrStore(l.ID(), struct{}{}); seen {
		return 0
	}
	return e.Index.Preload(ctx, l, e.Config.PreloadHints...)
}

// VerifyPreinitialize checks the configured preinitialize list against the
// closure of prog's entry points.
func (e *Engine) VerifyPreinitialize(ctx context.Context, prog *closure.Program) error {
	expected := prog.Preinitialize
	if e.Config.PreinitializeFile != "" {
		list, err := closure.LoadList(e.Config.PreinitializeFile)
		if err != nil {
			return err
		}
		expected = list
	}
	types, err := closure.Closure(ctx, prog.Entries, prog)
	if err != nil {
		return err
	}
	if err := closure.Verify(expected, types); err != nil {
		e.Logger.Error("Preinitialize list does not match closure", "error", err)
		return err
	}
	e.Logger.Info("Preinitialize list verified", "types", len(types))
	return nil
}

func (e *Engine) report(component, class string, err error) {
	e.Logger.Warn("Weave diagnostic", "component", component, "class", class, "error", err)
	e.Diagnostics.Report(core.Diagnostic{Time: time.Now(), Component: component, Class: class, Err: err})
}

// Handler serves diagnostics and cache statistics as JSON.
func (e *Engine) Handler() http.Handler {
	return telemetry.Handler(e.Diagnostics,
		telemetry.WithTracerProvider(e.tp),
		telemetry.WithStats("hierarchy", func() any { return e.Index.Stats() }),
		telemetry.WithStats("matcher", func() any { return e.Matches.Stats() }),
		telemetry.WithStats("registry", func() any {
			return map[string]any{"advice": e.Registry.Len(), "version": e.Registry.Version()}
		}),
	)
}

// Start serves Handler on the configured diagnostics address and blocks.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.server != nil {
		e.mu.Unlock()
		return fmt.Errorf("diagnostics server already started")
	}
	if e.Config.Diagnostics.Addr == "" {
		e.mu.Unlock()
		return core.NewWeaveError("Engine.Start", "config",
			fmt.Errorf("diagnostics address not set: %w", core.ErrMissingConfiguration))
	}
	mux := http.NewServeMux()
	mux.Handle("/debug/weave", e.Handler())
	e.server = &http.Server{
		Addr:              e.Config.Diagnostics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := e.server
	e.mu.Unlock()

	e.Logger.Info("Starting diagnostics server", "address", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the diagnostics server, flushes spans and closes the shape
// store.
func (e *Engine) Shutdown(ctx context.Context) error {
	var errs []error
	e.mu.Lock()
	if e.server != nil {
		errs = append(errs, e.server.Shutdown(ctx))
		e.server = nil
	}
	e.mu.Unlock()

	if e.provider != nil {
		errs = append(errs, e.provider.Shutdown(ctx))
	}
	if e.Shapes != nil {
		errs = append(errs, e.Shapes.Close())
	}
	return errors.Join(errs...)
}
