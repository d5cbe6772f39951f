// Package weave is the entry point of the weaving engine. It re-exports the
// types adapters need and provides Engine, which wires the packages under
// pkg/ together:
//   - github.com/itsneelabh/weave/pkg/hierarchy - class shapes and the hierarchy index
//   - github.com/itsneelabh/weave/pkg/advice - advice descriptors and the registry
//   - github.com/itsneelabh/weave/pkg/matcher - pointcut matching
//   - github.com/itsneelabh/weave/pkg/weaver - hook injection around method bodies
//   - github.com/itsneelabh/weave/pkg/propagation - thread contexts and two-part completion
//   - github.com/itsneelabh/weave/pkg/agent - spans and timers for adapters
//   - github.com/itsneelabh/weave/pkg/closure - bootstrap reachability closure
package weave

import (
	"github.com/itsneelabh/weave/pkg/advice"
	"github.com/itsneelabh/weave/pkg/agent"
	"github.com/itsneelabh/weave/pkg/core"
	"github.com/itsneelabh/weave/pkg/hierarchy"
	"github.com/itsneelabh/weave/pkg/propagation"
	"github.com/itsneelabh/weave/pkg/weaver"
)

// Re-exported types
type (
	// Class model
	ClassShape    = hierarchy.ClassShape
	MethodShape   = hierarchy.MethodShape
	Loader        = hierarchy.Loader
	ShapeSource   = hierarchy.ShapeSource
	AnalyzedClass = hierarchy.AnalyzedClass

	// Advice
	Descriptor = advice.Descriptor
	Hooks      = advice.Hooks
	Bindings   = advice.Bindings
	Binding    = advice.Binding
	Args       = advice.Args

	// Weaving
	Call        = weaver.Call
	Body        = weaver.Body
	WovenClass  = weaver.WovenClass
	WovenMethod = weaver.WovenMethod

	// Propagation
	ThreadContext     = propagation.ThreadContext
	TraceContext      = propagation.TraceContext
	Holder            = propagation.Holder
	TwoPartCompletion = propagation.TwoPartCompletion

	// Agent SPI
	Agent               = agent.Agent
	Span                = agent.Span
	IncomingSpanRequest = agent.IncomingSpanRequest

	// Configuration
	Config = core.Config
)

// Version is the engine version.
const Version = core.Version

// Re-exported functions
var (
	NewMapSource      = hierarchy.NewMapSource
	NewThreadContext  = propagation.NewThreadContext
	WithThreadContext = propagation.WithThreadContext
	Run               = propagation.Run

	NewConfig     = core.NewConfig
	DefaultConfig = core.DefaultConfig

	// Configuration options
	WithName            = core.WithName
	WithLogLevel        = core.WithLogLevel
	WithLogFormat       = core.WithLogFormat
	WithPreloadHints    = core.WithPreloadHints
	WithRedisShapeStore = core.WithShapeStore
	WithTelemetry       = core.WithTelemetry
	WithStdoutTelemetry = core.WithStdoutTelemetry
	WithDiagnosticsAddr = core.WithDiagnosticsAddr
	WithConfigFile      = core.WithConfigFile
)
