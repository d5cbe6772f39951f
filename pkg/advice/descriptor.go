package advice

import (
	"fmt"

	"github.com/itsneelabh/weave/pkg/hierarchy"
)

// BindingKind names a value a hook parameter can be bound to.
type BindingKind uint8

const (
	BindReceiver BindingKind = iota + 1
	BindArg
	BindArgs
	BindMethodName
	BindClassMeta
	BindMethodMeta
	BindThreadContext
	BindEnterToken
	BindReturn
	BindFailure
)

var bindingNames = map[BindingKind]string{
	BindReceiver:      "receiver",
	BindArg:           "arg",
	BindArgs:          "args",
	BindMethodName:    "method-name",
	BindClassMeta:     "class-meta",
	BindMethodMeta:    "method-meta",
	BindThreadContext: "thread-context",
	BindEnterToken:    "enter-token",
	BindReturn:        "return",
	BindFailure:       "failure",
}

func (k BindingKind) String() string {
	if s, ok := bindingNames[k]; ok {
		return s
	}
	return "unknown"
}

// Binding selects one value passed to a hook.
type Binding struct {
	Kind  BindingKind
	Index int
}

func (b Binding) String() string {
	switch b.Kind {
	case BindArg, BindClassMeta, BindMethodMeta:
		return fmt.Sprintf("%s(%d)", b.Kind, b.Index)
	}
	return b.Kind.String()
}

// Receiver binds the target instance (nil for static methods).
func Receiver() Binding { return Binding{Kind: BindReceiver} }

// Arg binds argument i.
func Arg(i int) Binding { return Binding{Kind: BindArg, Index: i} }

// AllArgs binds the argument slice.
func AllArgs() Binding { return Binding{Kind: BindArgs} }

// MethodName binds the intercepted method's name.
func MethodName() Binding { return Binding{Kind: BindMethodName} }

// ClassMeta binds the value produced by the descriptor's ClassMeta[i].
func ClassMeta(i int) Binding { return Binding{Kind: BindClassMeta, Index: i} }

// MethodMeta binds the value produced by the descriptor's MethodMeta[i].
func MethodMeta(i int) Binding { return Binding{Kind: BindMethodMeta, Index: i} }

// ThreadContext binds the invoking goroutine's *propagation.ThreadContext.
func ThreadContext() Binding { return Binding{Kind: BindThreadContext} }

// EnterToken binds the value returned by Before.
func EnterToken() Binding { return Binding{Kind: BindEnterToken} }

// ReturnValue binds the method result.
func ReturnValue() Binding { return Binding{Kind: BindReturn} }

// Failure binds the escaping error or panic value.
func Failure() Binding { return Binding{Kind: BindFailure} }

// Args carries hook parameters in the order of the hook's bindings.
type Args []any

// At returns the i-th bound value or nil.
func (a Args) At(i int) any {
	if i < 0 || i >= len(a) {
		return nil
	}
	return a[i]
}

// Hooks are the adapter callbacks run around an intercepted method.
// Any of them may be nil.
type Hooks struct {
	IsEnabled func(Args) bool
	Before    func(Args) (any, error)
	Return    func(Args)
	Throw     func(Args)
}

// Bindings lists, per hook, the values that hook receives.
type Bindings struct {
	IsEnabled []Binding
	Before    []Binding
	Return    []Binding
	Throw     []Binding
}

// ClassMetaFunc builds per-class metadata once, on first use.
type ClassMetaFunc func(c *hierarchy.AnalyzedClass) any

// MethodMetaFunc builds per-method metadata once, on first use.
type MethodMetaFunc func(c *hierarchy.AnalyzedClass, m hierarchy.MethodSignature) any

// Descriptor is one advice declaration. ClassName/ClassAnnotation and
// MethodName/MethodAnnotation are Patterns; see Compile. ParamTypes nil means
// any parameters.
type Descriptor struct {
	Name string

	ClassName        string
	ClassAnnotation  string
	MethodName       string
	MethodAnnotation string
	ParamTypes       []string

	// NestingGroup makes nested advice of the same group inactive.
	NestingGroup string
	// SuppressionKey is asserted for descendants while this advice is captured.
	SuppressionKey string
	// SuppressibleUsingKey makes this advice inactive under a frame asserting
	// the key. Defaults to SuppressionKey.
	SuppressibleUsingKey string

	// Order sorts advice ahead of registration order; lower runs outer.
	Order int

	Hooks      Hooks
	Bindings   Bindings
	ClassMeta  []ClassMetaFunc
	MethodMeta []MethodMetaFunc
}

func (d *Descriptor) displayName() string {
	if d.Name != "" {
		return d.Name
	}
	if d.ClassName != "" {
		return d.ClassName + "#" + d.MethodName
	}
	return "@" + d.ClassAnnotation + "#" + d.MethodName
}
