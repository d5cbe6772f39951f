package weaver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/weave/pkg/advice"
	"github.com/itsneelabh/weave/pkg/core"
	"github.com/itsneelabh/weave/pkg/hierarchy"
	"github.com/itsneelabh/weave/pkg/matcher"
	"github.com/itsneelabh/weave/pkg/propagation"
)

// recorder collects hook events in order.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// tracing returns a descriptor whose hooks record name-prefixed events.
func tracing(rec *recorder, name, class, method string) advice.Descriptor {
	return advice.Descriptor{
		Name:       name,
		ClassName:  class,
		MethodName: method,
		Hooks: advice.Hooks{
			Before: func(a advice.Args) (any, error) {
				rec.add("%s.before", name)
				return name + "-token", nil
			},
			Return: func(a advice.Args) { rec.add("%s.return(%v)", name, a.At(0)) },
			Throw:  func(a advice.Args) { rec.add("%s.throw(%v,%v)", name, a.At(0), a.At(1)) },
		},
		Bindings: advice.Bindings{
			Return: []advice.Binding{advice.EnterToken()},
			Throw:  []advice.Binding{advice.EnterToken(), advice.Failure()},
		},
	}
}

func sig(name, ret string, params ...string) hierarchy.MethodShape {
	return hierarchy.MethodShape{MethodSignature: hierarchy.MethodSignature{Name: name, ParamTypes: params, ReturnType: ret}}
}

type harness struct {
	idx    *hierarchy.Index
	loader *hierarchy.Loader
	reg    *advice.Registry
	w      *Weaver
	diags  []core.Diagnostic
	mu     sync.Mutex
}

func newHarness(t *testing.T, shapes ...*hierarchy.ClassShape) *harness {
	t.Helper()
	h := &harness{
		idx:    hierarchy.NewIndex(),
		loader: hierarchy.NewLoader("app", nil, hierarchy.NewMapSource(shapes...)),
		reg:    advice.NewRegistry(nil),
	}
	h.w = New(WithDiagnostics(core.DiagnosticFunc(func(d core.Diagnostic) {
		h.mu.Lock()
		h.diags = append(h.diags, d)
		h.mu.Unlock()
	})))
	return h
}

func (h *harness) weave(t *testing.T, class string, bodies map[string]Body) (*WovenClass, []core.Diagnostic) {
	t.Helper()
	ctx := context.Background()
	c, err := h.idx.Resolve(ctx, class, h.loader)
	require.NoError(t, err)
	res, err := matcher.Match(ctx, h.idx, c, h.reg.Snapshot())
	require.NoError(t, err)
	return h.w.Weave(ctx, c, res, bodies)
}

func (h *harness) reported() []core.Diagnostic {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]core.Diagnostic(nil), h.diags...)
}

func TestHooksAroundNormalReturn(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, &hierarchy.ClassShape{Name: "svc.Orders", Methods: []hierarchy.MethodShape{sig("place", "java.lang.String", "int")}})

	var gotBefore advice.Args
	d := tracing(rec, "outer", "svc.Orders", "place")
	d.Hooks.Before = func(a advice.Args) (any, error) {
		gotBefore = a
		rec.add("outer.before")
		return "outer-token", nil
	}
	d.Hooks.Return = func(a advice.Args) { rec.add("outer.return(%v,%v)", a.At(0), a.At(1)) }
	d.Bindings.Return = []advice.Binding{advice.EnterToken(), advice.ReturnValue()}
	d.Bindings.Before = []advice.Binding{advice.Receiver(), advice.Arg(0), advice.MethodName()}
	require.NoError(t, h.reg.Register("t", d, tracing(rec, "inner", "svc.Orders", "place")))

	wc, diags := h.weave(t, "svc.Orders", map[string]Body{
		"place(int)": func(c *Call) (any, error) {
			rec.add("body")
			return fmt.Sprintf("order-%v", c.Args[0]), nil
		},
	})
	require.Empty(t, diags)
	assert.Equal(t, []string{"t/outer", "t/inner"}, wc.Methods["place(int)"].Advice())

	out, err := wc.Invoke("place(int)", &Call{Receiver: "orders", Args: []any{42}})
	require.NoError(t, err)
	assert.Equal(t, "order-42", out)
	assert.Equal(t, []string{
		"outer.before",
		"inner.before",
		"body",
		"inner.return(inner-token)",
		"outer.return(outer-token,order-42)",
	}, rec.list())
	assert.Equal(t, advice.Args{"orders", 42, "place"}, gotBefore)
}

func TestBeforeFailure(t *testing.T) {
	boom := errors.New("before failed")

	for _, mode := range []string{"error", "panic"} {
		t.Run(mode, func(t *testing.T) {
			rec := &recorder{}
			h := newHarness(t, &hierarchy.ClassShape{Name: "a.S", Methods: []hierarchy.MethodShape{sig("run", "void")}})
			failing := tracing(rec, "failing", "a.S", "run")
			failing.Hooks.Before = func(advice.Args) (any, error) {
				rec.add("failing.before")
				if mode == "panic" {
					panic(boom)
				}
				return nil, boom
			}
			require.NoError(t, h.reg.Register("t",
				tracing(rec, "outer", "a.S", "run"),
				failing,
				tracing(rec, "never", "a.S", "run"),
			))

			ran := false
			wc, _ := h.weave(t, "a.S", map[string]Body{"run()": func(*Call) (any, error) {
				ran = true
				return nil, nil
			}})

			tc := propagation.NewThreadContext()
			if mode == "panic" {
				assert.PanicsWithValue(t, boom, func() { _, _ = wc.Invoke("run()", &Call{Thread: tc}) })
			} else {
				_, err := wc.Invoke("run()", &Call{Thread: tc})
				assert.True(t, err == boom, "failure propagates unchanged")
			}
			assert.False(t, ran, "body must not run")
			assert.Equal(t, []string{
				"outer.before",
				"failing.before",
				"outer.throw(outer-token,before failed)",
			}, rec.list())
			assert.Equal(t, 0, tc.Depth(), "frames unwound")
		})
	}
}

func TestBodyFailureReachesCallerUnchanged(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, &hierarchy.ClassShape{Name: "a.S", Methods: []hierarchy.MethodShape{sig("fail", "void"), sig("crash", "void")}})
	require.NoError(t, h.reg.Register("t",
		tracing(rec, "one", "a.S", "fail|crash"),
		tracing(rec, "two", "a.S", "fail|crash"),
	))

	appErr := errors.New("insufficient funds")
	type custom struct{ code int }
	pv := &custom{code: 7}
	wc, _ := h.weave(t, "a.S", map[string]Body{
		"fail()":  func(*Call) (any, error) { return nil, appErr },
		"crash()": func(*Call) (any, error) { panic(pv) },
	})

	_, err := wc.Invoke("fail()", &Call{})
	assert.True(t, err == appErr)
	assert.Equal(t, []string{
		"one.before", "two.before",
		"two.throw(two-token,insufficient funds)",
		"one.throw(one-token,insufficient funds)",
	}, rec.list())

	rec.events = nil
	defer func() {
		r := recover()
		assert.Same(t, pv, r, "same panic value")
		assert.Len(t, rec.list(), 4)
		assert.Contains(t, rec.list()[2], "two.throw(two-token,")
	}()
	_, _ = wc.Invoke("crash()", &Call{})
	t.Fatal("panic expected")
}

func TestBindingErrorsAreIsolated(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, &hierarchy.ClassShape{Name: "a.S", Methods: []hierarchy.MethodShape{
		sig("one", "void", "int"),
		sig("two", "int", "int", "int"),
		{MethodSignature: hierarchy.MethodSignature{Name: "util", ReturnType: "void", Modifiers: hierarchy.Static}},
	}})

	badArg := tracing(rec, "bad-arg", "a.S", "one|two")
	badArg.Bindings.Before = []advice.Binding{advice.Arg(1)}
	badReturn := tracing(rec, "bad-return", "a.S", "one|two")
	badReturn.Bindings.Return = []advice.Binding{advice.ReturnValue()}
	badFailure := tracing(rec, "bad-failure", "a.S", "two")
	badFailure.Bindings.Before = []advice.Binding{advice.Failure()}
	badReceiver := tracing(rec, "bad-receiver", "a.S", "util")
	badReceiver.Bindings.Before = []advice.Binding{advice.Receiver()}
	badMeta := tracing(rec, "bad-meta", "a.S", "util")
	badMeta.Bindings.Before = []advice.Binding{advice.ClassMeta(0)}
	require.NoError(t, h.reg.Register("t", badArg, badReturn, badFailure, badReceiver, badMeta, tracing(rec, "good", "a.S", "*")))

	noop := func(*Call) (any, error) { return 1, nil }
	wc, diags := h.weave(t, "a.S", map[string]Body{"one(int)": noop, "two(int,int)": noop, "util()": noop})

	got := map[string][]string{}
	for _, d := range diags {
		assert.ErrorIs(t, d, core.ErrAdviceBinding)
		got[d.Method] = append(got[d.Method], d.Advice)
	}
	assert.Equal(t, map[string][]string{
		"one(int)":     {"t/bad-arg", "t/bad-return"},
		"two(int,int)": {"t/bad-failure"},
		"util()":       {"t/bad-receiver", "t/bad-meta"},
	}, got)
	assert.Len(t, h.reported(), len(diags))

	assert.Equal(t, []string{"t/good"}, wc.Methods["one(int)"].Advice())
	assert.Equal(t, []string{"t/bad-arg", "t/bad-return", "t/good"}, wc.Methods["two(int,int)"].Advice())
	assert.Equal(t, []string{"t/good"}, wc.Methods["util()"].Advice())
}

func TestGenerationFailuresAreIsolated(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, &hierarchy.ClassShape{Name: "a.S", Methods: []hierarchy.MethodShape{
		sig("missing", "void"),
		{MethodSignature: hierarchy.MethodSignature{Name: "nat", ReturnType: "void", Modifiers: hierarchy.Native}},
		sig("fine", "void"),
		sig("plain", "void"),
	}})
	require.NoError(t, h.reg.Register("t", tracing(rec, "all", "a.S", "missing|nat|fine")))

	nat := func(*Call) (any, error) { return "native", nil }
	wc, diags := h.weave(t, "a.S", map[string]Body{
		"nat()":   nat,
		"fine()":  func(*Call) (any, error) { return "ok", nil },
		"plain()": func(*Call) (any, error) { return "plain", nil },
	})

	require.Len(t, diags, 2)
	for _, d := range diags {
		assert.ErrorIs(t, d, core.ErrWeaveGeneration)
		assert.True(t, core.IsRecoverable(d))
	}
	assert.NotContains(t, wc.Methods, "missing()")
	assert.False(t, wc.Methods["nat()"].Woven(), "kept original")
	assert.True(t, wc.Methods["fine()"].Woven())
	assert.False(t, wc.Methods["plain()"].Woven())

	out, err := wc.Invoke("fine()", &Call{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, []string{"all.before", "all.return(all-token)"}, rec.list())

	_, err = wc.Invoke("missing()", &Call{})
	assert.ErrorIs(t, err, ErrNoSuchMethod)
}

func TestRecursionCapturedOncePerOuterCall(t *testing.T) {
	for _, depth := range []int{1, 3, 10} {
		t.Run(fmt.Sprintf("depth=%d", depth), func(t *testing.T) {
			var befores, returns atomic.Int32
			h := newHarness(t, &hierarchy.ClassShape{Name: "a.Tree", Methods: []hierarchy.MethodShape{sig("walk", "int", "int")}})
			require.NoError(t, h.reg.Register("t", advice.Descriptor{
				ClassName: "a.Tree", MethodName: "walk", NestingGroup: "tree",
				Hooks: advice.Hooks{
					Before: func(advice.Args) (any, error) { befores.Add(1); return nil, nil },
					Return: func(advice.Args) { returns.Add(1) },
				},
			}))

			var wc *WovenClass
			wc, _ = h.weave(t, "a.Tree", map[string]Body{
				"walk(int)": func(c *Call) (any, error) {
					n := c.Args[0].(int)
					if n <= 1 {
						return 1, nil
					}
					return wc.Invoke("walk(int)", &Call{Thread: c.Thread, Args: []any{n - 1}})
				},
			})

			tc := propagation.NewThreadContext()
			out, err := wc.Invoke("walk(int)", &Call{Thread: tc, Args: []any{depth}})
			require.NoError(t, err)
			assert.Equal(t, 1, out)
			assert.Equal(t, int32(1), befores.Load())
			assert.Equal(t, int32(1), returns.Load())
			assert.Equal(t, 0, tc.Depth())
		})
	}
}

func TestSuppressionByAncestorKey(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t,
		&hierarchy.ClassShape{Name: "db.Driver", Methods: []hierarchy.MethodShape{sig("query", "void")}},
		&hierarchy.ClassShape{Name: "net.Socket", Methods: []hierarchy.MethodShape{sig("write", "void")}},
	)
	outer := tracing(rec, "jdbc", "db.Driver", "query")
	outer.SuppressionKey = "jdbc"
	inner := tracing(rec, "socket", "net.Socket", "write")
	inner.SuppressibleUsingKey = "jdbc"
	require.NoError(t, h.reg.Register("t", outer, inner))

	sock, _ := h.weave(t, "net.Socket", map[string]Body{"write()": func(*Call) (any, error) { return nil, nil }})
	drv, _ := h.weave(t, "db.Driver", map[string]Body{"query()": func(c *Call) (any, error) {
		return sock.Invoke("write()", &Call{Thread: c.Thread})
	}})

	tc := propagation.NewThreadContext()
	_, err := drv.Invoke("query()", &Call{Thread: tc})
	require.NoError(t, err)
	assert.Equal(t, []string{"jdbc.before", "jdbc.return(jdbc-token)"}, rec.list())

	rec.events = nil
	_, err = sock.Invoke("write()", &Call{Thread: tc})
	require.NoError(t, err)
	assert.Equal(t, []string{"socket.before", "socket.return(socket-token)"}, rec.list(), "captured outside the suppressing frame")
}

func TestIsEnabledGuard(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, &hierarchy.ClassShape{Name: "a.S", Methods: []hierarchy.MethodShape{sig("run", "void", "boolean")}})
	d := tracing(rec, "guarded", "a.S", "run")
	d.Hooks.IsEnabled = func(a advice.Args) bool { return a.At(0).(bool) }
	d.Bindings.IsEnabled = []advice.Binding{advice.Arg(0)}
	require.NoError(t, h.reg.Register("t", d))

	wc, diags := h.weave(t, "a.S", map[string]Body{"run(boolean)": func(*Call) (any, error) { return nil, nil }})
	require.Empty(t, diags)

	_, err := wc.Invoke("run(boolean)", &Call{Args: []any{false}})
	require.NoError(t, err)
	assert.Empty(t, rec.list())

	_, err = wc.Invoke("run(boolean)", &Call{Args: []any{true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"guarded.before", "guarded.return(guarded-token)"}, rec.list())
}

func TestHookPanicDoesNotReplaceOutcome(t *testing.T) {
	h := newHarness(t, &hierarchy.ClassShape{Name: "a.S", Methods: []hierarchy.MethodShape{sig("get", "int"), sig("fail", "void")}})
	require.NoError(t, h.reg.Register("t", advice.Descriptor{
		Name: "buggy", ClassName: "a.S", MethodName: "*",
		Hooks: advice.Hooks{
			Return: func(advice.Args) { panic("return bug") },
			Throw:  func(advice.Args) { panic("throw bug") },
		},
	}))
	appErr := errors.New("app")
	wc, _ := h.weave(t, "a.S", map[string]Body{
		"get()":  func(*Call) (any, error) { return 5, nil },
		"fail()": func(*Call) (any, error) { return nil, appErr },
	})

	out, err := wc.Invoke("get()", &Call{})
	require.NoError(t, err)
	assert.Equal(t, 5, out)
	_, err = wc.Invoke("fail()", &Call{})
	assert.True(t, err == appErr)

	reported := h.reported()
	require.Len(t, reported, 2)
	assert.Contains(t, reported[0].Error(), "return hook panicked")
	assert.Contains(t, reported[1].Error(), "throw hook panicked")
	assert.Equal(t, "t/buggy", reported[0].Advice)
}

func TestMetadataBuiltOnce(t *testing.T) {
	var classBuilds, methodBuilds atomic.Int32
	h := newHarness(t, &hierarchy.ClassShape{Name: "a.S", Methods: []hierarchy.MethodShape{sig("a", "void"), sig("b", "void")}})

	var seen sync.Map
	require.NoError(t, h.reg.Register("t", advice.Descriptor{
		ClassName: "a.S", MethodName: "*",
		ClassMeta: []advice.ClassMetaFunc{func(c *hierarchy.AnalyzedClass) any {
			classBuilds.Add(1)
			return "class:" + c.Name()
		}},
		MethodMeta: []advice.MethodMetaFunc{func(c *hierarchy.AnalyzedClass, m hierarchy.MethodSignature) any {
			methodBuilds.Add(1)
			return "method:" + m.Name
		}},
		Hooks: advice.Hooks{Before: func(a advice.Args) (any, error) {
			seen.Store(a.At(0).(string)+"|"+a.At(1).(string), true)
			return nil, nil
		}},
		Bindings: advice.Bindings{Before: []advice.Binding{advice.ClassMeta(0), advice.MethodMeta(0)}},
	}))
	wc, diags := h.weave(t, "a.S", map[string]Body{
		"a()": func(*Call) (any, error) { return nil, nil },
		"b()": func(*Call) (any, error) { return nil, nil },
	})
	require.Empty(t, diags)
	assert.Zero(t, classBuilds.Load(), "lazy")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "a()"
			if i%2 == 0 {
				key = "b()"
			}
			_, err := wc.Invoke(key, &Call{})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), classBuilds.Load())
	assert.Equal(t, int32(2), methodBuilds.Load())
	_, okA := seen.Load("class:a.S|method:a")
	_, okB := seen.Load("class:a.S|method:b")
	assert.True(t, okA)
	assert.True(t, okB)
	cs, ms := wc.Meta.Len()
	assert.Equal(t, 1, cs)
	assert.Equal(t, 2, ms)
}

func TestThreadContextFromContext(t *testing.T) {
	h := newHarness(t, &hierarchy.ClassShape{Name: "a.S", Methods: []hierarchy.MethodShape{sig("run", "void")}})
	var bound *propagation.ThreadContext
	require.NoError(t, h.reg.Register("t", advice.Descriptor{
		ClassName: "a.S", MethodName: "run",
		Hooks: advice.Hooks{Before: func(a advice.Args) (any, error) {
			bound = a.At(0).(*propagation.ThreadContext)
			return nil, nil
		}},
		Bindings: advice.Bindings{Before: []advice.Binding{advice.ThreadContext()}},
	}))
	wc, _ := h.weave(t, "a.S", map[string]Body{"run()": func(*Call) (any, error) { return nil, nil }})

	tc := propagation.NewThreadContext()
	_, err := wc.Invoke("run()", &Call{Ctx: propagation.WithThreadContext(context.Background(), tc)})
	require.NoError(t, err)
	assert.Same(t, tc, bound)
}

func TestRecursionThroughCtxOnly(t *testing.T) {
	var befores atomic.Int32
	h := newHarness(t, &hierarchy.ClassShape{Name: "a.Tree", Methods: []hierarchy.MethodShape{sig("walk", "int", "int")}})
	require.NoError(t, h.reg.Register("t", advice.Descriptor{
		ClassName: "a.Tree", MethodName: "walk", NestingGroup: "tree",
		Hooks: advice.Hooks{Before: func(advice.Args) (any, error) { befores.Add(1); return nil, nil }},
	}))

	var wc *WovenClass
	wc, _ = h.weave(t, "a.Tree", map[string]Body{
		"walk(int)": func(c *Call) (any, error) {
			n := c.Args[0].(int)
			if n <= 1 {
				return 1, nil
			}
			return wc.Invoke("walk(int)", &Call{Ctx: c.Ctx, Args: []any{n - 1}})
		},
	})

	out, err := wc.Invoke("walk(int)", &Call{Args: []any{3}})
	require.NoError(t, err)
	assert.Equal(t, 1, out)
	assert.Equal(t, int32(1), befores.Load(), "inner calls share the stack carried by Ctx")
}

func TestMetadataPanicInReturnKeepsResult(t *testing.T) {
	h := newHarness(t, &hierarchy.ClassShape{Name: "a.S", Methods: []hierarchy.MethodShape{sig("get", "java.lang.String")}})
	var returned atomic.Bool
	require.NoError(t, h.reg.Register("t", advice.Descriptor{
		Name: "meta", ClassName: "a.S", MethodName: "get",
		MethodMeta: []advice.MethodMetaFunc{func(*hierarchy.AnalyzedClass, hierarchy.MethodSignature) any {
			panic("meta boom")
		}},
		Hooks:    advice.Hooks{Return: func(advice.Args) { returned.Store(true) }},
		Bindings: advice.Bindings{Return: []advice.Binding{advice.MethodMeta(0)}},
	}))
	wc, diags := h.weave(t, "a.S", map[string]Body{"get()": func(*Call) (any, error) { return "ok", nil }})
	require.Empty(t, diags)

	var out any
	var err error
	require.NotPanics(t, func() { out, err = wc.Invoke("get()", &Call{}) })
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.False(t, returned.Load())

	reported := h.reported()
	require.Len(t, reported, 1)
	assert.Contains(t, reported[0].Error(), "return hook panicked")
	assert.Contains(t, reported[0].Error(), "meta boom")
}

func TestMetadataPanicInBeforeUnwindsOuterAdvice(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, &hierarchy.ClassShape{Name: "a.S", Methods: []hierarchy.MethodShape{sig("run", "void")}})
	outer := tracing(rec, "outer", "a.S", "run")
	inner := advice.Descriptor{
		Name: "inner", ClassName: "a.S", MethodName: "run",
		ClassMeta: []advice.ClassMetaFunc{func(*hierarchy.AnalyzedClass) any { panic("meta boom") }},
		Hooks: advice.Hooks{
			Before: func(advice.Args) (any, error) { rec.add("inner.before"); return nil, nil },
			Throw:  func(advice.Args) { rec.add("inner.throw") },
		},
		Bindings: advice.Bindings{Before: []advice.Binding{advice.ClassMeta(0)}},
	}
	require.NoError(t, h.reg.Register("t", outer, inner))

	var ran atomic.Bool
	wc, diags := h.weave(t, "a.S", map[string]Body{"run()": func(*Call) (any, error) { ran.Store(true); return nil, nil }})
	require.Empty(t, diags)

	assert.PanicsWithValue(t, "meta boom", func() { _, _ = wc.Invoke("run()", &Call{}) })
	assert.False(t, ran.Load(), "body skipped")
	assert.Equal(t, []string{"outer.before", "outer.throw(outer-token,meta boom)"}, rec.list())
}
