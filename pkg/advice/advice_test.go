package advice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/weave/pkg/core"
	"github.com/itsneelabh/weave/pkg/propagation"
)

func TestPatternMatch(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"", "anything", true},
		{"com.acme.OrderService", "com.acme.OrderService", true},
		{"com.acme.OrderService", "com.acme.OrderServiceImpl", false},
		{"com.acme.*Service", "com.acme.OrderService", true},
		{"com.acme.*Service", "com.acme.billing.InvoiceService", true},
		{"com.acme.*Service", "com.acme.OrderServiceImpl", false},
		{"com.acme.*", "com.acmeX.Foo", false},
		{"execute|executeQuery", "executeQuery", true},
		{"execute|executeQuery", "executeUpdate", false},
		{"get*|set*", "setName", true},
		{`/^get[A-Z]\w*$/`, "getName", true},
		{`/^get[A-Z]\w*$/`, "getaway", false},
		{"java.lang.String", "java.lang.String", true},
		{"a.b$Inner", "a.b$Inner", true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"~"+tt.name, func(t *testing.T) {
			p, err := Compile(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Match(tt.name))
			assert.Equal(t, tt.pattern, p.String())
		})
	}
}

func TestPatternErrors(t *testing.T) {
	_, err := Compile("/[unclosed/")
	assert.Error(t, err)
	_, err = Compile("a||b")
	assert.Error(t, err)
	assert.Panics(t, func() { MustCompile("/(/") })
}

func TestPatternMatchAny(t *testing.T) {
	p := MustCompile("javax.ws.rs.*")
	assert.True(t, p.MatchAny([]string{"Deprecated", "javax.ws.rs.Path"}))
	assert.False(t, p.MatchAny(nil))
	assert.True(t, Pattern{}.MatchAny(nil))
}

func TestParamPatterns(t *testing.T) {
	wild, err := CompileParams([]string{"java.lang.String", ".."})
	require.NoError(t, err)

	tests := []struct {
		params []string
		want   bool
	}{
		{[]string{"java.lang.String"}, true},
		{[]string{"java.lang.String", "int"}, true},
		{[]string{"java.lang.String", "java.lang.Object", "java.lang.Object"}, true},
		{[]string{"int"}, false},
		{nil, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, wild.Match(tt.params), "%v", tt.params)
	}

	exact, err := CompileParams([]string{"int", "*"})
	require.NoError(t, err)
	assert.True(t, exact.Match([]string{"int", "long"}))
	assert.False(t, exact.Match([]string{"int"}))
	assert.False(t, exact.Match([]string{"int", "long", "long"}))

	none, err := CompileParams([]string{})
	require.NoError(t, err)
	assert.True(t, none.Match(nil))
	assert.False(t, none.Match([]string{"int"}))

	unset, err := CompileParams(nil)
	require.NoError(t, err)
	assert.True(t, unset.Match([]string{"x", "y"}))

	_, err = CompileParams([]string{"..", "int"})
	assert.Error(t, err, "wildcard only last")
}

func noop(Args) (any, error) { return nil, nil }

func TestRegistryValidation(t *testing.T) {
	tests := []struct {
		name string
		d    Descriptor
	}{
		{"no class criterion", Descriptor{MethodName: "run", Hooks: Hooks{Before: noop}}},
		{"no method criterion", Descriptor{ClassName: "a.B", Hooks: Hooks{Before: noop}}},
		{"no hooks", Descriptor{ClassName: "a.B", MethodName: "run"}},
		{"bad regexp", Descriptor{ClassName: "/(/", MethodName: "run", Hooks: Hooks{Before: noop}}},
		{"wildcard not last", Descriptor{ClassName: "a.B", MethodName: "run", ParamTypes: []string{"..", "int"}, Hooks: Hooks{Before: noop}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(nil)
			ok := Descriptor{ClassName: "a.B", MethodName: "ok", Hooks: Hooks{Before: noop}}
			err := r.Register("test", ok, tt.d)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrInvalidDescriptor)
			assert.True(t, core.IsConfigurationError(err))
			assert.Equal(t, 0, r.Len(), "all or nothing")
			assert.Equal(t, uint64(0), r.Version())
		})
	}
}

func TestRejectedBatchInternsNothing(t *testing.T) {
	in := propagation.NewInterner()
	r := NewRegistry(in)
	err := r.Register("jdbc",
		Descriptor{ClassName: "java.sql.Statement", MethodName: "execute*", NestingGroup: "jdbc", SuppressionKey: "db", Hooks: Hooks{Before: noop}},
		Descriptor{ClassName: "java.sql.Connection", NestingGroup: "conn", Hooks: Hooks{Before: noop}},
	)
	require.ErrorIs(t, err, core.ErrInvalidDescriptor)
	assert.Equal(t, 0, in.Len())
}

func TestRegistryOrderAndInterning(t *testing.T) {
	in := propagation.NewInterner()
	r := NewRegistry(in)

	require.NoError(t, r.Register("jdbc",
		Descriptor{Name: "stmt", ClassName: "java.sql.Statement", MethodName: "execute*", NestingGroup: "jdbc", SuppressionKey: "db", Hooks: Hooks{Before: noop}},
		Descriptor{Name: "conn", ClassName: "java.sql.Connection", MethodName: "prepare*", NestingGroup: "jdbc", Hooks: Hooks{Before: noop}},
	))
	require.NoError(t, r.Register("servlet",
		Descriptor{Name: "service", ClassAnnotation: "WebServlet", MethodName: "service", Order: -1, Hooks: Hooks{Before: noop}},
		Descriptor{Name: "client", ClassName: "okhttp.Call", MethodName: "execute", SuppressibleUsingKey: "db", Hooks: Hooks{Before: noop}},
	))

	snap := r.Snapshot()
	require.Len(t, snap, 4)
	names := []string{snap[0].Name(), snap[1].Name(), snap[2].Name(), snap[3].Name()}
	assert.Equal(t, []string{"servlet/service", "jdbc/stmt", "jdbc/conn", "servlet/client"}, names)
	assert.Equal(t, uint64(2), r.Version())

	stmt, conn, client := snap[1], snap[2], snap[3]
	assert.Equal(t, stmt.Group, conn.Group)
	assert.NotZero(t, stmt.Group)
	assert.Equal(t, in.Key("db"), stmt.Key)
	assert.Equal(t, stmt.Key, stmt.SuppressibleBy, "suppressible key defaults to own key")
	assert.Zero(t, conn.Key)
	assert.Equal(t, stmt.Key, client.SuppressibleBy)
	assert.Zero(t, client.Key)
	assert.Zero(t, snap[0].Group)
}

func TestBoundMatchers(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register("a", Descriptor{
		ClassAnnotation:  "javax.ws.rs.Path",
		MethodAnnotation: "javax.ws.rs.GET|javax.ws.rs.POST",
		ParamTypes:       []string{".."},
		Hooks:            Hooks{Before: noop},
	}))
	b := r.Snapshot()[0]

	assert.False(t, b.HasClassName())
	assert.False(t, b.MatchClassName("anything"), "unset criterion never matches")
	assert.True(t, b.MatchClassAnnotation([]string{"javax.ws.rs.Path"}))
	assert.False(t, b.MatchMethodName("get"))
	assert.True(t, b.MatchMethodAnnotation([]string{"javax.ws.rs.POST"}))
	assert.True(t, b.MatchParams(nil))
	assert.Equal(t, "a/@javax.ws.rs.Path#", b.Name())
}

func TestBindingString(t *testing.T) {
	assert.Equal(t, "arg(2)", Arg(2).String())
	assert.Equal(t, "return", ReturnValue().String())
	assert.Equal(t, "class-meta(0)", ClassMeta(0).String())
	assert.Equal(t, "unknown", BindingKind(0).String())
	assert.Equal(t, 7, Args{7}.At(0))
	assert.Nil(t, Args{}.At(3))
}
