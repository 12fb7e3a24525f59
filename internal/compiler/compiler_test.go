package compiler

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/veyor/stencil/internal/config"
	"github.com/veyor/stencil/internal/vm"
)

// render compiles src and runs it with the given parameter values.
func render(t *testing.T, src string, opts Options, params ...vm.Value) string {
	t.Helper()
	out, err := tryRender(t, src, opts, params...)
	if err != nil {
		t.Fatalf("render error: %s", err)
	}
	return out
}

func tryRender(t *testing.T, src string, opts Options, params ...vm.Value) (string, error) {
	t.Helper()
	result, err := Compile("test", src, opts)
	if err != nil {
		return "", err
	}
	machine := vm.New(result.Image, vm.NewArena(0))
	var buf bytes.Buffer
	machine.SetOutput(&buf)
	for _, p := range params {
		machine.Push(p)
	}
	if _, err := machine.Run(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func TestLiteralText(t *testing.T) {
	got := render(t, "hello world", Options{})
	if got != "hello world" {
		t.Errorf("output = %q, want %q", got, "hello world")
	}
}

func TestOutputExpressions(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"<%= 1 + 2 %>", "3"},
		{"<%= 1.5 * 2 %>", "3"},
		{"<%= 10 % 3 %>", "1"},
		{"<%= -5 %>", "-5"},
		{"<%= \"quoted\" %>", "quoted"},
		{"<%= true %>", "true"},
		{"<%= null %>", "null"},
		{"<%= 1 == 1 %>", "true"},
		{"<%= 1 != 1 %>", "false"},
		{"<%= 2 < 1 %>", "false"},
		{"<%= 2 >= 2 %>", "true"},
		{"<%= !false %>", "true"},
		{"<%= (1 + 2) * 3 %>", "9"},
		{"<%= [1, 2, 3] %>", "[1, 2, 3]"},
		{"<%= [10, 20, 30][-1] %>", "30"},
		{"<%= \"abc\"[0] %>", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := render(t, tt.src, Options{}); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEscapedOutput(t *testing.T) {
	src := `<%= v %>|<%== v %>`
	opts := Options{Params: []string{"v"}, Escape: true}
	got := render(t, src, opts, vm.StrVal([]byte("<b>&</b>")))
	want := "&lt;b&gt;&amp;&lt;/b&gt;|<b>&</b>"
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestAssignmentAndLocals(t *testing.T) {
	src := `<% x = 2 %><% y = x * 21 %><%= y %>`
	if got := render(t, src, Options{}); got != "42" {
		t.Errorf("output = %q, want 42", got)
	}
}

func TestReassignment(t *testing.T) {
	src := `<% x = 1 %><% x = x + 1 %><%= x %>`
	if got := render(t, src, Options{}); got != "2" {
		t.Errorf("output = %q, want 2", got)
	}
}

func TestParams(t *testing.T) {
	src := `Hi <%= name %>, you are <%= age %>`
	opts := Options{Params: []string{"name", "age"}}
	got := render(t, src, opts, vm.StrVal([]byte("Ada")), vm.IntVal(36))
	if got != "Hi Ada, you are 36" {
		t.Errorf("output = %q", got)
	}
}

func TestIfElse(t *testing.T) {
	src := `<% if n > 0 %>pos<% elsif n == 0 %>zero<% else %>neg<% end %>`
	opts := Options{Params: []string{"n"}}

	tests := []struct {
		n    int64
		want string
	}{
		{5, "pos"},
		{0, "zero"},
		{-5, "neg"},
	}
	for _, tt := range tests {
		got := render(t, src, opts, vm.IntVal(tt.n))
		if got != tt.want {
			t.Errorf("n=%d output = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestIfWithoutElse(t *testing.T) {
	src := `a<% if ok %>b<% end %>c`
	opts := Options{Params: []string{"ok"}}
	if got := render(t, src, opts, vm.BoolVal(true)); got != "abc" {
		t.Errorf("true output = %q, want abc", got)
	}
	if got := render(t, src, opts, vm.BoolVal(false)); got != "ac" {
		t.Errorf("false output = %q, want ac", got)
	}
}

func TestOnlyBoolTrueTakesBranch(t *testing.T) {
	// A non-bool condition is simply not Bool(true): the branch is
	// skipped, not an error.
	src := `<% if n %>taken<% end %>`
	opts := Options{Params: []string{"n"}}
	if got := render(t, src, opts, vm.IntVal(1)); got != "" {
		t.Errorf("Int(1) must not be truthy, got %q", got)
	}
}

func TestForOverList(t *testing.T) {
	src := `<% for x in items %><%= x %>,<% end %>`
	opts := Options{Params: []string{"items"}}
	arena := vm.NewArena(0)
	items := arena.NewList([]vm.Value{vm.IntVal(1), vm.IntVal(2), vm.IntVal(3)})
	got := render(t, src, opts, vm.RefVal(items))
	if got != "1,2,3," {
		t.Errorf("output = %q, want 1,2,3,", got)
	}
}

func TestForOverEmptyList(t *testing.T) {
	src := `a<% for x in items %><%= x %><% end %>b`
	opts := Options{Params: []string{"items"}}
	arena := vm.NewArena(0)
	items := arena.NewList(nil)
	if got := render(t, src, opts, vm.RefVal(items)); got != "ab" {
		t.Errorf("output = %q, want ab", got)
	}
}

func TestForAccumulates(t *testing.T) {
	src := `<% total = 0 %><% for x in items %><% total = total + x %><% end %><%= total %>`
	opts := Options{Params: []string{"items"}}
	arena := vm.NewArena(0)
	items := arena.NewList([]vm.Value{vm.IntVal(10), vm.IntVal(20), vm.IntVal(12)})
	if got := render(t, src, opts, vm.RefVal(items)); got != "42" {
		t.Errorf("output = %q, want 42", got)
	}
}

func TestForKeyValueOverMap(t *testing.T) {
	src := `<% for k, v in m %><%= k %>=<%= v %>;<% end %>`
	opts := Options{Params: []string{"m"}}
	arena := vm.NewArena(0)
	m := arena.NewMap(2)
	m.Map.Set(vm.StrKey([]byte("a")), vm.IntVal(1))
	m.Map.Set(vm.StrKey([]byte("b")), vm.IntVal(2))
	got := render(t, src, opts, vm.RefVal(m))
	if got != "a=1;b=2;" {
		t.Errorf("output = %q, want a=1;b=2; (insertion order)", got)
	}
}

func TestNestedLoops(t *testing.T) {
	src := `<% for x in outer %><% for y in inner %><%= x %><%= y %> <% end %><% end %>`
	opts := Options{Params: []string{"outer", "inner"}}
	arena := vm.NewArena(0)
	outer := arena.NewList([]vm.Value{vm.IntVal(1), vm.IntVal(2)})
	inner := arena.NewList([]vm.Value{vm.StrVal([]byte("a")), vm.StrVal([]byte("b"))})
	got := render(t, src, opts, vm.RefVal(outer), vm.RefVal(inner))
	if got != "1a 1b 2a 2b " {
		t.Errorf("output = %q", got)
	}
}

func TestLoopLocalScoping(t *testing.T) {
	// A local declared in the body is scoped per iteration.
	src := `<% for x in items %><% d = x * 2 %><%= d %>,<% end %>`
	opts := Options{Params: []string{"items"}}
	arena := vm.NewArena(0)
	items := arena.NewList([]vm.Value{vm.IntVal(1), vm.IntVal(2)})
	if got := render(t, src, opts, vm.RefVal(items)); got != "2,4," {
		t.Errorf("output = %q, want 2,4,", got)
	}
}

func TestShortCircuit(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`<%= true && false %>`, "false"},
		{`<%= true && true %>`, "true"},
		{`<%= false && true %>`, "false"},
		{`<%= false || true %>`, "true"},
		{`<%= true || false %>`, "true"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := render(t, tt.src, Options{}); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

// testResolver serves partials from a map.
type testResolver map[string]string

func (r testResolver) ResolvePartial(templateKey, includeKey string) (string, string, error) {
	src, ok := r[includeKey]
	if !ok {
		return "", "", fmt.Errorf("unknown partial %q", includeKey)
	}
	return src, includeKey, nil
}

func TestInclude(t *testing.T) {
	opts := Options{
		Resolver: testResolver{
			"header": "== header ==\n",
		},
	}
	src := `<% include "header" %>body`
	if got := render(t, src, opts); got != "== header ==\nbody" {
		t.Errorf("output = %q", got)
	}
}

func TestIncludeSharedPartialCompilesOnce(t *testing.T) {
	opts := Options{
		Resolver: testResolver{
			"p": "x",
		},
	}
	src := `<% include "p" %><% include "p" %>`
	result, err := Compile("test", src, opts)
	if err != nil {
		t.Fatalf("compile error: %s", err)
	}
	// Both CALL sites share one compiled partial: the image holds one
	// RETURN for the main script and one for the partial.
	listing := vm.Disassemble(result.Image, "test")
	if strings.Count(listing, "CALL ") != 2 {
		t.Fatalf("expected two CALL sites:\n%s", listing)
	}
	if strings.Count(listing, "RETURN") != 2 {
		t.Fatalf("expected the partial to be compiled once:\n%s", listing)
	}
	machine := vm.New(result.Image, vm.NewArena(0))
	var buf bytes.Buffer
	machine.SetOutput(&buf)
	if _, err := machine.Run(); err != nil {
		t.Fatalf("runtime error: %s", err)
	}
	if buf.String() != "xx" {
		t.Errorf("output = %q, want xx", buf.String())
	}
}

func TestNestedInclude(t *testing.T) {
	opts := Options{
		Resolver: testResolver{
			"outer": `[<% include "inner" %>]`,
			"inner": "deep",
		},
	}
	src := `<% include "outer" %>`
	if got := render(t, src, opts); got != "[deep]" {
		t.Errorf("output = %q, want [deep]", got)
	}
}

func TestIncludeUnknownPartial(t *testing.T) {
	_, err := Compile("test", `<% include "missing" %>`, Options{Resolver: testResolver{}})
	if err == nil {
		t.Fatal("unknown partial should be a compile error")
	}
}

func TestIncludeWithoutResolver(t *testing.T) {
	_, err := Compile("test", `<% include "x" %>`, Options{})
	if err == nil {
		t.Fatal("include without a resolver should be a compile error")
	}
}

func TestHostCall(t *testing.T) {
	opts := Options{
		Params: []string{"name"},
		Funcs:  map[string]int{"upper": 0},
	}
	result, err := Compile("test", `<%= upper(name) %>`, opts)
	if err != nil {
		t.Fatalf("compile error: %s", err)
	}
	machine := vm.New(result.Image, vm.NewArena(0))
	machine.SetHost(hostFunc(func(fn int, args []vm.Value) (vm.Value, error) {
		if fn != 0 || len(args) != 1 {
			t.Fatalf("unexpected call fn=%d argc=%d", fn, len(args))
		}
		return vm.StrVal([]byte(strings.ToUpper(string(args[0].Str)))), nil
	}))
	var buf bytes.Buffer
	machine.SetOutput(&buf)
	machine.Push(vm.StrVal([]byte("ada")))
	if _, err := machine.Run(); err != nil {
		t.Fatalf("runtime error: %s", err)
	}
	if buf.String() != "ADA" {
		t.Errorf("output = %q, want ADA", buf.String())
	}
}

type hostFunc func(fn int, args []vm.Value) (vm.Value, error)

func (f hostFunc) Call(fn int, args []vm.Value) (vm.Value, error) {
	return f(fn, args)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown variable", `<%= nope %>`},
		{"unknown function", `<%= nope() %>`},
		{"unclosed if", `<% if true %>x`},
		{"stray end", `<% end %>`},
		{"stray else", `<% else %>`},
		{"elsif after else", `<% if true %><% else %><% elsif false %><% end %>`},
		{"bad expression", `<%= 1 + %>`},
		{"trailing tokens", `<%= 1 2 %>`},
		{"unterminated string", `<%= "x %>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile("test", tt.src, Options{})
			if err == nil {
				t.Fatal("expected a compile error")
			}
			if _, ok := err.(*CompileError); !ok {
				t.Errorf("error should be a *CompileError, got %T", err)
			}
		})
	}
}

func TestCompileErrorPosition(t *testing.T) {
	_, err := Compile("greeting", "line one\n<%= nope %>", Options{})
	ce, ok := err.(*CompileError)
	if !ok {
		t.Fatalf("expected *CompileError, got %T: %v", err, err)
	}
	if ce.Template != "greeting" || ce.Line != 2 {
		t.Errorf("position = %s:%d, want greeting:2", ce.Template, ce.Line)
	}
}

func TestTooManyLocals(t *testing.T) {
	var sb strings.Builder
	for i := 0; i <= config.MaxLocals; i++ {
		fmt.Fprintf(&sb, "<%% v%d = %d %%>", i, i)
	}
	_, err := Compile("test", sb.String(), Options{})
	if err == nil {
		t.Fatal("exceeding the local limit should be a compile error")
	}
}

func TestDebugMinimalStillRenders(t *testing.T) {
	src := `a<%= 1 %>b`
	opts := Options{Debug: config.DebugMinimal}
	if got := render(t, src, opts); got != "a1b" {
		t.Errorf("output with DEBUG markers = %q, want a1b", got)
	}
}

func TestDebugFullProducesSourceMap(t *testing.T) {
	src := "line\n<%= 1 %>"
	result, err := Compile("test", src, Options{Debug: config.DebugFull})
	if err != nil {
		t.Fatalf("compile error: %s", err)
	}
	if result.SourceMap == nil || len(result.SourceMap.Entries) == 0 {
		t.Fatal("full debug should produce a source map")
	}
	data, err := result.SourceMap.Marshal()
	if err != nil {
		t.Fatalf("marshal: %s", err)
	}
	back, err := vm.UnmarshalSourceMap(data)
	if err != nil {
		t.Fatalf("unmarshal: %s", err)
	}
	if back.Template != "test" || len(back.Entries) != len(result.SourceMap.Entries) {
		t.Errorf("sidecar round trip lost data: %+v", back)
	}
	line, _ := back.Lookup(int(back.Entries[len(back.Entries)-1].Offset))
	if line != 2 {
		t.Errorf("lookup line = %d, want 2", line)
	}
}

func TestStackDisciplineAcrossStatements(t *testing.T) {
	// Mixed statements must leave the stack balanced: a stray or missing
	// value would shift later local slots and change the output.
	src := `<% x = 1 %><% if x == 1 %><% y = x + 1 %><%= y %><% end %><%= x %>`
	if got := render(t, src, Options{}); got != "21" {
		t.Errorf("output = %q, want 21", got)
	}
}
