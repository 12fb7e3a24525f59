// Package stencil is an embeddable ERB-style template engine. Template
// text is compiled once to a compact bytecode image and rendered many
// times by a stack virtual machine; a compiled Template is immutable and
// safe for concurrent renders.
//
//	tpl, err := stencil.Compile("hello", "Hi, <%= name %>!", &stencil.Options{
//		Params: []string{"name"},
//		Escape: true,
//	})
//	var buf bytes.Buffer
//	err = tpl.Render(&buf, map[string]any{"name": "<world>"})
package stencil

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/veyor/stencil/internal/compiler"
	"github.com/veyor/stencil/internal/config"
	"github.com/veyor/stencil/internal/vm"
)

// Func is a host function callable from templates as name(args...).
// Arguments arrive as Go values (nil, bool, int64, float64, string,
// []any, map[any]any; a map entry arrives as a two-element []any); the
// returned value goes through the same conversion as render vars.
type Func func(args []any) (any, error)

// Options configure compilation and rendering.
type Options struct {
	// Params declares the template's parameters in slot order. Render
	// looks each name up in its vars map.
	Params []string

	// Funcs are the host functions templates may call.
	Funcs map[string]Func

	// Escape HTML-escapes <%= %> output. <%== %> is never escaped.
	Escape bool

	// Debug is one of "none", "minimal", "full".
	Debug string

	// Partials maps include keys to template source for <% include %>.
	Partials map[string]string

	// MaxArenaBytes bounds per-render allocation. Zero means the
	// default budget.
	MaxArenaBytes int
}

// Template is a compiled template: the immutable bytecode image plus the
// host-function table it was compiled against.
type Template struct {
	name       string
	image      *vm.Image
	srcMap     *vm.SourceMap
	funcs      []Func
	params     []string
	arenaLimit int
}

// mapResolver serves includes from an in-memory partials map.
type mapResolver map[string]string

func (m mapResolver) ResolvePartial(templateKey, includeKey string) (string, string, error) {
	src, ok := m[includeKey]
	if !ok {
		return "", "", fmt.Errorf("no partial registered under %q", includeKey)
	}
	return src, includeKey, nil
}

// Compile compiles template source into a renderable Template.
func Compile(name, source string, opts *Options) (*Template, error) {
	if opts == nil {
		opts = &Options{}
	}

	funcs, funcIDs := buildFuncTable(opts.Funcs)

	copts := compiler.Options{
		Params: opts.Params,
		Funcs:  funcIDs,
		Escape: opts.Escape,
		Debug:  config.ParseDebugLevel(opts.Debug),
	}
	if len(opts.Partials) > 0 {
		copts.Resolver = mapResolver(opts.Partials)
	}

	result, err := compiler.Compile(name, source, copts)
	if err != nil {
		return nil, err
	}

	return &Template{
		name:       name,
		image:      result.Image,
		srcMap:     result.SourceMap,
		funcs:      funcs,
		params:     opts.Params,
		arenaLimit: opts.MaxArenaBytes,
	}, nil
}

// Load attaches to a previously compiled image (for example from the
// cache). The options must match the ones the image was compiled with:
// the image encodes parameter slots and function ids, not names.
func Load(name string, image []byte, opts *Options) (*Template, error) {
	if opts == nil {
		opts = &Options{}
	}
	img, err := vm.NewImage(image)
	if err != nil {
		return nil, fmt.Errorf("invalid image: %w", err)
	}
	funcs, _ := buildFuncTable(opts.Funcs)
	return &Template{
		name:       name,
		image:      img,
		funcs:      funcs,
		params:     opts.Params,
		arenaLimit: opts.MaxArenaBytes,
	}, nil
}

// buildFuncTable assigns deterministic ids (sorted name order) so that a
// cached image and a fresh compile agree.
func buildFuncTable(m map[string]Func) ([]Func, map[string]int) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	funcs := make([]Func, len(names))
	ids := make(map[string]int, len(names))
	for i, name := range names {
		funcs[i] = m[name]
		ids[name] = i
	}
	return funcs, ids
}

// Name returns the template's name.
func (t *Template) Name() string {
	return t.name
}

// Bytecode returns the serialized image, suitable for Load.
func (t *Template) Bytecode() []byte {
	return t.image.Bytes()
}

// DebugInfo returns the serialized source-map sidecar, or nil when the
// template was not compiled at debug level "full".
func (t *Template) DebugInfo() ([]byte, error) {
	if t.srcMap == nil {
		return nil, nil
	}
	return t.srcMap.Marshal()
}

// Disassemble returns a human-readable bytecode listing.
func (t *Template) Disassemble() string {
	return vm.Disassemble(t.image, t.name)
}

// Render executes the template against vars and writes the output to w.
func (t *Template) Render(w io.Writer, vars map[string]any) error {
	return t.RenderContext(context.Background(), w, vars)
}

// RenderContext is Render with cancellation. Each call builds a fresh VM
// over a fresh arena; the arena is reset when the render finishes.
func (t *Template) RenderContext(ctx context.Context, w io.Writer, vars map[string]any) error {
	limit := t.arenaLimit
	if limit == 0 {
		limit = config.DefaultMaxArenaBytes
	}
	arena := vm.NewArena(limit)
	defer arena.Reset()

	machine := vm.New(t.image, arena)
	machine.SetOutput(w)
	machine.SetContext(ctx)
	if len(t.funcs) > 0 {
		machine.SetHost(&host{funcs: t.funcs, arena: arena})
	}

	// Parameters become the main frame's first locals, in declaration
	// order. Missing vars render as null.
	for _, name := range t.params {
		v, err := toValue(arena, vars[name])
		if err != nil {
			return fmt.Errorf("parameter %q: %w", name, err)
		}
		machine.Push(v)
	}

	if _, err := machine.Run(); err != nil {
		return fmt.Errorf("render %s: %w", t.name, err)
	}
	return nil
}

// host adapts the public Func table to the VM's callout interface.
type host struct {
	funcs []Func
	arena *vm.Arena
}

func (h *host) Call(fn int, args []vm.Value) (vm.Value, error) {
	if fn < 0 || fn >= len(h.funcs) {
		return vm.Value{}, fmt.Errorf("unknown function id %d", fn)
	}
	goArgs := make([]any, len(args))
	for i, arg := range args {
		goArgs[i] = fromValue(arg)
	}
	result, err := h.funcs[fn](goArgs)
	if err != nil {
		return vm.Value{}, err
	}
	return toValue(h.arena, result)
}
