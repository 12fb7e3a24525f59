package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/veyor/stencil"
	"github.com/veyor/stencil/internal/config"
)

// builtinFuncs is the host helper table templates may opt into through
// the project file's `funcs` list.
var builtinFuncs = map[string]stencil.Func{
	"len": func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("len expects 1 argument, got %d", len(args))
		}
		switch x := args[0].(type) {
		case string:
			return int64(len(x)), nil
		case []any:
			return int64(len(x)), nil
		case map[any]any:
			return int64(len(x)), nil
		default:
			return nil, fmt.Errorf("len: unsupported type %T", args[0])
		}
	},
	"upper": stringFunc("upper", strings.ToUpper),
	"lower": stringFunc("lower", strings.ToLower),
	"trim": stringFunc("trim", strings.TrimSpace),
	"join": func(args []any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("join expects 2 arguments, got %d", len(args))
		}
		list, ok := args[0].([]any)
		if !ok {
			return nil, fmt.Errorf("join: first argument must be a list, got %T", args[0])
		}
		sep, ok := args[1].(string)
		if !ok {
			return nil, fmt.Errorf("join: second argument must be a string, got %T", args[1])
		}
		parts := make([]string, len(list))
		for i, e := range list {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("join: element %d is %T, not a string", i, e)
			}
			parts[i] = s
		}
		return strings.Join(parts, sep), nil
	},
}

func stringFunc(name string, fn func(string) string) stencil.Func {
	return func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s expects 1 argument, got %d", name, len(args))
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%s: argument must be a string, got %T", name, args[0])
		}
		return fn(s), nil
	}
}

// projectContext is the resolved configuration for one CLI invocation.
type projectContext struct {
	dir     string
	project *config.Project
}

// loadProjectContext finds the governing stencil.yaml for a template
// path, honoring an explicit --project flag.
func loadProjectContext(explicit, templatePath string) (*projectContext, error) {
	if explicit != "" {
		p, err := config.LoadProject(explicit)
		if err != nil {
			return nil, err
		}
		return &projectContext{dir: filepath.Dir(explicit), project: p}, nil
	}

	start, err := filepath.Abs(filepath.Dir(templatePath))
	if err != nil {
		return nil, err
	}
	dir, p, err := config.FindProject(start)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return &projectContext{project: &config.Project{}}, nil
	}
	log.Infof("using project config in %s", dir)
	return &projectContext{dir: dir, project: p}, nil
}

// options assembles stencil.Options from the project file.
func (pc *projectContext) options() (*stencil.Options, error) {
	opts := &stencil.Options{
		Params: pc.project.Params,
		Escape: pc.project.EscapeEnabled(),
		Debug:  pc.project.Debug,
	}

	if len(pc.project.Funcs) > 0 {
		opts.Funcs = make(map[string]stencil.Func, len(pc.project.Funcs))
		for _, name := range pc.project.Funcs {
			fn, ok := builtinFuncs[name]
			if !ok {
				return nil, fmt.Errorf("unknown helper function %q in project config", name)
			}
			opts.Funcs[name] = fn
		}
	}

	if len(pc.project.Partials) > 0 {
		opts.Partials = make(map[string]string, len(pc.project.Partials))
		for key, rel := range pc.project.Partials {
			path := rel
			if !filepath.IsAbs(path) {
				path = filepath.Join(pc.dir, rel)
			}
			src, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("partial %q: %w", key, err)
			}
			opts.Partials[key] = string(src)
		}
	}

	return opts, nil
}

// cacheDir resolves the configured cache directory, or "" when caching
// is off.
func (pc *projectContext) cacheDir() string {
	if pc.project.CacheDir == "" {
		return ""
	}
	if filepath.IsAbs(pc.project.CacheDir) {
		return pc.project.CacheDir
	}
	return filepath.Join(pc.dir, pc.project.CacheDir)
}
