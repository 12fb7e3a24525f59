package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/veyor/stencil"
	"github.com/veyor/stencil/internal/cache"
	"github.com/veyor/stencil/internal/config"
)

var renderCmd = &cobra.Command{
	Use:   "render <template>",
	Short: "Render a template to stdout or a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dataPath, _ := cmd.Flags().GetString("data")
		outPath, _ := cmd.Flags().GetString("out")
		projectPath, _ := cmd.Flags().GetString("project")

		tpl, _, err := compileTemplate(projectPath, args[0])
		if err != nil {
			return err
		}

		vars := map[string]any{}
		if dataPath != "" {
			data, err := os.ReadFile(dataPath)
			if err != nil {
				return fmt.Errorf("failed to read data file: %w", err)
			}
			if err := yaml.Unmarshal(data, &vars); err != nil {
				return fmt.Errorf("failed to parse data file: %w", err)
			}
		}

		out := os.Stdout
		if outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		return tpl.Render(out, vars)
	},
}

func init() {
	renderCmd.Flags().String("data", "", "YAML file with template variables")
	renderCmd.Flags().String("out", "", "output file (default stdout)")
}

// compileTemplate reads, compiles, and (when the project configures a
// cache directory) caches a template.
func compileTemplate(projectPath, templatePath string) (*stencil.Template, *projectContext, error) {
	pc, err := loadProjectContext(projectPath, templatePath)
	if err != nil {
		return nil, nil, err
	}
	opts, err := pc.options()
	if err != nil {
		return nil, nil, err
	}

	raw, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, nil, err
	}
	source := string(raw)
	name := templateName(templatePath)

	dir := pc.cacheDir()
	if dir == "" {
		tpl, err := stencil.Compile(name, source, opts)
		return tpl, pc, err
	}

	store, err := cache.Open(dir)
	if err != nil {
		return nil, nil, err
	}

	funcNames := make([]string, 0, len(opts.Funcs))
	for fname := range opts.Funcs {
		funcNames = append(funcNames, fname)
	}
	sort.Strings(funcNames)
	key := cache.KeyFor(source, opts.Params, funcNames, opts.Escape, config.ParseDebugLevel(opts.Debug))

	if image, _ := store.Lookup(key); image != nil {
		log.Infof("cache hit for %s", name)
		tpl, err := stencil.Load(name, image, opts)
		if err == nil {
			return tpl, pc, nil
		}
		log.Warningf("cached image for %s is unusable, recompiling: %s", name, err)
	}

	tpl, err := stencil.Compile(name, source, opts)
	if err != nil {
		return nil, nil, err
	}
	putErr := store.Put(key, tpl.Bytecode(), &cache.Entry{
		Name:   name,
		Params: opts.Params,
		Escape: opts.Escape,
		Debug:  opts.Debug,
	})
	if putErr != nil {
		log.Warningf("failed to cache %s: %s", name, putErr)
	}
	return tpl, pc, nil
}

func templateName(path string) string {
	base := filepath.Base(path)
	for _, ext := range config.TemplateFileExtensions {
		if len(base) > len(ext) && base[len(base)-len(ext):] == ext {
			return base[:len(base)-len(ext)]
		}
	}
	return base
}
