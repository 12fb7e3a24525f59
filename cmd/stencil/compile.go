package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/veyor/stencil/internal/config"
)

var compileCmd = &cobra.Command{
	Use:   "compile <template>",
	Short: "Compile a template to a bytecode image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outPath, _ := cmd.Flags().GetString("output")
		projectPath, _ := cmd.Flags().GetString("project")

		tpl, _, err := compileTemplate(projectPath, args[0])
		if err != nil {
			return err
		}

		if outPath == "" {
			outPath = outputName(args[0])
		}
		if err := os.WriteFile(outPath, tpl.Bytecode(), 0o644); err != nil {
			return err
		}
		log.Infof("wrote %s (%d bytes)", outPath, len(tpl.Bytecode()))

		sidecar, err := tpl.DebugInfo()
		if err != nil {
			return err
		}
		if sidecar != nil {
			sidecarPath := strings.TrimSuffix(outPath, config.BytecodeFileExt) + config.SidecarFileExt
			if err := os.WriteFile(sidecarPath, sidecar, 0o644); err != nil {
				return err
			}
			log.Infof("wrote %s (%d bytes)", sidecarPath, len(sidecar))
		}

		fmt.Printf("compiled %s -> %s\n", args[0], outPath)
		return nil
	},
}

func init() {
	compileCmd.Flags().StringP("output", "o", "", "output path (default: input with "+config.BytecodeFileExt+")")
}

// outputName derives the .stc path from a template path.
func outputName(templatePath string) string {
	for _, ext := range config.TemplateFileExtensions {
		if strings.HasSuffix(templatePath, ext) {
			return strings.TrimSuffix(templatePath, ext) + config.BytecodeFileExt
		}
	}
	return templatePath + config.BytecodeFileExt
}
