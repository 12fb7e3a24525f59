package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/veyor/stencil/internal/config"
	"github.com/veyor/stencil/internal/vm"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm <template|image>",
	Short: "Disassemble a template or a compiled image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		// A .stc argument is loaded directly; anything else compiles
		// first.
		if strings.HasSuffix(path, config.BytecodeFileExt) {
			raw, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			img, err := vm.NewImage(raw)
			if err != nil {
				return fmt.Errorf("invalid image: %w", err)
			}
			fmt.Print(vm.Disassemble(img, templateName(path)))
			return nil
		}

		projectPath, _ := cmd.Flags().GetString("project")
		tpl, _, err := compileTemplate(projectPath, path)
		if err != nil {
			return err
		}
		fmt.Print(tpl.Disassemble())
		return nil
	},
}
