package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

// Version is stamped at build time with -ldflags "-X main.Version=...".
var Version = "0.3.0"

var log = commonlog.GetLogger("stencil")

var rootCmd = &cobra.Command{
	Use:           "stencil",
	Short:         "Stencil template compiler and renderer",
	Long:          `Stencil compiles ERB-style templates to bytecode and renders them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.Version = Version

	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(disasmCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().String("project", "", "path to stencil.yaml (default: nearest ancestor)")

	cobra.OnInitialize(func() {
		setupColor()
		setupLogging()
	})

	if err := rootCmd.Execute(); err != nil {
		fail(err)
	}
}

func setupColor() {
	mode, _ := rootCmd.PersistentFlags().GetString("color")
	switch mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	default:
		color.NoColor = !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd())
	}
}

func setupLogging() {
	verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
	if verbose {
		commonlog.Configure(1, nil)
	} else {
		commonlog.Configure(0, nil)
	}
}

// fail prints an error in the CLI's house style and exits.
func fail(err error) {
	color.New(color.FgRed, color.Bold).Fprint(os.Stderr, "error: ")
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the stencil version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("stencil %s\n", Version)
	},
}
