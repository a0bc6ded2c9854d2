package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cminus",
		Short: "C-minus compiler and TM simulator",
		Long: `cminus compiles C-minus programs to TM code and runs TM listings.

Commands:
  compile  Check a C-minus source file and optionally emit <source>.tm
  run      Execute a TM listing, or compile and execute a C-minus source
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCompileCmd(), newRunCmd())
	return root
}
