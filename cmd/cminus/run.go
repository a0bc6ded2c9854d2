package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"cminus/pkg/compiler"
	"cminus/pkg/tm"
	"cminus/pkg/utils"
)

type runFlags struct {
	input string
	steps int
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Execute a .tm listing, or compile and execute a C-minus source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(cmd, args[0], f)
		},
	}
	cmd.Flags().StringVar(&f.input, "input", "", "file with the integers read by input(); stdin if empty")
	cmd.Flags().IntVar(&f.steps, "steps", 10_000_000, "stop after this many instructions (0 for no limit)")
	return cmd
}

func loadProgram(path string) (*tm.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), utils.CodeExt) {
		return tm.LoadString(string(data))
	}
	res, err := compiler.Compile(string(data), compiler.Options{EmitCode: true})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return res.Code.Program(), nil
}

func runProgram(cmd *cobra.Command, path string, f runFlags) error {
	prog, err := loadProgram(path)
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if f.input != "" {
		file, err := os.Open(f.input)
		if err != nil {
			return err
		}
		defer file.Close()
		in = file
	}

	vm := tm.NewMachine(prog)
	vm.Output = cmd.OutOrStdout()
	vm.SetInput(in)
	if err := vm.Run(f.steps); err != nil {
		return fmt.Errorf("%s: %w (after %d steps)", path, err, vm.Steps)
	}
	return nil
}
