package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cminus/pkg/compiler"
	"cminus/pkg/utils"
)

type compileFlags struct {
	tree   bool
	scopes bool
	code   bool
	trace  bool
	out    string
}

func newCompileCmd() *cobra.Command {
	var f compileFlags
	cmd := &cobra.Command{
		Use:   "compile <source>",
		Short: "Check a C-minus program and optionally generate TM code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, args[0], f)
		},
	}
	cmd.Flags().BoolVarP(&f.tree, "tree", "a", false, "print the syntax tree")
	cmd.Flags().BoolVarP(&f.scopes, "scopes", "s", false, "print every frame of the symbol table")
	cmd.Flags().BoolVarP(&f.code, "code", "c", false, "write TM code to <source>.tm")
	cmd.Flags().BoolVar(&f.trace, "trace", false, "annotate the TM code with comments")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "TM output file (implies -c)")
	return cmd
}

func runCompile(cmd *cobra.Command, source string, f compileFlags) error {
	src, err := os.ReadFile(source)
	if err != nil {
		return err
	}
	emit := f.code || f.out != ""
	res, err := compiler.Compile(string(src), compiler.Options{
		PrintTree:   f.tree,
		PrintScopes: f.scopes,
		EmitCode:    emit,
		Trace:       f.trace,
		Listing:     cmd.OutOrStdout(),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", source, err)
	}
	if !emit {
		return nil
	}

	path, err := utils.CodePath(source, f.out)
	if err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := res.Code.WriteTo(file); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	if bugs := res.Code.Bugs(); bugs > 0 {
		return fmt.Errorf("%s: code generator reported %d bugs, see %s", source, bugs, path)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
	return nil
}
