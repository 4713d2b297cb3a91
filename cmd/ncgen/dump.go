package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"ncgen/debug"
	"ncgen/internal/asm"
	"ncgen/internal/ast"
)

var (
	dumpCommand = &cobra.Command{
		Use:   "dump [options] INPUT",
		Short: "Print the parse tree, symbols, relocations and code of a source file",
		Args:  cobra.ExactArgs(1),
		RunE:  dump,
	}

	dumpOpts struct {
		tree    bool
		symbols bool
		relocs  bool
		hex     bool
	}
)

func init() {
	dumpFlags(dumpCommand.Flags())
}

func dumpFlags(flags *pflag.FlagSet) {
	flags.BoolVar(&dumpOpts.tree, "ast", false, "Print the parse tree")
	flags.BoolVar(&dumpOpts.symbols, "symbols", false, "Print the symbol table after code generation")
	flags.BoolVar(&dumpOpts.relocs, "relocs", false, "Print recorded relocations")
	flags.BoolVar(&dumpOpts.hex, "hex", false, "Hex dump .text and .data")
}

func dump(cmd *cobra.Command, args []string) error {
	all := !dumpOpts.tree && !dumpOpts.symbols && !dumpOpts.relocs && !dumpOpts.hex

	a, err := asm.NewAssembler(cfg, logrus.StandardLogger())
	if err != nil {
		return err
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := a.Assemble(f)
	if err != nil {
		return err
	}
	return writeDump(cmd.OutOrStdout(), res, all)
}

func writeDump(w io.Writer, res *asm.AssemblyResult, all bool) error {
	if all || dumpOpts.tree {
		fmt.Fprintln(w, "# ast")
		if err := ast.FprintProgram(w, res.Program); err != nil {
			return err
		}
	}
	if all || dumpOpts.symbols {
		fmt.Fprintln(w, "# symbols")
		tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tKIND\tSECTION\tLOCATION\tSIZE\tGLOBAL")
		for _, s := range res.Table.Symbols() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%#x\t%d\t%t\n", s.Name, s.Kind, s.Section, s.Location, s.Size, s.Global)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if all || dumpOpts.relocs {
		fmt.Fprintln(w, "# relocations")
		for _, r := range res.Relocs {
			fmt.Fprintf(w, "0x%04x  %-15s %s%+d  (site %#x)\n", r.Offset, r.Kind, r.Symbol, r.Addend, r.Site)
		}
	}
	if all || dumpOpts.hex {
		fmt.Fprintln(w, "# .text")
		if err := debug.HexDump(w, res.Code); err != nil {
			return err
		}
		fmt.Fprintln(w, "# .data")
		if err := debug.HexDump(w, res.Data); err != nil {
			return err
		}
	}
	return nil
}
