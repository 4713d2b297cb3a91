package main

import (
	"os"
	"path/filepath"

	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"ncgen/debug"
	"ncgen/internal/asm"
	"ncgen/internal/format"
)

var (
	buildCommand = &cobra.Command{
		Use:   "build [options] INPUT",
		Short: "Assemble a source file into an ELF executable or object",
		Args:  cobra.ExactArgs(1),
		RunE:  build,
	}

	buildOpts struct {
		output string
		format string
		entry  string
	}
)

func init() {
	buildFlags(buildCommand.Flags())
}

func buildFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&buildOpts.output, "output", "o", "", "Output file (default: input name without extension)")
	flags.StringVar(&buildOpts.format, "format", "", `Output format ("exec"|"object")`)
	flags.StringVar(&buildOpts.entry, "entry", "", "Entry symbol of an executable")
}

func build(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("format") {
		if format.ParseFormat(buildOpts.format) == format.FormatUnknown {
			return errors.Errorf("unknown format: %s", buildOpts.format)
		}
		cfg.Format = buildOpts.format
	}
	if cmd.Flags().Changed("entry") {
		cfg.Entry = buildOpts.entry
	}

	a, err := asm.NewAssembler(cfg, logrus.StandardLogger())
	if err != nil {
		return err
	}

	input := args[0]
	f, err := os.Open(input)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := a.Assemble(f)
	if err != nil {
		return err
	}
	bin, err := a.BuildBinary(res)
	if err != nil {
		return err
	}

	output := buildOpts.output
	if output == "" {
		base := filepath.Base(input)
		output = base[:len(base)-len(filepath.Ext(base))] + a.Builder().Extension()
		if output == base {
			output += ".out"
		}
	}
	perm := os.FileMode(0o644)
	if a.Builder().Format() == format.FormatExec {
		perm = 0o755
	}
	if err := os.WriteFile(output, bin, perm); err != nil {
		return errors.Wrapf(err, "writing %s", output)
	}

	logrus.WithFields(logrus.Fields{
		"output": output,
		"format": a.Builder().Format(),
		"text":   units.HumanSize(float64(len(res.Code))),
		"data":   units.HumanSize(float64(len(res.Data))),
		"size":   units.HumanSize(float64(len(bin))),
		"sha256": debug.CheckSum(bin),
	}).Info("wrote image")
	return nil
}
