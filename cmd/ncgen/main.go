package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"ncgen/internal/config"
)

var (
	rootCmd = &cobra.Command{
		Use:               filepath.Base(os.Args[0]) + " [options]",
		Long:              "Generate x86-64 machine code from a small assembly dialect",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: persistentPreRunE,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	configPath string
	logLevel   string

	// cfg is loaded once per invocation in persistentPreRunE.
	cfg *config.Config

	colorErrors = term.IsTerminal(int(os.Stderr.Fd()))
)

func init() {
	rootFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(buildCommand, dumpCommand, configCommand)
}

func rootFlags(pFlags *pflag.FlagSet) {
	pFlags.StringVar(&configPath, "config", "", "Path to a TOML configuration file")
	pFlags.StringVar(&logLevel, "log-level", "", `Log messages above specified level ("debug"|"info"|"warn"|"error"|"fatal"|"panic")`)
}

func persistentPreRunE(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		c.LogLevel = logLevel
	}
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)
	cfg = c

	logrus.Debugf("Called %s.PersistentPreRunE(%s)", cmd.Name(), strings.Join(os.Args, " "))
	return nil
}

// formatError puts every aggregated error on its own line and colors the
// prefix when stderr is a terminal.
func formatError(err error) string {
	prefix := "Error:"
	if colorErrors {
		prefix = "\x1b[1;31mError:\x1b[0m"
	}
	var merr *multierror.Error
	if errors.As(err, &merr) && len(merr.Errors) > 1 {
		var b strings.Builder
		fmt.Fprintf(&b, "%s %d errors occurred:", prefix, len(merr.Errors))
		for _, e := range merr.Errors {
			fmt.Fprintf(&b, "\n\t* %v", e)
		}
		return b.String()
	}
	return fmt.Sprintf("%s %v", prefix, err)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
		os.Exit(1)
	}
}
