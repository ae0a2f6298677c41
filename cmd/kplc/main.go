package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/raymyers/kplc/pkg/config"
	"github.com/raymyers/kplc/pkg/ir"
	"github.com/raymyers/kplc/pkg/lower"
	"github.com/raymyers/kplc/pkg/treeyaml"
)

var version = "0.1.0"

// Output flags
var (
	outputPath string
	dIR        bool
	noComments bool
	verbose    bool
)

// Lowering options
var (
	configPath     string
	switchStrategy string
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kplc [file]",
		Short: "kplc lowers a resolved KPL package to BLITZ assembly",
		Long: `kplc is the back end of a KPL compiler. It reads a package tree
that has already been resolved and laid out, lowers every routine to
the register machine IR and prints it as BLITZ assembly.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Help()
				return nil
			}

			err := compile(cmd.Context(), args[0], out)
			if err != nil {
				fmt.Fprintf(errOut, "kplc: %v\n", err)
			}

			return err
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write output to file instead of stdout")
	rootCmd.Flags().BoolVar(&dIR, "dir", false, "Dump the instruction list instead of assembly")
	rootCmd.Flags().BoolVar(&noComments, "no-comments", false, "Do not emit comments")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log lowering progress")

	rootCmd.Flags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.Flags().StringVar(&switchStrategy, "switch-strategy", "", "Force the switch strategy: auto, linear, table or hash")

	return rootCmd
}

// loadConfig reads the configuration file, if any, and applies flag overrides
func loadConfig() (*config.Config, error) {
	cfg := config.Default()

	if configPath != "" {
		var err error

		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, errors.Wrap(err, "%v", configPath)
		}
	}

	if switchStrategy != "" {
		cfg.Switch.Strategy = config.Strategy(switchStrategy)
	}

	if noComments {
		cfg.Comments = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func compile(ctx context.Context, filename string, out io.Writer) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if verbose {
		ctx = tlog.ContextWithSpan(ctx, tlog.Root())
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pkg, err := treeyaml.ReadFile(ctx, filename)
	if err != nil {
		return err
	}

	code, err := lower.LowerPackage(ctx, pkg, cfg)
	if err != nil {
		return err
	}

	w := out

	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return errors.Wrap(err, "create output")
		}

		defer func() {
			e := f.Close()
			if err == nil && e != nil {
				err = errors.Wrap(e, "close output")
			}
		}()

		w = f
	}

	p := ir.NewPrinter(w)

	if dIR {
		return p.Dump(code)
	}

	return p.PrintCode(code)
}
