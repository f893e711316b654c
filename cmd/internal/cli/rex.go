// Copyright (c) Rex contributors
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package cli implements Rex's generator command line, bound directly to
// spf13/cobra and spf13/pflag rather than the teacher's heavier
// pkg/cmdline.CommandManager: Rex has exactly one command and a handful of
// repeatable flags (spec.md §6), so the extra indirection a multi-command
// registry buys the teacher has nothing to do here.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/linuxdicaspro/rex/docs"
	"github.com/linuxdicaspro/rex/internal/app/rexgen"
	"github.com/linuxdicaspro/rex/internal/pkg/buildcfg"
	"github.com/linuxdicaspro/rex/pkg/sylog"
)

var genArgs struct {
	targetBinary     string
	compressionLevel int
	extraLibs        []string
	extraBins        []string
	additionalFiles  []string
	verbose          bool
	debug            bool
	quiet            bool
}

// RexCmd is the generator's root command.
var RexCmd = &cobra.Command{
	Use:     docs.RexUse,
	Short:   docs.RexShort,
	Long:    docs.RexLong,
	Example: docs.RexExample,
	Args:    cobra.NoArgs,
	Version: buildcfg.PackageVersion,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := sylog.InfoLevel
		switch {
		case genArgs.debug:
			level = sylog.DebugLevel
		case genArgs.verbose:
			level = sylog.VerboseLevel
		case genArgs.quiet:
			level = sylog.ErrorLevel
		}
		sylog.SetLevel(int(level), true)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if genArgs.targetBinary == "" {
			return fmt.Errorf("-t/--target-binary is required")
		}
		return rexgen.Generate(rexgen.Config{
			TargetBinary:     genArgs.targetBinary,
			CompressionLevel: genArgs.compressionLevel,
			ExtraLibs:        genArgs.extraLibs,
			ExtraBins:        genArgs.extraBins,
			AdditionalFiles:  genArgs.additionalFiles,
		})
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := RexCmd.Flags()
	flags.StringVarP(&genArgs.targetBinary, "target-binary", "t", "", "path to the target ELF binary (required)")
	flags.IntVarP(&genArgs.compressionLevel, "compression-level", "L", buildcfg.DefaultCompressionLevel, "zstd compression level (1-22)")
	flags.StringArrayVarP(&genArgs.extraLibs, "extra-libs", "l", nil, "extra shared object to include (repeatable)")
	flags.StringArrayVarP(&genArgs.extraBins, "extra-bins", "b", nil, "extra executable file or directory of executables (repeatable)")
	flags.StringArrayVarP(&genArgs.additionalFiles, "additional-files", "a", nil, "extra file or directory copied to the bundle root (repeatable)")

	// Ambient logging verbosity, carried from the teacher's generator
	// flags even though spec.md's CLI table only names -t/-L/-l/-b/-a/-h/-v.
	flags.BoolVar(&genArgs.verbose, "verbose", false, "enable verbose output")
	flags.BoolVarP(&genArgs.debug, "debug", "d", false, "enable debug output")
	flags.BoolVarP(&genArgs.quiet, "quiet", "q", false, "only print errors")

	// cobra.Command's own InitDefaultVersionFlag wires up "-v, --version"
	// automatically because Version is set above and "v" is otherwise
	// free, matching spec.md §6's -v/--version exactly.
	RexCmd.SetVersionTemplate("rex version {{.Version}}\n")
}

// ExecuteRex runs the generator command and returns a process exit code,
// mirroring cmd/internal/cli.ExecuteApptainer's top-level error handling.
func ExecuteRex() int {
	if err := RexCmd.Execute(); err != nil {
		sylog.Errorf("%s", err)
		return 1
	}
	return 0
}

// PrintGeneratorHelp is used by cmd/rex/main.go when invoked with no
// arguments at all: spec.md §6 says zero args prints help and exits 0,
// which differs from cobra's default (run RunE with no flags set, which
// would then fail on the missing -t/--target-binary).
func PrintGeneratorHelp() {
	_ = RexCmd.Help()
	os.Exit(0)
}
