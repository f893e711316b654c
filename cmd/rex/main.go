// Copyright (c) Rex contributors
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Rex is a self-contained executable bundler for Linux. This binary is
// dual-role: run plain, it is the generator; appended with a bundle
// trailer (pkg/bundle), it is the extractor and launcher for whatever
// target was bundled into it. Mode selection happens once, at startup, by
// probing the process's own on-disk image — mirroring the way
// cmd/apptainer/cli.go hands off to cmd/internal/cli after one
// buildcfg/useragent setup step, generalized here into a two-way branch
// instead of a single path.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/linuxdicaspro/rex/cmd/internal/cli"
	"github.com/linuxdicaspro/rex/docs"
	"github.com/linuxdicaspro/rex/internal/pkg/buildcfg"
	"github.com/linuxdicaspro/rex/internal/pkg/runtime/extract"
	"github.com/linuxdicaspro/rex/internal/pkg/runtime/trailer"
	"github.com/linuxdicaspro/rex/pkg/sylog"
)

func main() {
	os.Exit(run())
}

func run() int {
	self, err := os.Executable()
	if err != nil {
		sylog.Errorf("could not determine own executable path: %s", err)
		return 1
	}

	info, err := trailer.Locate(self)
	if err != nil {
		sylog.Errorf("%s", err)
		return 1
	}

	if info == nil {
		return runGenerator()
	}
	return runBundled(self, info, os.Args[1:])
}

// runGenerator delegates to the generator CLI (cmd/internal/cli), with
// spec.md §6's "zero arguments prints help and exits 0" special case
// handled before cobra ever sees the argument list.
func runGenerator() int {
	if len(os.Args) == 1 {
		cli.PrintGeneratorHelp()
		return 0
	}
	return cli.ExecuteRex()
}

// runBundled implements spec.md §4.6's bundled-mode argument vocabulary:
// --rex-help, --rex-extract, or forward everything else to the embedded
// target.
func runBundled(self string, info *trailer.Info, args []string) int {
	if len(args) == 1 && args[0] == "--rex-help" {
		fmt.Println(docs.RexRuntimeHelp)
		return 0
	}

	if len(args) == 1 && args[0] == "--rex-extract" {
		cwd, err := os.Getwd()
		if err != nil {
			sylog.Errorf("%s", err)
			return 1
		}
		bundleDir, err := extract.Extract(self, info, cwd)
		if err != nil {
			sylog.Errorf("%s", err)
			return 1
		}
		scratchParent := filepath.Dir(bundleDir)
		dest := info.TargetBinName + "_bundle"
		if err := os.Rename(bundleDir, dest); err != nil {
			sylog.Errorf("could not finalize extracted directory: %s", err)
			return 1
		}
		os.Remove(scratchParent)
		fmt.Println(dest)
		return 0
	}

	// A non-nil error here means extraction, the loader, or the target
	// itself could not be spawned at all (LoaderMissing, TargetMissing,
	// spawn failure) — these get a diagnostic. A target that spawned and
	// simply exited non-zero is not an error at this layer: its exit code
	// is returned directly and becomes the bundle's own exit code, with no
	// Rex-level message, so the bundle behaves exactly like the target.
	exitCode, err := extract.ExtractAndRun(self, info, buildcfg.TempRoot, args)
	if err != nil {
		sylog.Errorf("%s", err)
		return 1
	}
	return exitCode
}
