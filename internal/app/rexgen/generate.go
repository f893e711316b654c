// Copyright (c) Rex contributors
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package rexgen is the generator's application layer: it wires the
// dependency collector, staging builder, payload packager, and bundle
// writer together into one Generate call, the way internal/app/apptainer
// wires the build subsystems together behind cmd/internal/cli/build.go.
package rexgen

import (
	"fmt"
	"path/filepath"

	"github.com/linuxdicaspro/rex/internal/pkg/stage"
	"github.com/linuxdicaspro/rex/pkg/sylog"
)

// bundleSuffix is spec.md §6 and §9(c)'s fixed output extension. It is not
// derived from buildcfg.PackageName, which is lowercase ("rex"): the
// produced file is capitalized ".Rex".
const bundleSuffix = "Rex"

// Config mirrors the generator CLI flags of spec.md §6.
type Config struct {
	TargetBinary     string
	OutputPath       string
	CompressionLevel int
	ExtraLibs        []string
	ExtraBins        []string
	AdditionalFiles  []string
	TempRoot         string
}

// Generate runs the full pipeline: collect dependencies, stage, pack,
// write. It returns nil when the target is statically linked (no
// bundle is produced, per spec.md §4.2 step 1); callers should treat a nil
// error with no output file as success.
func Generate(cfg Config) error {
	sylog.Infof("collecting dependencies for %s", cfg.TargetBinary)

	staged, err := stage.Build(stage.Options{
		TargetBinary:    cfg.TargetBinary,
		ExtraLibs:       cfg.ExtraLibs,
		ExtraBins:       cfg.ExtraBins,
		AdditionalFiles: cfg.AdditionalFiles,
		TempRoot:        cfg.TempRoot,
	})
	if err != nil {
		if _, ok := err.(*stage.Skipped); ok {
			sylog.Infof("%v", err)
			return nil
		}
		return err
	}

	sylog.Infof("packing %s", staged.Dir)
	packed, err := stage.Pack(staged.Dir, staged.TargetBinName, cfg.CompressionLevel, cfg.TempRoot)
	if err != nil {
		return err
	}

	out := cfg.OutputPath
	if out == "" {
		out = defaultOutputPath(cfg.TargetBinary)
	}

	sylog.Infof("writing %s", out)
	if err := stage.Write(out, packed.Path, packed.Size, staged.TargetBinName, staged.Dir); err != nil {
		return err
	}

	sylog.Infof("done: %s -> %s", cfg.TargetBinary, out)
	return nil
}

// defaultOutputPath names the bundle "<target>.Rex" in the current working
// directory when Config.OutputPath is empty.
func defaultOutputPath(target string) string {
	return fmt.Sprintf("%s.%s", filepath.Base(target), bundleSuffix)
}
