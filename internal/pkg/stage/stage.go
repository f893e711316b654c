// Copyright (c) Rex contributors
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package stage implements Rex's staging builder: it assembles the ephemeral
// directory tree (target binary, bins/, libs/, additional files) that the
// payload packager later archives, grounded on the way the teacher's
// conveyorPacker_local.go and assemblers/sandbox.go populate a bundle
// directory from resolved inputs before archiving it.
package stage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/docker/go-units"
	"github.com/google/uuid"

	"github.com/linuxdicaspro/rex/internal/pkg/buildcfg"
	"github.com/linuxdicaspro/rex/internal/pkg/deps"
	"github.com/linuxdicaspro/rex/pkg/bundle"
	"github.com/linuxdicaspro/rex/pkg/rexerr"
	"github.com/linuxdicaspro/rex/pkg/sylog"
)

// Options configures a single staging build, mapping 1:1 onto the
// generator CLI flags in spec.md §6.
type Options struct {
	// TargetBinary is the path to the ELF to bundle. Required.
	TargetBinary string
	// ExtraLibs are additional absolute library paths forced into libs/.
	ExtraLibs []string
	// ExtraBins are extra executable files, or directories of executables,
	// copied into bins/ along with their own dependency closures.
	ExtraBins []string
	// AdditionalFiles are extra files or directories copied verbatim into
	// the staging root.
	AdditionalFiles []string
	// TempRoot overrides buildcfg.TempRoot when non-empty; tests use this
	// to stage under a t.TempDir().
	TempRoot string
}

// Result describes a completed staging tree, ready for the payload
// packager.
type Result struct {
	// Dir is the staging root, named "<target>_bundle".
	Dir string
	// TargetBinName is the target's basename, written into the bundle's
	// trailer name field.
	TargetBinName string
}

// Skipped is returned by Build when the target has no dynamic dependencies;
// per spec.md §4.2 step 1, this is not an error, just "nothing to do".
type Skipped struct {
	TargetBinary string
}

func (s *Skipped) Error() string {
	return fmt.Sprintf("%s is statically linked; no bundle is produced", s.TargetBinary)
}

// Build assembles the staging tree described in spec.md §3 and §4.2.
func Build(opts Options) (*Result, error) {
	result, err := deps.Collect(opts.TargetBinary)
	if err != nil {
		return nil, err
	}
	if result.Status == deps.Static {
		return nil, &Skipped{TargetBinary: opts.TargetBinary}
	}

	libs := newLibSet()
	libs.addAll(result.Libs)
	if result.Interpreter != "" {
		libs.add(result.Interpreter)
	}

	for _, lib := range opts.ExtraLibs {
		if _, err := os.Stat(lib); err != nil {
			sylog.Warningf("skipping missing extra library %q: %v", lib, err)
			continue
		}
		libs.add(lib)
	}

	root := opts.TempRoot
	if root == "" {
		root = buildcfg.TempRoot
	}

	// dir is literally "<target>_bundle", nested inside a uuid-suffixed
	// parent: the parent supplies spec.md §5's per-invocation uniqueness,
	// while dir's own name matches bundle.BundleDirName so the payload
	// packager can tar it directly, with no symlink standing in for it.
	targetName := filepath.Base(opts.TargetBinary)
	stageRoot := filepath.Join(root, "rex-stage-"+uuid.NewString())
	dir := filepath.Join(stageRoot, bundle.BundleDirName(targetName))
	if err := os.RemoveAll(stageRoot); err != nil {
		return nil, rexerr.New(rexerr.KindIO, stageRoot, err)
	}

	binsDir := filepath.Join(dir, "bins")
	libsDir := filepath.Join(dir, "libs")
	for _, d := range []string{dir, binsDir, libsDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, rexerr.New(rexerr.KindIO, d, err)
		}
	}

	targetDst := filepath.Join(dir, targetName)
	if err := copyFile(opts.TargetBinary, targetDst); err != nil {
		return nil, rexerr.New(rexerr.KindIO, opts.TargetBinary, err)
	}
	if err := os.Chmod(targetDst, 0o755); err != nil {
		return nil, rexerr.New(rexerr.KindIO, targetDst, err)
	}

	if err := collectExtraBins(opts.ExtraBins, binsDir, libs); err != nil {
		return nil, err
	}

	if err := copyLibs(libs.paths(), libsDir); err != nil {
		return nil, err
	}

	for _, f := range opts.AdditionalFiles {
		copyIfExists(f, dir, "additional file")
	}

	sylog.Verbosef("staged %s: %d librar%s, %s total",
		dir, len(libs.paths()), pluralY(len(libs.paths())), units.HumanSize(float64(dirSize(dir))))

	return &Result{Dir: dir, TargetBinName: targetName}, nil
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

// collectExtraBins implements spec.md §4.2 step 5: each ExtraBin path may be
// a single executable or a directory of them; every copied binary's own
// dependency closure merges into libs.
func collectExtraBins(extraBins []string, binsDir string, libs *libSet) error {
	for _, bin := range extraBins {
		fi, err := os.Stat(bin)
		if err != nil {
			sylog.Warningf("skipping missing extra binary %q: %v", bin, err)
			continue
		}

		var files []string
		if fi.IsDir() {
			entries, err := os.ReadDir(bin)
			if err != nil {
				sylog.Warningf("could not read extra bin directory %q: %v", bin, err)
				continue
			}
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				files = append(files, filepath.Join(bin, e.Name()))
			}
		} else {
			files = append(files, bin)
		}

		for _, f := range files {
			dst := filepath.Join(binsDir, filepath.Base(f))
			if err := copyFile(f, dst); err != nil {
				sylog.Warningf("could not copy extra binary %q: %v", f, err)
				continue
			}
			if err := os.Chmod(dst, 0o755); err != nil {
				sylog.Warningf("could not set exec bit on %q: %v", dst, err)
			}

			depResult, err := deps.Collect(f)
			if err != nil {
				sylog.Warningf("could not resolve dependencies of extra binary %q: %v", f, err)
				continue
			}
			if depResult.Status == deps.Dynamic {
				libs.addAll(depResult.Libs)
				if depResult.Interpreter != "" {
					libs.add(depResult.Interpreter)
				}
			}
		}
	}
	return nil
}

// copyLibs copies the resolved library set into libsDir, deduplicating by
// destination basename per spec.md §4.2's contract: "if libs/<basename>
// already exists, the later source is skipped."
func copyLibs(paths []string, libsDir string) error {
	seen := map[string]bool{}
	for _, src := range paths {
		base := filepath.Base(src)
		if seen[base] {
			continue
		}
		dst := filepath.Join(libsDir, base)
		if _, err := os.Stat(dst); err == nil {
			seen[base] = true
			continue
		}
		if err := copyFile(src, dst); err != nil {
			return rexerr.New(rexerr.KindIO, src, err)
		}
		seen[base] = true
	}
	return nil
}

// libSet deduplicates library paths by their absolute path, per spec.md
// §4.2 step 2 ("compare by absolute path, not basename").
type libSet struct {
	set map[string]bool
}

func newLibSet() *libSet { return &libSet{set: map[string]bool{}} }

func (s *libSet) add(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	s.set[abs] = true
}

func (s *libSet) addAll(paths []string) {
	for _, p := range paths {
		s.add(p)
	}
}

func (s *libSet) paths() []string {
	out := make([]string, 0, len(s.set))
	for p := range s.set {
		out = append(out, p)
	}
	return out
}

// dirSize sums the sizes of regular files under dir, used for the
// human-readable staging summary logged at Verbosef level and as the
// packing progress bar's total.
func dirSize(dir string) int64 {
	var total int64
	_ = filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total
}
