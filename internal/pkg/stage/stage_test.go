// Copyright (c) Rex contributors
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package stage

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func selfImage(t *testing.T) string {
	t.Helper()
	path, err := os.Executable()
	assert.NilError(t, err)
	return path
}

func TestBuild_Basic(t *testing.T) {
	target := selfImage(t)
	root := t.TempDir()

	result, err := Build(Options{
		TargetBinary: target,
		TempRoot:     root,
	})
	if err != nil {
		if _, ok := err.(*Skipped); ok {
			t.Skipf("test binary is statically linked: %v", err)
		}
		t.Fatalf("Build: %v", err)
	}

	assert.Assert(t, result.TargetBinName == filepath.Base(target))
	assert.Equal(t, filepath.Base(result.Dir), result.TargetBinName+"_bundle")
	assert.Assert(t, filepath.Dir(result.Dir) != root, "staging dir must live inside a unique per-build parent, not directly under TempRoot")

	fi, err := os.Stat(filepath.Join(result.Dir, result.TargetBinName))
	assert.NilError(t, err)
	assert.Assert(t, fi.Mode().Perm()&0o100 != 0, "target copy must be executable")

	_, err = os.Stat(filepath.Join(result.Dir, "bins"))
	assert.NilError(t, err)
	_, err = os.Stat(filepath.Join(result.Dir, "libs"))
	assert.NilError(t, err)
}

func TestBuild_MissingExtraLibIsWarnedNotFatal(t *testing.T) {
	target := selfImage(t)
	root := t.TempDir()

	_, err := Build(Options{
		TargetBinary: target,
		ExtraLibs:    []string{filepath.Join(root, "does-not-exist.so")},
		TempRoot:     root,
	})
	if err != nil {
		if _, ok := err.(*Skipped); ok {
			t.Skipf("test binary is statically linked: %v", err)
		}
		t.Fatalf("Build: %v", err)
	}
}

func TestBuild_AdditionalFileCopied(t *testing.T) {
	target := selfImage(t)
	root := t.TempDir()

	extra := filepath.Join(root, "extra.txt")
	assert.NilError(t, os.WriteFile(extra, []byte("data"), 0o644))

	result, err := Build(Options{
		TargetBinary:    target,
		AdditionalFiles: []string{extra},
		TempRoot:        root,
	})
	if err != nil {
		if _, ok := err.(*Skipped); ok {
			t.Skipf("test binary is statically linked: %v", err)
		}
		t.Fatalf("Build: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(result.Dir, "extra.txt"))
	assert.NilError(t, err)
	assert.Equal(t, string(got), "data")
}

func TestLibSet_DedupByAbsolutePath(t *testing.T) {
	s := newLibSet()
	s.add("/a/b.so")
	s.add("/a/b.so")
	s.add("/a/../a/b.so")
	assert.Equal(t, len(s.paths()), 1)
}

func TestCopyLibs_BasenameDedup(t *testing.T) {
	dir := t.TempDir()
	libsDir := filepath.Join(dir, "libs")
	assert.NilError(t, os.MkdirAll(libsDir, 0o755))

	src1 := filepath.Join(dir, "first", "libfoo.so")
	src2 := filepath.Join(dir, "second", "libfoo.so")
	assert.NilError(t, os.MkdirAll(filepath.Dir(src1), 0o755))
	assert.NilError(t, os.MkdirAll(filepath.Dir(src2), 0o755))
	assert.NilError(t, os.WriteFile(src1, []byte("first"), 0o644))
	assert.NilError(t, os.WriteFile(src2, []byte("second"), 0o644))

	assert.NilError(t, copyLibs([]string{src1, src2}, libsDir))

	got, err := os.ReadFile(filepath.Join(libsDir, "libfoo.so"))
	assert.NilError(t, err)
	assert.Equal(t, string(got), "first", "later source with same basename must be skipped")
}

func TestCopyIfExists_SkipsMissing(t *testing.T) {
	dir := t.TempDir()
	// Must not panic or error; only warn.
	copyIfExists(filepath.Join(dir, "missing"), dir, "additional file")
}
