// Copyright (c) Rex contributors
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package deps

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

// selfImage returns the path to the currently running test binary, a real
// ELF file, so Collect can be exercised without shipping golden binaries.
func selfImage(t *testing.T) string {
	t.Helper()
	path, err := os.Executable()
	assert.NilError(t, err)
	return path
}

func TestCollect_InputNotFound(t *testing.T) {
	_, err := Collect(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.ErrorContains(t, err, "InputNotFound")
}

func TestCollect_InvalidElf(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-elf")
	assert.NilError(t, os.WriteFile(path, []byte("not an elf file"), 0o755))

	_, err := Collect(path)
	assert.ErrorContains(t, err, "InvalidElf")
}

func TestCollect_SelfImage(t *testing.T) {
	result, err := Collect(selfImage(t))
	assert.NilError(t, err)

	// The Go test binary links against libc (cgo) on most build
	// configurations, or is fully static otherwise; either classification
	// is acceptable here, but the call itself must not fail and the loader
	// must never appear in Libs.
	for _, lib := range result.Libs {
		assert.Assert(t, !isLoader(lib), "loader %q leaked into resolved library list", lib)
	}
}

func TestIsLoader(t *testing.T) {
	cases := map[string]bool{
		"/lib64/ld-linux-x86-64.so.2": true,
		"/lib/ld-musl-x86_64.so.1":    true,
		"libc.so.6":                   false,
		"/usr/lib/libssl.so.3":        false,
	}
	for path, want := range cases {
		assert.Equal(t, isLoader(path), want, path)
	}
}
