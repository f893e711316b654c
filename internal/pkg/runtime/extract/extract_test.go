// Copyright (c) Rex contributors
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package extract

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"gotest.tools/v3/assert"

	"github.com/linuxdicaspro/rex/internal/pkg/runtime/trailer"
	"github.com/linuxdicaspro/rex/pkg/bundle"
)

// buildBundleFile writes a self-extracting bundle file with a tar+zstd
// payload containing the given entries, nested under "<target>_bundle/".
func buildBundleFile(t *testing.T, dir, target string, entries map[string]string) string {
	t.Helper()

	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	top := bundle.BundleDirName(target)
	assert.NilError(t, tw.WriteHeader(&tar.Header{Name: top + "/", Typeflag: tar.TypeDir, Mode: 0o755}))
	for name, content := range entries {
		hdr := &tar.Header{
			Name:     filepath.Join(top, name),
			Typeflag: tar.TypeReg,
			Mode:     0o755,
			Size:     int64(len(content)),
		}
		assert.NilError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(content))
		assert.NilError(t, err)
	}
	assert.NilError(t, tw.Close())

	var zstdBuf bytes.Buffer
	enc, err := zstd.NewWriter(&zstdBuf)
	assert.NilError(t, err)
	_, err = enc.Write(tarBuf.Bytes())
	assert.NilError(t, err)
	assert.NilError(t, enc.Close())

	payload := zstdBuf.Bytes()
	host := []byte("FAKE-HOST-EXECUTABLE-BYTES")

	data := append([]byte{}, host...)
	data = append(data, payload...)
	data = append(data, []byte(target)...)
	meta := bundle.Metadata{PayloadSize: uint64(len(payload)), NameLen: uint32(len(target))}
	data = append(data, meta.Encode()...)
	data = append(data, []byte(bundle.Magic)...)

	path := filepath.Join(dir, "bundle.bin")
	assert.NilError(t, os.WriteFile(path, data, 0o755))
	return path
}

func TestExtract_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := buildBundleFile(t, dir, "hello", map[string]string{
		"hello":                     "target-binary-bytes",
		"libs/ld-linux-x86-64.so.2": "loader-bytes",
		"libs/libc.so.6":            "libc-bytes",
	})

	info, err := trailer.Locate(path)
	assert.NilError(t, err)
	assert.Assert(t, info != nil)

	root := t.TempDir()
	bundleDir, err := Extract(path, info, root)
	assert.NilError(t, err)
	defer os.RemoveAll(filepath.Dir(bundleDir))

	got, err := os.ReadFile(filepath.Join(bundleDir, "hello"))
	assert.NilError(t, err)
	assert.Equal(t, string(got), "target-binary-bytes")

	_, err = os.Stat(filepath.Join(bundleDir, "libs", "ld-linux-x86-64.so.2"))
	assert.NilError(t, err)
}

func TestExtract_RejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	target := "hello"

	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	top := bundle.BundleDirName(target)
	assert.NilError(t, tw.WriteHeader(&tar.Header{Name: top + "/", Typeflag: tar.TypeDir, Mode: 0o755}))
	evil := &tar.Header{
		Name:     top + "/../../../etc/evil",
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     int64(len("pwned")),
	}
	assert.NilError(t, tw.WriteHeader(evil))
	_, err := tw.Write([]byte("pwned"))
	assert.NilError(t, err)
	assert.NilError(t, tw.Close())

	var zstdBuf bytes.Buffer
	enc, err := zstd.NewWriter(&zstdBuf)
	assert.NilError(t, err)
	_, err = enc.Write(tarBuf.Bytes())
	assert.NilError(t, err)
	assert.NilError(t, enc.Close())

	payload := zstdBuf.Bytes()
	data := append([]byte("HOST"), payload...)
	data = append(data, []byte(target)...)
	meta := bundle.Metadata{PayloadSize: uint64(len(payload)), NameLen: uint32(len(target))}
	data = append(data, meta.Encode()...)
	data = append(data, []byte(bundle.Magic)...)

	path := filepath.Join(dir, "bundle.bin")
	assert.NilError(t, os.WriteFile(path, data, 0o755))

	info, err := trailer.Locate(path)
	assert.NilError(t, err)
	assert.Assert(t, info != nil)

	root := t.TempDir()
	bundleDir, err := Extract(path, info, root)
	if err == nil {
		defer os.RemoveAll(filepath.Dir(bundleDir))
	}

	_, statErr := os.Stat(filepath.Join(root, "..", "etc", "evil"))
	assert.Assert(t, os.IsNotExist(statErr), "path traversal entry must never be written outside the extraction root")
}

func TestFindLoader_PrefersGlibc(t *testing.T) {
	dir := t.TempDir()
	assert.NilError(t, os.WriteFile(filepath.Join(dir, "ld-linux-x86-64.so.2"), []byte("x"), 0o755))
	assert.NilError(t, os.WriteFile(filepath.Join(dir, "ld-musl-x86_64.so.1"), []byte("x"), 0o755))

	loader, err := findLoader(dir)
	assert.NilError(t, err)
	assert.Equal(t, filepath.Base(loader), "ld-linux-x86-64.so.2")
}

func TestFindLoader_MissingIsLoaderMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := findLoader(dir)
	assert.ErrorContains(t, err, "LoaderMissing")
}

func TestChildEnv_PrependsBinDirToPath(t *testing.T) {
	parentPath := os.Getenv("PATH")
	env := childEnv("/staged/bins")
	found := false
	for _, kv := range env {
		if len(kv) >= 5 && kv[:5] == "PATH=" {
			found = true
			assert.Assert(t, len(kv) >= 17 && kv[5:17] == "/staged/bins", kv)
		}
	}
	assert.Assert(t, found, "PATH must be present in child env")

	// The parent's real environment must be untouched.
	assert.Equal(t, os.Getenv("PATH"), parentPath)
}
