// Copyright (c) Rex contributors
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package stage

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"gotest.tools/v3/assert"

	"github.com/linuxdicaspro/rex/internal/pkg/buildcfg"
)

func writeStageTree(t *testing.T, root string) {
	t.Helper()
	assert.NilError(t, os.MkdirAll(filepath.Join(root, "bins"), 0o755))
	assert.NilError(t, os.MkdirAll(filepath.Join(root, "libs"), 0o755))
	assert.NilError(t, os.WriteFile(filepath.Join(root, "hello"), []byte("binary-bytes"), 0o755))
	assert.NilError(t, os.WriteFile(filepath.Join(root, "libs", "libc.so.6"), []byte("lib-bytes"), 0o644))
}

func TestPack_RoundTrip(t *testing.T) {
	tmp := t.TempDir()
	stageDir := filepath.Join(tmp, "hello_bundle")
	assert.NilError(t, os.MkdirAll(stageDir, 0o755))
	writeStageTree(t, stageDir)

	result, err := Pack(stageDir, "hello", buildcfg.DefaultCompressionLevel, tmp)
	assert.NilError(t, err)
	assert.Assert(t, result.Size > 0)

	f, err := os.Open(result.Path)
	assert.NilError(t, err)
	defer f.Close()

	dec, err := zstd.NewReader(f)
	assert.NilError(t, err)
	defer dec.Close()

	decompressed, err := io.ReadAll(dec)
	assert.NilError(t, err)
	assert.Assert(t, len(decompressed) > 0)
}

func TestZstdLevel_RejectsOutOfRange(t *testing.T) {
	_, err := zstdLevel(0)
	assert.ErrorContains(t, err, "compression level")

	_, err = zstdLevel(23)
	assert.ErrorContains(t, err, "compression level")
}

func TestZstdLevel_AcceptsBounds(t *testing.T) {
	_, err := zstdLevel(buildcfg.MinCompressionLevel)
	assert.NilError(t, err)
	_, err = zstdLevel(buildcfg.MaxCompressionLevel)
	assert.NilError(t, err)
}
