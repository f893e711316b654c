// Copyright (c) Rex contributors
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package stage

import (
	"io"
	"os"
	"path/filepath"

	"github.com/docker/docker/pkg/archive"

	"github.com/linuxdicaspro/rex/pkg/sylog"
)

// copyFile copies src to dst, preserving src's permission bits, the way the
// generator copies the target binary and its dependencies into the staging
// tree (spec.md §4.2 steps 4-6).
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// copyTree recursively copies src into dst, preserving structure and
// permissions, grounded on pkg/util/archive.CopyWithTar's use of
// docker/pkg/archive in the teacher project — used here for the rarer case
// of an AdditionalFile argument naming a directory rather than a file.
func copyTree(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	reader, err := archive.TarWithOptions(src, &archive.TarOptions{
		Compression: archive.Uncompressed,
	})
	if err != nil {
		return err
	}
	defer reader.Close()

	return archive.Untar(reader, dst, &archive.TarOptions{
		NoLchown: true,
	})
}

// copyAny copies src (file or directory) into the directory dstDir,
// preserving src's basename.
func copyAny(src, dstDir string) error {
	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	dst := filepath.Join(dstDir, filepath.Base(src))
	if fi.IsDir() {
		return copyTree(src, dst)
	}
	return copyFile(src, dst)
}

// copyIfExists copies src into dstDir, logging and skipping (not failing)
// when src does not exist, per spec.md §4.2's "never fatal" rule for
// missing additional files.
func copyIfExists(src, dstDir, role string) {
	if _, err := os.Stat(src); err != nil {
		sylog.Warningf("skipping missing %s %q: %v", role, src, err)
		return
	}
	if err := copyAny(src, dstDir); err != nil {
		sylog.Warningf("could not copy %s %q: %v", role, src, err)
	}
}
