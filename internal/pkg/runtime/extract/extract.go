// Copyright (c) Rex contributors
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package extract implements Rex's runtime extractor and launcher: turning
// a located trailer (internal/pkg/runtime/trailer) into a staging tree on
// disk and then an invocation of the embedded target through its dynamic
// loader, grounded on the teacher's bin.FindBin loader-discovery pattern
// and pkg/util/archive's use of docker/pkg/archive for tar extraction.
package extract

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	da "github.com/docker/docker/pkg/archive"
	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/linuxdicaspro/rex/internal/pkg/buildcfg"
	"github.com/linuxdicaspro/rex/internal/pkg/runtime/trailer"
	"github.com/linuxdicaspro/rex/pkg/rexerr"
)

// Extract decompresses and untars the payload described by info, read from
// selfImage, into a freshly created, uniquely named directory under
// tempRoot. It returns the path to the extracted "<target>_bundle"
// directory.
func Extract(selfImage string, info *trailer.Info, tempRoot string) (string, error) {
	if tempRoot == "" {
		tempRoot = buildcfg.TempRoot
	}

	f, err := os.Open(selfImage)
	if err != nil {
		return "", rexerr.New(rexerr.KindIO, selfImage, err)
	}
	defer f.Close()

	if _, err := f.Seek(info.PayloadStart, io.SeekStart); err != nil {
		return "", rexerr.New(rexerr.KindIO, selfImage, err)
	}

	limited := io.LimitReader(f, info.PayloadSize)

	dec, err := zstd.NewReader(limited)
	if err != nil {
		return "", rexerr.New(rexerr.KindCorruptTrailer, selfImage, err)
	}
	defer dec.Close()

	dest := filepath.Join(tempRoot, buildcfg.PackageName+"-extract-"+uuid.NewString())
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", rexerr.New(rexerr.KindIO, dest, err)
	}

	if err := extractTar(dec, dest); err != nil {
		os.RemoveAll(dest)
		return "", err
	}

	bundleDir := filepath.Join(dest, info.TargetBinName+"_bundle")
	if _, err := os.Stat(bundleDir); err != nil {
		os.RemoveAll(dest)
		return "", rexerr.New(rexerr.KindCorruptTrailer, bundleDir, err)
	}

	return bundleDir, nil
}

// extractTar reads a tar stream from r and writes it under dest, confining
// every entry name to dest's subtree. docker/pkg/archive.Untar performs its
// own traversal checks, but each name is also rewritten explicitly via
// filepath-securejoin before Untar sees it: belt and braces for a hardening
// requirement the source format does not itself guarantee.
func extractTar(r io.Reader, dest string) error {
	// Pre-scan isn't possible on a streaming reader without buffering the
	// whole payload, so entries are validated one at a time as
	// docker/pkg/archive visits them via a tee into a validating wrapper.
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(validateAndCopy(r, pw, dest))
	}()

	return da.Untar(pr, dest, &da.TarOptions{
		NoLchown: true,
	})
}

// validateAndCopy copies the tar stream from src to dst, rewriting each
// entry's name through filepath-securejoin so that an absolute path or a
// ".." traversal in a header can never resolve outside dest: securejoin
// clamps the join to dest's subtree rather than merely rejecting it, so
// docker/pkg/archive.Untar only ever sees names already confined there.
func validateAndCopy(src io.Reader, dst io.Writer, dest string) error {
	tr := tar.NewReader(src)
	tw := tar.NewWriter(dst)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return tw.Close()
		}
		if err != nil {
			return err
		}

		safe, err := securejoin.SecureJoin(dest, hdr.Name)
		if err != nil {
			return fmt.Errorf("resolving %q: %w", hdr.Name, err)
		}
		rel, err := filepath.Rel(dest, safe)
		if err != nil {
			return fmt.Errorf("resolving %q: %w", hdr.Name, err)
		}
		hdr.Name = rel
		if hdr.Linkname != "" && (hdr.Typeflag == tar.TypeLink || hdr.Typeflag == tar.TypeSymlink) {
			hdr.Linkname = filepath.Clean(hdr.Linkname)
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := io.Copy(tw, tr); err != nil {
				return err
			}
		}
	}
}
