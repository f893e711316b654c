// Copyright (c) Rex contributors
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package stage

import (
	"io"
	"os"
	"path/filepath"

	"github.com/docker/go-units"

	"github.com/linuxdicaspro/rex/pkg/bundle"
	"github.com/linuxdicaspro/rex/pkg/rexerr"
	"github.com/linuxdicaspro/rex/pkg/sylog"
)

// Write implements spec.md §4.4's Bundle Writer: it copies the running
// tool's own image to outputPath, appends the compressed payload at
// payloadPath, then the trailer (name, metadata, magic), and finally
// removes the scratch payload and staging tree.
func Write(outputPath, payloadPath string, payloadSize int64, targetBinName, stageDir string) error {
	if err := bundle.ValidateName(targetBinName); err != nil {
		return err
	}

	self, err := os.Executable()
	if err != nil {
		return rexerr.New(rexerr.KindIO, "self-image", err)
	}

	if err := copyFile(self, outputPath); err != nil {
		return rexerr.New(rexerr.KindIO, outputPath, err)
	}
	if err := os.Chmod(outputPath, 0o755); err != nil {
		return rexerr.New(rexerr.KindIO, outputPath, err)
	}

	out, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_APPEND, 0o755)
	if err != nil {
		return rexerr.New(rexerr.KindIO, outputPath, err)
	}
	defer out.Close()

	payload, err := os.Open(payloadPath)
	if err != nil {
		return rexerr.New(rexerr.KindIO, payloadPath, err)
	}
	defer payload.Close()

	if _, err := io.Copy(out, payload); err != nil {
		return rexerr.New(rexerr.KindIO, outputPath, err)
	}

	if _, err := out.WriteString(targetBinName); err != nil {
		return rexerr.New(rexerr.KindIO, outputPath, err)
	}

	meta := bundle.Metadata{
		PayloadSize: uint64(payloadSize),
		NameLen:     uint32(len(targetBinName)),
	}
	if _, err := out.Write(meta.Encode()); err != nil {
		return rexerr.New(rexerr.KindIO, outputPath, err)
	}
	if _, err := out.WriteString(bundle.Magic); err != nil {
		return rexerr.New(rexerr.KindIO, outputPath, err)
	}

	if err := out.Close(); err != nil {
		return rexerr.New(rexerr.KindIO, outputPath, err)
	}

	if err := os.Remove(payloadPath); err != nil {
		sylog.Warningf("could not remove scratch payload %q: %v", payloadPath, err)
	}
	// stageDir is "<unique-root>/<target>_bundle"; remove the whole unique
	// root so the empty parent doesn't linger after the child is gone.
	if err := os.RemoveAll(filepath.Dir(stageDir)); err != nil {
		sylog.Warningf("could not remove staging tree %q: %v", stageDir, err)
	}

	fi, err := os.Stat(outputPath)
	if err == nil {
		sylog.Infof("wrote %s (%s)", outputPath, units.HumanSize(float64(fi.Size())))
	}

	return nil
}
