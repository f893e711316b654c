// Copyright (c) Rex contributors
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package extract

import (
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/linuxdicaspro/rex/internal/pkg/runtime/trailer"
	"github.com/linuxdicaspro/rex/pkg/rexerr"
	"github.com/linuxdicaspro/rex/pkg/sylog"
)

// loaderCandidates are probed, in order, against libs/ basenames per
// spec.md §4.6: the trailer deliberately omits loader identity, so
// selection happens by basename probing of the extracted tree rather than
// by any recorded metadata.
var loaderCandidates = []string{
	"ld-linux-x86-64.so.2",
	"ld-linux-aarch64.so.1",
	"ld-musl-x86_64.so.1",
	"ld-musl-aarch64.so.1",
}

// Launch spawns the target binary embedded under bundleDir through its
// dynamic loader, per spec.md §4.6. It blocks until the child exits and
// returns its exit code.
func Launch(bundleDir, targetBinName string, args []string) (int, error) {
	binDir := filepath.Join(bundleDir, "bins")
	libsDir := filepath.Join(bundleDir, "libs")
	targetPath := filepath.Join(bundleDir, targetBinName)

	if _, err := os.Stat(targetPath); err != nil {
		return 0, rexerr.New(rexerr.KindTargetMissing, targetPath, err)
	}

	loaderPath, err := findLoader(libsDir)
	if err != nil {
		return 0, err
	}

	argv := append([]string{"--library-path", libsDir, targetPath}, args...)
	cmd := exec.Command(loaderPath, argv...)
	cmd.Dir = binDir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = childEnv(binDir)

	if err := cmd.Start(); err != nil {
		return 0, rexerr.New(rexerr.KindIO, loaderPath, err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		for sig := range sigCh {
			if cmd.Process != nil {
				_ = cmd.Process.Signal(sig)
			}
		}
	}()

	err = cmd.Wait()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			return status.ExitStatus(), nil
		}
	}
	return 0, rexerr.New(rexerr.KindIO, loaderPath, err)
}

func asExitError(err error, target **exec.ExitError) bool {
	e, ok := err.(*exec.ExitError)
	if ok {
		*target = e
	}
	return ok
}

// findLoader selects the loader basename present in libsDir, in the
// priority order of loaderCandidates.
func findLoader(libsDir string) (string, error) {
	for _, name := range loaderCandidates {
		candidate := filepath.Join(libsDir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", rexerr.New(rexerr.KindLoaderMissing, libsDir, nil)
}

// childEnv builds the environment for the spawned loader process, with
// binDir prepended to PATH. This mutation is scoped to the child's
// exec.Cmd.Env exclusively; the running Rex process's own environment is
// never touched (spec.md §5's single shared-resource rule for PATH).
func childEnv(binDir string) []string {
	env := os.Environ()
	out := make([]string, 0, len(env)+1)
	replaced := false
	for _, kv := range env {
		if len(kv) >= 5 && kv[:5] == "PATH=" {
			out = append(out, "PATH="+binDir+string(os.PathListSeparator)+kv[5:])
			replaced = true
			continue
		}
		out = append(out, kv)
	}
	if !replaced {
		out = append(out, "PATH="+binDir)
	}
	return out
}

// ExtractAndRun ties Extract and Launch together: extraction followed
// immediately by execution, removing the extraction directory once the
// child has exited (spec.md §4.6's scoped lifetime guarantee).
func ExtractAndRun(selfImage string, info *trailer.Info, tempRoot string, args []string) (int, error) {
	bundleDir, err := Extract(selfImage, info, tempRoot)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := os.RemoveAll(filepath.Dir(bundleDir)); err != nil {
			sylog.Warningf("could not remove extraction directory %q: %v", filepath.Dir(bundleDir), err)
		}
	}()

	return Launch(bundleDir, info.TargetBinName, args)
}
