// Copyright (c) Rex contributors
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package stage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	da "github.com/docker/docker/pkg/archive"
	"github.com/klauspost/compress/zstd"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/linuxdicaspro/rex/internal/pkg/buildcfg"
	"github.com/linuxdicaspro/rex/pkg/bundle"
	"github.com/linuxdicaspro/rex/pkg/rexerr"
	"github.com/linuxdicaspro/rex/pkg/sylog"
)

// PackResult is what Pack returns: the path to the compressed scratch file
// and its final size, per spec.md §4.3.
type PackResult struct {
	Path string
	Size int64
}

// Pack tars stageDir into a single top-level directory named
// bundle.BundleDirName(targetBinName), streams it through a zstd encoder at
// the given level, and writes the result to a scratch file under tempRoot.
// Grounded on pkg/util/archive.CopyWithTar's use of docker/pkg/archive for
// tar construction, generalized here to add a streaming zstd stage and a
// progress-reporting reader proxy adapted from
// internal/pkg/client/progress.ProgressBarCallback.
func Pack(stageDir, targetBinName string, level int, tempRoot string) (*PackResult, error) {
	if tempRoot == "" {
		tempRoot = buildcfg.TempRoot
	}

	scratch, err := os.CreateTemp(tempRoot, "rex-payload-*.zst")
	if err != nil {
		return nil, rexerr.New(rexerr.KindIO, tempRoot, err)
	}
	scratchPath := scratch.Name()
	defer scratch.Close()

	zlevel, err := zstdLevel(level)
	if err != nil {
		os.Remove(scratchPath)
		return nil, err
	}

	enc, err := zstd.NewWriter(scratch,
		zstd.WithEncoderLevel(zlevel),
		zstd.WithWindowSize(1<<25),
	)
	if err != nil {
		os.Remove(scratchPath)
		return nil, rexerr.New(rexerr.KindIO, scratchPath, err)
	}

	tarReader, err := tarStageDir(stageDir, targetBinName)
	if err != nil {
		os.Remove(scratchPath)
		return nil, err
	}
	defer tarReader.Close()

	in, finish := progressReader(tarReader, stageDir)
	defer in.Close()

	if _, err := io.Copy(enc, in); err != nil {
		finish(true)
		enc.Close()
		os.Remove(scratchPath)
		return nil, rexerr.New(rexerr.KindIO, scratchPath, err)
	}
	finish(false)
	if err := enc.Close(); err != nil {
		os.Remove(scratchPath)
		return nil, rexerr.New(rexerr.KindIO, scratchPath, err)
	}

	fi, err := os.Stat(scratchPath)
	if err != nil {
		return nil, rexerr.New(rexerr.KindIO, scratchPath, err)
	}

	return &PackResult{Path: scratchPath, Size: fi.Size()}, nil
}

// tarStageDir tars stageDir's contents nested under a single top-level
// directory bundle.BundleDirName(targetBinName), per spec.md §4.3's
// load-bearing nesting requirement. stage.Build already names stageDir
// exactly bundle.BundleDirName(targetBinName) inside a unique parent, so
// this only has to archive that real directory from its parent — no
// symlink stand-in, which docker/pkg/archive's walk would not descend
// into anyway.
func tarStageDir(stageDir, targetBinName string) (io.ReadCloser, error) {
	parent := filepath.Dir(stageDir)
	top := bundle.BundleDirName(targetBinName)

	if filepath.Base(stageDir) != top {
		return nil, rexerr.New(rexerr.KindIO, stageDir,
			fmt.Errorf("staging directory %q is not named %q", stageDir, top))
	}

	reader, err := da.TarWithOptions(parent, &da.TarOptions{
		Compression:      da.Uncompressed,
		IncludeFiles:     []string{top},
		IncludeSourceDir: false,
	})
	if err != nil {
		return nil, rexerr.New(rexerr.KindIO, stageDir, err)
	}
	return reader, nil
}

// zstdLevel maps spec.md §6's 1-22 integer scale onto zstd's named encoder
// levels via zstd.EncoderLevelFromZstd, the same mapping the klauspost
// library itself recommends for exposing a familiar compression dial.
func zstdLevel(level int) (zstd.EncoderLevel, error) {
	if level < buildcfg.MinCompressionLevel || level > buildcfg.MaxCompressionLevel {
		return 0, fmt.Errorf("compression level must be between %d and %d, got %d",
			buildcfg.MinCompressionLevel, buildcfg.MaxCompressionLevel, level)
	}
	return zstd.EncoderLevelFromZstd(level), nil
}

// progressReader wraps r in a progress bar proxy unless the level is at or
// below sylog's LogLevel (--quiet), mirroring
// internal/pkg/client/progress.ProgressBarCallback's quiet-mode bypass. The
// returned finish func must be called exactly once when copying from the
// reader is done (aborted=true on error).
func progressReader(r io.ReadCloser, stageDir string) (io.ReadCloser, func(aborted bool)) {
	if sylog.GetLevel() <= int(sylog.LogLevel) {
		return r, func(bool) {}
	}

	size := dirSize(stageDir)
	p := mpb.New(mpb.WithOutput(sylog.Writer()))
	bar := p.AddBar(size,
		mpb.PrependDecorators(decor.Name("packing "), decor.Counters(decor.SizeB1024(0), "%.1f / %.1f")),
		mpb.AppendDecorators(decor.Percentage()),
	)
	proxy := bar.ProxyReader(r)
	return proxy, func(aborted bool) {
		if aborted {
			bar.Abort(true)
		} else if !bar.Completed() {
			bar.SetTotal(size, true)
		}
		p.Wait()
	}
}
