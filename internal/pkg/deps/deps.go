// Copyright (c) Rex contributors
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package deps implements Rex's dependency collector: given one ELF binary
// it returns the transitive closure of shared objects it needs, resolved to
// absolute paths, the way internal/pkg/util/paths.Resolve resolves a flat
// bind list in the teacher project — generalized here into a recursive
// DT_NEEDED walk grounded in debug/elf, with the ldconfig cache kept as the
// last fallback.
package deps

import (
	"bufio"
	"debug/elf"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/linuxdicaspro/rex/pkg/rexerr"
	"github.com/linuxdicaspro/rex/pkg/sylog"
)

// Status classifies the outcome of collecting a binary's dependencies.
type Status int

const (
	// Dynamic means the binary links shared objects; Libs holds their
	// resolved absolute paths.
	Dynamic Status = iota
	// Static means the binary has no dynamic dependencies at all; callers
	// must skip bundle generation.
	Static
)

// Result is what Collect returns for a single ELF binary.
type Result struct {
	Status Status
	// Libs holds absolute paths to every resolved shared object in the
	// transitive DT_NEEDED closure, excluding the dynamic loader itself.
	Libs []string
	// Interpreter is the absolute, on-host path to the ELF interpreter
	// (PT_INTERP segment) the binary was built against, e.g.
	// "/lib64/ld-linux-x86-64.so.2". Empty when Status is Static.
	Interpreter string
}

// loaderNameRe matches the basename of a dynamic loader, which the
// collector deliberately excludes: the staging builder ships it separately
// from Result.Interpreter, and the runtime (internal/pkg/runtime/extract)
// finds it in libs/ by basename, not as "a dependency among others".
var loaderNameRe = regexp.MustCompile(`^ld-(linux|musl)[-.].*\.so(\.\d+)*$`)

func isLoader(path string) bool {
	return loaderNameRe.MatchString(filepath.Base(path))
}

// Collect computes the transitive shared-library closure of the ELF binary
// at path, per spec.md §4.1.
func Collect(path string) (Result, error) {
	if _, err := os.Stat(path); err != nil {
		return Result{}, rexerr.New(rexerr.KindInputNotFound, path, err)
	}

	f, err := elf.Open(path)
	if err != nil {
		return Result{}, rexerr.New(rexerr.KindInvalidElf, path, err)
	}
	defer f.Close()

	needed, err := f.ImportedLibraries()
	if err != nil {
		return Result{}, rexerr.New(rexerr.KindInvalidElf, path, err)
	}
	if len(needed) == 0 {
		return Result{Status: Static}, nil
	}

	c := &collector{
		machine:  f.Machine,
		visited:  map[string]bool{path: true},
		resolved: map[string]bool{},
		cache:    ldCache(),
	}
	c.walk(path, f)

	libs := make([]string, 0, len(c.resolved))
	for lib := range c.resolved {
		if !isLoader(lib) {
			libs = append(libs, lib)
		}
	}

	interp, err := interpreterOf(f)
	if err != nil {
		sylog.Warningf("could not determine ELF interpreter for %s: %v", path, err)
	}

	return Result{Status: Dynamic, Libs: libs, Interpreter: interp}, nil
}

// interpreterOf reads the PT_INTERP program header, the ELF-native record
// of which dynamic loader a binary was linked against, avoiding a
// hardcoded guess-list of loader paths.
func interpreterOf(f *elf.File) (string, error) {
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_INTERP {
			continue
		}
		data := make([]byte, prog.Filesz)
		if _, err := io.ReadFull(prog.Open(), data); err != nil {
			return "", err
		}
		return strings.TrimRight(string(data), "\x00"), nil
	}
	return "", nil
}

type collector struct {
	machine  elf.Machine
	visited  map[string]bool
	resolved map[string]bool
	cache    map[string]string
}

// walk resolves f's DT_NEEDED entries against rpath/runpath, then
// LD_LIBRARY_PATH, then the ldconfig cache, recursing into every newly
// resolved library until the closure stabilizes.
func (c *collector) walk(path string, f *elf.File) {
	needed, err := f.ImportedLibraries()
	if err != nil {
		sylog.Warningf("could not read dependencies of %s: %v", path, err)
		return
	}

	searchDirs := c.searchDirsFor(path, f)

	for _, name := range needed {
		lib, ok := c.resolveOne(name, searchDirs)
		if !ok {
			sylog.Warningf("could not resolve dependency %q needed by %s; supply it via -l/--extra-libs if required", name, path)
			continue
		}
		if c.visited[lib] {
			continue
		}
		c.visited[lib] = true
		c.resolved[lib] = true

		if isLoader(lib) {
			continue
		}

		lf, err := elf.Open(lib)
		if err != nil {
			sylog.Warningf("ignoring unreadable library %s: %v", lib, err)
			continue
		}
		if lf.Machine == c.machine {
			c.walk(lib, lf)
		}
		lf.Close()
	}
}

// searchDirsFor expands DT_RPATH/DT_RUNPATH for f (resolving $ORIGIN
// relative to path's directory), then appends LD_LIBRARY_PATH.
func (c *collector) searchDirsFor(path string, f *elf.File) []string {
	var dirs []string
	origin := filepath.Dir(path)

	for _, tag := range []elf.DynTag{elf.DT_RUNPATH, elf.DT_RPATH} {
		entries, err := f.DynString(tag)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			for _, d := range strings.Split(entry, ":") {
				if d == "" {
					continue
				}
				d = strings.ReplaceAll(d, "$ORIGIN", origin)
				d = strings.ReplaceAll(d, "${ORIGIN}", origin)
				dirs = append(dirs, d)
			}
		}
	}

	if llp := os.Getenv("LD_LIBRARY_PATH"); llp != "" {
		dirs = append(dirs, strings.Split(llp, ":")...)
	}
	return dirs
}

// resolveOne resolves a single DT_NEEDED name (a bare basename, e.g.
// "libc.so.6") against the given search directories, then the system
// ldconfig cache.
func (c *collector) resolveOne(name string, searchDirs []string) (string, bool) {
	for _, dir := range searchDirs {
		candidate := filepath.Join(dir, name)
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
			return candidate, true
		}
	}
	if path, ok := c.cache[name]; ok {
		return path, true
	}
	return "", false
}

// ldCache retrieves a map of <library>.so[.version] to its absolute path
// using the system ld cache via `ldconfig -p`, adapted from the teacher's
// internal/pkg/util/paths.ldCache: only the first, highest-priority entry
// for a given library name is kept.
func ldCache() map[string]string {
	cache := make(map[string]string)

	ldconfig, err := exec.LookPath("ldconfig")
	if err != nil {
		sylog.Debugf("ldconfig not found on PATH, system library cache unavailable: %v", err)
		return cache
	}

	out, err := exec.Command(ldconfig, "-p").Output()
	if err != nil {
		sylog.Debugf("could not run ldconfig -p: %v", err)
		return cache
	}

	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, "=>")
		if idx < 0 {
			continue
		}
		name := strings.TrimSpace(strings.SplitN(line[:idx], "(", 2)[0])
		path := strings.TrimSpace(line[idx+2:])
		if name == "" || path == "" {
			continue
		}
		if _, ok := cache[name]; !ok {
			cache[name] = path
		}
	}
	return cache
}
