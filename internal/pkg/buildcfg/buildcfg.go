// Copyright (c) Rex contributors
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package buildcfg holds compile-time constants, mirroring the teacher's
// internal/pkg/buildcfg package: values that are safe defaults in source. The
// string variables may be overridden at build time via -ldflags -X; the
// compression level values are constants.
package buildcfg

// PackageName is the tool name, used to prefix the runtime's extraction
// directory names.
var PackageName = "rex"

// PackageVersion is the Rex tool version string. Overridable at build time
// via -ldflags "-X github.com/linuxdicaspro/rex/internal/pkg/buildcfg.PackageVersion=...".
var PackageVersion = "0.1.0"

// DefaultCompressionLevel is the zstd level used when -L/--compression-level
// is not given.
const DefaultCompressionLevel = 5

// MinCompressionLevel and MaxCompressionLevel bound the -L flag.
const (
	MinCompressionLevel = 1
	MaxCompressionLevel = 22
)

// TempRoot is the parent directory under which the generator creates its
// staging directories. Overridable at build time for packagers that want a
// non-standard scratch location.
var TempRoot = "/tmp"
