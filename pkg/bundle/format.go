// Copyright (c) Rex contributors
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package bundle defines the on-disk trailer format shared by the Rex
// generator and the Rex runtime: a compressed archive appended to a copy of
// the Rex executable, followed by a basename, a fixed-size metadata record,
// and a magic marker.
package bundle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/blang/semver/v4"
)

// Magic is the 10-byte marker written as the last bytes of every bundle.
const Magic = "REX_BUNDLE"

// MetadataSize is the fixed, packed size of Metadata on the wire: an 8-byte
// payload size followed by a 4-byte name length, both little-endian. This is
// an explicit byte layout, not a borrowed struct representation, so encoding
// never depends on compiler struct packing.
const MetadataSize = 12

// MaxNameLen is the largest basename the trailer can carry. The runtime only
// ever searches the last MaxNameLen+MetadataSize+len(Magic) bytes of a file
// for a trailer.
const MaxNameLen = 256

// SearchWindow is the number of trailing bytes the runtime reads when
// probing a file for a trailer.
const SearchWindow = MaxNameLen + MetadataSize + len(Magic)

// Version is the Rex tool version as a semantic version, parsed from a
// source literal. It is not a string variable, so -ldflags -X cannot set it;
// rex --version prints buildcfg.PackageVersion instead.
var Version = semver.MustParse("0.1.0")

// Metadata is the packed little-endian record immediately preceding the
// magic marker in a bundle's trailer.
type Metadata struct {
	// PayloadSize is the byte length of the compressed tar stream.
	PayloadSize uint64
	// NameLen is the byte length of the UTF-8 basename preceding Metadata.
	NameLen uint32
}

// Encode serializes m into MetadataSize little-endian bytes.
func (m Metadata) Encode() []byte {
	buf := make([]byte, MetadataSize)
	binary.LittleEndian.PutUint64(buf[0:8], m.PayloadSize)
	binary.LittleEndian.PutUint32(buf[8:12], m.NameLen)
	return buf
}

// DecodeMetadata reverses Encode.
func DecodeMetadata(b []byte) (Metadata, error) {
	if len(b) != MetadataSize {
		return Metadata{}, fmt.Errorf("bundle: metadata must be exactly %d bytes, got %d", MetadataSize, len(b))
	}
	return Metadata{
		PayloadSize: binary.LittleEndian.Uint64(b[0:8]),
		NameLen:     binary.LittleEndian.Uint32(b[8:12]),
	}, nil
}

// ErrCorruptTrailer is returned when a magic marker is found but the bytes
// around it fail to describe a consistent trailer.
var ErrCorruptTrailer = errors.New("bundle: corrupt trailer")

// ValidateName checks the basename invariants from the bundle format: it
// must be non-empty, no longer than MaxNameLen, valid UTF-8, and contain no
// path separators.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty target name", ErrCorruptTrailer)
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("%w: target name longer than %d bytes", ErrCorruptTrailer, MaxNameLen)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: target name is not valid UTF-8", ErrCorruptTrailer)
	}
	if strings.ContainsRune(name, '/') {
		return fmt.Errorf("%w: target name %q is not a basename", ErrCorruptTrailer, name)
	}
	return nil
}

// BundleDirName returns the name of the top-level directory nested inside
// the compressed tar stream for a given target basename.
func BundleDirName(targetName string) string {
	return targetName + "_bundle"
}
