// Copyright (c) Rex contributors
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package trailer implements Rex's runtime trailer locator: it probes a
// file for the bundle trailer described in pkg/bundle, the mode-selection
// step the teacher's runtime equivalent performs by inspecting its own
// on-disk image before deciding how to behave.
package trailer

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/linuxdicaspro/rex/pkg/bundle"
)

// Info is the parsed result of locating a trailer in a file, per spec.md
// §4.5's PayloadInfo.
type Info struct {
	// PayloadStart is the byte offset where the compressed tar stream
	// begins.
	PayloadStart int64
	// PayloadSize is the byte length of the compressed tar stream.
	PayloadSize int64
	// TargetBinName is the embedded target basename.
	TargetBinName string
}

// Locate probes path for a well-formed trailer. It returns (nil, nil) when
// no trailer is present (generator mode); a non-nil error indicates a
// marker was found but the surrounding bytes are inconsistent
// (bundle.ErrCorruptTrailer) or the file could not be read.
func Locate(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	fileSize := fi.Size()

	window := bundle.SearchWindow
	if int64(window) > fileSize {
		window = int(fileSize)
	}

	buf := make([]byte, window)
	if _, err := f.ReadAt(buf, fileSize-int64(window)); err != nil && err != io.EOF {
		return nil, err
	}

	markerIdx := bytes.LastIndex(buf, []byte(bundle.Magic))
	if markerIdx < 0 {
		return nil, nil
	}

	metaStart := markerIdx - bundle.MetadataSize
	if metaStart < 0 {
		return nil, fmt.Errorf("%w: marker found but no room for metadata", bundle.ErrCorruptTrailer)
	}

	meta, err := bundle.DecodeMetadata(buf[metaStart:markerIdx])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bundle.ErrCorruptTrailer, err)
	}

	if meta.NameLen == 0 || meta.NameLen > bundle.MaxNameLen {
		return nil, fmt.Errorf("%w: name length %d out of range (0, %d]", bundle.ErrCorruptTrailer, meta.NameLen, bundle.MaxNameLen)
	}
	nameStart := metaStart - int(meta.NameLen)
	if nameStart < 0 {
		return nil, fmt.Errorf("%w: metadata_start < name_len", bundle.ErrCorruptTrailer)
	}

	nameBytes := buf[nameStart:metaStart]
	if !utf8.Valid(nameBytes) {
		return nil, fmt.Errorf("%w: target name is not valid UTF-8", bundle.ErrCorruptTrailer)
	}
	name := string(nameBytes)
	if err := bundle.ValidateName(name); err != nil {
		return nil, err
	}

	trailerSize := int64(len(bundle.Magic)) + int64(bundle.MetadataSize) + int64(meta.NameLen) + int64(meta.PayloadSize)
	payloadStart := fileSize - trailerSize
	if payloadStart < 0 {
		return nil, fmt.Errorf("%w: payload_start underflow", bundle.ErrCorruptTrailer)
	}

	return &Info{
		PayloadStart:  payloadStart,
		PayloadSize:   int64(meta.PayloadSize),
		TargetBinName: name,
	}, nil
}
