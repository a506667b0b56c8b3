// Copyright 2025 The zipstream Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package zipstream implements a streaming codec for the ZIP archive
// container format. Archives are produced and consumed strictly
// sequentially, without ever seeking the underlying stream, so a ZIP
// byte stream can be generated or parsed while being piped over a
// network connection or any other write-once channel whose total size
// is unknown in advance.
//
// The decode side walks local file header records only. The central
// directory at the end of the archive is emitted on write for
// compatibility with random-access readers, but it is never consulted
// on read; entries whose size was unknown when their header was
// written are resolved through the trailing data descriptor record
// instead.
package zipstream

import (
	"io/fs"
	"time"
)

// EntryKind distinguishes the two entry types a ZIP stream can carry.
type EntryKind int

const (
	// KindFile is a regular file entry with a (possibly empty) body.
	KindFile EntryKind = iota

	// KindDirectory is a directory entry. Directories never have a body.
	KindDirectory
)

func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// CompressionMethod represents the compression algorithm used for an
// entry, using the method codes from the ZIP specification.
type CompressionMethod uint16

// Compression method codes according to the ZIP specification.
// Store, Deflate, Zstandard and XZ entries can be decoded; the
// remaining codes are recognized but not decodable by this package.
const (
	Store     CompressionMethod = 0  // No compression - data stored as-is
	Deflate   CompressionMethod = 8  // DEFLATE compression (most common)
	BZip2     CompressionMethod = 12 // BZIP2 compression
	LZMA      CompressionMethod = 14 // LZMA compression
	Zstandard CompressionMethod = 93 // Zstandard compression
	XZ        CompressionMethod = 95 // XZ compression
)

// MaxVersionNeeded is the highest "version needed to extract" value
// this package accepts on decode. 4.5 covers Zip64; anything above it
// signals a feature (encryption, patch data) outside this design.
const MaxVersionNeeded = 45

// SizeUnknown marks an entry whose uncompressed size is not known in
// advance. Such entries are framed with a trailing data descriptor.
const SizeUnknown int64 = -1

// Owner carries UNIX ownership for an entry, stored in the Info-ZIP
// "new UNIX" (0x7875) extra field.
type Owner struct {
	UID uint32
	GID uint32
}

// Entry describes a single archive member, on both the encode and the
// decode side.
//
// On encode, Name, Kind, Mode and ModTime drive the written headers;
// AccessTime, ChangeTime and Owner are optional and emitted as extra
// fields when set. On decode, CRC32, Size, CompressedSize, Method and
// Zip64 are filled from the wire; Mode is not recoverable from a local
// file header alone and is left zero.
type Entry struct {
	Name string
	Kind EntryKind

	// Mode holds the UNIX permission bits (at most 12 bits). The
	// file/directory type bits are derived from Kind, not from Mode.
	Mode fs.FileMode

	// ModTime is always resolvable on decode: it comes from the UNIX
	// extended timestamp extra field when present, and from the legacy
	// DOS date/time pair otherwise. A zero ModTime on encode is
	// replaced with the current time.
	ModTime    time.Time
	AccessTime time.Time
	ChangeTime time.Time

	Owner *Owner

	Method CompressionMethod
	CRC32  uint32

	// Size is the uncompressed size. On encode it is consulted only
	// when the content reader does not expose its own length; zero or
	// negative there means "unknown, use data-descriptor framing".
	Size int64

	// CompressedSize and Zip64 are decode-side fields.
	CompressedSize int64
	Zip64          bool
}

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool { return e.Kind == KindDirectory }
