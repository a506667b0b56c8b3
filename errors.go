// Copyright 2025 The zipstream Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import "errors"

var (
	// ErrFormat is returned when the input bytes are malformed or
	// inconsistent: a mandatory signature is missing, extra-field
	// lengths do not add up, or a flagged Zip64 block is absent.
	// The stream position is unreliable afterwards.
	ErrFormat = errors.New("zipstream: not a valid zip stream")

	// ErrTruncated is returned when the source ends in the middle of a
	// record whose full contents were mandatory.
	ErrTruncated = errors.New("zipstream: truncated input")

	// ErrVersion is returned when a header requires a ZIP feature
	// version above MaxVersionNeeded.
	ErrVersion = errors.New("zipstream: unsupported version needed to extract")

	// ErrAlgorithm is returned when an entry uses a compression method
	// this package cannot decode. The entry's body length is unknowable
	// without decompressing it, so the session cannot resynchronize and
	// is faulted.
	ErrAlgorithm = errors.New("zipstream: unsupported compression method")

	// ErrChecksum is returned when decompressed content does not match
	// the entry's CRC32.
	ErrChecksum = errors.New("zipstream: checksum mismatch")

	// ErrSizeMismatch is returned when content length does not match
	// the size declared for the entry.
	ErrSizeMismatch = errors.New("zipstream: uncompressed size mismatch")

	// ErrProtocol is returned when header and data reads are not
	// strictly alternated on a Reader.
	ErrProtocol = errors.New("zipstream: header and data reads must alternate")

	// ErrClosed is returned when entries are added to a closed Writer.
	ErrClosed = errors.New("zipstream: writer is closed")

	// ErrEntry is returned when an invalid entry is added to a Writer.
	ErrEntry = errors.New("zipstream: not a valid entry")

	// ErrFilenameTooLong is returned when a filename exceeds 65535 bytes.
	ErrFilenameTooLong = errors.New("zipstream: filename too long")

	// ErrTooLarge is returned when an unknown-size entry grows past the
	// 32-bit limits its header committed to.
	ErrTooLarge = errors.New("zipstream: streamed entry exceeds 4GiB")
)
