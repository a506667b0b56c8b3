// Copyright 2025 The zipstream Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import (
	"fmt"
	"io"
	"math"
	"time"
)

// Writer encodes a ZIP archive to a stream, one entry at a time. Each
// AddFile or AddDirectory call is synchronous and self-contained: it
// emits one complete entry (header, extension blocks, body) before
// returning. Close finalizes the archive; no further entries may be
// added afterwards.
//
// The destination is never seeked, so archives can be written to
// pipes and network connections. Entries whose content length is not
// known in advance are framed with a trailing data descriptor.
type Writer struct {
	backend *containerWriter
	closed  bool
}

// NewWriter creates a Writer emitting to dest.
func NewWriter(dest io.Writer) *Writer {
	return &Writer{backend: newContainerWriter(dest)}
}

// AddDirectory writes a directory entry. Only the entry's metadata is
// used; directories have no body.
func (w *Writer) AddDirectory(entry Entry) error {
	if w.closed {
		return ErrClosed
	}
	if err := validateName(entry.Name); err != nil {
		return err
	}

	rec := recordFromEntry(&entry)
	rec.isDir = true
	rec.method = Store
	if rec.mode == 0 {
		rec.mode = 0o755
	}
	return w.backend.WriteEntry(rec)
}

// AddFile writes a file entry with the given content.
//
// The uncompressed size is taken from the content reader when it
// exposes its length (bytes.Reader, bytes.Buffer, strings.Reader),
// from entry.Size otherwise. With neither available the entry is
// written in data-descriptor framing. The compression method is
// selected automatically: Deflate by default, Store for tiny payloads
// and for known pre-compressed formats.
func (w *Writer) AddFile(entry Entry, content io.Reader) error {
	if w.closed {
		return ErrClosed
	}
	if err := validateName(entry.Name); err != nil {
		return err
	}

	rec := recordFromEntry(&entry)
	rec.content = content
	rec.size = resolveSize(&entry, content)
	rec.method = classify(entry.Name, rec.size)
	if rec.mode == 0 {
		rec.mode = 0o644
	}
	return w.backend.WriteEntry(rec)
}

// Close writes the central directory and end records and finalizes
// the archive. Calling Close more than once is a no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.backend.Close()
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty entry name", ErrEntry)
	}
	if len(name) > math.MaxUint16 {
		return ErrFilenameTooLong
	}
	return nil
}

func recordFromEntry(entry *Entry) *entryRecord {
	modTime := entry.ModTime
	if modTime.IsZero() {
		modTime = time.Now()
	}
	return &entryRecord{
		name:       entry.Name,
		mode:       entry.Mode,
		modTime:    modTime,
		accessTime: entry.AccessTime,
		changeTime: entry.ChangeTime,
		owner:      entry.Owner,
	}
}

// resolveSize determines the uncompressed size of a file entry.
// Readers that know their own length win; otherwise the caller's
// declared size is trusted; zero or negative without a measurable
// reader means unknown.
func resolveSize(entry *Entry, content io.Reader) int64 {
	if l, ok := content.(interface{ Len() int }); ok {
		return int64(l.Len())
	}
	if entry.Size > 0 {
		return entry.Size
	}
	return SizeUnknown
}
