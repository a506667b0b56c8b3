// Copyright 2025 The zipstream Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"math"
	"time"

	"github.com/streamware/zipstream/internal"
)

// versionMadeByUnix marks the central directory entries as written on
// a UNIX host with ZIP feature version 2.0.
const versionMadeByUnix = 3<<8 | 20

// entryRecord is the per-entry unit handed to the container backend:
// fully classified metadata plus the content source.
type entryRecord struct {
	name       string
	isDir      bool
	method     CompressionMethod
	mode       fs.FileMode
	modTime    time.Time
	accessTime time.Time
	changeTime time.Time
	owner      *Owner
	content    io.Reader
	size       int64 // uncompressed; negative when unknown
}

// containerWriter is the low-level container backend. It emits local
// header bytes and entry bodies to the destination, tracks write
// offsets, accumulates central directory entries in memory and writes
// the trailing directory records on Close. The destination is a plain
// io.Writer and is never seeked, so headers must carry final sizes or
// defer them to a data descriptor.
type containerWriter struct {
	dest             io.Writer
	headerOffset     int64
	centralDir       *bytes.Buffer
	sizeOfCentralDir int64
	entriesNum       int
	deflate          *deflateCompressor
}

func newContainerWriter(dest io.Writer) *containerWriter {
	return &containerWriter{
		dest:       dest,
		centralDir: new(bytes.Buffer),
	}
}

// WriteEntry emits one complete entry: local header, extension blocks
// and body, plus a data descriptor when the size was unknown. The
// matching central directory entry is buffered for Close.
func (cw *containerWriter) WriteEntry(rec *entryRecord) error {
	if rec.isDir {
		return cw.writeDirectory(rec)
	}
	if rec.size >= 0 {
		return cw.writeKnownSize(rec)
	}
	return cw.writeStreamed(rec)
}

// writeDirectory emits a directory entry: trailing-slash name, Store
// method, no body.
func (cw *containerWriter) writeDirectory(rec *entryRecord) error {
	extra := cw.buildExtraFields(rec, nil)
	offset := cw.headerOffset

	header := cw.buildLocalHeader(rec, extra, 0, 0, 0, 0)
	if err := cw.writeAll(header.Encode()); err != nil {
		return fmt.Errorf("write directory header: %w", err)
	}

	return cw.addCentralDirEntry(rec, header, extra, offset)
}

// writeKnownSize compresses the body into memory first so the local
// header carries the final CRC and sizes.
func (cw *containerWriter) writeKnownSize(rec *entryRecord) error {
	var body bytes.Buffer
	hasher := crc32.NewIEEE()

	comp, err := cw.resolveCompressor(rec.method)
	if err != nil {
		return err
	}
	uncompressed, err := comp.Compress(io.TeeReader(rec.content, hasher), &body)
	if err != nil {
		return fmt.Errorf("compress %q: %w", rec.name, err)
	}
	if uncompressed != rec.size {
		return fmt.Errorf("%w: %q declared %d bytes, read %d", ErrSizeMismatch, rec.name, rec.size, uncompressed)
	}

	csize := int64(body.Len())
	var zip64 *internal.Zip64Field
	if rec.size > math.MaxUint32 || csize > math.MaxUint32 {
		zip64 = &internal.Zip64Field{
			UncompressedSize: uint64(rec.size),
			CompressedSize:   uint64(csize),
		}
	}

	extra := cw.buildExtraFields(rec, zip64)
	offset := cw.headerOffset

	header := cw.buildLocalHeader(rec, extra, hasher.Sum32(), csize, rec.size, 0)
	if err := cw.writeAll(header.Encode()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.writeAll(body.Bytes()); err != nil {
		return fmt.Errorf("write body: %w", err)
	}

	return cw.addCentralDirEntry(rec, header, extra, offset)
}

// writeStreamed handles content of unknown length: the header sets
// bit 3 with zeroed sizes, the body streams straight to the
// destination, and the authoritative CRC and sizes follow in a data
// descriptor record.
func (cw *containerWriter) writeStreamed(rec *entryRecord) error {
	extra := cw.buildExtraFields(rec, nil)
	offset := cw.headerOffset

	header := cw.buildLocalHeader(rec, extra, 0, 0, 0, internal.FlagDataDescriptor)
	if err := cw.writeAll(header.Encode()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	hasher := crc32.NewIEEE()
	counter := &byteCountWriter{dest: cw.dest}
	comp, err := cw.resolveCompressor(rec.method)
	if err != nil {
		return err
	}
	uncompressed, err := comp.Compress(io.TeeReader(rec.content, hasher), counter)
	cw.headerOffset += counter.bytesWritten
	if err != nil {
		return fmt.Errorf("compress %q: %w", rec.name, err)
	}

	// The header committed to 32-bit descriptor fields; the stream
	// cannot be rewound to upgrade it.
	if uncompressed > math.MaxUint32 || counter.bytesWritten > math.MaxUint32 {
		return fmt.Errorf("%w: %q", ErrTooLarge, rec.name)
	}

	desc := internal.DataDescriptor{
		CRC32:            hasher.Sum32(),
		CompressedSize:   uint64(counter.bytesWritten),
		UncompressedSize: uint64(uncompressed),
	}
	if err := cw.writeAll(desc.Encode(false)); err != nil {
		return fmt.Errorf("write data descriptor: %w", err)
	}

	header.CRC32 = desc.CRC32
	header.CompressedSize = uint32(desc.CompressedSize)
	header.UncompressedSize = uint32(desc.UncompressedSize)
	return cw.addCentralDirEntry(rec, header, extra, offset)
}

// Close writes the buffered central directory and the end records.
// When counts or offsets overflow the legacy end record, the Zip64
// end of central directory record and its locator precede it.
func (cw *containerWriter) Close() error {
	if _, err := cw.dest.Write(cw.centralDir.Bytes()); err != nil {
		return fmt.Errorf("write central directory: %w", err)
	}

	needZip64 := cw.sizeOfCentralDir > math.MaxUint32 ||
		cw.headerOffset > math.MaxUint32 ||
		cw.entriesNum > math.MaxUint16
	if needZip64 {
		if err := cw.writeZip64EndRecords(); err != nil {
			return err
		}
	}

	end := internal.EncodeEndOfCentralDirRecord(
		cw.entriesNum,
		uint64(cw.sizeOfCentralDir),
		uint64(cw.headerOffset),
	)
	if _, err := cw.dest.Write(end); err != nil {
		return fmt.Errorf("write end of central directory: %w", err)
	}
	return nil
}

func (cw *containerWriter) writeZip64EndRecords() error {
	record := internal.EncodeZip64EndOfCentralDirRecord(
		uint64(cw.entriesNum),
		uint64(cw.sizeOfCentralDir),
		uint64(cw.headerOffset),
	)
	if _, err := cw.dest.Write(record); err != nil {
		return fmt.Errorf("write zip64 end of central directory: %w", err)
	}

	locator := internal.EncodeZip64EndOfCentralDirLocator(
		uint64(cw.headerOffset + cw.sizeOfCentralDir),
	)
	if _, err := cw.dest.Write(locator); err != nil {
		return fmt.Errorf("write zip64 end of central directory locator: %w", err)
	}
	return nil
}

// writeAll writes buf to the destination and advances the offset
// tracker.
func (cw *containerWriter) writeAll(buf []byte) error {
	n, err := cw.dest.Write(buf)
	cw.headerOffset += int64(n)
	return err
}

// buildExtraFields assembles the extension blocks for an entry. The
// extended timestamp block is always present (mtime is mandatory in
// this design, and the DOS pair alone loses precision); ownership is
// attached when supplied.
func (cw *containerWriter) buildExtraFields(rec *entryRecord, zip64 *internal.Zip64Field) internal.ExtraFields {
	extra := internal.ExtraFields{
		Zip64: zip64,
		Times: &internal.TimestampField{
			ModTime:    rec.modTime,
			AccessTime: rec.accessTime,
			ChangeTime: rec.changeTime,
		},
	}
	if rec.owner != nil {
		extra.Owner = &internal.OwnerField{UID: rec.owner.UID, GID: rec.owner.GID}
	}
	return extra
}

func (cw *containerWriter) buildLocalHeader(rec *entryRecord, extra internal.ExtraFields, crc uint32, csize, usize int64, extraFlags uint16) internal.LocalFileHeader {
	dosDate, dosTime := timeToMSDos(rec.modTime)
	filename := wireName(rec)
	extraBytes := extra.Encode()

	h := internal.LocalFileHeader{
		VersionNeededToExtract: 20,
		GeneralPurposeBitFlag:  internal.FlagUTF8 | extraFlags,
		CompressionMethod:      uint16(rec.method),
		LastModFileTime:        dosTime,
		LastModFileDate:        dosDate,
		CRC32:                  crc,
		CompressedSize:         uint32(min(math.MaxUint32, csize)),
		UncompressedSize:       uint32(min(math.MaxUint32, usize)),
		FilenameLength:         uint16(len(filename)),
		ExtraFieldLength:       uint16(len(extraBytes)),
		Filename:               filename,
		ExtraField:             extraBytes,
	}
	if extra.Zip64 != nil {
		h.VersionNeededToExtract = 45
		h.CompressedSize = math.MaxUint32
		h.UncompressedSize = math.MaxUint32
	}
	return h
}

// addCentralDirEntry buffers the central directory record mirroring
// the local header just written.
func (cw *containerWriter) addCentralDirEntry(rec *entryRecord, h internal.LocalFileHeader, extra internal.ExtraFields, offset int64) error {
	entry := internal.CentralDirectory{
		VersionMadeBy:          versionMadeByUnix,
		VersionNeededToExtract: h.VersionNeededToExtract,
		GeneralPurposeBitFlag:  h.GeneralPurposeBitFlag,
		CompressionMethod:      h.CompressionMethod,
		LastModFileTime:        h.LastModFileTime,
		LastModFileDate:        h.LastModFileDate,
		CRC32:                  h.CRC32,
		CompressedSize:         h.CompressedSize,
		UncompressedSize:       h.UncompressedSize,
		ExternalFileAttributes: externalAttributes(rec),
		LocalHeaderOffset:      uint32(min(math.MaxUint32, offset)),
		Filename:               h.Filename,
		ExtraField:             extra.Encode(),
	}

	n, err := cw.centralDir.Write(entry.Encode())
	if err != nil {
		return err
	}
	cw.sizeOfCentralDir += int64(n)
	cw.entriesNum++
	return nil
}

// externalAttributes packs the UNIX mode into the upper 16 bits of the
// external attributes field, OR-ing in the type-specific high bits,
// plus the DOS directory bit for non-UNIX readers.
func externalAttributes(rec *entryRecord) uint32 {
	mode := uint32(rec.mode & fs.ModePerm)
	var attrs uint32
	if rec.isDir {
		mode |= internal.S_IFDIR
		attrs |= 0x10 // DOS directory bit
	} else {
		mode |= internal.S_IFREG
	}
	return attrs | mode<<16
}

func wireName(rec *entryRecord) string {
	if rec.isDir {
		return rec.name + "/"
	}
	return rec.name
}

// resolveCompressor returns the encoder for a method. The classifier
// only ever selects Store or Deflate; anything else is a caller bug.
func (cw *containerWriter) resolveCompressor(method CompressionMethod) (compressor, error) {
	switch method {
	case Store:
		return storedCompressor{}, nil
	case Deflate:
		if cw.deflate == nil {
			cw.deflate = newDeflateCompressor(deflateLevel)
		}
		return cw.deflate, nil
	default:
		return nil, fmt.Errorf("%w: cannot encode method %d", ErrAlgorithm, method)
	}
}
