// Copyright 2025 The zipstream Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package internal implements the wire-format records of the ZIP
// container: local file headers, data descriptors, extra-field blocks
// and the trailing central directory structures.
package internal

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Each record type is identified by a header signature. Signature
// values begin with the two byte constant marker of 0x4b50,
// representing the characters "PK".
const (
	LocalFileHeaderSignature             uint32 = 0x04034b50
	DataDescriptorSignature              uint32 = 0x08074b50
	CentralDirectorySignature            uint32 = 0x02014b50
	EndOfCentralDirSignature             uint32 = 0x06054b50
	Zip64EndOfCentralDirSignature        uint32 = 0x06064b50
	Zip64EndOfCentralDirLocatorSignature uint32 = 0x07064b50
)

// LocalFileHeaderLen is the size of the fixed local file header prefix,
// including the signature.
const LocalFileHeaderLen = 30

// General purpose bit flags used by this package.
const (
	// FlagDataDescriptor (bit 3) marks an entry whose sizes and CRC
	// were unknown when the header was written; the authoritative
	// values follow the body in a data descriptor record.
	FlagDataDescriptor uint16 = 0x0008

	// FlagUTF8 (bit 11) marks the filename as UTF-8 encoded.
	FlagUTF8 uint16 = 0x0800
)

// UNIX file type high bits placed above the permission bits in the
// central directory's external attributes field (shifted left 16).
const (
	S_IFDIR uint32 = 0o40000
	S_IFREG uint32 = 0o100000
)

// LocalFileHeader is the per-entry record preceding an entry's body.
type LocalFileHeader struct {
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	FilenameLength         uint16
	ExtraFieldLength       uint16
	Filename               string
	ExtraField             []byte
}

// Encode serializes the header: the 30-byte fixed prefix followed by
// the filename and the extra-field region.
func (h LocalFileHeader) Encode() []byte {
	size := LocalFileHeaderLen + int(h.FilenameLength) + int(h.ExtraFieldLength)
	buf := make([]byte, size)

	binary.LittleEndian.PutUint32(buf[0:4], LocalFileHeaderSignature)
	binary.LittleEndian.PutUint16(buf[4:6], h.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[6:8], h.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[8:10], h.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[10:12], h.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[12:14], h.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[14:18], h.CRC32)
	binary.LittleEndian.PutUint32(buf[18:22], h.CompressedSize)
	binary.LittleEndian.PutUint32(buf[22:26], h.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[26:28], h.FilenameLength)
	binary.LittleEndian.PutUint16(buf[28:30], h.ExtraFieldLength)

	copy(buf[30:], h.Filename)
	copy(buf[30+h.FilenameLength:], h.ExtraField)

	return buf
}

// DecodeLocalFileHeaderFields parses the 26 fixed header bytes that
// follow the signature. The caller verifies the signature and reads
// the filename and extra-field regions afterwards.
func DecodeLocalFileHeaderFields(buf []byte) (LocalFileHeader, error) {
	if len(buf) < LocalFileHeaderLen-4 {
		return LocalFileHeader{}, fmt.Errorf("local file header fields need %d bytes, got %d", LocalFileHeaderLen-4, len(buf))
	}
	return LocalFileHeader{
		VersionNeededToExtract: binary.LittleEndian.Uint16(buf[0:2]),
		GeneralPurposeBitFlag:  binary.LittleEndian.Uint16(buf[2:4]),
		CompressionMethod:      binary.LittleEndian.Uint16(buf[4:6]),
		LastModFileTime:        binary.LittleEndian.Uint16(buf[6:8]),
		LastModFileDate:        binary.LittleEndian.Uint16(buf[8:10]),
		CRC32:                  binary.LittleEndian.Uint32(buf[10:14]),
		CompressedSize:         binary.LittleEndian.Uint32(buf[14:18]),
		UncompressedSize:       binary.LittleEndian.Uint32(buf[18:22]),
		FilenameLength:         binary.LittleEndian.Uint16(buf[22:24]),
		ExtraFieldLength:       binary.LittleEndian.Uint16(buf[24:26]),
	}, nil
}

// DataDescriptor trails an entry whose sizes were unknown when its
// header was written. Sizes are 64-bit on the wire for Zip64 entries,
// 32-bit otherwise.
type DataDescriptor struct {
	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64
}

// DataDescriptorLen returns the byte length of a descriptor body (the
// part after the signature) for the given size width.
func DataDescriptorLen(zip64 bool) int {
	if zip64 {
		return 20
	}
	return 12
}

// DecodeDataDescriptor parses a descriptor body. The caller has
// already consumed and verified the signature.
func DecodeDataDescriptor(buf []byte, zip64 bool) (DataDescriptor, error) {
	if len(buf) < DataDescriptorLen(zip64) {
		return DataDescriptor{}, fmt.Errorf("data descriptor needs %d bytes, got %d", DataDescriptorLen(zip64), len(buf))
	}
	d := DataDescriptor{CRC32: binary.LittleEndian.Uint32(buf[0:4])}
	if zip64 {
		d.CompressedSize = binary.LittleEndian.Uint64(buf[4:12])
		d.UncompressedSize = binary.LittleEndian.Uint64(buf[12:20])
	} else {
		d.CompressedSize = uint64(binary.LittleEndian.Uint32(buf[4:8]))
		d.UncompressedSize = uint64(binary.LittleEndian.Uint32(buf[8:12]))
	}
	return d, nil
}

// Encode serializes the descriptor including its signature.
func (d DataDescriptor) Encode(zip64 bool) []byte {
	buf := make([]byte, 4+DataDescriptorLen(zip64))
	binary.LittleEndian.PutUint32(buf[0:4], DataDescriptorSignature)
	binary.LittleEndian.PutUint32(buf[4:8], d.CRC32)
	if zip64 {
		binary.LittleEndian.PutUint64(buf[8:16], d.CompressedSize)
		binary.LittleEndian.PutUint64(buf[16:24], d.UncompressedSize)
	} else {
		binary.LittleEndian.PutUint32(buf[8:12], uint32(d.CompressedSize))
		binary.LittleEndian.PutUint32(buf[12:16], uint32(d.UncompressedSize))
	}
	return buf
}

// CentralDirectory is one entry of the trailing central directory.
// ExtraField holds the already-serialized extra-field region.
type CentralDirectory struct {
	VersionMadeBy          uint16
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	DiskNumberStart        uint16
	InternalFileAttributes uint16
	ExternalFileAttributes uint32
	LocalHeaderOffset      uint32
	Filename               string
	ExtraField             []byte
}

// Encode serializes the central directory entry.
func (d CentralDirectory) Encode() []byte {
	totalSize := 46 + len(d.Filename) + len(d.ExtraField)
	buf := make([]byte, totalSize)

	binary.LittleEndian.PutUint32(buf[0:4], CentralDirectorySignature)
	binary.LittleEndian.PutUint16(buf[4:6], d.VersionMadeBy)
	binary.LittleEndian.PutUint16(buf[6:8], d.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[8:10], d.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[10:12], d.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[12:14], d.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[14:16], d.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[16:20], d.CRC32)
	binary.LittleEndian.PutUint32(buf[20:24], d.CompressedSize)
	binary.LittleEndian.PutUint32(buf[24:28], d.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[28:30], uint16(len(d.Filename)))
	binary.LittleEndian.PutUint16(buf[30:32], uint16(len(d.ExtraField)))
	binary.LittleEndian.PutUint16(buf[32:34], 0) // file comment length
	binary.LittleEndian.PutUint16(buf[34:36], d.DiskNumberStart)
	binary.LittleEndian.PutUint16(buf[36:38], d.InternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[38:42], d.ExternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[42:46], d.LocalHeaderOffset)

	offset := 46
	offset += copy(buf[offset:], d.Filename)
	copy(buf[offset:], d.ExtraField)

	return buf
}

// EncodeEndOfCentralDirRecord serializes the end of central directory
// record that terminates every archive.
func EncodeEndOfCentralDirRecord(entriesNum int, centralDirSize, centralDirOffset uint64) []byte {
	buf := make([]byte, 22)

	binary.LittleEndian.PutUint32(buf[0:4], EndOfCentralDirSignature)
	binary.LittleEndian.PutUint16(buf[4:6], 0)
	binary.LittleEndian.PutUint16(buf[6:8], 0)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(min(math.MaxUint16, entriesNum)))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(min(math.MaxUint16, entriesNum)))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(min(math.MaxUint32, centralDirSize)))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(min(math.MaxUint32, centralDirOffset)))
	binary.LittleEndian.PutUint16(buf[20:22], 0) // comment length

	return buf
}

// EncodeZip64EndOfCentralDirRecord serializes the Zip64 end of central
// directory record, written when counts or offsets overflow the legacy
// record's fields.
func EncodeZip64EndOfCentralDirRecord(entriesNum, centralDirSize, centralDirOffset uint64) []byte {
	buf := make([]byte, 56)

	binary.LittleEndian.PutUint32(buf[0:4], Zip64EndOfCentralDirSignature)
	binary.LittleEndian.PutUint64(buf[4:12], 44) // size of the record past this field
	binary.LittleEndian.PutUint16(buf[12:14], 45)
	binary.LittleEndian.PutUint16(buf[14:16], 45)
	binary.LittleEndian.PutUint32(buf[16:20], 0)
	binary.LittleEndian.PutUint32(buf[20:24], 0)
	binary.LittleEndian.PutUint64(buf[24:32], entriesNum)
	binary.LittleEndian.PutUint64(buf[32:40], entriesNum)
	binary.LittleEndian.PutUint64(buf[40:48], centralDirSize)
	binary.LittleEndian.PutUint64(buf[48:56], centralDirOffset)

	return buf
}

// EncodeZip64EndOfCentralDirLocator serializes the locator that points
// random-access readers at the Zip64 end of central directory record.
func EncodeZip64EndOfCentralDirLocator(zip64EndOffset uint64) []byte {
	buf := make([]byte, 20)

	binary.LittleEndian.PutUint32(buf[0:4], Zip64EndOfCentralDirLocatorSignature)
	binary.LittleEndian.PutUint32(buf[4:8], 0)
	binary.LittleEndian.PutUint64(buf[8:16], zip64EndOffset)
	binary.LittleEndian.PutUint32(buf[16:20], 1)

	return buf
}
