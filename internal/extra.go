// Copyright 2025 The zipstream Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Extra field tag IDs handled by this package. The extra-field region
// of a header record is a flat sequence of self-length-prefixed blocks:
// Tag(2) + Size(2) + Size payload bytes.
const (
	// Zip64ExtraTag identifies the block carrying 64-bit sizes for
	// entries exceeding the 32-bit header fields.
	Zip64ExtraTag uint16 = 0x0001

	// ExtendedTimeTag identifies the extended timestamp block ("UT"),
	// carrying UNIX timestamps selected by a flag byte.
	ExtendedTimeTag uint16 = 0x5455

	// UnixOwnerTag identifies the Info-ZIP "new UNIX" block ("ux"),
	// carrying length-prefixed UID and GID values.
	UnixOwnerTag uint16 = 0x7875
)

// Flag bits of the extended timestamp block, in serialization order.
const (
	timeFlagModTime    = 0x1
	timeFlagAccessTime = 0x2
	timeFlagChangeTime = 0x4
)

// Zip64Field carries the 64-bit sizes of a Zip64 entry.
type Zip64Field struct {
	UncompressedSize uint64
	CompressedSize   uint64
}

// Encode serializes the block including its tag and size sub-header.
func (f Zip64Field) Encode() []byte {
	data := make([]byte, 20)
	binary.LittleEndian.PutUint16(data[0:2], Zip64ExtraTag)
	binary.LittleEndian.PutUint16(data[2:4], 16)
	binary.LittleEndian.PutUint64(data[4:12], f.UncompressedSize)
	binary.LittleEndian.PutUint64(data[12:20], f.CompressedSize)
	return data
}

// TimestampField carries the UNIX timestamps of the extended timestamp
// block. ModTime is mandatory; AccessTime and ChangeTime participate
// only when non-zero.
type TimestampField struct {
	ModTime    time.Time
	AccessTime time.Time
	ChangeTime time.Time
}

// Encode serializes the block including its tag and size sub-header.
// The flag byte selects which timestamps follow, in the fixed order
// mtime, atime, ctime.
func (f TimestampField) Encode() []byte {
	var flags byte = timeFlagModTime
	payload := 1 + 4
	if !f.AccessTime.IsZero() {
		flags |= timeFlagAccessTime
		payload += 4
	}
	if !f.ChangeTime.IsZero() {
		flags |= timeFlagChangeTime
		payload += 4
	}

	data := make([]byte, 4+payload)
	binary.LittleEndian.PutUint16(data[0:2], ExtendedTimeTag)
	binary.LittleEndian.PutUint16(data[2:4], uint16(payload))
	data[4] = flags

	off := 5
	binary.LittleEndian.PutUint32(data[off:off+4], uint32(f.ModTime.Unix()))
	off += 4
	if flags&timeFlagAccessTime != 0 {
		binary.LittleEndian.PutUint32(data[off:off+4], uint32(f.AccessTime.Unix()))
		off += 4
	}
	if flags&timeFlagChangeTime != 0 {
		binary.LittleEndian.PutUint32(data[off:off+4], uint32(f.ChangeTime.Unix()))
	}
	return data
}

// OwnerField carries UNIX ownership from the new UNIX block.
type OwnerField struct {
	UID uint32
	GID uint32
}

// Encode serializes the block including its tag and size sub-header.
// Version byte 1, then 4-byte little-endian UID and GID, each preceded
// by its length.
func (f OwnerField) Encode() []byte {
	data := make([]byte, 4+11)
	binary.LittleEndian.PutUint16(data[0:2], UnixOwnerTag)
	binary.LittleEndian.PutUint16(data[2:4], 11)
	data[4] = 1 // version
	data[5] = 4
	binary.LittleEndian.PutUint32(data[6:10], f.UID)
	data[10] = 4
	binary.LittleEndian.PutUint32(data[11:15], f.GID)
	return data
}

// RawField retains an extra-field block this package does not
// interpret, so it can be re-emitted losslessly.
type RawField struct {
	Tag  uint16
	Data []byte
}

// ExtraFields is the decoded form of a header's extra-field region:
// the recognized blocks as typed values, everything else opaque.
type ExtraFields struct {
	Zip64 *Zip64Field
	Times *TimestampField
	Owner *OwnerField

	Unknown []RawField

	// Warnings collects non-fatal decode diagnostics, currently only
	// UID/GID values of a stored width other than 4 bytes.
	Warnings []string
}

// Encode serializes all present blocks back into a flat extra-field
// region. Recognized blocks come first in a fixed order, retained
// unknown blocks follow in their original order.
func (ef ExtraFields) Encode() []byte {
	var buf []byte
	if ef.Zip64 != nil {
		buf = append(buf, ef.Zip64.Encode()...)
	}
	if ef.Times != nil {
		buf = append(buf, ef.Times.Encode()...)
	}
	if ef.Owner != nil {
		buf = append(buf, ef.Owner.Encode()...)
	}
	for _, raw := range ef.Unknown {
		sub := make([]byte, 4)
		binary.LittleEndian.PutUint16(sub[0:2], raw.Tag)
		binary.LittleEndian.PutUint16(sub[2:4], uint16(len(raw.Data)))
		buf = append(buf, sub...)
		buf = append(buf, raw.Data...)
	}
	return buf
}

// DecodeExtraFields walks an extra-field region. The blocks must
// exactly tile the region: a sub-header or payload running past the
// end is an error, and so are leftover bytes after the last block.
// This format has no padding.
func DecodeExtraFields(data []byte) (ExtraFields, error) {
	var ef ExtraFields

	for off := 0; off < len(data); {
		if off+4 > len(data) {
			return ef, fmt.Errorf("extra field sub-header at offset %d overruns region of %d bytes", off, len(data))
		}
		tag := binary.LittleEndian.Uint16(data[off : off+2])
		size := int(binary.LittleEndian.Uint16(data[off+2 : off+4]))
		off += 4
		if off+size > len(data) {
			return ef, fmt.Errorf("extra field 0x%04x declares %d payload bytes, %d remain", tag, size, len(data)-off)
		}
		payload := data[off : off+size]
		off += size

		switch tag {
		case Zip64ExtraTag:
			f, err := decodeZip64Field(payload)
			if err != nil {
				return ef, err
			}
			ef.Zip64 = &f
		case ExtendedTimeTag:
			f, err := decodeTimestampField(payload)
			if err != nil {
				return ef, err
			}
			ef.Times = &f
		case UnixOwnerTag:
			f, warn, err := decodeOwnerField(payload)
			if err != nil {
				return ef, err
			}
			if warn != "" {
				ef.Warnings = append(ef.Warnings, warn)
			} else {
				ef.Owner = &f
			}
		default:
			ef.Unknown = append(ef.Unknown, RawField{Tag: tag, Data: payload})
		}
	}

	return ef, nil
}

func decodeZip64Field(payload []byte) (Zip64Field, error) {
	if len(payload) < 16 {
		return Zip64Field{}, fmt.Errorf("zip64 extra field too short: %d bytes", len(payload))
	}
	return Zip64Field{
		UncompressedSize: binary.LittleEndian.Uint64(payload[0:8]),
		CompressedSize:   binary.LittleEndian.Uint64(payload[8:16]),
	}, nil
}

func decodeTimestampField(payload []byte) (TimestampField, error) {
	if len(payload) < 1 {
		return TimestampField{}, fmt.Errorf("extended timestamp extra field is empty")
	}
	flags := payload[0]
	rest := payload[1:]

	var f TimestampField
	// Central directory copies of this block carry the local header's
	// flag byte but only the mtime value, so timestamps are taken while
	// bytes remain rather than by the flags alone.
	take := func() (time.Time, bool) {
		if len(rest) < 4 {
			return time.Time{}, false
		}
		ts := int64(int32(binary.LittleEndian.Uint32(rest[:4])))
		rest = rest[4:]
		return time.Unix(ts, 0).UTC(), true
	}

	if flags&timeFlagModTime != 0 {
		if t, ok := take(); ok {
			f.ModTime = t
		}
	}
	if flags&timeFlagAccessTime != 0 {
		if t, ok := take(); ok {
			f.AccessTime = t
		}
	}
	if flags&timeFlagChangeTime != 0 {
		if t, ok := take(); ok {
			f.ChangeTime = t
		}
	}
	return f, nil
}

// decodeOwnerField decodes the new UNIX block. Only 4-byte UID/GID
// widths are decodable; any other width yields a warning and an absent
// owner, not an error, matching Info-ZIP's lenient readers.
func decodeOwnerField(payload []byte) (OwnerField, string, error) {
	if len(payload) < 3 {
		return OwnerField{}, "", fmt.Errorf("unix owner extra field too short: %d bytes", len(payload))
	}
	version := payload[0]
	if version != 1 {
		return OwnerField{}, fmt.Sprintf("unix owner extra field has unknown version %d, ignoring", version), nil
	}

	uidSize := int(payload[1])
	if len(payload) < 2+uidSize+1 {
		return OwnerField{}, "", fmt.Errorf("unix owner extra field uid overruns payload")
	}
	uidBytes := payload[2 : 2+uidSize]

	gidOff := 2 + uidSize
	gidSize := int(payload[gidOff])
	if len(payload) < gidOff+1+gidSize {
		return OwnerField{}, "", fmt.Errorf("unix owner extra field gid overruns payload")
	}
	gidBytes := payload[gidOff+1 : gidOff+1+gidSize]

	if uidSize != 4 || gidSize != 4 {
		return OwnerField{}, fmt.Sprintf("unix owner extra field with %d-byte uid and %d-byte gid, only 4-byte values decode", uidSize, gidSize), nil
	}

	return OwnerField{
		UID: binary.LittleEndian.Uint32(uidBytes),
		GID: binary.LittleEndian.Uint32(gidBytes),
	}, "", nil
}
