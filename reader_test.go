// Copyright 2025 The zipstream Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import (
	"archive/zip"
	"bytes"
	"errors"
	"hash/crc32"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/streamware/zipstream/internal"
)

func defaultTime() time.Time {
	return time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
}

// buildStoredEntry serializes a local file header followed by the body,
// bypassing the Writer so malformed records can be produced.
func buildStoredEntry(name string, method CompressionMethod, body []byte, mutate func(*internal.LocalFileHeader)) []byte {
	dosDate, dosTime := timeToMSDos(defaultTime())
	h := internal.LocalFileHeader{
		VersionNeededToExtract: 20,
		GeneralPurposeBitFlag:  internal.FlagUTF8,
		CompressionMethod:      uint16(method),
		LastModFileTime:        dosTime,
		LastModFileDate:        dosDate,
		CRC32:                  crc32.ChecksumIEEE(body),
		CompressedSize:         uint32(len(body)),
		UncompressedSize:       uint32(len(body)),
		FilenameLength:         uint16(len(name)),
		Filename:               name,
	}
	if mutate != nil {
		mutate(&h)
	}
	return append(h.Encode(), body...)
}

func TestReader_WriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.AddDirectory(Entry{Name: "foo", Mode: 0o755, ModTime: defaultTime()}); err != nil {
		t.Fatalf("AddDirectory() error = %v", err)
	}
	if err := w.AddFile(Entry{Name: "foo/bar", Mode: 0o755, ModTime: defaultTime()}, strings.NewReader("test")); err != nil {
		t.Fatalf("AddFile() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	r := NewReader(&buf)

	dir, err := r.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if dir.Name != "foo" || dir.Kind != KindDirectory {
		t.Errorf("first entry = %q (%v), expected directory \"foo\"", dir.Name, dir.Kind)
	}
	if !dir.ModTime.Equal(defaultTime()) {
		t.Errorf("directory mtime = %v, expected %v", dir.ModTime, defaultTime())
	}
	content, _, err := r.ReadData()
	if err != nil {
		t.Fatalf("ReadData() error = %v", err)
	}
	if content != nil {
		t.Errorf("directory content should be nil, got %d bytes", len(content))
	}

	file, err := r.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if file.Name != "foo/bar" || file.Kind != KindFile {
		t.Errorf("second entry = %q (%v), expected file \"foo/bar\"", file.Name, file.Kind)
	}
	content, file, err = r.ReadData()
	if err != nil {
		t.Fatalf("ReadData() error = %v", err)
	}
	if string(content) != "test" {
		t.Errorf("content = %q, expected \"test\"", content)
	}
	if file.CRC32 != 0xd87f7e0c {
		t.Errorf("crc32 = %08x, expected d87f7e0c", file.CRC32)
	}
	if file.Size != 4 {
		t.Errorf("size = %d, expected 4", file.Size)
	}

	if _, err := r.ReadHeader(); err != io.EOF {
		t.Errorf("ReadHeader() at end = %v, expected io.EOF", err)
	}
	// End state is sticky.
	if _, err := r.ReadHeader(); err != io.EOF {
		t.Errorf("repeated ReadHeader() at end = %v, expected io.EOF", err)
	}
}

// Streams produced by archive/zip frame every file with bit 3 and a
// trailing data descriptor, exercising the descriptor resolution path
// against an independent implementation.
func TestReader_ArchiveZipStream(t *testing.T) {
	big := bytes.Repeat([]byte("0123456789abcdef"), 1250) // 20000 bytes, several chunks

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if _, err := zw.CreateHeader(&zip.FileHeader{Name: "sub/"}); err != nil {
		t.Fatal(err)
	}
	small, err := zw.Create("sub/small.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := small.Write([]byte("hello stream")); err != nil {
		t.Fatal(err)
	}
	f, err := zw.Create("big.bin")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write(big); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	r := NewReader(&buf)

	dir, err := r.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if dir.Name != "sub" || !dir.IsDir() {
		t.Errorf("first entry = %q (%v), expected directory \"sub\"", dir.Name, dir.Kind)
	}
	if _, _, err := r.ReadData(); err != nil {
		t.Fatalf("ReadData() error = %v", err)
	}

	entry, err := r.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	content, entry, err := r.ReadData()
	if err != nil {
		t.Fatalf("ReadData() error = %v", err)
	}
	if string(content) != "hello stream" {
		t.Errorf("content = %q", content)
	}
	if entry.Size != int64(len("hello stream")) {
		t.Errorf("descriptor size = %d, expected %d", entry.Size, len("hello stream"))
	}

	if _, err := r.ReadHeader(); err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	content, entry, err = r.ReadData()
	if err != nil {
		t.Fatalf("ReadData() error = %v", err)
	}
	if !bytes.Equal(content, big) {
		t.Errorf("big entry content mismatch: %d bytes, expected %d", len(content), len(big))
	}
	if entry.Size != int64(len(big)) {
		t.Errorf("descriptor size = %d, expected %d", entry.Size, len(big))
	}

	if _, err := r.ReadHeader(); err != io.EOF {
		t.Errorf("ReadHeader() at end = %v, expected io.EOF", err)
	}
}

// Several compressible bodies back to back: the inflater over-reads
// into each following record, so every header decode after the first
// depends on the overflow buffer restoring the over-read bytes.
func TestReader_OverflowAcrossEntries(t *testing.T) {
	bodies := [][]byte{
		bytes.Repeat([]byte("alpha bravo charlie "), 250),
		bytes.Repeat([]byte("delta echo foxtrot "), 263),
		bytes.Repeat([]byte("golf hotel india "), 294),
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for i, body := range bodies {
		name := string(rune('a'+i)) + ".txt"
		if err := w.AddFile(Entry{Name: name, ModTime: defaultTime()}, bytes.NewReader(body)); err != nil {
			t.Fatalf("AddFile(%q) error = %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r := NewReader(&buf)
	for i, want := range bodies {
		entry, err := r.ReadHeader()
		if err != nil {
			t.Fatalf("ReadHeader() #%d error = %v", i, err)
		}
		if entry.Method != Deflate {
			t.Errorf("entry #%d method = %d, expected Deflate", i, entry.Method)
		}
		content, _, err := r.ReadData()
		if err != nil {
			t.Fatalf("ReadData() #%d error = %v", i, err)
		}
		if !bytes.Equal(content, want) {
			t.Errorf("entry #%d content mismatch", i)
		}
	}
	if _, err := r.ReadHeader(); err != io.EOF {
		t.Errorf("ReadHeader() at end = %v, expected io.EOF", err)
	}
}

func TestReader_EndOfArchiveKeepsSignatureBytes(t *testing.T) {
	stream := buildStoredEntry("a.txt", Store, []byte("data!"), nil)
	stream = append(stream, 0x50, 0x4b, 0x01, 0x02) // central directory begins

	r := NewReader(bytes.NewReader(stream))
	if _, err := r.ReadHeader(); err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if _, _, err := r.ReadData(); err != nil {
		t.Fatalf("ReadData() error = %v", err)
	}
	if _, err := r.ReadHeader(); err != io.EOF {
		t.Fatalf("ReadHeader() = %v, expected io.EOF", err)
	}

	if !bytes.Equal(r.overflow, []byte{0x50, 0x4b, 0x01, 0x02}) {
		t.Errorf("overflow = %x, expected the four signature bytes", r.overflow)
	}
}

func TestReader_EmptySource(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	if _, err := r.ReadHeader(); err != io.EOF {
		t.Errorf("ReadHeader() = %v, expected io.EOF", err)
	}
}

func TestReader_VersionTooHigh(t *testing.T) {
	stream := buildStoredEntry("a.txt", Store, []byte("data!"), func(h *internal.LocalFileHeader) {
		h.VersionNeededToExtract = 46
	})

	r := NewReader(bytes.NewReader(stream))
	_, err := r.ReadHeader()
	if !errors.Is(err, ErrVersion) {
		t.Fatalf("ReadHeader() = %v, expected ErrVersion", err)
	}

	// The session is faulted; the error persists.
	if _, err := r.ReadHeader(); !errors.Is(err, ErrVersion) {
		t.Errorf("faulted ReadHeader() = %v, expected ErrVersion", err)
	}
	if _, _, err := r.ReadData(); !errors.Is(err, ErrVersion) {
		t.Errorf("faulted ReadData() = %v, expected ErrVersion", err)
	}
}

func TestReader_Zip64SentinelWithoutExtraField(t *testing.T) {
	stream := buildStoredEntry("a.txt", Store, nil, func(h *internal.LocalFileHeader) {
		h.VersionNeededToExtract = 45
		h.CompressedSize = math.MaxUint32
		h.UncompressedSize = math.MaxUint32
	})

	r := NewReader(bytes.NewReader(stream))
	if _, err := r.ReadHeader(); !errors.Is(err, ErrFormat) {
		t.Errorf("ReadHeader() = %v, expected ErrFormat", err)
	}
}

func TestReader_Zip64ExtraField(t *testing.T) {
	body := []byte("data!")
	extra := internal.ExtraFields{
		Zip64: &internal.Zip64Field{
			UncompressedSize: uint64(len(body)),
			CompressedSize:   uint64(len(body)),
		},
	}.Encode()

	stream := buildStoredEntry("a.txt", Store, body, func(h *internal.LocalFileHeader) {
		h.VersionNeededToExtract = 45
		h.CompressedSize = math.MaxUint32
		h.UncompressedSize = math.MaxUint32
		h.ExtraFieldLength = uint16(len(extra))
		h.ExtraField = extra
	})

	r := NewReader(bytes.NewReader(stream))
	entry, err := r.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if !entry.Zip64 {
		t.Error("entry should be marked zip64")
	}
	if entry.Size != int64(len(body)) || entry.CompressedSize != int64(len(body)) {
		t.Errorf("sizes = %d/%d, expected %d", entry.Size, entry.CompressedSize, len(body))
	}
	content, _, err := r.ReadData()
	if err != nil {
		t.Fatalf("ReadData() error = %v", err)
	}
	if !bytes.Equal(content, body) {
		t.Errorf("content = %q", content)
	}
}

func TestReader_ExtraFieldStrictness(t *testing.T) {
	// Declares a 10-byte sub-block payload inside a 6-byte region.
	extra := []byte{0x55, 0x54, 0x0A, 0x00, 0x01, 0x02}
	stream := buildStoredEntry("a.txt", Store, nil, func(h *internal.LocalFileHeader) {
		h.ExtraFieldLength = uint16(len(extra))
		h.ExtraField = extra
	})

	r := NewReader(bytes.NewReader(stream))
	if _, err := r.ReadHeader(); !errors.Is(err, ErrFormat) {
		t.Errorf("ReadHeader() = %v, expected ErrFormat", err)
	}
}

func TestReader_OwnerWidthWarning(t *testing.T) {
	// 2-byte uid/gid values: tolerated, reported, not decoded.
	extra := []byte{0x75, 0x78, 0x07, 0x00, 1, 2, 0xE8, 0x03, 2, 0xE8, 0x03}
	stream := buildStoredEntry("a.txt", Store, []byte("data!"), func(h *internal.LocalFileHeader) {
		h.ExtraFieldLength = uint16(len(extra))
		h.ExtraField = extra
	})

	var warnings []string
	r := NewReaderWithConfig(bytes.NewReader(stream), ReaderConfig{
		Warn: func(msg string) { warnings = append(warnings, msg) },
	})

	entry, err := r.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if entry.Owner != nil {
		t.Errorf("owner should be absent, got %+v", entry.Owner)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "2-byte") {
		t.Errorf("warnings = %v, expected one about 2-byte ids", warnings)
	}
}

func TestReader_StoredWithDescriptorRejected(t *testing.T) {
	stream := buildStoredEntry("a.txt", Store, []byte("data!"), func(h *internal.LocalFileHeader) {
		h.GeneralPurposeBitFlag |= internal.FlagDataDescriptor
		h.CRC32 = 0
		h.CompressedSize = 0
		h.UncompressedSize = 0
	})

	r := NewReader(bytes.NewReader(stream))
	if _, err := r.ReadHeader(); err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if _, _, err := r.ReadData(); !errors.Is(err, ErrFormat) {
		t.Errorf("ReadData() = %v, expected ErrFormat", err)
	}
}

func TestReader_UnknownMethodFaultsSession(t *testing.T) {
	stream := buildStoredEntry("a.txt", CompressionMethod(99), []byte("data!"), nil)

	r := NewReader(bytes.NewReader(stream))
	entry, err := r.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if entry.Method != CompressionMethod(99) {
		t.Errorf("method = %d, expected 99", entry.Method)
	}

	if _, _, err := r.ReadData(); !errors.Is(err, ErrAlgorithm) {
		t.Fatalf("ReadData() = %v, expected ErrAlgorithm", err)
	}
	// The body length is unknowable, so the position is lost for good.
	if _, err := r.ReadHeader(); !errors.Is(err, ErrAlgorithm) {
		t.Errorf("faulted ReadHeader() = %v, expected ErrAlgorithm", err)
	}
}

func TestReader_ChecksumMismatch(t *testing.T) {
	stream := buildStoredEntry("a.txt", Store, []byte("data!"), func(h *internal.LocalFileHeader) {
		h.CRC32 = 0xBADC0FFE
	})

	r := NewReader(bytes.NewReader(stream))
	if _, err := r.ReadHeader(); err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if _, _, err := r.ReadData(); !errors.Is(err, ErrChecksum) {
		t.Errorf("ReadData() = %v, expected ErrChecksum", err)
	}
}

func TestReader_TruncatedBody(t *testing.T) {
	stream := buildStoredEntry("a.txt", Store, []byte("data!"), func(h *internal.LocalFileHeader) {
		h.CompressedSize = 100
		h.UncompressedSize = 100
	})

	r := NewReader(bytes.NewReader(stream))
	if _, err := r.ReadHeader(); err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if _, _, err := r.ReadData(); !errors.Is(err, ErrTruncated) {
		t.Errorf("ReadData() = %v, expected ErrTruncated", err)
	}
}

func TestReader_TruncatedHeader(t *testing.T) {
	stream := buildStoredEntry("a.txt", Store, nil, nil)

	r := NewReader(bytes.NewReader(stream[:10]))
	if _, err := r.ReadHeader(); !errors.Is(err, ErrTruncated) {
		t.Errorf("ReadHeader() = %v, expected ErrTruncated", err)
	}
}

func TestReader_ProtocolOrder(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.AddFile(Entry{Name: "a.txt", ModTime: defaultTime()}, strings.NewReader("data!")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r := NewReader(bytes.NewReader(buf.Bytes()))

	// Data before any header.
	if _, _, err := r.ReadData(); !errors.Is(err, ErrProtocol) {
		t.Fatalf("ReadData() = %v, expected ErrProtocol", err)
	}

	// Protocol errors do not fault the session.
	if _, err := r.ReadHeader(); err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}

	// Header with unread data pending.
	if _, err := r.ReadHeader(); !errors.Is(err, ErrProtocol) {
		t.Fatalf("second ReadHeader() = %v, expected ErrProtocol", err)
	}

	if _, _, err := r.ReadData(); err != nil {
		t.Fatalf("ReadData() error = %v", err)
	}
}

func TestReader_ZstandardEntry(t *testing.T) {
	body := bytes.Repeat([]byte("zstandard body "), 100)

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	compressed := enc.EncodeAll(body, nil)
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}

	stream := buildCompressedEntry(t, "a.zst.bin", Zstandard, body, compressed)
	r := NewReader(bytes.NewReader(stream))
	if _, err := r.ReadHeader(); err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	content, _, err := r.ReadData()
	if err != nil {
		t.Fatalf("ReadData() error = %v", err)
	}
	if !bytes.Equal(content, body) {
		t.Error("zstd content mismatch")
	}
}

func TestReader_XZEntry(t *testing.T) {
	body := bytes.Repeat([]byte("xz body "), 100)

	var compressed bytes.Buffer
	xw, err := xz.NewWriter(&compressed)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := xw.Write(body); err != nil {
		t.Fatal(err)
	}
	if err := xw.Close(); err != nil {
		t.Fatal(err)
	}

	stream := buildCompressedEntry(t, "a.xz.bin", XZ, body, compressed.Bytes())
	r := NewReader(bytes.NewReader(stream))
	if _, err := r.ReadHeader(); err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	content, _, err := r.ReadData()
	if err != nil {
		t.Fatalf("ReadData() error = %v", err)
	}
	if !bytes.Equal(content, body) {
		t.Error("xz content mismatch")
	}
}

// buildCompressedEntry serializes an entry whose body was compressed
// out of band, as whole-frame methods require.
func buildCompressedEntry(t *testing.T, name string, method CompressionMethod, body, compressed []byte) []byte {
	t.Helper()
	dosDate, dosTime := timeToMSDos(defaultTime())
	h := internal.LocalFileHeader{
		VersionNeededToExtract: 20,
		GeneralPurposeBitFlag:  internal.FlagUTF8,
		CompressionMethod:      uint16(method),
		LastModFileTime:        dosTime,
		LastModFileDate:        dosDate,
		CRC32:                  crc32.ChecksumIEEE(body),
		CompressedSize:         uint32(len(compressed)),
		UncompressedSize:       uint32(len(body)),
		FilenameLength:         uint16(len(name)),
		Filename:               name,
	}
	return append(h.Encode(), compressed...)
}
