// Copyright 2025 The zipstream Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/streamware/zipstream/internal"
)

// inflateChunkSize is how many compressed bytes are pulled from the
// source per read while inflating an entry body.
const inflateChunkSize = 4096

// ReaderConfig adjusts non-default Reader behavior.
type ReaderConfig struct {
	// Warn receives non-fatal decode diagnostics, such as UID/GID
	// extra fields of an undecodable width. May be nil.
	Warn func(msg string)
}

// readerState tracks the header/data alternation of the read protocol.
type readerState int

const (
	stateHeader readerState = iota // next call must be ReadHeader
	stateData                      // next call must be ReadData
	stateEnd                       // end of archive reached
	stateFault                     // stream position lost, session unusable
)

// Reader decodes a ZIP byte stream sequentially. It walks local file
// header records only and never seeks: the trailing central directory
// is treated as the end-of-archive marker.
//
// Callers must strictly alternate ReadHeader and ReadData per entry;
// out-of-order calls fail with ErrProtocol.
//
// A Reader owns an overflow buffer holding bytes already pulled from
// the source but not yet consumed by a logical record. DEFLATE does
// not byte-align to the container's framing, so inflating a body
// legitimately reads past its end; those bytes belong to the next
// record and are drained before the source is touched again. The
// buffer must never be inspected or shared by the caller.
type Reader struct {
	src      io.Reader
	overflow []byte
	state    readerState
	fault    error

	cur      *Entry
	curFlags uint16

	warn func(string)
}

// NewReader creates a Reader decoding from src.
func NewReader(src io.Reader) *Reader {
	return NewReaderWithConfig(src, ReaderConfig{})
}

// NewReaderWithConfig creates a Reader with the given configuration.
func NewReaderWithConfig(src io.Reader, config ReaderConfig) *Reader {
	return &Reader{src: src, warn: config.Warn}
}

// warnf reports a non-fatal diagnostic to the configured callback.
func (r *Reader) warnf(format string, args ...any) {
	if r.warn != nil {
		r.warn(fmt.Sprintf(format, args...))
	}
}

// readFull reads exactly len(p) bytes, draining the overflow buffer
// before touching the source. A short read is fatal: the bytes were
// mandatory for the record being decoded.
func (r *Reader) readFull(p []byte) error {
	n := copy(p, r.overflow)
	r.overflow = r.overflow[n:]
	if n == len(p) {
		return nil
	}
	if _, err := io.ReadFull(r.src, p[n:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: need %d bytes", ErrTruncated, len(p))
		}
		return fmt.Errorf("read source: %w", err)
	}
	return nil
}

// readChunk reads up to len(p) bytes, draining the overflow buffer
// first. Partial reads are fine; io.EOF signals source exhaustion.
// Used only for the bounded-chunk reads of the decompression pipeline,
// where a chunk may legitimately be short at true end of stream.
func (r *Reader) readChunk(p []byte) (int, error) {
	if len(r.overflow) > 0 {
		n := copy(p, r.overflow)
		r.overflow = r.overflow[n:]
		return n, nil
	}
	return r.src.Read(p)
}

// ReadHeader advances to the next entry and returns its decoded
// header. io.EOF reports a clean end of archive: the bytes at the
// current position do not start with a local file header signature
// (in a well-formed stream, the start of the central directory).
//
// Any other failure is fatal to the session: the stream position is
// unreliable after a malformed or truncated record.
func (r *Reader) ReadHeader() (*Entry, error) {
	switch r.state {
	case stateFault:
		return nil, r.fault
	case stateEnd:
		return nil, io.EOF
	case stateData:
		return nil, fmt.Errorf("%w: entry %q has unread data", ErrProtocol, r.cur.Name)
	}

	entry, err := r.readHeader()
	if err != nil && err != io.EOF {
		r.faultWith(err)
	}
	return entry, err
}

func (r *Reader) readHeader() (*Entry, error) {
	var sig [4]byte
	n, err := r.readChunkFull(sig[:])
	if err != nil {
		return nil, fmt.Errorf("read header signature: %w", err)
	}
	if n == 0 {
		r.state = stateEnd
		return nil, io.EOF
	}
	if n < len(sig) {
		return nil, fmt.Errorf("%w: %d bytes at header position", ErrTruncated, n)
	}
	if binary.LittleEndian.Uint32(sig[:]) != internal.LocalFileHeaderSignature {
		// End of archive. Only the four signature bytes were consumed;
		// keep them available in case the caller resumes on the raw
		// stream (central directory, concatenated payload, ...).
		r.overflow = append(sig[:], r.overflow...)
		r.state = stateEnd
		return nil, io.EOF
	}

	var fixed [internal.LocalFileHeaderLen - 4]byte
	if err := r.readFull(fixed[:]); err != nil {
		return nil, fmt.Errorf("local file header: %w", err)
	}
	h, err := internal.DecodeLocalFileHeaderFields(fixed[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	if h.VersionNeededToExtract > MaxVersionNeeded {
		return nil, fmt.Errorf("%w: %d.%d", ErrVersion, h.VersionNeededToExtract/10, h.VersionNeededToExtract%10)
	}

	name := make([]byte, h.FilenameLength)
	if err := r.readFull(name); err != nil {
		return nil, fmt.Errorf("filename: %w", err)
	}
	extraRaw := make([]byte, h.ExtraFieldLength)
	if err := r.readFull(extraRaw); err != nil {
		return nil, fmt.Errorf("extra field: %w", err)
	}
	extra, err := internal.DecodeExtraFields(extraRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	for _, w := range extra.Warnings {
		r.warnf("entry %q: %s", name, w)
	}

	entry, err := r.resolveEntry(h, string(name), extra)
	if err != nil {
		return nil, err
	}

	r.cur = entry
	r.curFlags = h.GeneralPurposeBitFlag
	r.state = stateData
	return entry, nil
}

// readChunkFull reads up to len(p) bytes like readChunk but keeps
// reading across short reads; it stops early only at io.EOF.
func (r *Reader) readChunkFull(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := r.readChunk(p[total:])
		total += n
		if err != nil {
			if errors.Is(err, io.EOF) {
				return total, nil
			}
			return total, err
		}
	}
	return total, nil
}

// resolveEntry turns a raw header record and its decoded extra fields
// into a logical entry: Zip64 size overrides, timestamp fallback and
// ownership resolution.
func (r *Reader) resolveEntry(h internal.LocalFileHeader, wireName string, extra internal.ExtraFields) (*Entry, error) {
	entry := &Entry{
		Name:   wireName,
		Kind:   KindFile,
		Method: CompressionMethod(h.CompressionMethod),
		CRC32:  h.CRC32,
	}
	if strings.HasSuffix(wireName, "/") {
		entry.Kind = KindDirectory
		entry.Name = strings.TrimSuffix(wireName, "/")
	}

	entry.Size = int64(h.UncompressedSize)
	entry.CompressedSize = int64(h.CompressedSize)
	if h.VersionNeededToExtract >= 45 &&
		h.CompressedSize == math.MaxUint32 && h.UncompressedSize == math.MaxUint32 {
		if extra.Zip64 == nil {
			return nil, fmt.Errorf("%w: zip64 sizes flagged but no zip64 extra field", ErrFormat)
		}
		entry.Zip64 = true
		entry.Size = int64(extra.Zip64.UncompressedSize)
		entry.CompressedSize = int64(extra.Zip64.CompressedSize)
	}

	// mtime is always resolvable: the UNIX timestamp extra field wins,
	// the legacy DOS pair is the fallback.
	if extra.Times != nil && !extra.Times.ModTime.IsZero() {
		entry.ModTime = extra.Times.ModTime
	} else {
		entry.ModTime = msDosToTime(h.LastModFileDate, h.LastModFileTime)
	}
	if extra.Times != nil {
		entry.AccessTime = extra.Times.AccessTime
		entry.ChangeTime = extra.Times.ChangeTime
	}

	if extra.Owner != nil {
		entry.Owner = &Owner{UID: extra.Owner.UID, GID: extra.Owner.GID}
	}

	return entry, nil
}

// ReadData consumes the body of the entry returned by the preceding
// ReadHeader call and returns its decompressed content together with
// the entry, updated with any sizes and checksum resolved from a
// trailing data descriptor. Directory entries have no body; their
// content is nil.
//
// An entry with an undecodable compression method returns an error
// wrapping ErrAlgorithm and leaves the session faulted: its body
// length cannot be known without decompressing it, so the stream
// position is unrecoverable.
func (r *Reader) ReadData() ([]byte, *Entry, error) {
	switch r.state {
	case stateFault:
		return nil, nil, r.fault
	case stateEnd:
		return nil, nil, io.EOF
	case stateHeader:
		return nil, nil, fmt.Errorf("%w: no pending entry header", ErrProtocol)
	}

	entry := r.cur
	content, err := r.readBody(entry)
	if err != nil {
		r.faultWith(err)
		return nil, entry, err
	}

	if entry.Kind == KindFile && entry.CRC32 != 0 {
		if got := crc32.ChecksumIEEE(content); got != entry.CRC32 {
			err := fmt.Errorf("%w: entry %q: got %08x, want %08x", ErrChecksum, entry.Name, got, entry.CRC32)
			r.faultWith(err)
			return nil, entry, err
		}
	}

	r.cur = nil
	r.state = stateHeader
	return content, entry, nil
}

// faultWith marks the session unusable. Called once a body read went
// wrong: the stream position is no longer trustworthy.
func (r *Reader) faultWith(err error) {
	r.state = stateFault
	r.fault = fmt.Errorf("%w (session faulted)", err)
}

// readBody dispatches on entry type and compression method.
func (r *Reader) readBody(entry *Entry) ([]byte, error) {
	if entry.Kind == KindDirectory {
		// Directories never carry a body; nothing is read.
		return nil, nil
	}

	streamed := r.curFlags&internal.FlagDataDescriptor != 0

	switch entry.Method {
	case Store:
		if streamed {
			// Stored bodies are delimited by their declared length
			// alone; without it the entry end cannot be found.
			return nil, fmt.Errorf("%w: stored entry %q with unknown size", ErrFormat, entry.Name)
		}
		content := make([]byte, entry.Size)
		if err := r.readFull(content); err != nil {
			return nil, fmt.Errorf("stored entry %q: %w", entry.Name, err)
		}
		return content, nil

	case Deflate:
		content, err := r.inflateBody(entry)
		if err != nil {
			return nil, err
		}
		if streamed {
			if err := r.resolveDescriptor(entry); err != nil {
				return nil, err
			}
		}
		return content, nil

	case Zstandard, XZ:
		if streamed {
			return nil, fmt.Errorf("%w: method %d entry %q with unknown compressed size", ErrAlgorithm, entry.Method, entry.Name)
		}
		return r.decodeWholeBody(entry)

	default:
		return nil, fmt.Errorf("%w: method %d for entry %q", ErrAlgorithm, entry.Method, entry.Name)
	}
}

// inflateBody runs the chunked raw-inflate pipeline for one entry.
// Compressed bytes are pulled in inflateChunkSize chunks; whatever the
// inflater leaves unconsumed in the final chunk is retained as the
// session's overflow buffer, in original order.
func (r *Reader) inflateBody(entry *Entry) ([]byte, error) {
	feeder := &chunkFeeder{r: r}
	fr := flate.NewReader(feeder)
	content, err := io.ReadAll(fr)
	closeErr := fr.Close()

	// The unread tail of the feeder's chunk belongs to the records
	// after this body. This must happen even on error paths so a
	// faulted session reports consistent state.
	r.overflow = append(feeder.rest(), r.overflow...)

	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: deflate stream of entry %q", ErrTruncated, entry.Name)
		}
		return nil, fmt.Errorf("%w: inflate entry %q: %v", ErrFormat, entry.Name, err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("%w: inflate entry %q: %v", ErrFormat, entry.Name, closeErr)
	}
	return content, nil
}

// resolveDescriptor reads the data descriptor that follows a streamed
// entry's body and overrides the header's checksum and sizes.
func (r *Reader) resolveDescriptor(entry *Entry) error {
	var sig [4]byte
	if err := r.readFull(sig[:]); err != nil {
		return fmt.Errorf("data descriptor: %w", err)
	}
	if binary.LittleEndian.Uint32(sig[:]) != internal.DataDescriptorSignature {
		return fmt.Errorf("%w: bad data descriptor signature after entry %q", ErrFormat, entry.Name)
	}

	body := make([]byte, internal.DataDescriptorLen(entry.Zip64))
	if err := r.readFull(body); err != nil {
		return fmt.Errorf("data descriptor: %w", err)
	}
	desc, err := internal.DecodeDataDescriptor(body, entry.Zip64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}

	entry.CRC32 = desc.CRC32
	entry.CompressedSize = int64(desc.CompressedSize)
	entry.Size = int64(desc.UncompressedSize)
	return nil
}

// decodeWholeBody handles methods whose frames cannot be delimited
// mid-stream (Zstandard, XZ): the compressed region is read by its
// declared length and decoded in one piece.
func (r *Reader) decodeWholeBody(entry *Entry) ([]byte, error) {
	compressed := make([]byte, entry.CompressedSize)
	if err := r.readFull(compressed); err != nil {
		return nil, fmt.Errorf("entry %q: %w", entry.Name, err)
	}

	switch entry.Method {
	case Zstandard:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd init: %w", err)
		}
		defer dec.Close()
		content, err := dec.DecodeAll(compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd entry %q: %v", ErrFormat, entry.Name, err)
		}
		return content, nil

	case XZ:
		xr, err := xz.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, fmt.Errorf("%w: xz entry %q: %v", ErrFormat, entry.Name, err)
		}
		content, err := io.ReadAll(xr)
		if err != nil {
			return nil, fmt.Errorf("%w: xz entry %q: %v", ErrFormat, entry.Name, err)
		}
		return content, nil
	}
	panic("unreachable")
}

// chunkFeeder serves the compressed stream to the inflater in bounded
// chunks pulled through the session's read primitive, so the overflow
// buffer is drained first. It implements io.ByteReader: with a byte
// source the inflater is guaranteed not to read past the end of the
// deflate stream, which keeps every over-read byte inside the feeder's
// chunk where rest() can recover it.
type chunkFeeder struct {
	r   *Reader
	buf [inflateChunkSize]byte
	len int
	off int
	err error
}

// fill loads the next chunk if the current one is exhausted.
func (f *chunkFeeder) fill() error {
	if f.off < f.len {
		return nil
	}
	if f.err != nil {
		return f.err
	}
	for {
		n, err := f.r.readChunk(f.buf[:])
		if n > 0 {
			f.off, f.len = 0, n
			f.err = err
			return nil
		}
		if err != nil {
			f.err = err
			return err
		}
	}
}

func (f *chunkFeeder) Read(p []byte) (int, error) {
	if err := f.fill(); err != nil {
		return 0, err
	}
	n := copy(p, f.buf[f.off:f.len])
	f.off += n
	return n, nil
}

func (f *chunkFeeder) ReadByte() (byte, error) {
	if err := f.fill(); err != nil {
		return 0, err
	}
	b := f.buf[f.off]
	f.off++
	return b, nil
}

// rest returns the bytes read from the source but not consumed by the
// inflater, in original order.
func (f *chunkFeeder) rest() []byte {
	tail := make([]byte, f.len-f.off)
	copy(tail, f.buf[f.off:f.len])
	f.off = f.len
	return tail
}
