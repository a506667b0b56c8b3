// Copyright 2025 The zipstream Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import (
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

// Compression level used for DEFLATE output. Level 6 balances speed
// and ratio and matches what most archivers write by default.
const deflateLevel = 6

// compressor encodes entry content into its wire representation and
// reports the number of uncompressed bytes consumed.
type compressor interface {
	Compress(src io.Reader, dest io.Writer) (int64, error)
}

// storedCompressor implements the Store method (no compression).
type storedCompressor struct{}

func (storedCompressor) Compress(src io.Reader, dest io.Writer) (int64, error) {
	return io.Copy(dest, src)
}

// deflateCompressor implements DEFLATE with writer pooling.
type deflateCompressor struct {
	pool sync.Pool
}

func newDeflateCompressor(level int) *deflateCompressor {
	return &deflateCompressor{
		pool: sync.Pool{
			New: func() any {
				w, _ := flate.NewWriter(io.Discard, level)
				return w
			},
		},
	}
}

func (d *deflateCompressor) Compress(src io.Reader, dest io.Writer) (int64, error) {
	w := d.pool.Get().(*flate.Writer)
	defer d.pool.Put(w)

	w.Reset(dest)

	n, err := io.Copy(w, src)
	if err != nil {
		return n, err
	}
	if err := w.Close(); err != nil {
		return n, err
	}
	return n, nil
}
