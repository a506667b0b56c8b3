// Copyright 2025 The zipstream Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import (
	"math"
	"path"
	"strings"
)

const (
	// storeThreshold is the size below which deflate framing overhead
	// would net-expand the payload.
	storeThreshold = 80

	// maxStoredSize caps Store selection for pre-compressed formats.
	// Some consumers cannot reliably stream Stored entries past 2^31-1.
	maxStoredSize = math.MaxInt32
)

// storedExtensions lists formats that are already compressed, where
// running deflate again only burns CPU. Archives and lossy media
// containers dominate the set.
var storedExtensions = map[string]bool{
	".7z":   true,
	".avi":  true,
	".bz2":  true,
	".flac": true,
	".gif":  true,
	".gz":   true,
	".jpeg": true,
	".jpg":  true,
	".m4a":  true,
	".mkv":  true,
	".mov":  true,
	".mp3":  true,
	".mp4":  true,
	".ogg":  true,
	".png":  true,
	".rar":  true,
	".tgz":  true,
	".webm": true,
	".webp": true,
	".xz":   true,
	".zip":  true,
	".zst":  true,
}

// classify selects the compression method for a file entry. size is
// the uncompressed size, negative when unknown.
//
// The default is Deflate. Tiny payloads and known pre-compressed
// formats go Stored instead, except when the entry is too large to
// store safely. Unknown-size entries always deflate: a Stored entry
// cannot be framed with a data descriptor in this design, since the
// decode side reads Stored bodies by their declared length alone.
func classify(name string, size int64) CompressionMethod {
	if size < 0 {
		return Deflate
	}
	if size < storeThreshold {
		return Store
	}
	if storedExtensions[strings.ToLower(path.Ext(name))] {
		if size > maxStoredSize {
			return Deflate
		}
		return Store
	}
	return Deflate
}
