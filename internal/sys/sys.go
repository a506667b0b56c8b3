// Copyright 2025 The zipstream Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sys extracts platform file metadata that fs.FileInfo does
// not expose: UNIX ownership and the access/change timestamps.
package sys

import (
	"os"
	"time"
)

// Metadata holds the stat fields beyond what fs.FileInfo carries.
// HasOwner reports whether UID and GID are meaningful on this
// platform.
type Metadata struct {
	UID      uint32
	GID      uint32
	HasOwner bool

	AccessTime time.Time
	ChangeTime time.Time
}

// Stat extracts platform metadata from a stat result. On platforms
// without a UNIX stat structure the zero value is returned.
func Stat(info os.FileInfo) Metadata {
	return statSys(info)
}
