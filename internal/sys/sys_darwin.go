//go:build darwin

// Copyright 2025 The zipstream Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sys

import (
	"os"
	"syscall"
	"time"
)

func statSys(info os.FileInfo) Metadata {
	s, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return Metadata{}
	}
	return Metadata{
		UID:        s.Uid,
		GID:        s.Gid,
		HasOwner:   true,
		AccessTime: time.Unix(s.Atimespec.Sec, s.Atimespec.Nsec),
		ChangeTime: time.Unix(s.Ctimespec.Sec, s.Ctimespec.Nsec),
	}
}
