//go:build !linux && !darwin

// Copyright 2025 The zipstream Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sys

import "os"

func statSys(os.FileInfo) Metadata {
	return Metadata{}
}
