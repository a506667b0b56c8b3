// Copyright 2025 The zipstream Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		size     int64
		expected CompressionMethod
	}{
		{"tiny file", "readme.txt", 10, Store},
		{"below threshold", "readme.txt", 79, Store},
		{"at threshold", "readme.txt", 80, Deflate},
		{"regular text", "main.go", 5000, Deflate},
		{"jpeg", "photo.jpg", 1 << 20, Store},
		{"uppercase extension", "PHOTO.JPG", 1 << 20, Store},
		{"huge jpeg", "photo.jpg", maxStoredSize + 1, Deflate},
		{"nested archive", "backup/data.zip", 1 << 24, Store},
		{"unknown size", "data.bin", SizeUnknown, Deflate},
		{"unknown size jpeg", "photo.jpg", SizeUnknown, Deflate},
		{"empty file", "empty", 0, Store},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.filename, tt.size); got != tt.expected {
				t.Errorf("classify(%q, %d) = %d, expected %d", tt.filename, tt.size, got, tt.expected)
			}
		})
	}
}
