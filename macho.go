// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Mach-O header data structures
// Originally at:
// http://developer.apple.com/mac/library/documentation/DeveloperTools/Conceptual/MachORuntime/Reference/reference.html (since deleted by Apple)
// Archived copy at:
// https://web.archive.org/web/20090819232456/http://developer.apple.com/documentation/DeveloperTools/Conceptual/MachORuntime/index.html
// For cloned PDF see:
// https://github.com/aidansteele/osx-abi-macho-file-format-reference

package macho

import (
	"fmt"

	"github.com/appsworld/go-macho-bind/types"
)

// A FatArchHeader represents a fat header for a specific image architecture.
// Universal headers are always big endian.
type FatArchHeader struct {
	CPU    types.CPU
	SubCPU types.CPUSubtype
	Offset uint32
	Size   uint32
	Align  uint32
}

func (h FatArchHeader) String() string {
	return fmt.Sprintf("%s offset=%#x size=%#x align=2^%d", h.CPU, h.Offset, h.Size, h.Align)
}

const (
	fatHeaderSize     = 2 * 4
	fatArchHeaderSize = 5 * 4
	// maxFatArches bounds the arch count of a universal header; real files
	// carry a handful.
	maxFatArches = 128
	// maxFatAlign is the largest alignment exponent accepted (32 KiB pages
	// are 2^15).
	maxFatAlign = 31
)
