package macho

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/appsworld/go-macho-bind/types"
)

// ErrNotFat is returned from NewFatFile or OpenFat when the file is not a
// universal binary but may be a thin binary, based on its magic number.
var ErrNotFat = &FormatError{0, "not a fat Mach-O file", nil}

// A FatFile is a Mach-O universal binary that contains at least one architecture.
type FatFile struct {
	Magic  types.Magic
	Arches []FatArch
	closer io.Closer
}

// A FatArch is a Mach-O File inside a FatFile.
type FatArch struct {
	FatArchHeader
	*File
}

// NewFatFile creates a new FatFile for accessing all the Mach-O images in a
// universal binary. The Mach-O binary is expected to start at position 0 in
// the ReaderAt.
func NewFatFile(r io.ReaderAt, config ...FileConfig) (*FatFile, error) {
	var ff FatFile
	sr := io.NewSectionReader(r, 0, 1<<63-1)

	// Read the fat_header struct, which is always in big endian.
	// Start with the magic number.
	var hdr [fatHeaderSize]byte
	if _, err := io.ReadFull(sr, hdr[:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("failed to read universal header: %w", err)
	}
	ff.Magic = types.Magic(binary.BigEndian.Uint32(hdr[0:]))
	if ff.Magic != types.MagicFat {
		// See if this is a Mach-O file via its magic number. The most
		// significant byte of a thin magic is 0xfe or 0xce/0xcf.
		le := binary.LittleEndian.Uint32(hdr[0:])
		be := uint32(ff.Magic)
		if be&^1 == types.Magic32.Int()&^1 || le&^1 == types.Magic32.Int()&^1 {
			return nil, ErrNotFat
		}
		return nil, &FormatError{0, "invalid magic number", be}
	}

	narch := binary.BigEndian.Uint32(hdr[4:])
	if narch < 1 {
		return nil, &FormatError{4, "file contains no images", nil}
	}
	if narch > maxFatArches {
		return nil, &FormatError{4, "too many images in universal header", narch}
	}

	dat := make([]byte, narch*fatArchHeaderSize)
	if _, err := io.ReadFull(sr, dat); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("failed to read universal arch headers: %w", err)
	}

	seen := make(map[types.CPU]map[types.CPUSubtype]bool)
	ff.Arches = make([]FatArch, 0, narch)
	for i := uint32(0); i < narch; i++ {
		off := int64(fatHeaderSize + i*fatArchHeaderSize)
		b := dat[i*fatArchHeaderSize:]
		fa := FatArch{FatArchHeader: FatArchHeader{
			CPU:    types.CPU(binary.BigEndian.Uint32(b[0:])),
			SubCPU: types.CPUSubtype(binary.BigEndian.Uint32(b[4:])),
			Offset: binary.BigEndian.Uint32(b[8:]),
			Size:   binary.BigEndian.Uint32(b[12:]),
			Align:  binary.BigEndian.Uint32(b[16:]),
		}}
		if fa.Align > maxFatAlign {
			return nil, &FormatError{off, "alignment too large", fa.Align}
		}

		sub := fa.SubCPU & types.CpuSubtypeMask
		if seen[fa.CPU][sub] {
			return nil, &FormatError{off, "duplicate architecture", fa.CPU}
		}
		if seen[fa.CPU] == nil {
			seen[fa.CPU] = make(map[types.CPUSubtype]bool)
		}
		seen[fa.CPU][sub] = true

		// Extract the Mach-O header for this image.
		var err error
		fa.File, err = NewFile(io.NewSectionReader(r, int64(fa.Offset), int64(fa.Size)), config...)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s image: %w", fa.CPU, err)
		}
		if fa.File.CPU != fa.CPU {
			return nil, &FormatError{off, fmt.Sprintf("image cpu %s does not match universal header", fa.File.CPU), fa.CPU}
		}

		ff.Arches = append(ff.Arches, fa)
	}

	return &ff, nil
}

// OpenFat opens the named file using os.Open and prepares it for use as a Mach-O
// universal binary.
func OpenFat(name string, config ...FileConfig) (*FatFile, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	ff, err := NewFatFile(f, config...)
	if err != nil {
		f.Close()
		return nil, err
	}
	ff.closer = f
	return ff, nil
}

// Arch returns the first image for cpu, or nil.
func (ff *FatFile) Arch(cpu types.CPU) *FatArch {
	for i := range ff.Arches {
		if ff.Arches[i].CPU == cpu {
			return &ff.Arches[i]
		}
	}
	return nil
}

// Close closes the FatFile.
// If the FatFile was created using NewFatFile directly instead of OpenFat,
// Close has no effect.
func (ff *FatFile) Close() error {
	var err error
	if ff.closer != nil {
		err = ff.closer.Close()
		ff.closer = nil
	}
	return err
}

// IsNotFat reports whether err means the file is a thin Mach-O.
func IsNotFat(err error) bool {
	return errors.Is(err, ErrNotFat)
}
