package bind

import (
	"fmt"
	"path/filepath"

	"github.com/appsworld/go-macho-bind/types"
)

// LazyImportSize is the Size reported for every lazy import. It does not
// follow the pointer width of the image.
const LazyImportSize = 8

// A Segment is the part of a segment load command the interpreter needs to
// turn a segment relative offset into a file offset and a virtual address.
type Segment struct {
	Name   string
	Offset uint64 // file offset of the segment
	Addr   uint64 // virtual address of the segment
}

// An Import is a symbol the dynamic linker binds into the image.
type Import struct {
	Name    string `json:"name"`
	Dylib   string `json:"dylib"`
	Lazy    bool   `json:"lazy"`
	Weak    bool   `json:"weak"`
	Offset  uint64 `json:"offset"`  // file offset of the bound pointer
	Address uint64 `json:"address"` // virtual address of the bound pointer
	Size    int    `json:"size"`
	Addend  int64  `json:"addend"`
	// StartOfSequenceOffset is the offset, relative to the start of the opcode
	// stream, of the BIND_OPCODE_DONE that began the sequence this import was
	// bound in (0 for the first sequence).
	StartOfSequenceOffset uint64 `json:"start_of_sequence_offset"`

	SegmentIndex  uint8          `json:"segment_index"`
	SegmentOffset uint64         `json:"segment_offset"`
	Ordinal       uint8          `json:"ordinal"`
	SpecialDylib  uint8          `json:"special_dylib"`
	Type          types.BindType `json:"type"`
}

func (i Import) String() string {
	var attrs string
	if i.Lazy {
		attrs += ", lazy"
	}
	if i.Weak {
		attrs += ", weak"
	}
	if i.Addend != 0 {
		attrs += fmt.Sprintf(", addend %#x", i.Addend)
	}
	return fmt.Sprintf("%#016x: %s (%s%s)", i.Address, i.Name, filepath.Base(i.Dylib), attrs)
}

// newImport resolves r against the segment and library tables. opOff is the
// file offset of the emitting opcode, used for error reporting.
func newImport(r *record, libs []string, segs []Segment, startOfSequence int, opOff int) (Import, error) {
	if int(r.segIndex) >= len(segs) {
		return Import{}, &IndexError{Off: int64(opOff), Kind: "segment", Index: int(r.segIndex), Len: len(segs)}
	}
	if int(r.ordinal) >= len(libs) {
		return Import{}, &IndexError{Off: int64(opOff), Kind: "library ordinal", Index: int(r.ordinal), Len: len(libs)}
	}
	seg := segs[r.segIndex]
	size := 0
	if r.lazy {
		size = LazyImportSize
	}
	return Import{
		Name:                  r.name,
		Dylib:                 libs[r.ordinal],
		Lazy:                  r.lazy,
		Weak:                  r.weak(),
		Offset:                seg.Offset + r.segOffset,
		Address:               seg.Addr + r.segOffset,
		Size:                  size,
		Addend:                r.addend,
		StartOfSequenceOffset: uint64(startOfSequence),
		SegmentIndex:          r.segIndex,
		SegmentOffset:         r.segOffset,
		Ordinal:               r.ordinal,
		SpecialDylib:          r.specialDylib,
		Type:                  r.bindType,
	}, nil
}
