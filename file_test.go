// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package macho

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/appsworld/go-macho-bind/pkg/bind"
	"github.com/appsworld/go-macho-bind/types"
)

const (
	linkeditOff = 0x2000
	dataOff     = 0x1000
)

// testImage describes a synthetic Mach-O: __TEXT and __DATA segments, two
// dylibs, an LC_UUID and (optionally) LC_DYLD_INFO_ONLY whose opcode
// streams sit at linkeditOff.
type testImage struct {
	bo       binary.ByteOrder
	cpu      types.CPU
	base     uint64
	bind     []byte
	lazy     []byte
	noInfo   bool
	bindSize uint32 // overrides len(bind) when set
}

func (ti testImage) is64() bool { return ti.cpu.Is64Bit() }

func (ti testImage) build(t *testing.T) []byte {
	t.Helper()

	var loads bytes.Buffer
	ncmds := uint32(0)
	put := func(v any) {
		if err := binary.Write(&loads, ti.bo, v); err != nil {
			t.Fatalf("binary.Write(%T) error = %v", v, err)
		}
	}
	align := uint32(4)
	if ti.is64() {
		align = 8
	}

	segment := func(name string, off, size uint64, vmaddr uint64) {
		ncmds++
		var n [16]byte
		copy(n[:], name)
		if ti.is64() {
			put(types.Segment64{LoadCmd: types.LC_SEGMENT_64, Len: types.Segment64Size, Name: n,
				Addr: vmaddr, Memsz: size, Offset: off, Filesz: size, Maxprot: 7, Prot: 3})
			return
		}
		put(types.Segment32{LoadCmd: types.LC_SEGMENT, Len: types.Segment32Size, Name: n,
			Addr: uint32(vmaddr), Memsz: uint32(size), Offset: uint32(off), Filesz: uint32(size), Maxprot: 7, Prot: 3})
	}
	dylib := func(cmd types.LoadCmd, name string) {
		ncmds++
		size := (types.DylibCmdSize + uint32(len(name)) + 1 + align - 1) &^ (align - 1)
		put(types.DylibCmd{LoadCmd: cmd, Len: size, Name: types.DylibCmdSize, Time: 2,
			CurrentVersion: 0x10000, CompatVersion: 0x10000})
		loads.WriteString(name)
		loads.Write(make([]byte, size-types.DylibCmdSize-uint32(len(name))))
	}

	segment("__TEXT", 0, dataOff, ti.base)
	segment("__DATA", dataOff, dataOff, ti.base+dataOff)
	dylib(types.LC_LOAD_DYLIB, "/usr/lib/libSystem.B.dylib")
	dylib(types.LC_LOAD_WEAK_DYLIB, "/usr/lib/libobjc.A.dylib")
	ncmds++
	put(uint32(types.LC_UUID))
	put(uint32(24))
	loads.Write(bytes.Repeat([]byte{0xab}, 16))
	if !ti.noInfo {
		ncmds++
		bindSize := uint32(len(ti.bind))
		if ti.bindSize != 0 {
			bindSize = ti.bindSize
		}
		put(types.DyldInfoCmd{
			LoadCmd:      types.LC_DYLD_INFO_ONLY,
			Len:          types.DyldInfoCmdSize,
			BindOff:      linkeditOff,
			BindSize:     bindSize,
			LazyBindOff:  linkeditOff + uint32(len(ti.bind)),
			LazyBindSize: uint32(len(ti.lazy)),
		})
	}

	hdr := types.FileHeader{
		Magic:        types.Magic32,
		CPU:          ti.cpu,
		Type:         types.MH_EXECUTE,
		NCommands:    ncmds,
		SizeCommands: uint32(loads.Len()),
		Flags:        types.DyldLink | types.TwoLevel | types.PIE,
	}
	hdrSize := types.FileHeaderSize32
	if ti.is64() {
		hdr.Magic = types.Magic64
		hdrSize = types.FileHeaderSize64
	}

	var out bytes.Buffer
	if err := binary.Write(&out, ti.bo, hdr); err != nil {
		t.Fatalf("binary.Write(header) error = %v", err)
	}
	out.Truncate(hdrSize)
	out.Write(loads.Bytes())
	if out.Len() > linkeditOff {
		t.Fatalf("load commands overrun the linkedit offset")
	}
	out.Write(make([]byte, linkeditOff-out.Len()))
	out.Write(ti.bind)
	out.Write(ti.lazy)
	return out.Bytes()
}

// streams binds a weak objc class in the bind stream and _printf in the lazy
// bind stream.
func streams() (eager, lazy []byte) {
	eager = []byte{
		// SET_DYLIB_ORDINAL_IMM(2)
		0x12,
		// SET_SYMBOL_TRAILING_FLAGS_IMM(weak, _NSObj)
		0x41, '_', 'N', 'S', 'O', 'b', 'j', 0x00,
		// SET_TYPE_IMM(pointer)
		0x51,
		// SET_SEGMENT_AND_OFFSET_ULEB(1, 0x10)
		0x71, 0x10,
		// DO_BIND, DONE
		0x90, 0x00,
	}
	lazy = []byte{
		// SET_SEGMENT_AND_OFFSET_ULEB(1, 0x20)
		0x71, 0x20,
		// SET_DYLIB_ORDINAL_IMM(1)
		0x11,
		// SET_SYMBOL_TRAILING_FLAGS_IMM(0, _printf)
		0x40, '_', 'p', 'r', 'i', 'n', 't', 'f', 0x00,
		// DO_BIND, DONE
		0x90, 0x00,
	}
	return eager, lazy
}

func TestNewFile(t *testing.T) {
	eager, lazy := streams()
	tests := []struct {
		name string
		img  testImage
		ptr  bind.PointerSize
	}{
		{"x86_64", testImage{bo: binary.LittleEndian, cpu: types.CPUAmd64, base: 0x100000000, bind: eager, lazy: lazy}, bind.Pointer64},
		{"i386", testImage{bo: binary.LittleEndian, cpu: types.CPU386, base: 0x1000, bind: eager, lazy: lazy}, bind.Pointer32},
		{"ppc", testImage{bo: binary.BigEndian, cpu: types.CPUPpc, base: 0x1000, bind: eager, lazy: lazy}, bind.Pointer32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFile(bytes.NewReader(tt.img.build(t)))
			if err != nil {
				t.Fatalf("NewFile() error = %v", err)
			}
			if f.CPU != tt.img.cpu || f.NCommands != 6 || !f.Flags.TwoLevel() {
				t.Errorf("header = %+v", f.FileHeader)
			}
			if f.PointerSize() != tt.ptr {
				t.Errorf("PointerSize() = %d, want %d", f.PointerSize(), tt.ptr)
			}

			segs := f.Segments()
			if len(segs) != 2 || segs[1].Name != "__DATA" || segs[1].Index != 1 || segs[1].Addr != tt.img.base+dataOff {
				t.Fatalf("Segments() = %v", segs)
			}
			if f.Segment("__TEXT") != segs[0] {
				t.Errorf("Segment(__TEXT) = %v, want %v", f.Segment("__TEXT"), segs[0])
			}

			wantLibs := []string{"/usr/lib/libSystem.B.dylib", "/usr/lib/libobjc.A.dylib"}
			if diff := cmp.Diff(wantLibs, f.ImportedLibraries()); diff != "" {
				t.Errorf("ImportedLibraries() mismatch (-want +got):\n%s", diff)
			}
			if wd, ok := f.Loads[3].(*WeakDylib); !ok || wd.CurrentVersion != "1.0.0" {
				t.Errorf("Loads[3] = %#v, want *WeakDylib 1.0.0", f.Loads[3])
			}
			if raw, ok := f.Loads[4].(LoadCmdBytes); !ok || raw.Command() != types.LC_UUID || len(raw.Raw()) != 24 {
				t.Errorf("Loads[4] = %#v, want raw LC_UUID", f.Loads[4])
			}

			info := f.DyldInfo()
			if info == nil || !info.Only() || info.BindOff != linkeditOff || info.LazyBindSize != uint32(len(lazy)) {
				t.Fatalf("DyldInfo() = %v", info)
			}
		})
	}
}

func TestLibraryOrdinalName(t *testing.T) {
	f, err := NewFile(bytes.NewReader(testImage{bo: binary.LittleEndian, cpu: types.CPUArm64}.build(t)))
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	tests := []struct {
		ordinal int
		want    string
	}{
		{1, "libSystem.B.dylib"},
		{2, "libobjc.A.dylib"},
		{3, "ordinal-too-large"},
		{0, "this-image"},
		{-1, "main-executable"},
		{-2, "flat-namespace"},
		{-3, "weak-coalesce"},
		{-4, "unknown-ordinal"},
	}
	for _, tt := range tests {
		if got := f.LibraryOrdinalName(tt.ordinal); got != tt.want {
			t.Errorf("LibraryOrdinalName(%d) = %q, want %q", tt.ordinal, got, tt.want)
		}
	}
	if diff := cmp.Diff([]string{"this-image", "/usr/lib/libSystem.B.dylib", "/usr/lib/libobjc.A.dylib"}, f.BindLibraries()); diff != "" {
		t.Errorf("BindLibraries() mismatch (-want +got):\n%s", diff)
	}
}

func TestImports(t *testing.T) {
	eager, lazy := streams()
	tests := []struct {
		name string
		img  testImage
		opts []bind.Option
	}{
		{"arm64", testImage{bo: binary.LittleEndian, cpu: types.CPUArm64, base: 0x100000000, bind: eager, lazy: lazy}, nil},
		{"arm64 concurrent", testImage{bo: binary.LittleEndian, cpu: types.CPUArm64, base: 0x100000000, bind: eager, lazy: lazy}, []bind.Option{bind.WithConcurrentPasses()}},
		{"ppc", testImage{bo: binary.BigEndian, cpu: types.CPUPpc, base: 0x4000, bind: eager, lazy: lazy}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFile(bytes.NewReader(tt.img.build(t)))
			if err != nil {
				t.Fatalf("NewFile() error = %v", err)
			}
			got, err := f.Imports(tt.opts...)
			if err != nil {
				t.Fatalf("Imports() error = %v", err)
			}
			data := tt.img.base + dataOff
			want := []bind.Import{
				{
					Name:          "_NSObj",
					Dylib:         "/usr/lib/libobjc.A.dylib",
					Weak:          true,
					Offset:        dataOff + 0x10,
					Address:       data + 0x10,
					SegmentIndex:  1,
					SegmentOffset: 0x10,
					Ordinal:       2,
					SpecialDylib:  1,
					Type:          types.BIND_TYPE_POINTER,
				},
				{
					Name:          "_printf",
					Dylib:         "/usr/lib/libSystem.B.dylib",
					Lazy:          true,
					Offset:        dataOff + 0x20,
					Address:       data + 0x20,
					Size:          bind.LazyImportSize,
					SegmentIndex:  1,
					SegmentOffset: 0x20,
					Ordinal:       1,
					SpecialDylib:  1,
					Type:          types.BIND_TYPE_POINTER,
				},
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Imports() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestImportsErrors(t *testing.T) {
	eager, lazy := streams()

	f, err := NewFile(bytes.NewReader(testImage{bo: binary.LittleEndian, cpu: types.CPUAmd64, noInfo: true}.build(t)))
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	if _, err := f.Imports(); !errors.Is(err, ErrNoDyldInfo) {
		t.Errorf("Imports() error = %v, want ErrNoDyldInfo", err)
	}

	// bind stream claims to run past the end of the file
	img := testImage{bo: binary.LittleEndian, cpu: types.CPUAmd64, bind: eager, lazy: lazy, bindSize: 0x1000}
	f, err = NewFile(bytes.NewReader(img.build(t)))
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	var de *bind.DecodeError
	if _, err := f.Imports(); !errors.As(err, &de) {
		t.Errorf("Imports() error = %v, want *bind.DecodeError", err)
	}

	// ordinal 3 has no dylib load command behind it
	bad := append([]byte{}, eager...)
	bad[0] = 0x13
	f, err = NewFile(bytes.NewReader(testImage{bo: binary.LittleEndian, cpu: types.CPUAmd64, bind: bad}.build(t)))
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	var ie *bind.IndexError
	if _, err := f.Imports(); !errors.As(err, &ie) || ie.Index != 3 || ie.Len != 3 {
		t.Errorf("Imports() error = %v, want library ordinal IndexError", err)
	}
}

func TestNewFileErrors(t *testing.T) {
	good := testImage{bo: binary.LittleEndian, cpu: types.CPUAmd64}.build(t)

	tests := []struct {
		name string
		data []byte
	}{
		{"bad magic", []byte{0xde, 0xad, 0xbe, 0xef, 0, 0, 0, 0}},
		{"universal", []byte{0xca, 0xfe, 0xba, 0xbe, 0, 0, 0, 1}},
		{"truncated load commands", good[:types.FileHeaderSize64+40]},
		{"command larger than block", func() []byte {
			b := append([]byte{}, good...)
			binary.LittleEndian.PutUint32(b[types.FileHeaderSize64+4:], 0x10000)
			return b
		}()},
		{"dylib name outside command", func() []byte {
			b := append([]byte{}, good...)
			dylib := types.FileHeaderSize64 + 2*types.Segment64Size
			binary.LittleEndian.PutUint32(b[dylib+8:], 0x400)
			return b
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFile(bytes.NewReader(tt.data))
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Errorf("NewFile() error = %v, want *FormatError", err)
			}
		})
	}

	if _, err := NewFile(bytes.NewReader(good[:2])); err == nil {
		t.Errorf("NewFile() on a two byte file succeeded")
	}
}

func TestLoadFilter(t *testing.T) {
	data := testImage{bo: binary.LittleEndian, cpu: types.CPUAmd64}.build(t)
	f, err := NewFile(bytes.NewReader(data), FileConfig{LoadFilter: []types.LoadCmd{types.LC_SEGMENT_64, types.LC_DYLD_INFO_ONLY}})
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	if len(f.Loads) != 6 || f.Loads[2] != nil || f.Loads[4] != nil {
		t.Errorf("Loads = %v, want dylibs and LC_UUID filtered out", f.Loads)
	}
	if len(f.ImportedLibraries()) != 0 || len(f.Segments()) != 2 || f.DyldInfo() == nil {
		t.Errorf("filtered file: libs=%v segs=%v info=%v", f.ImportedLibraries(), f.Segments(), f.DyldInfo())
	}
}
