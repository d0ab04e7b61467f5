// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package macho implements access to the parts of a Mach-O object file the
// dyld bind opcode interpreter needs: the header, segment commands, dylib
// commands and the LC_DYLD_INFO(_ONLY) command. Every other load command is
// kept as raw bytes.
package macho

// High level access to low level data structures.

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/appsworld/go-macho-bind/pkg/bind"
	"github.com/appsworld/go-macho-bind/types"
)

// A File represents an open Mach-O file.
type File struct {
	FileTOC

	sr     *io.SectionReader
	log    *zap.Logger
	closer io.Closer
}

type FileTOC struct {
	types.FileHeader
	ByteOrder binary.ByteOrder
	Loads     []Load
}

func (t *FileTOC) String() string {
	s := fmt.Sprintf("Magic         = %s\n", t.Magic)
	s += fmt.Sprintf("Type          = %s\n", t.Type)
	s += fmt.Sprintf("CPU           = %s\n", t.CPU)
	s += fmt.Sprintf("Commands      = %d (Size: %d)\n", t.NCommands, t.SizeCommands)
	s += fmt.Sprintf("Flags         = %s\n", t.Flags)
	return s + t.LoadsString()
}

func pad(length int) string {
	if length > 0 {
		return strings.Repeat(" ", length)
	}
	return " "
}

// LoadsString returns a string representation of all the MachO's load commands
func (t *FileTOC) LoadsString() string {
	var loadsStr string
	for i, l := range t.Loads {
		if l == nil {
			continue
		}
		loadsStr += fmt.Sprintf("%03d: %s%s%v\n", i, l.Command(), pad(28-len(l.Command().String())), l)
	}
	return loadsStr
}

// FormatError is returned by some operations if the data does
// not have the correct format for an object file.
type FormatError struct {
	off int64
	msg string
	val interface{}
}

func (e *FormatError) Error() string {
	msg := e.msg
	if e.val != nil {
		msg += fmt.Sprintf(" '%v'", e.val)
	}
	msg += fmt.Sprintf(" in record at byte %#x", e.off)
	return msg
}

func loadInSlice(c types.LoadCmd, list []types.LoadCmd) bool {
	for _, b := range list {
		if b == c {
			return true
		}
	}
	return false
}

// FileConfig is a MachO file config object
type FileConfig struct {
	// LoadFilter limits decoding to the listed load commands. Commands that
	// are filtered out are left nil in Loads.
	LoadFilter []types.LoadCmd
	// Logger receives debug output about skipped load commands and is
	// handed to interpreters created by File.BindInterpreter.
	Logger *zap.Logger
}

// Open opens the named file using os.Open and prepares it for use as a Mach-O binary.
func Open(name string, config ...FileConfig) (*File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	ff, err := NewFile(f, config...)
	if err != nil {
		f.Close()
		return nil, err
	}
	ff.closer = f
	return ff, nil
}

// Close closes the File.
// If the File was created using NewFile directly instead of Open,
// Close has no effect.
func (f *File) Close() error {
	var err error
	if f.closer != nil {
		err = f.closer.Close()
		f.closer = nil
	}
	return err
}

// NewFile creates a new File for accessing a Mach-O binary in an underlying reader.
// The Mach-O binary is expected to start at position 0 in the ReaderAt.
func NewFile(r io.ReaderAt, config ...FileConfig) (*File, error) {
	var loadsFilter []types.LoadCmd

	f := new(File)
	f.sr = io.NewSectionReader(r, 0, 1<<63-1)
	f.log = zap.NewNop()

	if config != nil {
		loadsFilter = config[0].LoadFilter
		if config[0].Logger != nil {
			f.log = config[0].Logger
		}
	}

	// Read and decode Mach magic to determine byte order, size.
	// Magic32 and Magic64 differ only in the bottom bit.
	var ident [4]byte
	if _, err := r.ReadAt(ident[0:], 0); err != nil {
		return nil, fmt.Errorf("failed to read magic: %v", err)
	}
	be := binary.BigEndian.Uint32(ident[0:])
	le := binary.LittleEndian.Uint32(ident[0:])
	switch types.Magic32.Int() &^ 1 {
	case be &^ 1:
		f.ByteOrder = binary.BigEndian
		f.Magic = types.Magic(be)
	case le &^ 1:
		f.ByteOrder = binary.LittleEndian
		f.Magic = types.Magic(le)
	default:
		if be == types.MagicFat.Int() {
			return nil, &FormatError{0, "universal binary, use NewFatFile", nil}
		}
		return nil, &FormatError{0, "invalid magic number", be}
	}

	// Read entire file header. The 32-bit header has no reserved word.
	offset := int64(types.FileHeaderSize32)
	if f.Magic == types.Magic64 {
		offset = types.FileHeaderSize64
	}
	hdr := make([]byte, types.FileHeaderSize64)
	if _, err := r.ReadAt(hdr[:offset], 0); err != nil {
		return nil, fmt.Errorf("failed to read header: %v", err)
	}
	if err := binary.Read(bytes.NewReader(hdr), f.ByteOrder, &f.FileHeader); err != nil {
		return nil, fmt.Errorf("failed to decode header: %v", err)
	}

	// Then load commands.
	dat, err := io.ReadAll(io.NewSectionReader(r, offset, int64(f.SizeCommands)))
	if err != nil {
		return nil, fmt.Errorf("failed to read load commands: %v", err)
	}
	if len(dat) < int(f.SizeCommands) {
		return nil, &FormatError{offset, "load commands extend past end of file", f.SizeCommands}
	}

	bo := f.ByteOrder
	nseg := 0
	for i := uint32(0); i < f.NCommands; i++ {
		// Each load command begins with uint32 command and length.
		if len(dat) < 8 {
			return nil, &FormatError{offset, "command block too small", nil}
		}
		cmd, siz := types.LoadCmd(bo.Uint32(dat[0:4])), bo.Uint32(dat[4:8])
		if siz < 8 || siz > uint32(len(dat)) {
			return nil, &FormatError{offset, "invalid command block size", siz}
		}

		var cmddat []byte
		cmddat, dat = dat[0:siz], dat[siz:]
		cmdoff := offset
		offset += int64(siz)

		// segments keep their index even when filtered out
		isSeg := cmd == types.LC_SEGMENT || cmd == types.LC_SEGMENT_64

		// skip unwanted load commands
		if len(loadsFilter) > 0 && !loadInSlice(cmd, loadsFilter) {
			f.Loads = append(f.Loads, nil)
			if isSeg {
				nseg++
			}
			continue
		}

		var l Load
		switch cmd {
		default:
			f.log.Debug("keeping load command as raw bytes",
				zap.Stringer("cmd", cmd),
				zap.Int64("offset", cmdoff),
				zap.Uint32("size", siz))
			l = LoadCmdBytes{cmd, LoadBytes(cmddat)}
		case types.LC_SEGMENT:
			var seg32 types.Segment32
			if err := binary.Read(bytes.NewReader(cmddat), bo, &seg32); err != nil {
				return nil, fmt.Errorf("failed to read LC_SEGMENT: %v", err)
			}
			s := new(Segment)
			s.LoadBytes = cmddat
			s.LoadCmd = cmd
			s.Len = siz
			s.Name = cstring(seg32.Name[0:])
			s.Addr = uint64(seg32.Addr)
			s.Memsz = uint64(seg32.Memsz)
			s.Offset = uint64(seg32.Offset)
			s.Filesz = uint64(seg32.Filesz)
			s.Maxprot = seg32.Maxprot
			s.Prot = seg32.Prot
			s.Nsect = seg32.Nsect
			s.Flag = seg32.Flag
			l = f.pushSegment(s, r, nseg)
			nseg++
		case types.LC_SEGMENT_64:
			var seg64 types.Segment64
			if err := binary.Read(bytes.NewReader(cmddat), bo, &seg64); err != nil {
				return nil, fmt.Errorf("failed to read LC_SEGMENT_64: %v", err)
			}
			s := new(Segment)
			s.LoadBytes = cmddat
			s.LoadCmd = cmd
			s.Len = siz
			s.Name = cstring(seg64.Name[0:])
			s.Addr = seg64.Addr
			s.Memsz = seg64.Memsz
			s.Offset = seg64.Offset
			s.Filesz = seg64.Filesz
			s.Maxprot = seg64.Maxprot
			s.Prot = seg64.Prot
			s.Nsect = seg64.Nsect
			s.Flag = seg64.Flag
			l = f.pushSegment(s, r, nseg)
			nseg++
		case types.LC_LOAD_DYLIB:
			d, err := readDylib(cmd, cmddat, bo, cmdoff)
			if err != nil {
				return nil, err
			}
			l = d
		case types.LC_ID_DYLIB:
			d, err := readDylib(cmd, cmddat, bo, cmdoff)
			if err != nil {
				return nil, err
			}
			l = (*DylibID)(d)
		case types.LC_LOAD_WEAK_DYLIB:
			d, err := readDylib(cmd, cmddat, bo, cmdoff)
			if err != nil {
				return nil, err
			}
			l = (*WeakDylib)(d)
		case types.LC_REEXPORT_DYLIB:
			d, err := readDylib(cmd, cmddat, bo, cmdoff)
			if err != nil {
				return nil, err
			}
			l = (*ReExportDylib)(d)
		case types.LC_LAZY_LOAD_DYLIB:
			d, err := readDylib(cmd, cmddat, bo, cmdoff)
			if err != nil {
				return nil, err
			}
			l = (*LazyLoadDylib)(d)
		case types.LC_LOAD_UPWARD_DYLIB:
			d, err := readDylib(cmd, cmddat, bo, cmdoff)
			if err != nil {
				return nil, err
			}
			l = (*UpwardDylib)(d)
		case types.LC_DYLD_INFO, types.LC_DYLD_INFO_ONLY:
			d := new(DyldInfo)
			if err := binary.Read(bytes.NewReader(cmddat), bo, &d.DyldInfoCmd); err != nil {
				return nil, fmt.Errorf("failed to read %s: %v", cmd, err)
			}
			d.LoadBytes = LoadBytes(cmddat)
			l = d
		}
		f.Loads = append(f.Loads, l)
	}

	return f, nil
}

func (f *File) pushSegment(s *Segment, r io.ReaderAt, index int) *Segment {
	s.Index = index
	s.sr = io.NewSectionReader(r, int64(s.Offset), int64(s.Filesz))
	s.ReaderAt = s.sr
	return s
}

func readDylib(cmd types.LoadCmd, cmddat []byte, bo binary.ByteOrder, offset int64) (*Dylib, error) {
	var hdr types.DylibCmd
	if err := binary.Read(bytes.NewReader(cmddat), bo, &hdr); err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", cmd, err)
	}
	if hdr.Name < types.DylibCmdSize || hdr.Name >= uint32(len(cmddat)) {
		return nil, &FormatError{offset, "invalid name in dynamic library command", hdr.Name}
	}
	l := new(Dylib)
	l.DylibCmd = hdr
	l.Name = cstring(cmddat[hdr.Name:])
	l.Time = hdr.Time
	l.CurrentVersion = hdr.CurrentVersion.String()
	l.CompatVersion = hdr.CompatVersion.String()
	l.LoadBytes = LoadBytes(cmddat)
	return l, nil
}

func cstring(b []byte) string {
	i := bytes.IndexByte(b, 0)
	if i == -1 {
		i = len(b)
	}
	return string(b[0:i])
}

func (f *File) is64bit() bool {
	return f.FileHeader.Magic == types.Magic64
}

// PointerSize returns the width of a pointer in the image. arm64_32 images
// use the 32-bit header and so report 4.
func (f *File) PointerSize() bind.PointerSize {
	if f.is64bit() {
		return bind.Pointer64
	}
	return bind.Pointer32
}

// ReadAt reads from the image, offsets are relative to its first byte.
func (f *File) ReadAt(p []byte, off int64) (n int, err error) {
	return f.sr.ReadAt(p, off)
}

// Segment returns the first Segment with the given name, or nil if no such segment exists.
func (f *File) Segment(name string) *Segment {
	for _, l := range f.Loads {
		if s, ok := l.(*Segment); ok && s.Name == name {
			return s
		}
	}
	return nil
}

// Segments returns all Segments.
func (f *File) Segments() []*Segment {
	var segs []*Segment
	for _, l := range f.Loads {
		if s, ok := l.(*Segment); ok {
			segs = append(segs, s)
		}
	}
	return segs
}

// DylibID returns the dylib ID load command, or nil if no dylib ID exists.
func (f *File) DylibID() *DylibID {
	for _, l := range f.Loads {
		if s, ok := l.(*DylibID); ok {
			return s
		}
	}
	return nil
}

// DyldInfo returns the dyld info load command, or nil if no dyld info exists.
func (f *File) DyldInfo() *DyldInfo {
	for _, l := range f.Loads {
		if s, ok := l.(*DyldInfo); ok {
			return s
		}
	}
	return nil
}

// ImportedLibraries returns the paths of all libraries
// referred to by the binary f that are expected to be
// linked with the binary at dynamic link time, in
// library ordinal order.
func (f *File) ImportedLibraries() []string {
	var all []string
	for _, l := range f.Loads {
		if name, ok := dylibName(l); ok {
			all = append(all, name)
		}
	}
	return all
}

// LibraryOrdinalName returns the depancy library oridinal's name
func (f *File) LibraryOrdinalName(libraryOrdinal int) string {
	dylibs := f.ImportedLibraries()

	if libraryOrdinal > 0 {
		if libraryOrdinal > len(dylibs) {
			return "ordinal-too-large"
		}
		return shortName(dylibs[libraryOrdinal-1])
	}

	switch libraryOrdinal {
	case types.BIND_SPECIAL_DYLIB_SELF:
		return "this-image"
	case types.BIND_SPECIAL_DYLIB_MAIN_EXECUTABLE:
		return "main-executable"
	case types.BIND_SPECIAL_DYLIB_FLAT_LOOKUP:
		return "flat-namespace"
	case types.BIND_SPECIAL_DYLIB_WEAK_LOOKUP:
		return "weak-coalesce"
	default:
		return "unknown-ordinal"
	}
}
