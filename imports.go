package macho

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/appsworld/go-macho-bind/pkg/bind"
)

// ErrNoDyldInfo is returned when an image has no LC_DYLD_INFO(_ONLY) command,
// e.g. because it uses chained fixups instead of bind opcodes.
var ErrNoDyldInfo = errors.New("no LC_DYLD_INFO or LC_DYLD_INFO_ONLY load command")

// BindLibraries returns the library table bind opcodes index by ordinal.
// Slot 0 is the image itself and slot N is the N-th dylib load command.
func (f *File) BindLibraries() []string {
	return append([]string{f.LibraryOrdinalName(0)}, f.ImportedLibraries()...)
}

// BindSegments returns the segment table bind opcodes index by segment
// index, in load command order.
func (f *File) BindSegments() []bind.Segment {
	var segs []bind.Segment
	for _, s := range f.Segments() {
		segs = append(segs, s.BindSegment())
	}
	return segs
}

// BindInterpreter returns an interpreter over the image's bind and lazy bind
// opcode streams. The image is read up to the end of the furthest stream; a
// stream that runs past the end of the file is reported when it is run.
func (f *File) BindInterpreter(opts ...bind.Option) (*bind.Interpreter, error) {
	info := f.DyldInfo()
	if info == nil {
		return nil, ErrNoDyldInfo
	}

	end := uint64(info.BindOff) + uint64(info.BindSize)
	if lazyEnd := uint64(info.LazyBindOff) + uint64(info.LazyBindSize); lazyEnd > end {
		end = lazyEnd
	}
	data, err := io.ReadAll(io.NewSectionReader(f.sr, 0, int64(end)))
	if err != nil {
		return nil, fmt.Errorf("failed to read bind opcodes: %v", err)
	}
	if uint64(len(data)) < end {
		f.log.Debug("bind opcodes extend past end of file",
			zap.Int("size", len(data)),
			zap.Uint64("end", end))
	}

	return bind.FromDyldInfo(data, info.DyldInfoCmd, append([]bind.Option{bind.WithLogger(f.log)}, opts...)...), nil
}

// Imports returns every symbol the image's bind and lazy bind opcodes import.
func (f *File) Imports(opts ...bind.Option) ([]bind.Import, error) {
	bi, err := f.BindInterpreter(opts...)
	if err != nil {
		return nil, err
	}
	imports, err := bi.Imports(f.BindLibraries(), f.BindSegments(), f.PointerSize())
	if err != nil {
		return nil, fmt.Errorf("failed to get imports: %w", err)
	}
	return imports, nil
}
