// Package bind interprets the dyld bind opcode streams referenced by a
// LC_DYLD_INFO(_ONLY) load command and reports the symbol imports they encode.
//
// The interpreter only reports what dyld would bind; it never writes to an image.
package bind

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/appsworld/go-macho-bind/types"
)

// DefaultMaxImports bounds the number of imports a single Imports call may
// emit, so a hostile DO_BIND_ULEB_TIMES_SKIPPING_ULEB count cannot spin forever.
const DefaultMaxImports = 1 << 24

// PointerSize is the native pointer width of the image in bytes.
type PointerSize uint64

const (
	Pointer32 PointerSize = 4
	Pointer64 PointerSize = 8
)

func (p PointerSize) valid() bool {
	return p == Pointer32 || p == Pointer64
}

// span is a half-open byte range [start, end) into the image.
type span struct {
	start int
	end   int
}

// newSpan saturates instead of overflowing when off+size is absurd.
func newSpan(off, size uint32) span {
	start := uint64(off)
	end := start + uint64(size)
	if start > math.MaxInt {
		start = math.MaxInt
	}
	if end > math.MaxInt {
		end = math.MaxInt
	}
	return span{start: int(start), end: int(end)}
}

func (s span) String() string {
	return fmt.Sprintf("%#x..%#x", s.start, s.end)
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the logger used for pass and unknown opcode diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(bi *Interpreter) {
		if l != nil {
			bi.log = l
		}
	}
}

// WithConcurrentPasses runs the bind and lazy bind passes on separate goroutines.
func WithConcurrentPasses() Option {
	return func(bi *Interpreter) {
		bi.concurrent = true
	}
}

// WithMaxImports overrides DefaultMaxImports. n <= 0 removes the limit.
func WithMaxImports(n int) Option {
	return func(bi *Interpreter) {
		bi.maxImports = n
	}
}

// An Interpreter replays the bind (non lazy) and lazy bind opcode streams of
// an image. Non lazy binds are usually dylib extern constants and variables,
// lazy binds are usually dylib functions.
type Interpreter struct {
	data         []byte
	location     span
	lazyLocation span

	log        *zap.Logger
	concurrent bool
	maxImports int
}

// NewInterpreter creates an interpreter over data, the bytes of a whole
// (thin) Mach-O image. The offsets and sizes are the BindOff/BindSize and
// LazyBindOff/LazyBindSize fields of LC_DYLD_INFO. Ranges that fall outside
// data are not rejected here; reading them fails later.
func NewInterpreter(data []byte, bindOff, bindSize, lazyBindOff, lazyBindSize uint32, opts ...Option) *Interpreter {
	bi := &Interpreter{
		data:         data,
		location:     newSpan(bindOff, bindSize),
		lazyLocation: newSpan(lazyBindOff, lazyBindSize),
		log:          zap.NewNop(),
		maxImports:   DefaultMaxImports,
	}
	for _, opt := range opts {
		opt(bi)
	}
	return bi
}

// FromDyldInfo creates an interpreter from a decoded LC_DYLD_INFO(_ONLY) command.
func FromDyldInfo(data []byte, cmd types.DyldInfoCmd, opts ...Option) *Interpreter {
	return NewInterpreter(data, cmd.BindOff, cmd.BindSize, cmd.LazyBindOff, cmd.LazyBindSize, opts...)
}

func (bi *Interpreter) String() string {
	return fmt.Sprintf("BindInterpreter{data: <%d bytes>, location: %s, lazy_location: %s}", len(bi.data), bi.location, bi.lazyLocation)
}

// Imports runs the bind stream and then the lazy bind stream and returns
// every import they emit, bind imports first, each in stream order.
//
// libs is indexed by library ordinal and segs by segment index. Any
// malformed stream or out of range index fails the whole call.
func (bi *Interpreter) Imports(libs []string, segs []Segment, ptrSize PointerSize) ([]Import, error) {
	if !ptrSize.valid() {
		return nil, fmt.Errorf("failed to interpret bind opcodes: %w (got %d)", ErrInvalidPointerSize, ptrSize)
	}

	if !bi.concurrent {
		var imports []Import
		if err := bi.run(false, libs, segs, ptrSize, &imports); err != nil {
			return nil, err
		}
		if err := bi.run(true, libs, segs, ptrSize, &imports); err != nil {
			return nil, err
		}
		return imports, nil
	}

	var (
		g                 errgroup.Group
		eager, lazy       []Import
		eagerErr, lazyErr error
	)
	g.Go(func() error {
		eagerErr = bi.run(false, libs, segs, ptrSize, &eager)
		return eagerErr
	})
	g.Go(func() error {
		lazyErr = bi.run(true, libs, segs, ptrSize, &lazy)
		return lazyErr
	})
	g.Wait()
	// report the bind stream's error first, as the sequential path would
	if eagerErr != nil {
		return nil, eagerErr
	}
	if lazyErr != nil {
		return nil, lazyErr
	}
	if bi.maxImports > 0 && len(eager)+len(lazy) > bi.maxImports {
		return nil, &DecodeError{Off: int64(bi.lazyLocation.start), Lazy: true, Msg: fmt.Sprintf("more than %d imports", bi.maxImports)}
	}
	return append(eager, lazy...), nil
}

func (bi *Interpreter) run(lazy bool, libs []string, segs []Segment, ptrSize PointerSize, imports *[]Import) error {
	location := bi.location
	if lazy {
		location = bi.lazyLocation
	}
	log := bi.log.With(zap.Bool("lazy", lazy), zap.Stringer("range", location))
	log.Debug("running bind opcodes")

	c := newCursor(bi.data, location, lazy)
	rec := newRecord(lazy)
	startOfSequence := 0
	size := uint64(ptrSize)
	emitted := 0

	emit := func(opOff int) error {
		if bi.maxImports > 0 && len(*imports) >= bi.maxImports {
			return c.errorf(opOff, fmt.Sprintf("more than %d imports", bi.maxImports))
		}
		imp, err := newImport(&rec, libs, segs, startOfSequence, opOff)
		if err != nil {
			return err
		}
		*imports = append(*imports, imp)
		emitted++
		return nil
	}

	for c.off < location.end {
		opOff := c.off
		b, err := c.readByte()
		if err != nil {
			return err
		}
		opcode := types.BindOpcode(b & types.BIND_OPCODE_MASK)
		imm := b & types.BIND_IMMEDIATE_MASK

		switch opcode {
		case types.BIND_OPCODE_DONE:
			rec = newRecord(lazy)
			startOfSequence = opOff - location.start
		case types.BIND_OPCODE_SET_DYLIB_ORDINAL_IMM:
			rec.ordinal = imm
		case types.BIND_OPCODE_SET_DYLIB_ORDINAL_ULEB:
			ordinal, err := c.readUleb128()
			if err != nil {
				return err
			}
			rec.ordinal = uint8(ordinal)
		case types.BIND_OPCODE_SET_DYLIB_SPECIAL_IMM:
			// kept raw; dyld folds it into the ordinal as a negative value
			rec.specialDylib = imm
		case types.BIND_OPCODE_SET_SYMBOL_TRAILING_FLAGS_IMM:
			name, err := c.readCString()
			if err != nil {
				return err
			}
			rec.name = name
			rec.flags = types.BindSymbolFlag(imm)
		case types.BIND_OPCODE_SET_TYPE_IMM:
			rec.bindType = types.BindType(imm)
		case types.BIND_OPCODE_SET_ADDEND_SLEB:
			addend, err := c.readSleb128()
			if err != nil {
				return err
			}
			rec.addend = addend
		case types.BIND_OPCODE_SET_SEGMENT_AND_OFFSET_ULEB:
			off, err := c.readUleb128()
			if err != nil {
				return err
			}
			rec.segIndex = imm
			rec.segOffset = off
		case types.BIND_OPCODE_ADD_ADDR_ULEB:
			addr, err := c.readUleb128()
			if err != nil {
				return err
			}
			rec.segOffset += addr
		case types.BIND_OPCODE_DO_BIND:
			if err := emit(opOff); err != nil {
				return err
			}
			rec.segOffset += size
		case types.BIND_OPCODE_DO_BIND_ADD_ADDR_ULEB:
			if err := emit(opOff); err != nil {
				return err
			}
			addr, err := c.readUleb128()
			if err != nil {
				return err
			}
			rec.segOffset += addr + size
		case types.BIND_OPCODE_DO_BIND_ADD_ADDR_IMM_SCALED:
			if err := emit(opOff); err != nil {
				return err
			}
			rec.segOffset += uint64(imm)*size + size
		case types.BIND_OPCODE_DO_BIND_ULEB_TIMES_SKIPPING_ULEB:
			count, err := c.readUleb128()
			if err != nil {
				return err
			}
			skip, err := c.readUleb128()
			if err != nil {
				return err
			}
			if bi.maxImports > 0 && count > uint64(bi.maxImports-len(*imports)) {
				return c.errorf(opOff, fmt.Sprintf("bind count %d exceeds the %d import limit", count, bi.maxImports))
			}
			for i := uint64(0); i < count; i++ {
				if err := emit(opOff); err != nil {
					return err
				}
				rec.segOffset += skip + size
			}
		default:
			// dyld would reject the stream; we skip the byte and keep going
			log.Debug("skipping unknown bind opcode",
				zap.Int("offset", opOff),
				zap.Uint8("opcode", b),
				zap.Stringer("name", opcode))
		}
	}

	log.Debug("finished bind opcodes", zap.Int("imports", emitted))
	return nil
}
