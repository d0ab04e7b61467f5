package bind

import (
	"fmt"
	"strings"

	"github.com/appsworld/go-macho-bind/types"
)

// An Op is one decoded bind opcode together with its operands.
type Op struct {
	Offset   int64            `json:"offset"` // absolute file offset of the opcode byte
	Opcode   types.BindOpcode `json:"opcode"`
	Imm      uint8            `json:"imm"`
	Uleb     []uint64         `json:"uleb,omitempty"`
	Sleb     int64            `json:"sleb,omitempty"`
	Symbol   string           `json:"symbol,omitempty"`
	Unknown  bool             `json:"unknown,omitempty"`
	Relative int64            `json:"relative"` // offset relative to the start of the stream
}

func (o Op) String() string {
	var args string
	switch o.Opcode {
	case types.BIND_OPCODE_DONE, types.BIND_OPCODE_DO_BIND:
	case types.BIND_OPCODE_SET_DYLIB_ORDINAL_IMM, types.BIND_OPCODE_SET_DYLIB_SPECIAL_IMM,
		types.BIND_OPCODE_SET_TYPE_IMM:
		args = fmt.Sprintf("(%d)", o.Imm)
	case types.BIND_OPCODE_DO_BIND_ADD_ADDR_IMM_SCALED:
		args = fmt.Sprintf("(%d)", o.Imm)
	case types.BIND_OPCODE_SET_DYLIB_ORDINAL_ULEB, types.BIND_OPCODE_DO_BIND_ADD_ADDR_ULEB,
		types.BIND_OPCODE_ADD_ADDR_ULEB:
		args = fmt.Sprintf("(%#x)", o.Uleb[0])
	case types.BIND_OPCODE_SET_SYMBOL_TRAILING_FLAGS_IMM:
		args = fmt.Sprintf("(%#x, %s)", o.Imm, o.Symbol)
	case types.BIND_OPCODE_SET_ADDEND_SLEB:
		args = fmt.Sprintf("(%d)", o.Sleb)
	case types.BIND_OPCODE_SET_SEGMENT_AND_OFFSET_ULEB:
		args = fmt.Sprintf("(%d, 0x%06x)", o.Imm, o.Uleb[0])
	case types.BIND_OPCODE_DO_BIND_ULEB_TIMES_SKIPPING_ULEB:
		args = fmt.Sprintf("(%d, %#x)", o.Uleb[0], o.Uleb[1])
	default:
		args = fmt.Sprintf("(%#02x)", uint8(o.Opcode)|o.Imm)
	}
	return fmt.Sprintf("0x%06x %s%s", o.Relative, strings.TrimPrefix(o.Opcode.String(), "BIND_OPCODE_"), args)
}

// Disassemble decodes the bind (or lazy bind) opcode stream into Ops without
// resolving any imports.
func (bi *Interpreter) Disassemble(lazy bool) ([]Op, error) {
	location := bi.location
	if lazy {
		location = bi.lazyLocation
	}

	var ops []Op
	c := newCursor(bi.data, location, lazy)
	for c.off < location.end {
		opOff := c.off
		b, err := c.readByte()
		if err != nil {
			return nil, err
		}
		op := Op{
			Offset:   int64(opOff),
			Relative: int64(opOff - location.start),
			Opcode:   types.BindOpcode(b & types.BIND_OPCODE_MASK),
			Imm:      b & types.BIND_IMMEDIATE_MASK,
		}

		var nUleb int
		switch op.Opcode {
		case types.BIND_OPCODE_SET_DYLIB_ORDINAL_ULEB,
			types.BIND_OPCODE_SET_SEGMENT_AND_OFFSET_ULEB,
			types.BIND_OPCODE_ADD_ADDR_ULEB,
			types.BIND_OPCODE_DO_BIND_ADD_ADDR_ULEB:
			nUleb = 1
		case types.BIND_OPCODE_DO_BIND_ULEB_TIMES_SKIPPING_ULEB:
			nUleb = 2
		case types.BIND_OPCODE_SET_ADDEND_SLEB:
			if op.Sleb, err = c.readSleb128(); err != nil {
				return nil, err
			}
		case types.BIND_OPCODE_SET_SYMBOL_TRAILING_FLAGS_IMM:
			if op.Symbol, err = c.readCString(); err != nil {
				return nil, err
			}
		default:
			op.Unknown = !op.Opcode.Known()
		}
		for i := 0; i < nUleb; i++ {
			v, err := c.readUleb128()
			if err != nil {
				return nil, err
			}
			op.Uleb = append(op.Uleb, v)
		}

		ops = append(ops, op)
	}

	return ops, nil
}
