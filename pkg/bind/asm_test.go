package bind

import "github.com/appsworld/go-macho-bind/types"

// asm assembles bind opcode streams for tests.
type asm struct {
	b []byte
}

func (a *asm) op(o types.BindOpcode, imm uint8) *asm {
	a.b = append(a.b, byte(o)|imm&types.BIND_IMMEDIATE_MASK)
	return a
}

func (a *asm) raw(b ...byte) *asm {
	a.b = append(a.b, b...)
	return a
}

func (a *asm) uleb(v uint64) *asm {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		a.b = append(a.b, b)
		if v == 0 {
			return a
		}
	}
}

func (a *asm) sleb(v int64) *asm {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		a.b = append(a.b, b)
		if done {
			return a
		}
	}
}

func (a *asm) symbol(flags uint8, name string) *asm {
	a.op(types.BIND_OPCODE_SET_SYMBOL_TRAILING_FLAGS_IMM, flags)
	a.b = append(a.b, name...)
	a.b = append(a.b, 0)
	return a
}

func (a *asm) segment(index uint8, offset uint64) *asm {
	return a.op(types.BIND_OPCODE_SET_SEGMENT_AND_OFFSET_ULEB, index).uleb(offset)
}

func (a *asm) bind() *asm { return a.op(types.BIND_OPCODE_DO_BIND, 0) }
func (a *asm) done() *asm { return a.op(types.BIND_OPCODE_DONE, 0) }

func (a *asm) len() int { return len(a.b) }

func (a *asm) bytes() []byte { return a.b }
