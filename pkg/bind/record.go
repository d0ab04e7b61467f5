package bind

import "github.com/appsworld/go-macho-bind/types"

// record holds the interpreter state accumulated between bind opcodes.
// Every DO_BIND* opcode turns a snapshot of it into an Import.
type record struct {
	segIndex     uint8
	segOffset    uint64
	bindType     types.BindType
	ordinal      uint8
	name         string
	flags        types.BindSymbolFlag
	addend       int64
	specialDylib uint8 // raw SET_DYLIB_SPECIAL_IMM value, 1 when unset
	lazy         bool
}

func newRecord(lazy bool) record {
	r := record{specialDylib: 1}
	if lazy {
		r.lazy = true
		r.bindType = types.BIND_TYPE_POINTER
	}
	return r
}

func (r *record) weak() bool {
	return r.flags.WeakImport()
}
