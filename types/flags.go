package types

import "fmt"

// BindOpcode is the high nibble of a dyld bind opcode byte.
type BindOpcode uint8

// BindType is the kind of pointer a bind patches.
type BindType uint8

// BindSymbolFlag is the immediate of BIND_OPCODE_SET_SYMBOL_TRAILING_FLAGS_IMM.
type BindSymbolFlag uint8

const (
	/* The following are used to encode binding information */
	BIND_TYPE_POINTER         BindType = 1
	BIND_TYPE_TEXT_ABSOLUTE32 BindType = 2
	BIND_TYPE_TEXT_PCREL32    BindType = 3

	BIND_SPECIAL_DYLIB_SELF            = 0
	BIND_SPECIAL_DYLIB_MAIN_EXECUTABLE = -1
	BIND_SPECIAL_DYLIB_FLAT_LOOKUP     = -2
	BIND_SPECIAL_DYLIB_WEAK_LOOKUP     = -3

	BIND_SYMBOL_FLAGS_WEAK_IMPORT         BindSymbolFlag = 0x1
	BIND_SYMBOL_FLAGS_NON_WEAK_DEFINITION BindSymbolFlag = 0x8

	BIND_OPCODE_MASK    = 0xF0
	BIND_IMMEDIATE_MASK = 0x0F
)

const (
	BIND_OPCODE_DONE                             BindOpcode = 0x00
	BIND_OPCODE_SET_DYLIB_ORDINAL_IMM            BindOpcode = 0x10
	BIND_OPCODE_SET_DYLIB_ORDINAL_ULEB           BindOpcode = 0x20
	BIND_OPCODE_SET_DYLIB_SPECIAL_IMM            BindOpcode = 0x30
	BIND_OPCODE_SET_SYMBOL_TRAILING_FLAGS_IMM    BindOpcode = 0x40
	BIND_OPCODE_SET_TYPE_IMM                     BindOpcode = 0x50
	BIND_OPCODE_SET_ADDEND_SLEB                  BindOpcode = 0x60
	BIND_OPCODE_SET_SEGMENT_AND_OFFSET_ULEB      BindOpcode = 0x70
	BIND_OPCODE_ADD_ADDR_ULEB                    BindOpcode = 0x80
	BIND_OPCODE_DO_BIND                          BindOpcode = 0x90
	BIND_OPCODE_DO_BIND_ADD_ADDR_ULEB            BindOpcode = 0xA0
	BIND_OPCODE_DO_BIND_ADD_ADDR_IMM_SCALED      BindOpcode = 0xB0
	BIND_OPCODE_DO_BIND_ULEB_TIMES_SKIPPING_ULEB BindOpcode = 0xC0
	BIND_OPCODE_THREADED                         BindOpcode = 0xD0
)

var bindOpcodeStrings = []intName{
	{uint32(BIND_OPCODE_DONE), "BIND_OPCODE_DONE"},
	{uint32(BIND_OPCODE_SET_DYLIB_ORDINAL_IMM), "BIND_OPCODE_SET_DYLIB_ORDINAL_IMM"},
	{uint32(BIND_OPCODE_SET_DYLIB_ORDINAL_ULEB), "BIND_OPCODE_SET_DYLIB_ORDINAL_ULEB"},
	{uint32(BIND_OPCODE_SET_DYLIB_SPECIAL_IMM), "BIND_OPCODE_SET_DYLIB_SPECIAL_IMM"},
	{uint32(BIND_OPCODE_SET_SYMBOL_TRAILING_FLAGS_IMM), "BIND_OPCODE_SET_SYMBOL_TRAILING_FLAGS_IMM"},
	{uint32(BIND_OPCODE_SET_TYPE_IMM), "BIND_OPCODE_SET_TYPE_IMM"},
	{uint32(BIND_OPCODE_SET_ADDEND_SLEB), "BIND_OPCODE_SET_ADDEND_SLEB"},
	{uint32(BIND_OPCODE_SET_SEGMENT_AND_OFFSET_ULEB), "BIND_OPCODE_SET_SEGMENT_AND_OFFSET_ULEB"},
	{uint32(BIND_OPCODE_ADD_ADDR_ULEB), "BIND_OPCODE_ADD_ADDR_ULEB"},
	{uint32(BIND_OPCODE_DO_BIND), "BIND_OPCODE_DO_BIND"},
	{uint32(BIND_OPCODE_DO_BIND_ADD_ADDR_ULEB), "BIND_OPCODE_DO_BIND_ADD_ADDR_ULEB"},
	{uint32(BIND_OPCODE_DO_BIND_ADD_ADDR_IMM_SCALED), "BIND_OPCODE_DO_BIND_ADD_ADDR_IMM_SCALED"},
	{uint32(BIND_OPCODE_DO_BIND_ULEB_TIMES_SKIPPING_ULEB), "BIND_OPCODE_DO_BIND_ULEB_TIMES_SKIPPING_ULEB"},
	{uint32(BIND_OPCODE_THREADED), "BIND_OPCODE_THREADED"},
}

func (o BindOpcode) String() string {
	for _, n := range bindOpcodeStrings {
		if n.i == uint32(o) {
			return n.s
		}
	}
	return fmt.Sprintf("BIND_OPCODE_UNKNOWN(%#02x)", uint8(o))
}

// Known reports whether the opcode is one the bind interpreter acts on.
func (o BindOpcode) Known() bool {
	return o <= BIND_OPCODE_DO_BIND_ULEB_TIMES_SKIPPING_ULEB && o&BIND_IMMEDIATE_MASK == 0
}

func (t BindType) String() string {
	switch t {
	case BIND_TYPE_POINTER:
		return "pointer"
	case BIND_TYPE_TEXT_ABSOLUTE32:
		return "text abs32"
	case BIND_TYPE_TEXT_PCREL32:
		return "text rel32"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

func (f BindSymbolFlag) WeakImport() bool {
	return f&BIND_SYMBOL_FLAGS_WEAK_IMPORT != 0
}

func (f BindSymbolFlag) NonWeakDefinition() bool {
	return f&BIND_SYMBOL_FLAGS_NON_WEAK_DEFINITION != 0
}

func (f BindSymbolFlag) String() string {
	switch {
	case f.WeakImport() && f.NonWeakDefinition():
		return "weak_import|non_weak_definition"
	case f.WeakImport():
		return "weak_import"
	case f.NonWeakDefinition():
		return "non_weak_definition"
	default:
		return fmt.Sprintf("%#x", uint8(f))
	}
}
