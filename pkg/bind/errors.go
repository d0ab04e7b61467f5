package bind

import (
	"errors"
	"fmt"
)

// ErrInvalidPointerSize is returned when the pointer width is neither 4 nor 8.
var ErrInvalidPointerSize = errors.New("pointer size must be 4 or 8")

// A DecodeError is returned when a bind opcode stream is truncated or
// malformed: an operand, string or opcode byte could not be read inside the
// stream's byte range.
type DecodeError struct {
	Off  int64 // absolute file offset of the offending read
	Lazy bool
	Msg  string
}

func (e *DecodeError) Error() string {
	stream := "bind"
	if e.Lazy {
		stream = "lazy bind"
	}
	return fmt.Sprintf("malformed %s opcodes: %s in record at byte %#x", stream, e.Msg, e.Off)
}

// An IndexError is returned when the opcode stream references a segment or
// library ordinal that is not present in the tables handed to the interpreter.
type IndexError struct {
	Off   int64  // absolute file offset of the opcode that emitted the import
	Kind  string // "segment" or "library ordinal"
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s index %d out of range [0:%d] in record at byte %#x", e.Kind, e.Index, e.Len, e.Off)
}
