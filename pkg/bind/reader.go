package bind

import "bytes"

// cursor reads bind opcodes and their operands out of data, never past limit.
type cursor struct {
	data  []byte
	off   int
	limit int
	lazy  bool
}

func newCursor(data []byte, r span, lazy bool) *cursor {
	limit := r.end
	if limit > len(data) {
		limit = len(data)
	}
	return &cursor{data: data, off: r.start, limit: limit, lazy: lazy}
}

func (c *cursor) errorf(off int, msg string) error {
	return &DecodeError{Off: int64(off), Lazy: c.lazy, Msg: msg}
}

func (c *cursor) readByte() (byte, error) {
	if c.off < 0 || c.off >= c.limit {
		return 0, c.errorf(c.off, "unexpected end of stream")
	}
	b := c.data[c.off]
	c.off++
	return b, nil
}

// readUleb128 decodes an unsigned LEB128 value. Encodings that do not fit in
// 64 bits are rejected.
func (c *cursor) readUleb128() (uint64, error) {
	var result uint64
	var shift uint

	start := c.off
	for {
		b, err := c.readByte()
		if err != nil {
			return 0, c.errorf(start, "truncated uleb128")
		}
		if shift == 63 && b > 1 {
			return 0, c.errorf(start, "uleb128 too big for uint64")
		}
		result |= uint64(b&0x7f) << shift
		// If high order bit is 1.
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift > 63 {
			return 0, c.errorf(start, "uleb128 too big for uint64")
		}
	}

	return result, nil
}

// readSleb128 decodes a signed LEB128 value.
func (c *cursor) readSleb128() (int64, error) {
	var result int64
	var shift uint
	var b byte

	start := c.off
	for {
		var err error
		b, err = c.readByte()
		if err != nil {
			return 0, c.errorf(start, "truncated sleb128")
		}
		if shift == 63 && b != 0 && b != 0x7f {
			return 0, c.errorf(start, "sleb128 too big for int64")
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift > 63 {
			return 0, c.errorf(start, "sleb128 too big for int64")
		}
	}
	// sign extend
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}

	return result, nil
}

// readCString returns the NUL terminated string at the cursor and moves past
// its terminator.
func (c *cursor) readCString() (string, error) {
	start := c.off
	if start < 0 || start >= c.limit {
		return "", c.errorf(start, "unexpected end of stream reading symbol name")
	}
	i := bytes.IndexByte(c.data[start:c.limit], 0)
	if i == -1 {
		return "", c.errorf(start, "unterminated symbol name")
	}
	c.off = start + i + 1
	return string(c.data[start : start+i]), nil
}
