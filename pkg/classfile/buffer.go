package classfile

// Buffer is a growable, append-only byte sequence used to build class-file
// sections. All multi-byte values are written big-endian, as the format
// requires. A Buffer is exclusively owned by one writer; callers must copy
// bytes out rather than hold references into the backing array, since
// growth reallocates.
type Buffer struct {
	data []byte
}

// NewBuffer creates a buffer with the given initial capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]byte, 0, capacity)}
}

// Len returns the number of bytes written so far.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Bytes returns a copy of the buffer contents.
func (b *Buffer) Bytes() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// PutU8 appends a single byte.
func (b *Buffer) PutU8(v uint8) {
	b.data = append(b.data, v)
}

// PutU16 appends a big-endian 16-bit value.
func (b *Buffer) PutU16(v uint16) {
	b.data = append(b.data, byte(v>>8), byte(v))
}

// PutU32 appends a big-endian 32-bit value.
func (b *Buffer) PutU32(v uint32) {
	b.data = append(b.data, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// PutU64 appends a big-endian 64-bit value.
func (b *Buffer) PutU64(v uint64) {
	b.PutU32(uint32(v >> 32))
	b.PutU32(uint32(v))
}

// PutBytes appends a raw span.
func (b *Buffer) PutBytes(p []byte) {
	b.data = append(b.data, p...)
}

// PutBuffer appends the contents of another buffer.
func (b *Buffer) PutBuffer(other *Buffer) {
	b.data = append(b.data, other.data...)
}

// SetU16 overwrites two bytes at a fixed offset. Used to patch branch
// placeholders and length fields once their values are known.
func (b *Buffer) SetU16(offset int, v uint16) {
	b.data[offset] = byte(v >> 8)
	b.data[offset+1] = byte(v)
}

// SetU32 overwrites four bytes at a fixed offset.
func (b *Buffer) SetU32(offset int, v uint32) {
	b.data[offset] = byte(v >> 24)
	b.data[offset+1] = byte(v >> 16)
	b.data[offset+2] = byte(v >> 8)
	b.data[offset+3] = byte(v)
}

// U8At reads a byte at the given offset.
func (b *Buffer) U8At(offset int) uint8 {
	return b.data[offset]
}

// U16At reads a big-endian 16-bit value at the given offset.
func (b *Buffer) U16At(offset int) uint16 {
	return uint16(b.data[offset])<<8 | uint16(b.data[offset+1])
}

// Span returns a copy of the byte range [start, end).
func (b *Buffer) Span(start, end int) []byte {
	out := make([]byte, end-start)
	copy(out, b.data[start:end])
	return out
}

// utf8Length returns the modified UTF-8 encoded length of s.
func utf8Length(s string) int {
	n := 0
	for _, r := range s {
		switch {
		case r >= 0x01 && r <= 0x7F:
			n++
		case r <= 0x7FF:
			n += 2
		case r <= 0xFFFF:
			n += 3
		default:
			// Supplementary characters encode as a surrogate pair,
			// three bytes each.
			n += 6
		}
	}
	return n
}

// PutUTF8 appends the modified UTF-8 encoding of s, preceded by its
// 16-bit byte length. NUL bytes and code points above U+FFFF use the
// format's multi-byte re-encoding; the output never contains a plain
// zero byte.
func (b *Buffer) PutUTF8(s string) error {
	n := utf8Length(s)
	if n > 0xFFFF {
		return &UnsupportedConstantError{Value: "UTF-8 string longer than 65535 bytes"}
	}
	b.PutU16(uint16(n))
	for _, r := range s {
		switch {
		case r >= 0x01 && r <= 0x7F:
			b.data = append(b.data, byte(r))
		case r <= 0x7FF:
			b.data = append(b.data, byte(0xC0|r>>6), byte(0x80|r&0x3F))
		case r <= 0xFFFF:
			b.putUTF16Unit(uint16(r))
		default:
			r -= 0x10000
			b.putUTF16Unit(uint16(0xD800 | r>>10))
			b.putUTF16Unit(uint16(0xDC00 | r&0x3FF))
		}
	}
	return nil
}

func (b *Buffer) putUTF16Unit(u uint16) {
	b.data = append(b.data,
		byte(0xE0|u>>12),
		byte(0x80|(u>>6)&0x3F),
		byte(0x80|u&0x3F))
}
