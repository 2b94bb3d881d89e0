// Package byteio provides fixed big-endian accessors over byte buffers for
// the file and block headers, mirroring the structured field layout the
// teacher's wav package writes with encoding/binary but specialised to the
// mixed field widths the container header uses.
package byteio

// PutUint8 writes v at buf[0].
func PutUint8(buf []byte, v uint8) {
	buf[0] = v
}

// Uint8 reads a byte from buf[0].
func Uint8(buf []byte) uint8 {
	return buf[0]
}

// PutUint16 writes v big-endian at buf[0:2].
func PutUint16(buf []byte, v uint16) {
	buf[0] = byte(v >> 8)
	buf[1] = byte(v)
}

// Uint16 reads a big-endian uint16 from buf[0:2].
func Uint16(buf []byte) uint16 {
	return uint16(buf[0])<<8 | uint16(buf[1])
}

// PutUint32 writes v big-endian at buf[0:4].
func PutUint32(buf []byte, v uint32) {
	buf[0] = byte(v >> 24)
	buf[1] = byte(v >> 16)
	buf[2] = byte(v >> 8)
	buf[3] = byte(v)
}

// Uint32 reads a big-endian uint32 from buf[0:4].
func Uint32(buf []byte) uint32 {
	return uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
}

// PutUint64 writes v big-endian at buf[0:8].
func PutUint64(buf []byte, v uint64) {
	PutUint32(buf, uint32(v>>32))
	PutUint32(buf[4:], uint32(v))
}

// Uint64 reads a big-endian uint64 from buf[0:8].
func Uint64(buf []byte) uint64 {
	return uint64(Uint32(buf))<<32 | uint64(Uint32(buf[4:]))
}

// AppendUint32 appends v big-endian to buf, for callers building a
// variable-length record rather than writing into a fixed-size buffer.
func AppendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// Cursor advances a read/write position through a buffer, used by the
// header codec to append fields without manually tracking offsets.
type Cursor struct {
	Buf []byte
	Pos int
}

// NewCursor returns a Cursor positioned at the start of buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{Buf: buf}
}

// PutUint8 writes v and advances the cursor by 1.
func (c *Cursor) PutUint8(v uint8) {
	PutUint8(c.Buf[c.Pos:], v)
	c.Pos++
}

// GetUint8 reads a byte and advances the cursor by 1.
func (c *Cursor) GetUint8() uint8 {
	v := Uint8(c.Buf[c.Pos:])
	c.Pos++

	return v
}

// PutUint16 writes v big-endian and advances the cursor by 2.
func (c *Cursor) PutUint16(v uint16) {
	PutUint16(c.Buf[c.Pos:], v)
	c.Pos += 2
}

// GetUint16 reads a big-endian uint16 and advances the cursor by 2.
func (c *Cursor) GetUint16() uint16 {
	v := Uint16(c.Buf[c.Pos:])
	c.Pos += 2

	return v
}

// PutUint32 writes v big-endian and advances the cursor by 4.
func (c *Cursor) PutUint32(v uint32) {
	PutUint32(c.Buf[c.Pos:], v)
	c.Pos += 4
}

// GetUint32 reads a big-endian uint32 and advances the cursor by 4.
func (c *Cursor) GetUint32() uint32 {
	v := Uint32(c.Buf[c.Pos:])
	c.Pos += 4

	return v
}

// PutUint64 writes v big-endian and advances the cursor by 8.
func (c *Cursor) PutUint64(v uint64) {
	PutUint64(c.Buf[c.Pos:], v)
	c.Pos += 8
}

// GetUint64 reads a big-endian uint64 and advances the cursor by 8.
func (c *Cursor) GetUint64() uint64 {
	v := Uint64(c.Buf[c.Pos:])
	c.Pos += 8

	return v
}

// Skip advances the cursor by n bytes without reading, used to step over
// reserved or already-handled fields.
func (c *Cursor) Skip(n int) {
	c.Pos += n
}
