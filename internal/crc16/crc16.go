// Package crc16 implements the reflected CRC-16/IBM (CRC-16/ARC) checksum
// used to protect the file header and every block.
//
// Structured the way github.com/mewkiz/flac/internal/hashutil/crc16
// structures its (non-reflected) CRC-16/IBM table, but computed with the
// reflected polynomial (0xA001) and reflected bit order the container
// format requires: poly 0x8005 reflected, init 0, no final XOR.
package crc16

// Size of a CRC-16 checksum in bytes.
const Size = 2

// poly is the reflected form of the IBM/ANSI polynomial 0x8005.
const poly = 0xA001

// Table is a 256-word table representing the reflected polynomial for
// efficient byte-at-a-time processing.
type Table [256]uint16

// IBMTable is the table for the reflected IBM polynomial.
var IBMTable = makeTable()

func makeTable() *Table {
	var table Table

	for i := range table {
		crc := uint16(i) //nolint:gosec // i is bounded to [0,255]

		for range 8 {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ poly
			} else {
				crc >>= 1
			}
		}

		table[i] = crc
	}

	return &table
}

// Update returns the result of adding the bytes in p to crc.
func Update(crc uint16, table *Table, p []byte) uint16 {
	for _, v := range p {
		crc = (crc >> 8) ^ table[byte(crc)^v]
	}

	return crc
}

// Checksum returns the CRC-16/IBM checksum of data, starting from an init
// value of 0.
func Checksum(data []byte) uint16 {
	return Update(0, IBMTable, data)
}

// digest implements hash.Hash16-like incremental computation for streaming
// callers (the block writer back-patches a CRC after emitting variable-length
// payloads, so it accumulates incrementally rather than buffering).
type digest struct {
	crc uint16
}

// New returns a fresh incremental CRC-16/IBM accumulator.
func New() *digest { //nolint:revive // unexported-but-returned matches the bit I/O handle pattern in this package family
	return &digest{}
}

// Write adds p to the running checksum. It never returns an error.
func (d *digest) Write(p []byte) (int, error) {
	d.crc = Update(d.crc, IBMTable, p)

	return len(p), nil
}

// Sum16 returns the current checksum value.
func (d *digest) Sum16() uint16 {
	return d.crc
}

// Reset zeroes the running checksum.
func (d *digest) Reset() {
	d.crc = 0
}
