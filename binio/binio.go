// Package binio provides endian-explicit, bounds-checked reads and
// writes over a byte slice, replacing the repeated byte-shifting and
// packed-struct patterns of the formats this tool decodes.
package binio

import "github.com/onionmixer/rdedisktool/errs"

// Reader reads multi-byte values out of a fixed byte slice. All
// positions are absolute offsets into the wrapped slice.
type Reader struct {
	data []byte
}

// NewReader wraps data for reading.
func NewReader(data []byte) Reader {
	return Reader{data: data}
}

// Len returns the length of the wrapped slice.
func (r Reader) Len() int { return len(r.data) }

func (r Reader) need(pos, n int) error {
	if pos < 0 || n < 0 || pos+n > len(r.data) {
		return errs.ReadErrorf("binio: read of %d bytes at offset %d exceeds buffer of length %d", n, pos, len(r.data))
	}
	return nil
}

// U8 reads one byte at pos.
func (r Reader) U8(pos int) (byte, error) {
	if err := r.need(pos, 1); err != nil {
		return 0, err
	}
	return r.data[pos], nil
}

// S8 reads one signed byte at pos.
func (r Reader) S8(pos int) (int8, error) {
	b, err := r.U8(pos)
	return int8(b), err
}

// U16LE reads a little-endian uint16 at pos.
func (r Reader) U16LE(pos int) (uint16, error) {
	if err := r.need(pos, 2); err != nil {
		return 0, err
	}
	return uint16(r.data[pos]) | uint16(r.data[pos+1])<<8, nil
}

// S16LE reads a little-endian int16 at pos.
func (r Reader) S16LE(pos int) (int16, error) {
	v, err := r.U16LE(pos)
	return int16(v), err
}

// U24LE reads a little-endian 24-bit value (as uint32) at pos.
func (r Reader) U24LE(pos int) (uint32, error) {
	if err := r.need(pos, 3); err != nil {
		return 0, err
	}
	return uint32(r.data[pos]) | uint32(r.data[pos+1])<<8 | uint32(r.data[pos+2])<<16, nil
}

// U32LE reads a little-endian uint32 at pos.
func (r Reader) U32LE(pos int) (uint32, error) {
	if err := r.need(pos, 4); err != nil {
		return 0, err
	}
	return uint32(r.data[pos]) | uint32(r.data[pos+1])<<8 | uint32(r.data[pos+2])<<16 | uint32(r.data[pos+3])<<24, nil
}

// S32LE reads a little-endian int32 at pos.
func (r Reader) S32LE(pos int) (int32, error) {
	v, err := r.U32LE(pos)
	return int32(v), err
}

// U16BE reads a big-endian uint16 at pos.
func (r Reader) U16BE(pos int) (uint16, error) {
	if err := r.need(pos, 2); err != nil {
		return 0, err
	}
	return uint16(r.data[pos])<<8 | uint16(r.data[pos+1]), nil
}

// U32BE reads a big-endian uint32 at pos.
func (r Reader) U32BE(pos int) (uint32, error) {
	if err := r.need(pos, 4); err != nil {
		return 0, err
	}
	return uint32(r.data[pos])<<24 | uint32(r.data[pos+1])<<16 | uint32(r.data[pos+2])<<8 | uint32(r.data[pos+3]), nil
}

// Bytes reads n raw bytes at pos, returning a copy.
func (r Reader) Bytes(pos, n int) ([]byte, error) {
	if err := r.need(pos, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.data[pos:pos+n])
	return out, nil
}

// String reads maxLen raw bytes as a string (may contain embedded NULs).
func (r Reader) String(pos, maxLen int) (string, error) {
	b, err := r.Bytes(pos, maxLen)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// NullTerminated reads a string up to a NUL byte or maxLen, whichever
// comes first.
func (r Reader) NullTerminated(pos, maxLen int) (string, error) {
	if err := r.need(pos, 0); err != nil {
		return "", err
	}
	end := pos
	limit := pos + maxLen
	if limit > len(r.data) {
		limit = len(r.data)
	}
	for end < limit && r.data[end] != 0 {
		end++
	}
	return string(r.data[pos:end]), nil
}

// TrimmedString reads maxLen bytes and trims trailing spaces.
func (r Reader) TrimmedString(pos, maxLen int) (string, error) {
	s, err := r.String(pos, maxLen)
	if err != nil {
		return "", err
	}
	end := len(s)
	for end > 0 && s[end-1] == ' ' {
		end--
	}
	return s[:end], nil
}

// AppleString reads maxLen bytes with the high bit stripped from each
// character, the convention DOS 3.3 and ProDOS filenames use on disk.
func (r Reader) AppleString(pos, maxLen int) (string, error) {
	b, err := r.Bytes(pos, maxLen)
	if err != nil {
		return "", err
	}
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = c & 0x7F
	}
	return string(out), nil
}

// Writer writes multi-byte values into a fixed byte slice in place.
type Writer struct {
	data []byte
}

// NewWriter wraps data for writing.
func NewWriter(data []byte) Writer {
	return Writer{data: data}
}

func (w Writer) need(pos, n int) error {
	if pos < 0 || n < 0 || pos+n > len(w.data) {
		return errs.WriteErrorf("binio: write of %d bytes at offset %d exceeds buffer of length %d", n, pos, len(w.data))
	}
	return nil
}

// PutU8 writes one byte at pos.
func (w Writer) PutU8(pos int, v byte) error {
	if err := w.need(pos, 1); err != nil {
		return err
	}
	w.data[pos] = v
	return nil
}

// PutU16LE writes a little-endian uint16 at pos.
func (w Writer) PutU16LE(pos int, v uint16) error {
	if err := w.need(pos, 2); err != nil {
		return err
	}
	w.data[pos] = byte(v)
	w.data[pos+1] = byte(v >> 8)
	return nil
}

// PutU24LE writes a little-endian 24-bit value at pos.
func (w Writer) PutU24LE(pos int, v uint32) error {
	if err := w.need(pos, 3); err != nil {
		return err
	}
	w.data[pos] = byte(v)
	w.data[pos+1] = byte(v >> 8)
	w.data[pos+2] = byte(v >> 16)
	return nil
}

// PutU32LE writes a little-endian uint32 at pos.
func (w Writer) PutU32LE(pos int, v uint32) error {
	if err := w.need(pos, 4); err != nil {
		return err
	}
	w.data[pos] = byte(v)
	w.data[pos+1] = byte(v >> 8)
	w.data[pos+2] = byte(v >> 16)
	w.data[pos+3] = byte(v >> 24)
	return nil
}

// PutU16BE writes a big-endian uint16 at pos.
func (w Writer) PutU16BE(pos int, v uint16) error {
	if err := w.need(pos, 2); err != nil {
		return err
	}
	w.data[pos] = byte(v >> 8)
	w.data[pos+1] = byte(v)
	return nil
}

// PutU32BE writes a big-endian uint32 at pos.
func (w Writer) PutU32BE(pos int, v uint32) error {
	if err := w.need(pos, 4); err != nil {
		return err
	}
	w.data[pos] = byte(v >> 24)
	w.data[pos+1] = byte(v >> 16)
	w.data[pos+2] = byte(v >> 8)
	w.data[pos+3] = byte(v)
	return nil
}

// PutBytes copies src into data starting at pos.
func (w Writer) PutBytes(pos int, src []byte) error {
	if err := w.need(pos, len(src)); err != nil {
		return err
	}
	copy(w.data[pos:pos+len(src)], src)
	return nil
}

// PutString writes s into data at pos, padding the remainder of width
// bytes with pad.
func (w Writer) PutString(pos int, s string, width int, pad byte) error {
	if err := w.need(pos, width); err != nil {
		return err
	}
	n := copy(w.data[pos:pos+width], s)
	for i := pos + n; i < pos+width; i++ {
		w.data[i] = pad
	}
	return nil
}
