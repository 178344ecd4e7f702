package crc

import "testing"

func TestCRC16CCITTKnownVector(t *testing.T) {
	// "123456789" with init 0xFFFF is the standard CRC-16/CCITT-FALSE
	// check value, 0x29B1.
	got := CRC16CCITT(0xFFFF, []byte("123456789"))
	if got != 0x29B1 {
		t.Errorf("got %#04x, want %#04x", got, 0x29B1)
	}
}

func TestHash16StreamingMatchesOneShot(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	oneShot := CRC16CCITT(0xFFFF, data)

	h := NewHash16(0xFFFF)
	h.Write(data[:10])
	h.Write(data[10:])
	if h.Sum16() != oneShot {
		t.Errorf("streaming %#04x != one-shot %#04x", h.Sum16(), oneShot)
	}
}

func TestCRC32MatchesStdlibShape(t *testing.T) {
	if CRC32(nil) != 0 {
		t.Errorf("CRC32 of empty input should be 0, got %#x", CRC32(nil))
	}
	a := CRC32([]byte("abc"))
	b := CRC32([]byte("abc"))
	if a != b {
		t.Errorf("CRC32 should be deterministic")
	}
}
