package binio

import (
	"crypto/rand"
	"testing"

	"github.com/kr/pretty"
)

func TestU16LERoundTrip(t *testing.T) {
	buf := make([]byte, 16)
	w := NewWriter(buf)
	r := NewReader(buf)

	for _, v := range []uint16{0, 1, 0xFF, 0x1234, 0xFFFF} {
		if err := w.PutU16LE(2, v); err != nil {
			t.Fatal(err)
		}
		got, err := r.U16LE(2)
		if err != nil {
			t.Fatal(err)
		}
		if got != v {
			t.Errorf("got %#x, want %#x", got, v)
		}
	}
}

func TestU32LEBERoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	w := NewWriter(buf)
	r := NewReader(buf)

	var v uint32 = 0xDEADBEEF
	if err := w.PutU32LE(0, v); err != nil {
		t.Fatal(err)
	}
	got, err := r.U32LE(0)
	if err != nil {
		t.Fatal(err)
	}
	if got != v {
		t.Errorf("LE: got %#x, want %#x", got, v)
	}

	if err := w.PutU32BE(4, v); err != nil {
		t.Fatal(err)
	}
	got, err = r.U32BE(4)
	if err != nil {
		t.Fatal(err)
	}
	if got != v {
		t.Errorf("BE: got %#x, want %#x", got, v)
	}
}

func TestOutOfBoundsReadsError(t *testing.T) {
	r := NewReader(make([]byte, 4))
	if _, err := r.U32LE(2); err == nil {
		t.Fatal("expected an error reading past the end of the buffer")
	}
}

func TestAppleStringStripsHighBit(t *testing.T) {
	buf := []byte{'H' | 0x80, 'I' | 0x80, ' ' | 0x80}
	r := NewReader(buf)
	s, err := r.AppleString(0, 3)
	if err != nil {
		t.Fatal(err)
	}
	if s != "HI " {
		t.Errorf("got %q, want %q", s, "HI ")
	}
}

func TestTrimmedString(t *testing.T) {
	buf := []byte("HELLO     ")
	r := NewReader(buf)
	s, err := r.TrimmedString(0, len(buf))
	if err != nil {
		t.Fatal(err)
	}
	if s != "HELLO" {
		t.Errorf("got %q, want %q", s, "HELLO")
	}
}

func TestBytesRoundTripRandom(t *testing.T) {
	src := make([]byte, 64)
	if _, err := rand.Read(src); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 64)
	w := NewWriter(buf)
	if err := w.PutBytes(0, src); err != nil {
		t.Fatal(err)
	}
	r := NewReader(buf)
	got, err := r.Bytes(0, 64)
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Diff(got, src); len(diff) > 0 {
		t.Errorf("round trip mismatch: %v", diff)
	}
}
