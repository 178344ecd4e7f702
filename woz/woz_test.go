package woz

import (
	"crypto/rand"
	"testing"

	"github.com/kr/pretty"
	"github.com/onionmixer/rdedisktool/nibble"
)

func newBlank(tracks int) *Woz {
	w := &Woz{
		Version: 1,
		Info: Info{
			Version:  1,
			DiskType: DiskType525,
			Creator:  "rdedisktool",
		},
	}
	for i := 0; i < 160; i++ {
		w.TMap[i] = 0xFF
	}
	for i := 0; i < tracks; i++ {
		w.TMap[i*4] = uint8(i)
		var sectors [16][]byte
		for s := range sectors {
			sectors[s] = make([]byte, 256)
		}
		built, err := nibble.BuildTrack(sectors, 254, byte(i), TrackLength-10)
		if err != nil {
			panic(err)
		}
		w.Tracks = append(w.Tracks, Track{
			BitBuffer: built,
			BitCount:  len(built) * 8,
		})
	}
	return w
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	w := newBlank(2)
	encoded, err := w.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Info.Creator != "rdedisktool" {
		t.Errorf("creator = %q, want %q", decoded.Info.Creator, "rdedisktool")
	}
	if len(decoded.Tracks) != 2 {
		t.Fatalf("got %d tracks, want 2", len(decoded.Tracks))
	}
	if decoded.TMap[0] != 0 || decoded.TMap[4] != 1 {
		t.Errorf("TMap not preserved: %v", decoded.TMap[:8])
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	bad := make([]byte, 16)
	copy(bad, "NOPE\xFF\n\r\n")
	if _, err := Decode(bad); err == nil {
		t.Fatal("expected an error for a bad magic header")
	}
}

func TestDecodeRejectsBadCRC(t *testing.T) {
	w := newBlank(1)
	encoded, err := w.Encode()
	if err != nil {
		t.Fatal(err)
	}
	// Corrupt the CRC field.
	encoded[8] ^= 0xFF
	if _, err := Decode(encoded); err == nil {
		t.Fatal("expected a CRC mismatch error")
	}
}

func TestReadWriteSectorRoundTrip(t *testing.T) {
	w := newBlank(1)
	data := make([]byte, 256)
	if _, err := rand.Read(data); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteSector(0, 3, data); err != nil {
		t.Fatalf("WriteSector: %v", err)
	}
	got, err := w.ReadSector(0, 3)
	if err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	if diff := pretty.Diff(got, data); len(diff) > 0 {
		t.Errorf("round trip mismatch: %v", diff)
	}
}

func TestReadSectorUnmappedTrack(t *testing.T) {
	w := newBlank(1)
	if _, err := w.ReadSector(10, 0); err == nil {
		t.Fatal("expected an error reading an unmapped track")
	}
}
