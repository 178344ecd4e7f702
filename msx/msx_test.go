package msx

import (
	"crypto/rand"
	"testing"

	"github.com/kr/pretty"
	"github.com/onionmixer/rdedisktool/dmk"
	"github.com/onionmixer/rdedisktool/geometry"
	"github.com/onionmixer/rdedisktool/xsa"
)

func randomSector(t *testing.T, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		t.Fatal(err)
	}
	return buf
}

func TestDSKReadWriteRoundTrip(t *testing.T) {
	img := NewDSK()
	want := randomSector(t, 512)
	if err := img.WriteSector(3, 5, want); err != nil {
		t.Fatalf("WriteSector: %v", err)
	}
	got, err := img.ReadSector(3, 5)
	if err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	if diff := pretty.Diff(got, want); len(diff) > 0 {
		t.Errorf("round trip mismatch: %v", diff)
	}
}

func TestDSKLoadRoundTrip(t *testing.T) {
	img := NewDSK()
	data := img.Bytes()
	reloaded, err := LoadDSK(data, img.Geometry())
	if err != nil {
		t.Fatalf("LoadDSK: %v", err)
	}
	if reloaded.Geometry() != img.Geometry() {
		t.Errorf("geometry mismatch after reload")
	}
}

func TestLBAToLinear(t *testing.T) {
	geom := geometry.Geometry{Tracks: 80, Sides: 2, SectorsPerTrack: 9, BytesPerSector: 512}
	// LBA 0 is cylinder 0, side 0, sector 1 -> linear track 0.
	linear, sector := LBAToLinear(0, geom)
	if linear != 0 || sector != 1 {
		t.Errorf("LBA 0: got (track=%d sector=%d), want (0,1)", linear, sector)
	}
	// LBA 9 is the first sector of side 1, same cylinder.
	linear, sector = LBAToLinear(9, geom)
	if linear != 1 || sector != 1 {
		t.Errorf("LBA 9: got (track=%d sector=%d), want (1,1)", linear, sector)
	}
}

func TestDMKReadWriteRoundTrip(t *testing.T) {
	sectors := make([][]byte, 10) // index 0 unused, sectors 1..9
	for s := 1; s <= 9; s++ {
		sectors[s] = randomSector(t, 512)
	}
	trackData0 := dmk.BuildTrack(0, 0, sectors, 6250)
	trackData1 := dmk.BuildTrack(0, 1, sectors, 6250)
	raw := &dmk.Image{
		Header: dmk.Header{Tracks: 1, TrackLength: 6250},
		Tracks: [][2][]byte{{trackData0, trackData1}},
	}
	img := NewDMK(raw)

	got, err := img.ReadSector(0, 3) // linear track 0 -> cylinder 0, side 0
	if err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	if diff := pretty.Diff(got, sectors[3]); len(diff) > 0 {
		t.Errorf("side 0 mismatch: %v", diff)
	}

	got, err = img.ReadSector(1, 3) // linear track 1 -> cylinder 0, side 1
	if err != nil {
		t.Fatalf("ReadSector side 1: %v", err)
	}
	if diff := pretty.Diff(got, sectors[3]); len(diff) > 0 {
		t.Errorf("side 1 mismatch: %v", diff)
	}
}

func TestXSADecodeIsWriteProtected(t *testing.T) {
	plain := make([]byte, 512*9*2*80)
	plain[0] = 0xEB
	encoded := xsa.Encode(plain, "DISK.DSK")

	img, err := DecodeXSA(encoded)
	if err != nil {
		t.Fatalf("DecodeXSA: %v", err)
	}
	if !img.WriteProtected() {
		t.Error("expected MSXXSA image to report write protected")
	}
	if err := img.WriteSector(0, 1, make([]byte, 512)); err == nil {
		t.Error("expected write to a decoded XSA image to fail")
	}
	got, err := img.ReadSector(0, 1)
	if err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	if got[0] != 0xEB {
		t.Errorf("first sector byte = 0x%02X, want 0xEB", got[0])
	}
}
