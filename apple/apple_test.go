package apple

import (
	"crypto/rand"
	"testing"

	"github.com/kr/pretty"
)

func randomSector(t *testing.T) []byte {
	t.Helper()
	buf := make([]byte, 256)
	if _, err := rand.Read(buf); err != nil {
		t.Fatal(err)
	}
	return buf
}

func TestFlatDOReadWriteRoundTrip(t *testing.T) {
	img := NewDO()
	want := randomSector(t)
	if err := img.WriteSector(10, 3, want); err != nil {
		t.Fatalf("WriteSector: %v", err)
	}
	got, err := img.ReadSector(10, 3)
	if err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	if diff := pretty.Diff(got, want); len(diff) > 0 {
		t.Errorf("round trip mismatch: %v", diff)
	}
}

func TestFlatPOLoadRoundTrip(t *testing.T) {
	img := NewPO()
	data := img.Bytes()
	loaded, err := LoadPO(data)
	if err != nil {
		t.Fatalf("LoadPO: %v", err)
	}
	if loaded.Geometry() != img.Geometry() {
		t.Errorf("geometry mismatch: got %+v, want %+v", loaded.Geometry(), img.Geometry())
	}
}

func TestFlatSectorOutOfRange(t *testing.T) {
	img := NewDO()
	if _, err := img.ReadSector(99, 0); err == nil {
		t.Error("expected error for out-of-range track")
	}
	if _, err := img.ReadSector(0, 99); err == nil {
		t.Error("expected error for out-of-range sector")
	}
}

func TestFlatWriteProtected(t *testing.T) {
	img := NewDO()
	img.SetWriteProtected(true)
	if err := img.WriteSector(0, 0, make([]byte, 256)); err == nil {
		t.Error("expected write-protected error")
	}
}

func TestConvertDOtoPOandBack(t *testing.T) {
	do := NewDO()
	sectors := make(map[int][]byte)
	for s := 0; s < 16; s++ {
		data := randomSector(t)
		sectors[s] = data
		if err := do.WriteSector(5, s, data); err != nil {
			t.Fatalf("WriteSector: %v", err)
		}
	}

	po, err := ConvertDOtoPO(do)
	if err != nil {
		t.Fatalf("ConvertDOtoPO: %v", err)
	}
	back, err := ConvertPOtoDO(po)
	if err != nil {
		t.Fatalf("ConvertPOtoDO: %v", err)
	}

	for s, want := range sectors {
		got, err := back.ReadSector(5, s)
		if err != nil {
			t.Fatalf("ReadSector: %v", err)
		}
		if diff := pretty.Diff(got, want); len(diff) > 0 {
			t.Errorf("sector %d round trip mismatch: %v", s, diff)
		}
	}
}

func TestNibEncodeDecodeRoundTrip(t *testing.T) {
	img := NewNIB()
	want := randomSector(t)
	if err := img.WriteSector(20, 7, want); err != nil {
		t.Fatalf("WriteSector: %v", err)
	}
	got, err := img.ReadSector(20, 7)
	if err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	if diff := pretty.Diff(got, want); len(diff) > 0 {
		t.Errorf("round trip mismatch: %v", diff)
	}

	raw := img.Bytes()
	reloaded, err := LoadNIB(raw)
	if err != nil {
		t.Fatalf("LoadNIB: %v", err)
	}
	got2, err := reloaded.ReadSector(20, 7)
	if err != nil {
		t.Fatalf("ReadSector after reload: %v", err)
	}
	if diff := pretty.Diff(got2, want); len(diff) > 0 {
		t.Errorf("reload round trip mismatch: %v", diff)
	}
}

func TestNB2DifferentTrackSize(t *testing.T) {
	img := NewNB2()
	raw := img.Bytes()
	if len(raw)%img.trackBytes != 0 {
		t.Fatalf("raw size %d not a multiple of track size %d", len(raw), img.trackBytes)
	}
	reloaded, err := LoadNB2(raw)
	if err != nil {
		t.Fatalf("LoadNB2: %v", err)
	}
	if reloaded.Geometry().Tracks != img.Geometry().Tracks {
		t.Errorf("track count mismatch after reload")
	}
}

func TestWOZReadWriteRoundTrip(t *testing.T) {
	img := NewWOZ2()
	// Blank WOZ has no tracks; encode it and decode the result.
	raw, err := img.w.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	reloaded, err := DecodeWOZ(raw)
	if err != nil {
		t.Fatalf("DecodeWOZ: %v", err)
	}
	if reloaded.Format() != img.Format() {
		t.Errorf("format mismatch: got %v, want %v", reloaded.Format(), img.Format())
	}
}
