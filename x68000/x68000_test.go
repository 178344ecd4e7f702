package x68000

import (
	"crypto/rand"
	"testing"

	"github.com/kr/pretty"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		t.Fatal(err)
	}
	return buf
}

func TestXDFReadWriteRoundTrip(t *testing.T) {
	img := NewXDF()
	want := randomBytes(t, 1024)
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

func TestXDFFixedSize(t *testing.T) {
	img := NewXDF()
	if len(img.Bytes()) != xdfFileSize {
		t.Errorf("XDF size = %d, want %d", len(img.Bytes()), xdfFileSize)
	}
}

func TestXDFLoadToleratesSizeSlop(t *testing.T) {
	data := make([]byte, xdfFileSize-500)
	if _, err := LoadXDF(data); err != nil {
		t.Errorf("LoadXDF should tolerate a slightly short file: %v", err)
	}
	tooShort := make([]byte, xdfFileSize-2000)
	if _, err := LoadXDF(tooShort); err == nil {
		t.Error("expected LoadXDF to reject a file far too short")
	}
}

func TestXDFOutOfRange(t *testing.T) {
	img := NewXDF()
	if _, err := img.ReadSector(200, 1); err == nil {
		t.Error("expected error for out-of-range track")
	}
	if _, err := img.ReadSector(0, 9); err == nil {
		t.Error("expected error for out-of-range sector")
	}
}

func TestDIMReadWriteRoundTrip(t *testing.T) {
	img := NewDIM()
	want := randomBytes(t, 1024)
	if err := img.WriteSector(5, 2, want); err != nil {
		t.Fatalf("WriteSector: %v", err)
	}
	got, err := img.ReadSector(5, 2)
	if err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	if diff := pretty.Diff(got, want); len(diff) > 0 {
		t.Errorf("round trip mismatch: %v", diff)
	}
}

func TestDIMEncodeDecodeRoundTrip(t *testing.T) {
	img := NewDIM()
	want := randomBytes(t, 1024)
	if err := img.WriteSector(7, 1, want); err != nil {
		t.Fatalf("WriteSector: %v", err)
	}
	encoded := img.Encode()
	reloaded, err := LoadDIM(encoded)
	if err != nil {
		t.Fatalf("LoadDIM: %v", err)
	}
	got, err := reloaded.ReadSector(7, 1)
	if err != nil {
		t.Fatalf("ReadSector after reload: %v", err)
	}
	if diff := pretty.Diff(got, want); len(diff) > 0 {
		t.Errorf("round trip mismatch: %v", diff)
	}
}

func TestDIMSparseTracksShrinkFile(t *testing.T) {
	img := newDIM(DIM2HD)
	for i := range img.trkflag {
		img.trkflag[i] = false
	}
	img.overtrack = 1 // require the explicit flags, don't force all-present
	img.trkflag[0] = true

	encoded := img.Encode()
	wantSize := dimHeaderSize + dimTrackSizes[DIM2HD]
	if len(encoded) != wantSize {
		t.Errorf("sparse encode size = %d, want %d", len(encoded), wantSize)
	}
}

func TestDIMOvertrackZeroForcesAllPresent(t *testing.T) {
	img := newDIM(DIM2HD)
	for i := range img.trkflag {
		img.trkflag[i] = false
	}
	img.overtrack = 0
	encoded := img.Encode()

	// Re-loading must see every track as present because overtrack==0.
	decoded, err := LoadDIM(encoded)
	if err != nil {
		t.Fatalf("LoadDIM: %v", err)
	}
	for i, present := range decoded.trkflag {
		if !present {
			t.Fatalf("track %d should be forced present when overtrack==0", i)
		}
	}
}

func TestDIMtoXDFConversion(t *testing.T) {
	img := NewDIM()
	want := randomBytes(t, 1024)
	if err := img.WriteSector(0, 1, want); err != nil {
		t.Fatalf("WriteSector: %v", err)
	}
	xdf, err := ConvertToXDF(img)
	if err != nil {
		t.Fatalf("ConvertToXDF: %v", err)
	}
	got, err := xdf.ReadSector(0, 1)
	if err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	if diff := pretty.Diff(got, want); len(diff) > 0 {
		t.Errorf("conversion mismatch: %v", diff)
	}
}

func TestDIMConvertRejectsNon2HD(t *testing.T) {
	img := newDIM(DIM2HS)
	if _, err := ConvertToXDF(img); err == nil {
		t.Error("expected conversion from a non-2HD DIM type to fail")
	}
}
