package dos3

import (
	"crypto/rand"
	"os"
	"reflect"
	"testing"

	"github.com/onionmixer/rdedisktool/disk"
	"github.com/onionmixer/rdedisktool/types"
)

// TestVTOCMarshalRoundtrip checks a simple roundtrip of VTOC data.
func TestVTOCMarshalRoundtrip(t *testing.T) {
	buf := make([]byte, 256)
	_, _ = rand.Read(buf)
	buf1 := make([]byte, 256)
	copy(buf1, buf)
	vtoc1 := &VTOC{}
	err := vtoc1.FromSector(buf1)
	if err != nil {
		t.Fatal(err)
	}
	buf2, err := vtoc1.ToSector()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(buf, buf2) {
		t.Errorf("Buffers differ: %v != %v", buf, buf2)
	}
	vtoc2 := &VTOC{}
	err = vtoc2.FromSector(buf2)
	if err != nil {
		t.Fatal(err)
	}
	if *vtoc1 != *vtoc2 {
		t.Errorf("Structs differ: %v != %v", vtoc1, vtoc2)
	}
}

// TestCatalogSectorMarshalRoundtrip checks a simple roundtrip of CatalogSector data.
func TestCatalogSectorMarshalRoundtrip(t *testing.T) {
	buf := make([]byte, 256)
	_, _ = rand.Read(buf)
	buf1 := make([]byte, 256)
	copy(buf1, buf)
	cs1 := &CatalogSector{}
	err := cs1.FromSector(buf1)
	if err != nil {
		t.Fatal(err)
	}
	buf2, err := cs1.ToSector()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(buf, buf2) {
		t.Errorf("Buffers differ: %v != %v", buf, buf2)
	}
	cs2 := &CatalogSector{}
	err = cs2.FromSector(buf2)
	if err != nil {
		t.Fatal(err)
	}
	if *cs1 != *cs2 {
		t.Errorf("Structs differ: %v != %v", cs1, cs2)
	}
}

// TestTrackSectorListMarshalRoundtrip checks a simple roundtrip of TrackSectorList data.
func TestTrackSectorListMarshalRoundtrip(t *testing.T) {
	buf := make([]byte, 256)
	_, _ = rand.Read(buf)
	buf1 := make([]byte, 256)
	copy(buf1, buf)
	cs1 := &TrackSectorList{}
	err := cs1.FromSector(buf1)
	if err != nil {
		t.Fatal(err)
	}
	buf2, err := cs1.ToSector()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(buf, buf2) {
		t.Errorf("Buffers differ: %v != %v", buf, buf2)
	}
	cs2 := &TrackSectorList{}
	err = cs2.FromSector(buf2)
	if err != nil {
		t.Fatal(err)
	}
	if *cs1 != *cs2 {
		t.Errorf("Structs differ: %v != %v", cs1, cs2)
	}
}

// TestReadCatalog tests the reading of the catalog of a test disk.
func TestReadCatalog(t *testing.T) {
	diskbytes, err := os.ReadFile("testdata/dos33test.dsk")
	if err != nil {
		t.Skipf("no testdata fixture available: %v", err)
	}
	fds, deleted, err := ReadCatalog(diskbytes, false)
	if err != nil {
		t.Fatal(err)
	}

	fdsWant := []struct {
		locked bool
		typ    string
		size   int
		name   string
	}{
		{true, "A", 3, "HELLO"},
		{true, "I", 3, "APPLESOFT"},
		{true, "B", 6, "LOADER.OBJ0"},
		{true, "B", 42, "FPBASIC"},
		{true, "B", 42, "INTBASIC"},
		{true, "A", 3, "MASTER"},
		{true, "B", 9, "MASTER CREATE"},
		{true, "I", 9, "COPY"},
		{true, "B", 3, "COPY.OBJ0"},
		{true, "A", 9, "COPYA"},
		{true, "B", 3, "CHAIN"},
		{true, "A", 14, "RENUMBER"},
		{true, "A", 3, "FILEM"},
		{true, "B", 20, "FID"},
		{true, "A", 3, "CONVERT13"},
		{true, "B", 27, "MUFFIN"},
		{true, "A", 3, "START13"},
		{true, "B", 7, "BOOT13"},
		{true, "A", 4, "SLOT#"},
		{false, "A", 3, "EXAMPLE"},
		{false, "I", 2, "EXAMPLE2"},
		{false, "I", 2, "EXAMPLE3"},
	}

	deletedWant := []struct {
		locked bool
		typ    string
		size   int
		name   string
	}{
		{false, "I", 3, "EXAMPLE4"},
		{false, "A", 3, "EXAMPLE5"},
	}

	if len(fdsWant) != len(fds) {
		t.Fatalf("Want %d undeleted files; got %d", len(fdsWant), len(fds))
	}

	if len(deletedWant) != len(deleted) {
		t.Fatalf("Want %d deleted files; got %d", len(deletedWant), len(deleted))
	}

	for i, wantInfo := range fdsWant {
		if want, got := wantInfo.name, fds[i].FilenameString(); want != got {
			t.Errorf("Want filename %d to be %q; got %q", i+1, want, got)
		}
	}

	for i, wantInfo := range deletedWant {
		if want, got := wantInfo.name, deleted[i].FilenameString(); want != got {
			t.Errorf("Want deleted filename %d to be %q; got %q", i+1, want, got)
		}
	}

	// TODO(zellyn): Check type, size, locked status.
}

// newTestDisk builds a blank, valid 35-track DOS 3.3 disk image: a
// flushed VTOC and a single, empty catalog sector at the standard
// track 17/sector 15, with track 17 itself marked fully in-use.
func newTestDisk(t *testing.T) []byte {
	t.Helper()
	diskbytes := make([]byte, disk.FloppyDiskBytes)
	v := DefaultVTOC()
	v.FreeSectors[VTOCTrack] = TrackFreeSectors{0x00, 0x00, 0x00, 0x00}
	if err := flushVTOC(diskbytes, v); err != nil {
		t.Fatalf("flushVTOC: %v", err)
	}
	cs := CatalogSector{}
	buf, err := cs.ToSector()
	if err != nil {
		t.Fatalf("CatalogSector.ToSector: %v", err)
	}
	if err := disk.WriteSector(diskbytes, v.CatalogTrack, v.CatalogSector, buf); err != nil {
		t.Fatalf("WriteSector: %v", err)
	}
	return diskbytes
}

func TestPutFileGetFileRoundTrip(t *testing.T) {
	diskbytes := newTestDisk(t)
	o := operator{data: diskbytes, debug: false}

	data := []byte("HELLO, WORLD\n")
	fi := types.FileInfo{
		Descriptor: types.Descriptor{Name: "GREETING", Type: types.FiletypeASCIIText},
		Data:       data,
	}
	existed, err := o.PutFile(fi, false)
	if err != nil {
		t.Fatalf("PutFile: %v", err)
	}
	if existed {
		t.Errorf("PutFile reported existed=true for a new file")
	}

	got, err := o.GetFile("GREETING")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if string(got.Data) != string(data) {
		t.Errorf("GetFile data = %q, want %q", got.Data, data)
	}

	descs, err := o.Catalog("")
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if len(descs) != 1 || descs[0].Name != "GREETING" {
		t.Fatalf("Catalog = %+v, want a single GREETING entry", descs)
	}

	if issues, err := Validate(diskbytes, false); err != nil {
		t.Fatalf("Validate: %v", err)
	} else if len(issues) > 0 {
		t.Errorf("Validate found issues on a freshly written disk: %+v", issues)
	}
}

func TestPutFileRejectsDuplicateWithoutOverwrite(t *testing.T) {
	diskbytes := newTestDisk(t)
	o := operator{data: diskbytes, debug: false}

	fi := types.FileInfo{
		Descriptor: types.Descriptor{Name: "DUP", Type: types.FiletypeASCIIText},
		Data:       []byte("one"),
	}
	if _, err := o.PutFile(fi, false); err != nil {
		t.Fatalf("first PutFile: %v", err)
	}
	if _, err := o.PutFile(fi, false); err == nil {
		t.Error("expected PutFile without overwrite to fail for an existing file")
	}
	if existed, err := o.PutFile(fi, true); err != nil {
		t.Fatalf("overwrite PutFile: %v", err)
	} else if !existed {
		t.Error("expected overwrite PutFile to report existed=true")
	}
}

func TestPutFileBinaryHeaderRoundTrip(t *testing.T) {
	diskbytes := newTestDisk(t)
	o := operator{data: diskbytes, debug: false}

	payload := make([]byte, 600)
	if _, err := rand.Read(payload); err != nil {
		t.Fatal(err)
	}
	fi := types.FileInfo{
		Descriptor:   types.Descriptor{Name: "BINFILE", Type: types.FiletypeBinary},
		Data:         payload,
		StartAddress: 0x2000,
	}
	if _, err := o.PutFile(fi, false); err != nil {
		t.Fatalf("PutFile: %v", err)
	}
	got, err := o.GetFile("BINFILE")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if got.StartAddress != 0x2000 {
		t.Errorf("StartAddress = 0x%x, want 0x2000", got.StartAddress)
	}
	if !reflect.DeepEqual(got.Data, payload) {
		t.Errorf("round trip data mismatch: got %d bytes, want %d", len(got.Data), len(payload))
	}
}

func TestDeleteFreesSectorsAndRemovesCatalogEntry(t *testing.T) {
	diskbytes := newTestDisk(t)
	o := operator{data: diskbytes, debug: false}

	payload := make([]byte, 4000) // spans several T/S list sectors' worth isn't needed, just several sectors
	if _, err := rand.Read(payload); err != nil {
		t.Fatal(err)
	}
	fi := types.FileInfo{
		Descriptor: types.Descriptor{Name: "BIGFILE", Type: types.FiletypeBinary},
		Data:       payload,
	}
	if _, err := o.PutFile(fi, false); err != nil {
		t.Fatalf("PutFile: %v", err)
	}

	before, err := readVTOC(diskbytes)
	if err != nil {
		t.Fatalf("readVTOC: %v", err)
	}
	freeBefore := 0
	for track := range before.FreeSectors {
		for s := byte(0); s < 16; s++ {
			if before.FreeSectors[track].IsFree(s) {
				freeBefore++
			}
		}
	}

	deleted, err := o.Delete("BIGFILE")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !deleted {
		t.Fatal("Delete reported false for an existing file")
	}

	if _, err := o.GetFile("BIGFILE"); err == nil {
		t.Error("expected GetFile to fail after Delete")
	}

	after, err := readVTOC(diskbytes)
	if err != nil {
		t.Fatalf("readVTOC: %v", err)
	}
	freeAfter := 0
	for track := range after.FreeSectors {
		for s := byte(0); s < 16; s++ {
			if after.FreeSectors[track].IsFree(s) {
				freeAfter++
			}
		}
	}
	if freeAfter <= freeBefore {
		t.Errorf("expected more free sectors after Delete: before=%d after=%d", freeBefore, freeAfter)
	}

	if issues, err := Validate(diskbytes, false); err != nil {
		t.Fatalf("Validate: %v", err)
	} else if len(issues) > 0 {
		t.Errorf("Validate found issues after Delete: %+v", issues)
	}

	deletedAgain, err := o.Delete("BIGFILE")
	if err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if deletedAgain {
		t.Error("expected second Delete to report false")
	}
}

func TestValidateCatchesMismarkedFreeSector(t *testing.T) {
	diskbytes := newTestDisk(t)
	o := operator{data: diskbytes, debug: false}

	fi := types.FileInfo{
		Descriptor: types.Descriptor{Name: "CHECKME", Type: types.FiletypeASCIIText},
		Data:       []byte("some data"),
	}
	if _, err := o.PutFile(fi, false); err != nil {
		t.Fatalf("PutFile: %v", err)
	}

	v, err := readVTOC(diskbytes)
	if err != nil {
		t.Fatalf("readVTOC: %v", err)
	}
	// Corrupt the bitmap: mark every data track entirely free, even
	// though CHECKME's sectors are still in use.
	for track := 1; track < int(v.NumTracks); track++ {
		if track == VTOCTrack {
			continue
		}
		v.FreeSectors[track] = TrackFreeSectors{0xff, 0xff, 0x00, 0x00}
	}
	if err := flushVTOC(diskbytes, v); err != nil {
		t.Fatalf("flushVTOC: %v", err)
	}

	issues, err := Validate(diskbytes, false)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	found := false
	for _, issue := range issues {
		if issue.Kind == IssueUsedButMarkedFree {
			found = true
		}
	}
	if !found {
		t.Errorf("expected Validate to report a used-but-marked-free sector, got %+v", issues)
	}
}
