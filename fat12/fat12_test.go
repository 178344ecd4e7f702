package fat12

import (
	"bytes"
	"testing"

	"github.com/onionmixer/rdedisktool/types"
)

// newTestVolume builds a blank, valid 720KiB MSX-DOS FAT12 volume.
func newTestVolume(t *testing.T) ([]byte, operator) {
	t.Helper()
	const totalSectors = 1440 // 720KiB / 512
	bpb := DefaultMSXBPB(totalSectors)
	data := make([]byte, int(totalSectors)*int(bpb.BytesPerSector))
	if err := bpb.WriteTo(data); err != nil {
		t.Fatalf("writing BPB: %v", err)
	}
	op := operator{data: data, bpb: bpb}
	return data, op
}

func TestSeemsToMatch(t *testing.T) {
	data, _ := newTestVolume(t)
	var f OperatorFactory
	if !f.SeemsToMatch(data, false) {
		t.Fatal("SeemsToMatch returned false for a freshly formatted MSX-DOS volume")
	}
	if f.SeemsToMatch(make([]byte, 1024), false) {
		t.Fatal("SeemsToMatch returned true for an all-zero buffer")
	}
}

func TestPutFileGetFileRoundTrip(t *testing.T) {
	_, op := newTestVolume(t)

	fi := types.FileInfo{
		Descriptor: types.Descriptor{Name: "GREETING.TXT"},
		Data:       []byte("hello, fat12"),
	}
	existed, err := op.PutFile(fi, false)
	if err != nil {
		t.Fatalf("PutFile: %v", err)
	}
	if existed {
		t.Fatal("PutFile reported existed=true for a new file")
	}

	got, err := op.GetFile("GREETING.TXT")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if string(got.Data) != "hello, fat12" {
		t.Errorf("GetFile data = %q, want %q", got.Data, "hello, fat12")
	}

	cat, err := op.Catalog("")
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	found := false
	for _, d := range cat {
		if d.Name == "GREETING.TXT" {
			found = true
		}
	}
	if !found {
		t.Error("Catalog does not list GREETING.TXT after PutFile")
	}
}

func TestPutFileRejectsDuplicateWithoutOverwrite(t *testing.T) {
	_, op := newTestVolume(t)

	fi := types.FileInfo{
		Descriptor: types.Descriptor{Name: "DUP.TXT"},
		Data:       []byte("one"),
	}
	if _, err := op.PutFile(fi, false); err != nil {
		t.Fatalf("first PutFile: %v", err)
	}
	if _, err := op.PutFile(fi, false); err == nil {
		t.Fatal("expected error writing duplicate file without overwrite")
	}
	fi.Data = []byte("two")
	existed, err := op.PutFile(fi, true)
	if err != nil {
		t.Fatalf("overwrite PutFile: %v", err)
	}
	if !existed {
		t.Error("expected existed=true when overwriting")
	}
	got, err := op.GetFile("DUP.TXT")
	if err != nil {
		t.Fatalf("GetFile after overwrite: %v", err)
	}
	if string(got.Data) != "two" {
		t.Errorf("GetFile data after overwrite = %q, want %q", got.Data, "two")
	}
}

func TestPutFileMultiClusterRoundTrip(t *testing.T) {
	_, op := newTestVolume(t)

	payload := bytes.Repeat([]byte{0xAB, 0xCD, 0xEF, 0x01}, 1000) // 4000 bytes, several 1024-byte clusters
	fi := types.FileInfo{
		Descriptor: types.Descriptor{Name: "BIGFILE.BIN"},
		Data:       payload,
	}
	if _, err := op.PutFile(fi, false); err != nil {
		t.Fatalf("PutFile: %v", err)
	}

	got, err := op.GetFile("BIGFILE.BIN")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if !bytes.Equal(got.Data, payload) {
		t.Errorf("multi-cluster round trip mismatch: got %d bytes, want %d", len(got.Data), len(payload))
	}
}

func TestDeleteFreesClustersAndRemovesEntry(t *testing.T) {
	_, op := newTestVolume(t)

	payload := bytes.Repeat([]byte{0x42}, 3000)
	fi := types.FileInfo{
		Descriptor: types.Descriptor{Name: "DOOMED.BIN"},
		Data:       payload,
	}
	if _, err := op.PutFile(fi, false); err != nil {
		t.Fatalf("PutFile: %v", err)
	}

	ok, err := op.Delete("DOOMED.BIN")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !ok {
		t.Fatal("Delete returned false for an existing file")
	}

	if _, err := op.GetFile("DOOMED.BIN"); err == nil {
		t.Error("expected GetFile to fail after Delete")
	}

	ok, err = op.Delete("DOOMED.BIN")
	if err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if ok {
		t.Error("second Delete of the same file should return false")
	}

	// The freed clusters must be reusable.
	if _, err := op.PutFile(fi, false); err != nil {
		t.Errorf("PutFile after Delete should reuse freed clusters: %v", err)
	}
}

func TestEmptyFileHasNoStartCluster(t *testing.T) {
	_, op := newTestVolume(t)

	fi := types.FileInfo{
		Descriptor: types.Descriptor{Name: "EMPTY.TXT"},
		Data:       []byte{},
	}
	if _, err := op.PutFile(fi, false); err != nil {
		t.Fatalf("PutFile: %v", err)
	}
	got, err := op.GetFile("EMPTY.TXT")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if len(got.Data) != 0 {
		t.Errorf("GetFile data = %q, want empty", got.Data)
	}
	entries, err := op.readRootDir()
	if err != nil {
		t.Fatalf("readRootDir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("readRootDir returned no entries")
	}
	if entries[0].StartCluster != 0 {
		t.Errorf("StartCluster = %d, want 0", entries[0].StartCluster)
	}
}

// TestSubdirectoryTraversal builds a one-level subdirectory by hand
// (a directory-attribute root entry pointing at a cluster holding
// more DirEntry records) and checks that Catalog and GetFile can
// descend into it.
func TestSubdirectoryTraversal(t *testing.T) {
	_, op := newTestVolume(t)

	const subdirCluster = 2
	const fileCluster = 3

	fat, err := op.readFAT()
	if err != nil {
		t.Fatalf("readFAT: %v", err)
	}
	setFAT12Entry(fat, subdirCluster, clusterEOFMark)
	setFAT12Entry(fat, fileCluster, clusterEOFMark)
	if err := op.writeFAT(fat); err != nil {
		t.Fatalf("writeFAT: %v", err)
	}

	payload := []byte("nested file contents")
	if err := op.writeCluster(fileCluster, payload); err != nil {
		t.Fatalf("writeCluster: %v", err)
	}

	var fileEntry DirEntry
	name, ext, err := parse8Dot3("NESTED.TXT")
	if err != nil {
		t.Fatalf("parse8Dot3: %v", err)
	}
	fileEntry.Name = name
	fileEntry.Ext = ext
	fileEntry.StartCluster = fileCluster
	fileEntry.FileSize = uint32(len(payload))

	subdirBuf := make([]byte, op.bytesPerCluster())
	copy(subdirBuf[0:dirEntrySize], fileEntry.toBytes())
	if err := op.writeCluster(subdirCluster, subdirBuf); err != nil {
		t.Fatalf("writeCluster: %v", err)
	}

	entries, err := op.readRootDir()
	if err != nil {
		t.Fatalf("readRootDir: %v", err)
	}
	dirName, dirExt, err := parse8Dot3("SUBDIR")
	if err != nil {
		t.Fatalf("parse8Dot3: %v", err)
	}
	entries[0].Name = dirName
	entries[0].Ext = dirExt
	entries[0].Attr = AttrDirectory
	entries[0].StartCluster = subdirCluster
	if err := op.writeRootEntry(0, entries[0]); err != nil {
		t.Fatalf("writeRootEntry: %v", err)
	}

	cat, err := op.Catalog("SUBDIR")
	if err != nil {
		t.Fatalf("Catalog(SUBDIR): %v", err)
	}
	if len(cat) != 1 || cat[0].Name != "NESTED.TXT" {
		t.Fatalf("Catalog(SUBDIR) = %+v, want one entry NESTED.TXT", cat)
	}

	got, err := op.GetFile("SUBDIR/NESTED.TXT")
	if err != nil {
		t.Fatalf("GetFile(SUBDIR/NESTED.TXT): %v", err)
	}
	if string(got.Data) != string(payload) {
		t.Errorf("GetFile data = %q, want %q", got.Data, payload)
	}
}

func TestFAT12EntryPacking(t *testing.T) {
	fat := make([]byte, 12)
	setFAT12Entry(fat, 2, 0xABC)
	setFAT12Entry(fat, 3, 0x123)
	if got := getFAT12Entry(fat, 2); got != 0xABC {
		t.Errorf("even cluster readback = %03X, want ABC", got)
	}
	if got := getFAT12Entry(fat, 3); got != 0x123 {
		t.Errorf("odd cluster readback = %03X, want 123", got)
	}
}
