package prodos

import (
	"crypto/rand"
	"strings"
	"testing"

	"github.com/kr/pretty"
	"github.com/onionmixer/rdedisktool/disk"
	"github.com/onionmixer/rdedisktool/types"
)

func randomBlock() disk.Block {
	var b1 disk.Block
	_, _ = rand.Read(b1[:])
	return b1
}

// TestVolumeDirectoryKeyBlockMarshalRoundtrip checks a simple roundtrip of VDKB data.
func TestVolumeDirectoryKeyBlockMarshalRoundtrip(t *testing.T) {
	b1 := randomBlock()
	vdkb := &VolumeDirectoryKeyBlock{}
	err := vdkb.FromBlock(b1)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := vdkb.ToBlock()
	if err != nil {
		t.Fatal(err)
	}
	if b1 != b2 {
		t.Fatalf("Blocks differ: %s", strings.Join(pretty.Diff(b1[:], b2[:]), "; "))
	}
	vdkb2 := &VolumeDirectoryKeyBlock{}
	err = vdkb2.FromBlock(b2)
	if err != nil {
		t.Fatal(err)
	}
	if *vdkb != *vdkb2 {
		t.Errorf("Structs differ: %v != %v", vdkb, vdkb2)
	}
}

// TestVolumeDirectoryBlockMarshalRoundtrip checks a simple roundtrip of VDB data.
func TestVolumeDirectoryBlockMarshalRoundtrip(t *testing.T) {
	b1 := randomBlock()
	vdb := &VolumeDirectoryBlock{}
	err := vdb.FromBlock(b1)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := vdb.ToBlock()
	if err != nil {
		t.Fatal(err)
	}
	if b1 != b2 {
		t.Fatalf("Blocks differ: %s", strings.Join(pretty.Diff(b1[:], b2[:]), "; "))
	}
	vdb2 := &VolumeDirectoryBlock{}
	err = vdb2.FromBlock(b2)
	if err != nil {
		t.Fatal(err)
	}
	if *vdb != *vdb2 {
		t.Errorf("Structs differ: %v != %v", vdb, vdb2)
	}
}

// TestSubdirectoryKeyBlockMarshalRoundtrip checks a simple roundtrip of SKB data.
func TestSubdirectoryKeyBlockMarshalRoundtrip(t *testing.T) {
	b1 := randomBlock()
	skb := &SubdirectoryKeyBlock{}
	err := skb.FromBlock(b1)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := skb.ToBlock()
	if err != nil {
		t.Fatal(err)
	}
	if b1 != b2 {
		t.Fatalf("Blocks differ: %s", strings.Join(pretty.Diff(b1[:], b2[:]), "; "))
	}
	skb2 := &SubdirectoryKeyBlock{}
	err = skb2.FromBlock(b2)
	if err != nil {
		t.Fatal(err)
	}
	if *skb != *skb2 {
		t.Errorf("Structs differ: %v != %v", skb, skb2)
	}
}

// TestSubdirectoryBlockMarshalRoundtrip checks a simple roundtrip of SB data.
func TestSubdirectoryBlockMarshalRoundtrip(t *testing.T) {
	b1 := randomBlock()
	sb := &SubdirectoryBlock{}
	err := sb.FromBlock(b1)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := sb.ToBlock()
	if err != nil {
		t.Fatal(err)
	}
	if b1 != b2 {
		t.Fatalf("Blocks differ: %s", strings.Join(pretty.Diff(b1[:], b2[:]), "; "))
	}
	sb2 := &SubdirectoryBlock{}
	err = sb2.FromBlock(b2)
	if err != nil {
		t.Fatal(err)
	}
	if *sb != *sb2 {
		t.Errorf("Structs differ: %v != %v", sb, sb2)
	}
}

// newTestVolume builds a blank, valid ProDOS volume of the given size
// in blocks, with a 4-block volume directory starting at block 2 and
// a bitmap starting at block 6. Blocks 0-6 are marked used.
func newTestVolume(t *testing.T, totalBlocks uint16) []byte {
	t.Helper()
	data := make([]byte, int(totalBlocks)*blockSize)

	bitmap := NewVolumeBitMap(6, totalBlocks)
	for b := uint16(0); b < 7; b++ {
		bitmap.MarkUsed(b)
	}
	if err := bitmap.Write(data); err != nil {
		t.Fatalf("writing bitmap: %v", err)
	}

	header := VolumeDirectoryHeader{
		TypeAndNameLength: byte(TypeVolumeDirectoryHeader<<4) | byte(len("TESTVOL")),
		EntryLength:       0x27,
		EntriesPerBlock:   13,
		BitMapPointer:     6,
		TotalBlocks:       totalBlocks,
		Access:            AccessReadable | AccessWritable | AccessRenamable | AccessDestroyable,
	}
	copy(header.VolumeName[:], "TESTVOL")

	key := VolumeDirectoryKeyBlock{Header: header, Next: 3}
	key.SetBlock(2)
	if err := disk.MarshalBlock(data, key); err != nil {
		t.Fatalf("writing volume directory key block: %v", err)
	}

	chain := []struct{ num, prev, next uint16 }{
		{3, 2, 4},
		{4, 3, 5},
		{5, 4, 0},
	}
	for _, b := range chain {
		vdb := VolumeDirectoryBlock{Prev: b.prev, Next: b.next}
		vdb.SetBlock(b.num)
		if err := disk.MarshalBlock(data, vdb); err != nil {
			t.Fatalf("writing volume directory block %d: %v", b.num, err)
		}
	}

	return data
}

func TestPutFileGetFileRoundTrip(t *testing.T) {
	data := newTestVolume(t, 280)
	op := operator{data: data}

	fi := types.FileInfo{
		Descriptor: types.Descriptor{Name: "GREETING", Type: types.FiletypeASCIIText},
		Data:       []byte("hello, prodos"),
	}
	if existed, err := op.PutFile(fi, false); err != nil {
		t.Fatalf("PutFile: %v", err)
	} else if existed {
		t.Fatal("PutFile reported existed=true for a new file")
	}

	got, err := op.GetFile("GREETING")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if string(got.Data) != "hello, prodos" {
		t.Errorf("GetFile data = %q, want %q", got.Data, "hello, prodos")
	}

	cat, err := op.Catalog("")
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	found := false
	for _, d := range cat {
		if d.Name == "GREETING" {
			found = true
		}
	}
	if !found {
		t.Error("Catalog does not list GREETING after PutFile")
	}
}

func TestPutFileRejectsDuplicateWithoutOverwrite(t *testing.T) {
	data := newTestVolume(t, 280)
	op := operator{data: data}

	fi := types.FileInfo{
		Descriptor: types.Descriptor{Name: "DUP", Type: types.FiletypeASCIIText},
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
	got, err := op.GetFile("DUP")
	if err != nil {
		t.Fatalf("GetFile after overwrite: %v", err)
	}
	if string(got.Data) != "two" {
		t.Errorf("GetFile data after overwrite = %q, want %q", got.Data, "two")
	}
}

func TestPutFileSaplingRoundTrip(t *testing.T) {
	data := newTestVolume(t, 280)
	op := operator{data: data}

	payload := make([]byte, 5000)
	if _, err := rand.Read(payload); err != nil {
		t.Fatal(err)
	}
	fi := types.FileInfo{
		Descriptor:   types.Descriptor{Name: "BIGFILE", Type: types.FiletypeBinary},
		Data:         payload,
		StartAddress: 0x2000,
	}
	if _, err := op.PutFile(fi, false); err != nil {
		t.Fatalf("PutFile: %v", err)
	}

	got, err := op.GetFile("BIGFILE")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if diff := pretty.Diff(got.Data, payload); len(diff) > 0 {
		t.Errorf("sapling round trip mismatch: %v", diff)
	}
	if got.StartAddress != 0x2000 {
		t.Errorf("StartAddress = 0x%x, want 0x2000", got.StartAddress)
	}
}

func TestPutFileTreeRoundTrip(t *testing.T) {
	data := newTestVolume(t, 2000)
	op := operator{data: data}

	payload := make([]byte, blockSize*256+1000) // just past the sapling limit
	if _, err := rand.Read(payload); err != nil {
		t.Fatal(err)
	}
	fi := types.FileInfo{
		Descriptor: types.Descriptor{Name: "TREEFILE", Type: types.FiletypeBinary},
		Data:       payload,
	}
	if _, err := op.PutFile(fi, false); err != nil {
		t.Fatalf("PutFile: %v", err)
	}

	got, err := op.GetFile("TREEFILE")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if diff := pretty.Diff(got.Data, payload); len(diff) > 0 {
		t.Errorf("tree round trip mismatch: %v", diff)
	}
}

func TestDeleteFreesBlocksAndRemovesEntry(t *testing.T) {
	data := newTestVolume(t, 280)
	op := operator{data: data}

	payload := make([]byte, 4000)
	if _, err := rand.Read(payload); err != nil {
		t.Fatal(err)
	}
	fi := types.FileInfo{
		Descriptor: types.Descriptor{Name: "DOOMED", Type: types.FiletypeBinary},
		Data:       payload,
	}
	if _, err := op.PutFile(fi, false); err != nil {
		t.Fatalf("PutFile: %v", err)
	}

	ok, err := op.Delete("DOOMED")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !ok {
		t.Fatal("Delete returned false for an existing file")
	}

	if _, err := op.GetFile("DOOMED"); err == nil {
		t.Error("expected GetFile to fail after Delete")
	}

	ok, err = op.Delete("DOOMED")
	if err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if ok {
		t.Error("second Delete of the same file should return false")
	}

	// The freed blocks must be reusable: writing a same-sized file
	// again should succeed without running out of space.
	if _, err := op.PutFile(fi, false); err != nil {
		t.Errorf("PutFile after Delete should reuse freed blocks: %v", err)
	}
}
