// Package fat12 implements the MSX-DOS and Human68k flavors of the
// FAT12 filesystem: BIOS parameter block parsing, FAT12 cell
// packing, cluster-chain walking, and the flat 32-byte directory
// entry format, all satisfying the shared types.Operator interface.
package fat12

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/onionmixer/rdedisktool/errs"
	"github.com/onionmixer/rdedisktool/types"
)

const operatorName = "fat12"

// dirEntrySize is the size in bytes of one FAT directory entry.
const dirEntrySize = 32

// Directory entry attribute bits.
const (
	AttrReadOnly    byte = 0x01
	AttrHidden      byte = 0x02
	AttrSystem      byte = 0x04
	AttrVolumeLabel byte = 0x08
	AttrDirectory   byte = 0x10
	AttrArchive     byte = 0x20
)

// FAT12 cluster markers.
const (
	clusterFree    = 0x000
	clusterEOFLow  = 0xFF8
	clusterEOFMark = 0xFFF
	clusterBad     = 0xFF7
)

// BPB holds the fields of a FAT12 BIOS Parameter Block that matter
// for reading and writing MSX-DOS and Human68k volumes. It is parsed
// from, and written back to, the first bytesPerSector-sized sector of
// a device image.
type BPB struct {
	JumpBoot          [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster byte
	ReservedSectors   uint16
	NumFATs           byte
	RootEntryCount    uint16
	TotalSectors16    uint16
	MediaDescriptor   byte
	SectorsPerFAT     uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	TotalSectors32    uint32
}

// bpbSize is the number of bytes of the boot sector that the BPB
// fields above occupy (up through TotalSectors32 at offset 0x20).
const bpbSize = 0x24

// ReadBPB parses a BPB from the start of a device image.
func ReadBPB(data []byte) (BPB, error) {
	if len(data) < bpbSize {
		return BPB{}, fmt.Errorf("device too short to contain a BPB: %d bytes", len(data))
	}
	var b BPB
	copy(b.JumpBoot[:], data[0:3])
	copy(b.OEMName[:], data[3:11])
	b.BytesPerSector = binary.LittleEndian.Uint16(data[0x0B:0x0D])
	b.SectorsPerCluster = data[0x0D]
	b.ReservedSectors = binary.LittleEndian.Uint16(data[0x0E:0x10])
	b.NumFATs = data[0x10]
	b.RootEntryCount = binary.LittleEndian.Uint16(data[0x11:0x13])
	b.TotalSectors16 = binary.LittleEndian.Uint16(data[0x13:0x15])
	b.MediaDescriptor = data[0x15]
	b.SectorsPerFAT = binary.LittleEndian.Uint16(data[0x16:0x18])
	b.SectorsPerTrack = binary.LittleEndian.Uint16(data[0x18:0x1A])
	b.NumHeads = binary.LittleEndian.Uint16(data[0x1A:0x1C])
	b.HiddenSectors = binary.LittleEndian.Uint32(data[0x1C:0x20])
	b.TotalSectors32 = binary.LittleEndian.Uint32(data[0x20:0x24])
	if b.BytesPerSector == 0 {
		return BPB{}, fmt.Errorf("BPB has BytesPerSector==0")
	}
	return b, nil
}

// WriteTo marshals a BPB into the start of a device image.
func (b BPB) WriteTo(data []byte) error {
	if len(data) < bpbSize {
		return fmt.Errorf("device too short to hold a BPB: %d bytes", len(data))
	}
	copy(data[0:3], b.JumpBoot[:])
	copy(data[3:11], b.OEMName[:])
	binary.LittleEndian.PutUint16(data[0x0B:0x0D], b.BytesPerSector)
	data[0x0D] = b.SectorsPerCluster
	binary.LittleEndian.PutUint16(data[0x0E:0x10], b.ReservedSectors)
	data[0x10] = b.NumFATs
	binary.LittleEndian.PutUint16(data[0x11:0x13], b.RootEntryCount)
	binary.LittleEndian.PutUint16(data[0x13:0x15], b.TotalSectors16)
	data[0x15] = b.MediaDescriptor
	binary.LittleEndian.PutUint16(data[0x16:0x18], b.SectorsPerFAT)
	binary.LittleEndian.PutUint16(data[0x18:0x1A], b.SectorsPerTrack)
	binary.LittleEndian.PutUint16(data[0x1A:0x1C], b.NumHeads)
	binary.LittleEndian.PutUint32(data[0x1C:0x20], b.HiddenSectors)
	binary.LittleEndian.PutUint32(data[0x20:0x24], b.TotalSectors32)
	return nil
}

// DefaultMSXBPB returns a BPB for a 720KiB MSX-DOS double-sided,
// double-density diskette holding the given total sector count.
func DefaultMSXBPB(totalSectors uint16) BPB {
	return BPB{
		JumpBoot:          [3]byte{0xEB, 0xFE, 0x90},
		OEMName:           [8]byte{'r', 'd', 'e', 'd', 'i', 's', 'k', ' '},
		BytesPerSector:    512,
		SectorsPerCluster: 2,
		ReservedSectors:   1,
		NumFATs:           2,
		RootEntryCount:    112,
		TotalSectors16:    totalSectors,
		MediaDescriptor:   0xF8,
		SectorsPerFAT:     3,
		SectorsPerTrack:   9,
		NumHeads:          2,
	}
}

// DefaultHuman68kBPB returns a BPB for an X68000 Human68k 1232KiB
// 2HD diskette holding the given total sector count.
func DefaultHuman68kBPB(totalSectors uint16) BPB {
	return BPB{
		JumpBoot:          [3]byte{0xEB, 0xFE, 0x90},
		OEMName:           [8]byte{'H', 'U', 'M', 'A', 'N', '6', '8', 'K'},
		BytesPerSector:    1024,
		SectorsPerCluster: 1,
		ReservedSectors:   1,
		NumFATs:           2,
		RootEntryCount:    192,
		TotalSectors16:    totalSectors,
		MediaDescriptor:   0xFE,
		SectorsPerFAT:     2,
		SectorsPerTrack:   8,
		NumHeads:          2,
	}
}

// getFAT12Entry returns the 12-bit cluster-map entry for cluster, per
// the FAT12 cell-packing rule: a cluster's 12 bits straddle a byte
// boundary with even/odd clusters packed in opposite nibble order.
func getFAT12Entry(fat []byte, cluster uint16) uint16 {
	offset := int(cluster) + int(cluster)/2
	if cluster&1 == 1 {
		return (uint16(fat[offset]) >> 4) | (uint16(fat[offset+1]) << 4)
	}
	return uint16(fat[offset]) | ((uint16(fat[offset+1]) & 0x0F) << 8)
}

// setFAT12Entry packs value into cluster's 12-bit slot, leaving the
// neighboring cluster's nibble in the shared byte untouched.
func setFAT12Entry(fat []byte, cluster uint16, value uint16) {
	offset := int(cluster) + int(cluster)/2
	if cluster&1 == 1 {
		fat[offset] = (fat[offset] & 0x0F) | byte((value&0x0F)<<4)
		fat[offset+1] = byte(value >> 4)
		return
	}
	fat[offset] = byte(value)
	fat[offset+1] = (fat[offset+1] & 0xF0) | byte((value>>8)&0x0F)
}

func isFree12(v uint16) bool { return v == clusterFree }
func isBad12(v uint16) bool  { return v == clusterBad }
func isEOF12(v uint16) bool  { return v >= clusterEOFLow }

// getClusterChain walks the FAT starting at start, stopping at the
// first free/bad/end-of-chain marker or the first repeated cluster
// (a corrupt loop), whichever comes first.
func getClusterChain(fat []byte, start uint16) []uint16 {
	var chain []uint16
	seen := make(map[uint16]bool)
	c := start
	for c >= 2 && !seen[c] {
		seen[c] = true
		chain = append(chain, c)
		next := getFAT12Entry(fat, c)
		if isFree12(next) || isBad12(next) || isEOF12(next) {
			break
		}
		c = next
	}
	return chain
}

// allocateClusterChain finds count free clusters (scanning upward
// from cluster 2), links them in order, and terminates the chain with
// the end-of-chain marker. The fat slice is modified in place.
func allocateClusterChain(fat []byte, count int, totalClusters int) ([]uint16, error) {
	var clusters []uint16
	for c := uint16(2); len(clusters) < count && int(c) < totalClusters+2; c++ {
		if isFree12(getFAT12Entry(fat, c)) {
			clusters = append(clusters, c)
		}
	}
	if len(clusters) < count {
		return nil, errs.DiskFullf("fat12: not enough free clusters: need %d, found %d", count, len(clusters))
	}
	for i, c := range clusters {
		if i == len(clusters)-1 {
			setFAT12Entry(fat, c, clusterEOFMark)
		} else {
			setFAT12Entry(fat, c, clusters[i+1])
		}
	}
	return clusters, nil
}

// freeClusterChain marks every cluster in start's chain as free.
func freeClusterChain(fat []byte, start uint16) {
	for _, c := range getClusterChain(fat, start) {
		setFAT12Entry(fat, c, clusterFree)
	}
}

// packDOSDate packs a time.Time into the MS-DOS date format used by
// FAT directory entries: 5 bits day, 4 bits month, 7 bits year-1980.
func packDOSDate(t time.Time) uint16 {
	year := t.Year() - 1980
	if year < 0 {
		year = 0
	}
	return uint16(t.Day()&0x1f) | uint16(t.Month()&0xf)<<5 | uint16(year&0x7f)<<9
}

// packDOSTime packs a time.Time into the MS-DOS time format: 5 bits
// seconds/2, 6 bits minute, 5 bits hour.
func packDOSTime(t time.Time) uint16 {
	return uint16((t.Second()/2)&0x1f) | uint16(t.Minute()&0x3f)<<5 | uint16(t.Hour()&0x1f)<<11
}

// DirEntry is one 32-byte FAT directory entry.
type DirEntry struct {
	Name         [8]byte
	Ext          [3]byte
	Attr         byte
	Reserved     [10]byte
	ModTime      uint16
	ModDate      uint16
	StartCluster uint16
	FileSize     uint32
}

func (e *DirEntry) fromBytes(b []byte) {
	copy(e.Name[:], b[0:8])
	copy(e.Ext[:], b[8:11])
	e.Attr = b[11]
	copy(e.Reserved[:], b[12:22])
	e.ModTime = binary.LittleEndian.Uint16(b[22:24])
	e.ModDate = binary.LittleEndian.Uint16(b[24:26])
	e.StartCluster = binary.LittleEndian.Uint16(b[26:28])
	e.FileSize = binary.LittleEndian.Uint32(b[28:32])
}

func (e DirEntry) toBytes() []byte {
	buf := make([]byte, dirEntrySize)
	copy(buf[0:8], e.Name[:])
	copy(buf[8:11], e.Ext[:])
	buf[11] = e.Attr
	copy(buf[12:22], e.Reserved[:])
	binary.LittleEndian.PutUint16(buf[22:24], e.ModTime)
	binary.LittleEndian.PutUint16(buf[24:26], e.ModDate)
	binary.LittleEndian.PutUint16(buf[26:28], e.StartCluster)
	binary.LittleEndian.PutUint32(buf[28:32], e.FileSize)
	return buf
}

// IsEnd reports whether this entry, and every entry after it in the
// same directory, is unused.
func (e DirEntry) IsEnd() bool { return e.Name[0] == 0x00 }

// IsFree reports whether this entry slot held a deleted file.
func (e DirEntry) IsFree() bool { return e.Name[0] == 0xE5 }

// Filename returns the entry's name in "BASE.EXT" form, or just
// "BASE" if it has no extension.
func (e DirEntry) Filename() string {
	base := strings.TrimRight(string(e.Name[:]), " ")
	ext := strings.TrimRight(string(e.Ext[:]), " ")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

func (e DirEntry) descriptor() types.Descriptor {
	t := types.FiletypeBinary
	if e.Attr&AttrDirectory != 0 {
		t = types.FiletypeDirectory
	}
	return types.Descriptor{
		Name:   e.Filename(),
		Length: int(e.FileSize),
		Locked: e.Attr&AttrReadOnly != 0,
		Type:   t,
	}
}

func parseDirEntries(buf []byte) []DirEntry {
	n := len(buf) / dirEntrySize
	out := make([]DirEntry, n)
	for i := 0; i < n; i++ {
		out[i].fromBytes(buf[i*dirEntrySize : (i+1)*dirEntrySize])
	}
	return out
}

// parse8Dot3 splits and validates a filename into its fixed-width
// 8.3 name and extension fields, uppercased and space-padded.
func parse8Dot3(filename string) (name [8]byte, ext [3]byte, err error) {
	upper := strings.ToUpper(filename)
	base := upper
	extStr := ""
	if idx := strings.LastIndex(upper, "."); idx >= 0 {
		base = upper[:idx]
		extStr = upper[idx+1:]
	}
	if len(base) == 0 || len(base) > 8 {
		return name, ext, errs.InvalidFilenamef("fat12: base name must be 1-8 characters: %q", filename)
	}
	if len(extStr) > 3 {
		return name, ext, errs.InvalidFilenamef("fat12: extension must be at most 3 characters: %q", filename)
	}
	for i := range name {
		name[i] = ' '
	}
	for i := range ext {
		ext[i] = ' '
	}
	copy(name[:], base)
	copy(ext[:], extStr)
	return name, ext, nil
}

// operator implements types.Operator over a FAT12 device image held
// entirely in memory. Root-directory entries live in the fixed-size
// root directory area; subdirectories are ordinary cluster chains of
// more DirEntry records, in the Human68k style.
type operator struct {
	data  []byte
	bpb   BPB
	debug bool
}

var _ types.Operator = operator{}

func (o operator) Name() string               { return operatorName }
func (o operator) HasSubdirs() bool           { return true }
func (o operator) DiskOrder() types.DiskOrder { return types.DiskOrderRaw }
func (o operator) GetBytes() []byte           { return o.data }

func (o operator) bytesPerCluster() int {
	return int(o.bpb.BytesPerSector) * int(o.bpb.SectorsPerCluster)
}

func (o operator) fatOffset() int {
	return int(o.bpb.ReservedSectors) * int(o.bpb.BytesPerSector)
}

func (o operator) fatSize() int {
	return int(o.bpb.SectorsPerFAT) * int(o.bpb.BytesPerSector)
}

func (o operator) rootDirSectors() int {
	needed := int(o.bpb.RootEntryCount) * dirEntrySize
	return (needed + int(o.bpb.BytesPerSector) - 1) / int(o.bpb.BytesPerSector)
}

func (o operator) rootDirOffset() int {
	return o.fatOffset() + int(o.bpb.NumFATs)*o.fatSize()
}

func (o operator) rootDirSizeBytes() int {
	return o.rootDirSectors() * int(o.bpb.BytesPerSector)
}

func (o operator) dataOffset() int {
	return o.rootDirOffset() + o.rootDirSizeBytes()
}

func (o operator) clusterOffset(cluster uint16) int {
	return o.dataOffset() + int(cluster-2)*o.bytesPerCluster()
}

func (o operator) totalSectors() int {
	if o.bpb.TotalSectors16 != 0 {
		return int(o.bpb.TotalSectors16)
	}
	return int(o.bpb.TotalSectors32)
}

func (o operator) totalClusters() int {
	dataSectors := o.totalSectors() - (o.rootDirOffset()+o.rootDirSizeBytes())/int(o.bpb.BytesPerSector)
	return dataSectors / int(o.bpb.SectorsPerCluster)
}

func (o operator) readFAT() ([]byte, error) {
	start := o.fatOffset()
	end := start + o.fatSize()
	if end > len(o.data) {
		return nil, fmt.Errorf("fat12: device too small for FAT: need %d bytes, have %d", end, len(o.data))
	}
	fat := make([]byte, o.fatSize())
	copy(fat, o.data[start:end])
	return fat, nil
}

// writeFAT writes fat to every FAT copy on the device, per the
// convention that all copies are kept byte-identical.
func (o operator) writeFAT(fat []byte) error {
	for i := 0; i < int(o.bpb.NumFATs); i++ {
		start := o.fatOffset() + i*o.fatSize()
		end := start + o.fatSize()
		if end > len(o.data) {
			return fmt.Errorf("fat12: device too small for FAT copy %d", i)
		}
		copy(o.data[start:end], fat)
	}
	return nil
}

func (o operator) readRootDir() ([]DirEntry, error) {
	start := o.rootDirOffset()
	end := start + o.rootDirSizeBytes()
	if end > len(o.data) {
		return nil, fmt.Errorf("fat12: device too small for root directory")
	}
	return parseDirEntries(o.data[start:end]), nil
}

func (o operator) writeRootEntry(index int, e DirEntry) error {
	start := o.rootDirOffset() + index*dirEntrySize
	end := start + dirEntrySize
	if index < 0 || end > o.rootDirOffset()+o.rootDirSizeBytes() {
		return fmt.Errorf("fat12: root directory index %d out of range", index)
	}
	copy(o.data[start:end], e.toBytes())
	return nil
}

func (o operator) readCluster(cluster uint16) ([]byte, error) {
	start := o.clusterOffset(cluster)
	size := o.bytesPerCluster()
	end := start + size
	if start < 0 || end > len(o.data) {
		return nil, fmt.Errorf("fat12: cluster %d out of range", cluster)
	}
	out := make([]byte, size)
	copy(out, o.data[start:end])
	return out, nil
}

func (o operator) writeCluster(cluster uint16, data []byte) error {
	start := o.clusterOffset(cluster)
	size := o.bytesPerCluster()
	end := start + size
	if start < 0 || end > len(o.data) {
		return fmt.Errorf("fat12: cluster %d out of range", cluster)
	}
	buf := make([]byte, size)
	copy(buf, data)
	copy(o.data[start:end], buf)
	return nil
}

// readDirCluster reads the directory entries stored in the cluster
// chain starting at startCluster, used for subdirectories.
func (o operator) readDirCluster(startCluster uint16) ([]DirEntry, error) {
	fat, err := o.readFAT()
	if err != nil {
		return nil, err
	}
	var buf []byte
	for _, c := range getClusterChain(fat, startCluster) {
		data, err := o.readCluster(c)
		if err != nil {
			return nil, err
		}
		buf = append(buf, data...)
	}
	return parseDirEntries(buf), nil
}

func (o operator) readFileData(startCluster uint16, length int) ([]byte, error) {
	if startCluster == 0 {
		return []byte{}, nil
	}
	fat, err := o.readFAT()
	if err != nil {
		return nil, err
	}
	clusterSize := o.bytesPerCluster()
	chain := getClusterChain(fat, startCluster)
	out := make([]byte, 0, len(chain)*clusterSize)
	for _, c := range chain {
		data, err := o.readCluster(c)
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
	}
	if len(out) > length {
		out = out[:length]
	}
	return out, nil
}

// writeFileData allocates clusters against the in-memory fat and
// writes data into them, zero-padding the last cluster. It returns
// the file's starting cluster, or 0 for an empty file (which, per
// FAT convention, occupies no clusters at all).
func (o operator) writeFileData(fat []byte, data []byte) (uint16, error) {
	if len(data) == 0 {
		return 0, nil
	}
	clusterSize := o.bytesPerCluster()
	count := (len(data) + clusterSize - 1) / clusterSize
	clusters, err := allocateClusterChain(fat, count, o.totalClusters())
	if err != nil {
		return 0, err
	}
	for i, c := range clusters {
		start := i * clusterSize
		end := start + clusterSize
		if end > len(data) {
			end = len(data)
		}
		if err := o.writeCluster(c, data[start:end]); err != nil {
			return 0, err
		}
	}
	return clusters[0], nil
}

// resolvePath walks path components (each naming a subdirectory)
// starting from the root directory, returning the directory listing
// at the end of the path. An empty path returns the root listing.
func (o operator) resolvePath(path string) ([]DirEntry, error) {
	entries, err := o.readRootDir()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return entries, nil
	}
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		upper := strings.ToUpper(part)
		var found *DirEntry
		for i := range entries {
			e := entries[i]
			if e.IsEnd() {
				break
			}
			if e.IsFree() || e.Attr&AttrDirectory == 0 {
				continue
			}
			if e.Filename() == upper {
				found = &entries[i]
				break
			}
		}
		if found == nil {
			return nil, errs.FileNotFoundf("fat12: directory %q not found", part)
		}
		entries, err = o.readDirCluster(found.StartCluster)
		if err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func splitPath(filename string) (dir, name string) {
	idx := strings.LastIndex(filename, "/")
	if idx < 0 {
		return "", filename
	}
	return filename[:idx], filename[idx+1:]
}

// Catalog lists the entries of the root directory, or of subdir if
// given (a slash-separated path of subdirectory names).
func (o operator) Catalog(subdir string) ([]types.Descriptor, error) {
	entries, err := o.resolvePath(subdir)
	if err != nil {
		return nil, err
	}
	var result []types.Descriptor
	for _, e := range entries {
		if e.IsEnd() {
			break
		}
		if e.IsFree() || e.Attr&AttrVolumeLabel != 0 {
			continue
		}
		result = append(result, e.descriptor())
	}
	return result, nil
}

// GetFile reads a file by path, descending into subdirectories as
// needed. Subdirectory traversal is read-only.
func (o operator) GetFile(filename string) (types.FileInfo, error) {
	dir, name := splitPath(filename)
	entries, err := o.resolvePath(dir)
	if err != nil {
		return types.FileInfo{}, err
	}
	upper := strings.ToUpper(name)
	for _, e := range entries {
		if e.IsEnd() {
			break
		}
		if e.IsFree() || e.Attr&(AttrDirectory|AttrVolumeLabel) != 0 {
			continue
		}
		if e.Filename() != upper {
			continue
		}
		data, err := o.readFileData(e.StartCluster, int(e.FileSize))
		if err != nil {
			return types.FileInfo{}, fmt.Errorf("fat12: error reading data for %q: %w", filename, err)
		}
		return types.FileInfo{Descriptor: e.descriptor(), Data: data}, nil
	}
	return types.FileInfo{}, errs.FileNotFoundf("fat12: file %q not found", filename)
}

// Delete removes a root-level file, freeing its cluster chain.
// Subdirectory deletion is not implemented.
func (o operator) Delete(filename string) (bool, error) {
	if strings.Contains(filename, "/") {
		return false, errs.NotImplementedf("fat12: Delete only supports root-level files, not %q", filename)
	}
	entries, err := o.readRootDir()
	if err != nil {
		return false, err
	}
	upper := strings.ToUpper(filename)
	idx := -1
	for i, e := range entries {
		if e.IsEnd() {
			break
		}
		if e.IsFree() || e.Attr&AttrDirectory != 0 {
			continue
		}
		if e.Filename() == upper {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}

	if entries[idx].StartCluster != 0 {
		fat, err := o.readFAT()
		if err != nil {
			return false, err
		}
		freeClusterChain(fat, entries[idx].StartCluster)
		if err := o.writeFAT(fat); err != nil {
			return false, err
		}
	}
	entries[idx].Name[0] = 0xE5
	if err := o.writeRootEntry(idx, entries[idx]); err != nil {
		return false, err
	}
	return true, nil
}

// PutFile writes a root-level file. Writing into a subdirectory is
// not implemented.
func (o operator) PutFile(fileInfo types.FileInfo, overwrite bool) (existed bool, err error) {
	filename := fileInfo.Descriptor.Name
	if strings.Contains(filename, "/") {
		return false, errs.NotImplementedf("fat12: PutFile only supports root-level files, not %q", filename)
	}
	name, ext, err := parse8Dot3(filename)
	if err != nil {
		return false, err
	}

	entries, err := o.readRootDir()
	if err != nil {
		return false, err
	}
	upper := strings.ToUpper(filename)
	existingIdx := -1
	for i, e := range entries {
		if e.IsEnd() {
			break
		}
		if e.IsFree() || e.Attr&AttrDirectory != 0 {
			continue
		}
		if e.Filename() == upper {
			existingIdx = i
			break
		}
	}
	if existingIdx >= 0 && !overwrite {
		return false, errs.FileExistsf("fat12: file %q already exists", filename)
	}

	fat, err := o.readFAT()
	if err != nil {
		return false, err
	}
	if existingIdx >= 0 && entries[existingIdx].StartCluster != 0 {
		freeClusterChain(fat, entries[existingIdx].StartCluster)
	}

	startCluster, err := o.writeFileData(fat, fileInfo.Data)
	if err != nil {
		return false, err
	}

	slot := existingIdx
	if slot < 0 {
		slot = -1
		for i, e := range entries {
			if e.IsEnd() || e.IsFree() {
				slot = i
				break
			}
		}
		if slot < 0 {
			return false, errs.DirectoryFullf("fat12: root directory is full (%d entries)", len(entries))
		}
	}

	now := time.Now()
	entry := DirEntry{
		Name:         name,
		Ext:          ext,
		Attr:         AttrArchive,
		ModTime:      packDOSTime(now),
		ModDate:      packDOSDate(now),
		StartCluster: startCluster,
		FileSize:     uint32(len(fileInfo.Data)),
	}

	if err := o.writeRootEntry(slot, entry); err != nil {
		return false, err
	}
	if err := o.writeFAT(fat); err != nil {
		return false, err
	}
	return existingIdx >= 0, nil
}

// OperatorFactory constructs fat12 operators and recognizes FAT12
// volumes by inspecting their BPB.
type OperatorFactory struct{}

var _ types.OperatorFactory = OperatorFactory{}

func (of OperatorFactory) Name() string               { return operatorName }
func (of OperatorFactory) DiskOrder() types.DiskOrder { return types.DiskOrderRaw }

// SeemsToMatch reports whether devicebytes looks like a FAT12 volume:
// a valid x86 jump instruction followed by BPB fields in sane ranges.
func (of OperatorFactory) SeemsToMatch(devicebytes []byte, debug bool) bool {
	bpb, err := ReadBPB(devicebytes)
	if err != nil {
		return false
	}
	if bpb.JumpBoot[0] != 0xEB && bpb.JumpBoot[0] != 0xE9 {
		return false
	}
	switch bpb.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return false
	}
	if bpb.NumFATs == 0 || bpb.NumFATs > 2 {
		return false
	}
	if bpb.RootEntryCount == 0 || bpb.SectorsPerFAT == 0 {
		return false
	}
	return true
}

func (of OperatorFactory) Operator(devicebytes []byte, debug bool) (types.Operator, error) {
	bpb, err := ReadBPB(devicebytes)
	if err != nil {
		return nil, fmt.Errorf("fat12: %w", err)
	}
	return operator{data: devicebytes, bpb: bpb, debug: debug}, nil
}
