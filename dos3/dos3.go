// Copyright © 2016 Zellyn Hunter <zellyn@gmail.com>

// Package dos3 contains routines for working with the on-disk
// structures of Apple DOS 3.
package dos3

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"github.com/onionmixer/rdedisktool/disk"
	"github.com/onionmixer/rdedisktool/errs"
	"github.com/onionmixer/rdedisktool/types"
)

const (
	// VTOCTrack is the track on a DOS3.3 that holds the VTOC.
	VTOCTrack = 17
	// VTOCSector is the sector on a DOS3.3 that holds the VTOC.
	VTOCSector = 0
)

// DiskSector represents a track and sector.
type DiskSector struct {
	Track  byte
	Sector byte
}

// GetTrack returns the track that a DiskSector was loaded from.
func (ds DiskSector) GetTrack() byte {
	return ds.Track
}

// SetTrack sets the track that a DiskSector was loaded from.
func (ds *DiskSector) SetTrack(track byte) {
	ds.Track = track
}

// GetSector returns the sector that a DiskSector was loaded from.
func (ds DiskSector) GetSector() byte {
	return ds.Sector
}

// SetSector sets the sector that a DiskSector was loaded from.
func (ds *DiskSector) SetSector(sector byte) {
	ds.Sector = sector
}

// TrackFreeSectors maps the free sectors in a single track.
type TrackFreeSectors [4]byte // Bit map of free sectors in a track

// IsFree returns true if the given sector on a track is free; it
// returns false if sector > 15.
func (t TrackFreeSectors) IsFree(sector byte) bool {
	if sector >= 16 {
		return false
	}
	bits := byte(1) << (sector % 8)
	if sector < 8 {
		return t[1]&bits > 0
	}
	return t[0]&bits > 0
}

// UnusedClear returns true if the unused bytes of the free sector map
// for a track are zeroes (as they're supposed to be).
func (t TrackFreeSectors) UnusedClear() bool {
	return t[2] == 0 && t[3] == 0
}

// SetFree marks a sector on a track as free or in-use in the bitmap.
func (t *TrackFreeSectors) SetFree(sector byte, free bool) {
	if sector >= 16 {
		return
	}
	bits := byte(1) << (sector % 8)
	idx := 0
	if sector < 8 {
		idx = 1
	}
	if free {
		t[idx] |= bits
	} else {
		t[idx] &^= bits
	}
}

// DiskFreeSectors maps the free sectors on a disk.
type DiskFreeSectors [50]TrackFreeSectors

// VTOC is the struct used to hold the DOS 3.3 VTOC structure.
// See page 4-2 of Beneath Apple DOS.
type VTOC struct {
	DiskSector
	Unused1       byte     // Not used
	CatalogTrack  byte     // Track number of first catalog sector
	CatalogSector byte     // Sector number of first catalog sector
	DOSRelease    byte     // Release number of DOS used to INIT this diskette
	Unused2       [2]byte  // Not used
	Volume        byte     // Diskette volume number (1-254)
	Unused3       [32]byte // Not used
	// Maximum number of track/secotr pairs which will fit in one file
	// track/sector list sector (122 for 256 byte sectors)
	TrackSectorListMaxSize byte
	Unused4                [8]byte // Not used
	LastTrack              byte    // Last track where sectors were allocated
	TrackDirection         int8    // Direction of track allocation (+1 or -1)
	Unused5                [2]byte
	NumTracks              byte   // Number of tracks per diskette (normally 35)
	NumSectors             byte   // Number of sectors per track (13 or 16)
	BytesPerSector         uint16 // Number of bytes per sector (LO/HI format)
	FreeSectors            DiskFreeSectors
}

// Validate checks a VTOC sector to make sure it looks normal.
func (v *VTOC) Validate() error {
	if v.Volume == 255 {
		return fmt.Errorf("expected volume to be 0-254, but got 255")
	}
	if v.DOSRelease != 3 {
		return fmt.Errorf("expected DOS release number to be 3; got %d", v.DOSRelease)
	}
	if v.TrackDirection != 1 && v.TrackDirection != -1 {
		return fmt.Errorf("expected track direction to be 1 or -1; got %d", v.TrackDirection)
	}
	if v.NumTracks != 35 {
		return fmt.Errorf("expected number of tracks to be 35; got %d", v.NumTracks)
	}
	if v.NumSectors != 13 && v.NumSectors != 16 {
		return fmt.Errorf("expected number of sectors per track to be 13 or 16; got %d", v.NumSectors)
	}
	if v.BytesPerSector != 256 {
		return fmt.Errorf("expected 256 bytes per sector; got %d", v.BytesPerSector)
	}
	if v.TrackSectorListMaxSize != 122 {
		return fmt.Errorf("expected 122 track/sector pairs per track/sector list sector; got %d", v.TrackSectorListMaxSize)
	}
	for i, tf := range v.FreeSectors {
		if !tf.UnusedClear() {
			return fmt.Errorf("unused bytes of free-sector list for track %d are not zeroes", i)
		}
	}
	return nil
}

// ToSector marshals the VTOC sector to bytes.
func (v VTOC) ToSector() ([]byte, error) {
	buf := make([]byte, 256)
	buf[0x00] = v.Unused1
	buf[0x01] = v.CatalogTrack
	buf[0x02] = v.CatalogSector
	buf[0x03] = v.DOSRelease
	copyBytes(buf[0x04:0x06], v.Unused2[:])
	buf[0x06] = v.Volume
	copyBytes(buf[0x07:0x27], v.Unused3[:])
	buf[0x27] = v.TrackSectorListMaxSize
	copyBytes(buf[0x28:0x30], v.Unused4[:])
	buf[0x30] = v.LastTrack
	buf[0x31] = byte(v.TrackDirection)
	copyBytes(buf[0x32:0x34], v.Unused5[:])
	buf[0x34] = v.NumTracks
	buf[0x35] = v.NumSectors
	binary.LittleEndian.PutUint16(buf[0x36:0x38], v.BytesPerSector)
	for i, m := range v.FreeSectors {
		copyBytes(buf[0x38+4*i:0x38+4*i+4], m[:])
	}
	return buf, nil
}

// copyBytes is just like the builtin copy, but just for byte slices,
// and it checks that dst and src have the same length.
func copyBytes(dst, src []byte) int {
	if len(dst) != len(src) {
		panic(fmt.Sprintf("copyBytes called with differing lengths %d and %d", len(dst), len(src)))
	}
	return copy(dst, src)
}

// FromSector unmarshals the VTOC sector from bytes. Input is
// expected to be exactly 256 bytes.
func (v *VTOC) FromSector(data []byte) error {
	if len(data) != 256 {
		return fmt.Errorf("VTOC.FromSector expects exactly 256 bytes; got %d", len(data))
	}

	v.Unused1 = data[0x00]
	v.CatalogTrack = data[0x01]
	v.CatalogSector = data[0x02]
	v.DOSRelease = data[0x03]
	copyBytes(v.Unused2[:], data[0x04:0x06])
	v.Volume = data[0x06]
	copyBytes(v.Unused3[:], data[0x07:0x27])
	v.TrackSectorListMaxSize = data[0x27]
	copyBytes(v.Unused4[:], data[0x28:0x30])
	v.LastTrack = data[0x30]
	v.TrackDirection = int8(data[0x31])
	copyBytes(v.Unused5[:], data[0x32:0x34])
	v.NumTracks = data[0x34]
	v.NumSectors = data[0x35]
	v.BytesPerSector = binary.LittleEndian.Uint16(data[0x36:0x38])
	for i := range v.FreeSectors {
		copyBytes(v.FreeSectors[i][:], data[0x38+4*i:0x38+4*i+4])
	}
	return nil
}

// DefaultVTOC returns a new, empty VTOC with values set to their
// defaults.
func DefaultVTOC() VTOC {
	v := VTOC{
		CatalogTrack:           0x11,
		CatalogSector:          0x0f,
		DOSRelease:             0x03,
		Volume:                 0x01,
		TrackSectorListMaxSize: 122,
		LastTrack:              0x00, // TODO(zellyn): what should this be?
		TrackDirection:         1,
		NumTracks:              0x23,
		NumSectors:             0x10,
		BytesPerSector:         0x100,
	}
	for i := range v.FreeSectors {
		v.FreeSectors[i] = TrackFreeSectors{}
		if i < 35 {
			v.FreeSectors[i] = TrackFreeSectors([4]byte{0xff, 0xff, 0x00, 0x00})
		}
	}
	return v
}

// allocateSector finds the next free sector, starting at LastTrack and
// stepping by TrackDirection, skipping track 0 and the VTOC track.
// When a direction runs off either end of the disk, it flips and tries
// the other way. It marks the sector in-use, updates LastTrack and
// TrackDirection to match, and returns it. ok is false if the disk is
// full.
func (v *VTOC) allocateSector() (track, sector byte, ok bool) {
	numTracks := int(v.NumTracks)
	if numTracks == 0 {
		return 0, 0, false
	}
	t := int(v.LastTrack)
	dir := int(v.TrackDirection)
	for i := 0; i < numTracks*2; i++ {
		if t != 0 && t != VTOCTrack && t >= 0 && t < numTracks {
			tf := v.FreeSectors[t]
			for s := 0; s < int(v.NumSectors); s++ {
				if tf.IsFree(byte(s)) {
					v.FreeSectors[t].SetFree(byte(s), false)
					v.LastTrack = byte(t)
					v.TrackDirection = int8(dir)
					return byte(t), byte(s), true
				}
			}
		}
		nt := t + dir
		if nt < 0 || nt >= numTracks {
			dir = -dir
			nt = t + dir
		}
		t = nt
	}
	return 0, 0, false
}

// freeSector marks a track/sector as free again.
func (v *VTOC) freeSector(track, sector byte) {
	if int(track) >= len(v.FreeSectors) {
		return
	}
	v.FreeSectors[track].SetFree(sector, true)
}

// readVTOC reads and validates the VTOC sector from a disk image.
func readVTOC(diskbytes []byte) (VTOC, error) {
	v := VTOC{}
	if err := disk.UnmarshalLogicalSector(diskbytes, &v, VTOCTrack, VTOCSector); err != nil {
		return VTOC{}, err
	}
	if err := v.Validate(); err != nil {
		return VTOC{}, fmt.Errorf("invalid VTOC sector: %v", err)
	}
	return v, nil
}

// flushVTOC writes the VTOC sector back to a disk image.
func flushVTOC(diskbytes []byte, v VTOC) error {
	buf, err := v.ToSector()
	if err != nil {
		return err
	}
	return disk.WriteSector(diskbytes, VTOCTrack, VTOCSector, buf)
}

// CatalogSector is the struct used to hold the DOS 3.3 Catalog
// sector.
type CatalogSector struct {
	DiskSector
	Unused1    byte        // Not used
	NextTrack  byte        // Track number of next catalog sector (usually 11 hex)
	NextSector byte        // Sector number of next catalog sector
	Unused2    [8]byte     // Not used
	FileDescs  [7]FileDesc // File descriptive entries
}

// ToSector marshals the CatalogSector to bytes.
func (cs CatalogSector) ToSector() ([]byte, error) {
	buf := make([]byte, 256)
	buf[0x00] = cs.Unused1
	buf[0x01] = cs.NextTrack
	buf[0x02] = cs.NextSector
	copyBytes(buf[0x03:0x0b], cs.Unused2[:])
	for i, fd := range cs.FileDescs {
		fdBytes := fd.ToBytes()
		copyBytes(buf[0x0b+35*i:0x0b+35*(i+1)], fdBytes)
	}
	return buf, nil
}

// FromSector unmarshals the CatalogSector from bytes. Input is
// expected to be exactly 256 bytes.
func (cs *CatalogSector) FromSector(data []byte) error {
	if len(data) != 256 {
		return fmt.Errorf("CatalogSector.FromSector expects exactly 256 bytes; got %d", len(data))
	}

	cs.Unused1 = data[0x00]
	cs.NextTrack = data[0x01]
	cs.NextSector = data[0x02]
	copyBytes(cs.Unused2[:], data[0x03:0x0b])

	for i := range cs.FileDescs {
		cs.FileDescs[i].FromBytes(data[0x0b+35*i : 0x0b+35*(i+1)])
	}
	return nil
}

// Filetype is the type for dos 3.3 filetype+locked status byte.
type Filetype byte

// The DOS3 filetypes.
const (
	// FiletypeLocked is just setting the high bit on other file types.
	FiletypeLocked Filetype = 0x80

	FiletypeText        Filetype = 0x00 // Text file
	FiletypeInteger     Filetype = 0x01 // INTEGER BASIC file
	FiletypeApplesoft   Filetype = 0x02 // APPLESOFT BASIC file
	FiletypeBinary      Filetype = 0x04 // BINARY file
	FiletypeS           Filetype = 0x08 // S type file
	FiletypeRelocatable Filetype = 0x10 // RELOCATABLE object module file
	FiletypeA           Filetype = 0x20 // A type file
	FiletypeB           Filetype = 0x40 // B type file
)

// FileDescStatus is the type used to mark file descriptor status.
type FileDescStatus int

// The three actual file descriptor status values.
const (
	FileDescStatusNormal FileDescStatus = iota
	FileDescStatusDeleted
	FileDescStatusUnused
)

// FileDesc is the struct used to represent the DOS 3.3 File
// Descriptive entry.
type FileDesc struct {
	// Track of first track/sector list sector. If this is a deleted
	// file, this byte contains a hex FF and the original track number
	// is copied to the last byte of the file name field (BYTE 20). If
	// this byte contains a hex 00, the entry is assumed to never have
	// been used and is available for use. (This means track 0 can never
	// be used for data even if the DOS image is "wiped" from the
	// diskette.)
	TrackSectorListTrack  byte
	TrackSectorListSector byte     // Sector of first track/sector list sector
	Filetype              Filetype // File type and flags
	Filename              [30]byte // File name (30 characters) Length of file in
	// sectors (LO/HI format). The CATALOG command will only format the
	// LO byte of this length giving 1-255 but a full 65,535 may be
	// stored here.
	SectorCount uint16
}

// ToBytes marshals the FileDesc to bytes.
func (fd FileDesc) ToBytes() []byte {
	buf := make([]byte, 35)
	buf[0x00] = fd.TrackSectorListTrack
	buf[0x01] = fd.TrackSectorListSector
	buf[0x02] = byte(fd.Filetype)
	copyBytes(buf[0x03:0x21], fd.Filename[:])
	binary.LittleEndian.PutUint16(buf[0x21:0x23], fd.SectorCount)

	return buf
}

// FromBytes unmarshals the FileDesc from bytes. Input is
// expected to be exactly 35 bytes.
func (fd *FileDesc) FromBytes(data []byte) {
	if len(data) != 35 {
		panic(fmt.Sprintf("FileDesc.FromBytes expects exactly 35 bytes; got %d", len(data)))
	}

	fd.TrackSectorListTrack = data[0x00]
	fd.TrackSectorListSector = data[0x01]
	fd.Filetype = Filetype(data[0x02])
	copyBytes(fd.Filename[:], data[0x03:0x21])
	fd.SectorCount = binary.LittleEndian.Uint16(data[0x21:0x23])
}

// Status returns whether the FileDesc describes a deleted file, a
// normal file, or has never been used.
func (fd *FileDesc) Status() FileDescStatus {
	switch fd.TrackSectorListTrack {
	case 0:
		return FileDescStatusUnused // Never been used.
	case 0xff:
		return FileDescStatusDeleted
	default:
		return FileDescStatusNormal
	}
}

// FilenameString returns the filename of a FileDesc as a normal
// string.
func (fd *FileDesc) FilenameString() string {
	var slice []byte
	if fd.Status() == FileDescStatusDeleted {
		slice = append(slice, fd.Filename[0:len(fd.Filename)-1]...)
	} else {
		slice = append(slice, fd.Filename[:]...)
	}
	for i := range slice {
		slice[i] -= 0x80
	}
	return strings.TrimRight(string(slice), " ")
}

// descriptor returns a types.Descriptor for a FileDesc, but with the
// length set to -1, since we can't know it without reading the file
// contents.
func (fd FileDesc) descriptor() types.Descriptor {
	desc := types.Descriptor{
		Name:    fd.FilenameString(),
		Sectors: int(fd.SectorCount),
		Length:  -1,
		Locked:  (fd.Filetype & FiletypeLocked) > 0,
	}
	switch fd.Filetype & 0x7f {
	case FiletypeText: // Text file
		desc.Type = types.FiletypeASCIIText
	case FiletypeInteger: // INTEGER BASIC file
		desc.Type = types.FiletypeIntegerBASIC
	case FiletypeApplesoft: // APPLESOFT BASIC file
		desc.Type = types.FiletypeApplesoftBASIC
	case FiletypeBinary: // BINARY file
		desc.Type = types.FiletypeBinary
	case FiletypeS: // S type file
		desc.Type = types.FiletypeS
	case FiletypeRelocatable: // RELOCATABLE object module file
		desc.Type = types.FiletypeRelocatable
	case FiletypeA: // A type file
		desc.Type = types.FiletypeNewA
	case FiletypeB: // B type file
		desc.Type = types.FiletypeNewB
	}
	return desc
}

// Contents returns the on-disk contents of a file represented by a
// FileDesc.
func (fd *FileDesc) Contents(diskbytes []byte) ([]byte, error) {
	tsls := []TrackSectorList{}
	nextTrack := fd.TrackSectorListTrack
	nextSector := fd.TrackSectorListSector
	seen := map[disk.TrackSector]bool{}
	for nextTrack != 0 || nextSector != 0 {
		ts := disk.TrackSector{Track: nextTrack, Sector: nextSector}
		if seen[ts] {
			return nil, fmt.Errorf("File %q tries to read TrackSector track=%d sector=%d twice", fd.FilenameString(), nextTrack, nextSector)
		}
		seen[ts] = true
		tsl := TrackSectorList{}
		if err := disk.UnmarshalLogicalSector(diskbytes, &tsl, nextTrack, nextSector); err != nil {
			return nil, err
		}
		tsls = append(tsls, tsl)
		nextTrack = tsl.NextTrack
		nextSector = tsl.NextSector
	}
	data := make([]byte, 0, 256*122*len(tsls))
	for i, tsl := range tsls {
		end := 121
		// If it's the last tsl, stop at the last non-zero TrackSector.
		if i == len(tsls)-1 {
			for j, ts := range tsl.TrackSectors {
				if ts.Track != 0 || ts.Sector != 0 {
					end = j
				}
			}
		}
		for j := 0; j <= end; j++ {
			ts := tsl.TrackSectors[j]
			if ts.Track == 0 && ts.Sector == 0 {
				for k := 0; k < 256; k++ {
					data = append(data, 0)
				}
			} else {
				contents, err := disk.ReadSector(diskbytes, ts.Track, ts.Sector)
				if err != nil {
					return nil, err
				}
				data = append(data, contents...)
			}
		}
	}
	return data, nil
}

// TrackSectorList is the struct used to represent DOS 3.3
// Track/Sector List sectors.
type TrackSectorList struct {
	DiskSector
	Unused1      byte    // Not used
	NextTrack    byte    // Track number of next T/S List sector if one was needed or zero if no more T/S List sectors.
	NextSector   byte    // Sector number of next T/S List sector (if present).
	Unused2      [2]byte // Not used
	SectorOffset uint16  // Sector offset in file of the first sector described by this list.
	Unused3      [5]byte // Not used
	TrackSectors [122]disk.TrackSector
}

// ToSector marshals the TrackSectorList to bytes.
func (tsl TrackSectorList) ToSector() ([]byte, error) {
	buf := make([]byte, 256)
	buf[0x00] = tsl.Unused1
	buf[0x01] = tsl.NextTrack
	buf[0x02] = tsl.NextSector
	copyBytes(buf[0x03:0x05], tsl.Unused2[:])
	binary.LittleEndian.PutUint16(buf[0x05:0x07], tsl.SectorOffset)
	copyBytes(buf[0x07:0x0C], tsl.Unused3[:])

	for i, ts := range tsl.TrackSectors {
		buf[0x0C+i*2] = ts.Track
		buf[0x0D+i*2] = ts.Sector
	}
	return buf, nil
}

// FromSector unmarshals the TrackSectorList from bytes. Input is
// expected to be exactly 256 bytes.
func (tsl *TrackSectorList) FromSector(data []byte) error {
	if len(data) != 256 {
		return fmt.Errorf("TrackSectorList.FromSector expects exactly 256 bytes; got %d", len(data))
	}

	tsl.Unused1 = data[0x00]
	tsl.NextTrack = data[0x01]
	tsl.NextSector = data[0x02]
	copyBytes(tsl.Unused2[:], data[0x03:0x05])
	tsl.SectorOffset = binary.LittleEndian.Uint16(data[0x05:0x07])
	copyBytes(tsl.Unused3[:], data[0x07:0x0C])

	for i := range tsl.TrackSectors {
		tsl.TrackSectors[i].Track = data[0x0C+i*2]
		tsl.TrackSectors[i].Sector = data[0x0D+i*2]
	}
	return nil
}

// readCatalogSectors reads the raw CatalogSector structs from a DOS
// 3.3 disk.
func readCatalogSectors(diskbytes []byte, debug bool) ([]CatalogSector, error) {
	v := &VTOC{}
	err := disk.UnmarshalLogicalSector(diskbytes, v, VTOCTrack, VTOCSector)
	if err != nil {
		return nil, err
	}
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("Invalid VTOC sector: %v", err)
	}
	if debug {
		fmt.Fprintf(os.Stderr, "Read VTOC sector: %#v\n", v)
	}

	nextTrack := v.CatalogTrack
	nextSector := v.CatalogSector
	css := []CatalogSector{}
	seen := map[disk.TrackSector]bool{}
	for nextTrack != 0 || nextSector != 0 {
		ts := disk.TrackSector{Track: nextTrack, Sector: nextSector}
		if seen[ts] {
			return nil, fmt.Errorf("Catalog tries to read TrackSector track=%d sector=%d twice", nextTrack, nextSector)
		}
		if nextTrack >= v.NumTracks {
			return nil, fmt.Errorf("catalog sectors can't be in track %d: disk only has %d tracks", nextTrack, v.NumTracks)
		}
		if nextSector >= v.NumSectors {
			return nil, fmt.Errorf("catalog sectors can't be in sector %d: disk only has %d sectors", nextSector, v.NumSectors)
		}
		cs := CatalogSector{}
		err := disk.UnmarshalLogicalSector(diskbytes, &cs, nextTrack, nextSector)
		if err != nil {
			return nil, err
		}
		css = append(css, cs)
		nextTrack = cs.NextTrack
		nextSector = cs.NextSector
	}
	return css, nil
}

// ReadCatalog reads the catalog of a DOS 3.3 disk.
func ReadCatalog(diskbytes []byte, debug bool) (files, deleted []FileDesc, err error) {
	css, err := readCatalogSectors(diskbytes, debug)
	if err != nil {
		return nil, nil, err
	}

	for _, cs := range css {
		for _, fd := range cs.FileDescs {
			switch fd.Status() {
			case FileDescStatusUnused:
				// skip
			case FileDescStatusDeleted:
				deleted = append(deleted, fd)
			case FileDescStatusNormal:
				files = append(files, fd)
			}
		}
	}
	return files, deleted, nil
}

// ValidationIssueKind classifies a problem found while validating a
// DOS 3.3 disk image.
type ValidationIssueKind int

// The validation issue kinds.
const (
	// IssueUsedButMarkedFree means a sector some file or structure
	// actually occupies is marked free in the VTOC bitmap.
	IssueUsedButMarkedFree ValidationIssueKind = iota
	// IssueDoubleUse means two different files (or a file and a
	// filesystem structure) both claim the same sector.
	IssueDoubleUse
	// IssueLoop means a track/sector list or catalog chain revisits a
	// sector it has already walked.
	IssueLoop
	// IssueSectorCountMismatch means a file's catalog SectorCount
	// doesn't match the number of sectors its track/sector list
	// actually occupies.
	IssueSectorCountMismatch
)

// ValidationIssue describes one problem found during Validate.
type ValidationIssue struct {
	Kind          ValidationIssueKind
	Track, Sector byte
	Message       string
}

// Validate replays the disk's allocation (VTOC and catalog sectors,
// every file's track/sector list and data sectors) and cross-checks it
// against the VTOC's free-sector bitmap, reporting any sector that's
// in use but marked free, any sector claimed more than once, any
// track/sector-list loop, and any file whose catalog SectorCount
// doesn't match its real sector count.
func Validate(diskbytes []byte, debug bool) ([]ValidationIssue, error) {
	v, err := readVTOC(diskbytes)
	if err != nil {
		return nil, err
	}

	var issues []ValidationIssue
	observed := map[disk.TrackSector]int{}
	claim := func(track, sector byte, context string) {
		ts := disk.TrackSector{Track: track, Sector: sector}
		observed[ts]++
		if observed[ts] == 2 {
			issues = append(issues, ValidationIssue{
				Kind: IssueDoubleUse, Track: track, Sector: sector,
				Message: fmt.Sprintf("track %d sector %d claimed more than once (%s)", track, sector, context),
			})
		}
	}
	claim(VTOCTrack, VTOCSector, "VTOC")

	var fileDescs []FileDesc
	nextTrack, nextSector := v.CatalogTrack, v.CatalogSector
	seenCat := map[disk.TrackSector]bool{}
	for nextTrack != 0 || nextSector != 0 {
		ts := disk.TrackSector{Track: nextTrack, Sector: nextSector}
		if seenCat[ts] {
			issues = append(issues, ValidationIssue{Kind: IssueLoop, Track: nextTrack, Sector: nextSector, Message: "catalog chain loops back on itself"})
			break
		}
		seenCat[ts] = true
		claim(nextTrack, nextSector, "catalog")
		cs := CatalogSector{}
		if err := disk.UnmarshalLogicalSector(diskbytes, &cs, nextTrack, nextSector); err != nil {
			return nil, err
		}
		for _, fd := range cs.FileDescs {
			if fd.Status() == FileDescStatusNormal {
				fileDescs = append(fileDescs, fd)
			}
		}
		nextTrack, nextSector = cs.NextTrack, cs.NextSector
	}

	for _, fd := range fileDescs {
		sectorsSeen := 0
		looped := false
		nextTrack, nextSector := fd.TrackSectorListTrack, fd.TrackSectorListSector
		seenFile := map[disk.TrackSector]bool{}
		for nextTrack != 0 || nextSector != 0 {
			ts := disk.TrackSector{Track: nextTrack, Sector: nextSector}
			if seenFile[ts] {
				issues = append(issues, ValidationIssue{
					Kind: IssueLoop, Track: nextTrack, Sector: nextSector,
					Message: fmt.Sprintf("file %q track/sector list loops back on itself", fd.FilenameString()),
				})
				looped = true
				break
			}
			seenFile[ts] = true
			claim(nextTrack, nextSector, fmt.Sprintf("file %q T/S list", fd.FilenameString()))
			sectorsSeen++
			tsl := TrackSectorList{}
			if err := disk.UnmarshalLogicalSector(diskbytes, &tsl, nextTrack, nextSector); err != nil {
				return nil, err
			}
			for _, dts := range tsl.TrackSectors {
				if dts.Track == 0 && dts.Sector == 0 {
					continue
				}
				claim(dts.Track, dts.Sector, fmt.Sprintf("file %q data", fd.FilenameString()))
				sectorsSeen++
			}
			nextTrack, nextSector = tsl.NextTrack, tsl.NextSector
		}
		if !looped && sectorsSeen != int(fd.SectorCount) {
			issues = append(issues, ValidationIssue{
				Kind:    IssueSectorCountMismatch,
				Message: fmt.Sprintf("file %q claims %d sectors but occupies %d", fd.FilenameString(), fd.SectorCount, sectorsSeen),
			})
		}
	}

	for ts := range observed {
		if int(ts.Track) >= len(v.FreeSectors) {
			continue
		}
		if v.FreeSectors[ts.Track].IsFree(ts.Sector) {
			issues = append(issues, ValidationIssue{
				Kind: IssueUsedButMarkedFree, Track: ts.Track, Sector: ts.Sector,
				Message: fmt.Sprintf("track %d sector %d is in use but marked free in the VTOC", ts.Track, ts.Sector),
			})
		}
	}

	return issues, nil
}

// filenameBytes renders a filename as the 30-byte, space-padded,
// high-bit-set field DOS 3.3 stores in a catalog entry.
func filenameBytes(name string) ([30]byte, error) {
	var out [30]byte
	if len(name) == 0 || len(name) > len(out) {
		return out, errs.InvalidFilenamef("dos3: filename %q must be 1-%d characters", name, len(out))
	}
	for i := range out {
		c := byte(' ')
		if i < len(name) {
			c = name[i]
		}
		out[i] = c | 0x80
	}
	return out, nil
}

// dos3FiletypeFor maps a types.Filetype onto the DOS 3.3 filetype byte
// PutFile should store in the catalog entry.
func dos3FiletypeFor(t types.Filetype) (Filetype, error) {
	switch t {
	case types.FiletypeASCIIText:
		return FiletypeText, nil
	case types.FiletypeIntegerBASIC:
		return FiletypeInteger, nil
	case types.FiletypeApplesoftBASIC:
		return FiletypeApplesoft, nil
	case types.FiletypeBinary:
		return FiletypeBinary, nil
	case types.FiletypeS:
		return FiletypeS, nil
	case types.FiletypeRelocatable:
		return FiletypeRelocatable, nil
	case types.FiletypeNewA:
		return FiletypeA, nil
	case types.FiletypeNewB:
		return FiletypeB, nil
	}
	return 0, fmt.Errorf("%s does not support writing filetype %v", operatorName, t)
}

// buildFileBytes returns the bytes that should actually be written to
// data sectors: for Binary/Applesoft/Integer files, a load-address
// and/or length header is prepended, unless the caller's data already
// carries a valid one.
func buildFileBytes(fileInfo types.FileInfo, ftype Filetype) ([]byte, error) {
	data := fileInfo.Data
	switch ftype {
	case FiletypeBinary:
		if len(data) >= 4 {
			addr := binary.LittleEndian.Uint16(data[0:2])
			length := binary.LittleEndian.Uint16(data[2:4])
			if addr == fileInfo.StartAddress && int(length) == len(data)-4 {
				return data, nil
			}
		}
		header := make([]byte, 4)
		binary.LittleEndian.PutUint16(header[0:2], fileInfo.StartAddress)
		binary.LittleEndian.PutUint16(header[2:4], uint16(len(data)))
		return append(header, data...), nil

	case FiletypeApplesoft, FiletypeInteger:
		if len(data) >= 2 {
			length := binary.LittleEndian.Uint16(data[0:2])
			if int(length) == len(data)-2 {
				return data, nil
			}
		}
		header := make([]byte, 2)
		binary.LittleEndian.PutUint16(header, uint16(len(data)))
		return append(header, data...), nil

	case FiletypeText:
		return data, nil
	}
	return nil, fmt.Errorf("%s does not support writing filetype %v", operatorName, ftype)
}

// catalogLocation identifies where in the catalog chain a file
// descriptor lives.
type catalogLocation struct {
	track, sector byte
	index         int
}

// locateFile finds a normal (non-deleted) file's catalog entry by
// name.
func locateFile(diskbytes []byte, filename string) (catalogLocation, FileDesc, bool, error) {
	v, err := readVTOC(diskbytes)
	if err != nil {
		return catalogLocation{}, FileDesc{}, false, err
	}
	nextTrack, nextSector := v.CatalogTrack, v.CatalogSector
	seen := map[disk.TrackSector]bool{}
	for nextTrack != 0 || nextSector != 0 {
		ts := disk.TrackSector{Track: nextTrack, Sector: nextSector}
		if seen[ts] {
			return catalogLocation{}, FileDesc{}, false, fmt.Errorf("catalog tries to read TrackSector track=%d sector=%d twice", nextTrack, nextSector)
		}
		seen[ts] = true
		cs := CatalogSector{}
		if err := disk.UnmarshalLogicalSector(diskbytes, &cs, nextTrack, nextSector); err != nil {
			return catalogLocation{}, FileDesc{}, false, err
		}
		for i, fd := range cs.FileDescs {
			if fd.Status() == FileDescStatusNormal && fd.FilenameString() == filename {
				return catalogLocation{track: nextTrack, sector: nextSector, index: i}, fd, true, nil
			}
		}
		nextTrack, nextSector = cs.NextTrack, cs.NextSector
	}
	return catalogLocation{}, FileDesc{}, false, nil
}

// findCatalogSlot finds the first free or deleted catalog entry,
// suitable for reuse by a new file.
func findCatalogSlot(diskbytes []byte) (catalogLocation, bool, error) {
	v, err := readVTOC(diskbytes)
	if err != nil {
		return catalogLocation{}, false, err
	}
	nextTrack, nextSector := v.CatalogTrack, v.CatalogSector
	seen := map[disk.TrackSector]bool{}
	for nextTrack != 0 || nextSector != 0 {
		ts := disk.TrackSector{Track: nextTrack, Sector: nextSector}
		if seen[ts] {
			return catalogLocation{}, false, fmt.Errorf("catalog tries to read TrackSector track=%d sector=%d twice", nextTrack, nextSector)
		}
		seen[ts] = true
		cs := CatalogSector{}
		if err := disk.UnmarshalLogicalSector(diskbytes, &cs, nextTrack, nextSector); err != nil {
			return catalogLocation{}, false, err
		}
		for i, fd := range cs.FileDescs {
			if fd.Status() != FileDescStatusNormal {
				return catalogLocation{track: nextTrack, sector: nextSector, index: i}, true, nil
			}
		}
		nextTrack, nextSector = cs.NextTrack, cs.NextSector
	}
	return catalogLocation{}, false, nil
}

// operator is a types.Operator - an interface for performing
// high-level operations on files and directories.
type operator struct {
	data  []byte
	debug bool
}

var _ types.Operator = operator{}

// operatorName is the keyword name for the operator that undestands
// dos3 disks.
const operatorName = "dos3"

// Name returns the name of the operator.
func (o operator) Name() string {
	return operatorName
}

// HasSubdirs returns true if the underlying operating system on the
// disk allows subdirectories.
func (o operator) HasSubdirs() bool {
	return false
}

// Catalog returns a catalog of disk entries. subdir should be empty
// for operating systems that do not support subdirectories.
func (o operator) Catalog(subdir string) ([]types.Descriptor, error) {
	fds, _, err := ReadCatalog(o.data, o.debug)
	if err != nil {
		return nil, err
	}
	descs := make([]types.Descriptor, 0, len(fds))
	for _, fd := range fds {
		descs = append(descs, fd.descriptor())
	}
	return descs, nil
}

// fileForFilename returns the FileDesc corresponding to the given
// filename, or an error.
func (o operator) fileForFilename(filename string) (FileDesc, error) {
	fds, _, err := ReadCatalog(o.data, o.debug)
	if err != nil {
		return FileDesc{}, err
	}
	for _, fd := range fds {
		if fd.FilenameString() == filename {
			return fd, nil
		}
	}
	return FileDesc{}, fmt.Errorf("Filename %q not found", filename)
}

// GetFile retrieves a file by name.
func (o operator) GetFile(filename string) (types.FileInfo, error) {
	fd, err := o.fileForFilename(filename)
	if err != nil {
		return types.FileInfo{}, err
	}
	desc := fd.descriptor()
	data, err := fd.Contents(o.data)
	if err != nil {
		return types.FileInfo{}, err
	}

	fi := types.FileInfo{
		Descriptor: desc,
		Data:       data,
	}

	errType := "UNKNOWN"
	switch fd.Filetype & 0x7f {
	case FiletypeText: // Text file
		for data[len(data)-1] == 0 {
			data = data[:len(data)-1]
		}
		fi.Descriptor.Length = len(data)
		fi.Data = data
		return fi, nil

	case FiletypeInteger, FiletypeApplesoft, FiletypeBinary:
		switch fd.Filetype & 0x7f {
		case FiletypeApplesoft:
			fi.StartAddress = 0x801
		case FiletypeInteger:
			// TODO(zellyn): figure out what address integer basic programs are stored at.
		case FiletypeBinary:
			fi.StartAddress = uint16(data[0]) + uint16(data[1])<<8
			data = data[2:]
		}
		length := int(data[0]) + int(data[1])*256
		data = data[2 : length+2]
		fi.Descriptor.Length = length
		fi.Data = data
		return fi, nil

	case FiletypeS: // S type file
		errType = "S"
	case FiletypeRelocatable: // RELOCATABLE object module file
		errType = "REL"
	case FiletypeA: // A type file
		errType = "A"
	case FiletypeB: // B type file
		errType = "B"
	}

	return types.FileInfo{}, fmt.Errorf("%s does not yet implement `GetFile` for filetype %s", operatorName, errType)
}

// Delete deletes a file by name. It returns true if the file was
// deleted, false if it didn't exist.
//
// It walks the file's track/sector list, freeing every data sector
// and list sector it finds. In the catalog entry, it stashes the
// original track/sector-list-track byte in the last byte of the
// filename field (matching how FilenameString knows to strip it back
// off), sets the track/sector-list-track byte to 0xFF, and zeros the
// track/sector-list-sector byte.
func (o operator) Delete(filename string) (bool, error) {
	loc, fd, found, err := locateFile(o.data, filename)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	v, err := readVTOC(o.data)
	if err != nil {
		return false, err
	}

	nextTrack, nextSector := fd.TrackSectorListTrack, fd.TrackSectorListSector
	seen := map[disk.TrackSector]bool{}
	for nextTrack != 0 || nextSector != 0 {
		ts := disk.TrackSector{Track: nextTrack, Sector: nextSector}
		if seen[ts] {
			return false, fmt.Errorf("file %q has a track/sector list loop at track=%d sector=%d", filename, nextTrack, nextSector)
		}
		seen[ts] = true
		tsl := TrackSectorList{}
		if err := disk.UnmarshalLogicalSector(o.data, &tsl, nextTrack, nextSector); err != nil {
			return false, err
		}
		for _, dts := range tsl.TrackSectors {
			if dts.Track == 0 && dts.Sector == 0 {
				continue
			}
			v.freeSector(dts.Track, dts.Sector)
		}
		v.freeSector(nextTrack, nextSector)
		nextTrack, nextSector = tsl.NextTrack, tsl.NextSector
	}

	cs := CatalogSector{}
	if err := disk.UnmarshalLogicalSector(o.data, &cs, loc.track, loc.sector); err != nil {
		return false, err
	}
	entry := cs.FileDescs[loc.index]
	entry.Filename[len(entry.Filename)-1] = entry.TrackSectorListTrack
	entry.TrackSectorListTrack = 0xff
	entry.TrackSectorListSector = 0
	cs.FileDescs[loc.index] = entry
	buf, err := cs.ToSector()
	if err != nil {
		return false, err
	}
	if err := disk.WriteSector(o.data, loc.track, loc.sector, buf); err != nil {
		return false, err
	}

	if err := flushVTOC(o.data, v); err != nil {
		return false, err
	}
	return true, nil
}

// PutFile writes a file by name. If the file exists and overwrite
// is false, it returns with an error. Otherwise it returns true if
// an existing file was overwritten.
//
// It deletes any existing file of the same name first, allocates a
// track/sector list sector plus however many data sectors the file
// needs, writes the data then the (possibly chained) track/sector
// list, installs a catalog entry in the first free or deleted slot,
// and flushes the VTOC. All allocation happens against an in-memory
// copy of the VTOC before any of the new file's bytes are written to
// the disk image, so a disk-full error midway through allocation
// writes nothing for the new file; when overwriting, the existing
// file has already been deleted from the disk image by then.
func (o operator) PutFile(fileInfo types.FileInfo, overwrite bool) (existed bool, err error) {
	ftype, err := dos3FiletypeFor(fileInfo.Descriptor.Type)
	if err != nil {
		return false, err
	}
	name := fileInfo.Descriptor.Name

	if _, _, found, lerr := locateFile(o.data, name); lerr != nil {
		return false, lerr
	} else if found {
		existed = true
		if !overwrite {
			return false, errs.FileExistsf("dos3: file %q already exists", name)
		}
		if _, derr := o.Delete(name); derr != nil {
			return false, derr
		}
	}

	payload, err := buildFileBytes(fileInfo, ftype)
	if err != nil {
		return existed, err
	}

	v, err := readVTOC(o.data)
	if err != nil {
		return existed, err
	}

	dataSectorCount := (len(payload) + 255) / 256
	if dataSectorCount == 0 {
		dataSectorCount = 1
	}
	const maxPerList = 122
	listSectorCount := (dataSectorCount + maxPerList - 1) / maxPerList
	if listSectorCount == 0 {
		listSectorCount = 1
	}

	dataSectors := make([]disk.TrackSector, 0, dataSectorCount)
	for i := 0; i < dataSectorCount; i++ {
		track, sector, ok := v.allocateSector()
		if !ok {
			return existed, errs.DiskFullf("dos3: disk full allocating data sector %d of %d for %q", i+1, dataSectorCount, name)
		}
		dataSectors = append(dataSectors, disk.TrackSector{Track: track, Sector: sector})
	}
	listSectors := make([]disk.TrackSector, 0, listSectorCount)
	for i := 0; i < listSectorCount; i++ {
		track, sector, ok := v.allocateSector()
		if !ok {
			return existed, errs.DiskFullf("dos3: disk full allocating track/sector list %d of %d for %q", i+1, listSectorCount, name)
		}
		listSectors = append(listSectors, disk.TrackSector{Track: track, Sector: sector})
	}

	loc, found, err := findCatalogSlot(o.data)
	if err != nil {
		return existed, err
	}
	if !found {
		return existed, errs.DirectoryFullf("dos3: catalog is full, no room for %q", name)
	}

	for i, ts := range dataSectors {
		start := i * 256
		chunk := make([]byte, 256)
		if start < len(payload) {
			copy(chunk, payload[start:min(start+256, len(payload))])
		}
		if err := disk.WriteSector(o.data, ts.Track, ts.Sector, chunk); err != nil {
			return existed, err
		}
	}

	for i, ts := range listSectors {
		tsl := TrackSectorList{SectorOffset: uint16(i * maxPerList)}
		if i+1 < len(listSectors) {
			tsl.NextTrack = listSectors[i+1].Track
			tsl.NextSector = listSectors[i+1].Sector
		}
		for j := 0; j < maxPerList; j++ {
			idx := i*maxPerList + j
			if idx >= len(dataSectors) {
				break
			}
			tsl.TrackSectors[j] = dataSectors[idx]
		}
		buf, err := tsl.ToSector()
		if err != nil {
			return existed, err
		}
		if err := disk.WriteSector(o.data, ts.Track, ts.Sector, buf); err != nil {
			return existed, err
		}
	}

	fname, err := filenameBytes(name)
	if err != nil {
		return existed, err
	}
	fd := FileDesc{
		TrackSectorListTrack:  listSectors[0].Track,
		TrackSectorListSector: listSectors[0].Sector,
		Filetype:              ftype,
		Filename:              fname,
		SectorCount:           uint16(len(dataSectors) + len(listSectors)),
	}
	if fileInfo.Descriptor.Locked {
		fd.Filetype |= FiletypeLocked
	}

	cs := CatalogSector{}
	if err := disk.UnmarshalLogicalSector(o.data, &cs, loc.track, loc.sector); err != nil {
		return existed, err
	}
	cs.FileDescs[loc.index] = fd
	buf, err := cs.ToSector()
	if err != nil {
		return existed, err
	}
	if err := disk.WriteSector(o.data, loc.track, loc.sector, buf); err != nil {
		return existed, err
	}

	if err := flushVTOC(o.data, v); err != nil {
		return existed, err
	}
	return existed, nil
}

// DiskOrder returns the Physical-to-Logical mapping order.
func (o operator) DiskOrder() types.DiskOrder {
	return types.DiskOrderDO
}

// GetBytes returns the disk image bytes, in logical order.
func (o operator) GetBytes() []byte {
	return o.data
}

// OperatorFactory is a types.OperatorFactory for DOS 3.3 disks.
type OperatorFactory struct {
}

// Name returns the name of the operator.
func (of OperatorFactory) Name() string {
	return operatorName
}

// SeemsToMatch returns true if the []byte disk image seems to match the
// system of this operator.
func (of OperatorFactory) SeemsToMatch(diskbytes []byte, debug bool) bool {
	// For now, just return true if we can run Catalog successfully.
	_, _, err := ReadCatalog(diskbytes, debug)
	if err != nil {
		return false
	}
	return true
}

// Operator returns an Operator for the []byte disk image.
func (of OperatorFactory) Operator(diskbytes []byte, debug bool) (types.Operator, error) {
	return operator{data: diskbytes, debug: debug}, nil
}

// DiskOrder returns the Physical-to-Logical mapping order.
func (of OperatorFactory) DiskOrder() types.DiskOrder {
	return operator{}.DiskOrder()
}
