// Package geometry holds the disk-shape types and the fixed
// interleave/sector-order tables shared by every codec: Geometry,
// the DOS 3.3 and ProDOS logical/physical sector maps (ground truth:
// disk/disk.go of the teacher repo), and the physical sector order
// the Apple nibble track synthesizer walks (ground truth:
// NibbleEncoder.cpp's PHYSICAL_SECTOR_ORDER).
package geometry

import "github.com/onionmixer/rdedisktool/errs"

// Geometry describes the shape of a disk image: tracks, sides,
// sectors per track, and bytes per sector. All four fields must be
// non-zero on a loaded image.
type Geometry struct {
	Tracks         int
	Sides          int
	SectorsPerTrack int
	BytesPerSector int
}

// TotalSectors returns tracks*sides*sectorsPerTrack.
func (g Geometry) TotalSectors() int {
	return g.Tracks * g.Sides * g.SectorsPerTrack
}

// TotalBytes returns the size in bytes implied by the geometry.
func (g Geometry) TotalBytes() int {
	return g.TotalSectors() * g.BytesPerSector
}

// Validate returns an error if any field is zero.
func (g Geometry) Validate() error {
	if g.Tracks == 0 || g.Sides == 0 || g.SectorsPerTrack == 0 || g.BytesPerSector == 0 {
		return errs.InvalidParameterf("geometry: all of tracks, sides, sectorsPerTrack, bytesPerSector must be non-zero, got %+v", g)
	}
	return nil
}

// TrackSector is a (track, sector) coordinate pair.
type TrackSector struct {
	Track  byte
	Sector byte
}

// Apple II DOS 3.3 disk characteristics.
const (
	AppleFloppyTracks      = 35
	AppleFloppySectors     = 16 // sectors per track
	AppleSectorBytes       = 256
	AppleFloppyDiskBytes   = AppleFloppyTracks * AppleFloppySectors * AppleSectorBytes
	AppleFloppyTrackBytes  = AppleSectorBytes * AppleFloppySectors
)

// DOS33LogicalToPhysical maps DOS 3.3 logical sector numbers to
// physical (on-disk) sector numbers. See [UtA2 9-42 - Read Routines].
var DOS33LogicalToPhysical = []int{
	0x00, 0x0D, 0x0B, 0x09, 0x07, 0x05, 0x03, 0x01,
	0x0E, 0x0C, 0x0A, 0x08, 0x06, 0x04, 0x02, 0x0F,
}

// DOS33PhysicalToLogical maps DOS 3.3 physical sector numbers to
// logical sector numbers. See [UtA2 9-42 - Read Routines].
var DOS33PhysicalToLogical = []int{
	0x00, 0x07, 0x0E, 0x06, 0x0D, 0x05, 0x0C, 0x04,
	0x0B, 0x03, 0x0A, 0x02, 0x09, 0x01, 0x08, 0x0F,
}

// ProDOSLogicalToPhysical maps ProDOS logical sector numbers to
// physical sector numbers. See [UtA2e 9-43 - Sectors vs. Blocks].
var ProDOSLogicalToPhysical = []int{
	0x00, 0x02, 0x04, 0x06, 0x08, 0x0A, 0x0C, 0x0E,
	0x01, 0x03, 0x05, 0x07, 0x09, 0x0B, 0x0D, 0x0F,
}

// ProDOSPhysicalToLogical maps ProDOS physical sector numbers to
// logical sector numbers. See [UtA2e 9-43 - Sectors vs. Blocks].
var ProDOSPhysicalToLogical = []int{
	0x00, 0x08, 0x01, 0x09, 0x02, 0x0A, 0x03, 0x0B,
	0x04, 0x0C, 0x05, 0x0D, 0x06, 0x0E, 0x07, 0x0F,
}

// NibblePhysicalSectorOrder is the order sectors are emitted onto a
// synthesized Apple nibble track.
var NibblePhysicalSectorOrder = [16]int{0, 7, 14, 6, 13, 5, 12, 4, 11, 3, 10, 2, 9, 1, 8, 15}

// DOtoPO remaps a DOS-order sector number to its Plain-ProDOS-order
// counterpart, via the shared physical layer: physical =
// DOS33LogicalToPhysical[doSector]; po = ProDOSPhysicalToLogical[physical].
func DOtoPO(doSector int) int {
	return ProDOSPhysicalToLogical[DOS33LogicalToPhysical[doSector]]
}

// POtoDO is the inverse of DOtoPO.
func POtoDO(poSector int) int {
	return DOS33PhysicalToLogical[ProDOSLogicalToPhysical[poSector]]
}
