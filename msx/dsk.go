// Package msx implements the MSX family of format.Image containers:
// the flat FAT12-addressable MSXDSK, the MFM/IDAM MSXDMK (wrapping
// dmk.Image), and the decode-only MSXXSA (wrapping xsa's LZ77 +
// adaptive-Huffman codec).
package msx

import (
	"github.com/onionmixer/rdedisktool/errs"
	"github.com/onionmixer/rdedisktool/format"
	"github.com/onionmixer/rdedisktool/geometry"
)

// dskImage is a flat, C/H/S-addressed sector buffer: the MSX-DOS
// on-disk layout for plain .dsk images.
type dskImage struct {
	data           []byte
	geom           geometry.Geometry
	writeProtected bool
}

// NewDSK creates a blank MSXDSK image with the standard 720KB
// geometry: 80 tracks, 2 sides, 9 sectors/track, 512 bytes/sector.
func NewDSK() *dskImage {
	return NewDSKGeometry(geometry.Geometry{
		Tracks:          80,
		Sides:           2,
		SectorsPerTrack: 9,
		BytesPerSector:  512,
	})
}

// NewDSKGeometry creates a blank MSXDSK image with an explicit
// geometry (MSX-DOS supports several capacities: 360KB/720KB/1.44MB).
func NewDSKGeometry(geom geometry.Geometry) *dskImage {
	return &dskImage{
		data: make([]byte, geom.TotalBytes()),
		geom: geom,
	}
}

// LoadDSK wraps raw bytes as an MSXDSK image with an explicit
// geometry (the container itself carries no self-describing header;
// geometry is supplied by the caller or inferred from the BPB by the
// FAT12 filesystem layer).
func LoadDSK(data []byte, geom geometry.Geometry) (*dskImage, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	if len(data) != geom.TotalBytes() {
		return nil, errs.InvalidFormatf("msx: image size %d does not match geometry total %d", len(data), geom.TotalBytes())
	}
	return &dskImage{data: append([]byte(nil), data...), geom: geom}, nil
}

func (img *dskImage) Format() format.DiskFormat   { return format.MSXDSK }
func (img *dskImage) Geometry() geometry.Geometry { return img.geom }
func (img *dskImage) Bytes() []byte               { return img.data }
func (img *dskImage) WriteProtected() bool        { return img.writeProtected }
func (img *dskImage) SetWriteProtected(p bool)    { img.writeProtected = p }

// chsOffset converts a linear track index (cylinder*sides+side, the
// same convention the DMK container uses for its per-cylinder offset)
// and a 1-based sector number into a flat byte offset.
func (img *dskImage) chsOffset(track, sector int) (int, error) {
	linearTracks := img.geom.Tracks * img.geom.Sides
	if track < 0 || track >= linearTracks {
		return 0, errs.TrackNotFoundf("msx: track %d out of range (0..%d)", track, linearTracks-1)
	}
	if sector < 1 || sector > img.geom.SectorsPerTrack {
		return 0, errs.SectorNotFoundf("msx: sector %d out of range (1..%d)", sector, img.geom.SectorsPerTrack)
	}
	trackBytes := img.geom.SectorsPerTrack * img.geom.BytesPerSector
	return track*trackBytes + (sector-1)*img.geom.BytesPerSector, nil
}

// ReadSector reads one 512-byte sector. sector is 1-based, per MSX
// wire convention.
func (img *dskImage) ReadSector(track, sector int) ([]byte, error) {
	start, err := img.chsOffset(track, sector)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), img.data[start:start+img.geom.BytesPerSector]...), nil
}

// WriteSector writes one 512-byte sector.
func (img *dskImage) WriteSector(track, sector int, data []byte) error {
	if img.writeProtected {
		return errs.WriteProtectedf("msx: image is write protected")
	}
	if len(data) != img.geom.BytesPerSector {
		return errs.InvalidParameterf("msx: sector payload is %d bytes, want %d", len(data), img.geom.BytesPerSector)
	}
	start, err := img.chsOffset(track, sector)
	if err != nil {
		return err
	}
	copy(img.data[start:start+img.geom.BytesPerSector], data)
	return nil
}

// LBAToCHS converts a 0-based FAT12 logical block address into
// (cylinder, side, sector), applying the +1 MSX wire-sector
// convention.
func LBAToCHS(lba int, geom geometry.Geometry) (cylinder, side, sector int) {
	perTrack := geom.SectorsPerTrack
	cylinder = lba / (perTrack * geom.Sides)
	rem := lba % (perTrack * geom.Sides)
	side = rem / perTrack
	sector = (rem % perTrack) + 1
	return
}

// LBAToLinear converts a 0-based FAT12 logical block address directly
// into the (linearTrack, sector) pair format.Image.ReadSector expects.
func LBAToLinear(lba int, geom geometry.Geometry) (linearTrack, sector int) {
	cylinder, side, sector := LBAToCHS(lba, geom)
	return cylinder*geom.Sides + side, sector
}
