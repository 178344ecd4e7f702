// Package x68000 implements the X68000 family of format.Image
// containers: fixed-geometry XDF and the sparse, multi-type DIM.
package x68000

import (
	"github.com/onionmixer/rdedisktool/errs"
	"github.com/onionmixer/rdedisktool/format"
	"github.com/onionmixer/rdedisktool/geometry"
)

const (
	xdfCylinders      = 77
	xdfHeads          = 2
	xdfTotalTracks    = xdfCylinders * xdfHeads // 154, linear track count
	xdfSectorsPerTrack = 8
	xdfSectorSize     = 1024
	xdfFileSize       = xdfTotalTracks * xdfSectorsPerTrack * xdfSectorSize // 1,261,568

	blankByte = 0xE5
)

// xdfImage is the fixed-geometry X68000 XDF container: no header, a
// flat linear-track-addressed buffer of exactly xdfFileSize bytes.
type xdfImage struct {
	data           []byte
	writeProtected bool
}

// NewXDF creates a blank XDF image filled with the 0xE5 blank byte.
// It takes no geometry: XDF geometry is fixed by the format.
func NewXDF() *xdfImage {
	data := make([]byte, xdfFileSize)
	for i := range data {
		data[i] = blankByte
	}
	return &xdfImage{data: data}
}

// LoadXDF wraps raw bytes as an XDF image. Files within 1024 bytes of
// the canonical size are accepted and padded/truncated to exactly
// xdfFileSize, matching the original tolerance for slightly malformed
// dumps.
func LoadXDF(data []byte) (*xdfImage, error) {
	if len(data) > xdfFileSize+1024 || len(data) < xdfFileSize-1024 {
		return nil, errs.InvalidFormatf("x68000: invalid XDF size %d, expected %d", len(data), xdfFileSize)
	}
	buf := make([]byte, xdfFileSize)
	for i := range buf {
		buf[i] = blankByte
	}
	copy(buf, data)
	return &xdfImage{data: buf}, nil
}

func (img *xdfImage) Format() format.DiskFormat { return format.X68000XDF }

func (img *xdfImage) Geometry() geometry.Geometry {
	return geometry.Geometry{
		Tracks:          xdfCylinders,
		Sides:           xdfHeads,
		SectorsPerTrack: xdfSectorsPerTrack,
		BytesPerSector:  xdfSectorSize,
	}
}

func (img *xdfImage) Bytes() []byte        { return img.data }
func (img *xdfImage) WriteProtected() bool { return img.writeProtected }
func (img *xdfImage) SetWriteProtected(p bool) { img.writeProtected = p }

func calculateOffset(linearTrack, sector int) int {
	return (linearTrack*xdfSectorsPerTrack + (sector - 1)) * xdfSectorSize
}

func validateXDFParameters(linearTrack, sector int) error {
	if linearTrack < 0 || linearTrack >= xdfTotalTracks {
		return errs.TrackNotFoundf("x68000: track %d out of range (0..%d)", linearTrack, xdfTotalTracks-1)
	}
	if sector < 1 || sector > xdfSectorsPerTrack {
		return errs.SectorNotFoundf("x68000: sector %d out of range (1..%d)", sector, xdfSectorsPerTrack)
	}
	return nil
}

// ReadSector reads one 1024-byte sector at (linearTrack, sector).
// sector is 1-based.
func (img *xdfImage) ReadSector(linearTrack, sector int) ([]byte, error) {
	if err := validateXDFParameters(linearTrack, sector); err != nil {
		return nil, err
	}
	offset := calculateOffset(linearTrack, sector)
	if offset+xdfSectorSize > len(img.data) {
		return nil, errs.SectorNotFoundf("x68000: sector %d on track %d overruns image", sector, linearTrack)
	}
	return append([]byte(nil), img.data[offset:offset+xdfSectorSize]...), nil
}

// WriteSector writes one 1024-byte sector, padding a short payload
// with the blank byte.
func (img *xdfImage) WriteSector(linearTrack, sector int, data []byte) error {
	if img.writeProtected {
		return errs.WriteProtectedf("x68000: image is write protected")
	}
	if err := validateXDFParameters(linearTrack, sector); err != nil {
		return err
	}
	offset := calculateOffset(linearTrack, sector)
	if offset+xdfSectorSize > len(img.data) {
		return errs.SectorNotFoundf("x68000: sector %d on track %d overruns image", sector, linearTrack)
	}
	n := copy(img.data[offset:offset+xdfSectorSize], data)
	for i := offset + n; i < offset+xdfSectorSize; i++ {
		img.data[i] = blankByte
	}
	return nil
}
