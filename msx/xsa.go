package msx

import (
	"github.com/onionmixer/rdedisktool/errs"
	"github.com/onionmixer/rdedisktool/format"
	"github.com/onionmixer/rdedisktool/geometry"
	"github.com/onionmixer/rdedisktool/xsa"
)

// xsaImage is a decode-only format.Image wrapper: an XSA-compressed
// disk is decompressed once into a flat MSXDSK-shaped buffer and
// treated as permanently write protected, since XSA is used only as a
// symmetrical test counterpart and never as a persistent save target.
type xsaImage struct {
	filename string
	disk     *dskImage
}

// DecodeXSA decompresses an XSA container and reports the resulting
// image under the standard MSXDSK 720KB geometry.
func DecodeXSA(data []byte) (*xsaImage, error) {
	plain, filename, err := xsa.Decode(data)
	if err != nil {
		return nil, err
	}
	geom := geometry.Geometry{
		Tracks:          80,
		Sides:           2,
		SectorsPerTrack: 9,
		BytesPerSector:  512,
	}
	if len(plain)%geom.BytesPerSector != 0 {
		return nil, errs.InvalidFormatf("msx: decompressed XSA payload %d bytes is not sector-aligned", len(plain))
	}
	disk, err := LoadDSK(plain, geom)
	if err != nil {
		return nil, err
	}
	return &xsaImage{filename: filename, disk: disk}, nil
}

func (img *xsaImage) Format() format.DiskFormat     { return format.MSXXSA }
func (img *xsaImage) Geometry() geometry.Geometry   { return img.disk.Geometry() }
func (img *xsaImage) ReadSector(t, s int) ([]byte, error) { return img.disk.ReadSector(t, s) }

func (img *xsaImage) WriteSector(t, s int, data []byte) error {
	return errs.WriteProtectedf("msx: MSXXSA images are read-only")
}

func (img *xsaImage) Bytes() []byte        { return img.disk.Bytes() }
func (img *xsaImage) WriteProtected() bool { return true }

// Filename returns the embedded filename recorded in the XSA header.
func (img *xsaImage) Filename() string { return img.filename }
