package msx

import (
	"github.com/onionmixer/rdedisktool/dmk"
	"github.com/onionmixer/rdedisktool/errs"
	"github.com/onionmixer/rdedisktool/format"
	"github.com/onionmixer/rdedisktool/geometry"
)

// dmkImage is a thin format.Image wrapper around dmk.Image, decoding
// the linear track argument into the (cylinder, side) pair the DMK
// container actually addresses by.
type dmkImage struct {
	img *dmk.Image
}

// NewDMK wraps a decoded dmk.Image as a format.Image.
func NewDMK(img *dmk.Image) *dmkImage {
	return &dmkImage{img: img}
}

// DecodeDMK parses raw DMK bytes into an Image.
func DecodeDMK(data []byte) (*dmkImage, error) {
	img, err := dmk.Decode(data)
	if err != nil {
		return nil, err
	}
	return NewDMK(img), nil
}

func (m *dmkImage) Format() format.DiskFormat { return format.MSXDMK }

func (m *dmkImage) Geometry() geometry.Geometry {
	return geometry.Geometry{
		Tracks:          m.img.Header.Tracks,
		Sides:           m.img.Header.Sides(),
		SectorsPerTrack: 9,
		BytesPerSector:  512,
	}
}

func (m *dmkImage) splitLinear(linearTrack int) (cylinder, side int) {
	sides := m.img.Header.Sides()
	return linearTrack / sides, linearTrack % sides
}

func (m *dmkImage) ReadSector(linearTrack, sector int) ([]byte, error) {
	cyl, side := m.splitLinear(linearTrack)
	return m.img.ReadSector(cyl, side, sector)
}

func (m *dmkImage) WriteSector(linearTrack, sector int, data []byte) error {
	if m.img.Header.WriteProtected {
		return errs.WriteProtectedf("msx: image is write protected")
	}
	cyl, side := m.splitLinear(linearTrack)
	return m.img.WriteSector(cyl, side, sector, data)
}

func (m *dmkImage) Bytes() []byte        { return m.img.Encode() }
func (m *dmkImage) WriteProtected() bool { return m.img.Header.WriteProtected }
