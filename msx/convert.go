package msx

import (
	"github.com/onionmixer/rdedisktool/dmk"
	"github.com/onionmixer/rdedisktool/errs"
	"github.com/onionmixer/rdedisktool/format"
)

// standardDMKTrackLength is the MFM track buffer size (IDAM table
// plus encoded content) that comfortably holds nine 512-byte sectors
// of gap-and-sync overhead, matching the fixture size this tool's own
// DMK tests build tracks against.
const standardDMKTrackLength = 6250

// ConvertDSKtoDMK synthesizes MFM/IDAM track data for every track of
// a flat MSXDSK image, producing a new MSXDMK image of the same
// geometry.
func ConvertDSKtoDMK(d *dskImage) (*dmkImage, error) {
	geom := d.Geometry()
	tracks := make([][2][]byte, geom.Tracks)
	for cyl := 0; cyl < geom.Tracks; cyl++ {
		for side := 0; side < geom.Sides; side++ {
			linear := cyl*geom.Sides + side
			sectors := make([][]byte, geom.SectorsPerTrack+1) // index 0 unused
			for s := 0; s < geom.SectorsPerTrack; s++ {
				data, err := d.ReadSector(linear, s+1)
				if err != nil {
					return nil, err
				}
				sectors[s+1] = data
			}
			tracks[cyl][side] = dmk.BuildTrack(cyl, side, sectors, standardDMKTrackLength)
		}
	}
	img := &dmk.Image{
		Header: dmk.Header{
			Tracks:      geom.Tracks,
			TrackLength: standardDMKTrackLength,
			SingleSided: geom.Sides == 1,
		},
		Tracks: tracks,
	}
	return NewDMK(img), nil
}

// ConvertDMKtoDSK is the inverse of ConvertDSKtoDMK: it reads every
// sector out of the decoded MFM tracks and lays them out as a flat
// MSXDSK image.
func ConvertDMKtoDSK(m *dmkImage) (*dskImage, error) {
	geom := m.Geometry()
	d := NewDSKGeometry(geom)
	linearTracks := geom.Tracks * geom.Sides
	for linear := 0; linear < linearTracks; linear++ {
		for s := 1; s <= geom.SectorsPerTrack; s++ {
			data, err := m.ReadSector(linear, s)
			if err != nil {
				return nil, err
			}
			if err := d.WriteSector(linear, s, data); err != nil {
				return nil, err
			}
		}
	}
	return d, nil
}

// ConvertXSAtoDSK unwraps an XSA container's already-decompressed
// disk into an independent, writable MSXDSK image (xsaImage itself is
// permanently write protected).
func ConvertXSAtoDSK(img *xsaImage) (*dskImage, error) {
	return LoadDSK(img.disk.Bytes(), img.disk.Geometry())
}

// ConvertXSAtoDMK decompresses an XSA container and re-encodes it as
// an MSXDMK image.
func ConvertXSAtoDMK(img *xsaImage) (*dmkImage, error) {
	d, err := ConvertXSAtoDSK(img)
	if err != nil {
		return nil, err
	}
	return ConvertDSKtoDMK(d)
}

// ConvertTo converts img to target when a known conversion path
// exists: DSK↔DMK, XSA→{DSK,DMK}. Anything else reports Unsupported.
func ConvertTo(img format.Image, target format.DiskFormat) (format.Image, error) {
	switch src := img.(type) {
	case *dskImage:
		if target == format.MSXDMK {
			return ConvertDSKtoDMK(src)
		}
	case *dmkImage:
		if target == format.MSXDSK {
			return ConvertDMKtoDSK(src)
		}
	case *xsaImage:
		switch target {
		case format.MSXDSK:
			return ConvertXSAtoDSK(src)
		case format.MSXDMK:
			return ConvertXSAtoDMK(src)
		}
	}
	return nil, errs.UnsupportedFormatf("msx: no conversion from %s to %s", img.Format(), target)
}
