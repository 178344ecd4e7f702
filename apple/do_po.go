// Package apple implements the Apple II family of disk-image
// containers: flat-sector AppleDO/ApplePO, nibble-track AppleNIB/NB2,
// and the WOZ bit-stream AppleWOZ1/AppleWOZ2, all satisfying the
// shared format.Image interface.
package apple

import (
	"github.com/onionmixer/rdedisktool/errs"
	"github.com/onionmixer/rdedisktool/format"
	"github.com/onionmixer/rdedisktool/geometry"
)

// flatImage is the shared implementation behind AppleDO and ApplePO:
// a flat byte buffer addressed as track*trackBytes + sector*256,
// where "sector" is already in the format's native order (DOS order
// for AppleDO, ProDOS order for ApplePO — the byte layout on disk
// differs between the two, not the addressing arithmetic).
type flatImage struct {
	data           []byte
	geom           geometry.Geometry
	writeProtected bool
	fmt            format.DiskFormat
}

// NewDO creates a blank AppleDO image with the standard 35-track
// geometry.
func NewDO() *flatImage {
	return newFlat(format.AppleDO)
}

// NewPO creates a blank ApplePO image with the standard 35-track
// geometry.
func NewPO() *flatImage {
	return newFlat(format.ApplePO)
}

func newFlat(f format.DiskFormat) *flatImage {
	geom := geometry.Geometry{
		Tracks:          geometry.AppleFloppyTracks,
		Sides:           1,
		SectorsPerTrack: geometry.AppleFloppySectors,
		BytesPerSector:  geometry.AppleSectorBytes,
	}
	return &flatImage{
		data: make([]byte, geom.TotalBytes()),
		geom: geom,
		fmt:  f,
	}
}

// LoadDO wraps raw bytes (already in DOS sector order) as an AppleDO
// image.
func LoadDO(data []byte) (*flatImage, error) {
	return loadFlat(data, format.AppleDO)
}

// LoadPO wraps raw bytes (already in ProDOS sector order) as an
// ApplePO image.
func LoadPO(data []byte) (*flatImage, error) {
	return loadFlat(data, format.ApplePO)
}

func loadFlat(data []byte, f format.DiskFormat) (*flatImage, error) {
	if len(data)%geometry.AppleFloppyTrackBytes != 0 {
		return nil, errs.InvalidFormatf("apple: image size %d is not a multiple of a track (%d bytes)", len(data), geometry.AppleFloppyTrackBytes)
	}
	tracks := len(data) / geometry.AppleFloppyTrackBytes
	geom := geometry.Geometry{
		Tracks:          tracks,
		Sides:           1,
		SectorsPerTrack: geometry.AppleFloppySectors,
		BytesPerSector:  geometry.AppleSectorBytes,
	}
	return &flatImage{
		data: append([]byte(nil), data...),
		geom: geom,
		fmt:  f,
	}, nil
}

func (img *flatImage) Format() format.DiskFormat       { return img.fmt }
func (img *flatImage) Geometry() geometry.Geometry     { return img.geom }
func (img *flatImage) Bytes() []byte                   { return img.data }
func (img *flatImage) WriteProtected() bool            { return img.writeProtected }
func (img *flatImage) SetWriteProtected(protected bool) { img.writeProtected = protected }

func (img *flatImage) offset(track, sector int) (int, error) {
	if track < 0 || track >= img.geom.Tracks {
		return 0, errs.TrackNotFoundf("apple: track %d out of range (0..%d)", track, img.geom.Tracks-1)
	}
	if sector < 0 || sector >= img.geom.SectorsPerTrack {
		return 0, errs.SectorNotFoundf("apple: sector %d out of range (0..%d)", sector, img.geom.SectorsPerTrack-1)
	}
	return track*geometry.AppleFloppyTrackBytes + sector*geometry.AppleSectorBytes, nil
}

// ReadSector reads 256 bytes at (track, sector) in this image's
// native sector order.
func (img *flatImage) ReadSector(track, sector int) ([]byte, error) {
	start, err := img.offset(track, sector)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), img.data[start:start+geometry.AppleSectorBytes]...), nil
}

// WriteSector writes 256 bytes at (track, sector).
func (img *flatImage) WriteSector(track, sector int, data []byte) error {
	if img.writeProtected {
		return errs.WriteProtectedf("apple: image is write protected")
	}
	if len(data) != geometry.AppleSectorBytes {
		return errs.InvalidParameterf("apple: sector payload is %d bytes, want %d", len(data), geometry.AppleSectorBytes)
	}
	start, err := img.offset(track, sector)
	if err != nil {
		return err
	}
	copy(img.data[start:start+geometry.AppleSectorBytes], data)
	return nil
}

// ConvertDOtoPO remaps do's bytes into ProDOS sector order, producing
// a new ApplePO image of the same geometry.
func ConvertDOtoPO(do *flatImage) (*flatImage, error) {
	if do.fmt != format.AppleDO {
		return nil, errs.UnsupportedFormatf("apple: ConvertDOtoPO requires an AppleDO source")
	}
	po := &flatImage{
		data: make([]byte, len(do.data)),
		geom: do.geom,
		fmt:  format.ApplePO,
	}
	for track := 0; track < do.geom.Tracks; track++ {
		for doSector := 0; doSector < do.geom.SectorsPerTrack; doSector++ {
			data, err := do.ReadSector(track, doSector)
			if err != nil {
				return nil, err
			}
			poSector := geometry.DOtoPO(doSector)
			if err := po.WriteSector(track, poSector, data); err != nil {
				return nil, err
			}
		}
	}
	return po, nil
}

// ConvertPOtoDO is the inverse of ConvertDOtoPO.
func ConvertPOtoDO(po *flatImage) (*flatImage, error) {
	if po.fmt != format.ApplePO {
		return nil, errs.UnsupportedFormatf("apple: ConvertPOtoDO requires an ApplePO source")
	}
	do := &flatImage{
		data: make([]byte, len(po.data)),
		geom: po.geom,
		fmt:  format.AppleDO,
	}
	for track := 0; track < po.geom.Tracks; track++ {
		for poSector := 0; poSector < po.geom.SectorsPerTrack; poSector++ {
			data, err := po.ReadSector(track, poSector)
			if err != nil {
				return nil, err
			}
			doSector := geometry.POtoDO(poSector)
			if err := do.WriteSector(track, doSector, data); err != nil {
				return nil, err
			}
		}
	}
	return do, nil
}

// ConvertNIBtoDO decodes every track of a nibble image into its
// logical DOS-order sectors and lays them out as a flat AppleDO
// image. Unlike DO↔PO, no sector-order remap is needed: nibImage's
// ReadSector already returns sectors indexed by DOS sector number.
func ConvertNIBtoDO(n *nibImage) (*flatImage, error) {
	geom := n.Geometry()
	do := &flatImage{
		data: make([]byte, geom.TotalBytes()),
		geom: geom,
		fmt:  format.AppleDO,
	}
	for track := 0; track < geom.Tracks; track++ {
		for sector := 0; sector < geom.SectorsPerTrack; sector++ {
			data, err := n.ReadSector(track, sector)
			if err != nil {
				return nil, err
			}
			if err := do.WriteSector(track, sector, data); err != nil {
				return nil, err
			}
		}
	}
	return do, nil
}

// ConvertWOZtoDO decodes every track of a WOZ bit-stream image into
// its logical DOS-order sectors and lays them out as a flat AppleDO
// image.
func ConvertWOZtoDO(w *wozImage) (*flatImage, error) {
	geom := w.Geometry()
	do := &flatImage{
		data: make([]byte, geom.TotalBytes()),
		geom: geom,
		fmt:  format.AppleDO,
	}
	for track := 0; track < geom.Tracks; track++ {
		for sector := 0; sector < geom.SectorsPerTrack; sector++ {
			data, err := w.ReadSector(track, sector)
			if err != nil {
				return nil, err
			}
			if err := do.WriteSector(track, sector, data); err != nil {
				return nil, err
			}
		}
	}
	return do, nil
}

// ConvertTo converts img to target when a known conversion path
// exists: DO↔PO, NIB→DO, WOZ1/WOZ2→DO. Anything else reports
// Unsupported.
func ConvertTo(img format.Image, target format.DiskFormat) (format.Image, error) {
	switch src := img.(type) {
	case *flatImage:
		switch {
		case src.fmt == format.AppleDO && target == format.ApplePO:
			return ConvertDOtoPO(src)
		case src.fmt == format.ApplePO && target == format.AppleDO:
			return ConvertPOtoDO(src)
		}
	case *nibImage:
		if target == format.AppleDO {
			return ConvertNIBtoDO(src)
		}
	case *wozImage:
		if target == format.AppleDO {
			return ConvertWOZtoDO(src)
		}
	}
	return nil, errs.UnsupportedFormatf("apple: no conversion from %s to %s", img.Format(), target)
}
