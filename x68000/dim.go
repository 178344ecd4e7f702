package x68000

import (
	"github.com/onionmixer/rdedisktool/errs"
	"github.com/onionmixer/rdedisktool/format"
	"github.com/onionmixer/rdedisktool/geometry"
)

const (
	dimHeaderSize = 256
	dimMaxTracks  = 170
)

// DIMType identifies one of the ten DIM disk-type slots. Only 0, 1, 2,
// 3, and 9 are populated; the rest are reserved.
type DIMType uint8

const (
	DIM2HD  DIMType = 0
	DIM2HS  DIMType = 1
	DIM2HC  DIMType = 2
	DIM2HDE DIMType = 3
	DIM2HQ  DIMType = 9
)

var dimTrackSizes = [10]int{1024 * 8, 1024 * 9, 512 * 15, 1024 * 9, 0, 0, 0, 0, 0, 512 * 18}
var dimSectorSizes = [10]int{1024, 1024, 512, 1024, 0, 0, 0, 0, 0, 512}
var dimSectorsPerTrack = [10]int{8, 9, 15, 9, 0, 0, 0, 0, 0, 18}
var dimMaxValidTracks = [10]int{154, 160, 160, 160, 0, 0, 0, 0, 0, 160}

func isValidDIMType(t byte) bool {
	return t <= 3 || t == 9
}

// dimImage is the X68000 DIM container: a 256-byte header (disk type,
// 170 per-track presence flags, metadata, overtrack flag) followed by
// track data for only the present tracks, back to back in file order.
// In memory every linear track gets a fixed trackSize slot (absent
// tracks filled with the blank byte), mirroring how the reference tool
// keeps a uniform in-memory layout while the on-disk encoding stays
// sparse.
type dimImage struct {
	dimType        DIMType
	trkflag        [dimMaxTracks]bool
	overtrack      byte
	comment        string
	tracks         [][]byte // one trackSize slot per linear track, 0..maxValidTracks-1
	writeProtected bool
}

// NewDIM creates a blank 2HD-type DIM image with every track present.
func NewDIM() *dimImage {
	return newDIM(DIM2HD)
}

func newDIM(t DIMType) *dimImage {
	max := dimMaxValidTracks[t]
	trackSize := dimTrackSizes[t]
	img := &dimImage{dimType: t, tracks: make([][]byte, max)}
	for i := 0; i < max; i++ {
		img.trkflag[i] = true
		blank := make([]byte, trackSize)
		for j := range blank {
			blank[j] = blankByte
		}
		img.tracks[i] = blank
	}
	return img
}

// LoadDIM parses a complete DIM file: the 256-byte header followed by
// the present tracks' data, stored back to back in ascending track
// order.
func LoadDIM(data []byte) (*dimImage, error) {
	if len(data) < dimHeaderSize {
		return nil, errs.InvalidFormatf("x68000: file too small for DIM header")
	}
	typeByte := data[0]
	if !isValidDIMType(typeByte) {
		return nil, errs.InvalidFormatf("x68000: invalid DIM type %d", typeByte)
	}
	t := DIMType(typeByte)
	max := dimMaxValidTracks[t]
	trackSize := dimTrackSizes[t]

	img := &dimImage{dimType: t, tracks: make([][]byte, max)}
	copy(img.trkflag[:], boolsFromBytes(data[1:1+dimMaxTracks]))
	img.overtrack = data[0xFF]
	img.comment = trimComment(data[0xC2:0xFF])

	if img.overtrack == 0 {
		for i := range img.trkflag {
			img.trkflag[i] = true
		}
	}

	// Absent tracks occupy no space in the file: the read cursor only
	// advances by trackSize for tracks the flag marks present.
	pos := dimHeaderSize
	for track := 0; track < max; track++ {
		blank := make([]byte, trackSize)
		for j := range blank {
			blank[j] = blankByte
		}
		img.tracks[track] = blank
		if !img.trkflag[track] {
			continue
		}
		remaining := len(data) - pos
		readSize := trackSize
		if remaining < readSize {
			readSize = remaining
		}
		if readSize > 0 {
			copy(img.tracks[track], data[pos:pos+readSize])
		}
		pos += trackSize
	}
	return img, nil
}

func boolsFromBytes(b []byte) []bool {
	out := make([]bool, len(b))
	for i, v := range b {
		out[i] = v != 0
	}
	return out
}

func trimComment(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Encode serializes the image back into a complete DIM file: the
// 256-byte header followed by only the present tracks' data, written
// in ascending track order. Tracks marked absent are skipped entirely
// in the file, even though they occupy a full slot in memory.
func (img *dimImage) Encode() []byte {
	header := make([]byte, dimHeaderSize)
	header[0] = byte(img.dimType)
	for i, present := range img.trkflag {
		if present {
			header[1+i] = 1
		}
	}
	copy(header[0xC2:0xFF], []byte(img.comment))
	header[0xFF] = img.overtrack

	out := append([]byte(nil), header...)
	for track, present := range img.trkflag {
		if !present {
			continue
		}
		out = append(out, img.tracks[track]...)
	}
	return out
}

func (img *dimImage) Format() format.DiskFormat { return format.X68000DIM }

func (img *dimImage) Geometry() geometry.Geometry {
	max := dimMaxValidTracks[img.dimType]
	return geometry.Geometry{
		Tracks:          max / 2,
		Sides:           2,
		SectorsPerTrack: dimSectorsPerTrack[img.dimType],
		BytesPerSector:  dimSectorSizes[img.dimType],
	}
}

func (img *dimImage) validate(linearTrack, sector int) error {
	max := dimMaxValidTracks[img.dimType]
	if linearTrack < 0 || linearTrack >= max {
		return errs.TrackNotFoundf("x68000: track %d out of range (0..%d)", linearTrack, max-1)
	}
	perTrack := dimSectorsPerTrack[img.dimType]
	if sector < 1 || sector > perTrack {
		return errs.SectorNotFoundf("x68000: sector %d out of range (1..%d)", sector, perTrack)
	}
	return nil
}

// ReadSector reads one sector (size depends on the DIM type) at
// (linearTrack, sector). sector is 1-based.
func (img *dimImage) ReadSector(linearTrack, sector int) ([]byte, error) {
	if err := img.validate(linearTrack, sector); err != nil {
		return nil, err
	}
	if !img.trkflag[linearTrack] {
		return nil, errs.SectorNotFoundf("x68000: track %d is not present in this DIM image", linearTrack)
	}
	sectorSize := dimSectorSizes[img.dimType]
	offset := (sector - 1) * sectorSize
	return append([]byte(nil), img.tracks[linearTrack][offset:offset+sectorSize]...), nil
}

// WriteSector writes one sector, marking its track present.
func (img *dimImage) WriteSector(linearTrack, sector int, data []byte) error {
	if img.writeProtected {
		return errs.WriteProtectedf("x68000: image is write protected")
	}
	if err := img.validate(linearTrack, sector); err != nil {
		return err
	}
	img.trkflag[linearTrack] = true
	sectorSize := dimSectorSizes[img.dimType]
	offset := (sector - 1) * sectorSize
	n := copy(img.tracks[linearTrack][offset:offset+sectorSize], data)
	for i := offset + n; i < offset+sectorSize; i++ {
		img.tracks[linearTrack][i] = blankByte
	}
	return nil
}

func (img *dimImage) Bytes() []byte        { return img.Encode() }
func (img *dimImage) WriteProtected() bool { return img.writeProtected }
func (img *dimImage) SetWriteProtected(p bool) { img.writeProtected = p }

// ConvertToXDF converts a 2HD-type DIM image (the only DIM type that
// shares XDF's exact 154×8×1024 geometry) into an XDF image.
func ConvertToXDF(img *dimImage) (*xdfImage, error) {
	if img.dimType != DIM2HD {
		return nil, errs.UnsupportedFormatf("x68000: only 2HD DIM images can convert to XDF")
	}
	xdf := NewXDF()
	for track := 0; track < xdfTotalTracks; track++ {
		if !img.trkflag[track] {
			continue
		}
		for sector := 1; sector <= 8; sector++ {
			data, err := img.ReadSector(track, sector)
			if err != nil {
				return nil, err
			}
			if err := xdf.WriteSector(track, sector, data); err != nil {
				return nil, err
			}
		}
	}
	return xdf, nil
}

// ConvertTo converts img to target when a known conversion path
// exists: DIM(2HD)→XDF. Anything else reports Unsupported.
func ConvertTo(img format.Image, target format.DiskFormat) (format.Image, error) {
	src, ok := img.(*dimImage)
	if !ok || target != format.X68000XDF {
		return nil, errs.UnsupportedFormatf("x68000: no conversion from %s to %s", img.Format(), target)
	}
	return ConvertToXDF(src)
}
