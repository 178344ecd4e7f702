package apple

import (
	"github.com/onionmixer/rdedisktool/errs"
	"github.com/onionmixer/rdedisktool/format"
	"github.com/onionmixer/rdedisktool/geometry"
	"github.com/onionmixer/rdedisktool/nibble"
)

// nibImage is the shared implementation behind AppleNIB and AppleNB2:
// a fixed-size array of raw nibble tracks, decoded to sectors lazily
// and on demand, mirroring the cache/dirty pattern woz.Track uses for
// its bit buffer.
type nibImage struct {
	fmt            format.DiskFormat
	trackBytes     int
	raw            [][]byte // one entry per track, each trackBytes long
	sectors        [][16][]byte
	decoded        []bool
	dirty          []bool
	writeProtected bool
}

// NewNIB creates a blank 35-track AppleNIB image.
func NewNIB() *nibImage {
	return newNib(format.AppleNIB, nibble.TrackNibbleSize)
}

// NewNB2 creates a blank 35-track AppleNB2 image.
func NewNB2() *nibImage {
	return newNib(format.AppleNB2, nibble.TrackNibbleSizeNB2)
}

func newNib(f format.DiskFormat, trackBytes int) *nibImage {
	img := &nibImage{
		fmt:        f,
		trackBytes: trackBytes,
		raw:        make([][]byte, geometry.AppleFloppyTracks),
		sectors:    make([][16][]byte, geometry.AppleFloppyTracks),
		decoded:    make([]bool, geometry.AppleFloppyTracks),
		dirty:      make([]bool, geometry.AppleFloppyTracks),
	}
	var empty [16][]byte
	for t := range img.raw {
		built, _ := nibble.BuildTrack(empty, 254, byte(t), trackBytes)
		img.raw[t] = built
	}
	return img
}

// LoadNIB wraps raw bytes as an AppleNIB image. len(data) must be an
// exact multiple of nibble.TrackNibbleSize.
func LoadNIB(data []byte) (*nibImage, error) {
	return loadNib(data, format.AppleNIB, nibble.TrackNibbleSize)
}

// LoadNB2 wraps raw bytes as an AppleNB2 image. len(data) must be an
// exact multiple of nibble.TrackNibbleSizeNB2.
func LoadNB2(data []byte) (*nibImage, error) {
	return loadNib(data, format.AppleNB2, nibble.TrackNibbleSizeNB2)
}

func loadNib(data []byte, f format.DiskFormat, trackBytes int) (*nibImage, error) {
	if len(data) == 0 || len(data)%trackBytes != 0 {
		return nil, errs.InvalidFormatf("apple: nibble image size %d is not a multiple of a track (%d bytes)", len(data), trackBytes)
	}
	tracks := len(data) / trackBytes
	img := &nibImage{
		fmt:        f,
		trackBytes: trackBytes,
		raw:        make([][]byte, tracks),
		sectors:    make([][16][]byte, tracks),
		decoded:    make([]bool, tracks),
		dirty:      make([]bool, tracks),
	}
	for t := 0; t < tracks; t++ {
		img.raw[t] = append([]byte(nil), data[t*trackBytes:(t+1)*trackBytes]...)
	}
	return img, nil
}

func (img *nibImage) Format() format.DiskFormat { return img.fmt }

func (img *nibImage) Geometry() geometry.Geometry {
	return geometry.Geometry{
		Tracks:          len(img.raw),
		Sides:           1,
		SectorsPerTrack: geometry.AppleFloppySectors,
		BytesPerSector:  geometry.AppleSectorBytes,
	}
}

func (img *nibImage) Bytes() []byte {
	img.flushAll()
	out := make([]byte, 0, len(img.raw)*img.trackBytes)
	for _, t := range img.raw {
		out = append(out, t...)
	}
	return out
}

func (img *nibImage) WriteProtected() bool             { return img.writeProtected }
func (img *nibImage) SetWriteProtected(protected bool) { img.writeProtected = protected }

func (img *nibImage) ensureDecoded(track int) error {
	if img.decoded[track] {
		return nil
	}
	sectors, err := nibble.ParseTrack(img.raw[track], byte(track))
	if err != nil {
		return err
	}
	img.sectors[track] = sectors
	img.decoded[track] = true
	return nil
}

func (img *nibImage) ReadSector(track, sector int) ([]byte, error) {
	if track < 0 || track >= len(img.raw) {
		return nil, errs.TrackNotFoundf("apple: track %d out of range (0..%d)", track, len(img.raw)-1)
	}
	if sector < 0 || sector >= geometry.AppleFloppySectors {
		return nil, errs.SectorNotFoundf("apple: sector %d out of range (0..%d)", sector, geometry.AppleFloppySectors-1)
	}
	if err := img.ensureDecoded(track); err != nil {
		return nil, err
	}
	return append([]byte(nil), img.sectors[track][sector]...), nil
}

func (img *nibImage) WriteSector(track, sector int, data []byte) error {
	if img.writeProtected {
		return errs.WriteProtectedf("apple: image is write protected")
	}
	if track < 0 || track >= len(img.raw) {
		return errs.TrackNotFoundf("apple: track %d out of range (0..%d)", track, len(img.raw)-1)
	}
	if sector < 0 || sector >= geometry.AppleFloppySectors {
		return errs.SectorNotFoundf("apple: sector %d out of range (0..%d)", sector, geometry.AppleFloppySectors-1)
	}
	if len(data) != geometry.AppleSectorBytes {
		return errs.InvalidParameterf("apple: sector payload is %d bytes, want %d", len(data), geometry.AppleSectorBytes)
	}
	if err := img.ensureDecoded(track); err != nil {
		return err
	}
	img.sectors[track][sector] = append([]byte(nil), data...)
	img.dirty[track] = true
	return nil
}

func (img *nibImage) flushAll() {
	for t := range img.raw {
		if !img.dirty[t] {
			continue
		}
		built, err := nibble.BuildTrack(img.sectors[t], 254, byte(t), img.trackBytes)
		if err == nil {
			img.raw[t] = built
		}
		img.dirty[t] = false
	}
}
