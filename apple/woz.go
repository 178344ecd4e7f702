package apple

import (
	"github.com/onionmixer/rdedisktool/errs"
	"github.com/onionmixer/rdedisktool/format"
	"github.com/onionmixer/rdedisktool/geometry"
	"github.com/onionmixer/rdedisktool/woz"
)

// wozImage is a thin format.Image wrapper around woz.Woz, exposing it
// under the AppleWOZ1/AppleWOZ2 identity the rest of this tool's
// detection and registry machinery expects.
type wozImage struct {
	fmt format.DiskFormat
	w   *woz.Woz
}

// NewWOZ1 creates a blank AppleWOZ1 image: an INFO chunk and no tracks. WOZ1 is the
// deprecated predecessor format; this tool reads it fully but the
// registry's create path targets WOZ2 except when WOZ1 is asked for
// explicitly.
func NewWOZ1() *wozImage {
	return &wozImage{
		fmt: format.AppleWOZ1,
		w: &woz.Woz{
			Version: 1,
			Info: woz.Info{
				Version:  1,
				DiskType: woz.DiskType525,
			},
		},
	}
}

// NewWOZ2 creates a blank AppleWOZ2 image: an INFO chunk and no tracks.
func NewWOZ2() *wozImage {
	return &wozImage{
		fmt: format.AppleWOZ2,
		w: &woz.Woz{
			Version: 2,
			Info: woz.Info{
				Version:  2,
				DiskType: woz.DiskType525,
			},
		},
	}
}

// LoadWOZ wraps a decoded woz.Woz as a format.Image. The reported
// DiskFormat (AppleWOZ1 or AppleWOZ2) follows w.Version.
func LoadWOZ(w *woz.Woz) (*wozImage, error) {
	f := format.AppleWOZ2
	if w.Version == 1 {
		f = format.AppleWOZ1
	}
	return &wozImage{fmt: f, w: w}, nil
}

// DecodeWOZ parses raw WOZ1/WOZ2 bytes into an Image.
func DecodeWOZ(data []byte) (*wozImage, error) {
	w, err := woz.Decode(data)
	if err != nil {
		return nil, err
	}
	return LoadWOZ(w)
}

func (img *wozImage) Format() format.DiskFormat { return img.fmt }

func (img *wozImage) Geometry() geometry.Geometry {
	return geometry.Geometry{
		Tracks:          len(img.w.Tracks),
		Sides:           1,
		SectorsPerTrack: geometry.AppleFloppySectors,
		BytesPerSector:  geometry.AppleSectorBytes,
	}
}

func (img *wozImage) ReadSector(track, sector int) ([]byte, error) {
	return img.w.ReadSector(track, sector)
}

func (img *wozImage) WriteSector(track, sector int, data []byte) error {
	if img.w.Info.WriteProtected {
		return errs.WriteProtectedf("apple: image is write protected")
	}
	return img.w.WriteSector(track, sector, data)
}

func (img *wozImage) Bytes() []byte {
	out, err := img.w.Encode()
	if err != nil {
		return nil
	}
	return out
}

func (img *wozImage) WriteProtected() bool { return img.w.Info.WriteProtected }
