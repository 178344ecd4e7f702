// Package registry is the process-wide format registry: a static
// dispatch table from format.DiskFormat to the constructors, loaders,
// and converters the apple/msx/x68000 packages provide, built once by
// a single init() rather than namespace-level registrar objects
// competing at program start.
package registry

import (
	"github.com/onionmixer/rdedisktool/apple"
	"github.com/onionmixer/rdedisktool/errs"
	"github.com/onionmixer/rdedisktool/format"
	"github.com/onionmixer/rdedisktool/geometry"
	"github.com/onionmixer/rdedisktool/msx"
	"github.com/onionmixer/rdedisktool/x68000"
)

// standardMSXGeometry is the 720KiB MSX-DOS double-sided,
// double-density geometry assumed for a bare .dsk file, which (unlike
// DMK, XDF, or DIM) carries no self-describing header.
var standardMSXGeometry = geometry.Geometry{
	Tracks:          80,
	Sides:           2,
	SectorsPerTrack: 9,
	BytesPerSector:  512,
}

// constructors builds a blank image of a given format, for the
// `create` command.
var constructors map[format.DiskFormat]func() format.Image

// loaders parses existing bytes (plus the host filename, for formats
// that embed it) into an image of a given format, for `info`,
// `list`, `extract`, `add`, `delete`, and `convert`.
var loaders map[format.DiskFormat]func(data []byte, filename string) (format.Image, error)

// converters dispatches a convertTo(target) call to the package that
// owns the source format's conversion logic.
var converters map[format.DiskFormat]func(img format.Image, target format.DiskFormat) (format.Image, error)

func init() {
	constructors = map[format.DiskFormat]func() format.Image{
		format.AppleDO:   func() format.Image { return apple.NewDO() },
		format.ApplePO:   func() format.Image { return apple.NewPO() },
		format.AppleNIB:  func() format.Image { return apple.NewNIB() },
		format.AppleNB2:  func() format.Image { return apple.NewNB2() },
		format.AppleWOZ1: func() format.Image { return apple.NewWOZ1() },
		format.AppleWOZ2: func() format.Image { return apple.NewWOZ2() },
		format.MSXDSK:    func() format.Image { return msx.NewDSK() },
		format.X68000XDF: func() format.Image { return x68000.NewXDF() },
		format.X68000DIM: func() format.Image { return x68000.NewDIM() },
		// MSXDMK has no blank constructor: a DMK image only exists as
		// the encoding of real track content, never an empty shell.
		// MSXXSA is decode-only (see format package doc and
		// SPEC_FULL.md's XSA Non-goal); it is never a create target.
	}

	loaders = map[format.DiskFormat]func(data []byte, filename string) (format.Image, error){
		format.AppleDO:  func(d []byte, _ string) (format.Image, error) { return apple.LoadDO(d) },
		format.ApplePO:  func(d []byte, _ string) (format.Image, error) { return apple.LoadPO(d) },
		format.AppleNIB: func(d []byte, _ string) (format.Image, error) { return apple.LoadNIB(d) },
		format.AppleNB2: func(d []byte, _ string) (format.Image, error) { return apple.LoadNB2(d) },
		format.AppleWOZ1: func(d []byte, _ string) (format.Image, error) {
			return apple.DecodeWOZ(d)
		},
		format.AppleWOZ2: func(d []byte, _ string) (format.Image, error) {
			return apple.DecodeWOZ(d)
		},
		format.MSXDSK: func(d []byte, _ string) (format.Image, error) {
			return msx.LoadDSK(d, standardMSXGeometry)
		},
		format.MSXDMK: func(d []byte, _ string) (format.Image, error) { return msx.DecodeDMK(d) },
		format.MSXXSA: func(d []byte, _ string) (format.Image, error) { return msx.DecodeXSA(d) },
		format.X68000XDF: func(d []byte, _ string) (format.Image, error) {
			return x68000.LoadXDF(d)
		},
		format.X68000DIM: func(d []byte, _ string) (format.Image, error) {
			return x68000.LoadDIM(d)
		},
	}

	converters = map[format.DiskFormat]func(format.Image, format.DiskFormat) (format.Image, error){
		format.AppleDO:   apple.ConvertTo,
		format.ApplePO:   apple.ConvertTo,
		format.AppleNIB:  apple.ConvertTo,
		format.AppleNB2:  apple.ConvertTo,
		format.AppleWOZ1: apple.ConvertTo,
		format.AppleWOZ2: apple.ConvertTo,
		format.MSXDSK:    msx.ConvertTo,
		format.MSXDMK:    msx.ConvertTo,
		format.MSXXSA:    msx.ConvertTo,
		format.X68000DIM: x68000.ConvertTo,
	}
}

// New returns a blank image of the given format.
func New(f format.DiskFormat) (format.Image, error) {
	ctor, ok := constructors[f]
	if !ok {
		return nil, errs.UnsupportedFormatf("registry: no constructor registered for format %q", f)
	}
	return ctor(), nil
}

// Load detects data's format (consulting filename for extension and
// size-based disambiguation) and parses it into an Image.
func Load(data []byte, filename string) (format.Image, format.DiskFormat, error) {
	f := format.Detect(data, filename)
	return LoadAs(data, filename, f)
}

// LoadAs parses data as an image of the given format, skipping
// detection. Useful when the caller already knows the format (for
// example from an explicit -f flag).
func LoadAs(data []byte, filename string, f format.DiskFormat) (format.Image, format.DiskFormat, error) {
	if f == format.Unknown {
		return nil, format.Unknown, errs.UnsupportedFormatf("registry: could not detect disk image format for %q", filename)
	}
	loader, ok := loaders[f]
	if !ok {
		return nil, f, errs.UnsupportedFormatf("registry: no loader registered for format %q", f)
	}
	img, err := loader(data, filename)
	if err != nil {
		return nil, f, err
	}
	return img, f, nil
}

// ConvertTo converts img to the target format, per the conversion
// graph: DO↔PO, NIB→DO, WOZ1/WOZ2→DO, DSK↔DMK, XSA→{DSK,DMK},
// DIM(2HD)→XDF. Any other (source, target) pair reports Unsupported.
func ConvertTo(img format.Image, target format.DiskFormat) (format.Image, error) {
	convert, ok := converters[img.Format()]
	if !ok {
		return nil, errs.UnsupportedFormatf("registry: no conversions are known from format %q", img.Format())
	}
	return convert(img, target)
}

// CanConvertTo reports whether ConvertTo(img, target) would succeed,
// without performing the conversion.
func CanConvertTo(src, target format.DiskFormat) bool {
	switch src {
	case format.AppleDO:
		return target == format.ApplePO
	case format.ApplePO:
		return target == format.AppleDO
	case format.AppleNIB, format.AppleNB2, format.AppleWOZ1, format.AppleWOZ2:
		return target == format.AppleDO
	case format.MSXDSK:
		return target == format.MSXDMK
	case format.MSXDMK:
		return target == format.MSXDSK
	case format.MSXXSA:
		return target == format.MSXDSK || target == format.MSXDMK
	case format.X68000DIM:
		return target == format.X68000XDF
	default:
		return false
	}
}
