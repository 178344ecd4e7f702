// Package format defines the DiskFormat enumeration, the Image
// interface every container codec implements, and the magic/
// extension/content-sniff detection cascade that turns a byte slice
// (plus its host filename) into a single DiskFormat.
package format

import (
	"strings"

	"github.com/onionmixer/rdedisktool/geometry"
)

// DiskFormat identifies one of the container formats this tool reads.
type DiskFormat string

const (
	Unknown    DiskFormat = ""
	AppleDO    DiskFormat = "AppleDO"
	ApplePO    DiskFormat = "ApplePO"
	AppleNIB   DiskFormat = "AppleNIB"
	AppleNB2   DiskFormat = "AppleNB2"
	AppleWOZ1  DiskFormat = "AppleWOZ1"
	AppleWOZ2  DiskFormat = "AppleWOZ2"
	MSXDSK     DiskFormat = "MSXDSK"
	MSXDMK     DiskFormat = "MSXDMK"
	MSXXSA     DiskFormat = "MSXXSA"
	X68000XDF  DiskFormat = "X68000XDF"
	X68000DIM  DiskFormat = "X68000DIM"
)

// Sizes that disambiguate fixed-size Apple nibble images.
const (
	SizeNIB = 232960
	SizeNB2 = 223440
	SizeXDF = 1261568
)

// Image is the interface every container codec implements: sector- or
// block-addressed I/O over an in-memory image buffer, with the
// lifecycle the data model describes (construct empty, Load or
// Create, mutate, Save).
type Image interface {
	// Format reports which DiskFormat this image implements.
	Format() DiskFormat
	// Geometry reports the image's current shape.
	Geometry() geometry.Geometry
	// ReadSector reads one logical sector (256 bytes for Apple
	// formats, 512 for MSX, 1024 for XDF, and 1024 or 512 for DIM
	// depending on its disk type).
	ReadSector(track, sector int) ([]byte, error)
	// WriteSector writes one logical sector.
	WriteSector(track, sector int, data []byte) error
	// Bytes returns the raw, logical-order image buffer (used by
	// filesystem engines that address by flat byte offset rather
	// than by track/sector).
	Bytes() []byte
	// WriteProtected reports whether the image refuses mutation.
	WriteProtected() bool
}

// Detect runs the detection cascade (magic, then extension+size, then
// content sniff) and returns the first non-Unknown DiskFormat.
func Detect(data []byte, filename string) DiskFormat {
	if f := detectMagic(data); f != Unknown {
		return f
	}
	if f := detectExtensionAndSize(data, filename); f != Unknown {
		return f
	}
	if f := detectContentSniff(data); f != Unknown {
		return f
	}
	return Unknown
}

func detectMagic(data []byte) DiskFormat {
	if len(data) >= 8 {
		switch string(data[:4]) {
		case "WOZ1":
			return AppleWOZ1
		case "WOZ2":
			return AppleWOZ2
		}
	}
	if len(data) >= 4 && string(data[:4]) == "PCK\x08" {
		return MSXXSA
	}
	return Unknown
}

func detectExtensionAndSize(data []byte, filename string) DiskFormat {
	ext := strings.ToLower(extOf(filename))
	switch ext {
	case ".po":
		// Content-ambiguous between DO and PO sector order; the
		// content sniff stage resolves it.
		return Unknown
	case ".nib":
		if len(data) == SizeNIB {
			return AppleNIB
		}
	case ".nb2":
		if len(data) == SizeNB2 {
			return AppleNB2
		}
	case ".xdf":
		if len(data) == SizeXDF {
			return X68000XDF
		}
	case ".dim":
		if len(data) > 0 && isValidDIMType(data[0]) {
			return X68000DIM
		}
	case ".dmk":
		return MSXDMK
	}
	return Unknown
}

func isValidDIMType(t byte) bool {
	switch t {
	case 0, 1, 2, 3, 9:
		return true
	}
	return false
}

func extOf(filename string) string {
	idx := strings.LastIndexByte(filename, '.')
	if idx < 0 {
		return ""
	}
	return filename[idx:]
}

func detectContentSniff(data []byte) DiskFormat {
	if looksLikeFAT12(data) {
		return MSXDSK
	}
	if looksLikeDOS33(data) {
		return AppleDO
	}
	if looksLikeProDOS(data) {
		return ApplePO
	}
	return Unknown
}

func looksLikeFAT12(data []byte) bool {
	if len(data) < 512 {
		return false
	}
	jmp := data[0]
	if jmp != 0xEB && jmp != 0xE9 {
		return false
	}
	bytesPerSector := int(data[11]) | int(data[12])<<8
	if bytesPerSector != 512 {
		return false
	}
	numFATs := data[16]
	return numFATs == 1 || numFATs == 2
}

func looksLikeDOS33(data []byte) bool {
	vtocOffset := 17*geometry.AppleFloppyTrackBytes + 0*geometry.AppleSectorBytes
	if len(data) < vtocOffset+geometry.AppleSectorBytes {
		return false
	}
	vtoc := data[vtocOffset : vtocOffset+geometry.AppleSectorBytes]
	catalogTrack := vtoc[1]
	tracksPerDisk := vtoc[0x34]
	sectorsPerTrack := vtoc[0x35]
	volume := vtoc[6]
	return catalogTrack == 17 && tracksPerDisk == 35 && sectorsPerTrack == 16 && volume >= 1 && volume <= 254
}

func looksLikeProDOS(data []byte) bool {
	blockOffset := 2 * 512
	if len(data) < blockOffset+512 {
		return false
	}
	block := data[blockOffset : blockOffset+512]
	storageType := block[4] >> 4
	nameLength := block[4] & 0x0F
	entryLength := block[0x23]
	return storageType == 0xF && nameLength >= 1 && nameLength <= 15 && entryLength == 0x27
}
