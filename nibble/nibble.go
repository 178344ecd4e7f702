// Package nibble implements the Apple II 6-and-2 GCR encoding: sector
// encode/decode, the 4-and-4 address-field codec, and full nibble
// track synthesis/parsing, grounded on the reference NibbleEncoder.
package nibble

import "github.com/onionmixer/rdedisktool/errs"

const (
	// SectorDataSize is the size of a logical sector, in bytes.
	SectorDataSize = 256
	// NibblizedSize is the size of a GCR-encoded sector, in bytes
	// (342 pre-nibbles plus one checksum byte).
	NibblizedSize = 343

	// TrackNibbleSize is the size of a synthesized NIB-format track.
	TrackNibbleSize = 6656
	// TrackNibbleSizeNB2 is the size of a synthesized NB2-format track.
	TrackNibbleSizeNB2 = 6384

	syncByte = 0xFF

	addrPrologue1 = 0xD5
	addrPrologue2 = 0xAA
	addrPrologue3 = 0x96

	dataPrologue1 = 0xD5
	dataPrologue2 = 0xAA
	dataPrologue3 = 0xAD

	epilogue1 = 0xDE
	epilogue2 = 0xAA
	epilogue3 = 0xEB
)

// PhysicalSectorOrder is the order sectors are emitted onto a
// synthesized track.
var PhysicalSectorOrder = [16]byte{0, 7, 14, 6, 13, 5, 12, 4, 11, 3, 10, 2, 9, 1, 8, 15}

// encodeTable maps 6-bit values (0x00-0x3F) to valid disk bytes.
var encodeTable = [64]byte{
	0x96, 0x97, 0x9A, 0x9B, 0x9D, 0x9E, 0x9F, 0xA6,
	0xA7, 0xAB, 0xAC, 0xAD, 0xAE, 0xAF, 0xB2, 0xB3,
	0xB4, 0xB5, 0xB6, 0xB7, 0xB9, 0xBA, 0xBB, 0xBC,
	0xBD, 0xBE, 0xBF, 0xCB, 0xCD, 0xCE, 0xCF, 0xD3,
	0xD6, 0xD7, 0xD9, 0xDA, 0xDB, 0xDC, 0xDD, 0xDE,
	0xDF, 0xE5, 0xE6, 0xE7, 0xE9, 0xEA, 0xEB, 0xEC,
	0xED, 0xEE, 0xEF, 0xF2, 0xF3, 0xF4, 0xF5, 0xF6,
	0xF7, 0xF9, 0xFA, 0xFB, 0xFC, 0xFD, 0xFE, 0xFF,
}

// decodeTable is the inverse of encodeTable; 0xFF marks an invalid
// disk byte.
var decodeTable [256]byte

func init() {
	for i := range decodeTable {
		decodeTable[i] = 0xFF
	}
	for v, b := range encodeTable {
		decodeTable[b] = byte(v)
	}
}

// Encode44 splits a byte into two 4-and-4 encoded disk bytes.
func Encode44(value byte) (odd, even byte) {
	odd = 0xAA | ((value >> 1) & 0x55)
	even = 0xAA | (value & 0x55)
	return odd, even
}

// Decode44 is the inverse of Encode44.
func Decode44(odd, even byte) byte {
	return ((odd & 0x55) << 1) | (even & 0x55)
}

// EncodeSector converts a 256-byte logical sector into its 343-byte
// GCR-encoded nibble form.
func EncodeSector(data []byte) ([]byte, error) {
	if len(data) != SectorDataSize {
		return nil, errs.InvalidParameterf("nibble: sector data must be %d bytes, got %d", SectorDataSize, len(data))
	}

	var buf [342]byte

	// Auxiliary region: low 2 bits of data[i], data[i+86], data[i+172],
	// bit-swapped, packed 2 bits per group into aux byte i.
	for i := 0; i < 86; i++ {
		var aux byte
		aux |= ((data[i] & 0x01) << 1) | ((data[i] & 0x02) >> 1)
		if i+86 < 256 {
			aux |= ((data[i+86] & 0x01) << 3) | ((data[i+86] & 0x02) << 1)
		}
		if i+172 < 256 {
			aux |= ((data[i+172] & 0x01) << 5) | ((data[i+172] & 0x02) << 3)
		}
		buf[i] = aux
	}

	// Main region: high 6 bits of every data byte.
	for i := 0; i < 256; i++ {
		buf[86+i] = data[i] >> 2
	}

	// Running XOR checksum, walked backwards.
	var checksum byte
	for i := 341; i >= 0; i-- {
		v := buf[i]
		buf[i] = v ^ checksum
		checksum = v
	}

	result := make([]byte, NibblizedSize)
	for i := 0; i < 342; i++ {
		result[i] = encodeTable[buf[i]&0x3F]
	}
	result[342] = encodeTable[checksum&0x3F]
	return result, nil
}

// DecodeSector converts a 343-byte GCR-encoded nibble sector back
// into its 256-byte logical form.
func DecodeSector(nibbles []byte) ([]byte, error) {
	if len(nibbles) < NibblizedSize {
		return nil, errs.InvalidParameterf("nibble: nibble data too short: got %d, want at least %d", len(nibbles), NibblizedSize)
	}

	var buf [343]byte
	for i := 0; i < 343; i++ {
		decoded := decodeTable[nibbles[i]]
		if decoded == 0xFF {
			return nil, errs.ChecksumMismatchf("nibble: invalid GCR byte %#02x at offset %d", nibbles[i], i)
		}
		buf[i] = decoded
	}

	// Running XOR de-accumulation, walked forwards: the stored
	// checksum is the first pre-nibble, and XORing each encoded byte
	// into it yields the next. The XOR of all 342 encoded bytes must
	// equal the stored checksum.
	prev := buf[342]
	var checksum byte
	for i := 0; i < 342; i++ {
		v := buf[i]
		buf[i] = prev
		prev ^= v
		checksum ^= v
	}
	if checksum != buf[342] {
		return nil, errs.ChecksumMismatchf("nibble: sector checksum mismatch: computed %#02x, stored %#02x", checksum, buf[342])
	}

	result := make([]byte, SectorDataSize)
	for i := 0; i < 256; i++ {
		high := buf[86+i] << 2

		auxIndex := i % 86
		auxShift := uint((i / 86) * 2)
		low := (buf[auxIndex] >> auxShift) & 0x03
		low = ((low & 0x01) << 1) | ((low & 0x02) >> 1)

		result[i] = high | low
	}
	return result, nil
}

// EncodeAddressField builds the 14-byte address field for a sector:
// prologue, 4-and-4 encoded volume/track/sector/checksum, epilogue.
func EncodeAddressField(volume, track, sector byte) []byte {
	result := make([]byte, 0, 14)
	result = append(result, addrPrologue1, addrPrologue2, addrPrologue3)

	for _, v := range []byte{volume, track, sector, volume ^ track ^ sector} {
		odd, even := Encode44(v)
		result = append(result, odd, even)
	}
	result = append(result, epilogue1, epilogue2, epilogue3)
	return result
}

// DecodeAddressField decodes an 8-byte 4-and-4 encoded address body
// (volume/track/sector/checksum, no prologue/epilogue) and reports
// whether the embedded checksum validates.
func DecodeAddressField(data []byte) (volume, track, sector byte, ok bool) {
	volume = Decode44(data[0], data[1])
	track = Decode44(data[2], data[3])
	sector = Decode44(data[4], data[5])
	checksum := Decode44(data[6], data[7])
	ok = (volume ^ track ^ sector) == checksum
	return volume, track, sector, ok
}

// BuildTrack synthesizes a full nibble track from 16 logical sectors
// (index = logical sector number; a nil entry is skipped, leaving a
// gap rather than a zero-filled sector). size should be
// TrackNibbleSize or TrackNibbleSizeNB2.
func BuildTrack(sectors [16][]byte, volume, track byte, size int) ([]byte, error) {
	result := make([]byte, 0, size)
	for i := 0; i < 48; i++ {
		result = append(result, syncByte)
	}

	for _, sector := range PhysicalSectorOrder {
		if int(sector) >= len(sectors) || sectors[sector] == nil {
			continue
		}
		for i := 0; i < 5; i++ {
			result = append(result, syncByte)
		}
		result = append(result, EncodeAddressField(volume, track, sector)...)
		for i := 0; i < 5; i++ {
			result = append(result, syncByte)
		}
		result = append(result, dataPrologue1, dataPrologue2, dataPrologue3)
		encoded, err := EncodeSector(sectors[sector])
		if err != nil {
			return nil, err
		}
		result = append(result, encoded...)
		result = append(result, epilogue1, epilogue2, epilogue3)
	}

	if len(result) > size {
		return result[:size], nil
	}
	for len(result) < size {
		result = append(result, syncByte)
	}
	return result, nil
}

// ParseTrack scans a raw nibble track for address and data fields,
// returning a 16-entry array of decoded 256-byte sectors. Missing
// sectors are left as zero-filled slices, matching the reference
// parser's tolerant behavior; corrupt sectors that were found but
// fail GCR/checksum validation are likewise left zero-filled, and
// scanning continues past them.
func ParseTrack(track []byte, expectedTrack byte) (sectors [16][]byte, err error) {
	for i := range sectors {
		sectors[i] = make([]byte, SectorDataSize)
	}

	pos := 0
	for pos+14 <= len(track) {
		if !matchAt(track, pos, addrPrologue1, addrPrologue2, addrPrologue3) {
			pos++
			continue
		}
		addrBody := track[pos+3:]
		if len(addrBody) < 8 {
			break
		}
		_, parsedTrack, sector, ok := DecodeAddressField(addrBody)
		pos += 3
		if !ok || sector > 15 || int(parsedTrack) != int(expectedTrack) {
			continue
		}

		dataPos := findDataField(track, pos, pos+100)
		if dataPos < 0 {
			continue
		}
		if dataPos+3+NibblizedSize > len(track) {
			continue
		}
		decoded, decErr := DecodeSector(track[dataPos+3 : dataPos+3+NibblizedSize])
		pos = dataPos + 3 + NibblizedSize
		if decErr != nil {
			// Leave this sector zero-filled and keep scanning; one bad
			// sector shouldn't fail the whole track.
			continue
		}
		sectors[sector] = decoded
	}
	return sectors, nil
}

func matchAt(data []byte, pos int, pattern ...byte) bool {
	if pos+len(pattern) > len(data) {
		return false
	}
	for i, b := range pattern {
		if data[pos+i] != b {
			return false
		}
	}
	return true
}

func findDataField(data []byte, from, to int) int {
	if to > len(data) {
		to = len(data)
	}
	for pos := from; pos < to; pos++ {
		if matchAt(data, pos, dataPrologue1, dataPrologue2, dataPrologue3) {
			return pos
		}
	}
	return -1
}
