// Package dmk implements the DMK track-image container used for
// MSX/TRS-80 style floppies: a 16-byte header, per-track IDAM pointer
// tables, and raw MFM track bytes, with CRC-16/CCITT sector checksums.
package dmk

import (
	"encoding/binary"

	"github.com/onionmixer/rdedisktool/binio"
	"github.com/onionmixer/rdedisktool/crc"
	"github.com/onionmixer/rdedisktool/errs"
)

const (
	headerSize   = 16
	idamTableLen = 128
	sectorSize   = 512

	flagSingleSided   = 1 << 4
	flagSingleDensity = 1 << 6
	flagIgnoreDensity = 1 << 7

	idMarkA1 = 0xA1
	idMarkFE = 0xFE
	dataMarkFB = 0xFB
	dataMarkF8 = 0xF8
)

// Header mirrors the 16-byte DMK header.
type Header struct {
	WriteProtected bool
	Tracks         int
	TrackLength    int
	SingleSided    bool
	SingleDensity  bool
	IgnoreDensity  bool
}

// Image is a fully decoded DMK disk image.
type Image struct {
	Header Header
	// Track data, indexed [track][side]; each entry is the raw
	// trackLength bytes (IDAM table + MFM content).
	Tracks [][2][]byte
}

// Sides reports 1 for single-sided images, 2 otherwise.
func (h Header) Sides() int {
	if h.SingleSided {
		return 1
	}
	return 2
}

// Decode parses a complete DMK image.
func Decode(data []byte) (*Image, error) {
	if len(data) < headerSize {
		return nil, errs.InvalidFormatf("dmk: file too short for header")
	}
	r := binio.NewReader(data)

	wp, err := r.U8(0)
	if err != nil {
		return nil, err
	}
	tracks, err := r.U8(1)
	if err != nil {
		return nil, err
	}
	trackLen, err := r.U16LE(2)
	if err != nil {
		return nil, err
	}
	flags, err := r.U8(4)
	if err != nil {
		return nil, err
	}

	img := &Image{Header: Header{
		WriteProtected: wp != 0,
		Tracks:         int(tracks),
		TrackLength:    int(trackLen),
		SingleSided:    flags&flagSingleSided != 0,
		SingleDensity:  flags&flagSingleDensity != 0,
		IgnoreDensity:  flags&flagIgnoreDensity != 0,
	}}

	sides := img.Header.Sides()
	body := data[headerSize:]
	for t := 0; t < img.Header.Tracks; t++ {
		var sideData [2][]byte
		for s := 0; s < sides; s++ {
			offset := trackOffset(img.Header, t, s)
			if offset+img.Header.TrackLength > len(body) {
				return nil, errs.InvalidFormatf("dmk: track %d side %d overruns file", t, s)
			}
			sideData[s] = append([]byte(nil), body[offset:offset+img.Header.TrackLength]...)
		}
		img.Tracks = append(img.Tracks, sideData)
	}
	return img, nil
}

func trackOffset(h Header, track, side int) int {
	if h.SingleSided {
		return track * h.TrackLength
	}
	return (track*h.Sides() + side) * h.TrackLength
}

// Encode serializes img back into a complete DMK file.
func (img *Image) Encode() []byte {
	out := make([]byte, headerSize)
	if img.Header.WriteProtected {
		out[0] = 0xFF
	}
	out[1] = byte(img.Header.Tracks)
	binary.LittleEndian.PutUint16(out[2:4], uint16(img.Header.TrackLength))
	var flags byte
	if img.Header.SingleSided {
		flags |= flagSingleSided
	}
	if img.Header.SingleDensity {
		flags |= flagSingleDensity
	}
	if img.Header.IgnoreDensity {
		flags |= flagIgnoreDensity
	}
	out[4] = flags

	sides := img.Header.Sides()
	body := make([]byte, img.Header.Tracks*sides*img.Header.TrackLength)
	for t, sideData := range img.Tracks {
		for s := 0; s < sides; s++ {
			offset := trackOffset(img.Header, t, s)
			copy(body[offset:offset+img.Header.TrackLength], sideData[s])
		}
	}
	return append(out, body...)
}

// idamPointers reads the 128-byte IDAM pointer table at the front of
// a raw track buffer, returning byte offsets (into trackData, past
// the table) of each non-zero entry's ID-address-mark byte.
func idamPointers(trackData []byte) []int {
	var offsets []int
	for i := 0; i < idamTableLen; i += 2 {
		ptr := binary.LittleEndian.Uint16(trackData[i : i+2])
		ptr &^= 0x8000 // bit 15 is a density flag, not part of the offset
		if ptr == 0 {
			continue
		}
		offsets = append(offsets, int(ptr))
	}
	return offsets
}

func sizeFromCode(code byte) int {
	return 128 << code
}

// ReadSector locates sector within track/side and returns its 512-byte
// payload. sector is 1-based, matching MSX sector-numbering convention.
func (img *Image) ReadSector(track, side, sector int) ([]byte, error) {
	if track < 0 || track >= len(img.Tracks) {
		return nil, errs.TrackNotFoundf("dmk: track %d out of range", track)
	}
	trackData := img.Tracks[track][side]

	for _, off := range idamPointers(trackData) {
		if off+7 > len(trackData) || trackData[off] != idMarkFE {
			continue
		}
		idTrack := trackData[off+1]
		idSide := trackData[off+2]
		idSector := trackData[off+3]
		if int(idSector) != sector || int(idTrack) != track || int(idSide) != side {
			continue
		}
		sizeCode := trackData[off+4]
		payloadLen := sizeFromCode(sizeCode)

		dataOff := findDataMark(trackData, off+7, off+7+50)
		if dataOff < 0 {
			return nil, errs.SectorNotFoundf("dmk: no data mark found for track %d side %d sector %d", track, side, sector)
		}
		if dataOff+1+payloadLen > len(trackData) {
			return nil, errs.ReadErrorf("dmk: data field overruns track")
		}
		return append([]byte(nil), trackData[dataOff+1:dataOff+1+payloadLen]...), nil
	}
	return nil, errs.SectorNotFoundf("dmk: sector %d not found on track %d side %d", sector, track, side)
}

func findDataMark(data []byte, from, to int) int {
	if to > len(data) {
		to = len(data)
	}
	for i := from; i < to; i++ {
		if data[i] == dataMarkFB || data[i] == dataMarkF8 {
			return i
		}
	}
	return -1
}

// WriteSector overwrites sector's payload in place and recomputes its
// CRC-16/CCITT (init 0xFFFF) over the data mark plus payload.
func (img *Image) WriteSector(track, side, sector int, payload []byte) error {
	if track < 0 || track >= len(img.Tracks) {
		return errs.TrackNotFoundf("dmk: track %d out of range", track)
	}
	trackData := img.Tracks[track][side]

	for _, off := range idamPointers(trackData) {
		if off+7 > len(trackData) || trackData[off] != idMarkFE {
			continue
		}
		if int(trackData[off+3]) != sector || int(trackData[off+1]) != track || int(trackData[off+2]) != side {
			continue
		}
		sizeCode := trackData[off+4]
		payloadLen := sizeFromCode(sizeCode)
		if len(payload) != payloadLen {
			return errs.InvalidParameterf("dmk: payload is %d bytes, sector size code implies %d", len(payload), payloadLen)
		}

		dataOff := findDataMark(trackData, off+7, off+7+50)
		if dataOff < 0 {
			return errs.SectorNotFoundf("dmk: no data mark found for track %d side %d sector %d", track, side, sector)
		}
		copy(trackData[dataOff+1:dataOff+1+payloadLen], payload)

		crcVal := crc.CRC16CCITT(0xFFFF, trackData[dataOff:dataOff+1+payloadLen])
		if dataOff+1+payloadLen+2 > len(trackData) {
			return errs.WriteErrorf("dmk: no room for CRC bytes after payload")
		}
		binary.BigEndian.PutUint16(trackData[dataOff+1+payloadLen:dataOff+1+payloadLen+2], crcVal)
		return nil
	}
	return errs.SectorNotFoundf("dmk: sector %d not found on track %d side %d", sector, track, side)
}

// BuildTrack synthesizes a DMK track's IDAM table and raw MFM content
// from scratch for the given side's 1-based sectors (index 0 unused).
// trackLength sets the allocated buffer size; remaining bytes are
// padded with 0x4E.
func BuildTrack(track, side int, sectors [][]byte, trackLength int) []byte {
	buf := make([]byte, trackLength)
	idamOffsets := make([]int, 0, len(sectors))

	pos := idamTableLen
	for i := 0; i < 80 && pos < trackLength; i++ {
		buf[pos] = 0x4E
		pos++
	}
	for i := 0; i < 12 && pos < trackLength; i++ {
		buf[pos] = 0x00
		pos++
	}
	pos = writeBytes(buf, pos, 0xC2, 0xC2, 0xC2, 0xFC)
	pos = fill(buf, pos, 0x4E, 50)

	for sectorNum := 1; sectorNum < len(sectors); sectorNum++ {
		payload := sectors[sectorNum]
		if payload == nil {
			continue
		}
		pos = fill(buf, pos, 0x00, 12)

		idamPos := pos
		idamOffsets = append(idamOffsets, idamPos+3)
		pos = writeBytes(buf, pos, idMarkA1, idMarkA1, idMarkA1, idMarkFE)
		sizeCode := sizeCodeFor(len(payload))
		pos = writeBytes(buf, pos, byte(track), byte(side), byte(sectorNum), sizeCode)
		idCRC := crc.CRC16CCITT(0xFFFF, buf[idamPos:pos])
		pos = writeU16BE(buf, pos, idCRC)

		pos = fill(buf, pos, 0x4E, 22)
		pos = fill(buf, pos, 0x00, 12)

		dataMarkPos := pos
		pos = writeBytes(buf, pos, idMarkA1, idMarkA1, idMarkA1, dataMarkFB)
		copy(buf[pos:pos+len(payload)], payload)
		pos += len(payload)
		dataCRC := crc.CRC16CCITT(0xFFFF, buf[dataMarkPos+3:pos])
		pos = writeU16BE(buf, pos, dataCRC)

		pos = fill(buf, pos, 0x4E, 54)
	}
	for pos < trackLength {
		buf[pos] = 0x4E
		pos++
	}

	for i, off := range idamOffsets {
		binary.LittleEndian.PutUint16(buf[i*2:i*2+2], uint16(off))
	}
	return buf
}

func sizeCodeFor(n int) byte {
	switch n {
	case 128:
		return 0
	case 256:
		return 1
	case 512:
		return 2
	case 1024:
		return 3
	default:
		return 2
	}
}

func writeBytes(buf []byte, pos int, bytes ...byte) int {
	for _, b := range bytes {
		if pos < len(buf) {
			buf[pos] = b
		}
		pos++
	}
	return pos
}

func fill(buf []byte, pos int, value byte, n int) int {
	for i := 0; i < n; i++ {
		if pos < len(buf) {
			buf[pos] = value
		}
		pos++
	}
	return pos
}

func writeU16BE(buf []byte, pos int, v uint16) int {
	if pos+2 <= len(buf) {
		binary.BigEndian.PutUint16(buf[pos:pos+2], v)
	}
	return pos + 2
}

