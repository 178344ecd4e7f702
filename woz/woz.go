// Package woz implements the WOZ v1/v2 disk image container: a
// 12-byte header (magic, anti-corruption sentinel, CRC32) followed by
// length-prefixed chunks (INFO, TMAP, TRKS, META, WRIT), plus the
// bit-stream <-> sector bridge that lets the filesystem layer treat a
// WOZ image as a flat array of 256-byte sectors.
package woz

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/onionmixer/rdedisktool/crc"
	"github.com/onionmixer/rdedisktool/errs"
	"github.com/onionmixer/rdedisktool/geometry"
	"github.com/onionmixer/rdedisktool/nibble"
)

const (
	header1 = "WOZ1\xFF\n\r\n"
	header2 = "WOZ2\xFF\n\r\n"

	// TrackLength is the size, in bytes, of the fixed v1-style
	// per-track bit buffer (6646 bytes of bits plus a 10-byte trailer).
	TrackLength = 6656

	bitBufferBytes = 6646
)

// DiskType distinguishes 5.25" from 3.5" WOZ media.
type DiskType uint8

const (
	DiskType525 DiskType = 1
	DiskType35  DiskType = 2
)

// Info mirrors the WOZ INFO chunk.
type Info struct {
	Version        uint8
	DiskType       DiskType
	WriteProtected bool
	Synchronized   bool
	Cleaned        bool
	Creator        string
}

// Track holds one WOZ TRKS entry: the raw bit buffer, its valid bit
// count, and a lazily-populated decoded-sector cache bridging to the
// GCR nibble codec.
type Track struct {
	BitBuffer []byte
	BitCount  int

	SplicePoint    uint16
	SpliceNibble   uint8
	SpliceBitCount uint8

	sectors [16][]byte
	cached  bool
	dirty   bool
}

// UnknownChunk preserves a chunk this codec doesn't interpret.
type UnknownChunk struct {
	ID   string
	Data []byte
}

// Metadata mirrors the WOZ META chunk: an ordered list of keys with a
// tab-separated value lookup.
type Metadata struct {
	Keys      []string
	RawValues map[string]string
}

// Woz is a fully decoded WOZ disk image.
type Woz struct {
	Version  int // 1 or 2
	Info     Info
	TMap     [160]uint8
	Tracks   []Track
	Metadata Metadata
	Unknowns []UnknownChunk
}

// FormatError reports that input isn't a valid WOZ file.
type FormatError string

func (e FormatError) Error() string { return "woz: invalid format: " + string(e) }

// CRCError reports a header CRC32 mismatch.
type CRCError struct {
	Declared uint32
	Computed uint32
}

func (e CRCError) Error() string {
	return fmt.Sprintf("woz: failed checksum: declared=%d; computed=%d", e.Declared, e.Computed)
}

// Decode parses a complete WOZ v1 or v2 image from data.
func Decode(data []byte) (*Woz, error) {
	if len(data) < 12 {
		return nil, errs.InvalidFormatf("woz: file too short to contain a header")
	}

	var version int
	switch string(data[:8]) {
	case header1:
		version = 1
	case header2:
		version = 2
	default:
		return nil, FormatError("missing WOZ1/WOZ2 magic")
	}

	declaredCRC := binary.LittleEndian.Uint32(data[8:12])
	body := data[12:]
	computedCRC := crc.CRC32(body)

	w := &Woz{Version: version}

	pos := 0
	for pos+8 <= len(body) {
		id := string(body[pos : pos+4])
		length := binary.LittleEndian.Uint32(body[pos+4 : pos+8])
		pos += 8
		if pos+int(length) > len(body) {
			return nil, errs.InvalidFormatf("woz: %s chunk length %d overruns file", id, length)
		}
		chunk := body[pos : pos+int(length)]
		pos += int(length)

		var err error
		switch id {
		case "INFO":
			err = w.parseInfo(chunk)
		case "TMAP":
			err = w.parseTMap(chunk)
		case "TRKS":
			err = w.parseTRKS(chunk, data)
		case "META":
			err = w.parseMeta(chunk)
		case "WRIT":
			// ignored per container spec
		default:
			w.Unknowns = append(w.Unknowns, UnknownChunk{ID: id, Data: chunk})
		}
		if err != nil {
			return nil, err
		}
	}

	if declaredCRC != 0 && declaredCRC != computedCRC {
		return w, CRCError{Declared: declaredCRC, Computed: computedCRC}
	}
	return w, nil
}

func (w *Woz) parseInfo(chunk []byte) error {
	if len(chunk) < 37 {
		return FormatError("INFO chunk too short")
	}
	w.Info.Version = chunk[0]
	w.Info.DiskType = DiskType(chunk[1])
	w.Info.WriteProtected = chunk[2] == 1
	w.Info.Synchronized = chunk[3] == 1
	w.Info.Cleaned = chunk[4] == 1
	w.Info.Creator = strings.TrimRight(string(chunk[5:37]), " ")
	return nil
}

func (w *Woz) parseTMap(chunk []byte) error {
	if len(chunk) != 160 {
		return FormatError(fmt.Sprintf("expected TMAP length 160, got %d", len(chunk)))
	}
	copy(w.TMap[:], chunk)
	return nil
}

func (w *Woz) parseTRKS(chunk, data []byte) error {
	if w.Version == 1 {
		if len(chunk)%TrackLength != 0 {
			return FormatError(fmt.Sprintf("expected TRKS length to be a multiple of %d, got %d", TrackLength, len(chunk)))
		}
		for offset := 0; offset+TrackLength <= len(chunk); offset += TrackLength {
			b := chunk[offset : offset+TrackLength]
			bitCount := int(binary.LittleEndian.Uint16(b[6648:6650]))
			t := Track{
				BitBuffer:      append([]byte(nil), b[:bitBufferBytes]...),
				BitCount:       bitCount,
				SplicePoint:    binary.LittleEndian.Uint16(b[6650:6652]),
				SpliceNibble:   b[6652],
				SpliceBitCount: b[6653],
			}
			w.Tracks = append(w.Tracks, t)
		}
		return nil
	}

	// WOZ2: 160 fixed 8-byte TRK entries (startingBlock, blockCount,
	// bitCount), followed by the referenced 512-byte blocks.
	if len(chunk) < 160*8 {
		return FormatError("TRKS (v2) shorter than the 160-entry index")
	}
	type entry struct {
		startingBlock uint16
		blockCount    uint16
		bitCount      uint32
	}
	entries := make([]entry, 160)
	for i := 0; i < 160; i++ {
		b := chunk[i*8 : i*8+8]
		entries[i] = entry{
			startingBlock: binary.LittleEndian.Uint16(b[0:2]),
			blockCount:    binary.LittleEndian.Uint16(b[2:4]),
			bitCount:      binary.LittleEndian.Uint32(b[4:8]),
		}
	}
	for _, e := range entries {
		if e.blockCount == 0 {
			continue
		}
		// Block numbers are file-absolute; block 0 is the 12-byte
		// header padded to 512 bytes, so byte offset = block*512.
		byteOffset := int(e.startingBlock) * 512
		byteLen := int(e.blockCount) * 512
		// chunk here is only the TRKS payload; recover the
		// file-absolute slice via the original data.
		if byteOffset+byteLen > len(data) {
			return FormatError("TRKS (v2) block reference overruns file")
		}
		w.Tracks = append(w.Tracks, Track{
			BitBuffer: append([]byte(nil), data[byteOffset:byteOffset+byteLen]...),
			BitCount:  int(e.bitCount),
		})
	}
	return nil
}

func (w *Woz) parseMeta(chunk []byte) error {
	rows := strings.Split(string(chunk), "\n")
	w.Metadata.RawValues = make(map[string]string, len(rows))
	for _, row := range rows {
		if row == "" {
			continue
		}
		parts := strings.SplitN(row, "\t", 2)
		if len(parts) != 2 {
			return FormatError("strange metadata line with no tab: " + row)
		}
		w.Metadata.Keys = append(w.Metadata.Keys, parts[0])
		w.Metadata.RawValues[parts[0]] = parts[1]
	}
	return nil
}

// Encode serializes w back into a complete WOZ v1 (or v2, per
// w.Version) file, canonicalizing META key order (the container
// format leaves cross-tool META ordering unspecified).
func (w *Woz) Encode() ([]byte, error) {
	var body []byte

	info := make([]byte, 60)
	info[0] = w.Info.Version
	info[1] = byte(w.Info.DiskType)
	if w.Info.WriteProtected {
		info[2] = 1
	}
	if w.Info.Synchronized {
		info[3] = 1
	}
	if w.Info.Cleaned {
		info[4] = 1
	}
	copy(info[5:37], padRight(w.Info.Creator, 32))
	body = appendChunk(body, "INFO", info)
	body = appendChunk(body, "TMAP", w.TMap[:])

	if w.Version == 1 {
		trks := make([]byte, 0, len(w.Tracks)*TrackLength)
		for _, t := range w.Tracks {
			buf := make([]byte, TrackLength)
			copy(buf, t.BitBuffer)
			binary.LittleEndian.PutUint16(buf[6646:6648], uint16(len(t.BitBuffer)))
			binary.LittleEndian.PutUint16(buf[6648:6650], uint16(t.BitCount))
			binary.LittleEndian.PutUint16(buf[6650:6652], t.SplicePoint)
			buf[6652] = t.SpliceNibble
			buf[6653] = t.SpliceBitCount
			trks = append(trks, buf...)
		}
		body = appendChunk(body, "TRKS", trks)
	} else {
		index := make([]byte, 160*8)
		var blocks []byte
		nextBlock := uint16(3) // blocks 0-2 reserved: header+INFO+TMAP region, conventionally
		for i, t := range w.Tracks {
			padded := padTo512(t.BitBuffer)
			blockCount := uint16(len(padded) / 512)
			binary.LittleEndian.PutUint16(index[i*8:i*8+2], nextBlock)
			binary.LittleEndian.PutUint16(index[i*8+2:i*8+4], blockCount)
			binary.LittleEndian.PutUint32(index[i*8+4:i*8+8], uint32(t.BitCount))
			blocks = append(blocks, padded...)
			nextBlock += blockCount
		}
		body = appendChunk(body, "TRKS", append(index, blocks...))
	}

	for _, k := range w.Metadata.Keys {
		// skip; rewritten below in canonical (sorted) order
		_ = k
	}
	if len(w.Metadata.RawValues) > 0 {
		keys := make([]string, 0, len(w.Metadata.RawValues))
		for k := range w.Metadata.RawValues {
			keys = append(keys, k)
		}
		sortStrings(keys)
		var sb strings.Builder
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(k)
			sb.WriteByte('\t')
			sb.WriteString(w.Metadata.RawValues[k])
		}
		body = appendChunk(body, "META", []byte(sb.String()))
	}

	for _, u := range w.Unknowns {
		body = appendChunk(body, u.ID, u.Data)
	}

	out := make([]byte, 12, 12+len(body))
	if w.Version == 1 {
		copy(out, header1)
	} else {
		copy(out, header2)
	}
	binary.LittleEndian.PutUint32(out[8:12], crc.CRC32(body))
	out = append(out, body...)
	return out, nil
}

func appendChunk(body []byte, id string, data []byte) []byte {
	header := make([]byte, 8)
	copy(header, id)
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(data)))
	body = append(body, header...)
	body = append(body, data...)
	return body
}

func padRight(s string, width int) []byte {
	b := []byte(s)
	for len(b) < width {
		b = append(b, ' ')
	}
	return b[:width]
}

func padTo512(data []byte) []byte {
	n := len(data)
	rem := n % 512
	if rem == 0 {
		return data
	}
	return append(append([]byte(nil), data...), make([]byte, 512-rem)...)
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// TrackForQuarter returns the track index holding the given quarter
// track, or -1 if unmapped.
func (w *Woz) TrackForQuarter(quarter int) int {
	if quarter < 0 || quarter >= len(w.TMap) {
		return -1
	}
	idx := w.TMap[quarter]
	if idx == 0xFF {
		return -1
	}
	return int(idx)
}

// ReadSector decodes the requested logical sector from the track
// holding trackNum (identity mapping track*4 for 5.25" media),
// materializing and caching the per-track decoded-sector table the
// first time it's needed.
func (w *Woz) ReadSector(trackNum, sector int) ([]byte, error) {
	idx := w.TrackForQuarter(trackNum * 4)
	if idx < 0 || idx >= len(w.Tracks) {
		return nil, errs.TrackNotFoundf("woz: no track mapped for track %d", trackNum)
	}
	t := &w.Tracks[idx]
	if err := w.ensureDecoded(t, byte(trackNum)); err != nil {
		return nil, err
	}
	if sector < 0 || sector > 15 {
		return nil, errs.SectorNotFoundf("woz: sector %d out of range", sector)
	}
	return append([]byte(nil), t.sectors[sector]...), nil
}

// WriteSector updates the requested sector's decoded cache and
// re-synthesizes the track's bit buffer.
func (w *Woz) WriteSector(trackNum, sector int, data []byte) error {
	idx := w.TrackForQuarter(trackNum * 4)
	if idx < 0 || idx >= len(w.Tracks) {
		return errs.TrackNotFoundf("woz: no track mapped for track %d", trackNum)
	}
	t := &w.Tracks[idx]
	if err := w.ensureDecoded(t, byte(trackNum)); err != nil {
		return err
	}
	if sector < 0 || sector > 15 {
		return errs.SectorNotFoundf("woz: sector %d out of range", sector)
	}
	t.sectors[sector] = append([]byte(nil), data...)
	t.dirty = true
	return w.flush(t, byte(trackNum))
}

func (w *Woz) ensureDecoded(t *Track, trackNum byte) error {
	if t.cached {
		return nil
	}
	sectors, err := nibble.ParseTrack(t.BitBuffer, trackNum)
	if err != nil {
		return err
	}
	t.sectors = sectors
	t.cached = true
	return nil
}

func (w *Woz) flush(t *Track, trackNum byte) error {
	built, err := nibble.BuildTrack(t.sectors, 254, trackNum, TrackLength-10)
	if err != nil {
		return err
	}
	t.BitBuffer = built
	t.BitCount = len(built) * 8
	t.dirty = false
	return nil
}

// SectorsPerTrack is the fixed Apple II sector count this codec
// exposes through ReadSector/WriteSector.
const SectorsPerTrack = geometry.AppleFloppySectors
