package nibble

import (
	"crypto/rand"
	"testing"

	"github.com/kr/pretty"
)

func Test44RoundTrip(t *testing.T) {
	for v := 0; v < 256; v++ {
		odd, even := Encode44(byte(v))
		if odd&0xAA != 0xAA || even&0xAA != 0xAA {
			t.Fatalf("encode44(%#02x) = %#02x,%#02x: missing set bits", v, odd, even)
		}
		got := Decode44(odd, even)
		if got != byte(v) {
			t.Errorf("decode44(encode44(%#02x)) = %#02x, want %#02x", v, got, v)
		}
	}
}

func TestSectorRoundTripRandom(t *testing.T) {
	for trial := 0; trial < 32; trial++ {
		data := make([]byte, SectorDataSize)
		if _, err := rand.Read(data); err != nil {
			t.Fatal(err)
		}

		encoded, err := EncodeSector(data)
		if err != nil {
			t.Fatalf("EncodeSector: %v", err)
		}
		if len(encoded) != NibblizedSize {
			t.Fatalf("EncodeSector produced %d bytes, want %d", len(encoded), NibblizedSize)
		}
		for _, b := range encoded {
			if decodeTable[b] == 0xFF {
				t.Fatalf("EncodeSector produced invalid GCR byte %#02x", b)
			}
		}

		decoded, err := DecodeSector(encoded)
		if err != nil {
			t.Fatalf("DecodeSector: %v", err)
		}
		if diff := pretty.Diff(decoded, data); len(diff) > 0 {
			t.Errorf("round trip mismatch: %v", diff)
		}
	}
}

func TestSectorRoundTripZeroAndFF(t *testing.T) {
	for _, fill := range []byte{0x00, 0xFF, 0x55, 0xAA} {
		data := make([]byte, SectorDataSize)
		for i := range data {
			data[i] = fill
		}
		encoded, err := EncodeSector(data)
		if err != nil {
			t.Fatal(err)
		}
		decoded, err := DecodeSector(encoded)
		if err != nil {
			t.Fatal(err)
		}
		if diff := pretty.Diff(decoded, data); len(diff) > 0 {
			t.Errorf("fill %#02x round trip mismatch: %v", fill, diff)
		}
	}
}

func TestDecodeSectorRejectsInvalidByte(t *testing.T) {
	data := make([]byte, SectorDataSize)
	encoded, err := EncodeSector(data)
	if err != nil {
		t.Fatal(err)
	}
	encoded[0] = 0x00 // never a valid GCR disk byte
	if _, err := DecodeSector(encoded); err == nil {
		t.Fatal("expected an error decoding a corrupted GCR byte")
	}
}

func TestDecodeSectorRejectsBadChecksum(t *testing.T) {
	data := make([]byte, SectorDataSize)
	encoded, err := EncodeSector(data)
	if err != nil {
		t.Fatal(err)
	}
	// Flip the stored checksum nibble to a different valid disk byte.
	if encoded[NibblizedSize-1] == encodeTable[0] {
		encoded[NibblizedSize-1] = encodeTable[1]
	} else {
		encoded[NibblizedSize-1] = encodeTable[0]
	}
	if _, err := DecodeSector(encoded); err == nil {
		t.Fatal("expected a checksum mismatch error")
	}
}

func TestAddressFieldRoundTrip(t *testing.T) {
	for _, tc := range []struct{ volume, track, sector byte }{
		{0, 0, 0},
		{254, 34, 15},
		{1, 17, 8},
	} {
		field := EncodeAddressField(tc.volume, tc.track, tc.sector)
		if len(field) != 14 {
			t.Fatalf("address field length = %d, want 14", len(field))
		}
		if field[0] != addrPrologue1 || field[1] != addrPrologue2 || field[2] != addrPrologue3 {
			t.Fatalf("bad prologue: %#v", field[:3])
		}
		volume, track, sector, ok := DecodeAddressField(field[3:11])
		if !ok {
			t.Fatalf("checksum failed to validate for %+v", tc)
		}
		if volume != tc.volume || track != tc.track || sector != tc.sector {
			t.Errorf("got {%d %d %d}, want %+v", volume, track, sector, tc)
		}
	}
}

func TestBuildAndParseTrackRoundTrip(t *testing.T) {
	var sectors [16][]byte
	for i := range sectors {
		data := make([]byte, SectorDataSize)
		if _, err := rand.Read(data); err != nil {
			t.Fatal(err)
		}
		sectors[i] = data
	}

	const track = 12
	built, err := BuildTrack(sectors, 254, track, TrackNibbleSize)
	if err != nil {
		t.Fatalf("BuildTrack: %v", err)
	}
	if len(built) != TrackNibbleSize {
		t.Fatalf("track length = %d, want %d", len(built), TrackNibbleSize)
	}

	parsed, err := ParseTrack(built, track)
	if err != nil {
		t.Fatalf("ParseTrack: %v", err)
	}
	for i := range sectors {
		if diff := pretty.Diff(parsed[i], sectors[i]); len(diff) > 0 {
			t.Errorf("sector %d mismatch: %v", i, diff)
		}
	}
}

func TestParseTrackToleratesMissingSectors(t *testing.T) {
	var sectors [16][]byte
	sectors[3] = make([]byte, SectorDataSize)
	sectors[3][0] = 0x42

	const track = 5
	built, err := BuildTrack(sectors, 254, track, TrackNibbleSize)
	if err != nil {
		t.Fatalf("BuildTrack: %v", err)
	}
	parsed, err := ParseTrack(built, track)
	if err != nil {
		t.Fatalf("ParseTrack: %v", err)
	}
	if parsed[3][0] != 0x42 {
		t.Errorf("sector 3 not recovered correctly")
	}
	for i := range parsed {
		if i == 3 {
			continue
		}
		for _, b := range parsed[i] {
			if b != 0 {
				t.Errorf("sector %d expected zero-filled, found %#02x", i, b)
				break
			}
		}
	}
}

func TestParseTrackToleratesDecodeErrors(t *testing.T) {
	var sectors [16][]byte
	for i := range sectors {
		data := make([]byte, SectorDataSize)
		if _, err := rand.Read(data); err != nil {
			t.Fatal(err)
		}
		sectors[i] = data
	}

	const track = 9
	built, err := BuildTrack(sectors, 254, track, TrackNibbleSize)
	if err != nil {
		t.Fatalf("BuildTrack: %v", err)
	}

	// Corrupt sector 6's encoded checksum byte so DecodeSector fails
	// for that sector alone (mangling the 343rd encoded nibble breaks
	// the running-XOR checksum without touching any other sector's
	// address or data field). Walk the track the same way ParseTrack
	// does to find sector 6's data field.
	found := -1
	pos := 0
	for pos+14 <= len(built) {
		if !matchAt(built, pos, addrPrologue1, addrPrologue2, addrPrologue3) {
			pos++
			continue
		}
		addrBody := built[pos+3:]
		if len(addrBody) < 8 {
			break
		}
		_, parsedTrack, sector, ok := DecodeAddressField(addrBody)
		pos += 3
		if !ok || sector > 15 || int(parsedTrack) != track {
			continue
		}
		dataPos := findDataField(built, pos, pos+100)
		if dataPos < 0 {
			continue
		}
		if sector == 6 {
			found = dataPos
			break
		}
		pos = dataPos + 3 + NibblizedSize
	}
	if found < 0 {
		t.Fatal("could not locate sector 6's data field")
	}
	built[found+3+342] ^= 0xFF

	parsed, err := ParseTrack(built, track)
	if err != nil {
		t.Fatalf("ParseTrack: %v", err)
	}
	for i := range parsed {
		if i == 6 {
			for _, b := range parsed[6] {
				if b != 0 {
					t.Errorf("corrupt sector 6 expected zero-filled, found %#02x", b)
					break
				}
			}
			continue
		}
		if diff := pretty.Diff(parsed[i], sectors[i]); len(diff) > 0 {
			t.Errorf("sector %d mismatch: %v", i, diff)
		}
	}
}
