package registry

import (
	"testing"

	"github.com/onionmixer/rdedisktool/errs"
	"github.com/onionmixer/rdedisktool/format"
)

func TestNewKnownFormats(t *testing.T) {
	for _, f := range []format.DiskFormat{
		format.AppleDO, format.ApplePO, format.AppleNIB, format.AppleNB2,
		format.AppleWOZ1, format.AppleWOZ2, format.MSXDSK,
		format.X68000XDF, format.X68000DIM,
	} {
		img, err := New(f)
		if err != nil {
			t.Fatalf("New(%s): %v", f, err)
		}
		if img.Format() != f {
			t.Errorf("New(%s).Format() = %s", f, img.Format())
		}
	}
}

func TestNewUnsupportedFormat(t *testing.T) {
	if _, err := New(format.MSXDMK); err == nil || !errs.IsUnsupportedFormat(err) {
		t.Fatalf("New(MSXDMK) = %v, want UnsupportedFormat (DMK has no blank constructor)", err)
	}
	if _, err := New(format.Unknown); err == nil || !errs.IsUnsupportedFormat(err) {
		t.Fatalf("New(Unknown) = %v, want UnsupportedFormat", err)
	}
}

func TestLoadAsRoundTrip(t *testing.T) {
	do, err := New(format.AppleDO)
	if err != nil {
		t.Fatalf("New(AppleDO): %v", err)
	}
	payload := make([]byte, 256)
	copy(payload, "HELLO")
	if err := do.WriteSector(3, 5, payload); err != nil {
		t.Fatalf("WriteSector: %v", err)
	}

	loaded, f, err := LoadAs(do.Bytes(), "test.do", format.AppleDO)
	if err != nil {
		t.Fatalf("LoadAs: %v", err)
	}
	if f != format.AppleDO {
		t.Errorf("LoadAs format = %s, want AppleDO", f)
	}
	got, err := loaded.ReadSector(3, 5)
	if err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	if string(got[:5]) != "HELLO" {
		t.Errorf("ReadSector = %q, want prefix HELLO", got)
	}
}

func TestConvertDOtoPOtoDO(t *testing.T) {
	do, err := New(format.AppleDO)
	if err != nil {
		t.Fatalf("New(AppleDO): %v", err)
	}
	payload := make([]byte, 256)
	copy(payload, "HELLO")
	if err := do.WriteSector(3, 5, payload); err != nil {
		t.Fatalf("WriteSector: %v", err)
	}

	po, err := ConvertTo(do, format.ApplePO)
	if err != nil {
		t.Fatalf("ConvertTo(PO): %v", err)
	}
	if po.Format() != format.ApplePO {
		t.Errorf("converted format = %s, want ApplePO", po.Format())
	}

	back, err := ConvertTo(po, format.AppleDO)
	if err != nil {
		t.Fatalf("ConvertTo(DO): %v", err)
	}
	got, err := back.ReadSector(3, 5)
	if err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	if string(got[:5]) != "HELLO" {
		t.Errorf("round trip ReadSector = %q, want prefix HELLO", got)
	}
}

func TestConvertUnsupportedPair(t *testing.T) {
	do, err := New(format.AppleDO)
	if err != nil {
		t.Fatalf("New(AppleDO): %v", err)
	}
	if _, err := ConvertTo(do, format.MSXDSK); err == nil || !errs.IsUnsupportedFormat(err) {
		t.Fatalf("ConvertTo(MSXDSK) = %v, want UnsupportedFormat", err)
	}
}

func TestCanConvertTo(t *testing.T) {
	cases := []struct {
		src, target format.DiskFormat
		want        bool
	}{
		{format.AppleDO, format.ApplePO, true},
		{format.ApplePO, format.AppleDO, true},
		{format.AppleNIB, format.AppleDO, true},
		{format.AppleWOZ2, format.AppleDO, true},
		{format.MSXDSK, format.MSXDMK, true},
		{format.MSXDMK, format.MSXDSK, true},
		{format.MSXXSA, format.MSXDSK, true},
		{format.MSXXSA, format.MSXDMK, true},
		{format.X68000DIM, format.X68000XDF, true},
		{format.AppleDO, format.MSXDSK, false},
		{format.X68000XDF, format.X68000DIM, false},
	}
	for _, c := range cases {
		if got := CanConvertTo(c.src, c.target); got != c.want {
			t.Errorf("CanConvertTo(%s, %s) = %v, want %v", c.src, c.target, got, c.want)
		}
	}
}
