package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/onionmixer/rdedisktool/format"
	"github.com/onionmixer/rdedisktool/geometry"
)

func TestNewDefaults(t *testing.T) {
	c := New()
	want := geometry.Geometry{Tracks: geometry.AppleFloppyTracks, Sides: 1, SectorsPerTrack: geometry.AppleFloppySectors, BytesPerSector: geometry.AppleSectorBytes}
	if got := c.AppleGeometry(); got != want {
		t.Errorf("AppleGeometry() = %+v, want %+v", got, want)
	}
	wantMSX := geometry.Geometry{Tracks: 80, Sides: 2, SectorsPerTrack: 9, BytesPerSector: 512}
	if got := c.MSXGeometry(); got != wantMSX {
		t.Errorf("MSXGeometry() = %+v, want %+v", got, wantMSX)
	}
	if len(c.DisabledFormats()) != 0 {
		t.Errorf("DisabledFormats() = %v, want empty", c.DisabledFormats())
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	c := New()
	dir := t.TempDir()
	old, _ := os.Getwd()
	defer os.Chdir(old)
	os.Chdir(dir)
	if err := c.Load(""); err != nil {
		t.Fatalf("Load(\"\") with no config file present: %v", err)
	}
	if c.ConfigFileUsed() != "" {
		t.Errorf("ConfigFileUsed() = %q, want empty", c.ConfigFileUsed())
	}
}

func TestLoadExplicitFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	contents := `
geometry:
  msx:
    tracks: 77
    sides: 1
    sectorsPerTrack: 8
    bytesPerSector: 512
conversions:
  disabled:
    - woz1
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c := New()
	if err := c.Load(path); err != nil {
		t.Fatalf("Load(%q): %v", path, err)
	}
	want := geometry.Geometry{Tracks: 77, Sides: 1, SectorsPerTrack: 8, BytesPerSector: 512}
	if got := c.MSXGeometry(); got != want {
		t.Errorf("MSXGeometry() = %+v, want %+v", got, want)
	}
	if !c.DisabledFormats()[format.DiskFormat("woz1")] {
		t.Errorf("DisabledFormats() = %v, want woz1 disabled", c.DisabledFormats())
	}
}

func TestLoadExplicitMissingFileIsAnError(t *testing.T) {
	c := New()
	if err := c.Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("Load(missing explicit file) = nil, want error")
	}
}

func TestConversionEnabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	contents := "conversions:\n  disabled:\n    - " + string(format.MSXDMK) + "\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	c := New()
	if err := c.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.ConversionEnabled(format.MSXDSK, format.MSXDMK) {
		t.Errorf("ConversionEnabled(MSXDSK, MSXDMK) = true, want false (MSXDMK disabled)")
	}
	if !c.ConversionEnabled(format.AppleDO, format.ApplePO) {
		t.Errorf("ConversionEnabled(AppleDO, ApplePO) = false, want true")
	}
}
