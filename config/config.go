// Package config resolves the defaults this tool falls back to when a
// command doesn't pin a value down explicitly: per-family disk
// geometries and the set of formats the conversion graph is allowed
// to target. It is backed by viper, layering an optional
// .rdedisktool.yaml and RDEDISKTOOL_* environment variables over a
// set of built-in defaults.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/onionmixer/rdedisktool/format"
	"github.com/onionmixer/rdedisktool/geometry"
)

const envPrefix = "RDEDISKTOOL"

// Config is the resolved set of geometry and conversion-graph
// defaults for one invocation of the tool.
type Config struct {
	v *viper.Viper
}

// New returns a Config with built-in defaults set, before any config
// file or environment layer has been applied. Callers that don't need
// file/env overrides can use it as-is.
func New() *Config {
	v := viper.New()

	v.SetDefault("geometry.apple.tracks", geometry.AppleFloppyTracks)
	v.SetDefault("geometry.apple.sides", 1)
	v.SetDefault("geometry.apple.sectorsPerTrack", geometry.AppleFloppySectors)
	v.SetDefault("geometry.apple.bytesPerSector", geometry.AppleSectorBytes)

	v.SetDefault("geometry.msx.tracks", 80)
	v.SetDefault("geometry.msx.sides", 2)
	v.SetDefault("geometry.msx.sectorsPerTrack", 9)
	v.SetDefault("geometry.msx.bytesPerSector", 512)

	v.SetDefault("conversions.disabled", []string{})

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Config{v: v}
}

// Load merges an optional config file over the built-in defaults. If
// cfgFile is non-empty it is read directly and any error (including
// "not found") is returned. If cfgFile is empty, Load looks for
// .rdedisktool.yaml in the current directory and the user's home
// directory; finding none there is not an error.
func (c *Config) Load(cfgFile string) error {
	if cfgFile != "" {
		c.v.SetConfigFile(cfgFile)
		return c.v.ReadInConfig()
	}

	c.v.SetConfigName(".rdedisktool")
	c.v.SetConfigType("yaml")
	c.v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		c.v.AddConfigPath(home)
	}

	if err := c.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("config: reading config file: %w", err)
	}
	return nil
}

// ConfigFileUsed returns the path of the config file actually loaded,
// or "" if none was found.
func (c *Config) ConfigFileUsed() string {
	return c.v.ConfigFileUsed()
}

func geometryFrom(v *viper.Viper, family string) geometry.Geometry {
	return geometry.Geometry{
		Tracks:          v.GetInt(family + ".tracks"),
		Sides:           v.GetInt(family + ".sides"),
		SectorsPerTrack: v.GetInt(family + ".sectorsPerTrack"),
		BytesPerSector:  v.GetInt(family + ".bytesPerSector"),
	}
}

// AppleGeometry returns the default geometry for Apple II flat-sector
// formats (AppleDO/ApplePO), used when a command builds a blank image
// without an explicit -tracks/-sectors override.
func (c *Config) AppleGeometry() geometry.Geometry {
	return geometryFrom(c.v, "geometry.apple")
}

// MSXGeometry returns the default geometry assumed for a bare MSXDSK
// image, which (unlike DMK, XDF, or DIM) carries no self-describing
// header of its own.
func (c *Config) MSXGeometry() geometry.Geometry {
	return geometryFrom(c.v, "geometry.msx")
}

// DisabledFormats returns the set of format.DiskFormat values the
// conversion graph is configured to refuse, regardless of whether
// registry.CanConvertTo would otherwise allow them.
func (c *Config) DisabledFormats() map[format.DiskFormat]bool {
	disabled := make(map[format.DiskFormat]bool)
	for _, name := range c.v.GetStringSlice("conversions.disabled") {
		disabled[format.DiskFormat(name)] = true
	}
	return disabled
}

// ConversionEnabled reports whether a conversion between src and
// target is allowed under this config's disabled-format list. It does
// not consult the registry's conversion graph itself: a caller
// ordinarily checks registry.CanConvertTo(src, target) &&
// cfg.ConversionEnabled(src, target).
func (c *Config) ConversionEnabled(src, target format.DiskFormat) bool {
	disabled := c.DisabledFormats()
	return !disabled[src] && !disabled[target]
}
