package cmd

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/onionmixer/rdedisktool/format"
	"github.com/onionmixer/rdedisktool/helpers"
	"github.com/onionmixer/rdedisktool/registry"
)

var convertFormat string
var convertForce bool

// convertCmd converts a container image from one disk-image format to
// another, per the conversion graph registry.ConvertTo implements:
// DO<->PO, NIB/WOZ->DO, DSK<->DMK, XSA->{DSK,DMK}, DIM(2HD)->XDF.
var convertCmd = &cobra.Command{
	Use:   "convert in-image out-image",
	Short: "convert a disk image to a different container format",
	Long: `Convert a disk image from one container format to another.

convert foo.do foo.po
convert foo.dsk foo.dmk -f MSXDMK
`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runConvert(args); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(-1)
		}
	},
}

func init() {
	RootCmd.AddCommand(convertCmd)
	convertCmd.Flags().StringVarP(&convertFormat, "format", "f", "", "target format (defaults to a guess from out-image's extension)")
	convertCmd.Flags().BoolVarP(&convertForce, "force", "", false, "overwrite out-image if it exists")
}

func runConvert(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: convert <in-image> <out-image>")
	}
	inPath, outPath := args[0], args[1]

	data, err := helpers.FileContentsOrStdIn(inPath)
	if err != nil {
		return err
	}
	img, _, err := registry.Load(data, inPath)
	if err != nil {
		return err
	}

	target := format.DiskFormat(convertFormat)
	if target == format.Unknown || target == "" {
		target = targetFormatFromExtension(outPath)
		if target == format.Unknown {
			return fmt.Errorf("cannot determine target format from %q; pass -f/--format explicitly", outPath)
		}
	}

	if !registry.CanConvertTo(img.Format(), target) {
		return fmt.Errorf("no conversion known from %s to %s", img.Format(), target)
	}
	if !cfg.ConversionEnabled(img.Format(), target) {
		return fmt.Errorf("conversion from %s to %s is disabled by configuration", img.Format(), target)
	}

	out, err := registry.ConvertTo(img, target)
	if err != nil {
		return err
	}
	return helpers.WriteOutput(outPath, out.Bytes(), convertForce)
}

// targetFormatFromExtension guesses a conversion target purely from
// out-image's extension. Unlike format.Detect, it never looks at
// content: there is no content yet for a file this command is about
// to write, and extensions like .po are ambiguous on content alone
// but unambiguous as a requested *output* format.
func targetFormatFromExtension(filename string) format.DiskFormat {
	switch strings.ToLower(path.Ext(filename)) {
	case ".do", ".dsk":
		return format.AppleDO
	case ".po":
		return format.ApplePO
	case ".nib":
		return format.AppleNIB
	case ".nb2":
		return format.AppleNB2
	case ".woz":
		return format.AppleWOZ2
	case ".dmk":
		return format.MSXDMK
	case ".xdf":
		return format.X68000XDF
	case ".dim":
		return format.X68000DIM
	default:
		return format.Unknown
	}
}
