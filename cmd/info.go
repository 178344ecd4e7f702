package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/onionmixer/rdedisktool/helpers"
	"github.com/onionmixer/rdedisktool/registry"
)

// infoCmd prints an image's detected container format and geometry,
// plus its filesystem if one can be recognized.
var infoCmd = &cobra.Command{
	Use:   "info image",
	Short: "print an image's format, geometry, and detected filesystem",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runInfo(args); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(-1)
		}
	},
}

func init() {
	RootCmd.AddCommand(infoCmd)
}

func runInfo(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: info <image>")
	}
	data, err := helpers.FileContentsOrStdIn(args[0])
	if err != nil {
		return err
	}
	img, f, err := registry.Load(data, args[0])
	if err != nil {
		return err
	}
	geom := img.Geometry()
	fmt.Printf("format:          %s\n", f)
	fmt.Printf("tracks:          %d\n", geom.Tracks)
	fmt.Printf("sides:           %d\n", geom.Sides)
	fmt.Printf("sectors/track:   %d\n", geom.SectorsPerTrack)
	fmt.Printf("bytes/sector:    %d\n", geom.BytesPerSector)
	fmt.Printf("total bytes:     %d\n", geom.TotalBytes())
	fmt.Printf("write protected: %v\n", img.WriteProtected())

	op, order, err := openOperator(args[0])
	if err != nil {
		fmt.Printf("filesystem:      none recognized (%v)\n", err)
		return nil
	}
	fmt.Printf("filesystem:      %s\n", op.Name())
	fmt.Printf("sector order:    %s\n", order)
	return nil
}
