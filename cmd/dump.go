package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/onionmixer/rdedisktool/helpers"
	"github.com/onionmixer/rdedisktool/registry"
)

var dumpTrack int
var dumpSector int
var dumpSide int

// dumpCmd prints one sector's contents as 16-bytes-per-line hex plus
// ASCII, the classic disk-sector hex dump.
var dumpCmd = &cobra.Command{
	Use:   "dump image",
	Short: "hex-dump a single sector of a disk image",
	Long: `Print the contents of one sector as 16-bytes-per-line hex and ASCII.

dump disk-image.dsk -t 3 -s 5
`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runDump(args); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(-1)
		}
	},
}

func init() {
	RootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().IntVarP(&dumpTrack, "track", "t", 0, "track number")
	dumpCmd.Flags().IntVarP(&dumpSector, "sector", "s", 0, "sector number")
	dumpCmd.Flags().IntVar(&dumpSide, "side", 0, "side, for multi-sided formats")
}

func runDump(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: dump <image> -t <track> -s <sector>")
	}
	data, err := helpers.FileContentsOrStdIn(args[0])
	if err != nil {
		return err
	}
	img, _, err := registry.Load(data, args[0])
	if err != nil {
		return err
	}
	geom := img.Geometry()
	track := dumpTrack*geom.Sides + dumpSide
	sector, err := img.ReadSector(track, dumpSector)
	if err != nil {
		return err
	}
	printHexDump(sector)
	return nil
}

func printHexDump(data []byte) {
	for offset := 0; offset < len(data); offset += 16 {
		end := offset + 16
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]
		fmt.Printf("%04X: ", offset)
		for i := 0; i < 16; i++ {
			if i < len(chunk) {
				fmt.Printf("%02X ", chunk[i])
			} else {
				fmt.Print("   ")
			}
		}
		fmt.Print(" ")
		for _, b := range chunk {
			if b >= 0x20 && b < 0x7F {
				fmt.Printf("%c", b)
			} else {
				fmt.Print(".")
			}
		}
		fmt.Println()
	}
}
