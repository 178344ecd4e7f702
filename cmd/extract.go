// Copyright © 2016 Zellyn Hunter <zellyn@gmail.com>

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/onionmixer/rdedisktool/helpers"
)

var extractForce bool

// extractCmd reads a named file out of an image and writes its raw
// bytes to an output file, or stdout if none is given.
var extractCmd = &cobra.Command{
	Use:   "extract image file [out]",
	Short: "extract the raw contents of a file from a disk image",
	Long: `Extract the raw contents of a file from a disk image.

extract disk-image.dsk HELLO
extract disk-image.dsk HELLO hello.bin
`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runExtract(args); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(-1)
		}
	},
}

func init() {
	RootCmd.AddCommand(extractCmd)
	extractCmd.Flags().BoolVarP(&extractForce, "force", "f", false, "overwrite out if it exists")
}

// runExtract performs the actual extract logic.
func runExtract(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("usage: extract <disk image> <filename> [out]")
	}
	op, _, err := openOperator(args[0])
	if err != nil {
		return err
	}
	file, err := op.GetFile(args[1])
	if err != nil {
		return err
	}
	out := "-"
	if len(args) == 3 {
		out = args[2]
	}
	return helpers.WriteOutput(out, file.Data, extractForce)
}
