package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/onionmixer/rdedisktool/format"
	"github.com/onionmixer/rdedisktool/helpers"
	"github.com/onionmixer/rdedisktool/registry"
)

var createFormat string
var createForce bool

// createCmd writes a blank image of the requested container format,
// using the built-in geometry of that format's registry constructor.
// It does not consult the config package, applies no filesystem
// formatting, and takes no -n/-g options.
var createCmd = &cobra.Command{
	Use:   "create image",
	Short: "create a blank disk image",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runCreate(args); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(-1)
		}
	},
}

func init() {
	RootCmd.AddCommand(createCmd)
	createCmd.Flags().StringVarP(&createFormat, "format", "f", "", "container format to create (required)")
	createCmd.Flags().BoolVar(&createForce, "force", false, "overwrite image if it exists")
}

func runCreate(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: create <image> -f <format>")
	}
	if createFormat == "" {
		return fmt.Errorf("create requires -f/--format")
	}
	img, err := registry.New(format.DiskFormat(createFormat))
	if err != nil {
		return err
	}
	return helpers.WriteOutput(args[0], img.Bytes(), createForce)
}
