package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/onionmixer/rdedisktool/helpers"
	"github.com/onionmixer/rdedisktool/registry"
)

// validateCmd reports whether an image parses as a well-formed
// container (and, if a filesystem is recognized, whether its catalog
// can be read without error). It exits 0 if valid, 1 otherwise.
var validateCmd = &cobra.Command{
	Use:   "validate image",
	Short: "validate a disk image's container and filesystem structure",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(args); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
	},
}

func init() {
	RootCmd.AddCommand(validateCmd)
}

func runValidate(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: validate <image>")
	}
	data, err := helpers.FileContentsOrStdIn(args[0])
	if err != nil {
		return err
	}
	img, _, err := registry.Load(data, args[0])
	if err != nil {
		return fmt.Errorf("invalid container: %w", err)
	}
	if err := img.Geometry().Validate(); err != nil {
		return fmt.Errorf("invalid geometry: %w", err)
	}

	op, _, err := openOperator(args[0])
	if err != nil {
		fmt.Println("container OK, no filesystem recognized")
		return nil
	}
	if _, err := op.Catalog(""); err != nil {
		return fmt.Errorf("filesystem %s catalog failed: %w", op.Name(), err)
	}
	fmt.Printf("container OK, filesystem %s catalog OK\n", op.Name())
	return nil
}
