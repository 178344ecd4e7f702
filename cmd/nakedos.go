// Copyright © 2016 Zellyn Hunter <zellyn@gmail.com>

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/onionmixer/rdedisktool/helpers"
	"github.com/onionmixer/rdedisktool/supermon"
)

// nakedosCmd represents the nakedos command
var nakedosCmd = &cobra.Command{
	Use:   "nakedos",
	Short: "work with NakedOS (Super-Mon) disks",
	Long: `rdedisktool nakedos contains the subcommands useful for working
with NakedOS (and Super-Mon) disks, which don't auto-detect reliably
enough to share the default catalog/extract commands.`,
	Aliases: []string{"supermon"},
}

var nakedosCatalogCmd = &cobra.Command{
	Use:     "catalog image",
	Aliases: []string{"cat", "ls"},
	Short:   "print a list of named files on a NakedOS disk",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runNakedosCatalog(args); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(-1)
		}
	},
}

var nakedosExtractCmd = &cobra.Command{
	Use:   "extract image file [out]",
	Short: "extract a named file from a NakedOS disk",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runNakedosExtract(args); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(-1)
		}
	},
}

var nakedosExtractForce bool

func init() {
	RootCmd.AddCommand(nakedosCmd)
	nakedosCmd.AddCommand(nakedosCatalogCmd)
	nakedosCmd.AddCommand(nakedosExtractCmd)
	nakedosExtractCmd.Flags().BoolVarP(&nakedosExtractForce, "force", "f", false, "overwrite out if it exists")
}

func runNakedosCatalog(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: nakedos catalog <image>")
	}
	data, err := helpers.FileContentsOrStdIn(args[0])
	if err != nil {
		return err
	}
	var factory supermon.OperatorFactory
	op, err := factory.Operator(data, debugFlag)
	if err != nil {
		return fmt.Errorf("not a NakedOS disk: %w", err)
	}
	fds, err := op.Catalog("")
	if err != nil {
		return err
	}
	for _, fd := range fds {
		fmt.Println(fd.Name)
	}
	return nil
}

func runNakedosExtract(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("usage: nakedos extract <image> <filename> [out]")
	}
	data, err := helpers.FileContentsOrStdIn(args[0])
	if err != nil {
		return err
	}
	var factory supermon.OperatorFactory
	op, err := factory.Operator(data, debugFlag)
	if err != nil {
		return fmt.Errorf("not a NakedOS disk: %w", err)
	}
	file, err := op.GetFile(args[1])
	if err != nil {
		return err
	}
	out := "-"
	if len(args) == 3 {
		out = args[2]
	}
	return helpers.WriteOutput(out, file.Data, nakedosExtractForce)
}
