package cmd

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/spf13/cobra"

	"github.com/onionmixer/rdedisktool/types"
)

// kongCLI collects the subcommands expressed as kong command structs,
// where kong's typed-argument and enum-flag handling fits more
// naturally than cobra's: sector reordering, Standard Delivery disk
// creation, and the filetype reference table.
type kongCLI struct {
	Reorder   ReorderCmd   `kong:"cmd,help='Change the logical sector order of a disk image.'"`
	MkSD      SDCmd        `kong:"cmd,name='mksd',help='Create a Standard Delivery bootable disk image.'"`
	Filetypes FiletypesCmd `kong:"cmd,help='List known Apple II file types.'"`
}

func init() {
	for _, name := range []string{"reorder", "mksd", "filetypes"} {
		name := name
		RootCmd.AddCommand(&cobra.Command{
			Use:                name,
			DisableFlagParsing: true,
			Args:               cobra.ArbitraryArgs,
			Run: func(cmd *cobra.Command, args []string) {
				runKong(append([]string{name}, args...))
			},
		})
	}
}

// runKong parses argv through kong and runs the resolved command,
// passing it the same operator factories and debug level the cobra
// commands use.
func runKong(argv []string) {
	var cli kongCLI
	parser, err := kong.New(&cli, kong.Name("rdedisktool"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
	ctx, err := parser.Parse(argv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
	globals := &types.Globals{
		DiskOperatorFactories: operatorFactories,
	}
	if debugFlag {
		globals.Debug = 1
	}
	if err := ctx.Run(globals); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
}
