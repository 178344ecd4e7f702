// Copyright © 2016 Zellyn Hunter <zellyn@gmail.com>

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/onionmixer/rdedisktool/config"
)

var cfgFile string
var debugFlag bool
var verboseFlag bool
var quietFlag bool

// cfg holds the resolved default geometries and conversion-graph
// toggles for this invocation, populated by initConfig before any
// command runs.
var cfg = config.New()

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "rdedisktool",
	Version: "0.1.0",
	Short:   "Operate on retro disk images and their contents",
	Long: `rdedisktool is a commandline tool for working with Apple II,
MSX, and X68000 disk images: cataloging, extracting, and converting
between the container and filesystem formats each platform used.`,
}

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.rdedisktool.yaml or $HOME/.rdedisktool.yaml)")
	RootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "print extra diagnostic output while opening images")
	RootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "print extra progress information")
	RootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "suppress non-error output")
	RootCmd.SetVersionTemplate("rdedisktool version {{.Version}}\n")
}

// initConfig loads cfg from the --config file or the default search
// path. A missing default file is fine; a missing explicit one, or a
// malformed file, is reported and aborts the run.
func initConfig() {
	if err := cfg.Load(cfgFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
}

// Execute adds all child commands to the root command sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}
