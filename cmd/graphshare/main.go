package main

import (
	"os"

	cmd "github.com/mosaicnetworks/graphshare/cmd/graphshare/commands"
)

func main() {
	rootCmd := cmd.RootCmd

	rootCmd.AddCommand(
		cmd.NewHostCmd(),
		cmd.NewJoinCmd(),
		cmd.NewSignalCmd(),
		cmd.NewKeygenCmd(),
		cmd.VersionCmd,
	)

	//Do not print usage when error occurs
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
