package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for graphshare
var RootCmd = &cobra.Command{
	Use:              "graphshare",
	Short:            "live graph sharing between peers",
	TraverseChildren: true,
}
