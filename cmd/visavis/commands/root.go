package commands

import (
	"github.com/spf13/cobra"
)

var _config = defaultCLIConfig()

// RootCmd is the root command for visavis.
var RootCmd = &cobra.Command{
	Use:              "visavis",
	Short:            "anonymous one-to-one video sessions",
	TraverseChildren: true,
}

func init() {
	RootCmd.AddCommand(
		NewRunCmd(),
		NewVersionCmd(),
	)
}
