package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/visavis/visavis/pkg/version"
)

// NewVersionCmd returns the command that prints the version of visavis
// being used.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Version)
		},
	}
}
