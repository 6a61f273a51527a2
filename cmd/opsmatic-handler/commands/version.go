package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	opsmatic "github.com/opsmatic/opsmatic-handler"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the handler version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), opsmatic.Version)
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
