package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is stamped by the release build.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the vnetsim version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("vnetsim", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
