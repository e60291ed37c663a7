// Package cmd provides the command-line interface for vnetsim.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vnetsim",
	Short: "Vnetsim simulates virtual internets on a single workstation.",
	Long: `Vnetsim runs user-space virtual internet simulations: tens of ` +
		`thousands of simulated hosts, each with an isolated networking ` +
		`stack, exchanging traffic over configurable virtual networks.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
