package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/vnetsim/vnetsim/internet"
	"github.com/vnetsim/vnetsim/scenario"
	"github.com/vnetsim/vnetsim/sim"
	"github.com/vnetsim/vnetsim/stats"
)

var (
	statsPath string
	logEvents bool
)

var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Run the simulation described by a scenario file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		status, err := runScenario(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			atexit.Exit(internet.ExitFailure)
		}

		atexit.Exit(status)
	},
}

func init() {
	runCmd.Flags().StringVar(&statsPath, "stats", "",
		"record frame and TCP counters to a SQLite database at this path")
	runCmd.Flags().BoolVar(&logEvents, "log-events", false,
		"log every event the engine processes")

	rootCmd.AddCommand(runCmd)
}

func runScenario(path string) (int, error) {
	spec, err := scenario.Load(path)
	if err != nil {
		return internet.ExitFailure, err
	}

	built, err := spec.Build()
	if err != nil {
		return internet.ExitFailure, err
	}

	if logEvents {
		logger := log.New(os.Stderr, "", 0)
		built.Engine.AcceptHook(sim.NewEventLogger(logger))
	}

	if statsPath != "" {
		writer := stats.NewWriter(statsPath)
		if err := writer.Init(); err != nil {
			return internet.ExitFailure, err
		}
		built.Engine.RegisterEndHandler(writer)

		recorder := stats.NewRecorder(writer)
		for _, n := range built.Networks {
			n.AcceptHook(recorder)
		}
	}

	return internet.Run(built.Machines, built.Networks), nil
}
