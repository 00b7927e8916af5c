package main

import (
	"github.com/aretw0/autopilot/internal/cli"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the loop in the foreground",
	Long:  `Runs the loop until the iteration limit is reached, the task list is empty or a signal arrives.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		maxIter, _ := cmd.Flags().GetInt("max-iterations")
		return cli.Execute(cli.RunOptions{
			Options:       commonOptions(cmd),
			MaxIterations: maxIter,
			Output:        cmd.OutOrStdout(),
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntP("max-iterations", "n", 0, "Iteration limit (overrides engine.max_iterations)")
}
