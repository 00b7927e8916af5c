package main

import (
	"github.com/aretw0/autopilot/internal/cli"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or edit the shared state store",
	Long:  `Reads and writes the state hash directly. Useful with the redis driver while a server is running elsewhere.`,
}

var stateGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print one key, or the whole state",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.StateGet(stateOptions(cmd), optionalArg(args))
	},
}

var stateSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write one key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.StateSet(stateOptions(cmd), args[0], args[1])
	},
}

var stateClearCmd = &cobra.Command{
	Use:   "clear [key]",
	Short: "Delete one key, or every key",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.StateClear(stateOptions(cmd), optionalArg(args))
	},
}

func stateOptions(cmd *cobra.Command) cli.StateOptions {
	return cli.StateOptions{Options: commonOptions(cmd), Output: cmd.OutOrStdout()}
}

func optionalArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateGetCmd, stateSetCmd, stateClearCmd)
}
