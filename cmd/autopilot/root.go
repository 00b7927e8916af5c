package main

import (
	"fmt"
	"os"

	"github.com/aretw0/autopilot/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "autopilot",
	Short: "Autopilot drives a web application with an LLM in a closed loop",
	Long: `Autopilot picks a task, asks a language model for the next HTTP action,
performs it against the target application and feeds the response back until
the task is judged complete.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "autopilot.yaml", "Configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error (overrides the file)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit logs as JSON")
}

func commonOptions(cmd *cobra.Command) cli.Options {
	configPath, _ := cmd.Flags().GetString("config")
	level, _ := cmd.Flags().GetString("log-level")
	asJSON, _ := cmd.Flags().GetBool("log-json")
	return cli.Options{ConfigPath: configPath, LogLevel: level, JSONLogs: asJSON}
}
