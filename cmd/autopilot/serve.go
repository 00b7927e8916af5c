package main

import (
	"github.com/aretw0/autopilot/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the administrative HTTP server",
	Long: `Exposes start, stop, status and state management over HTTP, together with
Prometheus metrics and a Server-Sent Events stream of engine events.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		auto, _ := cmd.Flags().GetBool("autostart")
		return cli.Serve(cli.ServeOptions{
			Options:   commonOptions(cmd),
			Addr:      addr,
			Autostart: auto,
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Address to listen on (overrides server.addr)")
	serveCmd.Flags().Bool("autostart", false, "Start the loop after autostart.delay")
}
