package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "chat event relay with per-channel subscriptions",
	Long: `Relay forwards guild text-channel events from the chat platform to
websocket clients that have joined those channels. Clients authenticate
with a bearer token and only receive events for channels they subscribe
to. See the serve subcommand for configuration.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
