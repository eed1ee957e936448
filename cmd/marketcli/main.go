package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "marketcli",
	Short: "Service marketplace client",
	Long: `marketcli signs in to the marketplace backend and drives orders,
order conversations and notifications from the terminal.

Configuration comes from the environment (or a .env file):
API_BASE_URL, WS_BASE_URL, SESSION_PATH, POLL_INTERVAL, COMPLETION_POLICY.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(ordersCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(notificationsCmd)
	rootCmd.AddCommand(watchCmd)
}
