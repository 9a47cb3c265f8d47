package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "baton",
	Short:   "Baton - multi-agent workflow coordinator",
	Long:    `Baton routes a prompt through a team of AI agents, validates every response against role rules, and escalates to a human when a workflow needs approval or stalls.`,
	Version: version,
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	apiAddr    string
	configPath string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:3001", "API server address")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.baton/config.yaml)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(workflowCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(actionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
