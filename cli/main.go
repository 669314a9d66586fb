// Package main provides the runview command line client.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL    string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:          "runview",
	Short:        "Inspect the subagent runs of a live multi-agent runtime",
	SilenceUsage: true,
}

func init() {
	defaultServer := os.Getenv("RUNVIEW_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "runview server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "o", formatTable, "output format: table, json or yaml")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
