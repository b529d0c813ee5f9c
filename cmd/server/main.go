package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pdfsaas",
		Short: "PDF SaaS entitlement and metering engine",
		Long:  `Serves plan, subscription and usage metering APIs over HTTP and gRPC, and manages the database schema.`,
	}

	rootCmd.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newTokenCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
