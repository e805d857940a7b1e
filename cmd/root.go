package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Credential lifecycle microservice",
	Long:  `A credentials microservice providing registration, login, token refresh and password reset via HTTP, with bearer token authentication for gRPC consumers.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
