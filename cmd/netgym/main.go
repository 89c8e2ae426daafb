package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "netgym",
		Short:        "netgym drives NetworkGym simulation sessions with reinforcement learning agents.",
		Version:      version,
		SilenceUsage: true,
	}

	for _, envFile := range []string{
		".env",
		"../../.env",
	} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	rootCmd.AddCommand(newRunCmd(), newSimCmd(), newValidateCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
