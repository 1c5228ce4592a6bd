package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	var envFiles []string

	rootCmd := &cobra.Command{
		Use:           "fern",
		Short:         "fern - commission and escrow settlement engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before the environment (default .env)")

	rootCmd.AddCommand(serveCmd(&envFiles))
	rootCmd.AddCommand(migrateCmd(&envFiles))
	rootCmd.AddCommand(sweepCmd(&envFiles))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
