package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	outputFormat string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "verdant",
		Short: "Verdant carbon-aware scheduling CLI",
		Long:  `Verdant decides when and where to run workloads based on grid carbon intensity, and tracks per-workload energy regressions.`,
	}

	defaultConfig := "verdant.yaml"
	if envPath := os.Getenv("VERDANT_CONFIG"); envPath != "" {
		defaultConfig = envPath
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfig, "Config file path (env: VERDANT_CONFIG)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json)")

	rootCmd.AddCommand(rankCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(evaluateCmd())
	rootCmd.AddCommand(convertCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
