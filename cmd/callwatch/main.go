package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "callwatch",
	Short: "In-process monitor for redundant outbound calls",
	Long: `callwatch watches the outbound calls an application makes, detects
redundant/duplicate calls, separates genuine defects (cache
misconfiguration, render loops) from legitimate repetition (pagination,
infinite scroll), and reports efficiency statistics with actionable issues.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
