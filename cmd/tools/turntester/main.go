// Command turntester sends single turns to the configured model and renders
// the answer in the terminal.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	logLevel   string
	courseFile string
)

var rootCmd = &cobra.Command{
	Use:   "turntester",
	Short: "Exercise the teaching assistant model from the terminal",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] .env not loaded, using system environment: %v\n", err)
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "zap log level")
	rootCmd.PersistentFlags().StringVar(&courseFile, "course", "", "course profile YAML (defaults to the built-in profile)")

	rootCmd.AddCommand(askCmd, voiceCmd, voicesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
