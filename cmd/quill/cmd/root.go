package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/quill/config"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "Quill is a personal blog and portfolio server",
	Long: `A self-hosted blog and project portfolio with a protected admin area.
Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a .env file (default: ./.env if present)")
}

// loadConfig reads configuration honouring --env-file.
func loadConfig() (*config.Config, error) {
	if envFile == "" {
		return config.Load()
	}
	return config.Load(envFile)
}
