package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "erpsync",
	Short: "Offline action queue and synchronizer for the ERP backend",
	Long: `erpsync buffers ERP mutations while the backend is unreachable and
replays them in order once connectivity returns.

Run "erpsync serve" for the long-running agent. The queue, sync and
dead-letters commands work directly on the configured store; stop the
agent first when the store is a local sqlite file.`,
	SilenceUsage: true,
}

func init() {
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "configs/config.yaml"
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultPath, "path to the YAML config file")

	rootCmd.AddCommand(serveCmd, queueCmd, syncCmd, deadLettersCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
