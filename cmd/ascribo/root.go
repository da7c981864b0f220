package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ternarybob/ascribo/internal/common"
)

var configFiles []string

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ascribo",
		Short:         "Newsletter signup campaign runner",
		Long:          "Ascribo runs newsletter signup campaigns against domain lists using a pool of remote browser sessions.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringSliceVarP(&configFiles, "config", "c", nil,
		"Configuration file path (can be specified multiple times, later files override earlier ones)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newRetryListCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// loadConfig resolves configuration with priority: defaults -> files ->
// env. A .env file in the working directory is loaded first so provider
// keys stay out of the TOML.
func loadConfig() (*common.Config, error) {
	_ = godotenv.Load()

	paths := configFiles
	if len(paths) == 0 {
		if _, err := os.Stat("ascribo.toml"); err == nil {
			paths = []string{"ascribo.toml"}
		}
	}

	return common.LoadFromFiles(paths...)
}
