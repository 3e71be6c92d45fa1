package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hankjacobs/hypervisor"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "vmxctl",
	Short:        "Inspect and exercise the passthrough hypervisor",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "hypervisor config file (YAML)")
}

// loadConfig returns the --config file over the defaults, or the defaults.
func loadConfig() (hypervisor.Config, error) {
	if configPath == "" {
		return hypervisor.DefaultConfig(), nil
	}
	cfg, err := hypervisor.LoadConfig(configPath)
	if err != nil {
		return cfg, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
