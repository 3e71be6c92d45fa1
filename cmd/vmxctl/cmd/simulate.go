package cmd

import (
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hankjacobs/hypervisor/loader"
	"github.com/hankjacobs/hypervisor/simulate"
)

var (
	simulateDump    bool
	simulateVerbose bool
	simulatePin     bool
)

func init() {
	simulateCmd.Flags().BoolVar(&simulateDump, "dump", false, "dump the full report with spew")
	simulateCmd.Flags().BoolVarP(&simulateVerbose, "verbose", "v", false, "write hypervisor logs to stderr")
	simulateCmd.Flags().BoolVar(&simulatePin, "pin", false, "pin each simulated core to the host cpu with the same number")
	rootCmd.AddCommand(simulateCmd)
}

var simulateCmd = &cobra.Command{
	Use:   "simulate SCENARIO",
	Short: "Replay a YAML exit trace on software processors",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if simulateVerbose {
			cfg.Output = os.Stderr
		}
		s, err := simulate.LoadScenario(args[0])
		if err != nil {
			return err
		}

		opts := loader.DefaultOptions()
		opts.Pin = simulatePin
		report, err := simulate.Run(cmd.Context(), s, cfg, opts)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if simulateDump {
			spew.Fdump(out, report)
			return nil
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
		for _, c := range report.Cores {
			if c.Halted {
				return fmt.Errorf("core %d halted: %s", c.ID, c.Error)
			}
		}
		return nil
	},
}
