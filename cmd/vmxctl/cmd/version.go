package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hankjacobs/hypervisor"
	"github.com/hankjacobs/hypervisor/hypercall"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Ask the running hypervisor for its version with a hypercall",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "vmxctl: %s\n", hypervisor.Version)

		v, err := hypercall.QueryVersion()
		if err != nil {
			return err
		}
		if v.Zero() {
			fmt.Fprintln(cmd.OutOrStdout(), "hypervisor: not present")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "hypervisor: %s\n", v)
		return nil
	},
}
