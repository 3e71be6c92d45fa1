package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hankjacobs/hypervisor/vmxcap"
)

var (
	capsSource string
	capsCPU    int
)

func init() {
	capsCmd.Flags().StringVarP(&capsSource, "source", "s", "kvm", "where to read MSRs from: kvm or msr")
	capsCmd.Flags().IntVar(&capsCPU, "cpu", 0, "logical core for --source msr")
	rootCmd.AddCommand(capsCmd)
}

type capsReader interface {
	vmxcap.Reader
	io.Closer
}

func openCaps() (capsReader, error) {
	switch capsSource {
	case "kvm":
		return vmxcap.OpenKVM()
	case "msr":
		return vmxcap.OpenDevice(capsCPU)
	}
	return nil, fmt.Errorf("unknown source %q", capsSource)
}

var capsCmd = &cobra.Command{
	Use:   "caps",
	Short: "Show VMX capabilities and how the configured controls would be adjusted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		r, err := openCaps()
		if err != nil {
			return err
		}
		defer r.Close()

		caps, err := vmxcap.Read(r)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "revision:     %#x\n", caps.RevisionID())
		fmt.Fprintf(out, "region size:  %#x\n", caps.RegionSize())
		fmt.Fprintf(out, "true ctls:    %v\n", caps.TrueControls())
		fmt.Fprintf(out, "timer rate:   tsc >> %d\n", caps.PreemptionTimerRate())
		fmt.Fprintf(out, "cr0 fixed:    %#x / %#x\n", caps.CR0Fixed0, caps.CR0Fixed1)
		fmt.Fprintf(out, "cr4 fixed:    %#x / %#x\n", caps.CR4Fixed0, caps.CR4Fixed1)
		fmt.Fprintln(out)
		for _, a := range caps.Negotiate(cfg.Controls) {
			fmt.Fprintln(out, a)
		}
		return nil
	},
}
