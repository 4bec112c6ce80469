package main

//
// The topology subcommand
//

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/bassosimone/tunbench"
	"github.com/spf13/cobra"
)

// registerTopology registers the topology subcommand.
func registerTopology(rootCmd *cobra.Command, globalOptions *Options) {
	subCmd := &cobra.Command{
		Use:   "topology",
		Short: "Prints the emulated topology",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(globalOptions)
			if err != nil {
				return err
			}
			topology, err := tunbench.BuildTopology(cfg.Topology)
			if err != nil {
				return err
			}
			printTopology(os.Stdout, topology, cfg.NetnsPrefix)
			return nil
		},
	}
	rootCmd.AddCommand(subCmd)
}

// printTopology writes a human readable description of the topology.
func printTopology(w io.Writer, topology *tunbench.Topology, prefix string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "NODE\tADDRESS\tSWITCH\tNETNS\n")
	for _, node := range topology.Nodes() {
		fmt.Fprintf(tw, "%s\t%s/%d\t%s\t%s\n", node.Name, node.Address,
			topology.Netmask, node.Switch, tunbench.NetnsName(prefix, node.Name))
	}
	fmt.Fprintf(tw, "\n")
	fmt.Fprintf(tw, "LINK\tBANDWIDTH\tDELAY\tLOSS\n")
	for _, lnk := range topology.Links() {
		params := lnk.Params()
		fmt.Fprintf(tw, "%s\t%gMbit/s\t%s\t%g%%\n", lnk.Name, params.BandwidthMbps, params.Delay, params.LossPercent)
	}
	tw.Flush()
}
