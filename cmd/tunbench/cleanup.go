package main

//
// The cleanup subcommand
//

import (
	"context"

	"github.com/apex/log"
	"github.com/bassosimone/tunbench"
	"github.com/spf13/cobra"
)

// registerCleanup registers the cleanup subcommand.
func registerCleanup(rootCmd *cobra.Command, globalOptions *Options) {
	subCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Removes namespaces, links and bridges left behind by an interrupted run",
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
			emulator, _, err := newEmulator(globalOptions.DryRun, cfg.NetnsPrefix)
			if err != nil {
				return err
			}
			// most devices are usually already gone, so errors are expected
			if err := emulator.Destroy(context.Background(), topology); err != nil {
				log.Debugf("tunbench: cleanup: %s", err.Error())
			}
			log.Info("tunbench: cleanup done")
			return nil
		},
	}
	rootCmd.AddCommand(subCmd)
}
