// Command tunbench benchmarks L2TP and PPTP tunnels over an emulated
// network built with Linux network namespaces.
package main

//
// Main
//

import (
	"os"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/bassosimone/tunbench/config"
	"github.com/spf13/cobra"
)

// Options contains the options shared by all subcommands.
type Options struct {
	// ConfigPath is the OPTIONAL YAML config file.
	ConfigPath string

	// DryRun only logs the commands we would run.
	DryRun bool

	// Verbose enables debug logging.
	Verbose bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCommand creates the root command and registers the subcommands.
func newRootCommand() *cobra.Command {
	var globalOptions Options
	rootCmd := &cobra.Command{
		Use:           "tunbench",
		Short:         "Benchmarks L2TP and PPTP tunnels over an emulated network",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(globalOptions.Verbose)
		},
	}
	flags := rootCmd.PersistentFlags()

	flags.StringVarP(
		&globalOptions.ConfigPath,
		"config",
		"c",
		"",
		"YAML config file (default: built-in configuration)",
	)

	flags.BoolVarP(
		&globalOptions.DryRun,
		"dry-run",
		"n",
		false,
		"only log the commands that would be executed",
	)

	flags.BoolVarP(
		&globalOptions.Verbose,
		"verbose",
		"v",
		false,
		"increase verbosity level",
	)

	registerRun(rootCmd, &globalOptions)
	registerTopology(rootCmd, &globalOptions)
	registerSummarize(rootCmd, &globalOptions)
	registerCleanup(rootCmd, &globalOptions)
	return rootCmd
}

// setupLogging installs the CLI log handler.
func setupLogging(verbose bool) {
	log.SetHandler(cli.Default)
	log.SetLevel(log.InfoLevel)
	if verbose {
		log.SetLevel(log.DebugLevel)
	}
}

// loadConfig loads the config file or returns the default config.
func loadConfig(globalOptions *Options) (config.Config, error) {
	if globalOptions.ConfigPath == "" {
		return config.Default(), nil
	}
	return config.Load(globalOptions.ConfigPath)
}
