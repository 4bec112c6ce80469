package main

//
// The run subcommand
//

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/apex/log"
	"github.com/bassosimone/tunbench"
	"github.com/bassosimone/tunbench/config"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// runOptions contains the options of the run subcommand.
type runOptions struct {
	CaptureDir  string
	CSV         string
	Fluctuation bool
	Install     bool
	NoProgress  bool
	Protocols   []string
	Runs        int
	SQLite      string
}

// registerRun registers the run subcommand.
func registerRun(rootCmd *cobra.Command, globalOptions *Options) {
	var options runOptions
	subCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the benchmark",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(globalOptions)
			if err != nil {
				return err
			}
			options.override(cmd, &cfg)
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			return mainRun(ctx, globalOptions, &options, cfg)
		},
	}
	rootCmd.AddCommand(subCmd)
	flags := subCmd.Flags()

	flags.StringVar(&options.CaptureDir, "capture-dir", "", "save a PCAP per session into this directory")
	flags.StringVarP(&options.CSV, "output", "o", "", "CSV results file (default: \"results.csv\")")
	flags.BoolVar(&options.Fluctuation, "fluctuation", false, "randomly change the link characteristics while running")
	flags.BoolVar(&options.Install, "install", false, "install the required packages on the endpoints")
	flags.BoolVar(&options.NoProgress, "no-progress", false, "do not show the progress bar")
	flags.StringSliceVarP(&options.Protocols, "protocol", "p", nil, "protocol to benchmark (may be repeated)")
	flags.IntVarP(&options.Runs, "runs", "r", 0, "number of repetitions")
	flags.StringVar(&options.SQLite, "sqlite", "", "also store results into this SQLite database")
}

// override applies the flags the user has set on top of the config.
func (options *runOptions) override(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("capture-dir") {
		cfg.Output.CaptureDir = options.CaptureDir
	}
	if flags.Changed("output") {
		cfg.Output.CSV = options.CSV
	}
	if flags.Changed("fluctuation") {
		cfg.Fluctuation.Enabled = options.Fluctuation
	}
	if flags.Changed("install") {
		cfg.Install = options.Install
	}
	if flags.Changed("protocol") {
		cfg.Protocols = options.Protocols
	}
	if flags.Changed("runs") {
		cfg.Runs = options.Runs
	}
	if flags.Changed("sqlite") {
		cfg.Output.SQLite = options.SQLite
	}
}

// mainRun runs the benchmark with the given configuration.
func mainRun(ctx context.Context, globalOptions *Options, options *runOptions, cfg config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	protocols, err := cfg.ProtocolNames()
	if err != nil {
		return err
	}

	emulator, executor, err := newEmulator(globalOptions.DryRun, cfg.NetnsPrefix)
	if err != nil {
		return err
	}

	env := &tunbench.ProbeEnv{
		CallTimeout: cfg.CallTimeout,
		Executor:    executor,
		Logger:      log.Log,
	}
	pipeline := &tunbench.Pipeline{
		Bulk: &tunbench.BulkTransferProbe{
			SizeMB:          cfg.Probes.BulkSizeMB,
			Port:            cfg.Probes.BulkPort,
			TransferTimeout: cfg.Probes.TransferTimeout,
			WarmUp:          cfg.Probes.WarmUp,
		},
		Env:      env,
		Latency:  &tunbench.LatencyProbe{Count: cfg.Probes.PingCount},
		Resource: &tunbench.ResourceProbe{},
		Throughput: &tunbench.ThroughputProbe{
			Duration: cfg.Probes.IperfDuration,
			Port:     cfg.Probes.IperfPort,
			WarmUp:   cfg.Probes.WarmUp,
		},
	}

	sink, closer, err := newSink(ctx, cfg.Output)
	if err != nil {
		return err
	}
	defer closer()

	orchestrator := &tunbench.Orchestrator{
		CaptureDir:  cfg.Output.CaptureDir,
		CaptureLink: cfg.Output.CaptureLink,
		Emulator:    emulator,
		Fluctuation: nil,
		Install:     cfg.Install,
		Local:       cfg.Local,
		Logger:      log.Log,
		Pause:       cfg.Pause,
		Pipeline:    pipeline,
		Progress:    nil,
		Protocols:   protocols,
		Remote:      cfg.Remote,
		Runs:        cfg.Runs,
		Sink:        sink,
		Topology:    cfg.Topology,
		Tunnel: &tunbench.TunnelConfig{
			Daemons:       newDaemons(executor, cfg.CallTimeout),
			DialJitterMax: cfg.Tunnel.DialJitterMax,
			DialJitterMin: cfg.Tunnel.DialJitterMin,
			Logger:        log.Log,
			Rand:          nil,
			SettlePeriod:  cfg.Tunnel.SettlePeriod,
		},
	}
	if globalOptions.DryRun && orchestrator.CaptureDir != "" {
		log.Warn("tunbench: packet capture is not available in dry-run mode")
		orchestrator.CaptureDir = ""
	}
	if orchestrator.CaptureDir != "" {
		if err := os.MkdirAll(orchestrator.CaptureDir, 0o755); err != nil {
			return err
		}
	}
	if cfg.Fluctuation.Enabled {
		orchestrator.Fluctuation = &tunbench.FluctuationConfig{
			CallTimeout: cfg.CallTimeout,
			Duration:    cfg.Fluctuation.Duration,
			Interval:    cfg.Fluctuation.Interval,
			Logger:      log.Log,
			Rand:        nil,
		}
	}
	if !options.NoProgress {
		orchestrator.Progress = newProgressBar(cfg.Runs * len(protocols))
	}

	t0 := time.Now()
	err = orchestrator.Run(ctx)
	log.Infof("tunbench: benchmark finished in %s", time.Since(t0).Round(time.Second))
	return err
}

// newSink creates the result sink according to the output config.
func newSink(ctx context.Context, output config.OutputConfig) (tunbench.ResultSink, func(), error) {
	csvSink := tunbench.NewCSVSink(output.CSV)
	if output.SQLite == "" {
		return csvSink, func() {}, nil
	}
	dbSink, err := tunbench.NewSQLiteSink(ctx, output.SQLite)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open %s: %w", output.SQLite, err)
	}
	closer := func() {
		if err := dbSink.Close(); err != nil {
			log.Warnf("tunbench: closing %s: %s", output.SQLite, err.Error())
		}
	}
	return tunbench.MultiSink{csvSink, dbSink}, closer, nil
}

// newProgressBar creates the progress bar tracking sessions.
func newProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(
		total,
		progressbar.OptionSetDescription("sessions"),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSetWriter(os.Stderr),
	)
}
