// Package config contains the YAML configuration of the benchmark.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bassosimone/tunbench"
	"gopkg.in/yaml.v3"
)

// Config is the benchmark configuration.
type Config struct {
	// Runs is the number of repetitions.
	Runs int `yaml:"runs"`

	// Protocols contains the protocols to benchmark in order.
	Protocols []string `yaml:"protocols"`

	// Local is the client node.
	Local string `yaml:"local"`

	// Remote is the server node.
	Remote string `yaml:"remote"`

	// Install installs the required packages before running.
	Install bool `yaml:"install"`

	// Pause is the pause between two sessions.
	Pause time.Duration `yaml:"pause"`

	// CallTimeout bounds each external call.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// NetnsPrefix is the prefix of namespaces and devices.
	NetnsPrefix string `yaml:"netns_prefix"`

	Tunnel      TunnelConfig             `yaml:"tunnel"`
	Probes      ProbesConfig             `yaml:"probes"`
	Fluctuation FluctuationConfig        `yaml:"fluctuation"`
	Output      OutputConfig             `yaml:"output"`
	Topology    *tunbench.TopologyConfig `yaml:"topology"`
}

// TunnelConfig contains the connection timing.
type TunnelConfig struct {
	DialJitterMin time.Duration `yaml:"dial_jitter_min"`
	DialJitterMax time.Duration `yaml:"dial_jitter_max"`
	SettlePeriod  time.Duration `yaml:"settle_period"`
}

// ProbesConfig contains the probe settings.
type ProbesConfig struct {
	PingCount       int           `yaml:"ping_count"`
	IperfDuration   time.Duration `yaml:"iperf_duration"`
	IperfPort       int           `yaml:"iperf_port"`
	BulkSizeMB      int           `yaml:"bulk_size_mb"`
	BulkPort        int           `yaml:"bulk_port"`
	TransferTimeout time.Duration `yaml:"transfer_timeout"`
	WarmUp          time.Duration `yaml:"warm_up"`
}

// FluctuationConfig contains the link fluctuation settings.
type FluctuationConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Duration time.Duration `yaml:"duration"`
}

// OutputConfig tells where to store results.
type OutputConfig struct {
	CSV         string `yaml:"csv"`
	SQLite      string `yaml:"sqlite,omitempty"`
	CaptureDir  string `yaml:"capture_dir,omitempty"`
	CaptureLink string `yaml:"capture_link,omitempty"`
}

// Default values.
const (
	DefaultCSV                 = "results.csv"
	DefaultFluctuationInterval = 10 * time.Second
	DefaultFluctuationDuration = 60 * time.Second
)

// Default returns the default configuration.
func Default() Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return cfg
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Runs == 0 {
		cfg.Runs = tunbench.DefaultRuns
	}
	if len(cfg.Protocols) == 0 {
		for _, p := range tunbench.AllProtocols {
			cfg.Protocols = append(cfg.Protocols, string(p))
		}
	}
	if cfg.Local == "" {
		cfg.Local = tunbench.DefaultLocalNode
	}
	if cfg.Remote == "" {
		cfg.Remote = tunbench.DefaultRemoteNode
	}
	if cfg.Pause == 0 {
		cfg.Pause = tunbench.DefaultPause
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = tunbench.DefaultCallTimeout
	}
	if cfg.NetnsPrefix == "" {
		cfg.NetnsPrefix = tunbench.DefaultNetnsPrefix
	}

	if cfg.Tunnel.DialJitterMin == 0 {
		cfg.Tunnel.DialJitterMin = tunbench.DefaultDialJitterMin
	}
	if cfg.Tunnel.DialJitterMax == 0 {
		cfg.Tunnel.DialJitterMax = tunbench.DefaultDialJitterMax
	}
	if cfg.Tunnel.SettlePeriod == 0 {
		cfg.Tunnel.SettlePeriod = tunbench.DefaultSettlePeriod
	}

	if cfg.Probes.PingCount == 0 {
		cfg.Probes.PingCount = tunbench.DefaultPingCount
	}
	if cfg.Probes.IperfDuration == 0 {
		cfg.Probes.IperfDuration = tunbench.DefaultIperfDuration
	}
	if cfg.Probes.IperfPort == 0 {
		cfg.Probes.IperfPort = tunbench.DefaultIperfPort
	}
	if cfg.Probes.BulkSizeMB == 0 {
		cfg.Probes.BulkSizeMB = tunbench.DefaultBulkSizeMB
	}
	if cfg.Probes.BulkPort == 0 {
		cfg.Probes.BulkPort = tunbench.DefaultBulkPort
	}
	if cfg.Probes.TransferTimeout == 0 {
		cfg.Probes.TransferTimeout = tunbench.DefaultBulkTransferTimeout
	}
	if cfg.Probes.WarmUp == 0 {
		cfg.Probes.WarmUp = tunbench.DefaultIperfWarmUp
	}

	if cfg.Fluctuation.Interval == 0 {
		cfg.Fluctuation.Interval = DefaultFluctuationInterval
	}
	if cfg.Fluctuation.Duration == 0 {
		cfg.Fluctuation.Duration = DefaultFluctuationDuration
	}

	if cfg.Output.CSV == "" {
		cfg.Output.CSV = DefaultCSV
	}

	if cfg.Topology == nil {
		cfg.Topology = tunbench.DefaultTopologyConfig()
	}
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks the configuration, including the topology.
func Validate(cfg Config) error {
	if cfg.Runs < 1 {
		return fmt.Errorf("runs must be positive")
	}
	if len(cfg.Protocols) == 0 {
		return fmt.Errorf("protocols must not be empty")
	}
	if _, err := cfg.ProtocolNames(); err != nil {
		return err
	}
	if cfg.Local == cfg.Remote {
		return fmt.Errorf("local and remote must differ")
	}
	if cfg.Tunnel.DialJitterMax < cfg.Tunnel.DialJitterMin {
		return fmt.Errorf("tunnel.dial_jitter_max must not be smaller than tunnel.dial_jitter_min")
	}
	if cfg.Fluctuation.Enabled && cfg.Fluctuation.Interval <= 0 {
		return fmt.Errorf("fluctuation.interval must be positive")
	}
	if cfg.Topology == nil {
		return errors.New("topology is required")
	}
	topology, err := tunbench.BuildTopology(cfg.Topology)
	if err != nil {
		return err
	}
	for _, name := range []string{cfg.Local, cfg.Remote} {
		if _, err := topology.Node(name); err != nil {
			return err
		}
	}
	return nil
}

// ProtocolNames parses the configured protocols.
func (cfg *Config) ProtocolNames() ([]tunbench.ProtocolName, error) {
	var out []tunbench.ProtocolName
	for _, name := range cfg.Protocols {
		p, err := tunbench.ParseProtocol(name)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
