package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bassosimone/tunbench"
	"github.com/google/go-cmp/cmp"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if cfg.Runs != tunbench.DefaultRuns {
		t.Fatalf("runs=%d", cfg.Runs)
	}
	if diff := cmp.Diff([]string{"L2TP", "PPTP"}, cfg.Protocols); diff != "" {
		t.Fatal(diff)
	}
	if cfg.Output.CSV != DefaultCSV {
		t.Fatalf("csv=%s", cfg.Output.CSV)
	}
	if cfg.Fluctuation.Enabled {
		t.Fatal("fluctuation should be disabled by default")
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	path := filepath.Join(tmp, "tunbench.yaml")
	data := []byte(`
runs: 2
protocols: [pptp]
pause: 1s
fluctuation:
  enabled: true
  interval: 500ms
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Runs != 2 {
		t.Fatalf("runs=%d", cfg.Runs)
	}
	if cfg.Pause != time.Second {
		t.Fatalf("pause=%s", cfg.Pause)
	}
	if cfg.Fluctuation.Interval != 500*time.Millisecond {
		t.Fatalf("interval=%s", cfg.Fluctuation.Interval)
	}
	if cfg.Fluctuation.Duration != DefaultFluctuationDuration {
		t.Fatalf("duration=%s", cfg.Fluctuation.Duration)
	}
	protocols, err := cfg.ProtocolNames()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]tunbench.ProtocolName{tunbench.ProtocolPPTP}, protocols); diff != "" {
		t.Fatal(diff)
	}
	if len(cfg.Topology.Hosts) != 6 {
		t.Fatalf("expected the default topology, got %d hosts", len(cfg.Topology.Hosts))
	}
}

func TestSaveThenLoad(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	path := filepath.Join(tmp, "sub", "tunbench.yaml")
	orig := Default()
	orig.Runs = 7
	orig.Output.SQLite = "results.db"
	if err := Save(path, orig); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(orig, got); diff != "" {
		t.Fatal(diff)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	type testcase struct {
		name   string
		mutate func(cfg *Config)
		is     error
	}

	cases := []testcase{{
		name:   "unknown protocol",
		mutate: func(cfg *Config) { cfg.Protocols = []string{"IPSEC"} },
		is:     tunbench.ErrUnknownProtocol,
	}, {
		name: "invalid topology",
		mutate: func(cfg *Config) {
			cfg.Topology.Hosts[1].Address = cfg.Topology.Hosts[0].Address
		},
		is: tunbench.ErrInvalidTopology,
	}, {
		name:   "unknown node",
		mutate: func(cfg *Config) { cfg.Remote = "h9" },
		is:     tunbench.ErrNoSuchNode,
	}, {
		name:   "same endpoints",
		mutate: func(cfg *Config) { cfg.Remote = cfg.Local },
		is:     nil,
	}, {
		name:   "zero runs",
		mutate: func(cfg *Config) { cfg.Runs = -1 },
		is:     nil,
	}}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tc.is != nil && !errors.Is(err, tc.is) {
				t.Fatalf("expected %v, got %v", tc.is, err)
			}
		})
	}
}
