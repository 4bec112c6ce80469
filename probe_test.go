package tunbench_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bassosimone/tunbench"
	"github.com/bassosimone/tunbench/internal"
	"github.com/bassosimone/tunbench/optional"
	"github.com/google/go-cmp/cmp"
)

var (
	probeLocal  = tunbench.Endpoint{Name: "h1", Address: "10.0.1.1"}
	probeRemote = tunbench.Endpoint{Name: "h2", Address: "10.0.1.2"}
)

// newProbeEnv returns an environment using the given executor.
func newProbeEnv(executor *internal.FakeExecutor) (*tunbench.ProbeEnv, *internal.RecordingLogger) {
	logger := &internal.RecordingLogger{}
	env := &tunbench.ProbeEnv{
		CallTimeout: time.Second,
		Executor:    executor,
		Logger:      logger,
	}
	return env, logger
}

// float converts an optional value into a comparable pointer.
func float(v optional.Value[float64]) *float64 {
	if value, ok := v.Get(); ok {
		return &value
	}
	return nil
}

const pingOutput = `PING 10.0.1.2 (10.0.1.2) 56(84) bytes of data.
64 bytes from 10.0.1.2: icmp_seq=1 ttl=64 time=10.0 ms
64 bytes from 10.0.1.2: icmp_seq=2 ttl=64 time=20.0 ms
64 bytes from 10.0.1.2: icmp_seq=3 ttl=64 time=15.0 ms

--- 10.0.1.2 ping statistics ---
3 packets transmitted, 3 received, 0% packet loss, time 2003ms
rtt min/avg/max/mdev = 10.000/15.000/20.000/4.082 ms
`

func TestParseLatency(t *testing.T) {
	t.Run("three samples", func(t *testing.T) {
		result := tunbench.ParseLatency(pingOutput)
		if diff := cmp.Diff(15.0, result.Avg.Unwrap()); diff != "" {
			t.Fatal(diff)
		}
		if result.Min.Unwrap() != 10 || result.Max.Unwrap() != 20 {
			t.Fatal("unexpected min or max")
		}
		if result.Jitter.Unwrap() != 7.5 {
			t.Fatal("unexpected jitter", result.Jitter.Unwrap())
		}
		if mdev := result.Mdev.Unwrap(); mdev < 4.08 || mdev > 4.09 {
			t.Fatal("unexpected mdev", mdev)
		}
		if result.PacketLoss.Unwrap() != 0 {
			t.Fatal("unexpected packet loss")
		}
	})

	t.Run("no samples but packet loss", func(t *testing.T) {
		output := "--- 10.0.1.2 ping statistics ---\n10 packets transmitted, 0 received, 100% packet loss, time 9000ms\n"
		result := tunbench.ParseLatency(output)
		for _, v := range []optional.Value[float64]{result.Avg, result.Min, result.Max, result.Mdev, result.Jitter} {
			if !v.Empty() {
				t.Fatal("expected empty latency fields")
			}
		}
		if result.PacketLoss.Unwrap() != 100 {
			t.Fatal("expected 100% packet loss")
		}
	})

	t.Run("single sample has no jitter", func(t *testing.T) {
		result := tunbench.ComputeLatencyStats([]float64{12.5})
		if result.Avg.Unwrap() != 12.5 || result.Mdev.Unwrap() != 0 {
			t.Fatal("unexpected stats")
		}
		if !result.Jitter.Empty() {
			t.Fatal("expected empty jitter")
		}
	})
}

func TestParseThroughput(t *testing.T) {
	type testcase struct {
		name   string
		output string
		expect *float64
	}

	value := func(v float64) *float64 { return &v }

	cases := []testcase{{
		name:   "Mbits",
		output: "[  5]   0.00-10.00  sec   112 MBytes  94.1 Mbits/sec    0             sender\n",
		expect: value(94.1),
	}, {
		name:   "Gbits",
		output: "[  5]   0.00-10.00  sec  1.40 GBytes  1.2 Gbits/sec    0             sender\n",
		expect: value(1200),
	}, {
		name:   "Kbits",
		output: "[  5]   0.00-10.00  sec   640 KBytes   500 Kbits/sec    3             sender\n",
		expect: value(0.5),
	}, {
		name:   "receiver line only",
		output: "[  5]   0.00-10.00  sec   112 MBytes  93.0 Mbits/sec                  receiver\n",
		expect: nil,
	}, {
		name: "sender wins over receiver",
		output: "[  5]   0.00-10.00  sec   112 MBytes  94.1 Mbits/sec    0             sender\n" +
			"[  5]   0.00-10.04  sec   111 MBytes  93.0 Mbits/sec                  receiver\n",
		expect: value(94.1),
	}, {
		name:   "garbage",
		output: "iperf3: error - unable to connect to server",
		expect: nil,
	}}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := float(tunbench.ParseThroughput(tc.output))
			if diff := cmp.Diff(tc.expect, got); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestNormalizeThroughput(t *testing.T) {
	if got := tunbench.NormalizeThroughput(1.2, "Gbits/sec"); got != 1200 {
		t.Fatal("unexpected value", got)
	}
	if got := tunbench.NormalizeThroughput(94.1, "Mbits/sec"); got != 94.1 {
		t.Fatal("unexpected value", got)
	}
}

const topOutput = `top - 10:00:00 up 1 day,  1 user,  load average: 0.00, 0.00, 0.00
%Cpu(s):  9.0 us,  1.0 sy,  0.0 ni, 90.0 id,  0.0 wa,  0.0 hi,  0.0 si,  0.0 st
top - 10:00:03 up 1 day,  1 user,  load average: 0.00, 0.00, 0.00
%Cpu(s):  2,5 us,  1,5 sy,  0,0 ni, 96,0 id,  0,0 wa,  0,0 hi,  0,0 si,  0,0 st
`

const freeOutput = `               total        used        free      shared  buff/cache   available
Mem:            2000         500        1000          10         500        1400
Swap:              0           0           0
`

func TestParseResources(t *testing.T) {
	if got := tunbench.ParseCPU(topOutput); got.Unwrap() != 4 {
		t.Fatal("unexpected CPU usage", got)
	}
	// top drops the separating space when a field is full width
	if got := tunbench.ParseCPU("%Cpu(s):  0.0 us,100.0 sy,  0.0 ni,  0.0 id"); got.Empty() || got.Unwrap() != 100 {
		t.Fatal("unexpected CPU usage for a saturated system", got)
	}
	if got := tunbench.ParseCPU("%Cpu(s): 12.5 us, 3.5 sy,  0.0 ni, 84.0 id"); got.Empty() || got.Unwrap() != 16 {
		t.Fatal("unexpected CPU usage", got)
	}
	if got := tunbench.ParseCPU("no summary here"); !got.Empty() {
		t.Fatal("expected empty CPU usage")
	}
	if got := tunbench.ParseMem(freeOutput); got.Unwrap() != 25 {
		t.Fatal("unexpected memory usage", got)
	}
	if got := tunbench.ParseMem("Mem: 0 0 0"); !got.Empty() {
		t.Fatal("expected empty memory usage")
	}
}

func TestResourceProbeWarnsNamingTheEndpoint(t *testing.T) {
	executor := &internal.FakeExecutor{
		Outputs: map[string]string{
			tunbench.ResourceCPUCommand: "garbage",
			tunbench.ResourceMemCommand: freeOutput,
		},
	}
	env, logger := newProbeEnv(executor)
	result := (&tunbench.ResourceProbe{}).Measure(context.Background(), env, probeRemote)
	if !result.CPU.Empty() || result.Mem.Unwrap() != 25 {
		t.Fatal("unexpected result", result)
	}
	warnings := logger.Warnings()
	if len(warnings) != 1 || !strings.Contains(warnings[0], "h2") {
		t.Fatal("unexpected warnings", warnings)
	}
}

func TestThroughputProbe(t *testing.T) {
	executor := &internal.FakeExecutor{
		Outputs: map[string]string{
			"iperf3 -c": "[  5]   0.00-10.00  sec   112 MBytes  94.1 Mbits/sec    0             sender\n",
		},
	}
	env, _ := newProbeEnv(executor)
	probe := &tunbench.ThroughputProbe{Duration: 3 * time.Second, Port: 5201, WarmUp: time.Millisecond}
	got := probe.Measure(context.Background(), env, probeLocal, probeRemote)
	if got.Unwrap() != 94.1 {
		t.Fatal("unexpected throughput", got)
	}
	expect := []string{
		"h2: iperf3 -s -1 -D -p 5201",
		"h1: iperf3 -c 10.0.1.2 -p 5201 -t 3",
	}
	if diff := cmp.Diff(expect, executor.Calls()); diff != "" {
		t.Fatal(diff)
	}
}

func TestThroughputProbeStopsServerOnFailure(t *testing.T) {
	executor := &internal.FakeExecutor{
		Errors: map[string]error{"iperf3 -c": errors.New("connection refused")},
	}
	env, _ := newProbeEnv(executor)
	probe := &tunbench.ThroughputProbe{Duration: 3 * time.Second, Port: 5201, WarmUp: time.Millisecond}
	if got := probe.Measure(context.Background(), env, probeLocal, probeRemote); !got.Empty() {
		t.Fatal("expected an empty throughput", got)
	}
	expect := []string{
		"h2: iperf3 -s -1 -D -p 5201",
		"h1: iperf3 -c 10.0.1.2 -p 5201 -t 3",
		"h2: pkill -f 'iperf3 -s -1 -D -p 5201'",
	}
	if diff := cmp.Diff(expect, executor.Calls()); diff != "" {
		t.Fatal(diff)
	}
}

func TestBulkTransferProbe(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		executor := &internal.FakeExecutor{}
		env, _ := newProbeEnv(executor)
		probe := &tunbench.BulkTransferProbe{SizeMB: 10, Port: 8080, WarmUp: time.Millisecond}
		got := probe.Measure(context.Background(), env, probeLocal, probeRemote)
		if got.Empty() {
			t.Fatal("expected a transfer time")
		}
		expect := []string{
			"h2: dd if=/dev/zero of=/tmp/largefile bs=1M count=10",
			"h2: nohup python3 -m http.server 8080 --directory /tmp >/dev/null 2>&1 &",
			"h1: wget -q -O /dev/null http://10.0.1.2:8080/largefile",
			"h2: rm -f /tmp/largefile",
			"h2: pkill -f 'http.server 8080'",
		}
		if diff := cmp.Diff(expect, executor.Calls()); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("download failure still cleans up", func(t *testing.T) {
		executor := &internal.FakeExecutor{
			Errors: map[string]error{"wget": errors.New("connection refused")},
		}
		env, logger := newProbeEnv(executor)
		probe := &tunbench.BulkTransferProbe{WarmUp: time.Millisecond}
		got := probe.Measure(context.Background(), env, probeLocal, probeRemote)
		if !got.Empty() {
			t.Fatal("expected empty transfer time")
		}
		calls := executor.Calls()
		if len(calls) != 5 || !strings.HasPrefix(calls[4], "h2: pkill") {
			t.Fatal("unexpected calls", calls)
		}
		if len(logger.Warnings()) != 1 {
			t.Fatal("expected a warning")
		}
	})
}

func TestPipelineMeasure(t *testing.T) {
	executor := &internal.FakeExecutor{
		Outputs: map[string]string{
			"ping":                      pingOutput,
			"iperf3 -c":                 "[  5]   0.00-10.00  sec  1.40 GBytes  1.2 Gbits/sec    0             sender\n",
			tunbench.ResourceCPUCommand: topOutput,
			tunbench.ResourceMemCommand: freeOutput,
		},
	}
	env, _ := newProbeEnv(executor)
	pipeline := tunbench.NewPipeline(env)
	pipeline.Bulk.WarmUp = time.Millisecond
	pipeline.Throughput.WarmUp = time.Millisecond

	m := tunbench.NewMeasurement(tunbench.ProtocolPPTP, 1, "x")
	pipeline.Measure(context.Background(), probeLocal, probeRemote, m)

	if m.LatencyAvg.Unwrap() != 15 || m.Jitter.Unwrap() != 7.5 {
		t.Fatal("unexpected latency")
	}
	if m.Throughput.Unwrap() != 1200 {
		t.Fatal("unexpected throughput")
	}
	if m.FileTransferTime.Empty() {
		t.Fatal("expected a transfer time")
	}
	if m.CPUUsageLocal.Unwrap() != 4 || m.MemUsageRemote.Unwrap() != 25 {
		t.Fatal("unexpected resources")
	}
	if !m.ConnectionTime.Empty() {
		t.Fatal("the pipeline should not touch the connection time")
	}

	// probes must run in this exact order
	var order []string
	for _, call := range executor.Calls() {
		order = append(order, strings.Fields(call)[1])
	}
	expect := []string{"ping", "iperf3", "iperf3", "dd", "nohup", "wget", "rm", "pkill", "top", "free", "top", "free"}
	if diff := cmp.Diff(expect, order); diff != "" {
		t.Fatal(diff)
	}
}

func TestProbeTimeoutYieldsEmptyValue(t *testing.T) {
	executor := &blockingExecutor{}
	env := &tunbench.ProbeEnv{
		CallTimeout: 20 * time.Millisecond,
		Executor:    executor,
		Logger:      &internal.RecordingLogger{},
	}
	result := (&tunbench.LatencyProbe{Count: 1}).Measure(context.Background(), env, probeLocal, probeRemote)
	if !result.Avg.Empty() || !result.PacketLoss.Empty() {
		t.Fatal("expected empty values")
	}
}

// blockingExecutor blocks until the context is done.
type blockingExecutor struct{}

func (be *blockingExecutor) Run(ctx context.Context, endpoint, cmdline string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}
