// Package tunbench benchmarks L2TP and PPTP tunnels running between
// two hosts of an emulated network.
//
// The network is described by a [TopologyConfig]: hosts attach to
// switches through access links and switches (including the backbone
// routers) are joined by backbone links. Each link carries [LinkParams]
// describing its impairments. Use [BuildTopology] to validate the config
// and obtain a [Topology]. [DefaultTopologyConfig] returns the network we
// use by default, with six hosts behind four switches and two routers.
//
// An [Emulator] turns the [Topology] into a real network. The
// [NetnsEmulator] maps hosts to Linux network namespaces, switches to
// bridges and links to veth pairs shaped with tc-netem on both ends. It runs commands
// through a [Shell]: [LinuxShell] executes them, while [NopShell] only
// logs them, which is useful for dry runs.
//
// While the benchmark runs, [StartFluctuation] may periodically replace
// the params of every link with random values. Link params only change
// through the [LinkWriter] returned by [Topology.ClaimWriter], so the
// fluctuation engine is the only writer.
//
// A [Tunnel] manages the lifecycle of a tunnel between a local and a
// remote [Endpoint] by driving the tunnel daemons through a
// [DaemonControl]. Use [NewTunnel] to create the [L2TPTunnel] or the
// [PPTPTunnel]. Connecting measures the connection time.
//
// The [Pipeline] runs the probes one after the other and fills a
// [Measurement].
// Probes run external tools through an [Executor] and a probe that fails
// or whose output we cannot parse leaves its fields empty.
//
// The [Orchestrator] ties everything together: for each run and each
// protocol, it drives a [TunnelSession] through its states and appends the [Measurement] to a
// [ResultSink] such as the [CSVSink] or the [SQLiteSink]. Optionally,
// a [PCAPDumper] captures the traffic of each session.
package tunbench
