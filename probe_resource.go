package tunbench

//
// Resource probe (top and free)
//

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/bassosimone/tunbench/optional"
)

// Commands run by the [ResourceProbe].
const (
	ResourceCPUCommand = "top -bn2"
	ResourceMemCommand = "free -m"
)

// ResourceProbe samples the CPU and memory usage of an endpoint.
type ResourceProbe struct{}

// ResourceResult is the result of a [ResourceProbe].
type ResourceResult struct {
	CPU optional.Value[float64]
	Mem optional.Value[float64]
}

var (
	// regexpCPUUser matches the user time of a top summary line.
	regexpCPUUser = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*us`)

	// regexpCPUSystem matches the system time of a top summary line.
	regexpCPUSystem = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*sy`)
)

// Measure samples the given endpoint. Parse failures produce empty
// values and a warning naming the endpoint.
func (p *ResourceProbe) Measure(ctx context.Context, env *ProbeEnv, ep Endpoint) *ResourceResult {
	result := &ResourceResult{CPU: optional.None[float64](), Mem: optional.None[float64]()}

	if output, err := env.run(ctx, ep.Name, ResourceCPUCommand); err != nil {
		env.Logger.Warnf("tunbench: resource: %s: %s", ep.Name, err.Error())
	} else if result.CPU = ParseCPU(output); result.CPU.Empty() {
		env.Logger.Warnf("tunbench: resource: %s: cannot parse CPU usage", ep.Name)
	}

	if output, err := env.run(ctx, ep.Name, ResourceMemCommand); err != nil {
		env.Logger.Warnf("tunbench: resource: %s: %s", ep.Name, err.Error())
	} else if result.Mem = ParseMem(output); result.Mem.Empty() {
		env.Logger.Warnf("tunbench: resource: %s: cannot parse memory usage", ep.Name)
	}

	return result
}

// ParseCPU returns user plus system CPU percentage from the last
// "Cpu(s)" line of top output. Decimal commas are accepted.
func ParseCPU(output string) optional.Value[float64] {
	var last string
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "Cpu(s)") {
			last = line
		}
	}
	if last == "" {
		return optional.None[float64]()
	}
	user, ok := parseCPUField(regexpCPUUser, last)
	if !ok {
		return optional.None[float64]()
	}
	system, ok := parseCPUField(regexpCPUSystem, last)
	if !ok {
		return optional.None[float64]()
	}
	return optional.Some(user + system)
}

// parseCPUField extracts a percentage from a top summary line.
func parseCPUField(re *regexp.Regexp, line string) (float64, bool) {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// ParseMem returns used*100/total from the "Mem:" line of free output.
func ParseMem(output string) optional.Value[float64] {
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 || fields[0] != "Mem:" {
			continue
		}
		total, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || total <= 0 {
			return optional.None[float64]()
		}
		used, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return optional.None[float64]()
		}
		return optional.Some(used * 100 / total)
	}
	return optional.None[float64]()
}
