package tunbench

//
// Link fluctuation engine
//

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// FluctuationConfig contains config for [StartFluctuation]. Make sure
// you initialize all the fields marked as MANDATORY.
type FluctuationConfig struct {
	// CallTimeout is the OPTIONAL timeout for each emulator call. When
	// zero, we use [DefaultCallTimeout].
	CallTimeout time.Duration

	// Duration is the MANDATORY overall duration of the schedule.
	Duration time.Duration

	// Interval is the MANDATORY interval between two updates.
	Interval time.Duration

	// Logger is the MANDATORY logger.
	Logger Logger

	// Rand is the OPTIONAL random number generator. When nil, we
	// use a generator seeded with the current time.
	Rand *rand.Rand
}

// Bounds of the sampled link impairments.
const (
	FluctuationMinBandwidthMbps = 10
	FluctuationMaxBandwidthMbps = 1000
	FluctuationMinDelayMillis   = 1
	FluctuationMaxDelayMillis   = 200
	FluctuationMinLossPercent   = 0
	FluctuationMaxLossPercent   = 15
)

// SampleLinkParams draws new [LinkParams] uniformly within the
// fluctuation bounds (inclusive, integer steps).
func SampleLinkParams(rnd *rand.Rand) LinkParams {
	bw := FluctuationMinBandwidthMbps + rnd.Intn(FluctuationMaxBandwidthMbps-FluctuationMinBandwidthMbps+1)
	delay := FluctuationMinDelayMillis + rnd.Intn(FluctuationMaxDelayMillis-FluctuationMinDelayMillis+1)
	loss := FluctuationMinLossPercent + rnd.Intn(FluctuationMaxLossPercent-FluctuationMinLossPercent+1)
	return LinkParams{
		BandwidthMbps: float64(bw),
		Delay:         time.Duration(delay) * time.Millisecond,
		LossPercent:   float64(loss),
	}
}

// FluctuationHandle controls a running fluctuation schedule. The zero
// value is invalid; use [StartFluctuation] to create one.
type FluctuationHandle struct {
	// cancel stops the background goroutine.
	cancel context.CancelFunc

	// closeOnce provides "once" semantics for Stop.
	closeOnce sync.Once

	// done is closed when the background goroutine has terminated.
	done chan any

	// ticks counts the applied updates.
	ticks *atomic.Int64
}

// StartFluctuation spawns a goroutine that, every interval and until
// the duration elapses, replaces the params of every link owned by the
// writer and applies them through the emulator. Emulator failures are
// logged and the link is skipped for that tick.
//
// You MUST call [FluctuationHandle.Stop] when done, even if the schedule
// may already have expired, to join the background goroutine.
func StartFluctuation(
	ctx context.Context,
	writer *LinkWriter,
	emulator LinkConfigurer,
	config *FluctuationConfig,
) *FluctuationHandle {
	ctx, cancel := context.WithTimeout(ctx, config.Duration)
	rnd := config.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	h := &FluctuationHandle{
		cancel:    cancel,
		closeOnce: sync.Once{},
		done:      make(chan any),
		ticks:     &atomic.Int64{},
	}
	go h.loop(ctx, writer, emulator, config, rnd)
	return h
}

// loop is the loop that periodically perturbs the links.
func (h *FluctuationHandle) loop(
	ctx context.Context,
	writer *LinkWriter,
	emulator LinkConfigurer,
	config *FluctuationConfig,
	rnd *rand.Rand,
) {
	defer close(h.done)

	logger := config.Logger
	logger.Infof("tunbench: fluctuation started (interval=%s duration=%s)", config.Interval, config.Duration)
	defer logger.Infof("tunbench: fluctuation stopped after %d updates", h.ticks.Load())

	ticker := time.NewTicker(config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			h.apply(ctx, writer, emulator, config, rnd)
		}
	}
}

// apply samples and applies new params to each link.
func (h *FluctuationHandle) apply(
	ctx context.Context,
	writer *LinkWriter,
	emulator LinkConfigurer,
	config *FluctuationConfig,
	rnd *rand.Rand,
) {
	for _, lnk := range writer.Links() {
		params := SampleLinkParams(rnd)
		if err := configureLinkWithTimeout(ctx, emulator, lnk, params, config.CallTimeout); err != nil {
			config.Logger.Warnf("tunbench: fluctuation: %s: %s", lnk.Name, err.Error())
			continue
		}
		writer.SetParams(lnk, params)
	}
	h.ticks.Add(1)
	config.Logger.Debugf("tunbench: fluctuation: applied update #%d", h.ticks.Load())
}

// configureLinkWithTimeout calls ConfigureLink bounded by timeout or
// by [DefaultCallTimeout] when timeout is zero.
func configureLinkWithTimeout(
	ctx context.Context,
	emulator LinkConfigurer,
	lnk *Link,
	params LinkParams,
	timeout time.Duration,
) error {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return emulator.ConfigureLink(ctx, lnk, params)
}

// Done returns a channel closed when the schedule has terminated.
func (h *FluctuationHandle) Done() <-chan any {
	return h.done
}

// Ticks returns the number of updates applied so far.
func (h *FluctuationHandle) Ticks() int64 {
	return h.ticks.Load()
}

// Stop interrupts the schedule and waits for the background goroutine.
func (h *FluctuationHandle) Stop() {
	h.closeOnce.Do(func() {
		h.cancel()
		<-h.done
	})
}
