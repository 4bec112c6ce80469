package tunbench

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"
)

func TestSampleLinkParams(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for idx := 0; idx < 10000; idx++ {
		params := SampleLinkParams(rnd)
		if params.BandwidthMbps < FluctuationMinBandwidthMbps || params.BandwidthMbps > FluctuationMaxBandwidthMbps {
			t.Fatal("bandwidth out of bounds", params.BandwidthMbps)
		}
		if params.Delay < FluctuationMinDelayMillis*time.Millisecond || params.Delay > FluctuationMaxDelayMillis*time.Millisecond {
			t.Fatal("delay out of bounds", params.Delay)
		}
		if params.LossPercent < FluctuationMinLossPercent || params.LossPercent > FluctuationMaxLossPercent {
			t.Fatal("loss out of bounds", params.LossPercent)
		}
		if params.Delay%time.Millisecond != 0 {
			t.Fatal("delay is not an integer number of milliseconds", params.Delay)
		}
	}
}

func TestStartFluctuation(t *testing.T) {
	if testing.Short() {
		t.Skip("skip test in short mode")
	}

	topology, err := BuildTopology(DefaultTopologyConfig())
	if err != nil {
		t.Fatal(err)
	}
	writer, err := topology.ClaimWriter()
	if err != nil {
		t.Fatal(err)
	}
	initial := topology.Link("r1-r2").Params()

	configurer := newFakeConfigurer("r1-r2")
	config := &FluctuationConfig{
		CallTimeout: time.Second,
		Duration:    500 * time.Millisecond,
		Interval:    50 * time.Millisecond,
		Logger:      &NullLogger{},
		Rand:        rand.New(rand.NewSource(4)),
	}
	handle := StartFluctuation(context.Background(), writer, configurer, config)

	select {
	case <-handle.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("the schedule did not expire")
	}
	handle.Stop()

	// expect floor(duration/interval) updates give or take one, with some
	// extra slack for slow test machines
	ticks := handle.Ticks()
	if ticks < 7 || ticks > 11 {
		t.Fatal("unexpected number of ticks", ticks)
	}

	t.Run("every working link is updated once per tick", func(t *testing.T) {
		applied := configurer.Applied("h1-s1")
		if int64(len(applied)) != ticks {
			t.Fatalf("expected %d updates, got %d", ticks, len(applied))
		}
		if applied[len(applied)-1] != topology.Link("h1-s1").Params() {
			t.Fatal("the link params do not match the last applied params")
		}
	})

	t.Run("failing links are skipped", func(t *testing.T) {
		if topology.Link("r1-r2").Params() != initial {
			t.Fatal("the failing link should keep its initial params")
		}
	})
}

// deadlineConfigurer is a [LinkConfigurer] failing without a deadline.
type deadlineConfigurer struct{}

func (deadlineConfigurer) ConfigureLink(ctx context.Context, lnk *Link, params LinkParams) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("missing deadline")
	}
	return nil
}

func TestConfigureLinkDefaultTimeout(t *testing.T) {
	topology, err := BuildTopology(DefaultTopologyConfig())
	if err != nil {
		t.Fatal(err)
	}
	lnk := topology.Link("h1-s1")
	err = configureLinkWithTimeout(context.Background(), deadlineConfigurer{}, lnk, lnk.Params(), 0)
	if err != nil {
		t.Fatal(err)
	}
}

func TestFluctuationStopIsIdempotent(t *testing.T) {
	topology, err := BuildTopology(DefaultTopologyConfig())
	if err != nil {
		t.Fatal(err)
	}
	writer, err := topology.ClaimWriter()
	if err != nil {
		t.Fatal(err)
	}
	config := &FluctuationConfig{
		Duration: time.Hour,
		Interval: time.Hour,
		Logger:   &NullLogger{},
	}
	handle := StartFluctuation(context.Background(), writer, newFakeConfigurer(), config)
	handle.Stop()
	handle.Stop()
	select {
	case <-handle.Done():
	default:
		t.Fatal("expected the schedule to be done")
	}
	if handle.Ticks() != 0 {
		t.Fatal("expected no ticks")
	}
}
