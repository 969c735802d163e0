package aware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mdtb/wifitest/internal/snippet"
)

// LatencyConfig drives a discovery latency measurement: a long-lived
// publisher and a fresh subscriber per iteration.
type LatencyConfig struct {
	ServiceName string
	Iterations  int
	// UnsolicitedPassive selects unsolicited publish with passive subscribe;
	// false selects solicited publish with active subscribe.
	UnsolicitedPassive bool
	// DiscoveryTimeout bounds each iteration's wait for the publisher.
	DiscoveryTimeout time.Duration
	// SettleTime lets the publisher reach steady state before sampling.
	// Negative disables the wait; zero means the platform default.
	SettleTime time.Duration
}

func (c LatencyConfig) discoveryTypes() (PublishType, SubscribeType) {
	if c.UnsolicitedPassive {
		return PublishUnsolicited, SubscribePassive
	}
	return PublishSolicited, SubscribeActive
}

// sessionTimestamp reads the device-side timestamp of a session event. The
// device clock is authoritative for latency math; host time never mixes in.
func sessionTimestamp(e *snippet.Event) (int64, error) {
	ts, ok := e.Int(keyTimestampMs)
	if !ok {
		return 0, fmt.Errorf("event %s carries no timestamp: %v", e.Name, e.Data)
	}
	return ts, nil
}

// MeasureDiscoveryLatency publishes once and then repeatedly attaches a fresh
// subscriber, measuring the delay between subscribe start and service
// discovery on the device clock. Iterations whose discovery times out are
// counted, not fatal. Returned samples are milliseconds.
func MeasureDiscoveryLatency(ctx context.Context, pub, sub snippet.Caller, cfg LatencyConfig) (samples []float64, failed int, err error) {
	pubType, subType := cfg.discoveryTypes()
	if cfg.DiscoveryTimeout == 0 {
		cfg.DiscoveryTimeout = 10 * time.Second
	}
	if cfg.SettleTime == 0 {
		cfg.SettleTime = publishSettleTime
	}

	pubSession, err := Attach(ctx, pub)
	if err != nil {
		return nil, 0, fmt.Errorf("publisher: %w", err)
	}
	defer Detach(ctx, pub, pubSession)
	pDisc, err := Publish(ctx, pub, pubSession, PublishConfig{
		ServiceName: cfg.ServiceName,
		Type:        pubType,
	})
	if err != nil {
		return nil, 0, err
	}
	defer pDisc.Close(ctx)

	if cfg.SettleTime > 0 {
		select {
		case <-time.After(cfg.SettleTime):
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}

	for i := 0; i < cfg.Iterations; i++ {
		sample, ok, err := discoverOnce(ctx, sub, cfg.ServiceName, subType, cfg.DiscoveryTimeout)
		if err != nil {
			return samples, failed, fmt.Errorf("iteration %d: %w", i, err)
		}
		if !ok {
			failed++
			continue
		}
		samples = append(samples, sample)
	}
	return samples, failed, nil
}

// discoverOnce attaches a fresh subscriber, measures one discovery, and tears
// the subscriber down. ok is false when the discovery timed out.
func discoverOnce(ctx context.Context, sub snippet.Caller, serviceName string, subType SubscribeType, timeout time.Duration) (sample float64, ok bool, err error) {
	subSession, err := Attach(ctx, sub)
	if err != nil {
		return 0, false, fmt.Errorf("subscriber: %w", err)
	}
	defer Detach(ctx, sub, subSession)

	sDisc, err := Subscribe(ctx, sub, subSession, SubscribeConfig{
		ServiceName: serviceName,
		Type:        subType,
	})
	if err != nil {
		return 0, false, err
	}
	discovered, err := sDisc.WaitServiceDiscovered(ctx, timeout)
	if errors.Is(err, snippet.ErrEventTimeout) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	defer sDisc.Close(ctx)

	start, err := sessionTimestamp(sDisc.Started)
	if err != nil {
		return 0, false, err
	}
	end, err := sessionTimestamp(discovered)
	if err != nil {
		return 0, false, err
	}
	return float64(end - start), true, nil
}

// SyncLatencyConfig drives a synchronization latency measurement: both sides
// start fresh each iteration, with the subscriber offset behind the
// publisher, and discovery within the window stands in for cluster sync.
type SyncLatencyConfig struct {
	ServiceName        string
	Iterations         int
	UnsolicitedPassive bool
	// StartupOffset is the gap between publisher and subscriber start.
	StartupOffset time.Duration
	// TimeoutWindow is the period over which synchronization is measured.
	TimeoutWindow time.Duration
}

// MeasureSyncLatency runs the synchronization measurement and returns the
// per-iteration discovery delays in milliseconds plus the count of windows
// with no discovery at all.
func MeasureSyncLatency(ctx context.Context, pub, sub snippet.Caller, cfg SyncLatencyConfig) (samples []float64, failed int, err error) {
	pubType, subType := cfg.discoveryTypes()
	if cfg.TimeoutWindow == 0 {
		cfg.TimeoutWindow = 20 * time.Second
	}

	for i := 0; i < cfg.Iterations; i++ {
		sample, ok, err := syncOnce(ctx, pub, sub, cfg, pubType, subType)
		if err != nil {
			return samples, failed, fmt.Errorf("iteration %d: %w", i, err)
		}
		if !ok {
			failed++
			continue
		}
		samples = append(samples, sample)
	}
	return samples, failed, nil
}

func (c SyncLatencyConfig) discoveryTypes() (PublishType, SubscribeType) {
	if c.UnsolicitedPassive {
		return PublishUnsolicited, SubscribePassive
	}
	return PublishSolicited, SubscribeActive
}

func syncOnce(ctx context.Context, pub, sub snippet.Caller, cfg SyncLatencyConfig, pubType PublishType, subType SubscribeType) (sample float64, ok bool, err error) {
	pubSession, err := Attach(ctx, pub)
	if err != nil {
		return 0, false, fmt.Errorf("publisher: %w", err)
	}
	defer Detach(ctx, pub, pubSession)

	pDisc, err := Publish(ctx, pub, pubSession, PublishConfig{
		ServiceName: cfg.ServiceName,
		Type:        pubType,
	})
	if err != nil {
		return 0, false, err
	}
	defer pDisc.Close(ctx)

	if cfg.StartupOffset > 0 {
		select {
		case <-time.After(cfg.StartupOffset):
		case <-ctx.Done():
			return 0, false, ctx.Err()
		}
	}
	return discoverOnce(ctx, sub, cfg.ServiceName, subType, cfg.TimeoutWindow)
}
