package suites

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mdtb/wifitest/pkg/aware"
	"github.com/mdtb/wifitest/pkg/device"
	"github.com/mdtb/wifitest/pkg/harness"
	"github.com/mdtb/wifitest/pkg/results"
	"github.com/mdtb/wifitest/pkg/stats"
)

const (
	awareSnippet        = "aware"
	defaultAwareService = "GoogleTestServiceX"
	oobPassphrase       = "Some super secret password"
)

func init() {
	harness.Register(harness.Scenario{
		Name:         "aware.discovery_latency",
		Suite:        "aware",
		Description:  "NAN service discovery latency across discovery window profiles",
		MinDevices:   2,
		RequiresRoot: true,
		Timeout:      30 * time.Minute,
		Run:          runAwareDiscoveryLatency,
	})
	harness.Register(harness.Scenario{
		Name:         "aware.sync_latency",
		Suite:        "aware",
		Description:  "NAN cluster synchronization latency across startup offsets",
		MinDevices:   2,
		RequiresRoot: true,
		Timeout:      45 * time.Minute,
		Run:          runAwareSyncLatency,
	})
	harness.Register(harness.Scenario{
		Name:        "aware.datapath_inband",
		Suite:       "aware",
		Description: "NDP over in-band discovery: link bring-up, ping and iperf3 throughput",
		MinDevices:  2,
		Run:         runAwareDatapathInBand,
	})
	harness.Register(harness.Scenario{
		Name:        "aware.datapath_oob",
		Suite:       "aware",
		Description: "NDP from out-of-band MAC exchange: link bring-up, ping and iperf3 throughput",
		MinDevices:  2,
		Run:         runAwareDatapathOOB,
	})
}

// awareSetup loads the aware snippet on both devices and skips the scenario
// when NAN is not usable on either one.
func awareSetup(ctx context.Context, env *harness.Env) (pub, sub *device.AndroidDevice, err error) {
	if err := ensureSnippet(ctx, env, awareSnippet, aware.SnippetPackage, aware.RuntimePermissions); err != nil {
		return nil, nil, err
	}
	for _, d := range env.Devices[:2] {
		// A failed earlier run may have left airplane mode on.
		if d.Adb.IsRoot(ctx) {
			if err := d.Adb.SetAirplaneMode(ctx, false); err != nil {
				return nil, nil, err
			}
		}
		if err := aware.WaitAvailable(ctx, d.Snippet(awareSnippet), aware.DefaultTimeout); err != nil {
			return nil, nil, harness.Skipf("aware not available on %s: %v", d.Serial, err)
		}
	}
	return env.Device(0), env.Device(1), nil
}

var awarePowerProfiles = []aware.PowerSettings{aware.PowerInteractive, aware.PowerNonInteractive}

func runAwareDiscoveryLatency(ctx context.Context, env *harness.Env) error {
	pub, sub, err := awareSetup(ctx, env)
	if err != nil {
		return err
	}
	service := env.Param("aware_service_name", defaultAwareService)
	iterations := env.ParamInt("aware_latency_iterations", 10)
	defer func() {
		_ = aware.ResetPowerSettings(ctx, pub.Adb)
		_ = aware.ResetPowerSettings(ctx, sub.Adb)
	}()

	for _, ps := range awarePowerProfiles {
		for _, d := range []*device.AndroidDevice{pub, sub} {
			if err := aware.SetPowerSettings(ctx, d.Adb, ps); err != nil {
				return err
			}
		}
		samples, failed, err := aware.MeasureDiscoveryLatency(ctx,
			pub.Snippet(awareSnippet), sub.Snippet(awareSnippet),
			aware.LatencyConfig{
				ServiceName:        service,
				Iterations:         iterations,
				UnsolicitedPassive: true,
			})
		if err != nil {
			return err
		}
		name := fmt.Sprintf("discovery_latency_dw24_%d_dw5_%d", ps.DW24GHz, ps.DW5GHz)
		env.Record.Samples(name, "ms", samples, failed)
		env.Log.Info("discovery latency measured",
			"dw24", ps.DW24GHz, "dw5", ps.DW5GHz,
			"samples", len(samples), "failed", failed)
	}
	return nil
}

func runAwareSyncLatency(ctx context.Context, env *harness.Env) error {
	pub, sub, err := awareSetup(ctx, env)
	if err != nil {
		return err
	}
	service := env.Param("aware_service_name", defaultAwareService)
	iterations := env.ParamInt("aware_sync_iterations", 5)
	maxOffset := env.ParamInt("aware_sync_max_offset_s", 4)
	defer func() {
		_ = aware.ResetPowerSettings(ctx, pub.Adb)
		_ = aware.ResetPowerSettings(ctx, sub.Adb)
	}()

	for _, ps := range awarePowerProfiles {
		for _, d := range []*device.AndroidDevice{pub, sub} {
			if err := aware.SetPowerSettings(ctx, d.Adb, ps); err != nil {
				return err
			}
		}
		for offset := 0; offset <= maxOffset; offset++ {
			samples, failed, err := aware.MeasureSyncLatency(ctx,
				pub.Snippet(awareSnippet), sub.Snippet(awareSnippet),
				aware.SyncLatencyConfig{
					ServiceName:        service,
					Iterations:         iterations,
					UnsolicitedPassive: true,
					StartupOffset:      time.Duration(offset) * time.Second,
				})
			if err != nil {
				return err
			}
			name := fmt.Sprintf("sync_latency_dw24_%d_dw5_%d_offset_%d",
				ps.DW24GHz, ps.DW5GHz, offset)
			env.Record.Samples(name, "ms", samples, failed)
			env.Log.Info("sync latency measured",
				"dw24", ps.DW24GHz, "dw5", ps.DW5GHz, "offset_s", offset,
				"samples", len(samples), "failed", failed)
		}
	}
	return nil
}

func runAwareDatapathInBand(ctx context.Context, env *harness.Env) error {
	pub, sub, err := awareSetup(ctx, env)
	if err != nil {
		return err
	}
	pubC, subC := pub.Snippet(awareSnippet), sub.Snippet(awareSnippet)
	service := env.Param("aware_service_name", defaultAwareService)
	defer func() {
		_ = aware.CloseAllSessions(ctx, pubC)
		_ = aware.CloseAllSessions(ctx, subC)
	}()

	path, err := aware.EstablishInBand(ctx, pubC, subC,
		aware.PublishConfig{ServiceName: service, Type: aware.PublishUnsolicited},
		aware.SubscribeConfig{ServiceName: service, Type: aware.SubscribePassive})
	if err != nil {
		return err
	}
	defer aware.TeardownDataPath(ctx, pubC, subC, path)
	return measureDataPath(ctx, env, "ndp_inband", pub, sub, path)
}

func runAwareDatapathOOB(ctx context.Context, env *harness.Env) error {
	initiator, responder, err := awareSetup(ctx, env)
	if err != nil {
		return err
	}
	initC, respC := initiator.Snippet(awareSnippet), responder.Snippet(awareSnippet)
	defer func() {
		_ = aware.CloseAllSessions(ctx, initC)
		_ = aware.CloseAllSessions(ctx, respC)
	}()

	initSession, initMac, err := aware.AttachWithIdentity(ctx, initC)
	if err != nil {
		return fmt.Errorf("initiator: %w", err)
	}
	respSession, respMac, err := aware.AttachWithIdentity(ctx, respC)
	if err != nil {
		return fmt.Errorf("responder: %w", err)
	}
	// Both sides must be in one cluster before an OOB request can resolve
	// the peer MAC.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(aware.ClusterSettleTime):
	}

	path, err := aware.EstablishOutOfBand(ctx, initC, respC,
		initSession, initMac, respSession, respMac, oobPassphrase, "")
	if err != nil {
		return err
	}
	defer aware.TeardownDataPath(ctx, initC, respC, path)
	return measureDataPath(ctx, env, "ndp_oob", responder, initiator, path)
}

// measureDataPath pings the remote side of an established NDP and runs an
// iperf3 transfer from the initiator to the responder, recording both.
func measureDataPath(ctx context.Context, env *harness.Env, prefix string, responder, initiator *device.AndroidDevice, path *aware.DataPath) error {
	extra := []results.KV{
		{Key: "channel_mhz", Value: strconv.Itoa(path.Channel())},
		{Key: "interface", Value: path.Initiator.InterfaceName},
	}

	pingCount := env.ParamInt("ndp_ping_count", 10)
	ping, err := aware.Ping6(ctx, initiator.Adb, pingCount, pingDest(path))
	if err != nil {
		return fmt.Errorf("pinging over %s: %w", path.Initiator.InterfaceName, err)
	}
	env.Record.Add(results.Measurement{
		Name: prefix + "_ping_rtt",
		Unit: "ms",
		Summary: stats.Summary{
			Count:  ping.Received,
			Min:    ping.MinMs,
			Max:    ping.MaxMs,
			Mean:   ping.AvgMs,
			StdDev: ping.MdevMs,
		},
		FailedIterations: ping.Transmitted - ping.Received,
		Extra:            extra,
	})

	if err := aware.StartIperfServer(ctx, responder.Adb); err != nil {
		return err
	}
	defer func() { _ = aware.StopIperfServer(ctx, responder.Adb) }()
	tp, err := aware.RunIperfClient(ctx, initiator.Adb, pingDest(path))
	if err != nil {
		return err
	}
	env.Record.Samples(prefix+"_throughput_tx_mbps", "mbps", []float64{tp.TxMbps}, 0)
	env.Record.Samples(prefix+"_throughput_rx_mbps", "mbps", []float64{tp.RxMbps}, 0)
	env.Log.Info("data path measured", "prefix", prefix,
		"channel_mhz", path.Channel(), "tx_mbps", tp.TxMbps, "rx_mbps", tp.RxMbps,
		"avg_rtt_ms", ping.AvgMs)
	return nil
}

// pingDest is the responder's link-local address scoped to the initiator's
// aware interface.
func pingDest(path *aware.DataPath) string {
	return path.Initiator.PeerIPv6 + "%" + path.Initiator.InterfaceName
}
