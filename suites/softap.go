package suites

import (
	"context"
	"fmt"
	"time"

	"github.com/mdtb/wifitest/internal/snippet"
	"github.com/mdtb/wifitest/pkg/device"
	"github.com/mdtb/wifitest/pkg/harness"
	"github.com/mdtb/wifitest/pkg/softap"
)

const wifiSnippet = "wifi"

func init() {
	harness.Register(harness.Scenario{
		Name:        "softap.tether_matrix",
		Suite:       "softap",
		Description: "SoftAP bring-up and station connect across band and security combinations",
		MinDevices:  2,
		Timeout:     30 * time.Minute,
		Run:         runSoftApTetherMatrix,
	})
	harness.Register(harness.Scenario{
		Name:        "softap.hidden_ssid",
		Suite:       "softap",
		Description: "hidden SoftAP stays out of scan results but accepts a directed connect",
		MinDevices:  2,
		Run:         runSoftApHiddenSSID,
	})
	harness.Register(harness.Scenario{
		Name:        "softap.client_count",
		Suite:       "softap",
		Description: "connected-clients callback tracks a station joining and leaving",
		MinDevices:  2,
		Run:         runSoftApClientCount,
	})
	harness.Register(harness.Scenario{
		Name:        "softap.ap_client_ping",
		Suite:       "softap",
		Description: "SoftAP host and its station reach each other over IPv4",
		MinDevices:  2,
		Run:         runSoftApClientPing,
	})
	harness.Register(harness.Scenario{
		Name:        "softap.two_clients_ping",
		Suite:       "softap",
		Description: "two stations on one SoftAP reach each other over IPv4",
		MinDevices:  3,
		Timeout:     20 * time.Minute,
		Run:         runSoftApTwoClientsPing,
	})
	harness.Register(harness.Scenario{
		Name:        "softap.auto_shutoff",
		Suite:       "softap",
		Description: "idle SoftAP shuts itself off within the platform timeout",
		MinDevices:  1,
		Timeout:     20 * time.Minute,
		Run:         runSoftApAutoShutoff,
	})
}

func softApSetup(ctx context.Context, env *harness.Env) (ap, station *device.AndroidDevice, err error) {
	if err := ensureSnippet(ctx, env, wifiSnippet, softap.SnippetPackage, nil); err != nil {
		return nil, nil, err
	}
	if len(env.Devices) > 1 {
		return env.Device(0), env.Device(1), nil
	}
	return env.Device(0), nil, nil
}

// stopAndReset returns both sides to a clean slate between matrix entries.
func stopAndReset(ctx context.Context, ap, station *device.AndroidDevice) error {
	if station != nil {
		if err := softap.ResetWifi(ctx, station.Snippet(wifiSnippet)); err != nil {
			return fmt.Errorf("resetting station wifi: %w", err)
		}
	}
	return softap.StopTethering(ctx, ap.Snippet(wifiSnippet))
}

func runSoftApTetherMatrix(ctx context.Context, env *harness.Env) error {
	ap, station, err := softApSetup(ctx, env)
	if err != nil {
		return err
	}
	apC, stC := ap.Snippet(wifiSnippet), station.Snippet(wifiSnippet)
	scanTries := env.ParamInt("softap_scan_tries", 3)

	bands := []softap.Band{softap.Band2G, softap.Band5G}
	securities := []softap.Security{
		softap.SecurityWPA2,
		softap.SecurityWPA3SAETransition,
		softap.SecurityWPA3SAE,
	}
	for _, band := range bands {
		for _, security := range securities {
			cfg := softap.RandomConfig(band)
			cfg.Security = security
			env.Log.Info("starting tether combination", "band", band, "security", security, "ssid", cfg.SSID)

			if err := softap.StartTethering(ctx, apC, cfg); err != nil {
				return fmt.Errorf("band %d security %s: %w", band, security, err)
			}
			found, err := softap.ScanForSSID(ctx, stC, cfg.SSID, scanTries)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("ap %s (band %d, %s) never appeared in scans", cfg.SSID, band, security)
			}
			if err := softap.Connect(ctx, stC, cfg); err != nil {
				return fmt.Errorf("connecting to %s: %w", cfg.SSID, err)
			}
			if err := stopAndReset(ctx, ap, station); err != nil {
				return err
			}
		}
	}
	return nil
}

func runSoftApHiddenSSID(ctx context.Context, env *harness.Env) error {
	ap, station, err := softApSetup(ctx, env)
	if err != nil {
		return err
	}
	apC, stC := ap.Snippet(wifiSnippet), station.Snippet(wifiSnippet)

	cfg := softap.RandomConfig(softap.Band2G)
	cfg.Hidden = true
	if err := softap.StartTethering(ctx, apC, cfg); err != nil {
		return err
	}
	defer func() { _ = stopAndReset(ctx, ap, station) }()

	found, err := softap.ScanForSSID(ctx, stC, cfg.SSID, env.ParamInt("softap_scan_tries", 3))
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("hidden ap %s showed up in scan results", cfg.SSID)
	}
	return softap.Connect(ctx, stC, cfg)
}

func runSoftApClientCount(ctx context.Context, env *harness.Env) error {
	ap, station, err := softApSetup(ctx, env)
	if err != nil {
		return err
	}
	apC, stC := ap.Snippet(wifiSnippet), station.Snippet(wifiSnippet)

	cfg := softap.RandomConfig(softap.Band2G)
	if err := softap.StartTethering(ctx, apC, cfg); err != nil {
		return err
	}
	defer func() { _ = stopAndReset(ctx, ap, station) }()

	clients, err := softap.TrackConnectedClients(ctx, apC)
	if err != nil {
		return err
	}
	defer func() { _ = softap.StopTrackingConnectedClients(ctx, apC, clients) }()

	if err := softap.Connect(ctx, stC, cfg); err != nil {
		return err
	}
	if err := softap.WaitConnectedClients(ctx, clients, 1, softap.CallbackTimeout); err != nil {
		return fmt.Errorf("station join not reported: %w", err)
	}
	// The synchronous count must agree with the callback.
	if n, err := softap.ConnectedClientsCount(ctx, apC); err != nil {
		return err
	} else if n != 1 {
		return fmt.Errorf("ap reports %d connected clients, want 1", n)
	}
	if err := softap.ResetWifi(ctx, stC); err != nil {
		return err
	}
	if err := softap.WaitConnectedClients(ctx, clients, 0, softap.CallbackTimeout); err != nil {
		return fmt.Errorf("station leave not reported: %w", err)
	}
	return nil
}

// stationIPv4 waits for the station's DHCP lease to show up on wlan0.
func stationIPv4(ctx context.Context, c snippet.Caller) (string, error) {
	for tries := 0; ; tries++ {
		addrs, err := softap.IPv4Addresses(ctx, c, "wlan0")
		if err != nil {
			return "", err
		}
		if len(addrs) > 0 {
			return addrs[0], nil
		}
		if tries >= 5 {
			return "", fmt.Errorf("no IPv4 address on wlan0 after %d tries", tries)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func pingFrom(ctx context.Context, d *device.AndroidDevice, dest string) error {
	out, err := d.Adb.Ping(ctx, 10, dest)
	if err != nil {
		return fmt.Errorf("%s cannot reach %s: %w (%s)", d.Serial, dest, err, out)
	}
	return nil
}

func runSoftApClientPing(ctx context.Context, env *harness.Env) error {
	ap, station, err := softApSetup(ctx, env)
	if err != nil {
		return err
	}
	apC, stC := ap.Snippet(wifiSnippet), station.Snippet(wifiSnippet)

	cfg := softap.RandomConfig(softap.Band2G)
	if err := softap.StartTethering(ctx, apC, cfg); err != nil {
		return err
	}
	defer func() { _ = stopAndReset(ctx, ap, station) }()
	if err := softap.Connect(ctx, stC, cfg); err != nil {
		return err
	}

	// The AP-side interface depends on the device's concurrency support.
	apIface := env.Param("softap_ap_iface", "wlan0")
	hostAddrs, err := softap.IPv4Addresses(ctx, apC, apIface)
	if err != nil {
		return err
	}
	if len(hostAddrs) == 0 {
		return fmt.Errorf("no IPv4 address on AP interface %s", apIface)
	}
	clientAddr, err := stationIPv4(ctx, stC)
	if err != nil {
		return err
	}

	if env.Param("softap_expect_11ax", "") != "" {
		standard, err := softap.ConnectionStandard(ctx, stC)
		if err != nil {
			return err
		}
		if standard != softap.WifiStandard11AX {
			return fmt.Errorf("station connected with wifi standard %d, want %d", standard, softap.WifiStandard11AX)
		}
	}

	if err := pingFrom(ctx, station, hostAddrs[0]); err != nil {
		return err
	}
	return pingFrom(ctx, ap, clientAddr)
}

func runSoftApTwoClientsPing(ctx context.Context, env *harness.Env) error {
	ap, _, err := softApSetup(ctx, env)
	if err != nil {
		return err
	}
	apC := ap.Snippet(wifiSnippet)
	first, second := env.Device(1), env.Device(2)

	for _, band := range []softap.Band{softap.Band2G, softap.Band5G} {
		cfg := softap.RandomConfig(band)
		if err := softap.StartTethering(ctx, apC, cfg); err != nil {
			return fmt.Errorf("band %d: %w", band, err)
		}

		var addrs [2]string
		for i, st := range []*device.AndroidDevice{first, second} {
			stC := st.Snippet(wifiSnippet)
			if err := softap.Connect(ctx, stC, cfg); err != nil {
				return fmt.Errorf("band %d, station %s: %w", band, st.Serial, err)
			}
			if addrs[i], err = stationIPv4(ctx, stC); err != nil {
				return err
			}
		}

		if err := pingFrom(ctx, first, addrs[1]); err != nil {
			return err
		}
		if err := pingFrom(ctx, second, addrs[0]); err != nil {
			return err
		}
		env.Log.Info("stations reached each other", "band", band)

		for _, st := range []*device.AndroidDevice{first, second} {
			if err := softap.ResetWifi(ctx, st.Snippet(wifiSnippet)); err != nil {
				return err
			}
		}
		if err := softap.StopTethering(ctx, apC); err != nil {
			return err
		}
	}
	return nil
}

func runSoftApAutoShutoff(ctx context.Context, env *harness.Env) error {
	ap, _, err := softApSetup(ctx, env)
	if err != nil {
		return err
	}
	apC := ap.Snippet(wifiSnippet)

	cfg := softap.RandomConfig(softap.BandAny)
	if err := softap.StartTethering(ctx, apC, cfg); err != nil {
		return err
	}
	defer func() { _ = softap.StopTethering(ctx, apC) }()

	// The platform default idle timeout is 10 minutes; the parameter leaves
	// headroom on top.
	deadline := time.Duration(env.ParamInt("softap_shutoff_timeout_s", 660)) * time.Second
	start := time.Now()
	for {
		up, err := softap.IsApEnabled(ctx, apC)
		if err != nil {
			return err
		}
		if !up {
			env.Record.Samples("auto_shutoff_seconds", "s",
				[]float64{time.Since(start).Seconds()}, 0)
			return nil
		}
		if time.Since(start) > deadline {
			return fmt.Errorf("ap still up after %v without clients", deadline)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(15 * time.Second):
		}
	}
}
