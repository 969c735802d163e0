package suites

import (
	"context"
	"fmt"
	"time"

	"github.com/mdtb/wifitest/internal/snippet"
	"github.com/mdtb/wifitest/pkg/connection"
	"github.com/mdtb/wifitest/pkg/device"
	"github.com/mdtb/wifitest/pkg/harness"
)

// requestID for the single network session the connection scenarios hold.
const networkRequestID = "0"

func init() {
	harness.Register(harness.Scenario{
		Name:        "connection.network_request",
		Suite:       "connection",
		Description: "station connect through a WifiNetworkSpecifier request and its approval dialog",
		MinDevices:  1,
		Run:         runConnectionNetworkRequest,
	})
	harness.Register(harness.Scenario{
		Name:        "connection.network_request_pattern",
		Suite:       "connection",
		Description: "station connect through a pattern-matched WifiNetworkSpecifier",
		MinDevices:  1,
		Run:         runConnectionNetworkRequestPattern,
	})
	harness.Register(harness.Scenario{
		Name:        "connection.network_suggestion",
		Suite:       "connection",
		Description: "station connect through an approved WifiNetworkSuggestion and clean removal",
		MinDevices:  1,
		Run:         runConnectionNetworkSuggestion,
	})
	harness.Register(harness.Scenario{
		Name:        "connection.suggestion_metered_update",
		Suite:       "connection",
		Description: "in-place suggestion update flips the NOT_METERED network capability",
		MinDevices:  1,
		Timeout:     15 * time.Minute,
		Run:         runConnectionMeteredUpdate,
	})
}

// apInfo names the access point under test, supplied as testbed parameters
// because the AP is not an Android device.
type apInfo struct {
	SSID  string
	BSSID string
	PSK   string
}

func connectionSetup(ctx context.Context, env *harness.Env) (*device.AndroidDevice, snippet.Caller, *connection.UI, apInfo, error) {
	ap := apInfo{
		SSID:  env.Param("ap_ssid", ""),
		BSSID: env.Param("ap_bssid", ""),
		PSK:   env.Param("ap_psk", ""),
	}
	if ap.SSID == "" {
		return nil, nil, nil, ap, harness.Skipf("testbed has no ap_ssid parameter")
	}
	if err := ensureSnippet(ctx, env, wifiSnippet, connection.SnippetPackage, nil); err != nil {
		return nil, nil, nil, ap, err
	}
	d := env.Device(0)
	c := d.Snippet(wifiSnippet)
	ui := connection.NewUI(c, d.Adb, env.OutDir, env.Log)

	if err := d.Adb.WakeAndUnlock(ctx); err != nil {
		return nil, nil, nil, ap, err
	}
	if err := d.Adb.SetLocationHighAccuracy(ctx); err != nil {
		return nil, nil, nil, ap, err
	}
	if err := d.Adb.EnableWifiVerboseLogging(ctx); err != nil {
		return nil, nil, nil, ap, err
	}
	throttled, err := connection.IsScanThrottleEnabled(ctx, c)
	if err != nil {
		return nil, nil, nil, ap, err
	}
	if throttled {
		if err := connection.SetScanThrottle(ctx, c, false); err != nil {
			return nil, nil, nil, ap, err
		}
	}
	if err := connection.FactoryReset(ctx, c); err != nil {
		return nil, nil, nil, ap, err
	}
	if err := ui.DismissStaleDialogs(ctx); err != nil {
		return nil, nil, nil, ap, err
	}
	if err := ui.ReturnHome(ctx); err != nil {
		return nil, nil, nil, ap, err
	}
	if err := connection.BringToForeground(ctx, c); err != nil {
		return nil, nil, nil, ap, err
	}
	return d, c, ui, ap, nil
}

func connectionCleanup(ctx context.Context, c snippet.Caller) {
	_ = connection.ClearConfiguredNetworks(ctx, c)
	_ = connection.UnregisterNetwork(ctx, c, networkRequestID)
	_ = connection.RemoveConnectionStatusListener(ctx, c)
	_ = connection.RemoveApprovalStatusListener(ctx, c)
	_ = connection.RemovePostConnectionReceiver(ctx, c)
}

func runConnectionNetworkRequest(ctx context.Context, env *harness.Env) error {
	_, c, ui, ap, err := connectionSetup(ctx, env)
	if err != nil {
		return err
	}
	defer connectionCleanup(ctx, c)

	if err := connection.WaitForAP(ctx, c, ap.SSID, ap.BSSID, connection.WifiScanTimeout); err != nil {
		return err
	}
	req := connection.NetworkRequest{
		Specifier: &connection.NetworkSpecifier{
			SSID:  ap.SSID,
			BSSID: ap.BSSID,
			PSK:   ap.PSK,
		},
		RemoveCapability: connection.CapabilityInternet,
		Transport:        connection.TransportWifi,
	}
	h, err := connection.RequestNetwork(ctx, c, networkRequestID, req)
	if err != nil {
		return err
	}
	if err := ui.ClickConnectInDialog(ctx, ap.SSID); err != nil {
		return err
	}
	if _, err := connection.WaitForCallback(ctx, h, connection.CallbackAvailable, connection.RequestNetworkTimeout); err != nil {
		return err
	}
	env.Log.Info("network available through request", "ssid", ap.SSID)
	if err := connection.AssertNoCallback(ctx, h, connection.CallbackLost, connection.ContinuousCheckTimeout); err != nil {
		return err
	}
	return nil
}

func runConnectionNetworkRequestPattern(ctx context.Context, env *harness.Env) error {
	_, c, ui, ap, err := connectionSetup(ctx, env)
	if err != nil {
		return err
	}
	defer connectionCleanup(ctx, c)

	if err := connection.WaitForAP(ctx, c, ap.SSID, ap.BSSID, connection.WifiScanTimeout); err != nil {
		return err
	}
	req := connection.NetworkRequest{
		Specifier: &connection.NetworkSpecifier{
			SSIDPattern: &connection.PatternMatcher{
				Pattern: ap.SSID[:len(ap.SSID)-1],
				Type:    connection.PatternPrefix,
			},
			BSSIDPattern: &connection.BssidPattern{
				BSSID: ap.BSSID,
				Mask:  connection.BSSIDMask,
			},
			PSK: ap.PSK,
		},
		RemoveCapability: connection.CapabilityInternet,
		Transport:        connection.TransportWifi,
	}
	h, err := connection.RequestNetwork(ctx, c, networkRequestID, req)
	if err != nil {
		return err
	}
	// The dialog lists every match; picking the entry confirms it.
	if err := ui.ClickNetworkInDialog(ctx, ap.SSID); err != nil {
		return err
	}
	if _, err := connection.WaitForCallback(ctx, h, connection.CallbackAvailable, connection.RequestNetworkTimeout); err != nil {
		return err
	}
	env.Log.Info("network available through pattern request", "ssid", ap.SSID)
	return connection.AssertNoCallback(ctx, h, connection.CallbackLost, connection.ContinuousCheckTimeout)
}

func runConnectionNetworkSuggestion(ctx context.Context, env *harness.Env) error {
	_, c, ui, ap, err := connectionSetup(ctx, env)
	if err != nil {
		return err
	}
	defer connectionCleanup(ctx, c)

	if err := connection.WaitForAP(ctx, c, ap.SSID, ap.BSSID, connection.WifiScanTimeout); err != nil {
		return err
	}
	metered := false
	suggestions := []connection.NetworkSuggestion{{
		SSID:    ap.SSID,
		BSSID:   ap.BSSID,
		PSK:     ap.PSK,
		Metered: &metered,
	}}
	req := connection.NetworkRequest{Transport: connection.TransportWifi}
	h, err := connection.AddSuggestionsWithApproval(ctx, c, ui, suggestions, req)
	if err != nil {
		return err
	}
	if err := connection.TriggerScan(ctx, c); err != nil {
		return err
	}
	if _, err := connection.WaitForCallback(ctx, h, connection.CallbackAvailable, connection.RequestNetworkTimeout); err != nil {
		return err
	}
	if err := connection.VerifyConnectedTo(ctx, c, ap.SSID, ap.BSSID); err != nil {
		return err
	}
	env.Log.Info("network available through suggestion", "ssid", ap.SSID)
	return connection.RemoveSuggestionsAndWaitLost(ctx, c, suggestions, h)
}

func runConnectionMeteredUpdate(ctx context.Context, env *harness.Env) error {
	_, c, ui, ap, err := connectionSetup(ctx, env)
	if err != nil {
		return err
	}
	defer connectionCleanup(ctx, c)

	if err := connection.WaitForAP(ctx, c, ap.SSID, ap.BSSID, connection.WifiScanTimeout); err != nil {
		return err
	}
	metered := false
	suggestion := connection.NetworkSuggestion{
		SSID:    ap.SSID,
		BSSID:   ap.BSSID,
		PSK:     ap.PSK,
		Metered: &metered,
	}
	req := connection.NetworkRequest{Transport: connection.TransportWifi}
	h, err := connection.AddSuggestionsWithApproval(ctx, c, ui, []connection.NetworkSuggestion{suggestion}, req)
	if err != nil {
		return err
	}
	if err := connection.TriggerScan(ctx, c); err != nil {
		return err
	}
	if _, err := connection.WaitForCallback(ctx, h, connection.CallbackAvailable, connection.RequestNetworkTimeout); err != nil {
		return err
	}
	if err := connection.WaitForCapability(ctx, c, h,
		connection.CapabilityNotMetered, true, connection.CapabilitiesMeteredTimeout); err != nil {
		return fmt.Errorf("unmetered suggestion: %w", err)
	}

	// Re-adding the same SSID with is_metered flipped updates the suggestion
	// in place; the framework propagates it as a capability change.
	metered = true
	if err := connection.AddSuggestions(ctx, c, []connection.NetworkSuggestion{suggestion}); err != nil {
		return err
	}
	if err := connection.WaitForCapability(ctx, c, h,
		connection.CapabilityNotMetered, false, connection.CapabilitiesMeteredTimeout); err != nil {
		return fmt.Errorf("metered update: %w", err)
	}
	env.Log.Info("metered capability followed suggestion update", "ssid", ap.SSID)
	return connection.RemoveSuggestionsAndWaitLost(ctx, c, []connection.NetworkSuggestion{suggestion}, h)
}
