package connection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mdtb/wifitest/internal/snippet"
)

// RegisterNetworkCallback registers a network callback matching req and
// returns its handler. The callback observes state changes without initiating
// a connection.
func RegisterNetworkCallback(ctx context.Context, c snippet.Caller, req NetworkRequest) (*snippet.CallbackHandler, error) {
	h, err := c.CallAsync(ctx, "connectivityRegisterNetworkCallback", req.toMap())
	if err != nil {
		return nil, fmt.Errorf("registering network callback: %w", err)
	}
	return h, nil
}

// RequestNetwork files a network request under requestID and returns the
// callback handler delivering its lifecycle events. The connection dialog it
// raises must be confirmed through the UI before onAvailable arrives.
func RequestNetwork(ctx context.Context, c snippet.Caller, requestID string, req NetworkRequest) (*snippet.CallbackHandler, error) {
	h, err := c.CallAsync(ctx, "connectivityRequestNetwork",
		requestID, req.toMap(), RequestNetworkTimeout.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("requesting network: %w", err)
	}
	return h, nil
}

// UnregisterNetwork releases the request or callback registered under
// requestID.
func UnregisterNetwork(ctx context.Context, c snippet.Caller, requestID string) error {
	_, err := c.Call(ctx, "connectivityUnregisterNetwork", requestID)
	return err
}

// eventNameFor maps a callback name to the event stream it arrives on. The
// snippet posts Lost under its own event name, everything else under
// NetworkCallback.
func eventNameFor(callback string) string {
	if callback == CallbackLost {
		return eventCallbackLost
	}
	return eventNetworkCallback
}

// WaitForCallback blocks until the network callback with the given name
// arrives.
func WaitForCallback(ctx context.Context, h *snippet.CallbackHandler, callback string, timeout time.Duration) (*snippet.Event, error) {
	e, err := h.WaitForEvent(ctx, eventNameFor(callback), func(e *snippet.Event) bool {
		return e.CallbackName() == callback
	}, timeout)
	if err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", callback, err)
	}
	return e, nil
}

// AssertNoCallback verifies the named callback does NOT arrive within the
// window. It consumes that long by construction.
func AssertNoCallback(ctx context.Context, h *snippet.CallbackHandler, callback string, window time.Duration) error {
	e, err := h.WaitForEvent(ctx, eventNameFor(callback), func(e *snippet.Event) bool {
		return e.CallbackName() == callback
	}, window)
	if errors.Is(err, snippet.ErrEventTimeout) {
		return nil
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("unexpected %s event within %v: %v", callback, window, e.Data)
}

// HasCapability reports whether the network tracked by the callback currently
// has the capability.
func HasCapability(ctx context.Context, c snippet.Caller, callbackID string, capability Capability) (bool, error) {
	raw, err := c.Call(ctx, "connectivityHasCapability", callbackID, int(capability))
	if err != nil {
		return false, fmt.Errorf("querying capability %d: %w", capability, err)
	}
	has, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("connectivityHasCapability returned %T", raw)
	}
	return has, nil
}

// WaitForCapability polls until the capability reaches the wanted presence,
// blocking on onCapabilitiesChanged between polls. Capability changes driven
// by suggestion modification can take over a minute to propagate.
func WaitForCapability(ctx context.Context, c snippet.Caller, h *snippet.CallbackHandler, capability Capability, want bool, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		has, err := HasCapability(ctx, c, h.ID(), capability)
		if err != nil {
			return err
		}
		if has == want {
			return nil
		}
		_, err = WaitForCallback(ctx, h, CallbackCapabilitiesChanged, capabilitiesChangedTimeout)
		if err != nil && !errors.Is(err, snippet.ErrEventTimeout) {
			return err
		}
	}
	return fmt.Errorf("capability %d did not become %v within %v", capability, want, timeout)
}

// WaitForAP polls scan results until an AP with the SSID and BSSID shows up.
func WaitForAP(ctx context.Context, c snippet.Caller, ssid, bssid string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		found, err := apVisible(ctx, c, ssid, bssid)
		if err != nil {
			return err
		}
		if found {
			return nil
		}
		if !time.Now().Add(scanPollInterval).Before(deadline) {
			return fmt.Errorf("ap %s (%s) not discovered within %v", ssid, bssid, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(scanPollInterval):
		}
	}
}

func apVisible(ctx context.Context, c snippet.Caller, ssid, bssid string) (bool, error) {
	raw, err := c.Call(ctx, "wifiScanAndGetResultsWithShellPermission")
	if err != nil {
		return false, fmt.Errorf("scanning: %w", err)
	}
	results, ok := raw.([]any)
	if !ok {
		return false, fmt.Errorf("scan returned %T", raw)
	}
	for _, r := range results {
		entry, ok := r.(map[string]any)
		if !ok {
			continue
		}
		if entry[keySSID] == ssid && entry[keyBSSID] == bssid {
			return true, nil
		}
	}
	return false, nil
}

// TriggerScan starts one scan under a temporarily adopted shell permission.
func TriggerScan(ctx context.Context, c snippet.Caller) error {
	if _, err := c.Call(ctx, "utilityAdoptShellPermission"); err != nil {
		return fmt.Errorf("adopting shell permission: %w", err)
	}
	_, scanErr := c.Call(ctx, "wifiStartScan")
	if _, err := c.Call(ctx, "utilityDropShellPermission"); err != nil && scanErr == nil {
		return fmt.Errorf("dropping shell permission: %w", err)
	}
	if scanErr != nil {
		return fmt.Errorf("starting scan: %w", scanErr)
	}
	return nil
}

// IsScanThrottleEnabled reports the platform scan throttle state.
func IsScanThrottleEnabled(ctx context.Context, c snippet.Caller) (bool, error) {
	raw, err := c.Call(ctx, "wifiIsScanThrottleEnabled")
	if err != nil {
		return false, err
	}
	enabled, _ := raw.(bool)
	return enabled, nil
}

// SetScanThrottle enables or disables the platform scan throttle.
func SetScanThrottle(ctx context.Context, c snippet.Caller, enabled bool) error {
	_, err := c.Call(ctx, "wifiSetScanThrottleState", enabled)
	return err
}

// FactoryReset clears all Wi-Fi state on the device.
func FactoryReset(ctx context.Context, c snippet.Caller) error {
	if _, err := c.Call(ctx, "wifiFactoryReset"); err != nil {
		return fmt.Errorf("wifi factory reset: %w", err)
	}
	_, err := c.Call(ctx, "wifiToggleEnable")
	return err
}

// ClearConfiguredNetworks removes all saved networks.
func ClearConfiguredNetworks(ctx context.Context, c snippet.Caller) error {
	_, err := c.Call(ctx, "wifiClearConfiguredNetworks")
	return err
}

// BringToForeground raises the snippet activity so its connection dialogs are
// visible.
func BringToForeground(ctx context.Context, c snippet.Caller) error {
	_, err := c.Call(ctx, "utilityBringToForeground")
	return err
}

// CurrentConnection returns the SSID and BSSID of the current connection.
func CurrentConnection(ctx context.Context, c snippet.Caller) (ssid, bssid string, err error) {
	raw, err := c.Call(ctx, "wifiGetCurrentConnectionInfo")
	if err != nil {
		return "", "", fmt.Errorf("querying connection info: %w", err)
	}
	info, ok := raw.(map[string]any)
	if !ok {
		return "", "", fmt.Errorf("connection info is %T", raw)
	}
	ssid, _ = info["ssid"].(string)
	bssid, _ = info["bssid"].(string)
	return ssid, bssid, nil
}

// VerifyConnectedTo checks the current connection against the expected AP.
func VerifyConnectedTo(ctx context.Context, c snippet.Caller, ssid, bssid string) error {
	gotSSID, gotBSSID, err := CurrentConnection(ctx, c)
	if err != nil {
		return err
	}
	if gotSSID != ssid {
		return fmt.Errorf("connected to ssid %q, want %q", gotSSID, ssid)
	}
	if bssid != "" && gotBSSID != bssid {
		return fmt.Errorf("connected to bssid %q, want %q", gotBSSID, bssid)
	}
	return nil
}
