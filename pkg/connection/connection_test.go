package connection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdtb/wifitest/internal/snippet"
)

type scriptedCaller struct {
	handle    func(method string, params []any) (any, error)
	callbacks []string
}

func (s *scriptedCaller) Call(_ context.Context, method string, params ...any) (any, error) {
	return s.handle(method, params)
}

func (s *scriptedCaller) CallAsync(_ context.Context, method string, params ...any) (*snippet.CallbackHandler, error) {
	ret, err := s.handle(method, params)
	if err != nil {
		return nil, err
	}
	if len(s.callbacks) == 0 {
		return nil, errors.New("scripted caller out of callback ids")
	}
	id := s.callbacks[0]
	s.callbacks = s.callbacks[1:]
	return snippet.NewCallbackHandler(id, ret, s), nil
}

func event(name string, data map[string]any) map[string]any {
	return map[string]any{
		"callbackId":   "x",
		"name":         name,
		"creationTime": float64(time.Now().UnixMilli()),
		"data":         data,
	}
}

func TestNetworkRequestToMap(t *testing.T) {
	req := NetworkRequest{
		Specifier: &NetworkSpecifier{
			SSIDPattern:  &PatternMatcher{Pattern: "openwrt-", Type: PatternPrefix},
			BSSIDPattern: &BssidPattern{BSSID: "aa:bb:cc:dd:ee:ff", Mask: BSSIDMask},
			PSK:          "hunter22",
		},
		RemoveCapability: CapabilityInternet,
		Transport:        TransportWifi,
	}
	m := req.toMap()
	assert.Equal(t, 1, m["transport_type"])
	assert.Equal(t, 12, m["remove_capability"])
	spec := m["network_specifier"].(map[string]any)
	assert.NotContains(t, spec, "ssid")
	assert.Equal(t, "hunter22", spec["psk"])
	assert.Equal(t, map[string]any{"pattern": "openwrt-", "pattern_type": 1}, spec["ssid_pattern"])
	assert.Equal(t, map[string]any{"bssid": "aa:bb:cc:dd:ee:ff", "bssid_mask": BSSIDMask}, spec["bssid_pattern"])

	plain := NetworkRequest{Transport: TransportWifi}.toMap()
	assert.NotContains(t, plain, "network_specifier")
	assert.NotContains(t, plain, "remove_capability")
}

func TestSuggestionToMap(t *testing.T) {
	metered := false
	m := NetworkSuggestion{SSID: "openwrt-1", PSK: "hunter22", Metered: &metered}.toMap()
	assert.Equal(t, "openwrt-1", m["ssid"])
	assert.Equal(t, false, m["is_metered"])
	assert.NotContains(t, m, "bssid")
	assert.NotContains(t, m, "is_hidden_ssid")

	bare := NetworkSuggestion{SSID: "openwrt-2"}.toMap()
	assert.NotContains(t, bare, "is_metered")
}

func TestRequestNetworkFlow(t *testing.T) {
	c := &scriptedCaller{callbacks: []string{"req-0"}}
	c.handle = func(method string, params []any) (any, error) {
		switch method {
		case "connectivityRequestNetwork":
			require.Equal(t, "0", params[0])
			req := params[1].(map[string]any)
			require.Equal(t, 1, req["transport_type"])
			require.Equal(t, RequestNetworkTimeout.Milliseconds(), params[2])
			return nil, nil
		case "eventWaitAndGet":
			require.Equal(t, "req-0", params[0])
			switch params[1] {
			case eventNetworkCallback:
				return event(eventNetworkCallback, map[string]any{"callbackName": CallbackAvailable}), nil
			case eventCallbackLost:
				return nil, snippet.ErrEventTimeout
			}
		}
		t.Fatalf("unexpected rpc %s", method)
		return nil, nil
	}

	req := NetworkRequest{
		Specifier: &NetworkSpecifier{SSID: "openwrt-1", PSK: "hunter22"},
		Transport: TransportWifi,
	}
	h, err := RequestNetwork(context.Background(), c, "0", req)
	require.NoError(t, err)

	e, err := WaitForCallback(context.Background(), h, CallbackAvailable, time.Second)
	require.NoError(t, err)
	assert.Equal(t, CallbackAvailable, e.CallbackName())

	// Lost never fires, so the stability check passes.
	require.NoError(t, AssertNoCallback(context.Background(), h, CallbackLost, time.Second))
}

func TestAssertNoCallbackFails(t *testing.T) {
	c := &scriptedCaller{callbacks: []string{"cb-0"}}
	c.handle = func(method string, params []any) (any, error) {
		switch method {
		case "connectivityRegisterNetworkCallback":
			return nil, nil
		case "eventWaitAndGet":
			return event(eventCallbackLost, map[string]any{"callbackName": CallbackLost}), nil
		}
		t.Fatalf("unexpected rpc %s", method)
		return nil, nil
	}
	h, err := RegisterNetworkCallback(context.Background(), c, NetworkRequest{Transport: TransportWifi})
	require.NoError(t, err)
	err = AssertNoCallback(context.Background(), h, CallbackLost, time.Second)
	require.ErrorContains(t, err, "unexpected Lost event")
}

func TestWaitForAP(t *testing.T) {
	orig := scanPollInterval
	scanPollInterval = time.Millisecond
	defer func() { scanPollInterval = orig }()

	scans := 0
	c := &scriptedCaller{}
	c.handle = func(method string, params []any) (any, error) {
		require.Equal(t, "wifiScanAndGetResultsWithShellPermission", method)
		scans++
		if scans < 3 {
			return []any{}, nil
		}
		return []any{
			map[string]any{"SSID": "other", "BSSID": "11:22:33:44:55:66"},
			map[string]any{"SSID": "openwrt-1", "BSSID": "aa:bb:cc:dd:ee:ff"},
		}, nil
	}
	err := WaitForAP(context.Background(), c, "openwrt-1", "aa:bb:cc:dd:ee:ff", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, scans)
}

func TestSuggestionApprovalFlow(t *testing.T) {
	var calls []string
	c := &scriptedCaller{callbacks: []string{"net-0", "approval-0"}}
	c.handle = func(method string, params []any) (any, error) {
		calls = append(calls, method)
		switch method {
		case "connectivityRegisterNetworkCallback",
			"wifiAddSuggestionUserApprovalStatusListener":
			return nil, nil
		case "wifiAddNetworkSuggestions":
			list := params[0].([]any)
			require.Len(t, list, 1)
			require.Equal(t, "openwrt-1", list[0].(map[string]any)["ssid"])
			return float64(SuggestionStatusSuccess), nil
		case "uiWaitForTextExists":
			require.Equal(t, "Allow", params[0])
			return true, nil
		case "uiClickText":
			require.Equal(t, "Allow", params[0])
			return nil, nil
		case "eventWaitAndGet":
			require.Equal(t, "approval-0", params[0])
			require.Equal(t, eventUserApprovalStatusChange, params[1])
			return event(eventUserApprovalStatusChange,
				map[string]any{keyUserApprovalStatus: float64(ApprovalApprovedByUser)}), nil
		case "wifiGetNetworkSuggestions":
			return []any{map[string]any{"ssid": "openwrt-1"}}, nil
		}
		t.Fatalf("unexpected rpc %s", method)
		return nil, nil
	}

	ui := NewUI(c, nil, "", nil)
	suggestions := []NetworkSuggestion{{SSID: "openwrt-1", PSK: "hunter22"}}
	h, err := AddSuggestionsWithApproval(context.Background(), c, ui, suggestions,
		NetworkRequest{Transport: TransportWifi})
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "connectivityRegisterNetworkCallback", calls[0])
	assert.Contains(t, calls, "wifiGetNetworkSuggestions")
}

func TestAddSuggestionsStatusError(t *testing.T) {
	c := &scriptedCaller{}
	c.handle = func(method string, params []any) (any, error) {
		return float64(SuggestionStatusAddDuplicate), nil
	}
	err := AddSuggestions(context.Background(), c, []NetworkSuggestion{{SSID: "x"}})
	require.ErrorContains(t, err, "status 3")
}

func TestRemoveSuggestionsAndWaitLost(t *testing.T) {
	c := &scriptedCaller{callbacks: []string{"net-0"}}
	drained := false
	c.handle = func(method string, params []any) (any, error) {
		switch method {
		case "connectivityRegisterNetworkCallback":
			return nil, nil
		case "eventGetAll":
			drained = true
			return []any{}, nil
		case "wifiRemoveNetworkSuggestions":
			require.True(t, drained, "stale events must be drained before removal")
			return float64(SuggestionStatusSuccess), nil
		case "eventWaitAndGet":
			require.Equal(t, eventCallbackLost, params[1])
			return event(eventCallbackLost, map[string]any{"callbackName": CallbackLost}), nil
		}
		t.Fatalf("unexpected rpc %s", method)
		return nil, nil
	}
	h, err := RegisterNetworkCallback(context.Background(), c, NetworkRequest{Transport: TransportWifi})
	require.NoError(t, err)
	require.NoError(t, RemoveSuggestionsAndWaitLost(context.Background(), c,
		[]NetworkSuggestion{{SSID: "openwrt-1"}}, h))
}

func TestWaitForCapability(t *testing.T) {
	polls := 0
	c := &scriptedCaller{callbacks: []string{"net-0"}}
	c.handle = func(method string, params []any) (any, error) {
		switch method {
		case "connectivityRegisterNetworkCallback":
			return nil, nil
		case "connectivityHasCapability":
			require.Equal(t, "net-0", params[0])
			require.Equal(t, int(CapabilityNotMetered), params[1])
			polls++
			return polls > 1, nil
		case "eventWaitAndGet":
			return event(eventNetworkCallback,
				map[string]any{"callbackName": CallbackCapabilitiesChanged}), nil
		}
		t.Fatalf("unexpected rpc %s", method)
		return nil, nil
	}
	h, err := RegisterNetworkCallback(context.Background(), c, NetworkRequest{Transport: TransportWifi})
	require.NoError(t, err)
	require.NoError(t, WaitForCapability(context.Background(), c, h,
		CapabilityNotMetered, true, time.Second))
	assert.Equal(t, 2, polls)
}

func TestTriggerScanDropsPermission(t *testing.T) {
	var calls []string
	c := &scriptedCaller{}
	c.handle = func(method string, params []any) (any, error) {
		calls = append(calls, method)
		return nil, nil
	}
	require.NoError(t, TriggerScan(context.Background(), c))
	assert.Equal(t, []string{
		"utilityAdoptShellPermission", "wifiStartScan", "utilityDropShellPermission",
	}, calls)
}

func TestWaitConnectionFailure(t *testing.T) {
	c := &scriptedCaller{callbacks: []string{"status-0"}}
	waits := 0
	c.handle = func(method string, params []any) (any, error) {
		switch method {
		case "wifiAddSuggestionConnectionStatusListener":
			return nil, nil
		case "eventWaitAndGet":
			require.Equal(t, "status-0", params[0])
			require.Equal(t, eventConnectionStatus, params[1])
			waits++
			if waits == 1 {
				// An unrelated status must not satisfy the wait.
				return event(eventConnectionStatus,
					map[string]any{keyConnectionStatus: float64(ConnectionFailureAssociation)}), nil
			}
			return event(eventConnectionStatus,
				map[string]any{keyConnectionStatus: float64(ConnectionFailureAuthentication)}), nil
		}
		t.Fatalf("unexpected rpc %s", method)
		return nil, nil
	}
	h, err := AddConnectionStatusListener(context.Background(), c)
	require.NoError(t, err)
	require.NoError(t, WaitConnectionFailure(context.Background(), h, ConnectionFailureAuthentication))
	assert.Equal(t, 2, waits)
}

func TestWaitPostConnection(t *testing.T) {
	c := &scriptedCaller{callbacks: []string{"post-0"}}
	c.handle = func(method string, params []any) (any, error) {
		switch method {
		case "wifiAddNetworkSuggestionPostConnectionReceiver":
			return nil, nil
		case "eventWaitAndGet":
			require.Equal(t, eventPostConnection, params[1])
			return event(eventPostConnection, nil), nil
		}
		t.Fatalf("unexpected rpc %s", method)
		return nil, nil
	}
	h, err := AddPostConnectionReceiver(context.Background(), c)
	require.NoError(t, err)
	require.NoError(t, WaitPostConnection(context.Background(), h))
}

func TestVerifyConnectedTo(t *testing.T) {
	c := &scriptedCaller{}
	c.handle = func(method string, params []any) (any, error) {
		require.Equal(t, "wifiGetCurrentConnectionInfo", method)
		return map[string]any{"ssid": "openwrt-1", "bssid": "aa:bb:cc:dd:ee:ff"}, nil
	}
	require.NoError(t, VerifyConnectedTo(context.Background(), c, "openwrt-1", "aa:bb:cc:dd:ee:ff"))
	err := VerifyConnectedTo(context.Background(), c, "openwrt-2", "")
	require.ErrorContains(t, err, `want "openwrt-2"`)
}
