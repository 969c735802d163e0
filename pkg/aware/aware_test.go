package aware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdtb/wifitest/internal/snippet"
)

// scriptedCaller dispatches RPCs to a handle func and hands out callback IDs
// in order.
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

func timeoutErr() error {
	return snippet.ErrEventTimeout
}

func TestPublishConfigToMap(t *testing.T) {
	m := PublishConfig{
		ServiceName: "GoogleTestServiceXY",
		Type:        PublishSolicited,
		InstantMode: true,
	}.toMap()
	assert.Equal(t, "GoogleTestServiceXY", m["service_name"])
	assert.Equal(t, 1, m["publish_type"])
	assert.Equal(t, true, m["instant_mode"])
	assert.NotContains(t, m, "service_specific_info")
	assert.NotContains(t, m, "ranging_enabled")

	m = SubscribeConfig{ServiceName: "s", Type: SubscribePassive}.toMap()
	assert.Equal(t, 0, m["subscribe_type"])
	assert.NotContains(t, m, "instant_mode")
}

func TestAttach(t *testing.T) {
	c := &scriptedCaller{callbacks: []string{"1-1"}}
	c.handle = func(method string, params []any) (any, error) {
		switch method {
		case "wifiAwareAttach":
			return nil, nil
		case "eventWaitAndGet":
			require.Equal(t, "1-1", params[0])
			require.Equal(t, "onAttached", params[1])
			return event("onAttached", nil), nil
		case "wifiAwareIsSessionAttached":
			require.Equal(t, "1-1", params[0])
			return true, nil
		}
		t.Fatalf("unexpected rpc %s", method)
		return nil, nil
	}
	session, err := Attach(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, "1-1", session)
}

func TestAttachWithIdentity(t *testing.T) {
	events := []map[string]any{
		event("onAttached", nil),
		event("onIdentityChanged", map[string]any{"mac": "aa:bb:cc:dd:ee:ff"}),
	}
	c := &scriptedCaller{callbacks: []string{"1-1"}}
	c.handle = func(method string, params []any) (any, error) {
		switch method {
		case "wifiAwareAttached":
			require.Equal(t, true, params[0])
			return nil, nil
		case "eventWaitAndGet":
			e := events[0]
			events = events[1:]
			return e, nil
		}
		t.Fatalf("unexpected rpc %s", method)
		return nil, nil
	}
	session, mac, err := AttachWithIdentity(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, "1-1", session)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", mac)
}

func TestPublishRejectsWrongCallback(t *testing.T) {
	c := &scriptedCaller{callbacks: []string{"2-1"}}
	c.handle = func(method string, params []any) (any, error) {
		switch method {
		case "wifiAwarePublish":
			return nil, nil
		case "eventWaitAndGet":
			return event("discoverResult", map[string]any{"callbackName": "onSessionConfigFailed"}), nil
		}
		t.Fatalf("unexpected rpc %s", method)
		return nil, nil
	}
	_, err := Publish(context.Background(), c, "1-1", PublishConfig{ServiceName: "s"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "onSessionConfigFailed")
}

func TestWaitForLink(t *testing.T) {
	events := []any{
		event("NetworkCallback", map[string]any{"callbackName": "onAvailable"}),
		event("NetworkCallback", map[string]any{
			"callbackName": "onCapabilitiesChanged",
			"aware_ipv6":   "fe80::1%aware_data0",
			"channelInMhz": float64(5180),
		}),
		event("NetworkCallback", map[string]any{
			"callbackName":  "onLinkPropertiesChanged",
			"interfaceName": "aware_data0",
		}),
	}
	c := &scriptedCaller{}
	c.handle = func(method string, params []any) (any, error) {
		require.Equal(t, "eventWaitAndGet", method)
		e := events[0]
		events = events[1:]
		return e, nil
	}
	h := snippet.NewCallbackHandler("3-1", nil, c)
	link, err := WaitForLink(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, "aware_data0", link.InterfaceName)
	assert.Equal(t, "fe80::1%aware_data0", link.PeerIPv6)
	assert.Equal(t, 5180, link.ChannelMHz)
}

func TestWaitForLinkSpecifierLeak(t *testing.T) {
	served := false
	c := &scriptedCaller{}
	c.handle = func(method string, params []any) (any, error) {
		if served {
			return nil, timeoutErr()
		}
		served = true
		return event("NetworkCallback", map[string]any{
			"callbackName":      "onCapabilitiesChanged",
			"aware_ipv6":        "fe80::1",
			"network_specifier": "leaked",
		}), nil
	}
	h := snippet.NewCallbackHandler("3-1", nil, c)
	_, err := WaitForLink(context.Background(), h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leak")
}

// latencyScript simulates the device side of the discovery latency loop.
type latencyScript struct {
	t *testing.T
	// discoveredAt maps iteration -> discovery timestamp; missing entries
	// time out.
	subscribeAt  []int64
	discoveredAt map[int]int64
	iteration    int
	subscribed   bool
}

func (s *latencyScript) handle(method string, params []any) (any, error) {
	switch method {
	case "wifiAwareAttach", "wifiAwarePublish", "wifiAwareSubscribe":
		if method == "wifiAwareSubscribe" {
			s.subscribed = true
		}
		return nil, nil
	case "wifiAwareIsSessionAttached":
		return true, nil
	case "wifiAwareDetach", "wifiAwareCloseDiscoverSession":
		return nil, nil
	case "eventWaitAndGet":
		name := params[1].(string)
		switch name {
		case "onAttached":
			return event("onAttached", nil), nil
		case "discoverResult":
			cb := "onPublishStarted"
			data := map[string]any{"callbackName": cb}
			if s.subscribed {
				data["callbackName"] = "onSubscribeStarted"
				data["timestampMs"] = float64(s.subscribeAt[s.iteration])
			}
			return event("discoverResult", data), nil
		case "onServiceDiscovered":
			ts, ok := s.discoveredAt[s.iteration]
			s.iteration++
			if !ok {
				return nil, timeoutErr()
			}
			return event("onServiceDiscovered", map[string]any{"timestampMs": float64(ts)}), nil
		}
	}
	s.t.Fatalf("unexpected rpc %s", method)
	return nil, nil
}

func TestMeasureDiscoveryLatency(t *testing.T) {
	script := &latencyScript{
		t:            t,
		subscribeAt:  []int64{1000, 2000, 3000},
		discoveredAt: map[int]int64{0: 1040, 2: 3015},
	}
	pub := &scriptedCaller{handle: script.handle, callbacks: []string{"p-a", "p-d"}}
	sub := &scriptedCaller{handle: script.handle, callbacks: []string{"s-a1", "s-d1", "s-a2", "s-d2", "s-a3", "s-d3"}}

	samples, failed, err := MeasureDiscoveryLatency(context.Background(), pub, sub, LatencyConfig{
		ServiceName:        "GoogleTestServiceXY",
		Iterations:         3,
		UnsolicitedPassive: true,
		DiscoveryTimeout:   time.Second,
		SettleTime:         -1,
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{40, 15}, samples)
	assert.Equal(t, 1, failed)
}

func TestCreateDiscoveryPair(t *testing.T) {
	sendConfirmed := false
	handle := func(method string, params []any) (any, error) {
		switch method {
		case "wifiAwareAttach", "wifiAwarePublish", "wifiAwareSubscribe":
			return nil, nil
		case "wifiAwareIsSessionAttached":
			return true, nil
		case "wifiAwareSendMessage":
			sendConfirmed = true
			return nil, nil
		case "eventWaitAndGet":
			switch params[1].(string) {
			case "onAttached":
				return event("onAttached", nil), nil
			case "discoverResult":
				// Both sides read only callbackName here; return whichever
				// matches the session that asked.
				if params[0].(string) == "p-d" {
					return event("discoverResult", map[string]any{"callbackName": "onPublishStarted"}), nil
				}
				return event("discoverResult", map[string]any{"callbackName": "onSubscribeStarted"}), nil
			case "onServiceDiscovered":
				return event("onServiceDiscovered", map[string]any{"peerId": float64(7)}), nil
			case "onMessageSendSucceeded":
				return event("onMessageSendSucceeded", nil), nil
			case "onMessageReceived":
				return event("onMessageReceived", map[string]any{"peerId": float64(3)}), nil
			}
		}
		return nil, errors.New("unexpected rpc " + method)
	}
	pub := &scriptedCaller{handle: handle, callbacks: []string{"p-a", "p-d"}}
	sub := &scriptedCaller{handle: handle, callbacks: []string{"s-a", "s-d"}}

	pair, err := CreateDiscoveryPair(context.Background(), pub, sub,
		PublishConfig{ServiceName: "s", Type: PublishUnsolicited},
		SubscribeConfig{ServiceName: "s", Type: SubscribePassive})
	require.NoError(t, err)
	assert.True(t, sendConfirmed)
	assert.Equal(t, int64(7), pair.PeerIDOnSub)
	assert.Equal(t, int64(3), pair.PeerIDOnPub)
}

func TestParseIperfReport(t *testing.T) {
	report := `{
		"end": {
			"sum_sent": {"bits_per_second": 412340000.5},
			"sum_received": {"bits_per_second": 398200000.0}
		}
	}`
	res, err := parseIperfReport([]byte(report))
	require.NoError(t, err)
	assert.InDelta(t, 412.34, res.TxMbps, 0.01)
	assert.InDelta(t, 398.2, res.RxMbps, 0.01)

	_, err = parseIperfReport([]byte(`{"error": "unable to connect"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to connect")

	_, err = parseIperfReport([]byte(`{}`))
	assert.Error(t, err)
}

func TestParsePing(t *testing.T) {
	out := `PING fe80::1%aware_data0 (fe80::1%aware_data0) 56 data bytes
64 bytes from fe80::1: icmp_seq=1 ttl=64 time=3.21 ms
64 bytes from fe80::1: icmp_seq=2 ttl=64 time=2.88 ms

--- fe80::1%aware_data0 ping statistics ---
2 packets transmitted, 2 received, 0% packet loss, time 1001ms
rtt min/avg/max/mdev = 2.880/3.045/3.210/0.165 ms`

	stats, err := ParsePing(out)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Transmitted)
	assert.Equal(t, 2, stats.Received)
	assert.InDelta(t, 2.880, stats.MinMs, 0.001)
	assert.InDelta(t, 3.045, stats.AvgMs, 0.001)
	assert.InDelta(t, 3.210, stats.MaxMs, 0.001)
	assert.InDelta(t, 0.165, stats.MdevMs, 0.001)
}

func TestParsePingAllLost(t *testing.T) {
	out := `--- fe80::1 ping statistics ---
5 packets transmitted, 0 received, 100% packet loss, time 4100ms`
	_, err := ParsePing(out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lost")
}
