package direct

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

func TestDiscoverPeer(t *testing.T) {
	polls := 0
	c := &scriptedCaller{callbacks: []string{"disc-0"}}
	c.handle = func(method string, params []any) (any, error) {
		switch method {
		case "p2pDiscoverPeers":
			return nil, nil
		case "eventWaitAndGet":
			require.Equal(t, eventPeersChanged, params[1])
			polls++
			if polls == 1 {
				return event(eventPeersChanged, map[string]any{keyPeers: []any{}}), nil
			}
			return event(eventPeersChanged, map[string]any{keyPeers: []any{
				map[string]any{keyDeviceName: "pixel", keyDeviceAddress: "aa:bb:cc:dd:ee:ff"},
			}}), nil
		}
		t.Fatalf("unexpected rpc %s", method)
		return nil, nil
	}
	p, err := DiscoverPeer(context.Background(), c, "aa:bb:cc:dd:ee:ff", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "pixel", p.Name)
	assert.Equal(t, 2, polls, "empty peer list must not satisfy the wait")
}

func TestConnect(t *testing.T) {
	c := &scriptedCaller{callbacks: []string{"conn-0"}}
	c.handle = func(method string, params []any) (any, error) {
		switch method {
		case "p2pConnect":
			cfg := params[0].(map[string]any)
			require.Equal(t, "aa:bb:cc:dd:ee:ff", cfg["device_address"])
			require.Equal(t, int(WpsPBC), cfg["wps_setup"])
			return nil, nil
		case "eventWaitAndGet":
			return event(eventConnectionInfo, map[string]any{
				keyGroupFormed:       true,
				keyIsGroupOwner:      false,
				keyGroupOwnerAddress: "192.168.49.1",
			}), nil
		}
		t.Fatalf("unexpected rpc %s", method)
		return nil, nil
	}
	info, err := Connect(context.Background(), c, "aa:bb:cc:dd:ee:ff", WpsPBC)
	require.NoError(t, err)
	assert.False(t, info.IsGroupOwner)
	assert.Equal(t, "192.168.49.1", info.GroupOwnerAddress)
}

func TestCreateGroupNotOwner(t *testing.T) {
	c := &scriptedCaller{callbacks: []string{"grp-0"}}
	c.handle = func(method string, params []any) (any, error) {
		switch method {
		case "p2pCreateGroup":
			cfg := params[0].(map[string]any)
			require.Equal(t, DefaultNetworkName, cfg["network_name"])
			require.Equal(t, DefaultPassphrase, cfg["passphrase"])
			return nil, nil
		case "eventWaitAndGet":
			return event(eventConnectionInfo, map[string]any{
				keyGroupFormed: true, keyIsGroupOwner: false,
			}), nil
		}
		t.Fatalf("unexpected rpc %s", method)
		return nil, nil
	}
	_, err := CreateGroup(context.Background(), c, DefaultGroupConfig())
	require.ErrorContains(t, err, "not its owner")
}

func TestRemoveGroup(t *testing.T) {
	orig := disconnectPollInterval
	disconnectPollInterval = time.Millisecond
	defer func() { disconnectPollInterval = orig }()

	polls := 0
	c := &scriptedCaller{}
	c.handle = func(method string, params []any) (any, error) {
		switch method {
		case "p2pRemoveGroup":
			return nil, nil
		case "p2pRequestConnectionInfo":
			polls++
			return map[string]any{keyGroupFormed: polls < 3}, nil
		}
		t.Fatalf("unexpected rpc %s", method)
		return nil, nil
	}
	require.NoError(t, RemoveGroup(context.Background(), c, time.Second))
	assert.Equal(t, 3, polls)
}

func TestUpnpQuery(t *testing.T) {
	c := &scriptedCaller{callbacks: []string{"upnp-0"}}
	cleared := false
	c.handle = func(method string, params []any) (any, error) {
		switch method {
		case "p2pDiscoverUpnpServices":
			require.Equal(t, "ssdp:all", params[0])
			return nil, nil
		case "eventWaitAndGet":
			if cleared {
				t.Fatal("query continued after service requests were cleared")
			}
			return event(eventUpnpServices, map[string]any{
				keyUniqueServiceNames: []any{
					"uuid:6859dede-8574-59ab-9332-123456789011",
					"uuid:6859dede-8574-59ab-9332-123456789011::upnp:rootdevice",
				},
			}), nil
		case "p2pClearServiceRequests":
			cleared = true
			return nil, nil
		}
		t.Fatalf("unexpected rpc %s", method)
		return nil, nil
	}
	names, err := UpnpQuery(context.Background(), c, "ssdp:all", 10*time.Millisecond)
	require.NoError(t, err)
	// Collect caps at three events, each carrying two names.
	assert.Contains(t, names, "uuid:6859dede-8574-59ab-9332-123456789011::upnp:rootdevice")
	assert.True(t, cleared)
}

func TestBonjourQuery(t *testing.T) {
	c := &scriptedCaller{callbacks: []string{"dnssd-0"}}
	c.handle = func(method string, params []any) (any, error) {
		switch method {
		case "p2pDiscoverBonjourServices":
			require.Equal(t, "_ipp._tcp", params[0])
			require.Equal(t, "MyPrinter", params[1])
			return nil, nil
		case "eventWaitAndGet":
			switch params[1] {
			case eventDnsSdService:
				return event(eventDnsSdService, map[string]any{
					keyInstanceName:     "MyPrinter",
					keyRegistrationType: "_ipp._tcp.local.",
				}), nil
			case eventDnsSdTxtRecord:
				return event(eventDnsSdTxtRecord, map[string]any{
					keyInstanceName:     "MyPrinter",
					keyRegistrationType: "_ipp._tcp.local.",
					keyTxtRecords:       map[string]any{"txtvers": "1"},
				}), nil
			}
		case "p2pClearServiceRequests":
			return nil, nil
		}
		t.Fatalf("unexpected rpc %s", method)
		return nil, nil
	}
	responses, err := BonjourQuery(context.Background(), c, "_ipp._tcp", "MyPrinter", 10*time.Millisecond)
	require.NoError(t, err)
	require.NotEmpty(t, responses)
	assert.Equal(t, "MyPrinter", responses[0].InstanceName)
	last := responses[len(responses)-1]
	assert.Equal(t, "1", last.TxtRecords["txtvers"])
}
