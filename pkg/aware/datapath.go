package aware

import (
	"context"
	"fmt"

	"github.com/mdtb/wifitest/internal/snippet"
)

// Link is an established NAN data path as seen by one side.
type Link struct {
	// InterfaceName is the aware-data interface (aware_data0).
	InterfaceName string
	// PeerIPv6 is the link-local address of the other side.
	PeerIPv6 string
	// ChannelMHz is the data path channel frequency.
	ChannelMHz int
}

// ServerSocketAccept opens a listening test socket on the device. The
// returned handler's ID doubles as the network request reference and its
// return value is the bound local port.
func ServerSocketAccept(ctx context.Context, c snippet.Caller) (*snippet.CallbackHandler, int, error) {
	h, err := c.CallAsync(ctx, "connectivityServerSocketAccept")
	if err != nil {
		return nil, 0, fmt.Errorf("opening server socket: %w", err)
	}
	port, ok := h.RetInt()
	if !ok {
		return nil, 0, fmt.Errorf("server socket accept returned no port: %v", h.Ret())
	}
	return h, int(port), nil
}

// specifierResult unwraps the parcel some snippet builds return nested under
// a "result" key.
func specifierResult(raw any) (any, error) {
	if m, ok := raw.(map[string]any); ok {
		if v, ok := m["result"]; ok {
			return v, nil
		}
		return nil, fmt.Errorf("network specifier reply has no result: %v", m)
	}
	return raw, nil
}

// CreateNetworkSpecifier builds an in-band network specifier from a discovery
// session and the discovered peer.
func CreateNetworkSpecifier(ctx context.Context, c snippet.Caller, discoverySession string, peerID int64, acceptAnyPeer bool) (any, error) {
	raw, err := c.Call(ctx, "wifiAwareCreateNetworkSpecifier", discoverySession, peerID, acceptAnyPeer, nil)
	if err != nil {
		return nil, fmt.Errorf("creating network specifier: %w", err)
	}
	return specifierResult(raw)
}

// CreateNetworkSpecifierOOB builds an out-of-band network specifier from an
// attach session, a data path role and the peer's discovery MAC.
func CreateNetworkSpecifierOOB(ctx context.Context, c snippet.Caller, session string, role int, peerMac, passphrase, pmk string) (any, error) {
	raw, err := c.Call(ctx, "createNetworkSpecifierOob", session, role, peerMac, passphrase, pmk)
	if err != nil {
		return nil, fmt.Errorf("creating oob network specifier: %w", err)
	}
	return specifierResult(raw)
}

// RequestNetwork files a network request over the aware transport, tagged
// with the server socket's callback reference, and returns the network
// callback handler.
func RequestNetwork(ctx context.Context, c snippet.Caller, requestID string, specifier any) (*snippet.CallbackHandler, error) {
	request := map[string]any{
		"transport_type":           transportWifiAware,
		"network_specifier_parcel": specifier,
	}
	h, err := c.CallAsync(ctx, "connectivityRequestNetwork", requestID, request, requestNetworkTimeout.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("requesting aware network: %w", err)
	}
	return h, nil
}

// WaitForLink drains the network callback events of an aware network request
// and extracts the established data path. It also verifies the capabilities
// event does not leak the network specifier, which would let other apps on
// the device hijack the data path.
func WaitForLink(ctx context.Context, h *snippet.CallbackHandler) (*Link, error) {
	events, err := h.Collect(ctx, eventNetworkCallback, requestNetworkTimeout)
	if err != nil {
		return nil, fmt.Errorf("collecting network callbacks: %w", err)
	}
	caps, err := snippet.FindByCallbackName(events, callbackCapabilitiesChanged)
	if err != nil {
		return nil, fmt.Errorf("data path setup incomplete: %w", err)
	}
	if caps.Has(keyNetworkSpecifier) {
		return nil, fmt.Errorf("capabilities event leaks the network specifier")
	}
	link := &Link{PeerIPv6: caps.String(keyAwareIPv6)}
	if mhz, ok := caps.Int(keyChannelMHz); ok {
		link.ChannelMHz = int(mhz)
	}
	props, err := snippet.FindByCallbackName(events, callbackLinkPropertiesChanged)
	if err != nil {
		return nil, fmt.Errorf("data path has no link properties: %w", err)
	}
	link.InterfaceName = props.String(keyInterfaceName)
	if link.InterfaceName == "" || link.PeerIPv6 == "" {
		return nil, fmt.Errorf("incomplete data path: interface %q, peer %q",
			link.InterfaceName, link.PeerIPv6)
	}
	return link, nil
}

// UnregisterNetwork releases an aware network request.
func UnregisterNetwork(ctx context.Context, c snippet.Caller, networkID string) error {
	_, err := c.Call(ctx, "connectivityUnregisterNetwork", networkID)
	return err
}
