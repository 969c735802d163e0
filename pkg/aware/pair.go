package aware

import (
	"context"
	"fmt"
	"time"

	"github.com/mdtb/wifitest/internal/snippet"
)

// Message exchange events on a discovery session.
const (
	eventMessageSendSucceeded = "onMessageSendSucceeded"
	eventMessageReceived      = "onMessageReceived"

	keyPeerID = "peerId"

	// pairingMessageID tags the ping that teaches the publisher its peer's
	// handle during in-band pairing.
	pairingMessageID = 9999
)

// SendMessage sends a short message to a discovered peer and waits for the
// send confirmation.
func (s *DiscoverySession) SendMessage(ctx context.Context, peerID int64, messageID int, message string) error {
	if _, err := s.caller.Call(ctx, "wifiAwareSendMessage", s.ID(), peerID, messageID, message); err != nil {
		return fmt.Errorf("sending aware message: %w", err)
	}
	if _, err := s.handler.WaitAndGet(ctx, eventMessageSendSucceeded, DefaultTimeout); err != nil {
		return fmt.Errorf("waiting for message send confirmation: %w", err)
	}
	return nil
}

// WaitMessageReceived blocks until the session receives a peer message.
func (s *DiscoverySession) WaitMessageReceived(ctx context.Context, timeout time.Duration) (*snippet.Event, error) {
	return s.handler.WaitAndGet(ctx, eventMessageReceived, timeout)
}

// DiscoveryPair is an in-band discovery rendezvous: both sides attached, a
// publish and a subscribe session, and each side's handle for the peer.
type DiscoveryPair struct {
	PubSession string
	SubSession string
	Publish    *DiscoverySession
	Subscribe  *DiscoverySession
	// PeerIDOnSub is the publisher as seen by the subscriber.
	PeerIDOnSub int64
	// PeerIDOnPub is the subscriber as seen by the publisher.
	PeerIDOnPub int64
}

// CreateDiscoveryPair attaches both devices, runs service discovery and
// exchanges one message so each side learns its peer handle.
func CreateDiscoveryPair(ctx context.Context, pub, sub snippet.Caller, pubCfg PublishConfig, subCfg SubscribeConfig) (*DiscoveryPair, error) {
	pubSession, err := Attach(ctx, pub)
	if err != nil {
		return nil, fmt.Errorf("publisher: %w", err)
	}
	subSession, err := Attach(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("subscriber: %w", err)
	}
	pDisc, err := Publish(ctx, pub, pubSession, pubCfg)
	if err != nil {
		return nil, err
	}
	sDisc, err := Subscribe(ctx, sub, subSession, subCfg)
	if err != nil {
		return nil, err
	}
	discovered, err := sDisc.WaitServiceDiscovered(ctx, DefaultTimeout)
	if err != nil {
		return nil, fmt.Errorf("waiting for service discovery: %w", err)
	}
	peerOnSub, ok := discovered.Int(keyPeerID)
	if !ok {
		return nil, fmt.Errorf("discovery event carries no peer id: %v", discovered.Data)
	}
	if err := sDisc.SendMessage(ctx, peerOnSub, pairingMessageID, "ping"); err != nil {
		return nil, err
	}
	received, err := pDisc.WaitMessageReceived(ctx, DefaultTimeout)
	if err != nil {
		return nil, fmt.Errorf("publisher never received the pairing message: %w", err)
	}
	peerOnPub, ok := received.Int(keyPeerID)
	if !ok {
		return nil, fmt.Errorf("received message carries no peer id: %v", received.Data)
	}
	return &DiscoveryPair{
		PubSession:  pubSession,
		SubSession:  subSession,
		Publish:     pDisc,
		Subscribe:   sDisc,
		PeerIDOnSub: peerOnSub,
		PeerIDOnPub: peerOnPub,
	}, nil
}

// DataPath is an established NDP between two devices and the references
// needed to tear it down.
type DataPath struct {
	// NetworkID is the request reference shared by both sides.
	NetworkID string
	// Initiator and Responder describe each side's view of the link.
	Initiator *Link
	Responder *Link
}

// Channel returns the data path channel frequency as reported by the
// initiator.
func (p *DataPath) Channel() int {
	return p.Initiator.ChannelMHz
}

// EstablishInBand builds an NDP using in-band (publish/subscribe) discovery.
// The publisher takes the responder role, the subscriber initiates.
func EstablishInBand(ctx context.Context, pub, sub snippet.Caller, pubCfg PublishConfig, subCfg SubscribeConfig) (*DataPath, error) {
	pair, err := CreateDiscoveryPair(ctx, pub, sub, pubCfg, subCfg)
	if err != nil {
		return nil, err
	}
	accept, _, err := ServerSocketAccept(ctx, pub)
	if err != nil {
		return nil, err
	}
	networkID := accept.ID()

	pubSpec, err := CreateNetworkSpecifier(ctx, pub, pair.Publish.ID(), pair.PeerIDOnPub, false)
	if err != nil {
		return nil, fmt.Errorf("publisher: %w", err)
	}
	pubReq, err := RequestNetwork(ctx, pub, networkID, pubSpec)
	if err != nil {
		return nil, fmt.Errorf("publisher: %w", err)
	}
	subSpec, err := CreateNetworkSpecifier(ctx, sub, pair.Subscribe.ID(), pair.PeerIDOnSub, false)
	if err != nil {
		return nil, fmt.Errorf("subscriber: %w", err)
	}
	subReq, err := RequestNetwork(ctx, sub, networkID, subSpec)
	if err != nil {
		return nil, fmt.Errorf("subscriber: %w", err)
	}

	subLink, err := WaitForLink(ctx, subReq)
	if err != nil {
		return nil, fmt.Errorf("subscriber data path: %w", err)
	}
	pubLink, err := WaitForLink(ctx, pubReq)
	if err != nil {
		return nil, fmt.Errorf("publisher data path: %w", err)
	}
	return &DataPath{NetworkID: networkID, Initiator: subLink, Responder: pubLink}, nil
}

// EstablishOutOfBand builds an NDP from two attach sessions whose discovery
// MACs were exchanged out of band; no publish or subscribe session is
// involved. Sessions come from AttachWithIdentity and the caller is expected
// to have let the cluster settle.
func EstablishOutOfBand(ctx context.Context, init, resp snippet.Caller, initSession, initMac, respSession, respMac, passphrase, pmk string) (*DataPath, error) {
	accept, _, err := ServerSocketAccept(ctx, init)
	if err != nil {
		return nil, err
	}
	networkID := accept.ID()

	respSpec, err := CreateNetworkSpecifierOOB(ctx, resp, respSession, RoleResponder, initMac, passphrase, pmk)
	if err != nil {
		return nil, fmt.Errorf("responder: %w", err)
	}
	respReq, err := RequestNetwork(ctx, resp, networkID, respSpec)
	if err != nil {
		return nil, fmt.Errorf("responder: %w", err)
	}
	initSpec, err := CreateNetworkSpecifierOOB(ctx, init, initSession, RoleInitiator, respMac, passphrase, pmk)
	if err != nil {
		return nil, fmt.Errorf("initiator: %w", err)
	}
	initReq, err := RequestNetwork(ctx, init, networkID, initSpec)
	if err != nil {
		return nil, fmt.Errorf("initiator: %w", err)
	}

	initLink, err := WaitForLink(ctx, initReq)
	if err != nil {
		return nil, fmt.Errorf("initiator data path: %w", err)
	}
	respLink, err := WaitForLink(ctx, respReq)
	if err != nil {
		return nil, fmt.Errorf("responder data path: %w", err)
	}
	return &DataPath{NetworkID: networkID, Initiator: initLink, Responder: respLink}, nil
}

// TeardownDataPath releases the network request on both sides.
func TeardownDataPath(ctx context.Context, a, b snippet.Caller, p *DataPath) {
	UnregisterNetwork(ctx, a, p.NetworkID)
	UnregisterNetwork(ctx, b, p.NetworkID)
}
