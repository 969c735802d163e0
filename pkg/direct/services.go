package direct

import (
	"context"
	"fmt"
	"time"

	"github.com/mdtb/wifitest/internal/snippet"
)

// UpnpService is a local UPnP service advertisement.
type UpnpService struct {
	UUID     string
	Device   string
	Services []string
}

// BonjourService is a local DNS-SD service advertisement.
type BonjourService struct {
	InstanceName string
	ServiceType  string
	TxtRecords   map[string]string
}

// The canonical local services the discovery scenarios advertise and query.
var (
	UpnpRenderer = UpnpService{
		UUID:   "6859dede-8574-59ab-9332-123456789011",
		Device: "urn:schemas-upnp-org:device:MediaRenderer:1",
		Services: []string{
			"urn:schemas-upnp-org:service:AVTransport:1",
			"urn:schemas-upnp-org:service:ConnectionManager:1",
		},
	}
	BonjourIppPrinter = BonjourService{
		InstanceName: "MyPrinter",
		ServiceType:  "_ipp._tcp",
		TxtRecords:   map[string]string{"txtvers": "1", "pdl": "application/postscript"},
	}
	BonjourAfpServer = BonjourService{
		InstanceName: "Example",
		ServiceType:  "_afpovertcp._tcp",
	}
)

// AddUpnpLocalService registers a local UPnP service on the device.
func AddUpnpLocalService(ctx context.Context, c snippet.Caller, s UpnpService) error {
	if _, err := c.Call(ctx, "p2pAddUpnpLocalService", s.UUID, s.Device, s.Services); err != nil {
		return fmt.Errorf("adding upnp local service %s: %w", s.Device, err)
	}
	return nil
}

// AddBonjourLocalService registers a local DNS-SD service on the device.
func AddBonjourLocalService(ctx context.Context, c snippet.Caller, s BonjourService) error {
	txt := map[string]any{}
	for k, v := range s.TxtRecords {
		txt[k] = v
	}
	if _, err := c.Call(ctx, "p2pAddBonjourLocalService", s.InstanceName, s.ServiceType, txt); err != nil {
		return fmt.Errorf("adding bonjour local service %s: %w", s.InstanceName, err)
	}
	return nil
}

// ClearLocalServices removes every local service registered on the device.
func ClearLocalServices(ctx context.Context, c snippet.Caller) error {
	_, err := c.Call(ctx, "p2pClearLocalServices")
	return err
}

// UpnpQuery runs a UPnP service discovery with the given search target and
// returns the unique service names seen. An empty query requests all
// services.
func UpnpQuery(ctx context.Context, c snippet.Caller, query string, timeout time.Duration) ([]string, error) {
	h, err := c.CallAsync(ctx, "p2pDiscoverUpnpServices", query)
	if err != nil {
		return nil, fmt.Errorf("starting upnp discovery: %w", err)
	}
	defer clearServiceRequests(ctx, c)
	events, err := h.Collect(ctx, eventUpnpServices, timeout)
	if err != nil {
		return nil, fmt.Errorf("collecting upnp services: %w", err)
	}
	var names []string
	for _, e := range events {
		names = append(names, e.Strings(keyUniqueServiceNames)...)
	}
	return names, nil
}

// DnsSdResponse is one DNS-SD discovery answer.
type DnsSdResponse struct {
	InstanceName     string
	RegistrationType string
	TxtRecords       map[string]string
}

// BonjourQuery runs a DNS-SD discovery filtered by service type and instance
// name (either may be empty) and returns the responses, service answers and
// TXT record answers combined.
func BonjourQuery(ctx context.Context, c snippet.Caller, serviceType, instanceName string, timeout time.Duration) ([]DnsSdResponse, error) {
	h, err := c.CallAsync(ctx, "p2pDiscoverBonjourServices", serviceType, instanceName)
	if err != nil {
		return nil, fmt.Errorf("starting bonjour discovery: %w", err)
	}
	defer clearServiceRequests(ctx, c)
	var responses []DnsSdResponse
	for _, name := range []string{eventDnsSdService, eventDnsSdTxtRecord} {
		events, err := h.Collect(ctx, name, timeout)
		if err != nil {
			return nil, fmt.Errorf("collecting %s: %w", name, err)
		}
		for _, e := range events {
			responses = append(responses, decodeDnsSd(e))
		}
	}
	return responses, nil
}

func decodeDnsSd(e *snippet.Event) DnsSdResponse {
	r := DnsSdResponse{
		InstanceName:     e.String(keyInstanceName),
		RegistrationType: e.String(keyRegistrationType),
	}
	if raw, ok := e.Data[keyTxtRecords].(map[string]any); ok {
		r.TxtRecords = make(map[string]string, len(raw))
		for k, v := range raw {
			if s, ok := v.(string); ok {
				r.TxtRecords[k] = s
			}
		}
	}
	return r
}

func clearServiceRequests(ctx context.Context, c snippet.Caller) {
	_, _ = c.Call(ctx, "p2pClearServiceRequests")
}
