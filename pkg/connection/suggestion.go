package connection

import (
	"context"
	"fmt"

	"github.com/mdtb/wifitest/internal/snippet"
)

// AddSuggestions pushes network suggestions and fails on any non-success
// status.
func AddSuggestions(ctx context.Context, c snippet.Caller, suggestions []NetworkSuggestion) error {
	raw, err := c.Call(ctx, "wifiAddNetworkSuggestions", suggestionMaps(suggestions))
	if err != nil {
		return fmt.Errorf("adding network suggestions: %w", err)
	}
	if status := statusCode(raw); status != SuggestionStatusSuccess {
		return fmt.Errorf("adding network suggestions returned status %d", status)
	}
	return nil
}

// RemoveSuggestions removes network suggestions and fails on any non-success
// status.
func RemoveSuggestions(ctx context.Context, c snippet.Caller, suggestions []NetworkSuggestion) error {
	raw, err := c.Call(ctx, "wifiRemoveNetworkSuggestions", suggestionMaps(suggestions))
	if err != nil {
		return fmt.Errorf("removing network suggestions: %w", err)
	}
	if status := statusCode(raw); status != SuggestionStatusSuccess {
		return fmt.Errorf("removing network suggestions returned status %d", status)
	}
	return nil
}

func statusCode(raw any) int {
	switch v := raw.(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return -1
}

// AddApprovalStatusListener registers a user approval status listener and
// returns its handler.
func AddApprovalStatusListener(ctx context.Context, c snippet.Caller) (*snippet.CallbackHandler, error) {
	h, err := c.CallAsync(ctx, "wifiAddSuggestionUserApprovalStatusListener")
	if err != nil {
		return nil, fmt.Errorf("adding approval status listener: %w", err)
	}
	return h, nil
}

// RemoveApprovalStatusListener unregisters the user approval status listener.
func RemoveApprovalStatusListener(ctx context.Context, c snippet.Caller) error {
	_, err := c.Call(ctx, "wifiRemoveSuggestionUserApprovalStatusListener")
	return err
}

// WaitApprovalStatus blocks until the approval listener reports the status.
func WaitApprovalStatus(ctx context.Context, h *snippet.CallbackHandler, status int) error {
	_, err := h.WaitForEvent(ctx, eventUserApprovalStatusChange, func(e *snippet.Event) bool {
		v, ok := e.Int(keyUserApprovalStatus)
		return ok && int(v) == status
	}, RequestNetworkTimeout)
	if err != nil {
		return fmt.Errorf("waiting for approval status %d: %w", status, err)
	}
	return nil
}

// VerifySuggestions checks the device's stored suggestions against the
// expected list, comparing SSID and, where set, BSSID.
func VerifySuggestions(ctx context.Context, c snippet.Caller, expected []NetworkSuggestion) error {
	raw, err := c.Call(ctx, "wifiGetNetworkSuggestions")
	if err != nil {
		return fmt.Errorf("retrieving network suggestions: %w", err)
	}
	stored, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("wifiGetNetworkSuggestions returned %T", raw)
	}
	if len(stored) != len(expected) {
		return fmt.Errorf("device stores %d suggestions, want %d", len(stored), len(expected))
	}
	for i, want := range expected {
		got, ok := stored[i].(map[string]any)
		if !ok {
			return fmt.Errorf("stored suggestion %d is %T", i, stored[i])
		}
		if got["ssid"] != want.SSID {
			return fmt.Errorf("stored suggestion %d has ssid %v, want %q", i, got["ssid"], want.SSID)
		}
		if want.BSSID != "" && got["bssid"] != want.BSSID {
			return fmt.Errorf("stored suggestion %d has bssid %v, want %q", i, got["bssid"], want.BSSID)
		}
	}
	return nil
}

// AddSuggestionsWithApproval runs the full onboarding flow for network
// suggestions: register a network callback for req, add the suggestions,
// confirm the approval dialog through the UI, wait for the approved status
// and verify the stored list. It returns the network callback handler so the
// caller can track the resulting connection.
func AddSuggestionsWithApproval(ctx context.Context, c snippet.Caller, ui *UI, suggestions []NetworkSuggestion, req NetworkRequest) (*snippet.CallbackHandler, error) {
	networkCallback, err := RegisterNetworkCallback(ctx, c, req)
	if err != nil {
		return nil, err
	}
	if err := AddSuggestions(ctx, c, suggestions); err != nil {
		return nil, err
	}
	approval, err := AddApprovalStatusListener(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := ui.AllowSuggestion(ctx); err != nil {
		return nil, err
	}
	if err := WaitApprovalStatus(ctx, approval, ApprovalApprovedByUser); err != nil {
		return nil, err
	}
	if err := VerifySuggestions(ctx, c, suggestions); err != nil {
		return nil, err
	}
	return networkCallback, nil
}

// RemoveSuggestionsAndWaitLost removes the suggestions and verifies the
// network they carried goes away. Stale lost events are drained first so the
// wait observes only the disconnect caused by the removal.
func RemoveSuggestionsAndWaitLost(ctx context.Context, c snippet.Caller, suggestions []NetworkSuggestion, networkCallback *snippet.CallbackHandler) error {
	if _, err := networkCallback.GetAll(ctx, eventCallbackLost); err != nil {
		return fmt.Errorf("draining lost events: %w", err)
	}
	if err := RemoveSuggestions(ctx, c, suggestions); err != nil {
		return err
	}
	if _, err := WaitForCallback(ctx, networkCallback, CallbackLost, WifiLostTimeout); err != nil {
		return fmt.Errorf("network not lost after suggestion removal: %w", err)
	}
	return nil
}

// AddPostConnectionReceiver registers for the post-connection broadcast sent
// to suggestions with app interaction required.
func AddPostConnectionReceiver(ctx context.Context, c snippet.Caller) (*snippet.CallbackHandler, error) {
	h, err := c.CallAsync(ctx, "wifiAddNetworkSuggestionPostConnectionReceiver")
	if err != nil {
		return nil, fmt.Errorf("adding post-connection receiver: %w", err)
	}
	return h, nil
}

// RemovePostConnectionReceiver unregisters the post-connection broadcast
// receiver.
func RemovePostConnectionReceiver(ctx context.Context, c snippet.Caller) error {
	_, err := c.Call(ctx, "wifiRemoveNetworkSuggestionPostConnectionReceiver")
	return err
}

// WaitPostConnection blocks until the post-connection broadcast arrives.
func WaitPostConnection(ctx context.Context, h *snippet.CallbackHandler) error {
	if _, err := h.WaitAndGet(ctx, eventPostConnection, PostConnectBroadcastTimeout); err != nil {
		return fmt.Errorf("waiting for post-connection broadcast: %w", err)
	}
	return nil
}

// AddConnectionStatusListener registers a suggestion connection status
// listener and returns its handler.
func AddConnectionStatusListener(ctx context.Context, c snippet.Caller) (*snippet.CallbackHandler, error) {
	h, err := c.CallAsync(ctx, "wifiAddSuggestionConnectionStatusListener")
	if err != nil {
		return nil, fmt.Errorf("adding connection status listener: %w", err)
	}
	return h, nil
}

// RemoveConnectionStatusListener unregisters the suggestion connection status
// listener.
func RemoveConnectionStatusListener(ctx context.Context, c snippet.Caller) error {
	_, err := c.Call(ctx, "wifiRemoveSuggestionConnectionStatusListener")
	return err
}

// WaitConnectionFailure blocks until the listener reports the given failure
// status, e.g. ConnectionFailureAuthentication when a suggestion carries a
// wrong passphrase.
func WaitConnectionFailure(ctx context.Context, h *snippet.CallbackHandler, status int) error {
	_, err := h.WaitForEvent(ctx, eventConnectionStatus, func(e *snippet.Event) bool {
		v, ok := e.Int(keyConnectionStatus)
		return ok && int(v) == status
	}, RequestNetworkTimeout)
	if err != nil {
		return fmt.Errorf("waiting for connection failure status %d: %w", status, err)
	}
	return nil
}
