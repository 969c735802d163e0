package connection

// PatternType selects PatternMatcher semantics.
type PatternType int

const (
	PatternLiteral PatternType = iota
	PatternPrefix
	PatternSimpleGlob
	PatternAdvancedGlob
	PatternSuffix
)

// PatternMatcher is an android.os.PatternMatcher for SSID matching.
type PatternMatcher struct {
	Pattern string
	Type    PatternType
}

func (p PatternMatcher) toMap() map[string]any {
	return map[string]any{
		"pattern":      p.Pattern,
		"pattern_type": int(p.Type),
	}
}

// BssidPattern matches BSSIDs under a mask.
type BssidPattern struct {
	BSSID string
	Mask  string
}

func (b BssidPattern) toMap() map[string]any {
	m := map[string]any{}
	if b.BSSID != "" {
		m["bssid"] = b.BSSID
	}
	if b.Mask != "" {
		m["bssid_mask"] = b.Mask
	}
	return m
}

// NetworkSpecifier describes the target network of a network request. Either
// the literal SSID/BSSID fields or the pattern fields are set, not both.
type NetworkSpecifier struct {
	SSID         string
	BSSID        string
	SSIDPattern  *PatternMatcher
	BSSIDPattern *BssidPattern
	PSK          string
}

func (s NetworkSpecifier) toMap() map[string]any {
	m := map[string]any{}
	if s.SSID != "" {
		m["ssid"] = s.SSID
	}
	if s.BSSID != "" {
		m["bssid"] = s.BSSID
	}
	if s.SSIDPattern != nil {
		m["ssid_pattern"] = s.SSIDPattern.toMap()
	}
	if s.BSSIDPattern != nil {
		m["bssid_pattern"] = s.BSSIDPattern.toMap()
	}
	if s.PSK != "" {
		m["psk"] = s.PSK
	}
	return m
}

// NetworkSuggestion is one WifiNetworkSuggestion entry. Metered is a pointer
// because suggestion modification flips it both ways and false must still be
// sent explicitly.
type NetworkSuggestion struct {
	SSID                   string
	BSSID                  string
	PSK                    string
	HiddenSSID             bool
	Metered                *bool
	AppInteractionRequired bool
}

func (s NetworkSuggestion) toMap() map[string]any {
	m := map[string]any{"ssid": s.SSID}
	if s.BSSID != "" {
		m["bssid"] = s.BSSID
	}
	if s.PSK != "" {
		m["psk"] = s.PSK
	}
	if s.HiddenSSID {
		m["is_hidden_ssid"] = true
	}
	if s.Metered != nil {
		m["is_metered"] = *s.Metered
	}
	if s.AppInteractionRequired {
		m["is_app_interaction_required"] = true
	}
	return m
}

func suggestionMaps(suggestions []NetworkSuggestion) []any {
	out := make([]any, 0, len(suggestions))
	for _, s := range suggestions {
		out = append(out, s.toMap())
	}
	return out
}

// NetworkRequest carries the parameters of connectivityRequestNetwork and
// connectivityRegisterNetworkCallback.
type NetworkRequest struct {
	Specifier        *NetworkSpecifier
	RemoveCapability Capability
	Transport        Transport
}

func (r NetworkRequest) toMap() map[string]any {
	m := map[string]any{"transport_type": int(r.Transport)}
	if r.Specifier != nil {
		m["network_specifier"] = r.Specifier.toMap()
	}
	if r.RemoveCapability != 0 {
		m["remove_capability"] = int(r.RemoveCapability)
	}
	return m
}
