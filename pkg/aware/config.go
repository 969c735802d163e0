package aware

// PublishConfig configures one publish discovery session. Zero values are
// omitted from the wire representation so the snippet applies its defaults.
type PublishConfig struct {
	ServiceName         string
	ServiceSpecificInfo string
	MatchFilter         []string
	Type                PublishType
	InstantMode         bool
	// RangingEnabled turns on 802.11mc distance reporting with discovery.
	RangingEnabled bool
}

func (c PublishConfig) toMap() map[string]any {
	m := map[string]any{
		"service_name": c.ServiceName,
		"publish_type": int(c.Type),
	}
	if c.ServiceSpecificInfo != "" {
		m["service_specific_info"] = c.ServiceSpecificInfo
	}
	if len(c.MatchFilter) > 0 {
		m["match_filter"] = c.MatchFilter
	}
	if c.InstantMode {
		m["instant_mode"] = true
	}
	if c.RangingEnabled {
		m["ranging_enabled"] = true
	}
	return m
}

// SubscribeConfig configures one subscribe discovery session.
type SubscribeConfig struct {
	ServiceName         string
	ServiceSpecificInfo string
	MatchFilter         []string
	Type                SubscribeType
	InstantMode         bool
}

func (c SubscribeConfig) toMap() map[string]any {
	m := map[string]any{
		"service_name":   c.ServiceName,
		"subscribe_type": int(c.Type),
	}
	if c.ServiceSpecificInfo != "" {
		m["service_specific_info"] = c.ServiceSpecificInfo
	}
	if len(c.MatchFilter) > 0 {
		m["match_filter"] = c.MatchFilter
	}
	if c.InstantMode {
		m["instant_mode"] = true
	}
	return m
}
