package snippet

import (
	"fmt"
	"time"
)

// Event is one entry from the device-side event cache.
type Event struct {
	// CallbackID ties the event to the handle of the RPC that registered it.
	CallbackID string
	// Name is the event name the device posted, e.g. "onAttached".
	Name string
	// CreationTime is the device-side time the event was posted.
	CreationTime time.Time
	// Data carries the event payload.
	Data map[string]any
}

// decodeEvent converts a raw RPC result into an Event.
func decodeEvent(raw any) (*Event, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("event payload is %T, not an object", raw)
	}
	e := &Event{Data: map[string]any{}}
	if v, ok := m["callbackId"].(string); ok {
		e.CallbackID = v
	}
	if v, ok := m["name"].(string); ok {
		e.Name = v
	}
	if v, ok := m["creationTime"].(float64); ok {
		e.CreationTime = time.UnixMilli(int64(v))
	}
	if v, ok := m["data"].(map[string]any); ok {
		e.Data = v
	}
	if e.Name == "" {
		return nil, fmt.Errorf("event payload %v has no name", m)
	}
	return e, nil
}

// String returns the string value for key, or "" if absent or not a string.
func (e *Event) String(key string) string {
	v, _ := e.Data[key].(string)
	return v
}

// Int returns the integer value for key. JSON numbers decode as float64, so
// this truncates.
func (e *Event) Int(key string) (int64, bool) {
	switch v := e.Data[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}

// Bool returns the boolean value for key.
func (e *Event) Bool(key string) (bool, bool) {
	v, ok := e.Data[key].(bool)
	return v, ok
}

// Has reports whether key is present in the payload.
func (e *Event) Has(key string) bool {
	_, ok := e.Data[key]
	return ok
}

// Strings returns the string-slice value for key.
func (e *Event) Strings(key string) []string {
	raw, ok := e.Data[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// CallbackName returns the "callbackName" field many snippets use to
// multiplex several platform callbacks over one event name.
func (e *Event) CallbackName() string {
	return e.String("callbackName")
}
