package snippet

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// maxCollectedEvents bounds how many events Collect drains per wait. Network
// callbacks typically deliver capabilities, link properties and blocked
// status back to back; three is enough to see them all.
const maxCollectedEvents = 3

// CallbackHandler polls the named event queues of one device-side callback.
// It is returned by asynchronous RPCs.
type CallbackHandler struct {
	id     string
	ret    any
	caller Caller
}

// NewCallbackHandler builds a handler for callback id. ret is the RPC's
// synchronous return value, if any. Exported for fakes; production handlers
// come from Conn.CallAsync.
func NewCallbackHandler(id string, ret any, caller Caller) *CallbackHandler {
	return &CallbackHandler{id: id, ret: ret, caller: caller}
}

// ID returns the callback identifier. Several RPC surfaces take it back as a
// session reference (e.g. closing a discovery session).
func (h *CallbackHandler) ID() string {
	return h.id
}

// Ret returns the synchronous return value of the RPC that created this
// handler (e.g. the local port of a server socket accept).
func (h *CallbackHandler) Ret() any {
	return h.ret
}

// RetInt returns Ret as an integer.
func (h *CallbackHandler) RetInt() (int64, bool) {
	switch v := h.ret.(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}

// WaitAndGet blocks until the device posts an event with the given name, or
// the timeout expires. The wait happens on the device; ErrEventTimeout maps
// the device-side expiry.
func (h *CallbackHandler) WaitAndGet(ctx context.Context, name string, timeout time.Duration) (*Event, error) {
	wctx, cancel := context.WithTimeout(ctx, timeout+rpcGracePeriod)
	defer cancel()
	raw, err := h.caller.Call(wctx, "eventWaitAndGet", h.id, name, timeout.Milliseconds())
	if err != nil {
		return nil, err
	}
	return decodeEvent(raw)
}

// WaitForEvent blocks until an event with the given name satisfies pred,
// dropping events that do not match. The timeout spans the whole wait.
func (h *CallbackHandler) WaitForEvent(ctx context.Context, name string, pred func(*Event) bool, timeout time.Duration) (*Event, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: no %q event matched the predicate", ErrEventTimeout, name)
		}
		e, err := h.WaitAndGet(ctx, name, remaining)
		if err != nil {
			return nil, err
		}
		if pred(e) {
			return e, nil
		}
	}
}

// GetAll drains every already-posted event with the given name without
// waiting.
func (h *CallbackHandler) GetAll(ctx context.Context, name string) ([]*Event, error) {
	raw, err := h.caller.Call(ctx, "eventGetAll", h.id, name)
	if err != nil {
		return nil, err
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("eventGetAll returned %T, not a list", raw)
	}
	events := make([]*Event, 0, len(list))
	for _, item := range list {
		e, err := decodeEvent(item)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

// Collect gathers up to maxCollectedEvents events with the given name, each
// waited for with the supplied per-event timeout. A device-side timeout ends
// the collection with whatever was gathered so far; any other error aborts.
func (h *CallbackHandler) Collect(ctx context.Context, name string, timeout time.Duration) ([]*Event, error) {
	var events []*Event
	for i := 0; i < maxCollectedEvents; i++ {
		e, err := h.WaitAndGet(ctx, name, timeout)
		if errors.Is(err, ErrEventTimeout) {
			break
		}
		if err != nil {
			return events, err
		}
		events = append(events, e)
	}
	return events, nil
}

// FindByCallbackName returns the first event whose callbackName field equals
// name.
func FindByCallbackName(events []*Event, name string) (*Event, error) {
	for _, e := range events {
		if e.CallbackName() == name {
			return e, nil
		}
	}
	return nil, fmt.Errorf("no event with callback name %q among %d events", name, len(events))
}
