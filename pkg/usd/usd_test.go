package usd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdtb/wifitest/internal/snippet"
)

type recordingCaller struct {
	calls [][]any
	err   error
}

func (r *recordingCaller) Call(_ context.Context, method string, params ...any) (any, error) {
	r.calls = append(r.calls, append([]any{method}, params...))
	return nil, r.err
}

func (r *recordingCaller) CallAsync(context.Context, string, ...any) (*snippet.CallbackHandler, error) {
	return nil, errors.New("not used")
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	c := &recordingCaller{}
	cfg := DefaultConfig()

	require.NoError(t, StartPublish(context.Background(), c, cfg))
	require.NoError(t, SubscribeDiscoverAndSend(context.Background(), c, cfg, DefaultMessage))
	require.NoError(t, StopPublish(context.Background(), c))
	require.NoError(t, StopSubscribe(context.Background(), c))

	assert.Equal(t, [][]any{
		{"startUsdPublishSession", "_test", "6677"},
		{"subscribeDiscoverAndSendMessage", "_test", "6677", "test message!"},
		{"stopUsdPublishSession"},
		{"stopUsdSubscribeSession"},
	}, c.calls)
}

func TestSubscribeError(t *testing.T) {
	c := &recordingCaller{err: errors.New("no peer found")}
	err := SubscribeDiscoverAndSend(context.Background(), c, DefaultConfig(), DefaultMessage)
	require.ErrorContains(t, err, "usd subscribe and send")
}
