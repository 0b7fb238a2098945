package ai

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/siegecorps/siegebot/internal/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	calls   atomic.Int32
	replies []func(ctx context.Context) (string, error)
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(ctx context.Context, _ models.GenerationRequest) (string, error) {
	n := int(s.calls.Add(1)) - 1
	if n >= len(s.replies) {
		n = len(s.replies) - 1
	}
	return s.replies[n](ctx)
}

func reply(text string, err error) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return text, err }
}

func newGateway(t *testing.T, p Provider, timeout time.Duration) *Gateway {
	t.Helper()
	log, _ := test.NewNullLogger()
	g := NewGateway(p, timeout, 1, nil, log)
	g.backoff = 10 * time.Millisecond
	return g
}

func TestGatewaySuccess(t *testing.T) {
	p := &stubProvider{replies: []func(context.Context) (string, error){reply("hello", nil)}}
	text, err := newGateway(t, p, time.Second).Generate(context.Background(), models.GenerationRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.EqualValues(t, 1, p.calls.Load())
}

func TestGatewayTimeoutWithUnresponsiveProvider(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	// ignores ctx entirely
	p := &stubProvider{replies: []func(context.Context) (string, error){
		func(context.Context) (string, error) {
			<-release
			return "late", nil
		},
	}}

	start := time.Now()
	_, err := newGateway(t, p, 100*time.Millisecond).Generate(context.Background(), models.GenerationRequest{})
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, models.ErrGenerationTimeout)
	assert.Less(t, elapsed, time.Second)
	assert.EqualValues(t, 1, p.calls.Load())
}

func TestGatewayRetriesTransientOnce(t *testing.T) {
	unavailable := NewProviderError("stub", 503, errors.New("unavailable"))

	t.Run("recovers", func(t *testing.T) {
		p := &stubProvider{replies: []func(context.Context) (string, error){
			reply("", unavailable),
			reply("second", nil),
		}}
		text, err := newGateway(t, p, time.Second).Generate(context.Background(), models.GenerationRequest{})
		require.NoError(t, err)
		assert.Equal(t, "second", text)
		assert.EqualValues(t, 2, p.calls.Load())
	})

	t.Run("gives up after one retry", func(t *testing.T) {
		p := &stubProvider{replies: []func(context.Context) (string, error){reply("", unavailable)}}
		_, err := newGateway(t, p, time.Second).Generate(context.Background(), models.GenerationRequest{})
		assert.ErrorIs(t, err, models.ErrGenerationProvider)
		assert.EqualValues(t, 2, p.calls.Load())
	})
}

func TestGatewayDoesNotRetryPermanentErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		text string
	}{
		{"client error", NewProviderError("stub", 400, errors.New("bad request")), ""},
		{"empty reply", nil, "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &stubProvider{replies: []func(context.Context) (string, error){reply(tt.text, tt.err)}}
			_, err := newGateway(t, p, time.Second).Generate(context.Background(), models.GenerationRequest{})
			assert.ErrorIs(t, err, models.ErrGenerationProvider)
			assert.EqualValues(t, 1, p.calls.Load())

			// provider errors never leak past the gateway
			var pe *ProviderError
			assert.False(t, errors.As(err, &pe))
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(NewProviderError("x", 500, errors.New("boom"))))
	assert.True(t, IsTransient(NewProviderError("x", 429, errors.New("slow down"))))
	assert.True(t, IsTransient(NewProviderError("x", 0, errors.New("connection reset"))))
	assert.False(t, IsTransient(NewProviderError("x", 401, errors.New("unauthorized"))))
	assert.False(t, IsTransient(errEmptyReply))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(nil))
}

func TestNewGatewayClampsRetries(t *testing.T) {
	log, _ := test.NewNullLogger()
	assert.Equal(t, 1, NewGateway(&stubProvider{}, time.Second, 5, nil, log).maxRetries)
	assert.Equal(t, 0, NewGateway(&stubProvider{}, time.Second, -1, nil, log).maxRetries)
}
