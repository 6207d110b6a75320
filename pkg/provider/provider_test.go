package provider

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	t.Run("should retry rate limits and server errors", func(t *testing.T) {
		assert.True(t, IsRetryable(fmt.Errorf("http 429: rate limit exceeded")))
		assert.True(t, IsRetryable(fmt.Errorf("upstream returned 503")))
		assert.True(t, IsRetryable(fmt.Errorf("read tcp: connection reset by peer")))
	})

	t.Run("should not retry permanent errors", func(t *testing.T) {
		assert.False(t, IsRetryable(nil))
		assert.False(t, IsRetryable(fmt.Errorf("invalid api key")))
		assert.False(t, IsRetryable(fmt.Errorf("http 401: unauthorized")))
	})
}

// stubProvider scripts Complete results for factory tests.
type stubProvider struct {
	name  string
	calls int
	fn    func(call int) (*Response, error)
}

func (s *stubProvider) Complete(context.Context, Request) (*Response, error) {
	s.calls++
	return s.fn(s.calls)
}

func (s *stubProvider) Stream(ctx context.Context, req Request, onDelta StreamFunc) (*Response, error) {
	return nil, ErrStreamingUnsupported
}

func (s *stubProvider) Name() string { return s.name }

func newTestFactory(t *testing.T, profiles []Profile, create func(Profile) (Provider, error)) *Factory {
	factory, err := NewFactory(profiles, zerolog.New(os.Stdout).Level(zerolog.Disabled))
	require.NoError(t, err)
	factory.create = create
	return factory
}

func TestFactory(t *testing.T) {
	ctx := context.Background()

	t.Run("should require at least one profile", func(t *testing.T) {
		_, err := NewFactory(nil, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("should fail over to the next profile on retryable errors", func(t *testing.T) {
		flaky := &stubProvider{name: "flaky", fn: func(int) (*Response, error) {
			return nil, fmt.Errorf("503 service unavailable")
		}}
		healthy := &stubProvider{name: "healthy", fn: func(int) (*Response, error) {
			return &Response{Content: "hello"}, nil
		}}
		byID := map[string]Provider{"a": flaky, "b": healthy}

		factory := newTestFactory(t, []Profile{
			{ID: "a", Vendor: "anthropic", Priority: 1},
			{ID: "b", Vendor: "openai", Priority: 2},
		}, func(p Profile) (Provider, error) { return byID[p.ID], nil })
		factory.maxRetries = 1

		response, err := factory.Complete(ctx, Request{})
		require.NoError(t, err)
		assert.Equal(t, "hello", response.Content)
		assert.Equal(t, 1, flaky.calls)
		assert.Equal(t, 1, healthy.calls)
	})

	t.Run("should stop immediately on permanent errors", func(t *testing.T) {
		broken := &stubProvider{name: "broken", fn: func(int) (*Response, error) {
			return nil, fmt.Errorf("invalid api key")
		}}
		unused := &stubProvider{name: "unused", fn: func(int) (*Response, error) {
			return &Response{Content: "x"}, nil
		}}
		byID := map[string]Provider{"a": broken, "b": unused}

		factory := newTestFactory(t, []Profile{
			{ID: "a", Vendor: "anthropic", Priority: 1},
			{ID: "b", Vendor: "openai", Priority: 2},
		}, func(p Profile) (Provider, error) { return byID[p.ID], nil })

		_, err := factory.Complete(ctx, Request{})
		assert.Error(t, err)
		assert.Equal(t, 0, unused.calls)
	})

	t.Run("should surface streaming unsupported unchanged", func(t *testing.T) {
		stub := &stubProvider{name: "stub", fn: func(int) (*Response, error) {
			return &Response{}, nil
		}}
		factory := newTestFactory(t, []Profile{{ID: "a", Vendor: "anthropic", Priority: 1}},
			func(Profile) (Provider, error) { return stub, nil })

		_, err := factory.Stream(ctx, Request{}, func(string) error { return nil })
		assert.ErrorIs(t, err, ErrStreamingUnsupported)
	})

	t.Run("should put failing profiles into cooldown", func(t *testing.T) {
		failing := &stubProvider{name: "failing", fn: func(int) (*Response, error) {
			return nil, fmt.Errorf("429 too many requests")
		}}
		factory := newTestFactory(t, []Profile{{ID: "a", Vendor: "anthropic", Priority: 1}},
			func(Profile) (Provider, error) { return failing, nil })
		factory.maxRetries = 1

		_, err := factory.Complete(ctx, Request{})
		require.Error(t, err)

		factory.mu.Lock()
		cooldown := factory.profiles[0].CooldownUntil
		factory.mu.Unlock()
		require.NotNil(t, cooldown)

		// The profile is skipped while cooling down, so only the not-usable
		// error remains.
		_, err = factory.Complete(ctx, Request{})
		assert.ErrorContains(t, err, "no usable credential profile")
		assert.Equal(t, 1, failing.calls)
	})

	t.Run("should reject unknown vendors", func(t *testing.T) {
		_, err := NewVendorProvider(Profile{Vendor: "carrier-pigeon"})
		assert.Error(t, err)
	})
}
