package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name   string
	resp   *CompletionResponse
	err    error
	calls  int
	onCall func()
}

func (s *stubProvider) CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	s.calls++
	if s.onCall != nil {
		s.onCall()
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func (s *stubProvider) Name() string {
	return s.name
}

func TestNewChain_RequiresProviders(t *testing.T) {
	_, err := NewChain(nil)
	require.Error(t, err)
}

func TestChain_FirstSuccess(t *testing.T) {
	primary := &stubProvider{name: "primary", resp: &CompletionResponse{Content: "from primary"}}
	fallback := &stubProvider{name: "fallback", resp: &CompletionResponse{Content: "from fallback"}}

	chain, err := NewChain([]Provider{primary, fallback})
	require.NoError(t, err)

	resp, err := chain.CreateCompletion(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from primary", resp.Content)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, fallback.calls)
}

func TestChain_FallsBack(t *testing.T) {
	var fellBack []string

	primary := &stubProvider{
		name: "primary",
		err:  NewProviderError("primary", ErrorCodeServerError, "down for maintenance", nil),
	}
	fallback := &stubProvider{name: "fallback", resp: &CompletionResponse{Content: "from fallback"}}

	chain, err := NewChain(
		[]Provider{primary, fallback},
		WithFallbackHook(func(provider string) { fellBack = append(fellBack, provider) }),
	)
	require.NoError(t, err)

	resp, err := chain.CreateCompletion(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from fallback", resp.Content)
	assert.Equal(t, []string{"primary"}, fellBack)
}

func TestChain_AllFail(t *testing.T) {
	primary := &stubProvider{name: "primary", err: errors.New("primary down")}
	fallback := &stubProvider{name: "fallback", err: errors.New("fallback down")}

	chain, err := NewChain([]Provider{primary, fallback})
	require.NoError(t, err)

	_, err = chain.CreateCompletion(context.Background(), CompletionRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGenerationUnavailable)
	assert.Contains(t, err.Error(), "fallback down")
}

func TestChain_StopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	primary := &stubProvider{
		name:   "primary",
		err:    errors.New("interrupted"),
		onCall: cancel,
	}
	fallback := &stubProvider{name: "fallback", resp: &CompletionResponse{Content: "unused"}}

	chain, err := NewChain([]Provider{primary, fallback})
	require.NoError(t, err)

	_, err = chain.CreateCompletion(ctx, CompletionRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fallback.calls)
}

func TestChain_RateLimiterHonorsContext(t *testing.T) {
	provider := &stubProvider{name: "only", resp: &CompletionResponse{Content: "ok"}}

	chain, err := NewChain([]Provider{provider}, WithRateLimit(0.001, 1))
	require.NoError(t, err)

	// First call consumes the burst token.
	_, err = chain.CreateCompletion(context.Background(), CompletionRequest{})
	require.NoError(t, err)

	// Second call would wait ~1000s; a cancelled context aborts the wait.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = chain.CreateCompletion(ctx, CompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, 1, provider.calls)
}

func TestChain_Providers(t *testing.T) {
	chain, err := NewChain([]Provider{
		&stubProvider{name: "gemini"},
		&stubProvider{name: "openrouter"},
	})
	require.NoError(t, err)

	assert.Equal(t, "chain", chain.Name())
	assert.Equal(t, []string{"gemini", "openrouter"}, chain.Providers())
}
