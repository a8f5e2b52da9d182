package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClient returns canned responses in order, then repeats the last.
type stubClient struct {
	responses []string
	errs      []error
	calls     int
}

func (s *stubClient) Generate(ctx context.Context, req Request) (string, error) {
	i := s.calls
	s.calls++
	if i >= len(s.errs) {
		i = len(s.errs) - 1
	}
	if s.errs[i] != nil {
		return "", s.errs[i]
	}
	return s.responses[i], nil
}

func (s *stubClient) Healthy(ctx context.Context) error { return nil }

func TestGuardOpensAfterConsecutiveFailures(t *testing.T) {
	boom := errors.New("connection refused")
	stub := &stubClient{responses: []string{""}, errs: []error{boom}}

	guard := NewGuard(stub, GuardConfig{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		OpenTimeout:      time.Hour,
		DefaultTimeout:   time.Second,
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := guard.Generate(ctx, Request{Model: "m", Prompt: "p"})
		require.ErrorIs(t, err, boom)
	}

	// Breaker is now open: calls fail fast without reaching the client.
	before := stub.calls
	_, err := guard.Generate(ctx, Request{Model: "m", Prompt: "p"})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, before, stub.calls)
}

func TestGuardRecoversThroughHalfOpen(t *testing.T) {
	boom := errors.New("timeout")
	stub := &stubClient{
		responses: []string{"", "", "ok", "ok", "ok"},
		errs:      []error{boom, boom, nil, nil, nil},
	}

	guard := NewGuard(stub, GuardConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		OpenTimeout:      time.Millisecond,
		DefaultTimeout:   time.Second,
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := guard.Generate(ctx, Request{Prompt: "p"})
		require.Error(t, err)
	}

	// After the open timeout, a probe succeeds and closes the breaker.
	time.Sleep(5 * time.Millisecond)
	text, err := guard.Generate(ctx, Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)

	text, err = guard.Generate(ctx, Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestGuardNeverRetries(t *testing.T) {
	boom := errors.New("model not loaded")
	stub := &stubClient{responses: []string{""}, errs: []error{boom}}

	guard := NewGuard(stub, DefaultGuardConfig())
	_, err := guard.Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, 1, stub.calls, "a failed call must not be retried within the request")
}

func TestGuardAppliesDefaultTimeout(t *testing.T) {
	var sawDeadline bool
	probe := clientFunc(func(ctx context.Context, req Request) (string, error) {
		_, sawDeadline = ctx.Deadline()
		return "done", nil
	})

	guard := NewGuard(probe, GuardConfig{DefaultTimeout: time.Second})
	_, err := guard.Generate(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.True(t, sawDeadline, "calls without a deadline must get the default timeout")
}

// clientFunc adapts a function to the Client interface for tests.
type clientFunc func(ctx context.Context, req Request) (string, error)

func (f clientFunc) Generate(ctx context.Context, req Request) (string, error) { return f(ctx, req) }
func (f clientFunc) Healthy(ctx context.Context) error                        { return nil }
