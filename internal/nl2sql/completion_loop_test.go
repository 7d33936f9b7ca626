package nl2sql

import (
	"context"
	"errors"
	"testing"
	"time"
)

type scriptedCompleter struct {
	results  []string
	errs     []error
	requests []CompletionRequest
	onCall   func(call int)
}

func (c *scriptedCompleter) Complete(_ context.Context, req CompletionRequest) (string, error) {
	call := len(c.requests)
	c.requests = append(c.requests, req)
	if c.onCall != nil {
		c.onCall(call)
	}
	if call < len(c.errs) && c.errs[call] != nil {
		return "", c.errs[call]
	}
	if call < len(c.results) {
		return c.results[call], nil
	}
	return "", errors.New("no scripted result")
}

func noDelayPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts}
}

func TestCompletionLoopRetriesUntilSuccess(t *testing.T) {
	completer := &scriptedCompleter{
		errs:    []error{errors.New("connection reset")},
		results: []string{"", "SELECT 2"},
	}
	loop := NewCompletionLoop(completer, "ft:model", 0, noDelayPolicy(5), nil)

	completion, err := loop.Run(context.Background(), Prompt{System: "sys", User: "usr"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if completion.Attempts != 2 || len(completer.requests) != 2 {
		t.Fatalf("attempts = %d, requests = %d", completion.Attempts, len(completer.requests))
	}
	if completion.Content != "SELECT 2" {
		t.Fatalf("Content = %q", completion.Content)
	}
}

func TestCompletionLoopSendsModelTemperatureAndTwoMessages(t *testing.T) {
	completer := &scriptedCompleter{results: []string{"SELECT 1"}}
	loop := NewCompletionLoop(completer, "ft:model", 0, noDelayPolicy(1), nil)

	if _, err := loop.Run(context.Background(), Prompt{System: "sys", User: "usr"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	req := completer.requests[0]
	if req.Model != "ft:model" || req.Temperature != 0 {
		t.Fatalf("request = %+v", req)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
		t.Fatalf("messages = %#v", req.Messages)
	}
}

func TestCompletionLoopReturnsExhaustedErrorAfterMaxAttempts(t *testing.T) {
	last := errors.New("401 unauthorized")
	completer := &scriptedCompleter{errs: []error{errors.New("boom"), errors.New("boom"), last}}
	loop := NewCompletionLoop(completer, "ft:model", 0, noDelayPolicy(3), nil)

	_, err := loop.Run(context.Background(), Prompt{})
	var exhausted *CompletionExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Run() error = %v, want CompletionExhaustedError", err)
	}
	if exhausted.Attempts != 3 {
		t.Fatalf("Attempts = %d", exhausted.Attempts)
	}
	if !errors.Is(err, last) {
		t.Fatalf("exhausted error should wrap last failure, got %v", exhausted.Last)
	}
}

func TestCompletionLoopUnboundedPolicyKeepsRetrying(t *testing.T) {
	errs := make([]error, 25)
	results := make([]string, 26)
	for i := range errs {
		errs[i] = errors.New("rate limited")
	}
	results[25] = "SELECT 26"
	completer := &scriptedCompleter{errs: errs, results: results}
	loop := NewCompletionLoop(completer, "ft:model", 0, noDelayPolicy(0), nil)

	completion, err := loop.Run(context.Background(), Prompt{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if completion.Attempts != 26 || completion.Content != "SELECT 26" {
		t.Fatalf("completion = %+v", completion)
	}
}

func TestCompletionLoopStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	completer := &scriptedCompleter{
		errs:   []error{errors.New("timeout"), errors.New("timeout"), errors.New("timeout")},
		onCall: func(int) { cancel() },
	}
	loop := NewCompletionLoop(completer, "ft:model", 0, noDelayPolicy(0), nil)

	_, err := loop.Run(ctx, Prompt{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	var exhausted *CompletionExhaustedError
	if errors.As(err, &exhausted) {
		t.Fatal("cancellation should not be reported as exhaustion")
	}
	if len(completer.requests) != 1 {
		t.Fatalf("requests = %d", len(completer.requests))
	}
}

func TestCompletionLoopBacksOffBetweenAttempts(t *testing.T) {
	completer := &scriptedCompleter{
		errs:    []error{errors.New("unavailable")},
		results: []string{"", "SELECT 1"},
	}
	policy := RetryPolicy{MaxAttempts: 2, InitialInterval: 20 * time.Millisecond, MaxInterval: 20 * time.Millisecond, Multiplier: 1}
	loop := NewCompletionLoop(completer, "ft:model", 0, policy, nil)

	start := time.Now()
	if _, err := loop.Run(context.Background(), Prompt{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("elapsed = %s, expected a backoff delay", elapsed)
	}
}

func TestDefaultRetryPolicyIsBounded(t *testing.T) {
	policy := DefaultRetryPolicy()
	if policy.MaxAttempts != 5 || policy.InitialInterval <= 0 {
		t.Fatalf("DefaultRetryPolicy() = %+v", policy)
	}
}

type statusError struct {
	retryable bool
}

func (e statusError) Error() string   { return "status error" }
func (e statusError) Retryable() bool { return e.retryable }

func TestCompletionLoopStopsOnNonRetryableError(t *testing.T) {
	completer := &scriptedCompleter{errs: []error{statusError{retryable: true}, statusError{retryable: false}}}
	loop := NewCompletionLoop(completer, "ft:model", 0, noDelayPolicy(5), nil)

	_, err := loop.Run(context.Background(), Prompt{})
	var exhausted *CompletionExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Run() error = %v", err)
	}
	if exhausted.Attempts != 2 || len(completer.requests) != 2 {
		t.Fatalf("attempts = %d, requests = %d", exhausted.Attempts, len(completer.requests))
	}
	var status statusError
	if !errors.As(err, &status) || status.retryable {
		t.Fatalf("last error = %v", exhausted.Last)
	}
}

func TestCompletionLoopUnboundedPolicyRetriesNonRetryableErrors(t *testing.T) {
	completer := &scriptedCompleter{
		errs:    []error{statusError{retryable: false}},
		results: []string{"", "SELECT 1"},
	}
	loop := NewCompletionLoop(completer, "ft:model", 0, RetryPolicy{MaxAttempts: 0, InitialInterval: 0}, nil)

	completion, err := loop.Run(context.Background(), Prompt{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if completion.Attempts != 2 || len(completer.requests) != 2 || completion.Content != "SELECT 1" {
		t.Fatalf("completion = %+v, requests = %d", completion, len(completer.requests))
	}
}
