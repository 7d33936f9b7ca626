package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/querywright/querywright/internal/observability"
)

// RetryPolicy bounds the completion loop. MaxAttempts of zero retries every
// error, non-retryable ones included, until success or context cancellation.
type RetryPolicy struct {
	MaxAttempts         int
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:         5,
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		Multiplier:          2,
		RandomizationFactor: 0.5,
	}
}

func (p RetryPolicy) backOff() backoff.BackOff {
	if p.InitialInterval <= 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.RandomizationFactor = p.RandomizationFactor
	if p.Multiplier >= 1 {
		b.Multiplier = p.Multiplier
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return b
}

// CompletionExhaustedError is returned once the retry policy gives up.
type CompletionExhaustedError struct {
	Attempts int
	Last     error
}

func (e *CompletionExhaustedError) Error() string {
	return fmt.Sprintf("completion failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *CompletionExhaustedError) Unwrap() error {
	return e.Last
}

type retryable interface {
	Retryable() bool
}

// isRetryable treats errors as transient unless they say otherwise.
func isRetryable(err error) bool {
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}

type Completion struct {
	Content  string
	Attempts int
}

type CompletionLoop struct {
	completer   Completer
	model       string
	temperature float64
	policy      RetryPolicy
	logger      *slog.Logger
}

func NewCompletionLoop(completer Completer, model string, temperature float64, policy RetryPolicy, logger *slog.Logger) *CompletionLoop {
	return &CompletionLoop{
		completer:   completer,
		model:       model,
		temperature: temperature,
		policy:      policy,
		logger:      observability.LoggerOrDiscard(logger),
	}
}

// Run sends the prompt until the completer succeeds or the policy is
// exhausted. A bounded policy also stops on the first non-retryable error.
func (l *CompletionLoop) Run(ctx context.Context, prompt Prompt) (Completion, error) {
	request := CompletionRequest{
		Model:       l.model,
		Messages:    prompt.Messages(),
		Temperature: l.temperature,
	}

	attempts := 0
	operation := func() (string, error) {
		attempts++
		content, err := l.completer.Complete(ctx, request)
		observability.ObserveCompletionAttempt(err)
		if err != nil && l.policy.MaxAttempts > 0 && !isRetryable(err) {
			return "", backoff.Permanent(err)
		}
		return content, err
	}
	notify := func(err error, next time.Duration) {
		l.logger.WarnContext(ctx, "completion attempt failed",
			observability.TraceAttr(ctx),
			slog.Int("attempt", attempts),
			slog.String("model", l.model),
			slog.Duration("retry_in", next),
			slog.String("error", err.Error()),
		)
	}

	options := []backoff.RetryOption{
		backoff.WithBackOff(l.policy.backOff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	}
	if l.policy.MaxAttempts > 0 {
		options = append(options, backoff.WithMaxTries(uint(l.policy.MaxAttempts)))
	}

	content, err := backoff.Retry(ctx, operation, options...)
	if err == nil {
		return Completion{Content: content, Attempts: attempts}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Completion{}, fmt.Errorf("complete prompt: %w", ctxErr)
	}

	observability.IncrementCompletionExhausted()
	l.logger.ErrorContext(ctx, "completion retries exhausted",
		observability.TraceAttr(ctx),
		slog.Int("attempts", attempts),
		slog.String("model", l.model),
		slog.String("error", err.Error()),
	)
	return Completion{}, &CompletionExhaustedError{Attempts: attempts, Last: err}
}
