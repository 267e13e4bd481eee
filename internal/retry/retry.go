// Package retry runs a remote call with a bounded number of attempts and a
// linearly growing delay between them.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultDeadline    = 30 * time.Second
	DefaultMessage     = "Error fetching data"
)

// Notifier receives the user-visible message once a call has exhausted its attempts.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

type NotifierFunc func(ctx context.Context, message string)

func (f NotifierFunc) Notify(ctx context.Context, message string) { f(ctx, message) }

type Policy struct {
	// MaxAttempts counts the first call, so 3 means at most 2 retries.
	MaxAttempts int
	// BaseDelay is multiplied by the attempt index: 1x before the first retry, 2x before the second.
	BaseDelay time.Duration
	// Deadline bounds the whole call including waits. Zero disables it.
	Deadline time.Duration
	// Message prefixes the notification, e.g. "Error loading genres".
	Message  string
	Notifier Notifier
	// OnRetry is called before each wait with the failed attempt number.
	OnRetry func(attempt int, delay time.Duration, err error)
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Deadline:    DefaultDeadline,
		Message:     DefaultMessage,
	}
}

// WithMessage returns a copy of p that reports failures under message.
func (p Policy) WithMessage(message string) Policy {
	p.Message = message
	return p
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.Message == "" {
		p.Message = DefaultMessage
	}
	return p
}

// Exhausted is returned when every attempt failed or the deadline passed first.
type Exhausted struct {
	Attempts int
	Message  string
	Err      error
}

func (e *Exhausted) Error() string {
	return fmt.Sprintf("%s (attempt %d): %v", e.Message, e.Attempts, e.Err)
}

func (e *Exhausted) Unwrap() error { return e.Err }

// UserMessage is the text shown in the transient notification.
func (e *Exhausted) UserMessage() string {
	return UserMessage(e.Message)
}

func UserMessage(message string) string {
	return message + ". Please try again later."
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// linearBackOff yields BaseDelay, 2*BaseDelay, 3*BaseDelay, ...
type linearBackOff struct {
	base time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.base
}

func (b *linearBackOff) Reset() { b.n = 0 }

// Do calls op until it succeeds, returns a permanent error, or runs out of
// attempts. A success short-circuits the remaining attempts.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	callCtx := ctx
	if p.Deadline > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.Deadline)
		defer cancel()
	}

	var (
		zero      T
		attempts  int
		lastErr   error
		permanent bool
	)

	opts := []backoff.RetryOption{
		backoff.WithBackOff(&linearBackOff{base: p.BaseDelay}),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithNotify(func(err error, delay time.Duration) {
			slog.Warn("retry: attempt failed",
				"message", p.Message,
				"attempt", attempts,
				"max_attempts", p.MaxAttempts,
				"delay_ms", delay.Milliseconds(),
				"error", err,
			)
			if p.OnRetry != nil {
				p.OnRetry(attempts, delay, err)
			}
		}),
	}
	// backoff applies its own 15 minute cap unless told otherwise.
	opts = append(opts, backoff.WithMaxElapsedTime(p.Deadline))

	result, err := backoff.Retry(callCtx, func() (T, error) {
		attempts++
		v, err := op(callCtx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		var pe *permanentError
		if errors.As(err, &pe) {
			permanent = true
			lastErr = pe.err
			return v, backoff.Permanent(pe.err)
		}
		return v, err
	}, opts...)
	if err == nil {
		return result, nil
	}

	if permanent {
		return zero, lastErr
	}
	if ctx.Err() != nil {
		return zero, ctx.Err()
	}
	if lastErr == nil {
		lastErr = err
	}

	exhausted := &Exhausted{Attempts: attempts, Message: p.Message, Err: lastErr}
	slog.Error("retry: giving up", "message", p.Message, "attempts", attempts, "error", lastErr)
	if p.Notifier != nil {
		p.Notifier.Notify(ctx, exhausted.UserMessage())
	}
	return zero, exhausted
}
