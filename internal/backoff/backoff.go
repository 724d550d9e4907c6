// Package backoff classifies transport failures and retries transient ones
// with exponentially increasing delays.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

type Kind int

const (
	KindPermanent Kind = iota
	KindConnectivity
	KindTimeout
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "permanent"
	}
}

// Error wraps a transport failure with its retry classification. A
// rate-limited failure may carry the server-provided wait duration.
type Error struct {
	Kind       Kind
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindPermanent, Err: err}
}

func Connectivity(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindConnectivity, Err: err}
}

func Timeout(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindTimeout, Err: err}
}

func RateLimited(err error, retryAfter time.Duration) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindRateLimited, RetryAfter: retryAfter, Err: err}
}

// ClassifyNetwork maps a raw network error to a retry classification.
// Unwrapped errors default to connectivity because the HTTP client surfaces
// refused connections and DNS failures as generic url.Errors.
func ClassifyNetwork(err error) error {
	if err == nil {
		return nil
	}
	var alreadyClassified *Error
	if errors.As(err, &alreadyClassified) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout(err)
	}
	return Connectivity(err)
}

type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// Sleep is injectable for tests; nil means time.Sleep.
	Sleep  func(d time.Duration)
	Logger *slog.Logger
}

const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = 1 * time.Second
	defaultMaxDelay     = 60 * time.Second
)

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = defaultInitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.Sleep == nil {
		p.Sleep = time.Sleep
	}
	return p
}

// Do runs fn up to MaxAttempts times. Transient failures (connectivity,
// timeout) wait with exponential backoff between attempts; rate-limited
// failures honor the server-provided wait when present; permanent failures
// abort immediately.
func (p Policy) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("fn is required")
	}
	p = p.normalized()

	delay := p.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			if attempt > 1 && p.Logger != nil {
				p.Logger.Info(name+"_retry_ok", "attempt", attempt)
			}
			return nil
		}
		lastErr = err

		var classified *Error
		if !errors.As(err, &classified) || classified.Kind == KindPermanent {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		wait := delay
		if classified.Kind == KindRateLimited && classified.RetryAfter > 0 {
			wait = classified.RetryAfter
		}
		if p.Logger != nil {
			p.Logger.Warn(name+"_retrying",
				"attempt", attempt,
				"kind", classified.Kind.String(),
				"wait", wait.String(),
				"error", err.Error())
		}
		p.Sleep(wait)
		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, p.MaxAttempts, lastErr)
}
