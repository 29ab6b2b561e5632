package tools

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/ibtisamdev/reva-sub001/pkg/logging"
)

type ResilienceConfig struct {
	MaxRetries   int
	Timeout      time.Duration
	RetryBackoff time.Duration
	// BreakerFailures consecutive transport failures open a tool's breaker
	// for BreakerDelay.
	BreakerFailures uint
	BreakerDelay    time.Duration
	Logger          logging.Logger
}

func (c ResilienceConfig) withDefaults() ResilienceConfig {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerDelay <= 0 {
		c.BreakerDelay = 30 * time.Second
	}
	return c
}

// Resilient wraps an Invoker with a per-attempt timeout, retries for
// transport failures and a circuit breaker per tool.
type Resilient struct {
	next  Invoker
	cfg   ResilienceConfig
	retry retrypolicy.RetryPolicy[string]

	mu       sync.Mutex
	breakers map[string]circuitbreaker.CircuitBreaker[string]
}

func NewResilient(next Invoker, cfg ResilienceConfig) *Resilient {
	cfg = cfg.withDefaults()
	retry := retrypolicy.NewBuilder[string]().
		HandleIf(func(_ string, err error) bool { return retryable(err) }).
		WithBackoff(cfg.RetryBackoff, 10*cfg.RetryBackoff).
		WithMaxRetries(cfg.MaxRetries).
		ReturnLastFailure().
		Build()
	return &Resilient{
		next:     next,
		cfg:      cfg,
		retry:    retry,
		breakers: make(map[string]circuitbreaker.CircuitBreaker[string]),
	}
}

func (r *Resilient) HasTool(name string) bool {
	return r.next.HasTool(name)
}

func (r *Resilient) CallTool(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	return failsafe.With[string](r.retry, r.breaker(name)).
		WithContext(ctx).
		Get(func() (string, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
			defer cancel()
			return r.next.CallTool(attemptCtx, name, arguments)
		})
}

// BreakerOpen reports whether the named tool's breaker is currently open.
func (r *Resilient) BreakerOpen(name string) bool {
	r.mu.Lock()
	cb, ok := r.breakers[name]
	r.mu.Unlock()
	return ok && cb.IsOpen()
}

func (r *Resilient) breaker(name string) circuitbreaker.CircuitBreaker[string] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	logger := r.cfg.Logger
	cb := circuitbreaker.NewBuilder[string]().
		HandleIf(func(_ string, err error) bool { return retryable(err) }).
		WithFailureThreshold(r.cfg.BreakerFailures).
		WithDelay(r.cfg.BreakerDelay).
		WithSuccessThreshold(1).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			if logger != nil {
				logger.WithFields(logging.Fields{
					"tool":       name,
					"from_state": stateName(event.OldState),
					"to_state":   stateName(event.NewState),
				}).Warn("Tool circuit breaker state change")
			}
		}).
		Build()
	r.breakers[name] = cb
	return cb
}

// retryable reports transport-level failures. Tool rejections, missing
// tools, open breakers and caller cancellation are final.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrRejected),
		errors.Is(err, ErrUnavailable),
		errors.Is(err, circuitbreaker.ErrOpen),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

func stateName(state circuitbreaker.State) string {
	switch state {
	case circuitbreaker.ClosedState:
		return "closed"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	case circuitbreaker.OpenState:
		return "open"
	default:
		return "unknown"
	}
}
