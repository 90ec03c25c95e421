package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/gtm-copilot/internal/logging"
	"github.com/jonathan/gtm-copilot/internal/metrics"
)

// RetryPolicy bounds the attempts of one logical call.
type RetryPolicy struct {
	// MaxAttempts counts the first attempt.
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	RetryableStatuses []int
	// AttemptTimeout bounds a single attempt. Zero means only ctx applies.
	AttemptTimeout time.Duration
}

// DefaultRetryableStatuses are rate limiting and server-side failures.
var DefaultRetryableStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// DefaultRetryPolicy returns 3 attempts with 1s, 2s backoff capped at 16s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BaseDelay:         time.Second,
		MaxDelay:          16 * time.Second,
		RetryableStatuses: DefaultRetryableStatuses,
		AttemptTimeout:    90 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultRetryPolicy.
func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.RetryableStatuses == nil {
		p.RetryableStatuses = def.RetryableStatuses
	}
	return p
}

// Delay returns the wait before retry n (n >= 1): BaseDelay * 2^(n-1), capped
// at MaxDelay.
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 || p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			break
		}
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// IsRetryable reports whether status is in RetryableStatuses.
func (p RetryPolicy) IsRetryable(status int) bool {
	for _, s := range p.RetryableStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ResilientClient performs one logical call with bounded retries and
// exponential backoff. It is safe for concurrent use.
type ResilientClient struct {
	transport Transport
	policy    RetryPolicy
	logger    *zap.Logger
	sleep     SleepFunc
	now       func() time.Time
}

// Option configures a ResilientClient.
type Option func(*ResilientClient)

// WithLogger sets the logger used for attempts of requests without a hook.
func WithLogger(l *zap.Logger) Option {
	return func(c *ResilientClient) { c.logger = logging.OrNop(l) }
}

// WithSleep replaces the backoff wait. Tests use it to avoid real delays.
func WithSleep(fn SleepFunc) Option {
	return func(c *ResilientClient) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// NewResilientClient wraps transport with policy.
func NewResilientClient(transport Transport, policy RetryPolicy, opts ...Option) *ResilientClient {
	c := &ResilientClient{
		transport: transport,
		policy:    policy.withDefaults(),
		logger:    zap.NewNop(),
		sleep:     sleepContext,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the effective retry policy.
func (c *ResilientClient) Policy() RetryPolicy {
	return c.policy
}

// Send performs req. With K retryable answers before a success it returns the
// success iff K < MaxAttempts. Errors are *TransportError, *HTTPError or
// *EmptyResponseError; a canceled ctx surfaces as *TransportError wrapping
// ctx.Err().
func (c *ResilientClient) Send(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("generation request is nil")
	}

	var (
		lastResp *GenerationResponse
		lastErr  error
	)

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.policy.Delay(attempt - 1)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, &TransportError{Message: "canceled during backoff", Attempts: attempt - 1, Cause: err}
			}
		}

		started := c.now()
		resp, err := c.do(ctx, req)
		elapsed := c.now().Sub(started)
		metrics.LLMAttemptDuration.WithLabelValues(string(req.Stage)).Observe(elapsed.Seconds())

		last := attempt == c.policy.MaxAttempts
		ev := AttemptEvent{Stage: req.Stage, Attempt: attempt, Duration: elapsed, Time: started, Err: err}
		if !last {
			ev.Delay = c.policy.Delay(attempt)
		}

		if err != nil {
			lastErr, lastResp = err, nil
			if ctx.Err() != nil {
				ev.Outcome = metrics.OutcomeTransport
				c.observe(req, ev)
				return nil, &TransportError{Message: "request canceled", Attempts: attempt, Cause: err}
			}
			ev.Outcome = metrics.OutcomeRetry
			if last {
				ev.Outcome = metrics.OutcomeTransport
			}
			c.observe(req, ev)
			continue
		}

		resp.Attempts = attempt
		ev.Status = resp.Status

		switch {
		case resp.Status >= 200 && resp.Status <= 299:
			if !resp.HasText() {
				ev.Outcome = metrics.OutcomeEmpty
				c.observe(req, ev)
				return resp, &EmptyResponseError{Status: resp.Status}
			}
			ev.Outcome = metrics.OutcomeSuccess
			c.observe(req, ev)
			return resp, nil
		case c.policy.IsRetryable(resp.Status):
			lastResp, lastErr = resp, nil
			ev.Outcome = metrics.OutcomeRetry
			if last {
				ev.Outcome = metrics.OutcomeExhausted
			}
			c.observe(req, ev)
		default:
			ev.Outcome = metrics.OutcomeRejected
			c.observe(req, ev)
			return resp, newHTTPError(resp.Status, resp.Body, attempt)
		}
	}

	if lastResp != nil {
		return lastResp, newHTTPError(lastResp.Status, lastResp.Body, c.policy.MaxAttempts)
	}
	return nil, &TransportError{Message: "attempts exhausted", Attempts: c.policy.MaxAttempts, Cause: lastErr}
}

// do runs one attempt under the per-attempt timeout.
func (c *ResilientClient) do(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error) {
	attemptCtx := ctx
	if c.policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.policy.AttemptTimeout)
		defer cancel()
	}
	resp, err := c.transport.Do(attemptCtx, req)
	if err == nil && resp == nil {
		err = errors.New("transport returned no response")
	}
	return resp, err
}

// observe records an attempt. A request hook owns reporting for its request,
// so the client logs only attempts nobody else sees.
func (c *ResilientClient) observe(req *GenerationRequest, ev AttemptEvent) {
	metrics.LLMAttempts.WithLabelValues(string(ev.Stage), ev.Outcome).Inc()
	if req.Hook != nil {
		req.Hook(ev)
		return
	}

	fields := []zap.Field{
		zap.String("stage", string(ev.Stage)),
		zap.Int("attempt", ev.Attempt),
		zap.Int("max_attempts", c.policy.MaxAttempts),
		zap.Int("status", ev.Status),
		zap.String("outcome", ev.Outcome),
		zap.Duration("duration", ev.Duration),
		zap.Time("issued_at", ev.Time),
	}
	if ev.Delay > 0 && ev.Outcome == metrics.OutcomeRetry {
		fields = append(fields, zap.Duration("backoff", ev.Delay))
	}
	if ev.Err != nil {
		fields = append(fields, zap.Error(ev.Err))
	}
	switch ev.Outcome {
	case metrics.OutcomeSuccess:
		c.logger.Info("generation attempt", fields...)
	case metrics.OutcomeRetry:
		c.logger.Warn("generation attempt", fields...)
	default:
		c.logger.Error("generation attempt", fields...)
	}
}
