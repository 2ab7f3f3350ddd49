package core

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RetryOptions configures the retry policy.
type RetryOptions struct {
	// MaxRetries is the number of retries after the initial attempt.
	// Defaults to 3. Set to a negative value to disable retries.
	MaxRetries int

	// InitialInterval is the first backoff delay. Defaults to 500ms.
	InitialInterval time.Duration

	// MaxInterval caps the backoff delay. Defaults to 30s.
	MaxInterval time.Duration

	// StatusCodes overrides the set of retried status codes.
	// Defaults to 408, 429, 500, 502, 503, 504.
	StatusCodes []int
}

var defaultRetryStatusCodes = []int{
	http.StatusRequestTimeout,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

type retryPolicy struct {
	maxRetries      int
	initialInterval time.Duration
	maxInterval     time.Duration
	statusCodes     []int
}

// NewRetryPolicy returns a policy that retries transport errors and
// retriable status codes with exponential backoff and jitter, honoring
// Retry-After and the request context.
func NewRetryPolicy(opts *RetryOptions) Policy {
	if opts == nil {
		opts = &RetryOptions{}
	}
	p := &retryPolicy{
		maxRetries:      opts.MaxRetries,
		initialInterval: opts.InitialInterval,
		maxInterval:     opts.MaxInterval,
		statusCodes:     opts.StatusCodes,
	}
	if p.maxRetries == 0 {
		p.maxRetries = 3
	} else if p.maxRetries < 0 {
		p.maxRetries = 0
	}
	if p.initialInterval <= 0 {
		p.initialInterval = 500 * time.Millisecond
	}
	if p.maxInterval <= 0 {
		p.maxInterval = 30 * time.Second
	}
	if len(p.statusCodes) == 0 {
		p.statusCodes = defaultRetryStatusCodes
	}
	return p
}

func (p *retryPolicy) Do(req *Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.initialInterval
	bo.MaxInterval = p.maxInterval
	bo.MaxElapsedTime = 0
	bo.Reset()

	ctx := req.Raw().Context()
	var resp *http.Response
	var err error
	for attempt := 0; ; attempt++ {
		resp, err = req.Next()
		if !p.shouldRetry(resp, err) || attempt >= p.maxRetries {
			return resp, err
		}

		delay := bo.NextBackOff()
		if resp != nil {
			if ra := retryAfter(resp); ra > delay {
				delay = ra
			}
			Drain(resp)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (p *retryPolicy) shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	for _, code := range p.statusCodes {
		if resp.StatusCode == code {
			return true
		}
	}
	return false
}

// retryAfter parses the Retry-After header as either delta-seconds or an
// HTTP date. Returns 0 when absent or unparseable.
func retryAfter(resp *http.Response) time.Duration {
	value := resp.Header.Get("Retry-After")
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if at, err := time.Parse(http.TimeFormat, value); err == nil {
		return time.Until(at)
	}
	return 0
}

// NewRequestIDPolicy returns a policy that stamps each call with a
// client-generated request ID for correlation, unless one is already set.
func NewRequestIDPolicy() Policy {
	return PolicyFunc(func(req *Request) (*http.Response, error) {
		if req.Raw().Header.Get("x-ms-client-request-id") == "" {
			req.Raw().Header.Set("x-ms-client-request-id", uuid.NewString())
		}
		return req.Next()
	})
}

// NewLoggingPolicy returns a policy that logs each attempt at debug level.
// A nil logger disables logging.
func NewLoggingPolicy(logger *zap.Logger) Policy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return PolicyFunc(func(req *Request) (*http.Response, error) {
		start := time.Now()
		resp, err := req.Next()
		fields := []zap.Field{
			zap.String("method", req.Raw().Method),
			zap.String("url", req.Raw().URL.String()),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			logger.Debug("request failed", append(fields, zap.Error(err))...)
			return resp, err
		}
		logger.Debug("request completed", append(fields, zap.Int("status", resp.StatusCode))...)
		return resp, err
	})
}
