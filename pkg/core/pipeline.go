package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// Policy is a single stage in the request pipeline. A policy inspects or
// mutates the request, calls req.Next() to run the remainder of the pipeline,
// and may inspect the response on the way back out.
type Policy interface {
	Do(req *Request) (*http.Response, error)
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(req *Request) (*http.Response, error)

// Do implements Policy.
func (f PolicyFunc) Do(req *Request) (*http.Response, error) {
	return f(req)
}

// Request wraps an *http.Request with the remaining policy chain. The body is
// retained as a byte slice so that policies (retry in particular) can replay
// the request.
type Request struct {
	raw      *http.Request
	body     []byte
	policies []Policy
}

// NewRequest creates a request for the given method and URL with no body.
func NewRequest(ctx context.Context, method, url string) (*Request, error) {
	raw, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	return &Request{raw: raw}, nil
}

// Raw returns the underlying *http.Request.
func (r *Request) Raw() *http.Request {
	return r.raw
}

// Body returns the retained request body, or nil when the request has none.
func (r *Request) Body() []byte {
	return r.body
}

// SetBody sets the request body and Content-Type header.
func (r *Request) SetBody(body []byte, contentType string) {
	r.body = body
	r.raw.Header.Set("Content-Type", contentType)
	r.raw.ContentLength = int64(len(body))
}

// SetJSONBody marshals v and sets it as the request body.
func (r *Request) SetJSONBody(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.SetBody(data, "application/json")
	return nil
}

// Next runs the remainder of the pipeline. Each call replays the chain from
// the current position, so a policy may call Next more than once.
func (r *Request) Next() (*http.Response, error) {
	if len(r.policies) == 0 {
		return nil, errors.New("core: no transport configured at the end of the pipeline")
	}
	next := &Request{raw: r.raw, body: r.body, policies: r.policies[1:]}
	return r.policies[0].Do(next)
}

// Pipeline is an ordered policy chain terminated by an HTTP transport.
type Pipeline struct {
	policies []Policy
}

// NewPipeline assembles a pipeline from the given policies, in order, with
// transport as the terminal stage. A nil transport uses http.DefaultTransport.
func NewPipeline(transport http.RoundTripper, policies ...Policy) Pipeline {
	if transport == nil {
		transport = http.DefaultTransport
	}
	chain := make([]Policy, 0, len(policies)+1)
	chain = append(chain, policies...)
	chain = append(chain, transportPolicy{transport: transport})
	return Pipeline{policies: chain}
}

// Do sends the request through the pipeline.
func (p Pipeline) Do(req *Request) (*http.Response, error) {
	run := &Request{raw: req.raw, body: req.body, policies: p.policies}
	return run.Next()
}

// transportPolicy is the terminal policy: it rewinds the body and performs
// the actual round trip.
type transportPolicy struct {
	transport http.RoundTripper
}

func (t transportPolicy) Do(req *Request) (*http.Response, error) {
	raw := req.raw
	if req.body != nil {
		raw.Body = io.NopCloser(bytes.NewReader(req.body))
		raw.ContentLength = int64(len(req.body))
	}
	return t.transport.RoundTrip(raw)
}

// ClientOptions configures the pipeline shared by all service clients.
type ClientOptions struct {
	// Transport overrides the HTTP transport. Defaults to http.DefaultTransport.
	Transport http.RoundTripper

	// Retry configures the retry policy.
	Retry RetryOptions

	// Logger receives per-attempt request logs. Defaults to a no-op logger.
	Logger *zap.Logger

	// PerCallPolicies run once per API call, before the retry policy.
	PerCallPolicies []Policy
}

// NewDefaultPipeline builds the standard client pipeline:
// request-id → per-call policies → retry → auth → logging → transport.
// The auth policy sits inside the retry loop so every attempt is re-signed
// with a fresh date.
func NewDefaultPipeline(auth Policy, opts *ClientOptions) Pipeline {
	if opts == nil {
		opts = &ClientOptions{}
	}
	policies := []Policy{NewRequestIDPolicy()}
	policies = append(policies, opts.PerCallPolicies...)
	policies = append(policies, NewRetryPolicy(&opts.Retry))
	if auth != nil {
		policies = append(policies, auth)
	}
	policies = append(policies, NewLoggingPolicy(opts.Logger))
	return NewPipeline(opts.Transport, policies...)
}
