package core

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// OperationState is the client-side view of a long-running operation.
type OperationState string

const (
	StateInProgress OperationState = "InProgress"
	StateSucceeded  OperationState = "Succeeded"
	StateFailed     OperationState = "Failed"
)

// PollResult is one observation of a long-running operation. Value is only
// meaningful when State is StateSucceeded; Err carries detail when State is
// StateFailed.
type PollResult[T any] struct {
	State OperationState
	Value T
	Err   error
}

// PollerOptions configures the polling cadence.
type PollerOptions struct {
	// Interval is the initial delay between probes. Defaults to 2s.
	Interval time.Duration

	// MaxInterval caps the delay as it backs off. Defaults to 30s.
	MaxInterval time.Duration
}

// Poller drives a long-running operation to completion. A single probe
// callback observes the operation and maps what it sees to a PollResult;
// per-operation rules (which server state is transient, whether a vanished
// resource means success or failure) live in the probe. The wait between
// probes backs off exponentially with jitter, and the whole wait is bounded
// by the caller's context.
type Poller[T any] struct {
	probe  func(ctx context.Context) PollResult[T]
	opts   PollerOptions
	last   PollResult[T]
	probed bool
}

// NewPoller returns a poller for the given probe.
func NewPoller[T any](probe func(ctx context.Context) PollResult[T], opts *PollerOptions) *Poller[T] {
	p := &Poller[T]{probe: probe}
	if opts != nil {
		p.opts = *opts
	}
	if p.opts.Interval <= 0 {
		p.opts.Interval = 2 * time.Second
	}
	if p.opts.MaxInterval <= 0 {
		p.opts.MaxInterval = 30 * time.Second
	}
	return p
}

// Done reports whether the operation has reached a terminal state.
func (p *Poller[T]) Done() bool {
	return p.probed && p.last.State != StateInProgress
}

// State returns the state observed by the most recent probe.
func (p *Poller[T]) State() OperationState {
	if !p.probed {
		return StateInProgress
	}
	return p.last.State
}

// Poll performs a single probe and returns the observed state.
func (p *Poller[T]) Poll(ctx context.Context) (OperationState, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.last = p.probe(ctx)
	p.probed = true
	return p.last.State, nil
}

// Result returns the operation's outcome. It must only be called once Done
// reports true.
func (p *Poller[T]) Result() (T, error) {
	var zero T
	if !p.Done() {
		return zero, errors.New("core: polling is not finished")
	}
	if p.last.State == StateFailed {
		if p.last.Err != nil {
			return zero, p.last.Err
		}
		return zero, errors.New("core: long-running operation failed")
	}
	return p.last.Value, nil
}

// PollUntilDone probes until the operation reaches a terminal state or ctx
// is done, whichever comes first.
func (p *Poller[T]) PollUntilDone(ctx context.Context) (T, error) {
	var zero T
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.opts.Interval
	bo.MaxInterval = p.opts.MaxInterval
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		if _, err := p.Poll(ctx); err != nil {
			return zero, err
		}
		if p.Done() {
			return p.Result()
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(bo.NextBackOff()):
		}
	}
}
