// Package batch provides the client for the batch compute service,
// including the pollers for its long-running job operations.
package batch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/nimbusapi/nimbus-sdk-go/pkg/core"
)

// Client talks to a batch account endpoint.
type Client struct {
	endpoint string
	pl       core.Pipeline
}

// NewClient creates a batch client signing with the given credential.
func NewClient(endpoint string, cred *core.KeyCredential, opts *core.ClientOptions) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("batch: endpoint must not be empty")
	}
	if cred == nil {
		return nil, fmt.Errorf("batch: credential must not be nil")
	}
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		pl:       core.NewDefaultPipeline(core.NewSharedKeyPolicy(cred), opts),
	}, nil
}

func (c *Client) jobURL(id string) string {
	return c.endpoint + "/batch/jobs/" + url.PathEscape(id)
}

// CreateJob submits a new job. Reusing an existing job ID fails with a
// conflict error.
func (c *Client) CreateJob(ctx context.Context, job Job) (Job, error) {
	if job.ID == "" {
		return Job{}, fmt.Errorf("batch: job id must not be empty")
	}
	if job.PoolID == "" {
		return Job{}, fmt.Errorf("batch: pool id must not be empty")
	}
	req, err := core.NewRequest(ctx, http.MethodPost, c.endpoint+"/batch/jobs")
	if err != nil {
		return Job{}, err
	}
	if err := req.SetJSONBody(job); err != nil {
		return Job{}, err
	}
	resp, err := c.pl.Do(req)
	if err != nil {
		return Job{}, err
	}
	if resp.StatusCode != http.StatusCreated {
		return Job{}, core.NewResponseError(resp)
	}
	var created Job
	if err := core.DecodeJSON(resp, &created); err != nil {
		return Job{}, fmt.Errorf("batch: decode job: %w", err)
	}
	return created, nil
}

// GetJob retrieves a job by ID.
func (c *Client) GetJob(ctx context.Context, id string) (Job, error) {
	if id == "" {
		return Job{}, fmt.Errorf("batch: job id must not be empty")
	}
	req, err := core.NewRequest(ctx, http.MethodGet, c.jobURL(id))
	if err != nil {
		return Job{}, err
	}
	resp, err := c.pl.Do(req)
	if err != nil {
		return Job{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Job{}, core.NewResponseError(resp)
	}
	var job Job
	if err := core.DecodeJSON(resp, &job); err != nil {
		return Job{}, fmt.Errorf("batch: decode job: %w", err)
	}
	return job, nil
}

// NewListJobsPager returns a pager over all jobs in the account.
func (c *Client) NewListJobsPager() *core.Pager[Job] {
	return core.NewPager(func(ctx context.Context, nextLink string) (core.Page[Job], error) {
		u := c.endpoint + "/batch/jobs"
		if nextLink != "" {
			u = c.endpoint + nextLink
		}
		req, err := core.NewRequest(ctx, http.MethodGet, u)
		if err != nil {
			return core.Page[Job]{}, err
		}
		resp, err := c.pl.Do(req)
		if err != nil {
			return core.Page[Job]{}, err
		}
		if resp.StatusCode != http.StatusOK {
			return core.Page[Job]{}, core.NewResponseError(resp)
		}
		var page core.Page[Job]
		if err := core.DecodeJSON(resp, &page); err != nil {
			return core.Page[Job]{}, fmt.Errorf("batch: decode page: %w", err)
		}
		return page, nil
	})
}

// BeginJobOptions configures the poller returned by the Begin* operations.
type BeginJobOptions struct {
	Polling core.PollerOptions
}

func (o *BeginJobOptions) polling() *core.PollerOptions {
	if o == nil {
		return nil
	}
	return &o.Polling
}

// BeginDeleteJob asks the service to delete a job and returns a poller that
// completes once the job has left the deleting state. A job that can no
// longer be found is treated as successfully deleted.
func (c *Client) BeginDeleteJob(ctx context.Context, id string, opts *BeginJobOptions) (*core.Poller[struct{}], error) {
	if id == "" {
		return nil, fmt.Errorf("batch: job id must not be empty")
	}
	req, err := core.NewRequest(ctx, http.MethodDelete, c.jobURL(id))
	if err != nil {
		return nil, err
	}
	resp, err := c.pl.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusAccepted {
		return nil, core.NewResponseError(resp)
	}
	core.Drain(resp)
	probe := func(ctx context.Context) core.PollResult[struct{}] {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			if core.IsNotFound(err) {
				return core.PollResult[struct{}]{State: core.StateSucceeded}
			}
			// Transient failure while probing, keep polling.
			return core.PollResult[struct{}]{State: core.StateInProgress}
		}
		if job.State != JobStateDeleting {
			return core.PollResult[struct{}]{State: core.StateSucceeded}
		}
		return core.PollResult[struct{}]{State: core.StateInProgress}
	}
	return core.NewPoller(probe, opts.polling()), nil
}

// BeginTerminateJob asks the service to terminate a job and returns a poller
// that yields the completed job. A job that disappears mid-flight is a
// terminal failure.
func (c *Client) BeginTerminateJob(ctx context.Context, id string, opts *BeginJobOptions) (*core.Poller[Job], error) {
	return c.beginTransition(ctx, id, "terminate", JobStateTerminating, opts)
}

// BeginDisableJob asks the service to disable a job and returns a poller
// that yields the disabled job.
func (c *Client) BeginDisableJob(ctx context.Context, id string, opts *BeginJobOptions) (*core.Poller[Job], error) {
	return c.beginTransition(ctx, id, "disable", JobStateDisabling, opts)
}

// BeginEnableJob asks the service to enable a job and returns a poller that
// yields the re-activated job.
func (c *Client) BeginEnableJob(ctx context.Context, id string, opts *BeginJobOptions) (*core.Poller[Job], error) {
	return c.beginTransition(ctx, id, "enable", JobStateEnabling, opts)
}

// beginTransition starts one of the state-change operations and builds its
// poller: the operation is done once the job leaves transientState. Unlike
// deletion, a vanished job is unexpected here and fails the operation.
func (c *Client) beginTransition(ctx context.Context, id, action string, transientState JobState, opts *BeginJobOptions) (*core.Poller[Job], error) {
	if id == "" {
		return nil, fmt.Errorf("batch: job id must not be empty")
	}
	req, err := core.NewRequest(ctx, http.MethodPost, c.jobURL(id)+"/"+action)
	if err != nil {
		return nil, err
	}
	resp, err := c.pl.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusAccepted {
		return nil, core.NewResponseError(resp)
	}
	core.Drain(resp)
	probe := func(ctx context.Context) core.PollResult[Job] {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			if core.IsNotFound(err) {
				return core.PollResult[Job]{
					State: core.StateFailed,
					Err:   fmt.Errorf("batch: job %q disappeared during %s: %w", id, action, err),
				}
			}
			return core.PollResult[Job]{State: core.StateInProgress}
		}
		if job.State != transientState {
			return core.PollResult[Job]{State: core.StateSucceeded, Value: job}
		}
		return core.PollResult[Job]{State: core.StateInProgress}
	}
	return core.NewPoller(probe, opts.polling()), nil
}
