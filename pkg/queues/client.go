// Package queues provides the client for the message queue service. Receives
// use peek-lock semantics: a received message stays invisible to other
// receivers until it is completed, abandoned, or its lock expires.
package queues

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/nimbusapi/nimbus-sdk-go/pkg/core"
)

// Client talks to a queue namespace endpoint.
type Client struct {
	endpoint string
	pl       core.Pipeline
}

// NewClient creates a queue client signing with the given credential.
func NewClient(endpoint string, cred *core.KeyCredential, opts *core.ClientOptions) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("queues: endpoint must not be empty")
	}
	if cred == nil {
		return nil, fmt.Errorf("queues: credential must not be nil")
	}
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		pl:       core.NewDefaultPipeline(core.NewSharedKeyPolicy(cred), opts),
	}, nil
}

func (c *Client) queueURL(queue string) string {
	return c.endpoint + "/queues/" + url.PathEscape(queue)
}

// CreateQueue creates a queue. Creating an existing queue fails with a
// conflict error.
func (c *Client) CreateQueue(ctx context.Context, name string) (Queue, error) {
	if name == "" {
		return Queue{}, fmt.Errorf("queues: queue name must not be empty")
	}
	req, err := core.NewRequest(ctx, http.MethodPut, c.queueURL(name))
	if err != nil {
		return Queue{}, err
	}
	resp, err := c.pl.Do(req)
	if err != nil {
		return Queue{}, err
	}
	if resp.StatusCode != http.StatusCreated {
		return Queue{}, core.NewResponseError(resp)
	}
	var queue Queue
	if err := core.DecodeJSON(resp, &queue); err != nil {
		return Queue{}, fmt.Errorf("queues: decode queue: %w", err)
	}
	return queue, nil
}

// GetQueue returns queue properties including the current message count.
func (c *Client) GetQueue(ctx context.Context, name string) (Queue, error) {
	if name == "" {
		return Queue{}, fmt.Errorf("queues: queue name must not be empty")
	}
	req, err := core.NewRequest(ctx, http.MethodGet, c.queueURL(name))
	if err != nil {
		return Queue{}, err
	}
	resp, err := c.pl.Do(req)
	if err != nil {
		return Queue{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Queue{}, core.NewResponseError(resp)
	}
	var queue Queue
	if err := core.DecodeJSON(resp, &queue); err != nil {
		return Queue{}, fmt.Errorf("queues: decode queue: %w", err)
	}
	return queue, nil
}

// DeleteQueue removes a queue and any messages still in it.
func (c *Client) DeleteQueue(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("queues: queue name must not be empty")
	}
	req, err := core.NewRequest(ctx, http.MethodDelete, c.queueURL(name))
	if err != nil {
		return err
	}
	resp, err := c.pl.Do(req)
	if err != nil {
		return err
	}
	defer core.Drain(resp)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return core.NewResponseError(resp)
	}
	return nil
}

// NewListQueuesPager returns a pager over all queues in the namespace.
func (c *Client) NewListQueuesPager() *core.Pager[Queue] {
	return core.NewPager(func(ctx context.Context, nextLink string) (core.Page[Queue], error) {
		u := c.endpoint + "/queues"
		if nextLink != "" {
			u = c.endpoint + nextLink
		}
		req, err := core.NewRequest(ctx, http.MethodGet, u)
		if err != nil {
			return core.Page[Queue]{}, err
		}
		resp, err := c.pl.Do(req)
		if err != nil {
			return core.Page[Queue]{}, err
		}
		if resp.StatusCode != http.StatusOK {
			return core.Page[Queue]{}, core.NewResponseError(resp)
		}
		var page core.Page[Queue]
		if err := core.DecodeJSON(resp, &page); err != nil {
			return core.Page[Queue]{}, fmt.Errorf("queues: decode page: %w", err)
		}
		return page, nil
	})
}

// SendMessage enqueues a message and returns it with its service-assigned
// ID, sequence number, and enqueue time.
func (c *Client) SendMessage(ctx context.Context, queue string, msg Message) (Message, error) {
	if queue == "" {
		return Message{}, fmt.Errorf("queues: queue name must not be empty")
	}
	if len(msg.Body) == 0 {
		return Message{}, fmt.Errorf("queues: message body must not be empty")
	}
	req, err := core.NewRequest(ctx, http.MethodPost, c.queueURL(queue)+"/messages")
	if err != nil {
		return Message{}, err
	}
	if err := req.SetJSONBody(msg); err != nil {
		return Message{}, err
	}
	resp, err := c.pl.Do(req)
	if err != nil {
		return Message{}, err
	}
	if resp.StatusCode != http.StatusCreated {
		return Message{}, core.NewResponseError(resp)
	}
	var sent Message
	if err := core.DecodeJSON(resp, &sent); err != nil {
		return Message{}, fmt.Errorf("queues: decode message: %w", err)
	}
	return sent, nil
}

// ReceiveMessage locks and returns the next available message, or nil when
// the queue has none.
func (c *Client) ReceiveMessage(ctx context.Context, queue string) (*Message, error) {
	return c.fetchHead(ctx, queue, "head")
}

// PeekMessage returns the next available message without locking it, or nil
// when the queue has none.
func (c *Client) PeekMessage(ctx context.Context, queue string) (*Message, error) {
	return c.fetchHead(ctx, queue, "peek")
}

func (c *Client) fetchHead(ctx context.Context, queue, mode string) (*Message, error) {
	if queue == "" {
		return nil, fmt.Errorf("queues: queue name must not be empty")
	}
	req, err := core.NewRequest(ctx, http.MethodPost, c.queueURL(queue)+"/messages/"+mode)
	if err != nil {
		return nil, err
	}
	resp, err := c.pl.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNoContent {
		core.Drain(resp)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.NewResponseError(resp)
	}
	var msg Message
	if err := core.DecodeJSON(resp, &msg); err != nil {
		return nil, fmt.Errorf("queues: decode message: %w", err)
	}
	return &msg, nil
}

// CompleteMessage removes a received message from the queue. The message
// must still hold a valid lock token.
func (c *Client) CompleteMessage(ctx context.Context, queue string, msg *Message) error {
	return c.settle(ctx, http.MethodDelete, queue, msg)
}

// AbandonMessage releases the lock on a received message, making it
// available again and incrementing its delivery count.
func (c *Client) AbandonMessage(ctx context.Context, queue string, msg *Message) error {
	return c.settle(ctx, http.MethodPut, queue, msg)
}

func (c *Client) settle(ctx context.Context, method, queue string, msg *Message) error {
	if queue == "" {
		return fmt.Errorf("queues: queue name must not be empty")
	}
	if msg == nil || msg.ID == "" || msg.LockToken == "" {
		return fmt.Errorf("queues: message with a lock token is required")
	}
	u := c.queueURL(queue) + "/messages/" + url.PathEscape(msg.ID) + "/" + url.PathEscape(msg.LockToken)
	req, err := core.NewRequest(ctx, method, u)
	if err != nil {
		return err
	}
	resp, err := c.pl.Do(req)
	if err != nil {
		return err
	}
	defer core.Drain(resp)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return core.NewResponseError(resp)
	}
	return nil
}
