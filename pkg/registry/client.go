// Package registry provides the client for the artifact registry service.
package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/nimbusapi/nimbus-sdk-go/pkg/core"
)

// Client talks to a registry endpoint.
type Client struct {
	endpoint string
	pl       core.Pipeline
}

// NewClient creates a registry client signing with the given credential.
func NewClient(endpoint string, cred *core.KeyCredential, opts *core.ClientOptions) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("registry: endpoint must not be empty")
	}
	if cred == nil {
		return nil, fmt.Errorf("registry: credential must not be nil")
	}
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		pl:       core.NewDefaultPipeline(core.NewSharedKeyPolicy(cred), opts),
	}, nil
}

func (c *Client) repositoryURL(name string) string {
	return c.endpoint + "/acr/repositories/" + url.PathEscape(name)
}

// GetRepository returns the properties of a repository.
func (c *Client) GetRepository(ctx context.Context, name string) (RepositoryProperties, error) {
	if name == "" {
		return RepositoryProperties{}, fmt.Errorf("registry: repository name must not be empty")
	}
	req, err := core.NewRequest(ctx, http.MethodGet, c.repositoryURL(name))
	if err != nil {
		return RepositoryProperties{}, err
	}
	resp, err := c.pl.Do(req)
	if err != nil {
		return RepositoryProperties{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return RepositoryProperties{}, core.NewResponseError(resp)
	}
	var props RepositoryProperties
	if err := core.DecodeJSON(resp, &props); err != nil {
		return RepositoryProperties{}, fmt.Errorf("registry: decode repository: %w", err)
	}
	return props, nil
}

// UpdateRepository patches the mutable repository flags and returns the
// updated properties.
func (c *Client) UpdateRepository(ctx context.Context, name string, props WriteableProperties) (RepositoryProperties, error) {
	if name == "" {
		return RepositoryProperties{}, fmt.Errorf("registry: repository name must not be empty")
	}
	req, err := core.NewRequest(ctx, http.MethodPatch, c.repositoryURL(name))
	if err != nil {
		return RepositoryProperties{}, err
	}
	if err := req.SetJSONBody(props); err != nil {
		return RepositoryProperties{}, err
	}
	resp, err := c.pl.Do(req)
	if err != nil {
		return RepositoryProperties{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return RepositoryProperties{}, core.NewResponseError(resp)
	}
	var updated RepositoryProperties
	if err := core.DecodeJSON(resp, &updated); err != nil {
		return RepositoryProperties{}, fmt.Errorf("registry: decode repository: %w", err)
	}
	return updated, nil
}

// DeleteRepository removes a repository and everything in it. Deleting a
// repository whose delete flag is disabled fails with a conflict error.
func (c *Client) DeleteRepository(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("registry: repository name must not be empty")
	}
	req, err := core.NewRequest(ctx, http.MethodDelete, c.repositoryURL(name))
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

// NewListRepositoriesPager returns a pager over all repositories.
func (c *Client) NewListRepositoriesPager() *core.Pager[RepositoryProperties] {
	return core.NewPager(func(ctx context.Context, nextLink string) (core.Page[RepositoryProperties], error) {
		u := c.endpoint + "/acr/repositories"
		if nextLink != "" {
			u = c.endpoint + nextLink
		}
		req, err := core.NewRequest(ctx, http.MethodGet, u)
		if err != nil {
			return core.Page[RepositoryProperties]{}, err
		}
		resp, err := c.pl.Do(req)
		if err != nil {
			return core.Page[RepositoryProperties]{}, err
		}
		if resp.StatusCode != http.StatusOK {
			return core.Page[RepositoryProperties]{}, core.NewResponseError(resp)
		}
		var page core.Page[RepositoryProperties]
		if err := core.DecodeJSON(resp, &page); err != nil {
			return core.Page[RepositoryProperties]{}, fmt.Errorf("registry: decode page: %w", err)
		}
		return page, nil
	})
}
