// Package appconfig provides the client for the configuration store service.
package appconfig

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/nimbusapi/nimbus-sdk-go/pkg/core"
)

// Client talks to a configuration store endpoint.
type Client struct {
	endpoint string
	pl       core.Pipeline
}

// NewClient creates a client that signs requests with the given shared-key
// credential.
func NewClient(endpoint string, cred *core.KeyCredential, opts *core.ClientOptions) (*Client, error) {
	if cred == nil {
		return nil, fmt.Errorf("appconfig: credential must not be nil")
	}
	return newClient(endpoint, core.NewSharedKeyPolicy(cred), opts)
}

// NewClientWithTokenSource creates a client that authenticates with OAuth2
// bearer tokens.
func NewClientWithTokenSource(endpoint string, source oauth2.TokenSource, opts *core.ClientOptions) (*Client, error) {
	if source == nil {
		return nil, fmt.Errorf("appconfig: token source must not be nil")
	}
	return newClient(endpoint, core.NewBearerTokenPolicy(source), opts)
}

func newClient(endpoint string, auth core.Policy, opts *core.ClientOptions) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("appconfig: endpoint must not be empty")
	}
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		pl:       core.NewDefaultPipeline(auth, opts),
	}, nil
}

func (c *Client) settingURL(key, label string) string {
	u := c.endpoint + "/kv/" + url.PathEscape(key)
	if label != "" {
		u += "?label=" + url.QueryEscape(label)
	}
	return u
}

// GetSettingOptions are the optional parameters for GetSetting.
type GetSettingOptions struct {
	Label string
}

// GetSetting retrieves a setting by key and optional label. A missing
// setting yields a not-found ResponseError.
func (c *Client) GetSetting(ctx context.Context, key string, opts *GetSettingOptions) (Setting, error) {
	if key == "" {
		return Setting{}, fmt.Errorf("appconfig: key must not be empty")
	}
	var label string
	if opts != nil {
		label = opts.Label
	}
	req, err := core.NewRequest(ctx, http.MethodGet, c.settingURL(key, label))
	if err != nil {
		return Setting{}, err
	}
	resp, err := c.pl.Do(req)
	if err != nil {
		return Setting{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Setting{}, core.NewResponseError(resp)
	}
	var setting Setting
	if err := core.DecodeJSON(resp, &setting); err != nil {
		return Setting{}, fmt.Errorf("appconfig: decode setting: %w", err)
	}
	return setting, nil
}

// AddSetting creates a setting. The call fails with a precondition error
// when the key/label pair already exists.
func (c *Client) AddSetting(ctx context.Context, setting Setting) (Setting, error) {
	return c.putSetting(ctx, setting, func(req *core.Request) {
		req.Raw().Header.Set("If-None-Match", "*")
	})
}

// SetSettingOptions are the optional parameters for SetSetting.
type SetSettingOptions struct {
	// IfMatch makes the write conditional on the setting's current ETag.
	IfMatch string
}

// SetSetting creates or replaces a setting. With IfMatch set, the write
// fails with a precondition error when the stored ETag differs; writing a
// read-only setting fails with a conflict error.
func (c *Client) SetSetting(ctx context.Context, setting Setting, opts *SetSettingOptions) (Setting, error) {
	return c.putSetting(ctx, setting, func(req *core.Request) {
		if opts != nil && opts.IfMatch != "" {
			req.Raw().Header.Set("If-Match", opts.IfMatch)
		}
	})
}

func (c *Client) putSetting(ctx context.Context, setting Setting, prepare func(*core.Request)) (Setting, error) {
	if setting.Key == "" {
		return Setting{}, fmt.Errorf("appconfig: key must not be empty")
	}
	req, err := core.NewRequest(ctx, http.MethodPut, c.settingURL(setting.Key, setting.Label))
	if err != nil {
		return Setting{}, err
	}
	if err := req.SetJSONBody(setting); err != nil {
		return Setting{}, err
	}
	prepare(req)
	resp, err := c.pl.Do(req)
	if err != nil {
		return Setting{}, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Setting{}, core.NewResponseError(resp)
	}
	var stored Setting
	if err := core.DecodeJSON(resp, &stored); err != nil {
		return Setting{}, fmt.Errorf("appconfig: decode setting: %w", err)
	}
	return stored, nil
}

// DeleteSettingOptions are the optional parameters for DeleteSetting.
type DeleteSettingOptions struct {
	Label string

	// IfMatch makes the delete conditional on the setting's current ETag.
	IfMatch string
}

// DeleteSetting removes a setting. Deleting an absent setting is not an
// error; deleting a read-only setting fails with a conflict error.
func (c *Client) DeleteSetting(ctx context.Context, key string, opts *DeleteSettingOptions) error {
	if key == "" {
		return fmt.Errorf("appconfig: key must not be empty")
	}
	var label, ifMatch string
	if opts != nil {
		label = opts.Label
		ifMatch = opts.IfMatch
	}
	req, err := core.NewRequest(ctx, http.MethodDelete, c.settingURL(key, label))
	if err != nil {
		return err
	}
	if ifMatch != "" {
		req.Raw().Header.Set("If-Match", ifMatch)
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

// SetReadOnlyOptions are the optional parameters for SetReadOnly.
type SetReadOnlyOptions struct {
	Label string
}

// SetReadOnly locks or unlocks a setting against writes and deletes.
func (c *Client) SetReadOnly(ctx context.Context, key string, readOnly bool, opts *SetReadOnlyOptions) (Setting, error) {
	if key == "" {
		return Setting{}, fmt.Errorf("appconfig: key must not be empty")
	}
	var label string
	if opts != nil {
		label = opts.Label
	}
	method := http.MethodPut
	if !readOnly {
		method = http.MethodDelete
	}
	u := c.endpoint + "/locks/" + url.PathEscape(key)
	if label != "" {
		u += "?label=" + url.QueryEscape(label)
	}
	req, err := core.NewRequest(ctx, method, u)
	if err != nil {
		return Setting{}, err
	}
	resp, err := c.pl.Do(req)
	if err != nil {
		return Setting{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Setting{}, core.NewResponseError(resp)
	}
	var setting Setting
	if err := core.DecodeJSON(resp, &setting); err != nil {
		return Setting{}, fmt.Errorf("appconfig: decode setting: %w", err)
	}
	return setting, nil
}

// ListSettingsOptions are the optional parameters for NewListSettingsPager.
// Filters accept a trailing * wildcard; empty filters match everything.
type ListSettingsOptions struct {
	KeyFilter   string
	LabelFilter string
}

// NewListSettingsPager returns a pager over settings matching the filters.
func (c *Client) NewListSettingsPager(opts *ListSettingsOptions) *core.Pager[Setting] {
	var keyFilter, labelFilter string
	if opts != nil {
		keyFilter = opts.KeyFilter
		labelFilter = opts.LabelFilter
	}
	return core.NewPager(func(ctx context.Context, nextLink string) (core.Page[Setting], error) {
		u := c.endpoint + nextLink
		if nextLink == "" {
			query := url.Values{}
			if keyFilter != "" {
				query.Set("key", keyFilter)
			}
			if labelFilter != "" {
				query.Set("label", labelFilter)
			}
			u = c.endpoint + "/kv"
			if encoded := query.Encode(); encoded != "" {
				u += "?" + encoded
			}
		}
		req, err := core.NewRequest(ctx, http.MethodGet, u)
		if err != nil {
			return core.Page[Setting]{}, err
		}
		resp, err := c.pl.Do(req)
		if err != nil {
			return core.Page[Setting]{}, err
		}
		if resp.StatusCode != http.StatusOK {
			return core.Page[Setting]{}, core.NewResponseError(resp)
		}
		var page core.Page[Setting]
		if err := core.DecodeJSON(resp, &page); err != nil {
			return core.Page[Setting]{}, fmt.Errorf("appconfig: decode page: %w", err)
		}
		return page, nil
	})
}
