// Package recording provides an http.RoundTripper that records live
// traffic to a JSON cassette and replays it later, so client tests can run
// without a reachable service. Credential material is scrubbed before
// anything is written to disk.
package recording

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
)

// Mode selects how the transport behaves.
type Mode string

const (
	// ModeRecord forwards requests to the real transport and saves each
	// exchange to the cassette.
	ModeRecord Mode = "record"
	// ModeReplay serves responses from the cassette without touching the
	// network.
	ModeReplay Mode = "replay"
	// ModePassthrough forwards requests without recording anything.
	ModePassthrough Mode = "passthrough"
)

// Headers never written to cassettes.
var sanitizedHeaders = []string{"Authorization", "x-ms-date", "x-ms-content-sha256"}

// Interaction is one recorded request/response exchange.
type Interaction struct {
	Method          string      `json:"method"`
	URL             string      `json:"url"`
	RequestBody     string      `json:"request_body,omitempty"`
	Status          int         `json:"status"`
	ResponseHeaders http.Header `json:"response_headers,omitempty"`
	ResponseBody    string      `json:"response_body,omitempty"`
}

type cassette struct {
	Interactions []Interaction `json:"interactions"`
}

// Transport records or replays HTTP exchanges depending on its mode.
// Replay matches interactions by method and URL in recorded order.
type Transport struct {
	mode  Mode
	path  string
	inner http.RoundTripper

	mu       sync.Mutex
	cassette cassette
	cursor   int
}

// NewTransport opens a recording transport for the cassette at path. In
// replay mode the cassette must already exist. The inner transport may be
// nil, in which case http.DefaultTransport forwards live traffic.
func NewTransport(mode Mode, path string, inner http.RoundTripper) (*Transport, error) {
	if inner == nil {
		inner = http.DefaultTransport
	}
	t := &Transport{mode: mode, path: path, inner: inner}

	if mode == ModeReplay {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("recording: open cassette: %w", err)
		}
		if err := json.Unmarshal(data, &t.cassette); err != nil {
			return nil, fmt.Errorf("recording: parse cassette %s: %w", path, err)
		}
	}
	return t, nil
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.mode {
	case ModeReplay:
		return t.replay(req)
	case ModeRecord:
		return t.record(req)
	default:
		return t.inner.RoundTrip(req)
	}
}

func (t *Transport) replay(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cursor >= len(t.cassette.Interactions) {
		return nil, fmt.Errorf("recording: cassette exhausted at %s %s", req.Method, req.URL)
	}
	interaction := t.cassette.Interactions[t.cursor]
	if interaction.Method != req.Method || interaction.URL != req.URL.String() {
		return nil, fmt.Errorf("recording: expected %s %s, got %s %s",
			interaction.Method, interaction.URL, req.Method, req.URL)
	}
	t.cursor++

	header := make(http.Header, len(interaction.ResponseHeaders))
	for name, values := range interaction.ResponseHeaders {
		for _, v := range values {
			header.Add(name, v)
		}
	}
	return &http.Response{
		StatusCode: interaction.Status,
		Status:     http.StatusText(interaction.Status),
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader([]byte(interaction.ResponseBody))),
		Request:    req,
	}, nil
}

func (t *Transport) record(req *http.Request) (*http.Response, error) {
	var reqBody []byte
	if req.Body != nil {
		var err error
		reqBody, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("recording: read request body: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(reqBody))
	}

	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("recording: read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(respBody))

	headers := resp.Header.Clone()
	for _, name := range sanitizedHeaders {
		headers.Del(name)
	}

	t.mu.Lock()
	t.cassette.Interactions = append(t.cassette.Interactions, Interaction{
		Method:          req.Method,
		URL:             req.URL.String(),
		RequestBody:     string(reqBody),
		Status:          resp.StatusCode,
		ResponseHeaders: headers,
		ResponseBody:    string(respBody),
	})
	t.mu.Unlock()

	return resp, nil
}

// Stop flushes the cassette to disk. Only record mode writes anything.
func (t *Transport) Stop() error {
	if t.mode != ModeRecord {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := json.MarshalIndent(t.cassette, "", "  ")
	if err != nil {
		return fmt.Errorf("recording: encode cassette: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("recording: create cassette dir: %w", err)
	}
	if err := os.WriteFile(t.path, data, 0o644); err != nil {
		return fmt.Errorf("recording: write cassette: %w", err)
	}
	return nil
}
