package recording

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordThenReplay(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Authorization", "leak")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"key":"color","value":"blue"}`))
	}))
	defer srv.Close()

	cassettePath := filepath.Join(t.TempDir(), "cassettes", "settings.json")

	recorder, err := NewTransport(ModeRecord, cassettePath, nil)
	require.NoError(t, err)

	client := &http.Client{Transport: recorder}
	resp, err := client.Get(srv.URL + "/kv/color")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"color","value":"blue"}`, string(body))
	require.NoError(t, recorder.Stop())
	assert.Equal(t, 1, hits)

	// The cassette carries the exchange but none of the credential headers.
	data, err := os.ReadFile(cassettePath)
	require.NoError(t, err)
	var saved struct {
		Interactions []Interaction `json:"interactions"`
	}
	require.NoError(t, json.Unmarshal(data, &saved))
	require.Len(t, saved.Interactions, 1)
	assert.Equal(t, http.MethodGet, saved.Interactions[0].Method)
	assert.Empty(t, saved.Interactions[0].ResponseHeaders.Get("Authorization"))
	assert.Equal(t, "application/json", saved.Interactions[0].ResponseHeaders.Get("Content-Type"))

	// Replay serves the same response without touching the server.
	replayer, err := NewTransport(ModeReplay, cassettePath, nil)
	require.NoError(t, err)

	client = &http.Client{Transport: replayer}
	resp, err = client.Get(srv.URL + "/kv/color")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"key":"color","value":"blue"}`, string(body))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, 1, hits)
}

func TestReplayMismatch(t *testing.T) {
	cassettePath := filepath.Join(t.TempDir(), "settings.json")
	cassette := `{"interactions":[{"method":"GET","url":"http://example.com/kv/color","status":200}]}`
	require.NoError(t, os.WriteFile(cassettePath, []byte(cassette), 0o644))

	replayer, err := NewTransport(ModeReplay, cassettePath, nil)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodDelete, "http://example.com/kv/color", nil)
	require.NoError(t, err)
	_, err = replayer.RoundTrip(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected GET")
}

func TestReplayExhausted(t *testing.T) {
	cassettePath := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(cassettePath, []byte(`{"interactions":[]}`), 0o644))

	replayer, err := NewTransport(ModeReplay, cassettePath, nil)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "http://example.com/kv/color", nil)
	require.NoError(t, err)
	_, err = replayer.RoundTrip(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cassette exhausted")
}

func TestReplayMissingCassette(t *testing.T) {
	_, err := NewTransport(ModeReplay, filepath.Join(t.TempDir(), "absent.json"), nil)
	assert.Error(t, err)
}

func TestPassthroughRecordsNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cassettePath := filepath.Join(t.TempDir(), "never.json")
	transport, err := NewTransport(ModePassthrough, cassettePath, nil)
	require.NoError(t, err)

	client := &http.Client{Transport: transport}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.NoError(t, transport.Stop())
	_, err = os.Stat(cassettePath)
	assert.True(t, os.IsNotExist(err))
}
