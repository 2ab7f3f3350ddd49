package core

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeContentHash(t *testing.T) {
	// SHA-256 of zero bytes.
	const emptyHash = "47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU="
	assert.Equal(t, emptyHash, ComputeContentHash(nil))
	assert.Equal(t, emptyHash, ComputeContentHash([]byte{}))
	assert.NotEqual(t, emptyHash, ComputeContentHash([]byte(`{"key":"value"}`)))
}

func TestComputeSignatureKnownVector(t *testing.T) {
	// RFC 4231 test case 2: key "Jefe", data "what do ya want for nothing?".
	cred, err := NewKeyCredential("test-id", base64.StdEncoding.EncodeToString([]byte("Jefe")))
	require.NoError(t, err)

	sig := cred.ComputeSignature("what do ya want for nothing?")
	raw, err := base64.StdEncoding.DecodeString(sig)
	require.NoError(t, err)
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", hex.EncodeToString(raw))
}

func TestBuildStringToSign(t *testing.T) {
	got := BuildStringToSign("get", "/kv/beta?label=prod", "Mon, 02 Jan 2006 15:04:05 GMT", "config.example.net", "abc=")
	assert.Equal(t, "GET\n/kv/beta?label=prod\nMon, 02 Jan 2006 15:04:05 GMT;config.example.net;abc=", got)
}

func TestNewKeyCredential(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		secret  string
		wantErr bool
	}{
		{name: "valid", id: "id-1", secret: base64.StdEncoding.EncodeToString([]byte("secret"))},
		{name: "empty id", id: "", secret: "c2VjcmV0", wantErr: true},
		{name: "bad base64", id: "id-1", secret: "%%%", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewKeyCredential(tt.id, tt.secret)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSharedKeyPolicySignsRequest(t *testing.T) {
	cred, err := NewKeyCredential("key-1", base64.StdEncoding.EncodeToString([]byte("topsecret")))
	require.NoError(t, err)

	var gotReq *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r.Clone(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	fixedNow := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	policy := &sharedKeyPolicy{cred: cred, now: func() time.Time { return fixedNow }}
	pl := NewPipeline(nil, policy)

	req, err := NewRequest(context.Background(), http.MethodPut, server.URL+"/kv/app%2Fname?label=prod")
	require.NoError(t, err)
	req.SetBody([]byte(`{"value":"1"}`), "application/json")

	resp, err := pl.Do(req)
	require.NoError(t, err)
	Drain(resp)

	require.NotNil(t, gotReq)
	assert.Equal(t, "Wed, 01 May 2024 12:00:00 GMT", gotReq.Header.Get(HeaderDate))
	assert.Equal(t, ComputeContentHash([]byte(`{"value":"1"}`)), gotReq.Header.Get(HeaderContentHash))

	credID, sig, err := ParseAuthorization(gotReq.Header.Get(HeaderAuthorization))
	require.NoError(t, err)
	assert.Equal(t, "key-1", credID)

	// Recompute the signature server-side from what was actually sent.
	stringToSign := BuildStringToSign(
		gotReq.Method,
		gotReq.URL.RequestURI(),
		gotReq.Header.Get(HeaderDate),
		gotReq.Host,
		gotReq.Header.Get(HeaderContentHash),
	)
	assert.Equal(t, cred.ComputeSignature(stringToSign), sig)
}

func TestParseAuthorization(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantID  string
		wantSig string
		wantErr bool
	}{
		{
			name:    "valid",
			value:   "HMAC-SHA256 Credential=key-1&SignedHeaders=x-ms-date;host;x-ms-content-sha256&Signature=c2ln",
			wantID:  "key-1",
			wantSig: "c2ln",
		},
		{name: "wrong scheme", value: "Bearer token", wantErr: true},
		{name: "missing signature", value: "HMAC-SHA256 Credential=key-1&SignedHeaders=x-ms-date;host;x-ms-content-sha256", wantErr: true},
		{name: "unexpected signed headers", value: "HMAC-SHA256 Credential=key-1&SignedHeaders=host&Signature=c2ln", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, sig, err := ParseAuthorization(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantSig, sig)
		})
	}
}
