package api_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kinbiko/jsonassert"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nimbusapi/nimbus-sdk-go/internal/api"
	"github.com/nimbusapi/nimbus-sdk-go/internal/storage"
	"github.com/nimbusapi/nimbus-sdk-go/internal/storage/sqlite"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/core"
)

const (
	testKeyID  = "test-key"
	testSecret = "dGVzdC1zZWNyZXQ=" // base64 of "test-secret"
)

func newTestRouter(t *testing.T) (*gin.Engine, storage.Storage, *core.KeyCredential) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := sqlite.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cred, err := core.NewKeyCredential(testKeyID, testSecret)
	require.NoError(t, err)

	handler := api.NewHandler(store, zap.NewNop(), 10*time.Millisecond, time.Second)
	return api.SetupRoutes(handler, cred), store, cred
}

// signedRequest builds a request carrying a valid HMAC signature.
func signedRequest(t *testing.T, cred *core.KeyCredential, method, target string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	date := time.Now().UTC().Format(http.TimeFormat)
	contentHash := core.ComputeContentHash(body)
	stringToSign := core.BuildStringToSign(method, req.URL.RequestURI(), date, req.Host, contentHash)

	req.Header.Set(core.HeaderDate, date)
	req.Header.Set(core.HeaderContentHash, contentHash)
	req.Header.Set(core.HeaderAuthorization,
		"HMAC-SHA256 Credential="+testKeyID+"&SignedHeaders=x-ms-date;host;x-ms-content-sha256&Signature="+cred.ComputeSignature(stringToSign))
	return req
}

func TestHealthCheckIsOpen(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	jsonassert.New(t).Assertf(w.Body.String(), `{"status": "ok"}`)
}

func TestMetricsEndpointIsOpen(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnsignedRequestRejected(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/kv", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	jsonassert.New(t).Assertf(w.Body.String(), `{
		"error": {
			"code": "UNAUTHORIZED",
			"message": "<<PRESENCE>>"
		}
	}`)
}

func TestTamperedSignatureRejected(t *testing.T) {
	router, _, cred := newTestRouter(t)

	req := signedRequest(t, cred, http.MethodGet, "/kv", nil)
	req.Header.Set(core.HeaderAuthorization,
		"HMAC-SHA256 Credential="+testKeyID+"&SignedHeaders=x-ms-date;host;x-ms-content-sha256&Signature=Ym9ndXM=")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUnknownCredentialRejected(t *testing.T) {
	router, _, cred := newTestRouter(t)

	req := signedRequest(t, cred, http.MethodGet, "/kv", nil)
	req.Header.Set(core.HeaderAuthorization,
		"HMAC-SHA256 Credential=wrong-key&SignedHeaders=x-ms-date;host;x-ms-content-sha256&Signature=Ym9ndXM=")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStaleDateRejected(t *testing.T) {
	router, _, cred := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/kv", nil)
	date := time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat)
	contentHash := core.ComputeContentHash(nil)
	stringToSign := core.BuildStringToSign(http.MethodGet, "/kv", date, req.Host, contentHash)

	req.Header.Set(core.HeaderDate, date)
	req.Header.Set(core.HeaderContentHash, contentHash)
	req.Header.Set(core.HeaderAuthorization,
		"HMAC-SHA256 Credential="+testKeyID+"&SignedHeaders=x-ms-date;host;x-ms-content-sha256&Signature="+cred.ComputeSignature(stringToSign))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPutSettingResponseShape(t *testing.T) {
	router, _, cred := newTestRouter(t)

	body := []byte(`{"key":"color","value":"blue"}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest(t, cred, http.MethodPut, "/kv/color", body))

	require.Equal(t, http.StatusCreated, w.Code)
	jsonassert.New(t).Assertf(w.Body.String(), `{
		"key": "color",
		"value": "blue",
		"etag": "<<PRESENCE>>",
		"locked": false,
		"last_modified": "<<PRESENCE>>"
	}`)
}

func TestNotFoundErrorEnvelope(t *testing.T) {
	router, _, cred := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest(t, cred, http.MethodGet, "/kv/absent", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	jsonassert.New(t).Assertf(w.Body.String(), `{
		"error": {
			"code": "NOT_FOUND",
			"message": "setting not found"
		}
	}`)
}

func TestBadRequestEnvelope(t *testing.T) {
	router, _, cred := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest(t, cred, http.MethodPost, "/batch/jobs", []byte(`{"pool_id":"p1"}`)))

	require.Equal(t, http.StatusBadRequest, w.Code)
	jsonassert.New(t).Assertf(w.Body.String(), `{
		"error": {
			"code": "BAD_REQUEST",
			"message": "job id is required"
		}
	}`)
}

func TestListSettingsPageShape(t *testing.T) {
	router, _, cred := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest(t, cred, http.MethodPut, "/kv/solo", []byte(`{"key":"solo","value":"1"}`)))
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest(t, cred, http.MethodGet, "/kv", nil))

	require.Equal(t, http.StatusOK, w.Code)
	jsonassert.New(t).Assertf(w.Body.String(), `{
		"items": [
			{
				"key": "solo",
				"value": "1",
				"etag": "<<PRESENCE>>",
				"locked": false,
				"last_modified": "<<PRESENCE>>"
			}
		]
	}`)
}

func TestSignedBodyStillReadableByHandler(t *testing.T) {
	router, _, cred := newTestRouter(t)

	body := []byte(`{"id":"job-1","pool_id":"p1","priority":5}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest(t, cred, http.MethodPost, "/batch/jobs", body))

	require.Equal(t, http.StatusCreated, w.Code)
	jsonassert.New(t).Assertf(w.Body.String(), `{
		"id": "job-1",
		"pool_id": "p1",
		"priority": 5,
		"state": "active",
		"creation_time": "<<PRESENCE>>",
		"state_transition_time": "<<PRESENCE>>"
	}`)
}
