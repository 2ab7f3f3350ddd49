package batch_test

import (
	"context"
	"encoding/base64"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nimbusapi/nimbus-sdk-go/internal/api"
	"github.com/nimbusapi/nimbus-sdk-go/internal/storage/sqlite"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/batch"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/core"
)

// fastPolling keeps the tests snappy; the emulator settles transitions
// after 10ms.
var fastPolling = &batch.BeginJobOptions{
	Polling: core.PollerOptions{Interval: 10 * time.Millisecond, MaxInterval: 50 * time.Millisecond},
}

func newTestClient(t *testing.T) *batch.Client {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := sqlite.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cred, err := core.NewKeyCredential("test-key", base64.StdEncoding.EncodeToString([]byte("test-secret")))
	require.NoError(t, err)

	handler := api.NewHandler(store, zap.NewNop(), 10*time.Millisecond, time.Second)
	srv := httptest.NewServer(api.SetupRoutes(handler, cred))
	t.Cleanup(srv.Close)

	client, err := batch.NewClient(srv.URL, cred, nil)
	require.NoError(t, err)
	return client
}

func TestCreateAndGetJob(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	created, err := client.CreateJob(ctx, batch.Job{
		ID:          "job-1",
		DisplayName: "nightly build",
		PoolID:      "pool-1",
		Priority:    10,
	})
	require.NoError(t, err)
	assert.Equal(t, batch.JobStateActive, created.State)
	assert.False(t, created.CreationTime.IsZero())

	got, err := client.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, created.State, got.State)
	assert.Equal(t, "pool-1", got.PoolID)
	assert.Equal(t, 10, got.Priority)
}

func TestCreateJobDuplicateID(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.CreateJob(ctx, batch.Job{ID: "dup", PoolID: "pool-1"})
	require.NoError(t, err)

	_, err = client.CreateJob(ctx, batch.Job{ID: "dup", PoolID: "pool-1"})
	require.Error(t, err)
	assert.True(t, core.IsConflict(err))
}

func TestListJobs(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := client.CreateJob(ctx, batch.Job{ID: id, PoolID: "pool-1"})
		require.NoError(t, err)
	}

	jobs, err := client.NewListJobsPager().All(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}

func TestBeginTerminateJob(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.CreateJob(ctx, batch.Job{ID: "to-terminate", PoolID: "pool-1"})
	require.NoError(t, err)

	poller, err := client.BeginTerminateJob(ctx, "to-terminate", fastPolling)
	require.NoError(t, err)

	job, err := poller.PollUntilDone(ctx)
	require.NoError(t, err)
	assert.Equal(t, batch.JobStateCompleted, job.State)
}

func TestBeginDeleteJob(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.CreateJob(ctx, batch.Job{ID: "to-delete", PoolID: "pool-1"})
	require.NoError(t, err)

	poller, err := client.BeginDeleteJob(ctx, "to-delete", fastPolling)
	require.NoError(t, err)

	_, err = poller.PollUntilDone(ctx)
	require.NoError(t, err)

	// Gone for good
	_, err = client.GetJob(ctx, "to-delete")
	assert.True(t, core.IsNotFound(err))
}

func TestBeginDisableAndEnableJob(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.CreateJob(ctx, batch.Job{ID: "toggle", PoolID: "pool-1"})
	require.NoError(t, err)

	poller, err := client.BeginDisableJob(ctx, "toggle", fastPolling)
	require.NoError(t, err)
	job, err := poller.PollUntilDone(ctx)
	require.NoError(t, err)
	assert.Equal(t, batch.JobStateDisabled, job.State)

	poller, err = client.BeginEnableJob(ctx, "toggle", fastPolling)
	require.NoError(t, err)
	job, err = poller.PollUntilDone(ctx)
	require.NoError(t, err)
	assert.Equal(t, batch.JobStateActive, job.State)
}

func TestEnableActiveJobRejected(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.CreateJob(ctx, batch.Job{ID: "already-active", PoolID: "pool-1"})
	require.NoError(t, err)

	_, err = client.BeginEnableJob(ctx, "already-active", fastPolling)
	require.Error(t, err)
	assert.True(t, core.IsConflict(err))
}

func TestTerminateMissingJob(t *testing.T) {
	client := newTestClient(t)

	_, err := client.BeginTerminateJob(context.Background(), "ghost", fastPolling)
	require.Error(t, err)
	assert.True(t, core.IsNotFound(err))
}

func TestBeginErrorsCarryServiceCode(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	// The error envelope must survive into the ResponseError for every
	// Begin* operation, not just the plain calls.
	_, err := client.BeginTerminateJob(ctx, "ghost", fastPolling)
	require.Error(t, err)
	var respErr *core.ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, core.ErrorCodeNotFound, respErr.ErrorCode)
	assert.Equal(t, "job not found", respErr.Message)
	assert.True(t, core.HasErrorCode(err, core.ErrorCodeNotFound))

	_, err = client.BeginDeleteJob(ctx, "ghost", fastPolling)
	require.Error(t, err)
	assert.True(t, core.HasErrorCode(err, core.ErrorCodeNotFound))
}
