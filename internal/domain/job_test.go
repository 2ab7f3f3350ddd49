package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/nimbusapi/nimbus-sdk-go/internal/errors"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/batch"
)

func TestTransientStateFor(t *testing.T) {
	tests := []struct {
		action JobAction
		want   batch.JobState
	}{
		{JobActionDelete, batch.JobStateDeleting},
		{JobActionTerminate, batch.JobStateTerminating},
		{JobActionDisable, batch.JobStateDisabling},
		{JobActionEnable, batch.JobStateEnabling},
	}

	for _, tt := range tests {
		got, err := TransientStateFor(tt.action)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := TransientStateFor(JobAction("explode"))
	assert.Error(t, err)
}

func TestFinalStateFor(t *testing.T) {
	state, ok := FinalStateFor(batch.JobStateTerminating)
	require.True(t, ok)
	assert.Equal(t, batch.JobStateCompleted, state)

	state, ok = FinalStateFor(batch.JobStateDisabling)
	require.True(t, ok)
	assert.Equal(t, batch.JobStateDisabled, state)

	state, ok = FinalStateFor(batch.JobStateEnabling)
	require.True(t, ok)
	assert.Equal(t, batch.JobStateActive, state)

	// Deleting jobs settle by row removal, not a final state.
	_, ok = FinalStateFor(batch.JobStateDeleting)
	assert.False(t, ok)
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		current batch.JobState
		action  JobAction
		wantErr bool
	}{
		{"delete active", batch.JobStateActive, JobActionDelete, false},
		{"delete completed", batch.JobStateCompleted, JobActionDelete, false},
		{"delete mid-transition", batch.JobStateTerminating, JobActionDelete, false},
		{"terminate active", batch.JobStateActive, JobActionTerminate, false},
		{"terminate disabled", batch.JobStateDisabled, JobActionTerminate, false},
		{"terminate completed", batch.JobStateCompleted, JobActionTerminate, true},
		{"disable active", batch.JobStateActive, JobActionDisable, false},
		{"disable disabled", batch.JobStateDisabled, JobActionDisable, true},
		{"enable disabled", batch.JobStateDisabled, JobActionEnable, false},
		{"enable active", batch.JobStateActive, JobActionEnable, true},
		{"terminate mid-transition", batch.JobStateDisabling, JobActionTerminate, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.current, tt.action)
			if tt.wantErr {
				require.Error(t, err)
				var appErr *apperrors.AppError
				require.ErrorAs(t, err, &appErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
