package domain

import (
	"fmt"

	"github.com/nimbusapi/nimbus-sdk-go/internal/errors"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/batch"
)

// JobAction is a lifecycle action applied to a batch job.
type JobAction string

const (
	JobActionDelete    JobAction = "delete"
	JobActionTerminate JobAction = "terminate"
	JobActionDisable   JobAction = "disable"
	JobActionEnable    JobAction = "enable"
)

// TransientStateFor returns the intermediate state a job enters when the
// action is accepted.
func TransientStateFor(action JobAction) (batch.JobState, error) {
	switch action {
	case JobActionDelete:
		return batch.JobStateDeleting, nil
	case JobActionTerminate:
		return batch.JobStateTerminating, nil
	case JobActionDisable:
		return batch.JobStateDisabling, nil
	case JobActionEnable:
		return batch.JobStateEnabling, nil
	default:
		return "", fmt.Errorf("unknown job action %q", action)
	}
}

// FinalStateFor returns the state a job settles into after its transient
// state completes. Deleting jobs have no final state; the row is removed.
func FinalStateFor(transient batch.JobState) (batch.JobState, bool) {
	switch transient {
	case batch.JobStateTerminating:
		return batch.JobStateCompleted, true
	case batch.JobStateDisabling:
		return batch.JobStateDisabled, true
	case batch.JobStateEnabling:
		return batch.JobStateActive, true
	default:
		return "", false
	}
}

// ValidateTransition checks whether an action may be applied to a job in
// its current state. Delete is always allowed; the other actions reject
// jobs that already completed or are mid-transition.
func ValidateTransition(current batch.JobState, action JobAction) error {
	if action == JobActionDelete {
		return nil
	}
	switch current {
	case batch.JobStateActive, batch.JobStateDisabled:
	default:
		return errors.NewConflictError(fmt.Sprintf("cannot %s job in state %q", action, current))
	}
	switch action {
	case JobActionTerminate:
		return nil
	case JobActionDisable:
		if current != batch.JobStateActive {
			return errors.NewConflictError("only active jobs can be disabled")
		}
	case JobActionEnable:
		if current != batch.JobStateDisabled {
			return errors.NewConflictError("only disabled jobs can be enabled")
		}
	default:
		return errors.NewBadRequestError(fmt.Sprintf("unknown job action %q", action))
	}
	return nil
}
