package batch

import "time"

// JobState is the server-side lifecycle state of a job.
type JobState string

const (
	JobStateActive      JobState = "active"
	JobStateDisabling   JobState = "disabling"
	JobStateDisabled    JobState = "disabled"
	JobStateEnabling    JobState = "enabling"
	JobStateTerminating JobState = "terminating"
	JobStateDeleting    JobState = "deleting"
	JobStateCompleted   JobState = "completed"
)

// Job is a batch job. State and the timestamps are maintained by the
// service.
type Job struct {
	ID                  string    `json:"id"`
	DisplayName         string    `json:"display_name,omitempty"`
	PoolID              string    `json:"pool_id"`
	Priority            int       `json:"priority"`
	State               JobState  `json:"state,omitempty"`
	CreationTime        time.Time `json:"creation_time"`
	StateTransitionTime time.Time `json:"state_transition_time"`
}
