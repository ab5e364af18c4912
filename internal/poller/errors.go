package poller

import (
	"encoding/json"
	"fmt"
)

// JobFailedError is returned when the remote job reaches its failure state
type JobFailedError struct {
	JobID    string
	Status   string
	Snapshot json.RawMessage
	Attempts int
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s failed with status %s after %d polls", e.JobID, e.Status, e.Attempts)
}

// PollTimeoutError is returned when the job stays non-terminal for the
// whole attempt budget.
type PollTimeoutError struct {
	JobID      string
	Attempts   int
	LastStatus string
}

func (e *PollTimeoutError) Error() string {
	if e.LastStatus == "" {
		return fmt.Sprintf("job %s did not finish within %d polls", e.JobID, e.Attempts)
	}
	return fmt.Sprintf("job %s did not finish within %d polls (last status %s)", e.JobID, e.Attempts, e.LastStatus)
}

// QueryError wraps a status read that cannot be retried
type QueryError struct {
	JobID   string
	Attempt int
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("status query for job %s failed on poll %d: %v", e.JobID, e.Attempt, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
