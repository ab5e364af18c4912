package client

import "fmt"

// SubmissionError is returned when a remote service rejects a job creation
// request or answers it without a job identifier.
type SubmissionError struct {
	Service    string
	StatusCode int
	Body       string
	Err        error
}

func (e *SubmissionError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: job submission failed: %v", e.Service, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: job submission rejected (status %d): %s", e.Service, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%s: job submission returned no job id", e.Service)
	}
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// TransientQueryError marks a status read that failed on the network or
// with a server-side error. Pollers treat it as "ask again later".
type TransientQueryError struct {
	Service    string
	JobID      string
	StatusCode int
	Err        error
}

func (e *TransientQueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: status query for job %s failed: %v", e.Service, e.JobID, e.Err)
	}
	return fmt.Sprintf("%s: status query for job %s failed with status %d", e.Service, e.JobID, e.StatusCode)
}

func (e *TransientQueryError) Unwrap() error { return e.Err }

// Transient satisfies the poller's transient error check.
func (e *TransientQueryError) Transient() bool { return true }

// DecodeError is returned when a status reply cannot be decoded. The body
// the service sent is kept so pollers can still record it.
type DecodeError struct {
	Service string
	Body    []byte
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: failed to unmarshal response: %v", e.Service, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// RawBody returns the undecodable reply
func (e *DecodeError) RawBody() []byte { return e.Body }
