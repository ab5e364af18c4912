package pipeline

import (
	"errors"
	"fmt"

	"github.com/stemline/api/internal/model"
	"github.com/stemline/api/internal/poller"
)

// ErrNoOutputProduced is returned when a generation job succeeds without
// any song path.
var ErrNoOutputProduced = errors.New("generation job produced no output")

// StageError records the stage (and remote job, if any) a run failed in.
// History holds the snapshots seen before a polling stage failed.
type StageError struct {
	Stage   model.PipelineStage
	JobID   string
	History *poller.History
	Err     error
}

func (e *StageError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("%s (job %s): %v", e.Stage, e.JobID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StemFetchError is returned when a separated stem cannot be downloaded
type StemFetchError struct {
	Stem string
	URL  string
	Err  error
}

func (e *StemFetchError) Error() string {
	return fmt.Sprintf("failed to fetch stem %q: %v", e.Stem, e.Err)
}

func (e *StemFetchError) Unwrap() error { return e.Err }

// SourceFetchError is returned when the generated source audio cannot be
// downloaded for archiving.
type SourceFetchError struct {
	URL string
	Err error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("failed to fetch source audio: %v", e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// PersistenceError is returned when a blob or document write fails
type PersistenceError struct {
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist %s: %v", e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
