package model

import (
	"encoding/json"
	"time"
)

// Job represents a background pipeline job in the system
type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Status      JobStatus       `json:"status"`
	Progress    int             `json:"progress"`
	CurrentStep string          `json:"currentStep,omitempty"`
	Stage       PipelineStage   `json:"stage,omitempty"`
	Error       *string         `json:"error,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	TrackID     string          `json:"trackId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// Job types
const (
	JobTypeTrack = "track"
)

// TrackJobPayload contains the data for an asynchronous track job
type TrackJobPayload struct {
	Prompt string `json:"prompt,omitempty"`
	UserID string `json:"userId,omitempty"`
}

// StartTrackJobRequest is the body of POST /api/tracks/jobs
type StartTrackJobRequest struct {
	Prompt string `json:"prompt" validate:"omitempty,max=500"`
}

// StartTrackJobResponse is returned when a track job is queued
type StartTrackJobResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// TrackJobStatusResponse reports the progress of a track job
type TrackJobStatusResponse struct {
	JobID       string        `json:"jobId"`
	Status      JobStatus     `json:"status"`
	Progress    int           `json:"progress"`
	Stage       PipelineStage `json:"stage,omitempty"`
	CurrentStep string        `json:"currentStep,omitempty"`
	Error       *string       `json:"error,omitempty"`
	TrackID     string        `json:"trackId,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	StartedAt   *time.Time    `json:"startedAt,omitempty"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}
