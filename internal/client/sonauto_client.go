package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/stemline/api/internal/config"
	"github.com/stemline/api/internal/model"
)

const serviceSonauto = "sonauto"

// GenerationJobs defines the submit/poll contract of a track generation service
type GenerationJobs interface {
	Submit(ctx context.Context, prompt string) (model.JobHandle, error)
	FetchStatus(ctx context.Context, handle model.JobHandle) (*GenerationStatus, error)
}

// SonautoClient implements GenerationJobs for the Sonauto API
type SonautoClient struct {
	api    apiClient
	apiKey string
}

// generationRequest is the body of POST /generations
type generationRequest struct {
	Prompt string `json:"prompt"`
}

// generationCreated is the reply to POST /generations
type generationCreated struct {
	TaskID string `json:"task_id"`
}

// GenerationStatus is one snapshot of a generation job as returned by
// GET /generations/{task_id}. The undecoded body is kept for provenance.
type GenerationStatus struct {
	TaskID    string                   `json:"task_id"`
	Status    string                   `json:"status"`
	SongPaths []string                 `json:"song_paths"`
	Metadata  model.GenerationMetadata `json:"metadata"`

	raw json.RawMessage
}

// RawJSON returns the status body exactly as the service sent it
func (s *GenerationStatus) RawJSON() json.RawMessage { return s.raw }

// JobStatus returns the remote status word
func (s *GenerationStatus) JobStatus() string { return s.Status }

// GenerationSucceeded is the success predicate for generation polling
func GenerationSucceeded(s *GenerationStatus) bool {
	return s.Status == model.SonautoStatusSuccess
}

// GenerationFailed is the failure predicate for generation polling
func GenerationFailed(s *GenerationStatus) bool {
	return s.Status == model.SonautoStatusFailure
}

// NewSonautoClient creates a new Sonauto API client
func NewSonautoClient(cfg *config.SonautoConfig) *SonautoClient {
	c := &SonautoClient{apiKey: cfg.APIKey}
	c.api = apiClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL: cfg.BaseURL,
		service: serviceSonauto,
		authorize: func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		},
	}
	return c
}

// Submit creates a generation job for the prompt
func (c *SonautoClient) Submit(ctx context.Context, prompt string) (model.JobHandle, error) {
	resp, err := c.api.do(ctx, http.MethodPost, "/generations", generationRequest{Prompt: prompt})
	if err != nil {
		return model.JobHandle{}, &SubmissionError{Service: serviceSonauto, Err: err}
	}
	if !resp.ok() {
		return model.JobHandle{}, &SubmissionError{Service: serviceSonauto, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	var created generationCreated
	if err := json.Unmarshal(resp.Body, &created); err != nil {
		return model.JobHandle{}, &SubmissionError{Service: serviceSonauto, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}
	if created.TaskID == "" {
		return model.JobHandle{}, &SubmissionError{Service: serviceSonauto}
	}

	return model.JobHandle{JobID: created.TaskID, SubmittedAt: time.Now().UTC()}, nil
}

// FetchStatus reads the current state of a generation job
func (c *SonautoClient) FetchStatus(ctx context.Context, handle model.JobHandle) (*GenerationStatus, error) {
	endpoint := fmt.Sprintf("/generations/%s", url.PathEscape(handle.JobID))
	resp, err := c.api.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &TransientQueryError{Service: serviceSonauto, JobID: handle.JobID, Err: err}
	}
	if isTransientStatus(resp.StatusCode) {
		return nil, &TransientQueryError{Service: serviceSonauto, JobID: handle.JobID, StatusCode: resp.StatusCode}
	}
	if !resp.ok() {
		return nil, fmt.Errorf("sonauto API error (status %d): %s", resp.StatusCode, string(resp.Body))
	}

	return ParseGenerationStatus(resp.Body)
}

// ParseGenerationStatus decodes a status body and keeps it verbatim
func ParseGenerationStatus(body []byte) (*GenerationStatus, error) {
	var status GenerationStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, &DecodeError{Service: serviceSonauto, Body: body, Err: err}
	}
	status.raw = json.RawMessage(body)
	return &status, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *SonautoClient) IsConfigured() bool {
	return c.apiKey != ""
}
