package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stemline/api/internal/config"
	"github.com/stemline/api/internal/model"
)

const serviceMusicAI = "musicai"

// SeparationJobs defines the submit/poll contract of a stem separation service
type SeparationJobs interface {
	Submit(ctx context.Context, name, sourceURL string) (model.JobHandle, error)
	FetchStatus(ctx context.Context, handle model.JobHandle) (*SeparationStatus, error)
	Workflow() string
}

// MusicAIClient implements SeparationJobs for the Music.AI job API
type MusicAIClient struct {
	api      apiClient
	apiKey   string
	workflow string
}

type separationParams struct {
	InputURL string `json:"inputUrl"`
}

// separationRequest is the body of POST /job
type separationRequest struct {
	Name     string           `json:"name"`
	Workflow string           `json:"workflow"`
	Params   separationParams `json:"params"`
}

type separationCreated struct {
	ID string `json:"id"`
}

// SeparationStatus is one snapshot of a separation job as returned by
// GET /job/{id}. The undecoded body is kept for provenance.
type SeparationStatus struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name,omitempty"`
	Workflow string                 `json:"workflow,omitempty"`
	Status   string                 `json:"status"`
	Result   model.SeparationResult `json:"-"`

	raw json.RawMessage
}

// RawJSON returns the status body exactly as the service sent it
func (s *SeparationStatus) RawJSON() json.RawMessage { return s.raw }

// JobStatus returns the remote status word
func (s *SeparationStatus) JobStatus() string { return s.Status }

// UnmarshalJSON decodes the envelope and splits result into stems and
// audio properties.
func (s *SeparationStatus) UnmarshalJSON(data []byte) error {
	type envelope SeparationStatus
	var aux struct {
		*envelope
		Result json.RawMessage `json:"result"`
	}
	aux.envelope = (*envelope)(s)
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	result, err := decodeSeparationResult(aux.Result)
	if err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	s.Result = result
	return nil
}

// decodeSeparationResult treats duration, sampleRate and bitDepth as audio
// properties and every other URL-valued field as a stem. Stem order follows
// the reply.
func decodeSeparationResult(data json.RawMessage) (model.SeparationResult, error) {
	result := model.SeparationResult{Stems: map[string]string{}}
	if len(data) == 0 || string(data) == "null" {
		return result, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return result, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return result, fmt.Errorf("result is not an object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return result, err
		}
		name, _ := tok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return result, err
		}

		switch name {
		case "duration":
			var d float64
			if err := json.Unmarshal(value, &d); err == nil {
				result.Duration = &d
			}
		case "sampleRate":
			var n float64
			if err := json.Unmarshal(value, &n); err == nil {
				rate := int(n)
				result.SampleRate = &rate
			}
		case "bitDepth":
			var n float64
			if err := json.Unmarshal(value, &n); err == nil {
				depth := int(n)
				result.BitDepth = &depth
			}
		default:
			var s string
			if err := json.Unmarshal(value, &s); err == nil && isRemoteURL(s) {
				if _, seen := result.Stems[name]; !seen {
					result.StemOrder = append(result.StemOrder, name)
				}
				result.Stems[name] = s
			}
		}
	}

	return result, nil
}

func isRemoteURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

// SeparationSucceeded is the success predicate for separation polling
func SeparationSucceeded(s *SeparationStatus) bool {
	return s.Status == model.MusicAIStatusSucceeded
}

// SeparationFailed is the failure predicate for separation polling
func SeparationFailed(s *SeparationStatus) bool {
	return s.Status == model.MusicAIStatusFailed
}

// NewMusicAIClient creates a new Music.AI API client
func NewMusicAIClient(cfg *config.MusicAIConfig) *MusicAIClient {
	c := &MusicAIClient{apiKey: cfg.APIKey, workflow: cfg.Workflow}
	c.api = apiClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL: cfg.BaseURL,
		service: serviceMusicAI,
		authorize: func(req *http.Request) {
			req.Header.Set("Authorization", c.apiKey)
		},
	}
	return c
}

// Submit creates a named separation job for audio reachable at sourceURL.
// The service downloads the audio itself.
func (c *MusicAIClient) Submit(ctx context.Context, name, sourceURL string) (model.JobHandle, error) {
	body := separationRequest{
		Name:     name,
		Workflow: c.workflow,
		Params:   separationParams{InputURL: sourceURL},
	}

	resp, err := c.api.do(ctx, http.MethodPost, "/job", body)
	if err != nil {
		return model.JobHandle{}, &SubmissionError{Service: serviceMusicAI, Err: err}
	}
	if !resp.ok() {
		return model.JobHandle{}, &SubmissionError{Service: serviceMusicAI, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	var created separationCreated
	if err := json.Unmarshal(resp.Body, &created); err != nil {
		return model.JobHandle{}, &SubmissionError{Service: serviceMusicAI, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}
	if created.ID == "" {
		return model.JobHandle{}, &SubmissionError{Service: serviceMusicAI}
	}

	return model.JobHandle{JobID: created.ID, SubmittedAt: time.Now().UTC()}, nil
}

// FetchStatus reads the current state of a separation job
func (c *MusicAIClient) FetchStatus(ctx context.Context, handle model.JobHandle) (*SeparationStatus, error) {
	endpoint := fmt.Sprintf("/job/%s", url.PathEscape(handle.JobID))
	resp, err := c.api.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &TransientQueryError{Service: serviceMusicAI, JobID: handle.JobID, Err: err}
	}
	if isTransientStatus(resp.StatusCode) {
		return nil, &TransientQueryError{Service: serviceMusicAI, JobID: handle.JobID, StatusCode: resp.StatusCode}
	}
	if !resp.ok() {
		return nil, fmt.Errorf("music.ai API error (status %d): %s", resp.StatusCode, string(resp.Body))
	}

	return ParseSeparationStatus(resp.Body)
}

// ParseSeparationStatus decodes a status body and keeps it verbatim
func ParseSeparationStatus(body []byte) (*SeparationStatus, error) {
	var status SeparationStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, &DecodeError{Service: serviceMusicAI, Body: body, Err: err}
	}
	status.raw = json.RawMessage(body)
	return &status, nil
}

// Workflow returns the separation workflow jobs are created with
func (c *MusicAIClient) Workflow() string {
	return c.workflow
}

// IsConfigured returns true if the client has valid configuration
func (c *MusicAIClient) IsConfigured() bool {
	return c.apiKey != ""
}
