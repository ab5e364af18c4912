package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
)

// apiClient carries the JSON-over-HTTP plumbing shared by the job service
// clients. authorize sets the service specific credentials on a request.
type apiClient struct {
	httpClient *http.Client
	baseURL    string
	service    string
	authorize  func(*http.Request)
}

// apiResponse is a raw reply from a job service
type apiResponse struct {
	StatusCode int
	Body       []byte
}

func (r *apiResponse) ok() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// do sends a request with an optional JSON body. A non-nil error means the
// exchange itself failed; HTTP error statuses are left to the caller.
func (c *apiClient) do(ctx context.Context, method, endpoint string, body interface{}) (*apiResponse, error) {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.authorize != nil {
		c.authorize(req)
	}

	logger := zerolog.Ctx(ctx).With().Str("service", c.service).Logger()
	logger.Debug().Str("method", req.Method).Str("url", req.URL.String()).Msg("api request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn().Err(err).Str("method", req.Method).Str("url", req.URL.String()).Msg("api request failed")
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	logger.Debug().
		Int("status", resp.StatusCode).
		Str("method", req.Method).
		Str("url", req.URL.String()).
		RawJSON("body", jsonOrString(respBody)).
		Msg("api response")

	return &apiResponse{StatusCode: resp.StatusCode, Body: respBody}, nil
}

// jsonOrString keeps valid JSON bodies as-is in log lines and quotes
// anything else so the log entry stays well-formed.
func jsonOrString(body []byte) []byte {
	if json.Valid(body) {
		return body
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}

// isTransientStatus reports whether a status read should be retried
func isTransientStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}
