package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stemline/api/internal/config"
	"github.com/stemline/api/internal/model"
)

func newTestMusicAI(t *testing.T, handler http.HandlerFunc) *MusicAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewMusicAIClient(&config.MusicAIConfig{
		APIKey:   "musicai-key",
		BaseURL:  srv.URL,
		Workflow: "music-ai/stems-vocals-accompaniment",
	})
}

func TestMusicAISubmit_Success(t *testing.T) {
	c := newTestMusicAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/job" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "musicai-key" {
			t.Errorf("expected raw api key header, got %q", got)
		}
		var body separationRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Name != "Track_1" || body.Workflow != "music-ai/stems-vocals-accompaniment" {
			t.Errorf("unexpected body %+v", body)
		}
		if body.Params.InputURL != "https://storage.example/uploads/1_song.mp3" {
			t.Errorf("unexpected input url %q", body.Params.InputURL)
		}
		w.Write([]byte(`{"id":"job-9"}`))
	})

	handle, err := c.Submit(context.Background(), "Track_1", "https://storage.example/uploads/1_song.mp3")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if handle.JobID != "job-9" {
		t.Errorf("expected job-9, got %q", handle.JobID)
	}
}

func TestMusicAISubmit_MissingID(t *testing.T) {
	c := newTestMusicAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	_, err := c.Submit(context.Background(), "Track_1", "https://x.example/a.mp3")
	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected SubmissionError, got %v", err)
	}
}

func TestMusicAIFetchStatus_SplitsStemsFromProperties(t *testing.T) {
	c := newTestMusicAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/job/job-9" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"id": "job-9",
			"status": "SUCCEEDED",
			"result": {
				"vocals": "https://music.ai/tmp/vocals.mp3",
				"accompaniment": "https://music.ai/tmp/accompaniment.mp3",
				"duration": 187.2,
				"sampleRate": 44100,
				"bitDepth": 16,
				"note": "not a url"
			}
		}`))
	})

	status, err := c.FetchStatus(context.Background(), model.JobHandle{JobID: "job-9"})
	if err != nil {
		t.Fatalf("FetchStatus: %v", err)
	}
	if !SeparationSucceeded(status) {
		t.Errorf("expected success predicate to match %q", status.Status)
	}

	stems := status.Result.Stems
	if len(stems) != 2 {
		t.Fatalf("expected exactly 2 stems, got %v", stems)
	}
	if stems[model.StemVocals] != "https://music.ai/tmp/vocals.mp3" {
		t.Errorf("unexpected vocals url %q", stems[model.StemVocals])
	}
	if len(status.Result.StemOrder) != 2 || status.Result.StemOrder[0] != model.StemVocals {
		t.Errorf("expected reply order vocals, accompaniment; got %v", status.Result.StemOrder)
	}
	if status.Result.SampleRate == nil || *status.Result.SampleRate != 44100 {
		t.Errorf("expected sample rate 44100, got %v", status.Result.SampleRate)
	}
	if status.Result.BitDepth == nil || *status.Result.BitDepth != 16 {
		t.Errorf("expected bit depth 16, got %v", status.Result.BitDepth)
	}
	if status.Result.Duration == nil || *status.Result.Duration != 187.2 {
		t.Errorf("expected duration 187.2, got %v", status.Result.Duration)
	}
	if len(status.RawJSON()) == 0 {
		t.Error("expected raw body to be kept")
	}
}

func TestMusicAIFetchStatus_PendingHasNoStems(t *testing.T) {
	c := newTestMusicAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"job-9","status":"STARTED","result":null}`))
	})

	status, err := c.FetchStatus(context.Background(), model.JobHandle{JobID: "job-9"})
	if err != nil {
		t.Fatalf("FetchStatus: %v", err)
	}
	if SeparationSucceeded(status) || SeparationFailed(status) {
		t.Errorf("STARTED must be non-terminal")
	}
	if len(status.Result.Stems) != 0 {
		t.Errorf("expected no stems, got %v", status.Result.Stems)
	}
}

func TestMusicAIFetchStatus_UnavailableIsTransient(t *testing.T) {
	c := newTestMusicAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.FetchStatus(context.Background(), model.JobHandle{JobID: "job-9"})
	var transient *TransientQueryError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientQueryError, got %v", err)
	}
}
