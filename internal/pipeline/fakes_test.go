package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stemline/api/internal/client"
	"github.com/stemline/api/internal/model"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeGenerator struct {
	mu      sync.Mutex
	bodies  []string
	prompts []string
	polls   int
}

func (f *fakeGenerator) Submit(ctx context.Context, prompt string) (model.JobHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return model.JobHandle{JobID: "task-1", SubmittedAt: testNow}, nil
}

func (f *fakeGenerator) FetchStatus(ctx context.Context, handle model.JobHandle) (*client.GenerationStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body := f.bodies[len(f.bodies)-1]
	if f.polls < len(f.bodies) {
		body = f.bodies[f.polls]
	}
	f.polls++
	return client.ParseGenerationStatus([]byte(body))
}

type fakeSeparator struct {
	mu         sync.Mutex
	bodies     []string
	sourceURLs []string
	names      []string
	polls      int
}

func (f *fakeSeparator) Submit(ctx context.Context, name, sourceURL string) (model.JobHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, name)
	f.sourceURLs = append(f.sourceURLs, sourceURL)
	return model.JobHandle{JobID: "sep-1", SubmittedAt: testNow}, nil
}

func (f *fakeSeparator) FetchStatus(ctx context.Context, handle model.JobHandle) (*client.SeparationStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body := f.bodies[len(f.bodies)-1]
	if f.polls < len(f.bodies) {
		body = f.bodies[f.polls]
	}
	f.polls++
	return client.ParseSeparationStatus([]byte(body))
}

func (f *fakeSeparator) Workflow() string { return "music-ai/stems-vocals-accompaniment" }

type fakeFetcher struct {
	assets map[string][]byte
	fail   map[string]error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err, ok := f.fail[url]; ok {
		return nil, err
	}
	data, ok := f.assets[url]
	if !ok {
		return nil, errors.New("unknown asset " + url)
	}
	return data, nil
}

type fakeTracks struct {
	mu     sync.Mutex
	saved  map[string]*model.Track
	failed error
}

func (f *fakeTracks) Save(ctx context.Context, track *model.Track) error {
	if f.failed != nil {
		return f.failed
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = map[string]*model.Track{}
	}
	track.CreatedAt = testNow
	f.saved[track.TrackID] = track
	return nil
}

type fakeEvents struct {
	events []model.TrackCreatedEvent
}

func (f *fakeEvents) PublishTrackCreated(ctx context.Context, event model.TrackCreatedEvent) error {
	f.events = append(f.events, event)
	return nil
}

// failingBlobs rejects writes to a single key
type failingBlobs struct {
	*client.MemoryStorage
	key string
}

func (f *failingBlobs) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if key == f.key {
		return "", errors.New("bucket unavailable")
	}
	return f.MemoryStorage.Upload(ctx, key, body, contentType)
}

type testEnv struct {
	generator *fakeGenerator
	separator *fakeSeparator
	blobs     *client.MemoryStorage
	fetcher   *fakeFetcher
	tracks    *fakeTracks
	events    *fakeEvents
	stages    []model.PipelineStage
}

func (e *testEnv) progress(stage model.PipelineStage, percent int, detail string) {
	e.stages = append(e.stages, stage)
}

func (e *testEnv) count(stage model.PipelineStage) int {
	n := 0
	for _, s := range e.stages {
		if s == stage {
			n++
		}
	}
	return n
}

const (
	generatedURL     = "https://cdn.sonauto.test/song.ogg"
	vocalsURL        = "https://music.ai.test/tmp/vocals.mp3"
	accompanimentURL = "https://music.ai.test/tmp/accompaniment.mp3"

	generationSuccess = `{"task_id":"task-1","status":"SUCCESS","song_paths":["` + generatedURL + `"],"metadata":{"duration":95.5,"genre":"synthwave","bpm":118}}`
	separationSuccess = `{"id":"sep-1","status":"SUCCEEDED","result":{"vocals":"` + vocalsURL + `","accompaniment":"` + accompanimentURL + `","duration":95.5,"sampleRate":44100,"bitDepth":16}}`
)

func newTestEnv() *testEnv {
	return &testEnv{
		generator: &fakeGenerator{bodies: []string{`{"task_id":"task-1","status":"PENDING"}`, generationSuccess}},
		separator: &fakeSeparator{bodies: []string{`{"id":"sep-1","status":"STARTED"}`, separationSuccess}},
		blobs:     client.NewMemoryStorage("https://blobs.test"),
		fetcher: &fakeFetcher{
			assets: map[string][]byte{
				generatedURL:     []byte("generated-audio"),
				vocalsURL:        []byte("vocals-audio"),
				accompanimentURL: []byte("accompaniment-audio"),
			},
			fail: map[string]error{},
		},
		tracks: &fakeTracks{},
		events: &fakeEvents{},
	}
}

func (e *testEnv) pipeline(t *testing.T, opts Options) *Pipeline {
	return e.pipelineWithBlobs(t, opts, e.blobs)
}

func (e *testEnv) pipelineWithBlobs(t *testing.T, opts Options, blobs client.StorageClient) *Pipeline {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}
	if opts.GenerationMaxAttempts == 0 {
		opts.GenerationMaxAttempts = 10
	}
	if opts.SeparationMaxAttempts == 0 {
		opts.SeparationMaxAttempts = 10
	}
	p := New(Deps{
		Generator: e.generator,
		Separator: e.separator,
		Blobs:     blobs,
		Fetcher:   e.fetcher,
		Tracks:    e.tracks,
		Events:    e.events,
	}, opts)
	p.now = func() time.Time { return testNow }
	p.newID = func() string { return "track-1" }
	return p
}
