// Package pipeline chains track generation and stem separation into one
// run and persists everything the run produced.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemline/api/internal/client"
	"github.com/stemline/api/internal/config"
	"github.com/stemline/api/internal/model"
	"github.com/stemline/api/internal/poller"
)

const (
	contentTypeJSON  = "application/json"
	contentTypeAudio = "audio/mpeg"
	cleanupTimeout   = 30 * time.Second
)

// TrackWriter persists finished track documents. Implementations stamp
// CreatedAt.
type TrackWriter interface {
	Save(ctx context.Context, track *model.Track) error
}

// EventPublisher announces stored tracks
type EventPublisher interface {
	PublishTrackCreated(ctx context.Context, event model.TrackCreatedEvent) error
}

// ProgressFunc receives stage transitions and poll updates
type ProgressFunc func(stage model.PipelineStage, percent int, detail string)

// Upload is caller supplied source audio
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Input selects the source of a run. A nil Upload triggers generation.
type Input struct {
	Upload *Upload
	Prompt string
}

// Options tune a pipeline
type Options struct {
	DefaultPrompt         string
	PollInterval          time.Duration
	GenerationMaxAttempts int
	SeparationMaxAttempts int
	RunTimeout            time.Duration
	CleanupOnFailure      bool
}

// OptionsFromConfig maps pipeline configuration to options
func OptionsFromConfig(cfg *config.PipelineConfig) Options {
	return Options{
		DefaultPrompt:         cfg.DefaultPrompt,
		PollInterval:          cfg.PollInterval,
		GenerationMaxAttempts: cfg.GenerationMaxAttempts,
		SeparationMaxAttempts: cfg.SeparationMaxAttempts,
		RunTimeout:            cfg.RunTimeout,
		CleanupOnFailure:      cfg.CleanupOnFailure,
	}
}

// Deps are the collaborators of a pipeline. Events is optional.
type Deps struct {
	Generator client.GenerationJobs
	Separator client.SeparationJobs
	Blobs     client.StorageClient
	Fetcher   client.AssetFetcher
	Tracks    TrackWriter
	Events    EventPublisher
}

// Pipeline runs the generate/separate/persist chain. It holds no per-run
// state and is safe for concurrent use.
type Pipeline struct {
	generator client.GenerationJobs
	separator client.SeparationJobs
	blobs     client.StorageClient
	fetcher   client.AssetFetcher
	tracks    TrackWriter
	events    EventPublisher
	opts      Options

	now   func() time.Time
	newID func() string
}

// New creates a pipeline
func New(deps Deps, opts Options) *Pipeline {
	if opts.DefaultPrompt == "" {
		opts.DefaultPrompt = "AI-generated track"
	}
	return &Pipeline{
		generator: deps.Generator,
		separator: deps.Separator,
		blobs:     deps.Blobs,
		fetcher:   deps.Fetcher,
		tracks:    deps.Tracks,
		events:    deps.Events,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// Run executes one pipeline run and returns the assembled response. Any
// failure aborts the run with a *StageError. Remote jobs are never
// cancelled; a timeout only stops the local wait.
func (p *Pipeline) Run(ctx context.Context, in Input, progress ProgressFunc) (resp *model.GenerateTrackResponse, err error) {
	if progress == nil {
		progress = func(model.PipelineStage, int, string) {}
	}
	if p.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.RunTimeout)
		defer cancel()
	}

	state := newRunState(p.newID())
	logger := zerolog.Ctx(ctx).With().Str("track_id", state.TrackID).Logger()
	ctx = logger.WithContext(ctx)

	origin := model.SourceGenerated
	if in.Upload != nil {
		origin = model.SourceUploaded
	}
	started := time.Now()

	defer func() {
		outcome := "succeeded"
		if err != nil {
			outcome = "failed"
			ev := logger.Error().Err(err)
			if se, ok := err.(*StageError); ok {
				ev = ev.Str("stage", string(se.Stage)).Str("job_id", se.JobID)
				stageFailures.WithLabelValues(string(se.Stage)).Inc()
			}
			ev.Msg("pipeline run failed")
			progress(model.StageFailed, 0, err.Error())
			if p.opts.CleanupOnFailure {
				p.cleanup(ctx, state)
			}
		}
		runsTotal.WithLabelValues(string(origin), outcome).Inc()
		runDuration.WithLabelValues(string(origin), outcome).Observe(time.Since(started).Seconds())
	}()

	progress(model.StageAcquireSource, 5, "Acquiring source audio")
	var original []byte
	var originalType string
	if in.Upload != nil {
		original = in.Upload.Data
		originalType = in.Upload.ContentType
		if err := p.storeUpload(ctx, state, in.Upload); err != nil {
			return nil, stageErr(model.StageAcquireSource, "", err)
		}
	} else {
		if err := p.generate(ctx, state, in.Prompt, progress); err != nil {
			return nil, err
		}
	}
	if originalType == "" {
		originalType = contentTypeAudio
	}

	if err := p.separate(ctx, state, progress); err != nil {
		return nil, err
	}

	progress(model.StageFetchStems, 75, "Storing stems")
	if err := p.fetchStems(ctx, state); err != nil {
		return nil, stageErr(model.StageFetchStems, state.Separation.ID, err)
	}

	progress(model.StagePersistArtifacts, 85, "Storing responses and poll history")
	if err := p.persistArtifacts(ctx, state, original, originalType); err != nil {
		return nil, stageErr(model.StagePersistArtifacts, "", err)
	}

	progress(model.StagePersistTrack, 95, "Saving track")
	track := BuildTrack(state)
	if err := p.tracks.Save(ctx, track); err != nil {
		return nil, stageErr(model.StagePersistTrack, "", &PersistenceError{Key: trackKey(state.TrackID), Err: err})
	}
	state.CreatedAt = track.CreatedAt
	p.publish(ctx, track)

	progress(model.StageAssemble, 98, "Assembling response")
	resp = Assemble(state)

	logger.Info().
		Str("source", string(origin)).
		Int("stems", len(state.Stems)).
		Dur("elapsed", time.Since(started)).
		Msg("pipeline run completed")
	progress(model.StageDone, 100, "Track ready")

	return resp, nil
}

func (p *Pipeline) storeUpload(ctx context.Context, state *RunState, up *Upload) error {
	contentType := up.ContentType
	if contentType == "" {
		contentType = contentTypeAudio
	}
	key := uploadKey(p.now(), up.Filename)
	url, err := p.put(ctx, state, key, up.Data, contentType)
	if err != nil {
		return err
	}
	state.Source = model.SourceAudio{
		Origin:   model.SourceUploaded,
		Filename: up.Filename,
		Key:      key,
		URL:      url,
	}
	return nil
}

func (p *Pipeline) generate(ctx context.Context, state *RunState, prompt string, progress ProgressFunc) error {
	if prompt == "" {
		prompt = p.opts.DefaultPrompt
	}

	progress(model.StageSubmitGeneration, 10, "Submitting generation job")
	handle, err := p.generator.Submit(ctx, prompt)
	if err != nil {
		return stageErr(model.StageSubmitGeneration, "", err)
	}
	zerolog.Ctx(ctx).Info().Str("job_id", handle.JobID).Msg("generation job submitted")

	job := poller.Job[*client.GenerationStatus]{
		ID: handle.JobID,
		Query: func(ctx context.Context) (*client.GenerationStatus, error) {
			return p.generator.FetchStatus(ctx, handle)
		},
		IsSuccess: client.GenerationSucceeded,
		IsFailure: client.GenerationFailed,
	}
	snapshot, history, err := poller.Poll(ctx, job, p.pollConfig(p.opts.GenerationMaxAttempts, "sonauto", model.StagePollGeneration, 15, 45, progress))
	state.GenerationHistory = history
	if err != nil {
		return &StageError{Stage: model.StagePollGeneration, JobID: handle.JobID, History: history, Err: err}
	}
	state.Generation = snapshot

	progress(model.StageResolveSource, 45, "Resolving generated audio")
	if len(snapshot.SongPaths) == 0 {
		return stageErr(model.StageResolveSource, handle.JobID, ErrNoOutputProduced)
	}
	state.Source = model.SourceAudio{
		Origin: model.SourceGenerated,
		URL:    snapshot.SongPaths[0],
		TaskID: handle.JobID,
		Prompt: prompt,
	}
	return nil
}

func (p *Pipeline) separate(ctx context.Context, state *RunState, progress ProgressFunc) error {
	state.SeparationWorkflow = p.separator.Workflow()

	progress(model.StageSubmitSeparation, 50, "Submitting stem separation job")
	handle, err := p.separator.Submit(ctx, "Track_"+uuid.NewString(), state.Source.URL)
	if err != nil {
		return stageErr(model.StageSubmitSeparation, "", err)
	}
	zerolog.Ctx(ctx).Info().Str("job_id", handle.JobID).Msg("separation job submitted")

	job := poller.Job[*client.SeparationStatus]{
		ID: handle.JobID,
		Query: func(ctx context.Context) (*client.SeparationStatus, error) {
			return p.separator.FetchStatus(ctx, handle)
		},
		IsSuccess: client.SeparationSucceeded,
		IsFailure: client.SeparationFailed,
	}
	snapshot, history, err := poller.Poll(ctx, job, p.pollConfig(p.opts.SeparationMaxAttempts, "musicai", model.StagePollSeparation, 55, 70, progress))
	state.SeparationHistory = history
	if err != nil {
		return &StageError{Stage: model.StagePollSeparation, JobID: handle.JobID, History: history, Err: err}
	}
	state.Separation = snapshot
	return nil
}

// pollConfig reports each poll as progress between from and to percent
func (p *Pipeline) pollConfig(maxAttempts int, service string, stage model.PipelineStage, from, to int, progress ProgressFunc) poller.Config {
	return poller.Config{
		Interval:    p.opts.PollInterval,
		MaxAttempts: maxAttempts,
		Now:         p.now,
		OnAttempt: func(attempt int, status string) {
			pollAttempts.WithLabelValues(service).Inc()
			percent := from + attempt
			if percent > to {
				percent = to
			}
			progress(stage, percent, fmt.Sprintf("%s status %s (poll %d)", service, status, attempt))
		},
	}
}

// fetchStems re-stores every remote stem in reply order. The first failure
// aborts; stems stored before it stay in place.
func (p *Pipeline) fetchStems(ctx context.Context, state *RunState) error {
	remote := state.Separation.Result.Stems
	for _, name := range stemNames(state.Separation.Result) {
		data, err := p.fetcher.Fetch(ctx, remote[name])
		if err != nil {
			return &StemFetchError{Stem: name, URL: remote[name], Err: err}
		}
		url, err := p.put(ctx, state, stemKey(p.now(), name), data, contentTypeAudio)
		if err != nil {
			return err
		}
		state.Stems[name] = url
		state.Storage.Stems[name] = url
	}
	return nil
}

// stemNames returns the reported stem order followed by any remaining
// stems sorted by name.
func stemNames(result model.SeparationResult) []string {
	names := make([]string, 0, len(result.Stems))
	seen := make(map[string]bool, len(result.Stems))
	for _, name := range result.StemOrder {
		if _, ok := result.Stems[name]; ok && !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range result.Stems {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

func (p *Pipeline) persistArtifacts(ctx context.Context, state *RunState, original []byte, contentType string) error {
	if state.Source.Origin == model.SourceGenerated {
		data, err := p.fetcher.Fetch(ctx, state.Source.URL)
		if err != nil {
			return &SourceFetchError{URL: state.Source.URL, Err: err}
		}
		original = data
	}

	url, err := p.put(ctx, state, trackKey(state.TrackID), original, contentType)
	if err != nil {
		return err
	}
	state.OriginalTrackURL = url
	state.Storage.OriginalTrack = url

	if state.Generation != nil {
		if state.Storage.Responses.Sonauto, err = p.putRaw(ctx, state, generationResponseKey(state.TrackID), state.Generation.RawJSON()); err != nil {
			return err
		}
		if state.Storage.Polls.Sonauto, err = p.putJSON(ctx, state, generationPollsKey(state.TrackID), state.GenerationHistory); err != nil {
			return err
		}
	}

	if state.Storage.Responses.MusicAI, err = p.putRaw(ctx, state, separationResponseKey(state.TrackID), state.Separation.RawJSON()); err != nil {
		return err
	}
	if state.Storage.Polls.MusicAI, err = p.putJSON(ctx, state, separationPollsKey(state.TrackID), state.SeparationHistory); err != nil {
		return err
	}
	return nil
}

func (p *Pipeline) putRaw(ctx context.Context, state *RunState, key string, raw json.RawMessage) (*string, error) {
	url, err := p.put(ctx, state, key, raw, contentTypeJSON)
	if err != nil {
		return nil, err
	}
	return &url, nil
}

func (p *Pipeline) putJSON(ctx context.Context, state *RunState, key string, v interface{}) (*string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &PersistenceError{Key: key, Err: err}
	}
	return p.putRaw(ctx, state, key, data)
}

func (p *Pipeline) put(ctx context.Context, state *RunState, key string, data []byte, contentType string) (string, error) {
	url, err := p.blobs.Upload(ctx, key, bytes.NewReader(data), contentType)
	if err != nil {
		return "", &PersistenceError{Key: key, Err: err}
	}
	state.written = append(state.written, key)
	return url, nil
}

// publish announces the track. Delivery is best effort.
func (p *Pipeline) publish(ctx context.Context, track *model.Track) {
	if p.events == nil {
		return
	}
	event := model.TrackCreatedEvent{
		TrackID:   track.TrackID,
		Source:    track.Source,
		TrackURL:  track.OriginalTrackURL,
		Stems:     copyMap(track.Stems),
		CreatedAt: track.CreatedAt,
	}
	if err := p.events.PublishTrackCreated(ctx, event); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to publish track created event")
	}
}

// cleanup deletes blobs written by a failed run, best effort. It runs on a
// fresh deadline since the run context may already be done.
func (p *Pipeline) cleanup(ctx context.Context, state *RunState) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	logger := zerolog.Ctx(ctx)
	for _, key := range state.written {
		if err := p.blobs.Delete(ctx, key); err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("failed to delete orphaned blob")
		}
	}
	logger.Info().Int("deleted", len(state.written)).Msg("cleaned up failed run")
}

func stageErr(stage model.PipelineStage, jobID string, err error) error {
	return &StageError{Stage: stage, JobID: jobID, Err: err}
}
