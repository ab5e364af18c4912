package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/stemline/api/internal/model"
	"github.com/stemline/api/internal/pipeline"
	"github.com/stemline/api/internal/service"
	"github.com/stemline/api/pkg/response"
)

// TrackRunner runs one pipeline
type TrackRunner interface {
	Run(ctx context.Context, in pipeline.Input, progress pipeline.ProgressFunc) (*model.GenerateTrackResponse, error)
}

// JobRecorder persists job state transitions
type JobRecorder interface {
	UpdateJobProgress(ctx context.Context, jobID string, progress int, stage model.PipelineStage, step string) error
	CompleteJob(ctx context.Context, jobID string, result *model.GenerateTrackResponse) error
	FailJob(ctx context.Context, jobID string, stage model.PipelineStage, errMsg string) error
}

// Broadcaster pushes job updates to websocket subscribers
type Broadcaster interface {
	BroadcastProgress(jobID string, progress int, stage model.PipelineStage, step string)
	BroadcastComplete(jobID string, result interface{})
	BroadcastError(jobID string, code, message string)
}

// TrackWorker processes track tasks
type TrackWorker struct {
	runner TrackRunner
	jobs   JobRecorder
	hub    Broadcaster
	logger zerolog.Logger
}

// NewTrackWorker creates a new track worker
func NewTrackWorker(runner TrackRunner, jobs JobRecorder, hub Broadcaster, logger zerolog.Logger) *TrackWorker {
	return &TrackWorker{
		runner: runner,
		jobs:   jobs,
		hub:    hub,
		logger: logger,
	}
}

// ProcessTask handles track task processing. Failures are final: retrying
// would submit fresh remote jobs.
func (w *TrackWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var taskPayload service.TrackTaskPayload
	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	jobID := taskPayload.JobID
	logger := w.logger.With().Str("async_job_id", jobID).Logger()
	ctx = logger.WithContext(ctx)
	logger.Info().Msg("starting track job")

	var payload model.TrackJobPayload
	if err := json.Unmarshal(taskPayload.Payload, &payload); err != nil {
		w.failJob(ctx, jobID, "", "Invalid payload")
		return fmt.Errorf("failed to unmarshal track payload: %v: %w", err, asynq.SkipRetry)
	}

	progress := func(stage model.PipelineStage, percent int, step string) {
		if stage == model.StageFailed {
			return
		}
		w.updateProgress(ctx, jobID, percent, stage, step)
	}

	result, err := w.runner.Run(ctx, pipeline.Input{Prompt: payload.Prompt}, progress)
	if err != nil {
		var stage model.PipelineStage
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) {
			stage = stageErr.Stage
		}
		w.failJob(ctx, jobID, stage, "Failed to generate track")
		return fmt.Errorf("track job %s: %v: %w", jobID, err, asynq.SkipRetry)
	}

	if err := w.jobs.CompleteJob(ctx, jobID, result); err != nil {
		w.failJob(ctx, jobID, model.StageDone, "Failed to save result")
		return fmt.Errorf("failed to save result: %v: %w", err, asynq.SkipRetry)
	}

	w.hub.BroadcastComplete(jobID, result)
	logger.Info().Str("track_id", result.TrackID).Msg("track job completed")
	return nil
}

func (w *TrackWorker) updateProgress(ctx context.Context, jobID string, progress int, stage model.PipelineStage, step string) {
	if err := w.jobs.UpdateJobProgress(ctx, jobID, progress, stage, step); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to update progress")
	}
	w.hub.BroadcastProgress(jobID, progress, stage, step)
}

// failJob records the failure with a fresh context; the task context may
// already be done.
func (w *TrackWorker) failJob(ctx context.Context, jobID string, stage model.PipelineStage, errMsg string) {
	if err := w.jobs.FailJob(context.WithoutCancel(ctx), jobID, stage, errMsg); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to mark job as failed")
	}
	w.hub.BroadcastError(jobID, response.CodePipelineFailed, errMsg)
}
