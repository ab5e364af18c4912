package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/stemline/api/internal/model"
)

const (
	TaskTypeTrack = "track:process"
	QueueTracks   = "tracks"

	jobTTL = 24 * time.Hour
)

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrJobNotCompleted = errors.New("job not completed")
	ErrJobFailed       = errors.New("job failed")
)

// TrackTaskPayload is the asynq payload of a track task
type TrackTaskPayload struct {
	JobID   string          `json:"jobId"`
	Payload json.RawMessage `json:"payload"`
}

// TrackService manages background track jobs
type TrackService struct {
	redis       *redis.Client
	asynqClient *asynq.Client
	now         func() time.Time
}

func NewTrackService(redisClient *redis.Client, asynqClient *asynq.Client) *TrackService {
	return &TrackService{
		redis:       redisClient,
		asynqClient: asynqClient,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// StartTrackJob records a queued job and enqueues the pipeline task. The
// task is never retried: a retry would submit new remote jobs.
func (s *TrackService) StartTrackJob(ctx context.Context, req *model.StartTrackJobRequest, userID string) (*model.StartTrackJobResponse, error) {
	jobID := uuid.New().String()
	now := s.now()

	payloadBytes, err := json.Marshal(&model.TrackJobPayload{
		Prompt: req.Prompt,
		UserID: userID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	job := &model.Job{
		ID:        jobID,
		Type:      model.JobTypeTrack,
		Status:    model.JobStatusQueued,
		Progress:  0,
		Payload:   payloadBytes,
		CreatedAt: now,
	}

	if err := s.saveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task, err := NewTrackTask(jobID, payloadBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	_, err = s.asynqClient.EnqueueContext(ctx, task,
		asynq.Queue(QueueTracks),
		asynq.MaxRetry(0),
		asynq.Retention(jobTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.StartTrackJobResponse{
		JobID:     jobID,
		Status:    model.JobStatusQueued,
		CreatedAt: now,
	}, nil
}

// GetStatus returns the current status of a track job
func (s *TrackService) GetStatus(ctx context.Context, jobID string) (*model.TrackJobStatusResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &model.TrackJobStatusResponse{
		JobID:       job.ID,
		Status:      job.Status,
		Progress:    job.Progress,
		Stage:       job.Stage,
		CurrentStep: job.CurrentStep,
		Error:       job.Error,
		TrackID:     job.TrackID,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}, nil
}

// GetResult returns the assembled response of a finished job
func (s *TrackService) GetResult(ctx context.Context, jobID string) (*model.GenerateTrackResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case model.JobStatusSucceeded:
	case model.JobStatusFailed:
		return nil, ErrJobFailed
	default:
		return nil, ErrJobNotCompleted
	}

	var result model.GenerateTrackResponse
	if err := json.Unmarshal(job.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}

	return &result, nil
}

// UpdateJobProgress updates job progress (called by worker)
func (s *TrackService) UpdateJobProgress(ctx context.Context, jobID string, progress int, stage model.PipelineStage, step string) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Progress = progress
	job.Stage = stage
	job.CurrentStep = step

	if job.Status == model.JobStatusQueued {
		job.Status = model.JobStatusRunning
		now := s.now()
		job.StartedAt = &now
	}

	return s.saveJob(ctx, job)
}

// CompleteJob marks job as completed (called by worker)
func (s *TrackService) CompleteJob(ctx context.Context, jobID string, result *model.GenerateTrackResponse) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	resultBytes, err := json.Marshal(result)
	if err != nil {
		return err
	}

	job.Status = model.JobStatusSucceeded
	job.Progress = 100
	job.Stage = model.StageDone
	job.Result = resultBytes
	job.TrackID = result.TrackID
	now := s.now()
	job.CompletedAt = &now

	return s.saveJob(ctx, job)
}

// FailJob marks job as failed (called by worker)
func (s *TrackService) FailJob(ctx context.Context, jobID string, stage model.PipelineStage, errMsg string) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Status = model.JobStatusFailed
	if stage != "" {
		job.Stage = stage
	}
	job.Error = &errMsg
	now := s.now()
	job.CompletedAt = &now

	return s.saveJob(ctx, job)
}

// Helper methods

func (s *TrackService) saveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, jobKey(job.ID), data, jobTTL).Err()
}

func (s *TrackService) getJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}

	return &job, nil
}

func jobKey(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

// NewTrackTask wraps a job payload into an asynq task
func NewTrackTask(jobID string, payload []byte) (*asynq.Task, error) {
	data, err := json.Marshal(TrackTaskPayload{
		JobID:   jobID,
		Payload: payload,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeTrack, data), nil
}
