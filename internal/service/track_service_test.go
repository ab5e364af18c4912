package service

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/stemline/api/internal/model"
)

const testRedisDB = 15

func newTestService(t *testing.T) *TrackService {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: testRedisDB})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		t.Skipf("redis not available at %s: %v", addr, err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: addr, DB: testRedisDB})
	t.Cleanup(func() {
		asynqClient.Close()
		rdb.Close()
	})

	return NewTrackService(rdb, asynqClient)
}

func TestTrackService_Lifecycle(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	started, err := s.StartTrackJob(ctx, &model.StartTrackJobRequest{Prompt: "ambient piano"}, "user-1")
	if err != nil {
		t.Fatalf("StartTrackJob: %v", err)
	}
	t.Cleanup(func() { s.redis.Del(context.Background(), jobKey(started.JobID)) })

	if started.Status != model.JobStatusQueued {
		t.Errorf("expected queued, got %s", started.Status)
	}

	if _, err := s.GetResult(ctx, started.JobID); !errors.Is(err, ErrJobNotCompleted) {
		t.Errorf("expected ErrJobNotCompleted, got %v", err)
	}

	if err := s.UpdateJobProgress(ctx, started.JobID, 30, model.StagePollGeneration, "sonauto status PENDING (poll 1)"); err != nil {
		t.Fatalf("UpdateJobProgress: %v", err)
	}
	status, err := s.GetStatus(ctx, started.JobID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.Status != model.JobStatusRunning || status.StartedAt == nil || status.Stage != model.StagePollGeneration {
		t.Errorf("unexpected running status %+v", status)
	}

	result := &model.GenerateTrackResponse{TrackID: "track-1", Message: "Track generated and stored successfully!"}
	if err := s.CompleteJob(ctx, started.JobID, result); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}

	status, _ = s.GetStatus(ctx, started.JobID)
	if status.Status != model.JobStatusSucceeded || status.TrackID != "track-1" || status.Progress != 100 {
		t.Errorf("unexpected final status %+v", status)
	}

	got, err := s.GetResult(ctx, started.JobID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if got.TrackID != "track-1" {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestTrackService_FailedJob(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	started, err := s.StartTrackJob(ctx, &model.StartTrackJobRequest{}, "")
	if err != nil {
		t.Fatalf("StartTrackJob: %v", err)
	}
	t.Cleanup(func() { s.redis.Del(context.Background(), jobKey(started.JobID)) })

	if err := s.FailJob(ctx, started.JobID, model.StageFetchStems, "Failed to generate track"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	status, _ := s.GetStatus(ctx, started.JobID)
	if status.Status != model.JobStatusFailed || status.Stage != model.StageFetchStems || status.Error == nil {
		t.Errorf("unexpected failed status %+v", status)
	}
	if _, err := s.GetResult(ctx, started.JobID); !errors.Is(err, ErrJobFailed) {
		t.Errorf("expected ErrJobFailed, got %v", err)
	}
}

func TestTrackService_UnknownJob(t *testing.T) {
	s := newTestService(t)

	if _, err := s.GetStatus(context.Background(), "does-not-exist"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}
