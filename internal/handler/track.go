package handler

import (
	"context"
	"errors"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/stemline/api/internal/middleware"
	"github.com/stemline/api/internal/model"
	"github.com/stemline/api/internal/pipeline"
	"github.com/stemline/api/internal/service"
	"github.com/stemline/api/internal/store"
	"github.com/stemline/api/pkg/response"
)

const maxUploadSize = 50 * 1024 * 1024 // 50MB

var validAudioTypes = map[string]bool{
	"audio/wav":                true,
	"audio/x-wav":              true,
	"audio/wave":               true,
	"audio/mpeg":               true,
	"audio/mp3":                true,
	"audio/mp4":                true,
	"audio/x-m4a":              true,
	"audio/aac":                true,
	"audio/x-aac":              true,
	"audio/ogg":                true,
	"audio/flac":               true,
	"application/octet-stream": true,
}

// TrackGenerator runs the pipeline synchronously
type TrackGenerator interface {
	Run(ctx context.Context, in pipeline.Input, progress pipeline.ProgressFunc) (*model.GenerateTrackResponse, error)
}

// TrackJobs manages background pipeline runs
type TrackJobs interface {
	StartTrackJob(ctx context.Context, req *model.StartTrackJobRequest, userID string) (*model.StartTrackJobResponse, error)
	GetStatus(ctx context.Context, jobID string) (*model.TrackJobStatusResponse, error)
	GetResult(ctx context.Context, jobID string) (*model.GenerateTrackResponse, error)
}

// GenerateTrackForm is the non-file part of POST /api/tracks/generate
type GenerateTrackForm struct {
	Prompt string `validate:"omitempty,max=500"`
}

type TrackHandler struct {
	generator TrackGenerator
	jobs      TrackJobs
	tracks    store.TrackStore
	validator *validator.Validate
	logger    zerolog.Logger
}

func NewTrackHandler(generator TrackGenerator, jobs TrackJobs, tracks store.TrackStore, v *validator.Validate, logger zerolog.Logger) *TrackHandler {
	return &TrackHandler{
		generator: generator,
		jobs:      jobs,
		tracks:    tracks,
		validator: v,
		logger:    logger,
	}
}

// Generate handles POST /api/tracks/generate
// @Summary      Generate a track and its stems
// @Description  Separates an uploaded track, or generates one when no file is sent, and stores every artifact
// @Tags         Tracks
// @Accept       multipart/form-data
// @Produce      json
// @Param        track  formData file   false "Source audio"
// @Param        prompt formData string false "Generation prompt"
// @Success      200 {object} model.GenerateTrackResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/tracks/generate [post]
func (h *TrackHandler) Generate(c *fiber.Ctx) error {
	form := GenerateTrackForm{Prompt: c.FormValue("prompt")}
	if err := h.validator.Struct(&form); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	upload, written, err := h.readUpload(c)
	if written {
		return err
	}

	logger := h.logger.With().Str("user_id", middleware.GetUserID(c)).Logger()
	ctx := logger.WithContext(c.UserContext())

	result, err := h.generator.Run(ctx, pipeline.Input{Upload: upload, Prompt: form.Prompt}, nil)
	if err != nil {
		// Details are logged by the pipeline
		return response.PipelineFailed(c)
	}

	return response.OK(c, result)
}

// readUpload returns nil when no track file was sent. written reports that
// a rejection has already been sent to the client. A body that is not a
// form, or a form without a track part, means "generate"; a form that
// cannot be parsed is rejected.
func (h *TrackHandler) readUpload(c *fiber.Ctx) (upload *pipeline.Upload, written bool, err error) {
	file, err := c.FormFile("track")
	if errors.Is(err, fasthttp.ErrMissingFile) || errors.Is(err, fasthttp.ErrNoMultipartForm) {
		return nil, false, nil
	}
	if err != nil {
		return nil, true, response.ValidationError(c, "Malformed multipart body", nil)
	}
	if file == nil {
		return nil, false, nil
	}

	if file.Size > maxUploadSize {
		return nil, true, response.ValidationError(c, "File size exceeds 50MB limit", map[string]interface{}{
			"maxSize":  maxUploadSize,
			"fileSize": file.Size,
		})
	}
	if file.Size == 0 {
		return nil, true, response.ValidationError(c, "File is empty", nil)
	}

	contentType := file.Header.Get("Content-Type")
	if !validAudioTypes[contentType] {
		return nil, true, response.ValidationError(c, "Invalid file type. Supported: WAV, M4A, MP3, AAC, OGG, FLAC", map[string]interface{}{
			"contentType": contentType,
		})
	}

	f, err := file.Open()
	if err != nil {
		return nil, true, response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, true, response.ServiceError(c, "Failed to read file")
	}

	return &pipeline.Upload{
		Filename:    file.Filename,
		ContentType: contentType,
		Data:        data,
	}, false, nil
}

// StartJob handles POST /api/tracks/jobs
// @Summary      Queue a track generation job
// @Description  Runs generation and stem separation in the background
// @Tags         Tracks
// @Accept       json
// @Produce      json
// @Param        request body model.StartTrackJobRequest true "Job request"
// @Success      202 {object} model.StartTrackJobResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/tracks/jobs [post]
func (h *TrackHandler) StartJob(c *fiber.Ctx) error {
	var req model.StartTrackJobRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.ValidationError(c, "Invalid request body", nil)
		}
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.jobs.StartTrackJob(c.UserContext(), &req, middleware.GetUserID(c))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to queue track job")
		return response.ServiceError(c, "Failed to queue track job")
	}

	return response.Accepted(c, result)
}

// JobStatus handles GET /api/tracks/jobs/status/:jobId
// @Summary      Get track job status
// @Tags         Tracks
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.TrackJobStatusResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/tracks/jobs/status/{jobId} [get]
func (h *TrackHandler) JobStatus(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if err := h.validator.Var(jobID, "required,uuid"); err != nil {
		return response.ValidationError(c, "Job ID must be a UUID", nil)
	}

	result, err := h.jobs.GetStatus(c.UserContext(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, "Failed to read job")
	}

	return response.OK(c, result)
}

// JobResult handles GET /api/tracks/jobs/result/:jobId
// @Summary      Get track job result
// @Tags         Tracks
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.GenerateTrackResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      422 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/tracks/jobs/result/{jobId} [get]
func (h *TrackHandler) JobResult(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if err := h.validator.Var(jobID, "required,uuid"); err != nil {
		return response.ValidationError(c, "Job ID must be a UUID", nil)
	}

	result, err := h.jobs.GetResult(c.UserContext(), jobID)
	switch {
	case err == nil:
		return response.OK(c, result)
	case errors.Is(err, service.ErrJobNotFound):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, service.ErrJobNotCompleted):
		return response.JobNotReady(c, "Job not completed yet")
	case errors.Is(err, service.ErrJobFailed):
		return response.JobFailed(c, "Failed to generate track")
	default:
		return response.ServiceError(c, "Failed to read job")
	}
}

// Get handles GET /api/tracks/:trackId
// @Summary      Get a stored track
// @Tags         Tracks
// @Produce      json
// @Param        trackId path string true "Track ID"
// @Success      200 {object} model.Track
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/tracks/{trackId} [get]
func (h *TrackHandler) Get(c *fiber.Ctx) error {
	trackID := c.Params("trackId")
	if err := h.validator.Var(trackID, "required,max=64"); err != nil {
		return response.ValidationError(c, "Track ID is required", nil)
	}

	track, err := h.tracks.Get(c.UserContext(), trackID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Track not found")
		}
		h.logger.Error().Err(err).Str("track_id", trackID).Msg("failed to read track")
		return response.ServiceError(c, "Failed to read track")
	}

	return response.OK(c, track)
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
