package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/stemline/api/internal/model"
	"github.com/stemline/api/internal/service"
	"github.com/stemline/api/pkg/response"
)

// TrackExporter signs download links for stored tracks
type TrackExporter interface {
	ExportTrack(ctx context.Context, trackID string, req *model.ExportTrackRequest) (*model.ExportTrackResponse, error)
}

type ExportHandler struct {
	exporter  TrackExporter
	validator *validator.Validate
	logger    zerolog.Logger
}

func NewExportHandler(exporter TrackExporter, v *validator.Validate, logger zerolog.Logger) *ExportHandler {
	return &ExportHandler{
		exporter:  exporter,
		validator: v,
		logger:    logger,
	}
}

// Track handles POST /api/tracks/:trackId/export
// @Summary      Export a stored track
// @Description  Returns time limited download links for the original audio and its stems
// @Tags         Export
// @Accept       json
// @Produce      json
// @Param        trackId path string true "Track ID"
// @Param        request body model.ExportTrackRequest false "Export selection"
// @Success      200 {object} model.ExportTrackResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/tracks/{trackId}/export [post]
func (h *ExportHandler) Track(c *fiber.Ctx) error {
	trackID := c.Params("trackId")
	if err := h.validator.Var(trackID, "required,max=64"); err != nil {
		return response.ValidationError(c, "Track ID is required", nil)
	}

	var req model.ExportTrackRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.ValidationError(c, "Invalid request body", nil)
		}
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.exporter.ExportTrack(c.UserContext(), trackID, &req)
	switch {
	case err == nil:
		return response.OK(c, result)
	case errors.Is(err, service.ErrTrackNotFound):
		return response.NotFound(c, "Track not found")
	case errors.Is(err, service.ErrUnknownStem):
		return response.ValidationError(c, err.Error(), nil)
	default:
		h.logger.Error().Err(err).Str("track_id", trackID).Msg("failed to export track")
		return response.ServiceError(c, "Failed to export track")
	}
}
