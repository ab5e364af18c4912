package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stemline/api/internal/client"
	"github.com/stemline/api/internal/model"
	"github.com/stemline/api/internal/store"
)

const defaultExportExpiry = 24 * time.Hour

var (
	ErrTrackNotFound = errors.New("track not found")
	ErrUnknownStem   = errors.New("unknown stem")
)

// ExportService issues signed download links for stored tracks
type ExportService struct {
	tracks store.TrackStore
	blobs  client.StorageClient
	now    func() time.Time
}

// NewExportService creates a new export service
func NewExportService(tracks store.TrackStore, blobs client.StorageClient) *ExportService {
	return &ExportService{
		tracks: tracks,
		blobs:  blobs,
		now:    time.Now,
	}
}

// ExportTrack signs the original audio and the requested stems of a track.
// An empty stem list selects every stem.
func (s *ExportService) ExportTrack(ctx context.Context, trackID string, req *model.ExportTrackRequest) (*model.ExportTrackResponse, error) {
	track, err := s.tracks.Get(ctx, trackID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTrackNotFound
		}
		return nil, err
	}

	expiry := defaultExportExpiry
	if req.ExpiryMinutes > 0 {
		expiry = time.Duration(req.ExpiryMinutes) * time.Minute
	}

	names := req.Stems
	if len(names) == 0 {
		for name := range track.Stems {
			names = append(names, name)
		}
	}

	resp := &model.ExportTrackResponse{
		TrackID:   track.TrackID,
		Stems:     make(map[string]model.ExportFile, len(names)),
		ExpiresAt: s.now().Add(expiry),
	}

	if req.IncludeOriginal == nil || *req.IncludeOriginal {
		file, err := s.sign(ctx, track.OriginalTrackURL, expiry)
		if err != nil {
			return nil, err
		}
		resp.Original = &file
		resp.FileCount++
	}

	for _, name := range names {
		url, ok := track.Stems[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownStem, name)
		}
		file, err := s.sign(ctx, url, expiry)
		if err != nil {
			return nil, err
		}
		resp.Stems[name] = file
		resp.FileCount++
	}

	return resp, nil
}

// sign maps a stored public URL back to its key and presigns it
func (s *ExportService) sign(ctx context.Context, publicURL string, expiry time.Duration) (model.ExportFile, error) {
	prefix := s.blobs.GetPublicURL("")
	key, ok := strings.CutPrefix(publicURL, prefix)
	if !ok || key == "" {
		return model.ExportFile{}, fmt.Errorf("%s is not in the configured bucket", publicURL)
	}

	signed, err := s.blobs.GetSignedURL(ctx, key, expiry)
	if err != nil {
		return model.ExportFile{}, fmt.Errorf("failed to sign %s: %w", key, err)
	}
	return model.ExportFile{Key: key, URL: signed}, nil
}
