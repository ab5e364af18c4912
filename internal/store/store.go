// Package store keeps finished track documents.
package store

import (
	"context"
	"errors"

	"github.com/stemline/api/internal/model"
)

// ErrNotFound is returned when no track exists for an id
var ErrNotFound = errors.New("track not found")

// TrackStore is the document store for tracks. Save is an upsert keyed by
// TrackID and stamps CreatedAt on the passed track.
type TrackStore interface {
	Save(ctx context.Context, track *model.Track) error
	Get(ctx context.Context, trackID string) (*model.Track, error)
}
