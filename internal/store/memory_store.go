package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/stemline/api/internal/model"
)

// MemoryStore keeps tracks in process. Documents are stored as JSON so
// callers never share state with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	tracks map[string][]byte
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tracks: make(map[string][]byte),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Save(ctx context.Context, track *model.Track) error {
	track.CreatedAt = s.now()
	data, err := json.Marshal(track)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.tracks[track.TrackID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, trackID string) (*model.Track, error) {
	s.mu.RLock()
	data, ok := s.tracks[trackID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	var track model.Track
	if err := json.Unmarshal(data, &track); err != nil {
		return nil, err
	}
	return &track, nil
}
