package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stemline/api/internal/client"
	"github.com/stemline/api/internal/model"
	"github.com/stemline/api/internal/store"
)

func newExportFixture(t *testing.T) (*ExportService, *model.Track) {
	t.Helper()
	blobs := client.NewMemoryStorage("https://blobs.test")
	tracks := store.NewMemoryStore()

	track := &model.Track{
		TrackID:          "track-1",
		Source:           model.SourceUploaded,
		OriginalTrackURL: blobs.GetPublicURL("tracks/track-1"),
		Stems: map[string]string{
			"vocals":        blobs.GetPublicURL("stems/1_vocals.mp3"),
			"accompaniment": blobs.GetPublicURL("stems/1_accompaniment.mp3"),
		},
	}
	if err := tracks.Save(context.Background(), track); err != nil {
		t.Fatalf("Save: %v", err)
	}

	svc := NewExportService(tracks, blobs)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return svc, track
}

func TestExportTrack_AllStems(t *testing.T) {
	svc, _ := newExportFixture(t)

	resp, err := svc.ExportTrack(context.Background(), "track-1", &model.ExportTrackRequest{})
	if err != nil {
		t.Fatalf("ExportTrack: %v", err)
	}

	if resp.FileCount != 3 || len(resp.Stems) != 2 {
		t.Errorf("expected original plus 2 stems, got %d files %v", resp.FileCount, resp.Stems)
	}
	if resp.Original == nil || resp.Original.Key != "tracks/track-1" {
		t.Errorf("unexpected original %+v", resp.Original)
	}
	if resp.Stems["vocals"].Key != "stems/1_vocals.mp3" {
		t.Errorf("unexpected vocals key %q", resp.Stems["vocals"].Key)
	}
	if resp.Stems["vocals"].URL != "https://blobs.test/stems/1_vocals.mp3?expires=86400" {
		t.Errorf("expected a 24h signed url, got %q", resp.Stems["vocals"].URL)
	}
	if !resp.ExpiresAt.Equal(time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected expiry %v", resp.ExpiresAt)
	}
}

func TestExportTrack_Selection(t *testing.T) {
	svc, _ := newExportFixture(t)
	noOriginal := false

	resp, err := svc.ExportTrack(context.Background(), "track-1", &model.ExportTrackRequest{
		Stems:           []string{"vocals"},
		IncludeOriginal: &noOriginal,
		ExpiryMinutes:   10,
	})
	if err != nil {
		t.Fatalf("ExportTrack: %v", err)
	}
	if resp.Original != nil || resp.FileCount != 1 {
		t.Errorf("expected only the vocals stem, got %+v", resp)
	}
	if resp.Stems["vocals"].URL != "https://blobs.test/stems/1_vocals.mp3?expires=600" {
		t.Errorf("unexpected signed url %q", resp.Stems["vocals"].URL)
	}
}

func TestExportTrack_Errors(t *testing.T) {
	svc, _ := newExportFixture(t)

	if _, err := svc.ExportTrack(context.Background(), "missing", &model.ExportTrackRequest{}); !errors.Is(err, ErrTrackNotFound) {
		t.Errorf("expected ErrTrackNotFound, got %v", err)
	}

	_, err := svc.ExportTrack(context.Background(), "track-1", &model.ExportTrackRequest{Stems: []string{"drums"}})
	if !errors.Is(err, ErrUnknownStem) {
		t.Errorf("expected ErrUnknownStem, got %v", err)
	}
}

func TestExportTrack_ForeignURL(t *testing.T) {
	blobs := client.NewMemoryStorage("https://blobs.test")
	tracks := store.NewMemoryStore()
	_ = tracks.Save(context.Background(), &model.Track{
		TrackID:          "track-2",
		OriginalTrackURL: "https://elsewhere.example/track.mp3",
	})

	svc := NewExportService(tracks, blobs)
	if _, err := svc.ExportTrack(context.Background(), "track-2", &model.ExportTrackRequest{}); err == nil {
		t.Fatal("expected an error for a url outside the bucket")
	}
}
