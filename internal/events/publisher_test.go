package events

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stemline/api/internal/model"
)

type recordingConn struct {
	subject string
	data    []byte
	err     error
}

func (r *recordingConn) Publish(subject string, data []byte) error {
	r.subject = subject
	r.data = data
	return r.err
}

func TestPublishTrackCreated(t *testing.T) {
	rc := &recordingConn{}
	p := &TrackPublisher{conn: rc, subject: DefaultTrackCreatedSubject}

	event := model.TrackCreatedEvent{
		TrackID:  "track-1",
		Source:   model.SourceGenerated,
		TrackURL: "https://blobs.test/tracks/track-1",
		Stems:    map[string]string{"vocals": "https://blobs.test/stems/1_vocals.mp3"},
	}
	if err := p.PublishTrackCreated(context.Background(), event); err != nil {
		t.Fatalf("PublishTrackCreated: %v", err)
	}

	if rc.subject != "tracks.created" {
		t.Errorf("unexpected subject %q", rc.subject)
	}
	var got model.TrackCreatedEvent
	if err := json.Unmarshal(rc.data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TrackID != "track-1" || got.Stems["vocals"] == "" {
		t.Errorf("unexpected payload %s", rc.data)
	}
}

func TestPublishTrackCreated_Errors(t *testing.T) {
	rc := &recordingConn{err: errors.New("nats: connection closed")}
	p := &TrackPublisher{conn: rc, subject: "tracks.created"}

	if err := p.PublishTrackCreated(context.Background(), model.TrackCreatedEvent{TrackID: "x"}); err == nil {
		t.Error("expected publish error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rc.err = nil
	rc.subject = ""
	if err := p.PublishTrackCreated(ctx, model.TrackCreatedEvent{TrackID: "x"}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if rc.subject != "" {
		t.Error("expected nothing published on a done context")
	}
}

func TestTrackPublisher_RoundTrip(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}
	c, err := Connect(url)
	if err != nil {
		t.Skipf("nats not available: %v", err)
	}
	defer c.Close()

	subject := "tracks.created.test"
	got := make(chan []byte, 1)
	sub, err := c.SubscribeJSON(subject, func(ctx context.Context, data []byte) { got <- data })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	p := NewTrackPublisher(c, subject)
	if err := p.PublishTrackCreated(context.Background(), model.TrackCreatedEvent{TrackID: "track-rt"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case data := <-got:
		var ev model.TrackCreatedEvent
		if err := json.Unmarshal(data, &ev); err != nil || ev.TrackID != "track-rt" {
			t.Errorf("unexpected message %s (%v)", data, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}
