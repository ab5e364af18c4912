package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stemline/api/internal/model"
)

const DefaultTrackCreatedSubject = "tracks.created"

// conn is the publishing half of *nats.Conn
type conn interface {
	Publish(subject string, data []byte) error
}

// TrackPublisher announces stored tracks on a single subject
type TrackPublisher struct {
	conn    conn
	subject string
}

func NewTrackPublisher(c *Client, subject string) *TrackPublisher {
	if subject == "" {
		subject = DefaultTrackCreatedSubject
	}
	return &TrackPublisher{conn: c.Conn(), subject: subject}
}

func (p *TrackPublisher) PublishTrackCreated(ctx context.Context, event model.TrackCreatedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}
