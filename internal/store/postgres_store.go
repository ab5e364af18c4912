package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemline/api/internal/model"
)

const tracksSchema = `
	CREATE TABLE IF NOT EXISTS tracks (
		track_id   TEXT PRIMARY KEY,
		source     TEXT NOT NULL,
		document   JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// NewPool opens and pings a connection pool
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// PostgresStore keeps track documents as JSONB rows in the tracks table.
// created_at is assigned by the database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the tracks table if needed
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, tracksSchema); err != nil {
		return fmt.Errorf("create tracks table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, track *model.Track) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var createdAt time.Time
	err = tx.QueryRow(ctx, `
		INSERT INTO tracks (track_id, source, document)
		VALUES ($1, $2, '{}'::jsonb)
		ON CONFLICT (track_id) DO UPDATE SET source = EXCLUDED.source, created_at = now()
		RETURNING created_at
	`, track.TrackID, string(track.Source)).Scan(&createdAt)
	if err != nil {
		return fmt.Errorf("insert track: %w", err)
	}
	track.CreatedAt = createdAt.UTC()

	document, err := json.Marshal(track)
	if err != nil {
		return fmt.Errorf("marshal track: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE tracks SET document = $2 WHERE track_id = $1`, track.TrackID, document); err != nil {
		return fmt.Errorf("update track document: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, trackID string) (*model.Track, error) {
	var document []byte
	err := s.pool.QueryRow(ctx, `SELECT document FROM tracks WHERE track_id = $1`, trackID).Scan(&document)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get track by id: %w", err)
	}

	var track model.Track
	if err := json.Unmarshal(document, &track); err != nil {
		return nil, fmt.Errorf("unmarshal track: %w", err)
	}
	return &track, nil
}
