// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package progress

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dk5761/reader/internal/platform/dberr"
	"github.com/dk5761/reader/internal/reader/progress/schema"
	"github.com/dk5761/reader/pkg/uuidv7"
)

// PostgresStore is the default [Collaborator], backed by Postgres via pgx.
// UpsertHistory is folded into the same reading.progress row as
// UpsertProgress — the teacher's separate library.viewhistory table is
// superseded by reading.timeline_event, which already carries a full
// per-chapter history (see DESIGN.md).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs the default progress collaborator.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) UpsertProgress(ctx context.Context, event Event) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (%s) DO UPDATE SET
			%s = EXCLUDED.%s,
			%s = EXCLUDED.%s,
			%s = EXCLUDED.%s,
			%s = EXCLUDED.%s,
			%s = EXCLUDED.%s`,
		schema.ReadingProgress.Table,
		schema.ReadingProgress.SessionKey, schema.ReadingProgress.SourceID, schema.ReadingProgress.WorkID,
		schema.ReadingProgress.ChapterID, schema.ReadingProgress.PageIndex, schema.ReadingProgress.TotalPages,
		schema.ReadingProgress.UpdatedAt,
		schema.ReadingProgress.SessionKey,
		schema.ReadingProgress.SourceID, schema.ReadingProgress.SourceID,
		schema.ReadingProgress.WorkID, schema.ReadingProgress.WorkID,
		schema.ReadingProgress.ChapterID, schema.ReadingProgress.ChapterID,
		schema.ReadingProgress.PageIndex, schema.ReadingProgress.PageIndex,
		schema.ReadingProgress.UpdatedAt, schema.ReadingProgress.UpdatedAt,
	)

	_, err := s.pool.Exec(ctx, query, event.SessionKey, event.SourceID, event.WorkID, event.ChapterID, event.PageIndex, event.TotalPages)
	if err != nil {
		return dberr.Wrap(err, "upsert reading progress")
	}
	return nil
}

// UpsertHistory is a no-op in the Postgres store: history is fully captured
// by InsertTimelineEvent's append-only log.
func (s *PostgresStore) UpsertHistory(context.Context, Event) error {
	return nil
}

func (s *PostgresStore) InsertTimelineEvent(ctx context.Context, event Event) error {
	id := uuidv7.New()

	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
		schema.TimelineEvent.Table,
		schema.TimelineEvent.ID, schema.TimelineEvent.SessionKey, schema.TimelineEvent.SourceID,
		schema.TimelineEvent.WorkID, schema.TimelineEvent.ChapterID, schema.TimelineEvent.PageIndex,
		schema.TimelineEvent.TotalPages,
	)

	_, err := s.pool.Exec(ctx, query, id, event.SessionKey, event.SourceID, event.WorkID, event.ChapterID, event.PageIndex, event.TotalPages)
	if err != nil {
		return dberr.Wrap(err, "insert timeline event")
	}
	return nil
}
